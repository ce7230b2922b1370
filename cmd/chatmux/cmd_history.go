package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/x/ansi"
	"github.com/elee1766/chatmux/src/executor"
	"github.com/elee1766/chatmux/src/storage"
)

// HistoryCmd reads and manages stored sessions
type HistoryCmd struct {
	List   HistoryListCmd   `cmd:"" default:"1" help:"List stored sessions"`
	Show   HistoryShowCmd   `cmd:"" help:"Export a transcript, inactive turns included"`
	Delete HistoryDeleteCmd `cmd:"" help:"Delete a stored session"`
}

// HistoryListCmd lists stored sessions, most recent first
type HistoryListCmd struct {
	Limit  int    `short:"n" default:"20" help:"Maximum number of sessions"`
	Format string `short:"f" enum:"table,json" default:"table" help:"Output format"`
}

func (c *HistoryListCmd) Run(ctx context.Context, cli *CLI) error {
	rt, err := cli.openStorage()
	if err != nil {
		return err
	}
	defer rt.Close()

	sessions, err := storage.ListSessions(ctx, rt.db.DB(), c.Limit)
	if err != nil {
		return err
	}
	if c.Format == "json" {
		return printJSON(os.Stdout, sessions)
	}
	return printSessionsTable(os.Stdout, sessions)
}

func printSessionsTable(out io.Writer, sessions []storage.Session) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAPP\tMODEL\tUPDATED\tTITLE")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s/%s\t%s\t%s\n",
			s.ID, s.App, s.Vendor, s.Model, s.UpdatedAt.Local().Format("2006-01-02 15:04"), ansi.Truncate(s.Title, 40, "…"))
	}
	return w.Flush()
}

// HistoryShowCmd exports one transcript
type HistoryShowCmd struct {
	SessionID string `arg:"" name:"session" help:"Session ID"`
	Format    string `short:"f" enum:"text,json" default:"text" help:"Output format"`
}

func (c *HistoryShowCmd) Run(ctx context.Context, cli *CLI) error {
	rt, err := cli.openStorage()
	if err != nil {
		return err
	}
	defer rt.Close()

	record, err := storage.GetSessionByID(ctx, rt.db.DB(), c.SessionID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("%w: %s", executor.ErrSessionNotFound, c.SessionID)
	}
	turns, err := storage.LoadHistory(ctx, rt.db.DB(), c.SessionID)
	if err != nil {
		return err
	}
	transcript := &executor.Transcript{Session: record, Turns: turns}

	if c.Format == "json" {
		return printJSON(os.Stdout, transcript)
	}
	return transcript.WriteText(os.Stdout)
}

// HistoryDeleteCmd deletes a session and its turns
type HistoryDeleteCmd struct {
	SessionID string `arg:"" name:"session" help:"Session ID"`
}

func (c *HistoryDeleteCmd) Run(ctx context.Context, cli *CLI) error {
	rt, err := cli.openStorage()
	if err != nil {
		return err
	}
	defer rt.Close()

	record, err := storage.GetSessionByID(ctx, rt.db.DB(), c.SessionID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("%w: %s", executor.ErrSessionNotFound, c.SessionID)
	}
	if err := storage.DeleteSession(ctx, rt.db.DB(), c.SessionID); err != nil {
		return err
	}
	fmt.Printf("deleted session %s\n", c.SessionID)
	return nil
}

// openStorage sets up logging and opens the database, which must be enabled.
func (cli *CLI) openStorage() (*runtime, error) {
	rt, err := cli.setup()
	if err != nil {
		return nil, err
	}
	if err := rt.openDB(cli); err != nil {
		rt.Close()
		return nil, err
	}
	if rt.db == nil {
		rt.Close()
		return nil, executor.ErrNoStorage
	}
	return rt, nil
}
