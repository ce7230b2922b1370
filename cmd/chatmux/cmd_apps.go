package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/elee1766/chatmux/src/config"
)

// AppsCmd lists the app catalog
type AppsCmd struct {
	Format string `short:"f" enum:"table,json" default:"table" help:"Output format"`
}

func (c *AppsCmd) Run(cli *CLI) error {
	mgr, err := cli.loadConfig()
	if err != nil {
		return err
	}
	catalog := mgr.Apps()
	defaultApp := mgr.GetConfig().DefaultApp

	if c.Format == "json" {
		return printJSON(os.Stdout, catalog)
	}
	return printAppsTable(os.Stdout, catalog, defaultApp)
}

func printAppsTable(out io.Writer, catalog []config.AppConfig, defaultApp string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVENDOR\tMODEL\tMODE\tTOOLS\tDESCRIPTION")
	for _, app := range catalog {
		name := app.Name
		if name == defaultApp {
			name += " *"
		}
		mode := "plain"
		switch {
		case app.Strict:
			mode = "strict"
		case app.Monadic:
			mode = "monadic"
		}
		tools := "-"
		if len(app.Tools) > 0 {
			tools = strings.Join(app.Tools, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", name, app.Vendor, app.Model, mode, tools, app.Description)
	}
	return w.Flush()
}
