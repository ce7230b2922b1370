package main

import (
	"context"
	"fmt"
)

// MigrateCmd manages database migrations
type MigrateCmd struct {
	Up     MigrateUpCmd     `cmd:"" default:"1" help:"Run pending migrations"`
	Status MigrateStatusCmd `cmd:"" help:"Show applied migrations"`
}

// MigrateUpCmd runs pending migrations
type MigrateUpCmd struct{}

// Run executes the migrate up command. Opening the database already applies
// pending migrations, so a second pass reports nothing new.
func (c *MigrateUpCmd) Run(ctx context.Context, cli *CLI) error {
	rt, err := cli.openStorage()
	if err != nil {
		return err
	}
	defer rt.Close()

	applied, err := rt.db.Migrate(ctx)
	if err != nil {
		return err
	}
	versions, err := rt.db.AppliedVersions(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("database %s is at version %d (%d applied now)\n", rt.db.Path(), latest(versions), len(applied))
	return nil
}

// MigrateStatusCmd shows migration status
type MigrateStatusCmd struct{}

func (c *MigrateStatusCmd) Run(ctx context.Context, cli *CLI) error {
	rt, err := cli.openStorage()
	if err != nil {
		return err
	}
	defer rt.Close()

	versions, err := rt.db.AppliedVersions(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("database: %s\n", rt.db.Path())
	for _, v := range versions {
		fmt.Printf("  applied %04d\n", v)
	}
	return nil
}

func latest(versions []int) int {
	if len(versions) == 0 {
		return 0
	}
	return versions[len(versions)-1]
}
