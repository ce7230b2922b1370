package main

import (
	"fmt"
	"os"
)

// ConfigCmd inspects the loaded configuration
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" default:"1" help:"Print the merged configuration"`
	Info ConfigInfoCmd `cmd:"" help:"Show config sources and problems"`
}

// ConfigShowCmd prints the merged configuration as JSON
type ConfigShowCmd struct {
	Secrets bool `help:"Include API keys"`
}

func (c *ConfigShowCmd) Run(cli *CLI) error {
	mgr, err := cli.loadConfig()
	if err != nil {
		return err
	}
	out, err := mgr.ExportConfig(c.Secrets)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

// ConfigInfoCmd reports where configuration came from
type ConfigInfoCmd struct{}

func (c *ConfigInfoCmd) Run(cli *CLI) error {
	mgr, err := cli.loadConfig()
	if err != nil {
		return err
	}
	info, err := mgr.GetInfo()
	if err != nil {
		return err
	}

	fmt.Println("sources:")
	if len(info.Sources) == 0 {
		fmt.Println("  (defaults only)")
	}
	for _, s := range info.Sources {
		fmt.Printf("  %s\n", s)
	}
	fmt.Printf("apps: %d\n", info.Apps)
	fmt.Printf("vendors: %v\n", info.Vendors)
	for _, w := range info.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, e := range info.Errors {
		fmt.Printf("error: %s\n", e)
	}
	if len(info.Errors) > 0 {
		return fmt.Errorf("%w: %d problem(s)", errConfig, len(info.Errors))
	}
	return nil
}
