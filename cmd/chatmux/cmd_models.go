package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/elee1766/chatmux/src/aisdk"
)

// ModelsCmd manages model operations
type ModelsCmd struct {
	List ModelsListCmd `cmd:"" default:"withargs" help:"List available models"`
	Info ModelsInfoCmd `cmd:"" help:"Show one model"`
}

// ModelsListCmd lists the models of a vendor
type ModelsListCmd struct {
	Vendor string `arg:"" optional:"" help:"Vendor name (defaults to the default app's vendor)"`
	Search string `short:"s" help:"Only models whose ID or name contains this"`
	Format string `short:"f" enum:"table,json" default:"table" help:"Output format"`
}

func (c *ModelsListCmd) Run(ctx context.Context, cli *CLI) error {
	rt, err := cli.setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	lister, err := rt.modelLister(c.Vendor)
	if err != nil {
		return err
	}
	models, err := lister.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	models = filterModels(models, c.Search)

	if c.Format == "json" {
		return printJSON(os.Stdout, models)
	}
	return printModelsTable(os.Stdout, models)
}

// ModelsInfoCmd gets information about a specific model
type ModelsInfoCmd struct {
	Model  string `arg:"" help:"Model ID or part of its name"`
	Vendor string `short:"v" help:"Vendor name (defaults to the default app's vendor)"`
	Format string `short:"f" enum:"table,json" default:"table" help:"Output format"`
}

func (c *ModelsInfoCmd) Run(ctx context.Context, cli *CLI) error {
	rt, err := cli.setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	lister, err := rt.modelLister(c.Vendor)
	if err != nil {
		return err
	}

	var model *aisdk.ModelInfo
	if finder, ok := lister.(interface {
		FindModel(context.Context, string) (*aisdk.ModelInfo, error)
	}); ok {
		model, err = finder.FindModel(ctx, c.Model)
	} else {
		model, err = findModel(ctx, lister, c.Model)
	}
	if err != nil {
		return err
	}

	if c.Format == "json" {
		return printJSON(os.Stdout, model)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", model.ID)
	fmt.Fprintf(w, "Name:\t%s\n", model.Name)
	if model.Description != "" {
		fmt.Fprintf(w, "Description:\t%s\n", model.Description)
	}
	if model.ContextLength > 0 {
		fmt.Fprintf(w, "Context Length:\t%d\n", model.ContextLength)
	}
	if model.OwnedBy != "" {
		fmt.Fprintf(w, "Owned By:\t%s\n", model.OwnedBy)
	}
	return w.Flush()
}

// modelLister returns the named vendor, or the default app's vendor.
func (rt *runtime) modelLister(vendor string) (aisdk.ModelLister, error) {
	cfg := rt.manager.GetConfig()
	if vendor == "" {
		app, err := rt.manager.App("")
		if err != nil {
			return nil, err
		}
		vendor = app.Vendor
	}
	registry, err := buildVendors(cfg.Vendors, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	v, err := registry.Lookup(vendor)
	if err != nil {
		return nil, err
	}
	lister, ok := v.(aisdk.ModelLister)
	if !ok {
		return nil, fmt.Errorf("vendor %s cannot list models", vendor)
	}
	return lister, nil
}

func filterModels(models []*aisdk.ModelInfo, query string) []*aisdk.ModelInfo {
	if query == "" {
		return models
	}
	query = strings.ToLower(query)
	var out []*aisdk.ModelInfo
	for _, m := range models {
		if strings.Contains(strings.ToLower(m.ID), query) || strings.Contains(strings.ToLower(m.Name), query) {
			out = append(out, m)
		}
	}
	return out
}

func findModel(ctx context.Context, lister aisdk.ModelLister, name string) (*aisdk.ModelInfo, error) {
	models, err := lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		if strings.EqualFold(m.ID, name) {
			return m, nil
		}
	}
	if matches := filterModels(models, name); len(matches) > 0 {
		return matches[0], nil
	}
	return nil, fmt.Errorf("model matching %s not found", name)
}

func printModelsTable(out io.Writer, models []*aisdk.ModelInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCONTEXT")
	for _, m := range models {
		length := "-"
		if m.ContextLength > 0 {
			length = fmt.Sprint(m.ContextLength)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.Name, length)
	}
	return w.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
