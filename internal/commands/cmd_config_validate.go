package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/printer"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
}

// NewConfigValidateCmd creates a new config validate command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config validate command to the application.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate the configuration and show the effective settings",
				UsageText: "parley config validate [options]",
				Description: `Loads the configuration, checks addresses, backends, the data directory
and hook templates, and prints the settings a node would start with:
identity, advertised address, where messages and peers are stored, and timings.

Exits non-zero when the configuration has errors.`,
				Flags:  []cli.Flag{formatFlag(&cmd.format)},
				Action: cmd.run,
			},
		},
	})

	return app
}

func (cmd *ConfigValidateCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.flags.Config == nil {
		return fmt.Errorf("configuration not loaded")
	}

	report := cmd.flags.Config.Check(cmd.flags.ConfigPath)

	if cmd.format == "json" {
		if err := writeReportJSON(c, report); err != nil {
			return err
		}
	} else {
		writeReportText(printer.Ctx(ctx), report)
	}

	if !report.Valid() {
		return cli.Exit("", 1)
	}
	return nil
}

type reportJSON struct {
	config.Report
	Valid  bool             `json:"valid"`
	Errors []fieldErrorJSON `json:"errors,omitempty"`
}

type fieldErrorJSON struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func writeReportJSON(c *cli.Command, r config.Report) error {
	out := reportJSON{Report: r, Valid: r.Valid()}
	for _, fe := range r.Errors {
		out.Errors = append(out.Errors, fieldErrorJSON{Field: fe.Field, Message: fe.Err.Error()})
	}

	enc := json.NewEncoder(c.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeReportText(p *printer.Printer, r config.Report) {
	p.Section("Config file")
	switch {
	case r.Path == "":
		p.WarnItem("none", "using defaults")
	case r.FileFound:
		p.CheckItem(r.Path, "")
	default:
		p.WarnItem(r.Path, "not found, using defaults")
	}
	p.Printf("")

	p.Section("Settings")
	for _, s := range r.Settings {
		p.Printf("  %-18s %s", s.Key, s.Value)
	}

	if len(r.Errors) > 0 {
		p.Printf("")
		p.Section("Errors")
		for _, fe := range r.Errors {
			label := fe.Field
			if label == "" {
				label = "config"
			}
			p.FailItem(label, fe.Err.Error())
		}
	}

	if len(r.Warnings) > 0 {
		p.Printf("")
		p.Section("Warnings")
		for _, w := range r.Warnings {
			p.WarnItem(w.Item, w.Message)
		}
	}

	p.Printf("")
	if r.Valid() {
		p.Successf("Configuration is valid (%d warning(s))", len(r.Warnings))
		return
	}
	p.Errorf("%d error(s), %d warning(s)", len(r.Errors), len(r.Warnings))
}
