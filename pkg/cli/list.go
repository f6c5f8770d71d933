package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/pdalplugins/pkg/api"
	"github.com/platinummonkey/pdalplugins/pkg/plugins"
)

// Output formats accepted by -o.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// ListOutput is what list prints
type ListOutput struct {
	Stages    []api.Stage `json:"stages" yaml:"stages"`
	Libraries []string    `json:"libraries" yaml:"libraries"`
}

func newListCommand(app *App) *Command {
	cmd := &Command{
		Name:        "list",
		Description: "Load plugins and list registered stages",
		Flags:       flag.NewFlagSet("list", flag.ContinueOnError),
	}
	typeName := cmd.Flags.String("type", "", "Plugin type to load (reader, kernel, filter, writer); all when empty")
	output := cmd.Flags.String("o", OutputText, "Output format (text, json, yaml)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		types := plugins.AllPluginTypes()
		category := ""
		if *typeName != "" {
			t, err := plugins.ParsePluginType(*typeName)
			if err != nil {
				return err
			}
			types = []plugins.PluginType{t}
			category = t.String() + "s"
		}

		m := app.Manager()
		for _, t := range types {
			m.LoadAll(app.Context, t)
		}

		out := ListOutput{
			Stages:    api.Stages(m.RegistrationMap(), category),
			Libraries: m.LoadedLibraries(),
		}
		return writeList(app.Out, *output, out)
	}
	return cmd
}

func writeList(w io.Writer, format string, out ListOutput) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(out)
	case OutputText:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STAGE\tAPI")
		for _, s := range out.Stages {
			fmt.Fprintf(tw, "%s\t%s\n", s.Key, s.Version)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%d stages from %d libraries\n", len(out.Stages), len(out.Libraries))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
