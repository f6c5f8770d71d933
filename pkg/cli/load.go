package cli

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/platinummonkey/pdalplugins/pkg/api"
	"github.com/platinummonkey/pdalplugins/pkg/plugins"
)

func newLoadCommand(app *App) *Command {
	cmd := &Command{
		Name:        "load",
		Description: "Load one plugin library",
		Flags:       flag.NewFlagSet("load", flag.ContinueOnError),
	}
	typeName := cmd.Flags.String("type", "", "Plugin type; derived from the file name when empty")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() != 1 {
			return fmt.Errorf("usage: pdal-plugins load [-type t] <library>")
		}
		path := cmd.Flags.Arg(0)

		var t plugins.PluginType
		if *typeName != "" {
			parsed, err := plugins.ParsePluginType(*typeName)
			if err != nil {
				return err
			}
			t = parsed
		} else {
			derived, ok := plugins.TypeFromFilename(filepath.Base(path))
			if !ok {
				return fmt.Errorf("cannot derive plugin type from %s; pass -type", path)
			}
			t = derived
		}

		m := app.Manager()
		if !m.LoadByPath(app.Context, path, t) {
			return fmt.Errorf("failed to load %s as %s plugin", path, t)
		}

		fmt.Fprintf(app.Out, "Loaded %s (%s)\n", path, t)
		return writeList(app.Out, OutputText, ListOutput{
			Stages:    api.Stages(m.RegistrationMap(), ""),
			Libraries: m.LoadedLibraries(),
		})
	}
	return cmd
}
