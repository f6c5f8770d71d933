package cli

import (
	"flag"
	"fmt"
)

func newCreateCommand(app *App) *Command {
	cmd := &Command{
		Name:        "create",
		Description: "Create and destroy a stage, loading its plugin if needed",
		Flags:       flag.NewFlagSet("create", flag.ContinueOnError),
	}

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() != 1 {
			return fmt.Errorf("usage: pdal-plugins create <stage>")
		}
		key := cmd.Flags.Arg(0)

		m := app.Manager()
		h := m.CreateObject(app.Context, key)
		if h == 0 {
			return fmt.Errorf("no plugin provides stage %s", key)
		}
		if !m.Destroy(key, h) {
			return fmt.Errorf("failed to destroy %s handle %#x", key, uintptr(h))
		}

		fmt.Fprintf(app.Out, "Created and destroyed %s (handle %#x)\n", key, uintptr(h))
		return nil
	}
	return cmd
}
