package cli

import (
	"flag"
	"fmt"
	"os"
)

func newPathsCommand(app *App) *Command {
	cmd := &Command{
		Name:        "paths",
		Description: "Print the plugin search path",
		Flags:       flag.NewFlagSet("paths", flag.ContinueOnError),
	}

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		for _, dir := range app.Manager().SearchPaths() {
			status := ""
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				status = " (missing)"
			}
			fmt.Fprintf(app.Out, "%s%s\n", dir, status)
		}
		return nil
	}
	return cmd
}
