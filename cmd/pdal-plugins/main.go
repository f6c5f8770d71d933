package main

import (
	"fmt"
	"os"

	"github.com/platinummonkey/pdalplugins/pkg/cli"

	// Library openers selectable with PDAL_PLUGINS_LOADER.
	_ "github.com/platinummonkey/pdalplugins/pkg/plugins/goplugin"
	_ "github.com/platinummonkey/pdalplugins/pkg/plugins/native"
)

func main() {
	app := &cli.App{}
	rootCmd := cli.NewRootCommand(app)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
