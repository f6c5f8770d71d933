package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pdalplugins/pkg/config"
	"github.com/platinummonkey/pdalplugins/pkg/observability"
	"github.com/platinummonkey/pdalplugins/pkg/plugins"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// App is the state shared by every command of one invocation.
type App struct {
	// Out receives command output. Defaults to os.Stdout.
	Out io.Writer
	// Context bounds long-running commands. Defaults to context.Background().
	Context context.Context
	// Config is loaded from the environment or -config when nil.
	Config *config.Config
	// Log defaults to a logger built from Config.
	Log *logrus.Logger
	// Options are appended to the manager options derived from Config.
	Options []plugins.Option

	registry *prometheus.Registry
	metrics  *observability.PluginMetrics
	manager  *plugins.Manager
}

// NewRootCommand creates the root command
func NewRootCommand(app *App) *Command {
	if app == nil {
		app = &App{}
	}

	root := &Command{
		Name:        "pdal-plugins",
		Description: "pdal-plugins - PDAL plugin discovery and loading",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("pdal-plugins", flag.ContinueOnError),
	}
	configPath := root.Flags.String("config", "", "YAML configuration file")

	root.Run = func(args []string) error {
		if err := root.Flags.Parse(args); err != nil {
			return err
		}
		rest := root.Flags.Args()
		if len(rest) == 0 || rest[0] == "help" {
			return root.usage(app.out())
		}

		subcmd, ok := root.Subcommands[rest[0]]
		if !ok {
			return fmt.Errorf("unknown command: %s", rest[0])
		}
		if err := app.init(*configPath); err != nil {
			return err
		}
		defer app.Close()

		return subcmd.Run(rest[1:])
	}

	root.Subcommands["paths"] = newPathsCommand(app)
	root.Subcommands["list"] = newListCommand(app)
	root.Subcommands["load"] = newLoadCommand(app)
	root.Subcommands["create"] = newCreateCommand(app)
	root.Subcommands["watch"] = newWatchCommand(app)

	return root
}

// Execute runs the command with the process arguments
func (c *Command) Execute() error {
	return c.Run(os.Args[1:])
}

// usage prints the command usage
func (c *Command) usage(w io.Writer) error {
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "Usage: %s [-config file] <command> [args]\n\n", c.Name)
	fmt.Fprintf(w, "Commands:\n")
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

func (a *App) init(configPath string) error {
	if a.Out == nil {
		a.Out = os.Stdout
	}
	if a.Context == nil {
		a.Context = context.Background()
	}
	if a.Config == nil {
		var (
			cfg *config.Config
			err error
		)
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.LoadConfig()
		}
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		a.Config = cfg
	}
	if a.Log == nil {
		a.Log = observability.NewLogger(a.Config.Observability.LogLevel, a.Config.Observability.LogFormat, os.Stderr)
	}
	return nil
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

// Metrics returns the Prometheus registry and plugin metrics of the
// invocation, creating them on first use.
func (a *App) Metrics() (*prometheus.Registry, *observability.PluginMetrics) {
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.metrics = observability.NewPluginMetrics(a.registry)
	}
	return a.registry, a.metrics
}

// Manager returns the plugin manager of the invocation, creating it on first
// use and installing it as the process default.
func (a *App) Manager() *plugins.Manager {
	if a.manager != nil {
		return a.manager
	}

	_, metrics := a.Metrics()
	opts := append([]plugins.Option{
		plugins.WithLogger(a.Log),
		plugins.WithMetrics(metrics),
	}, a.Options...)

	a.manager = plugins.NewManagerFromConfig(a.Config, opts...)
	plugins.SetDefault(a.manager)
	return a.manager
}

// Close shuts down the manager if one was created.
func (a *App) Close() bool {
	if a.manager == nil {
		return true
	}
	ok := a.manager.Shutdown(context.Background())
	plugins.SetDefault(nil)
	a.manager = nil
	return ok
}
