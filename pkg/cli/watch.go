package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/pdalplugins/pkg/api"
	"github.com/platinummonkey/pdalplugins/pkg/async"
	"github.com/platinummonkey/pdalplugins/pkg/observability"
	"github.com/platinummonkey/pdalplugins/pkg/plugins"
)

const defaultListenAddr = ":9090"

func newWatchCommand(app *App) *Command {
	cmd := &Command{
		Name:        "watch",
		Description: "Load plugins as they appear and serve the introspection API",
		Flags:       flag.NewFlagSet("watch", flag.ContinueOnError),
	}
	listen := cmd.Flags.String("listen", "", "Introspection API address (default PDAL_PLUGINS_METRICS_ADDR or "+defaultListenAddr+")")
	timeout := cmd.Flags.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	interval := cmd.Flags.Duration("otel-interval", 30*time.Second, "OpenTelemetry metric export interval")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		addr := *listen
		if addr == "" {
			addr = app.Config.Observability.MetricsAddr
		}
		if addr == "" {
			addr = defaultListenAddr
		}
		return runWatch(app, addr, *timeout, *interval)
	}
	return cmd
}

func runWatch(app *App, addr string, timeout, interval time.Duration) error {
	log := app.Log
	otelCfg := app.Config.Observability.OTel()

	tp, err := observability.InitTracing(app.Context, otelCfg, log)
	if err != nil {
		return err
	}
	mp, err := observability.InitMetrics(app.Context, otelCfg, interval, log)
	if err != nil {
		observability.ShutdownTracing(context.Background(), tp, log)
		return err
	}

	registry, metrics := app.Metrics()
	if mp != nil {
		om, err := observability.NewOTelMetrics(mp)
		if err != nil {
			log.Warnf("OpenTelemetry plugin metrics disabled: %v", err)
		} else {
			metrics.WithOTel(om)
		}
	}

	m := app.Manager()
	// Watch before the initial scan so files added in between are not missed.
	w, err := plugins.NewWatcher(m)
	if err != nil {
		return fmt.Errorf("failed to start plugin watcher: %w", err)
	}
	for _, t := range plugins.AllPluginTypes() {
		m.LoadAll(app.Context, t)
	}
	log.Infof("Loaded %d plugin libraries providing %d stages", len(m.LoadedLibraries()), len(m.RegistrationMap()))

	srv := api.NewServer(m, registry, log).HTTPServer(addr)
	ctx, cancel := context.WithCancel(app.Context)
	defer cancel()

	watchDone := async.Go(ctx, log, "plugin-watcher", w.Run)
	async.Go(ctx, log, "introspection-server", func(context.Context) error {
		log.Infof("Introspection API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	sm := observability.NewShutdownManager(log, srv, timeout)
	sm.RegisterShutdownFunc("plugin-watcher", func(ctx context.Context) error {
		cancel()
		return async.Wait(ctx, watchDone)
	})
	sm.RegisterShutdownFunc("plugins", func(ctx context.Context) error {
		if !m.Shutdown(ctx) {
			return errors.New("plugin exit hooks reported failure")
		}
		return nil
	})
	sm.RegisterShutdownFunc("tracing", func(ctx context.Context) error {
		return observability.ShutdownTracing(ctx, tp, log)
	})
	if mp != nil {
		sm.RegisterShutdownFunc("metrics", mp.Shutdown)
	}

	fmt.Fprintf(app.Out, "Watching %v\n", w.Dirs())
	return sm.WaitForShutdown(app.Context)
}
