package plugins

import (
	"sync"

	"github.com/platinummonkey/pdalplugins/pkg/config"
	"github.com/platinummonkey/pdalplugins/pkg/observability"
)

var (
	defaultMu      sync.Mutex
	defaultManager *Manager
)

// Default returns the process-wide manager, creating it on first use from
// the environment. The opener is the one registered under
// PDAL_PLUGINS_LOADER (native unless set); import the opener package for
// its side effect. Hosts must call Shutdown on it before exiting.
func Default() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultManager == nil {
		defaultManager = newDefaultManager()
	}
	return defaultManager
}

// SetDefault replaces the process-wide manager and returns the previous one.
func SetDefault(m *Manager) *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	prev := defaultManager
	defaultManager = m
	return prev
}

func newDefaultManager() *Manager {
	cfg, err := config.LoadConfig()
	if err != nil {
		log := observability.NewLogger("info", observability.FormatText, nil)
		log.Warnf("Invalid plugin configuration, using defaults: %v", err)
		return NewManager(WithLogger(log), WithOpener(lookupOpenerOrNil(config.LoaderNative)))
	}

	return NewManagerFromConfig(cfg)
}

// NewManagerFromConfig creates a manager from loaded configuration. The
// opener named by cfg.Plugins.Loader must have been registered.
func NewManagerFromConfig(cfg *config.Config, opts ...Option) *Manager {
	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, nil)

	base := []Option{
		WithLogger(log),
		WithOpener(lookupOpenerOrNil(cfg.Plugins.Loader)),
	}
	if paths := cfg.Plugins.SearchPaths(); len(paths) > 0 {
		base = append(base, WithSearchPaths(paths...))
	}
	if cfg.Plugins.Index {
		index, err := NewGuessIndex(cfg.Plugins.IndexSize)
		if err != nil {
			log.Warnf("Guess index disabled: %v", err)
		} else {
			base = append(base, WithGuessIndex(index))
		}
	}
	if _, ok := LookupOpener(cfg.Plugins.Loader); !ok {
		log.Warnf("No %q library opener registered (have %v); plugin loading disabled", cfg.Plugins.Loader, Openers())
	}

	return NewManager(append(base, opts...)...)
}

func lookupOpenerOrNil(name string) Opener {
	o, _ := LookupOpener(name)
	return o
}
