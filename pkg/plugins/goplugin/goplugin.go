// Package goplugin opens plugins built with `go build -buildmode=plugin`.
// Importing it registers the "go" opener.
//
// A Go plugin exports its entry point as a function or variable:
//
//	func PF_initPlugin(r plugins.Registrar) plugins.ExitFunc {
//		r.Register("filters.noop", plugins.RegisterParams{...})
//		return func() int { return 0 }
//	}
//
// The Go runtime cannot unload plugins, so Close only forgets the library.
package goplugin

import (
	"fmt"
	"plugin"

	"github.com/platinummonkey/pdalplugins/pkg/plugins"
)

// Name is the opener name used with PDAL_PLUGINS_LOADER.
const Name = "go"

func init() {
	plugins.RegisterOpener(Name, Opener{})
}

// Opener opens Go plugins with the standard plugin package.
type Opener struct{}

// Open loads the plugin at path.
func (Opener) Open(path string) (plugins.Library, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open go plugin: %w", err)
	}
	return &Library{path: path, lookup: p.Lookup}, nil
}

// Library is an opened Go plugin.
type Library struct {
	path   string
	lookup func(string) (plugin.Symbol, error)
}

// InitFunc resolves symbol as an entry point.
func (l *Library) InitFunc(symbol string) (plugins.InitFunc, error) {
	sym, err := l.lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("%s in %s: %w", symbol, l.path, plugins.ErrSymbolNotFound)
	}
	return asInitFunc(sym, symbol, l.path)
}

func asInitFunc(sym plugin.Symbol, symbol, path string) (plugins.InitFunc, error) {
	switch fn := sym.(type) {
	case func(plugins.Registrar) plugins.ExitFunc:
		return fn, nil
	case plugins.InitFunc:
		return fn, nil
	case *func(plugins.Registrar) plugins.ExitFunc:
		if fn != nil && *fn != nil {
			return *fn, nil
		}
	case *plugins.InitFunc:
		if fn != nil && *fn != nil {
			return *fn, nil
		}
	default:
		return nil, fmt.Errorf("%s in %s has unexpected type %T", symbol, path, sym)
	}
	return nil, fmt.Errorf("%s in %s is nil: %w", symbol, path, plugins.ErrSymbolNotFound)
}

// Close is a no-op; Go plugins stay mapped for the life of the process.
func (l *Library) Close() error {
	return nil
}
