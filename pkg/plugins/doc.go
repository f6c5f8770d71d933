// Package plugins discovers, loads and tracks PDAL stage plugins.
//
// # Overview
//
// A plugin is a shared library named libpdal_plugin_<category>_<name>.<ext>
// that exports the entry point PF_initPlugin. When initialized it registers
// one or more stage types ("readers.las", "filters.noop") with a pair of
// factory functions and returns an exit hook.
//
// # Components
//
// Registry: stage type key to version-checked factories, first write wins
// LibraryLoader: at most one open library per canonical path
// Discoverer: search path resolution and candidate enumeration
// Lifecycle: entry point invocation and exit hooks
// Manager: the facade combining them behind one mutex
// Watcher: loads libraries dropped into the search path at runtime
//
// The actual shared-library primitive is an Opener. Import an opener
// package for its side effect:
//
//	import _ "github.com/platinummonkey/pdalplugins/pkg/plugins/native"   // C ABI, dlopen
//	import _ "github.com/platinummonkey/pdalplugins/pkg/plugins/goplugin" // -buildmode=plugin
//
// # Usage
//
//	m := plugins.NewManager(plugins.WithOpener(native.Opener{}))
//	defer m.Shutdown(ctx)
//
//	m.LoadAll(ctx, plugins.PluginTypeReader)
//	h := m.CreateObject(ctx, "readers.las") // guess-loads if not registered yet
//	if h != 0 {
//		defer m.Destroy("readers.las", h)
//	}
//
// # Search Path
//
// PDAL_DRIVER_PATH holds a colon-separated directory list. When unset it is
// InstallPath, /usr/local/lib, ./lib, ../lib and ../bin. Only files with the
// platform extension (.so, .dylib, .dll) are considered.
//
// # Concurrency
//
// A Manager is safe for concurrent use. Its lock is released while plugin
// code runs, so an entry point may register stages on any goroutine it waits
// for. Shutdown is the only way libraries are unloaded; Go has no
// destructors, so hosts must defer it.
package plugins
