// Package plugintest provides in-memory plugin libraries for tests.
//
// An Opener maps library base names to fake Libraries. Tests still create
// real files (WriteLibraryFile) so discovery and canonicalization run against
// the filesystem, while opening never touches dlopen.
package plugintest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/platinummonkey/pdalplugins/pkg/plugins"
)

// ErrNoLibrary is returned by Opener.Open for unknown base names.
var ErrNoLibrary = errors.New("plugintest: no such library")

// Library is a fake shared library.
type Library struct {
	// Init is returned for plugins.EntrySymbol. Nil means the symbol is missing.
	Init plugins.InitFunc

	closed atomic.Int32
}

// InitFunc returns l.Init for the entry symbol.
func (l *Library) InitFunc(symbol string) (plugins.InitFunc, error) {
	if symbol != plugins.EntrySymbol || l.Init == nil {
		return nil, plugins.ErrSymbolNotFound
	}
	return l.Init, nil
}

// Close records the unload.
func (l *Library) Close() error {
	l.closed.Add(1)
	return nil
}

// Closed returns how many times the library was closed.
func (l *Library) Closed() int {
	return int(l.closed.Load())
}

// Opener opens fake libraries by base file name.
type Opener struct {
	mu        sync.Mutex
	libraries map[string]*Library
	opens     map[string]int
	paths     []string

	// OnOpen, when set, runs before each open with the canonical path.
	OnOpen func(path string)
}

// NewOpener creates an empty opener.
func NewOpener() *Opener {
	return &Opener{
		libraries: make(map[string]*Library),
		opens:     make(map[string]int),
	}
}

// Add makes lib available under base name.
func (o *Opener) Add(name string, lib *Library) *Library {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.libraries[name] = lib
	return lib
}

// Open implements plugins.Opener.
func (o *Opener) Open(path string) (plugins.Library, error) {
	if o.OnOpen != nil {
		o.OnOpen(path)
	}

	name := filepath.Base(path)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens[name]++
	o.paths = append(o.paths, path)

	lib, ok := o.libraries[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNoLibrary)
	}
	return lib, nil
}

// Opens returns how many times the base name was opened.
func (o *Opener) Opens(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[name]
}

// TotalOpens returns the number of Open calls.
func (o *Opener) TotalOpens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.paths)
}

// OpenedPaths returns the paths passed to Open, in call order.
func (o *Opener) OpenedPaths() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.paths...)
}

// Stage returns valid registration params for the host version whose
// factory returns h. destroyed, if non-nil, receives every destroyed handle.
func Stage(h plugins.Handle, destroyed *[]plugins.Handle) plugins.RegisterParams {
	var mu sync.Mutex
	return plugins.RegisterParams{
		Version:    plugins.HostVersion,
		CreateFunc: func() plugins.Handle { return h },
		DestroyFunc: func(got plugins.Handle) {
			if destroyed == nil {
				return
			}
			mu.Lock()
			*destroyed = append(*destroyed, got)
			mu.Unlock()
		},
	}
}

// StageInit returns an entry point registering keys, each creating a
// distinct non-zero handle, and an exit hook returning exit.
func StageInit(exit int, keys ...string) plugins.InitFunc {
	return func(r plugins.Registrar) plugins.ExitFunc {
		for i, key := range keys {
			r.Register(key, Stage(plugins.Handle(i+1), nil))
		}
		return func() int { return exit }
	}
}

// LibraryName returns the conventional file name for a plugin.
func LibraryName(t plugins.PluginType, name string) string {
	return t.Prefix() + "_" + name + plugins.LibraryExtension()
}

// WriteLibraryFile creates an empty file named name in dir and returns its path.
func WriteLibraryFile(tb testing.TB, dir, name string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}

// CountingDirReader wraps plugins.OSDirReader and counts ReadDir calls.
type CountingDirReader struct {
	plugins.OSDirReader

	mu    sync.Mutex
	reads map[string]int
}

// ReadDir lists name and records the call.
func (r *CountingDirReader) ReadDir(name string) ([]fs.DirEntry, error) {
	r.mu.Lock()
	if r.reads == nil {
		r.reads = make(map[string]int)
	}
	r.reads[name]++
	r.mu.Unlock()
	return r.OSDirReader.ReadDir(name)
}

// Reads returns how many times dir was listed.
func (r *CountingDirReader) Reads(dir string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[dir]
}

// TotalReads returns the number of ReadDir calls.
func (r *CountingDirReader) TotalReads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.reads {
		n += c
	}
	return n
}
