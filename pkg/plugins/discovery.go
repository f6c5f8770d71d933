package plugins

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// EnvDriverPath names the colon-separated plugin search path variable.
	EnvDriverPath = "PDAL_DRIVER_PATH"

	// EntrySymbol is the entry point every plugin library exports.
	EntrySymbol = "PF_initPlugin"
)

// InstallPath is the compiled-in plugin install directory. Override with
// -ldflags "-X github.com/platinummonkey/pdalplugins/pkg/plugins.InstallPath=..."
var InstallPath = "/usr/local/lib/pdal/plugins"

// DefaultSearchPaths returns the search list used when PDAL_DRIVER_PATH is unset.
func DefaultSearchPaths() []string {
	return []string{
		InstallPath,
		"/usr/local/lib",
		"./lib",
		"../lib",
		"../bin",
	}
}

// LibraryExtension returns the shared library suffix for the running platform.
func LibraryExtension() string {
	return libraryExtension(runtime.GOOS)
}

func libraryExtension(goos string) string {
	switch goos {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

// TypeFromFilename returns the plugin type implied by a filename prefix.
// Matching is case-insensitive.
func TypeFromFilename(name string) (PluginType, bool) {
	lower := strings.ToLower(filepath.Base(name))
	for _, t := range AllPluginTypes() {
		if strings.HasPrefix(lower, t.Prefix()) {
			return t, true
		}
	}
	return 0, false
}

// MatchesType reports whether name follows the naming convention for t.
func MatchesType(name string, t PluginType) bool {
	implied, ok := TypeFromFilename(name)
	return ok && implied == t
}

// trailingToken returns the part of the filename stem after its last
// underscore, e.g. "las" for libpdal_plugin_reader_las.so.
func trailingToken(name string) (string, bool) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	i := strings.LastIndex(stem, "_")
	if i < 0 || i == len(stem)-1 {
		return "", false
	}
	return stem[i+1:], true
}

// splitDriverName splits "readers.las" into its category and name.
func splitDriverName(driverName string) (category, name string, ok bool) {
	parts := strings.Split(driverName, ".")
	if len(parts) < 2 || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// DirReader lists directories. It is injectable for tests.
type DirReader interface {
	ReadDir(name string) ([]fs.DirEntry, error)
	Stat(name string) (fs.FileInfo, error)
}

// OSDirReader reads the real filesystem.
type OSDirReader struct{}

func (OSDirReader) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }
func (OSDirReader) Stat(name string) (fs.FileInfo, error)      { return os.Stat(name) }

// Discoverer resolves the plugin search path and enumerates candidate files.
type Discoverer struct {
	getenv      func(string) string
	reader      DirReader
	searchPaths []string
	extension   string
	index       *GuessIndex
	log         *logrus.Logger
}

// NewDiscoverer creates a discoverer reading PDAL_DRIVER_PATH through getenv
// and listing directories through reader. Nil arguments select os.Getenv,
// OSDirReader and a default logger.
func NewDiscoverer(getenv func(string) string, reader DirReader, log *logrus.Logger) *Discoverer {
	if getenv == nil {
		getenv = os.Getenv
	}
	if reader == nil {
		reader = OSDirReader{}
	}
	if log == nil {
		log = logrus.New()
	}

	return &Discoverer{
		getenv:    getenv,
		reader:    reader,
		extension: LibraryExtension(),
		log:       log,
	}
}

// SetSearchPaths overrides environment and default resolution. Nil restores it.
func (d *Discoverer) SetSearchPaths(paths []string) {
	d.searchPaths = paths
}

// SetIndex enables the guess index. Nil disables it.
func (d *Discoverer) SetIndex(index *GuessIndex) {
	d.index = index
}

// Index returns the guess index, if any.
func (d *Discoverer) Index() *GuessIndex {
	return d.index
}

// SearchPaths returns the directories to scan, in order.
func (d *Discoverer) SearchPaths() []string {
	if d.searchPaths != nil {
		return append([]string(nil), d.searchPaths...)
	}

	if value := d.getenv(EnvDriverPath); value != "" {
		var paths []string
		for _, p := range strings.Split(value, ":") {
			if p != "" {
				paths = append(paths, p)
			}
		}
		if len(paths) > 0 {
			return paths
		}
	}

	return DefaultSearchPaths()
}

// Candidates returns every file in the search path carrying the platform
// library extension, in directory order then listing order.
func (d *Discoverer) Candidates(ctx context.Context) []string {
	var out []string
	for _, dir := range d.SearchPaths() {
		if ctx.Err() != nil {
			break
		}
		out = append(out, d.scanDir(dir)...)
	}
	return out
}

// scanDir lists the library files of one directory, skipping subdirectories.
func (d *Discoverer) scanDir(dir string) []string {
	entries, err := d.reader.ReadDir(dir)
	if err != nil {
		d.log.Debugf("Skipping plugin directory %s: %v", dir, err)
		return nil
	}

	var out []string
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if d.isDir(full, entry) {
			continue
		}
		if filepath.Ext(entry.Name()) != d.extension {
			continue
		}
		out = append(out, full)
	}
	return out
}

func (d *Discoverer) isDir(full string, entry fs.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink != 0 {
		info, err := d.reader.Stat(full)
		return err == nil && info.IsDir()
	}
	return false
}

// guessDir returns the candidates of dir whose trailing token equals name,
// in listing order.
func (d *Discoverer) guessDir(dir, name string) []string {
	if d.index != nil {
		return d.index.lookup(dir, name, d)
	}

	var out []string
	for _, path := range d.scanDir(dir) {
		if token, ok := trailingToken(path); ok && token == name {
			out = append(out, path)
		}
	}
	return out
}
