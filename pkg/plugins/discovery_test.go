package plugins

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func TestDiscoverer_SearchPaths(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want []string
	}{
		{"unset uses defaults", "", DefaultSearchPaths()},
		{"single directory", "/opt/pdal", []string{"/opt/pdal"}},
		{"colon separated", "/a:/b:/c", []string{"/a", "/b", "/c"}},
		{"empty entries dropped", ":/a::/b:", []string{"/a", "/b"}},
		{"only separators uses defaults", "::", DefaultSearchPaths()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDiscoverer(envOf(map[string]string{EnvDriverPath: tt.env}), nil, quietLogger())
			assert.Equal(t, tt.want, d.SearchPaths())
		})
	}
}

func TestDiscoverer_SearchPathsOverride(t *testing.T) {
	d := NewDiscoverer(envOf(map[string]string{EnvDriverPath: "/from/env"}), nil, quietLogger())

	d.SetSearchPaths([]string{"/override"})
	assert.Equal(t, []string{"/override"}, d.SearchPaths())

	d.SetSearchPaths(nil)
	assert.Equal(t, []string{"/from/env"}, d.SearchPaths())
}

func TestDefaultSearchPaths(t *testing.T) {
	paths := DefaultSearchPaths()
	require.Len(t, paths, 5)
	assert.Equal(t, InstallPath, paths[0])
	assert.Equal(t, []string{"/usr/local/lib", "./lib", "../lib", "../bin"}, paths[1:])
}

func TestLibraryExtension(t *testing.T) {
	assert.Equal(t, ".dylib", libraryExtension("darwin"))
	assert.Equal(t, ".dll", libraryExtension("windows"))
	assert.Equal(t, ".so", libraryExtension("linux"))
	assert.Equal(t, ".so", libraryExtension("freebsd"))
}

func TestTypeFromFilename(t *testing.T) {
	tests := []struct {
		name   string
		want   PluginType
		wantOK bool
	}{
		{"libpdal_plugin_reader_las.so", PluginTypeReader, true},
		{"/opt/plugins/libpdal_plugin_writer_e57.dylib", PluginTypeWriter, true},
		{"LIBPDAL_PLUGIN_FILTER_noop.so", PluginTypeFilter, true},
		{"libpdal_plugin_kernel_info.dll", PluginTypeKernel, true},
		{"libpdal_plugin_stage_x.so", 0, false},
		{"libfoo.so", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TypeFromFilename(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
				assert.True(t, MatchesType(tt.name, tt.want))
			}
		})
	}

	assert.False(t, MatchesType("libpdal_plugin_reader_las.so", PluginTypeWriter))
}

func TestTrailingToken(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"libpdal_plugin_reader_las.so", "las", true},
		{"/a/b/libpdal_plugin_filter_my_filter.dylib", "filter", true},
		{"nounderscore.so", "", false},
		{"trailing_.so", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := trailingToken(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitDriverName(t *testing.T) {
	tests := []struct {
		input    string
		category string
		name     string
		wantOK   bool
	}{
		{"readers.las", "readers", "las", true},
		{"filters.a.b", "filters", "a", true},
		{".las", "", "las", true},
		{"readers", "", "", false},
		{"readers.", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			category, name, ok := splitDriverName(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.category, category)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestDiscoverer_ScanDir(t *testing.T) {
	dir := t.TempDir()
	ext := LibraryExtension()

	lib := touch(t, dir, "libpdal_plugin_reader_las"+ext)
	other := touch(t, dir, "libother"+ext)
	touch(t, dir, "README.txt")
	touch(t, dir, "libpdal_plugin_reader_las"+ext+".bak")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"+ext), 0o755))
	target := t.TempDir()
	require.NoError(t, os.Symlink(target, filepath.Join(dir, "linked"+ext)))

	d := NewDiscoverer(envOf(nil), nil, quietLogger())
	assert.ElementsMatch(t, []string{lib, other}, d.scanDir(dir))
}

func TestDiscoverer_ScanDirMissing(t *testing.T) {
	d := NewDiscoverer(envOf(nil), nil, quietLogger())
	assert.Empty(t, d.scanDir(filepath.Join(t.TempDir(), "missing")))
}

func TestDiscoverer_Candidates(t *testing.T) {
	ext := LibraryExtension()
	first, second := t.TempDir(), t.TempDir()
	a := touch(t, first, "libpdal_plugin_reader_a"+ext)
	b := touch(t, second, "libpdal_plugin_filter_b"+ext)

	d := NewDiscoverer(envOf(nil), nil, quietLogger())
	d.SetSearchPaths([]string{first, filepath.Join(first, "missing"), second})

	assert.Equal(t, []string{a, b}, d.Candidates(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, d.Candidates(ctx))
}

func TestDiscoverer_GuessDir(t *testing.T) {
	dir := t.TempDir()
	ext := LibraryExtension()
	las := touch(t, dir, "libpdal_plugin_reader_las"+ext)
	lasWriter := touch(t, dir, "libpdal_plugin_writer_las"+ext)
	touch(t, dir, "libpdal_plugin_reader_laz"+ext)

	d := NewDiscoverer(envOf(nil), nil, quietLogger())
	assert.Equal(t, []string{las, lasWriter}, d.guessDir(dir, "las"))
	assert.Empty(t, d.guessDir(dir, "e57"))
}
