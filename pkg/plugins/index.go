package plugins

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultIndexSize is the default number of directories kept in a GuessIndex.
const DefaultIndexSize = 64

// dirIndex is one directory's candidates bucketed by trailing token.
type dirIndex struct {
	modTime time.Time
	byToken map[string][]string
}

// GuessIndex caches directory listings for best-guess lookups. An entry is
// rebuilt whenever its directory's modification time changes.
type GuessIndex struct {
	cache *lru.Cache[string, *dirIndex]
}

// NewGuessIndex creates an index holding up to size directories.
func NewGuessIndex(size int) (*GuessIndex, error) {
	if size <= 0 {
		size = DefaultIndexSize
	}
	cache, err := lru.New[string, *dirIndex](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create guess index: %w", err)
	}
	return &GuessIndex{cache: cache}, nil
}

// lookup returns the candidates of dir whose trailing token is name.
func (g *GuessIndex) lookup(dir, name string, d *Discoverer) []string {
	info, err := d.reader.Stat(dir)
	if err != nil || !info.IsDir() {
		g.cache.Remove(dir)
		return nil
	}

	if cached, ok := g.cache.Get(dir); ok && cached.modTime.Equal(info.ModTime()) {
		return cached.byToken[name]
	}

	idx := &dirIndex{
		modTime: info.ModTime(),
		byToken: make(map[string][]string),
	}
	for _, path := range d.scanDir(dir) {
		if token, ok := trailingToken(path); ok {
			idx.byToken[token] = append(idx.byToken[token], path)
		}
	}
	g.cache.Add(dir, idx)
	return idx.byToken[name]
}

// Invalidate drops the cached listing of dir.
func (g *GuessIndex) Invalidate(dir string) {
	g.cache.Remove(dir)
}

// Purge drops every cached listing.
func (g *GuessIndex) Purge() {
	g.cache.Purge()
}

// Len returns the number of cached directories.
func (g *GuessIndex) Len() int {
	return g.cache.Len()
}
