package plugins

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Opener wraps the platform shared-library primitive.
type Opener interface {
	Open(path string) (Library, error)
}

// Library is an open shared library. Its code stays valid until Close.
type Library interface {
	// InitFunc resolves the exported entry point named symbol.
	InitFunc(symbol string) (InitFunc, error)
	Close() error
}

// libraryEntry is either a loaded library or a reservation held by an
// in-flight Load for the same canonical path.
type libraryEntry struct {
	lib Library
}

// LibraryLoader owns loaded libraries keyed by canonical path and
// guarantees at most one load per physical file. Erasing an entry (only
// CloseAll does) unloads the library.
type LibraryLoader struct {
	opener    Opener
	mu        *sync.Mutex
	libraries map[string]*libraryEntry
	log       *logrus.Logger
}

// NewLibraryLoader creates a loader. mu is the lock guarding the library map;
// pass the owner's lock to share one critical section, or nil for a private one.
func NewLibraryLoader(opener Opener, mu *sync.Mutex, log *logrus.Logger) *LibraryLoader {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	if log == nil {
		log = logrus.New()
	}

	return &LibraryLoader{
		opener:    opener,
		mu:        mu,
		libraries: make(map[string]*libraryEntry),
		log:       log,
	}
}

// Canonicalize returns the absolute, symlink-resolved form of path.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks: %w", err)
	}
	return resolved, nil
}

// Load opens the library at path. If the canonical path is already tracked
// it returns (nil, nil). The returned Library is a non-owning reference; the
// loader keeps it open for the rest of the session.
func (l *LibraryLoader) Load(path string) (Library, error) {
	canonical, err := Canonicalize(path)
	if err != nil {
		return nil, err
	}

	lib, err := l.load(canonical)
	if errors.Is(err, ErrAlreadyLoaded) {
		return nil, nil
	}
	return lib, err
}

func (l *LibraryLoader) load(canonical string) (Library, error) {
	if l.opener == nil {
		return nil, fmt.Errorf("no library opener configured: %w", ErrUnsupported)
	}

	l.mu.Lock()
	if _, exists := l.libraries[canonical]; exists {
		l.mu.Unlock()
		return nil, ErrAlreadyLoaded
	}
	entry := &libraryEntry{}
	l.libraries[canonical] = entry
	l.mu.Unlock()

	lib, err := l.opener.Open(canonical)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil || lib == nil {
		if l.libraries[canonical] == entry {
			delete(l.libraries, canonical)
		}
		if err == nil {
			err = errors.New("opener returned no library")
		}
		return nil, fmt.Errorf("failed to load %s: %w", canonical, err)
	}

	// A shutdown may have swapped the map while we were opening; the
	// library then belongs to the new cycle.
	if current, ok := l.libraries[canonical]; ok && current != entry {
		lib.Close()
		return nil, ErrAlreadyLoaded
	}
	entry.lib = lib
	l.libraries[canonical] = entry

	l.log.Debugf("Loaded library: %s", canonical)
	return lib, nil
}

// Tracked reports whether path's canonical form is loaded or being loaded.
func (l *LibraryLoader) Tracked(path string) bool {
	canonical, err := Canonicalize(path)
	if err != nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, exists := l.libraries[canonical]
	return exists
}

// Paths returns the canonical paths of loaded libraries, sorted.
func (l *LibraryLoader) Paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	paths := make([]string, 0, len(l.libraries))
	for path, entry := range l.libraries {
		if entry.lib != nil {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of loaded libraries.
func (l *LibraryLoader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadedLocked()
}

// loadedLocked counts loaded libraries. The caller must hold l.mu.
func (l *LibraryLoader) loadedLocked() int {
	n := 0
	for _, entry := range l.libraries {
		if entry.lib != nil {
			n++
		}
	}
	return n
}

// detach swaps out the library map. The caller must hold l.mu.
func (l *LibraryLoader) detach() map[string]*libraryEntry {
	libs := l.libraries
	l.libraries = make(map[string]*libraryEntry)
	return libs
}

// CloseAll unloads every tracked library.
func (l *LibraryLoader) CloseAll() error {
	l.mu.Lock()
	libs := l.detach()
	l.mu.Unlock()

	return l.closeLibraries(libs)
}

func (l *LibraryLoader) closeLibraries(libs map[string]*libraryEntry) error {
	var errs []error
	for path, entry := range libs {
		if entry.lib == nil {
			continue
		}
		if err := entry.lib.Close(); err != nil {
			l.log.Warnf("Failed to unload library %s: %v", path, err)
			errs = append(errs, fmt.Errorf("unload %s: %w", path, err))
			continue
		}
		l.log.Debugf("Unloaded library: %s", path)
	}
	return errors.Join(errs...)
}
