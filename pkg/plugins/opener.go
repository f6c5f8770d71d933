package plugins

import (
	"sort"
	"sync"
)

var (
	openersMu sync.RWMutex
	openers   = make(map[string]Opener)
)

// RegisterOpener makes a library opener available by name. Opener packages
// call it from init, the way database/sql drivers register.
// It panics if name is registered twice or o is nil.
func RegisterOpener(name string, o Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()

	if o == nil {
		panic("plugins: RegisterOpener opener is nil")
	}
	if _, dup := openers[name]; dup {
		panic("plugins: RegisterOpener called twice for " + name)
	}
	openers[name] = o
}

// LookupOpener returns the opener registered under name.
func LookupOpener(name string) (Opener, bool) {
	openersMu.RLock()
	defer openersMu.RUnlock()

	o, ok := openers[name]
	return o, ok
}

// Openers returns the registered opener names, sorted.
func Openers() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()

	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
