package plugins

// Registry maps stage type keys to version-checked factories.
// First registration wins; later registrations for a key are rejected.
//
// Registry is not safe for concurrent use on its own. Manager serializes
// access with its mutex.
type Registry struct {
	version Version
	entries RegistrationMap
}

// NewRegistry creates an empty registry accepting plugins built against version.
func NewRegistry(version Version) *Registry {
	return &Registry{
		version: version,
		entries: make(RegistrationMap),
	}
}

// Register stores params under key. It returns false, leaving the registry
// untouched, when params is incomplete, its major version differs from the
// host's, or key is already registered.
func (r *Registry) Register(key string, params RegisterParams) bool {
	if !params.Valid() {
		return false
	}
	if params.Version.Major != r.version.Major {
		return false
	}
	if _, exists := r.entries[key]; exists {
		return false
	}

	r.entries[key] = params
	return true
}

// Lookup returns the factories registered for key.
func (r *Registry) Lookup(key string) (RegisterParams, bool) {
	params, ok := r.entries[key]
	return params, ok
}

// Len returns the number of registered stage types.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Snapshot returns a point-in-time copy of the registrations.
func (r *Registry) Snapshot() RegistrationMap {
	out := make(RegistrationMap, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Reset drops every registration.
func (r *Registry) Reset() {
	r.entries = make(RegistrationMap)
}

// Version returns the host version the registry checks against.
func (r *Registry) Version() Version {
	return r.version
}
