package plugins

import "errors"

var (
	// ErrAlreadyLoaded is reported when a canonical path is already tracked.
	ErrAlreadyLoaded = errors.New("library already loaded")
	// ErrSymbolNotFound is reported when a library lacks the entry point.
	ErrSymbolNotFound = errors.New("entry symbol not found")
	// ErrTypeMismatch is reported when a filename does not imply the requested type.
	ErrTypeMismatch = errors.New("filename does not match plugin type")
	// ErrInitFailed is reported when an entry point returns no exit hook.
	ErrInitFailed = errors.New("plugin initialization failed")
	// ErrUnsupported is reported by openers on platforms without dynamic loading.
	ErrUnsupported = errors.New("dynamic loading not supported on this platform")
)
