// Package native opens C ABI plugin libraries with dlopen through purego,
// without cgo. Importing it registers the "native" opener:
//
//	import _ "github.com/platinummonkey/pdalplugins/pkg/plugins/native"
//
// A plugin exports PF_initPlugin and, to register stages, the writable
// function pointer PF_registerObject:
//
//	PF_RegisterFunc PF_registerObject;
//
//	PF_ExitFunc PF_initPlugin(void) {
//	    PF_RegisterParams p = {{1, 0}, las_create, las_destroy};
//	    PF_registerObject("readers.las", &p);
//	    return las_exit;
//	}
//
// The host fills PF_registerObject before each PF_initPlugin call. Init calls
// from all libraries are serialized. Registrations made after PF_initPlugin
// returns are rejected.
package native

import "github.com/platinummonkey/pdalplugins/pkg/plugins"

// Name is the opener name used with PDAL_PLUGINS_LOADER.
const Name = "native"

// RegisterSymbol is the optional writable slot for the host callback.
const RegisterSymbol = "PF_registerObject"

func init() {
	plugins.RegisterOpener(Name, Opener{})
}
