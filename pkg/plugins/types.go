package plugins

import (
	"fmt"
	"strings"
)

// Version is a plugin API version. Only Major is checked at registration.
type Version struct {
	Major int32 `json:"major" yaml:"major"`
	Minor int32 `json:"minor" yaml:"minor"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// HostVersion is the API version this host implements.
var HostVersion = Version{Major: 1, Minor: 0}

// Handle is an opaque stage handle produced by a CreateFunc. Zero is the null handle.
type Handle uintptr

// CreateFunc produces a new stage instance.
type CreateFunc func() Handle

// DestroyFunc releases a stage instance produced by the matching CreateFunc.
type DestroyFunc func(Handle)

// RegisterParams is what a plugin supplies for each stage type it provides.
type RegisterParams struct {
	Version     Version
	CreateFunc  CreateFunc
	DestroyFunc DestroyFunc
}

// Valid reports whether both factory functions are set.
func (p RegisterParams) Valid() bool {
	return p.CreateFunc != nil && p.DestroyFunc != nil
}

// ExitFunc is the deinitialization hook returned by a plugin's entry point.
// It returns 0 on success.
type ExitFunc func() int

// InitFunc is a plugin entry point. Registrations made through r during the
// call belong to the plugin; a nil return signals initialization failure.
type InitFunc func(r Registrar) ExitFunc

// Registrar accepts stage registrations from plugin init code.
type Registrar interface {
	Register(key string, params RegisterParams) bool
}

// RegistrationMap maps stage type keys (e.g. "readers.las") to their factories.
type RegistrationMap map[string]RegisterParams

// PluginType is the stage category a plugin file provides.
type PluginType int

const (
	PluginTypeReader PluginType = iota
	PluginTypeKernel
	PluginTypeFilter
	PluginTypeWriter
)

// FilePrefix is the lower-case filename prefix shared by every plugin library.
const FilePrefix = "libpdal_plugin_"

var pluginTypeNames = map[PluginType]string{
	PluginTypeReader: "reader",
	PluginTypeKernel: "kernel",
	PluginTypeFilter: "filter",
	PluginTypeWriter: "writer",
}

// AllPluginTypes lists every plugin type in a stable order.
func AllPluginTypes() []PluginType {
	return []PluginType{PluginTypeKernel, PluginTypeFilter, PluginTypeReader, PluginTypeWriter}
}

func (t PluginType) String() string {
	if name, ok := pluginTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PluginType(%d)", int(t))
}

// Prefix returns the filename prefix implying this type, e.g. "libpdal_plugin_reader".
func (t PluginType) Prefix() string {
	return FilePrefix + t.String()
}

// ParsePluginType accepts the singular or plural category name ("reader", "readers").
func ParsePluginType(s string) (PluginType, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	for t, n := range pluginTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown plugin type: %q", s)
}

// categoryType maps the category of a dotted stage name to a plugin type.
// Unknown categories fall back to PluginTypeReader.
func categoryType(category string) PluginType {
	switch category {
	case "readers":
		return PluginTypeReader
	case "kernels":
		return PluginTypeKernel
	case "filters":
		return PluginTypeFilter
	case "writers":
		return PluginTypeWriter
	default:
		return PluginTypeReader
	}
}
