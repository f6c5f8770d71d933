// Package cli provides the pdal-plugins command-line interface for
// inspecting and exercising the plugin search path.
//
// # Commands
//
// paths: Print the plugin search path
//
//	pdal-plugins paths
//
// list: Load plugins and list the registered stages
//
//	pdal-plugins list -type reader -o json
//
// load: Load one plugin library
//
//	pdal-plugins load /opt/pdal/plugins/libpdal_plugin_writer_text.so
//
// create: Create and destroy a stage, loading its plugin on demand
//
//	pdal-plugins create readers.las
//
// watch: Load every plugin, then keep loading libraries dropped into the
// search path while serving the introspection API
//
//	pdal-plugins watch -listen :9090
//
// # Configuration
//
// Settings come from the environment (see pkg/config) and, with -config,
// from a YAML file:
//
//	pdal-plugins -config /etc/pdal/plugins.yaml list
package cli
