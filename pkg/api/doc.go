// Package api serves a read-mostly HTTP view of a plugin manager.
//
// Routes:
//
//	GET  /healthz             liveness
//	GET  /stages[?type=t]     registered stage keys, optionally one category
//	GET  /stages/{key}        one registration, 404 if unknown
//	GET  /libraries           canonical paths of loaded libraries
//	GET  /paths               plugin search path
//	POST /load?type=t         run LoadAll for type t
//	GET  /metrics             Prometheus exposition
package api
