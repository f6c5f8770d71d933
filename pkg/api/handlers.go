package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/platinummonkey/pdalplugins/pkg/httputil"
	"github.com/platinummonkey/pdalplugins/pkg/plugins"
)

// Stage describes one registered stage type
type Stage struct {
	Key     string          `json:"key" yaml:"key"`
	Version plugins.Version `json:"version" yaml:"version"`
}

// StagesResponse is the body of GET /stages
type StagesResponse struct {
	Stages []Stage `json:"stages" yaml:"stages"`
}

// LibrariesResponse is the body of GET /libraries
type LibrariesResponse struct {
	Libraries []string `json:"libraries"`
}

// PathsResponse is the body of GET /paths
type PathsResponse struct {
	SearchPaths []string `json:"search_paths"`
}

// LoadResponse is the body of POST /load
type LoadResponse struct {
	Type   string `json:"type"`
	Loaded int    `json:"loaded"`
}

// Stages returns the registrations of regs sorted by key. A non-empty
// category ("readers") keeps only keys in it.
func Stages(regs plugins.RegistrationMap, category string) []Stage {
	stages := make([]Stage, 0, len(regs))
	for key, params := range regs {
		if category != "" && !strings.HasPrefix(key, category+".") {
			continue
		}
		stages = append(stages, Stage{Key: key, Version: params.Version})
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Key < stages[j].Key })
	return stages
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, map[string]string{"status": "ok"})
}

func (s *Server) listStages(w http.ResponseWriter, r *http.Request) {
	category := ""
	if raw := httputil.QueryValue(r, "type", ""); raw != "" {
		t, err := plugins.ParsePluginType(raw)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err)
			return
		}
		category = t.String() + "s"
	}

	httputil.WriteOK(w, StagesResponse{Stages: Stages(s.manager.RegistrationMap(), category)})
}

func (s *Server) getStage(w http.ResponseWriter, r *http.Request) {
	key, ok := httputil.RequirePathVar(w, r, "key")
	if !ok {
		return
	}

	params, found := s.manager.RegistrationMap()[key]
	if !found {
		httputil.WriteErrorf(w, http.StatusNotFound, "stage not registered: %s", key)
		return
	}
	httputil.WriteOK(w, Stage{Key: key, Version: params.Version})
}

func (s *Server) listLibraries(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, LibrariesResponse{Libraries: s.manager.LoadedLibraries()})
}

func (s *Server) listPaths(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, PathsResponse{SearchPaths: s.manager.SearchPaths()})
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) {
	t, err := plugins.ParsePluginType(httputil.QueryValue(r, "type", ""))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	loaded := s.manager.LoadAll(r.Context(), t)
	httputil.WriteOK(w, LoadResponse{Type: t.String(), Loaded: loaded})
}
