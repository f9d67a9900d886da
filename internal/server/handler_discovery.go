package server

import (
	"net/http"

	"github.com/me/framesched/internal/version"
)

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	APIVersion  string         `json:"api_version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "framesched API",
		Version:     version.Version,
		APIVersion:  "v1",
		Description: "Results of frame scheduling simulations: runs, task history and scheduled boxes",
		Endpoints: []endpointInfo{
			{"/api/v1/runs", []string{"GET"}, "List stored runs, newest first"},
			{"/api/v1/runs/{id}", []string{"GET", "DELETE"}, "Single run with counters and configuration"},
			{"/api/v1/runs/{id}/history", []string{"GET"}, "Completed tasks in completion order (paginated)"},
			{"/api/v1/runs/{id}/boxes", []string{"GET"}, "Scheduled boxes keyed by image name"},
			{"/api/v1/runs/{id}/groups", []string{"GET"}, "Average and worst response time per depth group"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
