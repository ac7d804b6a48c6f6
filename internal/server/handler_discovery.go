package server

import (
	"net/http"

	"github.com/electricitymaps/carbonshift/pkg/model"
)

// Version is the server version reported by discovery and health.
const Version = "0.1.0"

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, map[string]any{
		"name":    "carbonshift",
		"version": Version,
		"endpoints": map[string]string{
			"steps":   "/api/v1/steps",
			"health":  "/api/v1/health",
			"metrics": "/metrics",
		},
	})
}

// listProbe is a minimal query used by the health check to verify the
// store answers.
func listProbe() model.ListOptions {
	return model.ListOptions{Limit: 1}
}
