package server

import (
	"encoding/json"
	"net/http"

	"github.com/zeusync/tilestream/internal/core/observability/log"
)

// routes builds the HTTP surface: the observer socket, a stats snapshot and
// a liveness probe.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	if s.hub != nil {
		mux.Handle("/observe", s.hub.Handler())
	}
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Stats()); err != nil {
		s.logger.Debug("Failed to write stats", log.Error(err))
	}
}
