package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"tpv-fleet/internal/interfaces"

	"github.com/gorilla/mux"
)

// StatsSource feeds the /stats endpoint.
type StatsSource interface {
	HealthStatus() map[string]interface{}
}

// Server is the private operational endpoint, separate from the public API so
// probes and dashboards never compete with terminal traffic.
type Server struct {
	server *http.Server

	stats     StatsSource
	publisher interfaces.MessagePublisher
	logger    interfaces.Logger
}

func NewServer(addr string, stats StatsSource, publisher interfaces.MessagePublisher, logger interfaces.Logger) *Server {
	s := &Server{
		stats:     stats,
		publisher: publisher,
		logger:    logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// handleHealthz answers liveness: the process is up and serving.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz answers readiness: the push channel to the fleet is connected.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.publisher.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "mqtt disconnected",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleStats dumps the live counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.HealthStatus())
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Start blocks serving the ops endpoints.
func (s *Server) Start() error {
	s.logger.Infof("ops server listening on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
