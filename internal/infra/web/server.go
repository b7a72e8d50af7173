package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"dq-agent/internal/domain"
	"dq-agent/internal/infra/auth"
	"dq-agent/internal/infra/ws"
	"dq-agent/internal/usecase"
)

// Server is the HTTP surface of the agent service: the user-facing agent
// and task-status routes, the system ingress for the job watcher, and the
// push channel endpoints.
type Server struct {
	dispatchUC usecase.DispatchUseCase
	resultUC   usecase.ResultUseCase
	verifier   *auth.Verifier
	hub        *ws.Hub
	log        *zerolog.Logger
}

func NewServer(
	dispatchUC usecase.DispatchUseCase,
	resultUC usecase.ResultUseCase,
	verifier *auth.Verifier,
	hub *ws.Hub,
	logger *zerolog.Logger,
) *Server {
	compLog := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		dispatchUC: dispatchUC,
		resultUC:   resultUC,
		verifier:   verifier,
		hub:        hub,
		log:        &compLog,
	}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/ws", s.hub.HandleConnection)

	r.Post("/agent", s.handleAgent)
	r.Get("/task/{taskID}", s.handleTaskStatus)

	r.Post("/notify", s.handleNotify)
	r.Post("/system/glue-result", s.handleJobResult)
	r.Post("/system/glue-progress", s.handleJobProgress)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "dq-agent",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// clientIP prefers the first X-Forwarded-For hop, set by the load
// balancer in front of the service.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
