// Package api serves the capadapt admin HTTP API: health, operation status,
// adapter resolutions, cache statistics and on-demand backups.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capadapt/capadapt/internal/app"
	"github.com/capadapt/capadapt/internal/backup"
	"github.com/capadapt/capadapt/internal/config"
	"github.com/capadapt/capadapt/internal/metrics"
	"github.com/capadapt/capadapt/pkg/errors"
	"github.com/capadapt/capadapt/pkg/health"
	"github.com/capadapt/capadapt/pkg/status"
)

// Backend is what the API exposes. *app.App satisfies it.
type Backend interface {
	Caches() []app.NamedCache
	Resolutions() []app.Resolution
	Stats(ctx context.Context) (map[string]map[string]interface{}, error)
	Health(ctx context.Context) (map[string][]health.Result, error)
	Backup(ctx context.Context, names ...string) ([]*backup.Result, error)
	Tracker() *health.Tracker
	Operations() *status.Tracker
	Metrics() *metrics.Collector
}

const defaultHistoryLimit = 10

// Server provides the admin HTTP endpoints
type Server struct {
	backend Backend
	config  config.APIConfig
	logger  *slog.Logger
	handler http.Handler

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a new API server
func NewServer(cfg config.APIConfig, backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend: backend,
		config:  cfg,
		logger:  logger.With("component", "api"),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/components", s.handleHealthComponents)
	mux.HandleFunc("GET /health/live", s.handleLiveness)
	mux.HandleFunc("GET /health/ready", s.handleReadiness)
	mux.HandleFunc("POST /health/check", s.handleHealthCheck)

	mux.HandleFunc("GET /status", s.handleSystemStatus)
	mux.HandleFunc("GET /status/operations", s.handleOperations)
	mux.HandleFunc("GET /status/operations/{id}", s.handleOperation)
	mux.HandleFunc("GET /status/history", s.handleHistory)

	mux.HandleFunc("GET /adapters", s.handleAdapters)
	mux.HandleFunc("GET /caches", s.handleCaches)
	mux.HandleFunc("GET /caches/{name}/stats", s.handleCacheStats)
	mux.HandleFunc("POST /backups", s.handleBackup)

	if cfg.EnableMetrics {
		mux.Handle("GET /metrics", promhttp.HandlerFor(backend.Metrics().Registry(), promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
		}))
	}

	var handler http.Handler = mux
	handler = s.loggingMiddleware(handler)
	if cfg.EnableCORS {
		handler = corsMiddleware(handler)
	}
	s.handler = handler
	return s
}

// Handler returns the HTTP handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves in the background. It returns once the
// listener is bound.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.NewError(errors.ErrCodeInvalidState, "api server already started").
			WithComponent("api")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConnectionFailed, "failed to bind api listener").
			WithComponent("api").
			WithContext("address", s.config.Address)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	server := s.server
	go func() {
		if err := server.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listener address, empty before Start
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	s.logger.Info("Shutting down API server")
	return server.Shutdown(ctx)
}

// Health endpoint handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tracker := s.backend.Tracker()
	overall := tracker.GetOverallHealth()

	statusCode := http.StatusOK
	switch overall {
	case health.StateUnavailable:
		statusCode = http.StatusServiceUnavailable
	case health.StateDegraded, health.StateReadOnly:
		statusCode = http.StatusPartialContent
	}

	s.respondJSON(w, statusCode, map[string]interface{}{
		"status":     overall.String(),
		"timestamp":  time.Now(),
		"components": len(tracker.Components()),
	})
}

func (s *Server) handleHealthComponents(w http.ResponseWriter, r *http.Request) {
	tracker := s.backend.Tracker()
	components := make([]*health.ComponentHealth, 0)
	for _, name := range tracker.Components() {
		ch, err := tracker.GetComponentHealth(name)
		if err != nil {
			continue
		}
		components = append(components, ch)
	}
	s.respondJSON(w, http.StatusOK, components)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	overall := s.backend.Tracker().GetOverallHealth()
	ready := overall != health.StateUnavailable

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	s.respondJSON(w, statusCode, map[string]interface{}{
		"ready":     ready,
		"status":    overall.String(),
		"timestamp": time.Now(),
	})
}

// handleHealthCheck runs every cache health check now instead of waiting for
// the next interval
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	results, err := s.backend.Health(r.Context())
	if err != nil {
		s.respondError(w, statusFromError(err), err)
		return
	}

	worst := health.SeverityOK
	for _, rs := range results {
		if sev := health.Worst(rs); sev > worst {
			worst = sev
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": worst,
		"caches": results,
	})
}

// Status endpoint handlers

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.backend.Operations().GetSystemStatus())
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	operations := s.backend.Operations().GetAllOperations()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"operations": operations,
		"count":      len(operations),
		"timestamp":  time.Now(),
	})
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	operation, err := s.backend.Operations().GetOperation(r.PathValue("id"))
	if err != nil {
		s.respondError(w, statusFromError(err), err)
		return
	}
	s.respondJSON(w, http.StatusOK, operation)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest,
				errors.Newf(errors.ErrCodeInvalidConfig, "invalid limit %q", v))
			return
		}
		limit = n
	}

	history := s.backend.Operations().GetHistory(limit)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"history":   history,
		"count":     len(history),
		"limit":     limit,
		"timestamp": time.Now(),
	})
}

// Adapter and cache handlers

func (s *Server) handleAdapters(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"resolutions": s.backend.Resolutions(),
	})
}

type cacheInfo struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	State string `json:"state"`
}

func (s *Server) handleCaches(w http.ResponseWriter, r *http.Request) {
	tracker := s.backend.Tracker()
	caches := s.backend.Caches()
	out := make([]cacheInfo, len(caches))
	for i, nc := range caches {
		out[i] = cacheInfo{Name: nc.Name, Kind: nc.Kind, State: tracker.GetState(nc.Name).String()}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"caches": out,
		"count":  len(out),
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	all, err := s.backend.Stats(r.Context())
	values, ok := all[name]
	if !ok {
		if err != nil {
			s.respondError(w, statusFromError(err), err)
			return
		}
		s.respondError(w, http.StatusNotFound,
			errors.NewError(errors.ErrCodeCacheNotFound, "unknown cache: "+name))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"cache":      name,
		"statistics": values,
	})
}

type backupRequest struct {
	Caches []string `json:"caches"`
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	var req backupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !stderrors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest,
			errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid backup request"))
		return
	}

	results, err := s.backend.Backup(r.Context(), req.Caches...)
	if results == nil {
		results = []*backup.Result{}
	}
	if err != nil && len(results) == 0 {
		s.respondError(w, statusFromError(err), err)
		return
	}

	resp := map[string]interface{}{
		"results": results,
		"count":   len(results),
	}
	statusCode := http.StatusOK
	if err != nil {
		resp["error"] = err.Error()
		statusCode = http.StatusMultiStatus
	}
	s.respondJSON(w, statusCode, resp)
}

// Middleware

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("API request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Helper methods

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Error encoding JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, err error) {
	s.respondJSON(w, statusCode, map[string]interface{}{
		"error":     err.Error(),
		"code":      errors.GetCode(err),
		"timestamp": time.Now(),
	})
}

// statusFromError maps an error code to an HTTP status
func statusFromError(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeOperationNotFound, errors.ErrCodeCacheNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case errors.ErrCodeMissingConfig:
		return http.StatusConflict
	case errors.ErrCodeCircuitOpen:
		return http.StatusServiceUnavailable
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
