package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/flowmesh/config"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/orchestrator"
)

// Options configures the HTTP server.
type Options struct {
	// Addr is the listen address. Defaults to ":8080".
	Addr string

	// Logger provides structured request and lifecycle logging. Defaults to
	// NoOpLogger.
	Logger logging.Logger

	// Gatherer backs the /metrics endpoint. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout time.Duration
}

// Server exposes the orchestrator over a JSON HTTP API:
//
//	POST /api/v1/workflows            submit a workflow definition
//	GET  /api/v1/workflows/{id}       run status snapshot
//	POST /api/v1/workflows/{id}/pause
//	POST /api/v1/workflows/{id}/resume
//	POST /api/v1/workflows/{id}/cancel
//	GET  /healthz
//	GET  /metrics                     when a Gatherer is configured
type Server struct {
	orch   *orchestrator.Orchestrator
	opts   Options
	logger logging.Logger
	http   *http.Server
}

// New creates a Server around the orchestrator.
func New(orch *orchestrator.Orchestrator, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:            ":8080",
		Logger:          logging.NoOpLogger{},
		ShutdownTimeout: 10 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		orch:   orch,
		opts:   opts,
		logger: opts.Logger,
	}

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	if s.opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/workflows", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/{workflowID}", s.handleStatus)
		r.Post("/{workflowID}/pause", s.handlePause)
		r.Post("/{workflowID}/resume", s.handleResume)
		r.Post("/{workflowID}/cancel", s.handleCancel)
	})

	return r
}

// requestLogger records method, path, status and latency for every request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmit accepts a JSON workflow definition, builds and validates the
// graph, and starts execution in the background. Responds 202 with the
// workflow ID; clients poll the status endpoint for progress.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var def config.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	wf, err := def.Build()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	go func() {
		if err := s.orch.Execute(context.Background(), wf); err != nil {
			s.logger.Error("Workflow execution failed", "workflow_id", wf.ID, "error", err.Error())
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": wf.ID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.orch.Status(chi.URLParam(r, "workflowID"))
	if err != nil {
		if errors.Is(err, orchestrator.ErrWorkflowNotFound) {
			writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.orch.Pause(chi.URLParam(r, "workflowID"))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.orch.Resume(chi.URLParam(r, "workflowID"))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.orch.Cancel(chi.URLParam(r, "workflowID"))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Serve listens until the context is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("Server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Server shutting down")
	return s.http.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
