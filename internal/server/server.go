// Package server exposes the task manager over HTTP: run submission, task
// queries and abort, plus live task feeds over SSE and websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sephirothchang/CXVoyager-sub000/internal/auth"
	"github.com/sephirothchang/CXVoyager-sub000/internal/config"
	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
	"github.com/sephirothchang/CXVoyager-sub000/internal/tasks"
)

// Server serves the web API.
type Server struct {
	manager  *tasks.Manager
	cfg      *config.Config
	signer   *auth.Signer
	logger   *zap.Logger
	upgrader websocket.Upgrader
	http     *http.Server
}

// New creates a Server over manager. cfg may be nil for defaults; the bearer
// guard is active when cfg.Web.JWTSecret is set.
func New(manager *tasks.Manager, cfg *config.Config, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		manager: manager,
		cfg:     cfg,
		signer:  auth.NewSigner(cfg.Web.JWTSecret),
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stages", s.handleStages)
	mux.HandleFunc("GET /defaults", s.handleDefaults)
	mux.HandleFunc("POST /run", s.guard(s.handleRun))
	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("DELETE /tasks/{id}", s.guard(s.handleDeleteTask))
	mux.HandleFunc("POST /tasks/{id}/abort", s.guard(s.handleAbortTask))
	mux.HandleFunc("GET /tasks/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /tasks/{id}/ws", s.handleWS)

	return s.logRequests(mux)
}

// Start listens on addr and serves in the background. The listen error, if
// any, is returned synchronously.
func (s *Server) Start(addr string) (net.Addr, error) {
	if addr == "" {
		addr = s.cfg.Web.Addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("web api listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, orchestrator.ListInfo())
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, orchestrator.LoadDefaults(s.cfg, s.logger))
}

// runRequest is the body of POST /run. Absent fields take the web defaults.
type runRequest struct {
	Stages  []string                 `json:"stages"`
	Options *orchestrator.RunOptions `json:"options"`
}

type listResponse struct {
	Items []tasks.Record `json:"items"`
	Total int            `json:"total"`
}

type abortRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	defaults := orchestrator.LoadDefaults(s.cfg, s.logger)
	selected := defaults.Stages
	if req.Stages != nil {
		var err error
		selected, err = orchestrator.Resolve(req.Stages)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	opts := defaults.RunOptions.RunOptions()
	if req.Options != nil {
		opts = *req.Options
	}

	rec, err := s.manager.Submit(selected, opts)
	switch {
	case errors.Is(err, orchestrator.ErrNoStages):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, tasks.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	status := tasks.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(status))
		return
	}
	items := s.manager.List(status)
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: len(items)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	rec, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(r.PathValue("id")); err != nil {
		writeTaskError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAbortTask(w http.ResponseWriter, r *http.Request) {
	var req abortRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	rec, err := s.manager.Abort(r.PathValue("id"), req.Reason)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// guard rejects requests without a valid bearer token when a secret is
// configured.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.signer.Enabled() {
			next(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.signer.Parse(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.logger.Debug("authorized request",
			zap.String("operator", claims.Operator),
			zap.String("path", r.URL.Path))
		next(w, r)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

// decodeBody decodes an optional JSON body; an empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

func writeTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, tasks.ErrAbortNotAccepted):
		writeError(w, http.StatusConflict, "Task already finished")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
