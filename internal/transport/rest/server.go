// Package rest provides the HTTP API and the built-in web UI.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/radioqueue/internal/domain/library"
	"github.com/edumarques81/radioqueue/internal/domain/queue"
	"github.com/edumarques81/radioqueue/internal/infra/history"
	"github.com/edumarques81/radioqueue/internal/infra/telnet"
	"github.com/edumarques81/radioqueue/internal/version"
)

// QueueService is the subset of queue.Service the handlers use.
type QueueService interface {
	Enqueue(ctx context.Context, req queue.Request) (*queue.Result, error)
	Skip(ctx context.Context) (string, error)
	NowPlaying(ctx context.Context) (*queue.NowPlaying, error)
	Ping(ctx context.Context) error
}

// FileLister lists queueable library files.
type FileLister interface {
	List() ([]string, error)
}

// HistoryReader returns recent enqueue requests.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Deps are the collaborators of the HTTP server. History, Socket and
// StaticDir are optional. An empty CORSOrigins allows any origin.
type Deps struct {
	Queue       QueueService
	Files       FileLister
	History     HistoryReader
	Socket      http.Handler
	StaticDir   string
	CORSOrigins []string
}

// Server routes HTTP requests to the queue service.
type Server struct {
	deps    Deps
	mux     *http.ServeMux
	handler http.Handler
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.routes()
	s.handler = corsMiddleware(deps.CORSOrigins, s.mux)
	return s
}

func (s *Server) routes() {
	if s.deps.Socket != nil {
		// Polling uses GET and POST, websocket upgrades use GET.
		s.mux.Handle("GET /socket.io/", s.deps.Socket)
		s.mux.Handle("POST /socket.io/", s.deps.Socket)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/version", s.handleVersion)
	s.mux.HandleFunc("GET /api/v1/now", s.handleNowJSON)
	s.mux.HandleFunc("GET /api/v1/history", s.handleHistory)

	s.mux.HandleFunc("GET /files", s.handleFiles)
	s.mux.HandleFunc("POST /enqueue", s.handleEnqueue)
	s.mux.HandleFunc("POST /skip", s.handleSkip)
	s.mux.HandleFunc("GET /now", s.handleNow)

	if s.deps.StaticDir != "" {
		log.Info().Str("dir", s.deps.StaticDir).Msg("Serving static files")
		s.mux.Handle("GET /", s.staticHandler(s.deps.StaticDir))
	} else {
		s.mux.HandleFunc("GET /{$}", s.handleIndex)
	}
}

// ServeHTTP implements http.Handler with CORS headers on every response.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Queue.Ping(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "backend": "disconnected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": "connected"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.GetInfo())
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.deps.Files.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	req, err := decodeEnqueue(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	res, err := s.deps.Queue.Enqueue(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"out":      res.Output,
		"queued":   res.Item,
		"ref":      res.Reference,
		"resolved": res.Resolved,
	})
}

// decodeEnqueue accepts a JSON body or form values.
func decodeEnqueue(w http.ResponseWriter, r *http.Request) (queue.Request, error) {
	var req queue.Request
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			return req, errors.New("invalid JSON body")
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return req, errors.New("invalid form body")
	}
	req.Name = r.PostFormValue("name")
	req.URL = r.PostFormValue("url")
	return req, nil
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Queue.Skip(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "out": out})
}

func (s *Server) handleNow(w http.ResponseWriter, r *http.Request) {
	np, err := s.deps.Queue.NowPlaying(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(np.Raw))
}

func (s *Server) handleNowJSON(w http.ResponseWriter, r *http.Request) {
	np, err := s.deps.Queue.NowPlaying(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, np)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "history disabled"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// staticHandler serves dir, falling back to index.html for SPA routes.
func (s *Server) staticHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.FromSlash(r.URL.Path))
		if r.URL.Path == "/" {
			path = filepath.Join(dir, "index.html")
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrMissingItem),
		errors.Is(err, queue.ErrAmbiguousItem),
		errors.Is(err, library.ErrInvalidName),
		errors.Is(err, telnet.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	case telnet.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
