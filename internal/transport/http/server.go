package httpserver

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"go-live-ide/internal/contracts"
	"go-live-ide/internal/project"
)

//go:embed shell.html
var shellPage []byte

// Backend is the IDE the HTTP API drives.
type Backend interface {
	Controller
	Files() []contracts.FileEntry
	File(id string) (project.File, bool)
	CreateFile(ctx context.Context, name, content string) (project.File, error)
	UpdateFile(ctx context.Context, id, content string) (project.File, error)
	RenameFile(ctx context.Context, id, name string) (project.File, error)
	DeleteFile(ctx context.Context, id string) error
	Highlight(id string) (string, error)
}

// Config holds server configuration.
type Config struct {
	Addr     string
	AllowAll bool // allow all CORS origins
}

// Server serves the browser shell, the virtual files, the websocket and the
// REST API on one listener.
type Server struct {
	cfg        Config
	backend    Backend
	hub        *Hub
	files      func(http.Handler) http.Handler
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds the router. files is the virtual file server middleware.
func NewServer(cfg Config, backend Backend, hub *Hub, files func(http.Handler) http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		backend: backend,
		hub:     hub,
		files:   files,
		logger:  logger.With("component", "http"),
	}
	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))
	if s.files != nil {
		r.Use(s.files)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(shellPage)
	})
	// The socket outlives any request timeout.
	r.Handle("/ws", s.hub)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		registerRoutes(r, s.backend)
	})
	return r
}

// Router returns the chi router.
func (s *Server) Router() chi.Router { return s.router }

// URL returns the browser URL of the shell.
func (s *Server) URL() string {
	if s.listener != nil {
		return "http://" + s.listener.Addr().String()
	}
	return "http://" + s.cfg.Addr
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.hub.Start()
	s.logger.Info("listening", "url", s.URL())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the server and the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
