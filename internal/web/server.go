// Package web serves the HTML compose form and job list.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"
	_ "time/tzdata" // zone names in the schedule form

	"github.com/abdulachik/threadbot/internal/poller"
	"github.com/abdulachik/threadbot/internal/workflow"
)

//go:embed templates/*.html
var templateFS embed.FS

// DefaultMaxUploadBytes caps a multipart form, image included.
const DefaultMaxUploadBytes = 10 << 20

// Config holds web server configuration.
type Config struct {
	Service *workflow.Service
	// Health is reported on /healthz; nil when no poller runs in-process.
	Health         *poller.Health
	Logger         *slog.Logger
	MaxUploadBytes int64
}

// Server is the front-end HTTP server.
type Server struct {
	svc       *workflow.Service
	health    *poller.Health
	logger    *slog.Logger
	maxUpload int64
	tmpl      *template.Template
	mux       *http.ServeMux
}

// New creates the server and registers its routes.
func New(cfg Config) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		svc:       cfg.Service,
		health:    cfg.Health,
		logger:    cfg.Logger,
		maxUpload: cfg.MaxUploadBytes,
		tmpl:      tmpl,
		mux:       http.NewServeMux(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}
	s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is canceled and in-flight
// requests have finished.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("web server shutdown", "error", err)
		}
	}()

	s.logger.Info("web server listening", "addr", addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	// ListenAndServe returns as soon as Shutdown starts; wait for in-flight requests.
	<-shutdownDone
	return nil
}
