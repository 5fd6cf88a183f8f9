// Package server provides the HTTP API, WebSocket push and web interface
// for the encoder.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/oszuidwest/zwfm-videoencoder/internal/config"
	"github.com/oszuidwest/zwfm-videoencoder/internal/server/middleware"
	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
)

// Encoder is the process supervisor as seen by the HTTP layer.
type Encoder interface {
	Start(input string, outputs []types.OutputTarget) error
	Stop()
	Restart(ctx context.Context, input string, outputs []types.OutputTarget) error
	Status() types.Status
	Logs() []string
	LogsSince(cursor string) []types.LogEntry
	RecentLogs(limit int) []types.LogEntry
	Info() types.EncoderInfo
}

// Assets holds the embedded web interface files.
type Assets struct {
	IndexHTML string
	StyleCSS  string
	AppJS     string
}

// Options configures a Server.
type Options struct {
	Web     config.WebConfig
	Encoder Encoder
	// Tests maps a notification kind (webhook, email, log) to its test trigger.
	Tests        map[string]func() error
	EventLogPath string
	Version      func() types.VersionInfo
	AppVersion   string
	Assets       Assets
	Logger       *slog.Logger
}

// Server is the HTTP server for the encoder control panel.
type Server struct {
	opts       Options
	router     *chi.Mux
	api        huma.API
	commands   *CommandHandler
	static     map[string]staticFile
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes registered.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AppVersion == "" {
		opts.AppVersion = "dev"
	}
	if opts.Version == nil {
		opts.Version = func() types.VersionInfo { return types.VersionInfo{Current: opts.AppVersion} }
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.NewLoggingMiddleware(opts.Logger))
	router.Use(middleware.Recovery(opts.Logger))
	router.Use(chimiddleware.Compress(5))

	humaConfig := huma.DefaultConfig("ZuidWest Video Encoder API", opts.AppVersion)
	humaConfig.Info.Description = "Control API for a supervised FFmpeg encoder process"
	humaConfig.DocsPath = ""

	s := &Server{
		opts:     opts,
		router:   router,
		api:      humachi.New(router, humaConfig),
		commands: NewCommandHandler(opts.Encoder, opts.EventLogPath, opts.Tests),
		static:   newStaticFiles(opts.Assets),
		logger:   opts.Logger,
	}

	s.registerRoutes()
	router.Get("/ws", s.handleWebSocket)
	router.Get("/*", s.handleStatic)

	s.httpServer = &http.Server{
		Addr:              opts.Web.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       opts.Web.ReadTimeout,
		WriteTimeout:      opts.Web.WriteTimeout,
	}

	return s
}

// API returns the Huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting web server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.opts.Web.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	s.logger.Info("web server stopped")
	return nil
}

// ListenAndServe starts the server and shuts it down when ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}
