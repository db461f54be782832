package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/heimdex-review/internal/catalog"
	"github.com/heimdex/heimdex-review/internal/notify"
	"github.com/heimdex/heimdex-review/internal/playback"
	"github.com/heimdex/heimdex-review/internal/review"
)

const Version = "0.1.0"

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// MediaServer streams a game's video file.
type MediaServer interface {
	ServeFile(w http.ResponseWriter, r *http.Request, path string) error
}

// TagSignaler receives "tag created" notifications from the tagging surface.
type TagSignaler interface {
	TagCreated(ev notify.TagEvent)
	Stats() notify.Stats
}

type ServerConfig struct {
	Port       int
	Repository catalog.Repository
	Review     *review.Service
	Playback   *playback.Controller
	Media      MediaServer
	// Notifier is optional; without it tag events reload synchronously.
	Notifier TagSignaler
	// Events is optional; without it /playback/events is unavailable.
	Events    *EventHub
	Logger    *slog.Logger
	StartTime time.Time
	DeviceID  string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
