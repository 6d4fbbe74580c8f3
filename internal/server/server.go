package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/eupaygrid/eupaygrid/internal/config"
	"github.com/eupaygrid/eupaygrid/internal/outbox"
	"github.com/eupaygrid/eupaygrid/internal/routes"
)

// Server wraps the Fiber application, the outbox relay, and shared
// dependencies.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	relay     *outbox.Relay
	stopRelay context.CancelFunc
	relayDone chan struct{}
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	relay, err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, relay: relay}, nil
}

// Listen starts the outbox relay and the HTTP server.
func (s *Server) Listen() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopRelay = cancel
	s.relayDone = make(chan struct{})
	go func() {
		defer close(s.relayDone)
		s.relay.Run(ctx)
	}()

	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server, then the relay.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)

	if s.stopRelay != nil {
		s.stopRelay()
		select {
		case <-s.relayDone:
		case <-ctx.Done():
		}
	}
	return err
}
