package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"whatsapp-session-service/logger"
	"whatsapp-session-service/src/backup"
	"whatsapp-session-service/src/config"
	"whatsapp-session-service/src/db"
	"whatsapp-session-service/src/rabbitmq"
	"whatsapp-session-service/src/repository"
	"whatsapp-session-service/src/router"
	"whatsapp-session-service/src/service"
	"whatsapp-session-service/src/waclient"
)

// Server represents the HTTP server and every backing component of the
// session service.
type Server struct {
	config    *config.GlobalConfig
	database  *db.DB
	publisher *rabbitmq.EventPublisher
	manager   *service.Manager
	http      *http.Server

	sweeperCancel   context.CancelFunc
	shutdownHandler ShutdownHandlerInterface
}

// NewServer creates a new server instance with all backing stores wired.
func NewServer(cfg *config.GlobalConfig) (*Server, error) {
	database, err := db.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisClient, err := backup.NewClient(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	publisher, err := rabbitmq.NewEventPublisher(cfg.RabbitURL, config.SessionEventsExchange)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	creds, err := waclient.NewCredentialStore(cfg.AuthDataDir)
	if err != nil {
		database.Close()
		publisher.Close()
		return nil, fmt.Errorf("failed to prepare credential store: %w", err)
	}

	manager := service.NewManager(
		repository.NewSessionRepository(database),
		backup.NewRedisStore(redisClient),
		creds,
		waclient.NewBridgeFactory(cfg.WABridgeAddr, creds),
		waclient.NewIdentityClient(cfg.UsersServiceAddr),
		publisher,
		service.Default(),
	)

	server := &Server{
		config:    cfg,
		database:  database,
		publisher: publisher,
		manager:   manager,
	}
	server.shutdownHandler = NewShutdownHandler(server)
	return server, nil
}

// Run starts the server with graceful shutdown using ShutdownHandler.
func (s *Server) Run() error {
	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, syscall.SIGINT, syscall.SIGTERM)

	s.startBackgroundWork()
	serverDone := s.startServerGoroutine()

	return s.shutdownHandler.HandleShutdown(serverDone, osSignals)
}

// startBackgroundWork launches startup recovery and the cleanup sweeper.
// Recovery runs detached so the HTTP surface comes up immediately.
func (s *Server) startBackgroundWork() {
	sweepCtx, cancel := context.WithCancel(context.Background())
	s.sweeperCancel = cancel

	go func() {
		if _, err := s.manager.RunStartupRecovery(context.Background()); err != nil {
			slog.Error("Startup recovery failed", "error", err)
		}
	}()
	go s.manager.StartSweeper(sweepCtx)
}

// startServerGoroutine starts the HTTP server in a goroutine and returns a
// channel for errors.
func (s *Server) startServerGoroutine() chan error {
	serverDone := make(chan error, 1)

	go func() {
		r := router.NewRouter(s.manager, s.database, logger.Logger)
		s.http = &http.Server{
			Addr:    fmt.Sprintf("%s:%s", s.config.GetHost(), s.config.GetPort()),
			Handler: r,
		}

		slog.Info("Starting whatsapp session service",
			"host", s.config.GetHost(),
			"port", s.config.GetPort())

		serverDone <- s.startServer()
	}()

	return serverDone
}

func (s *Server) startServer() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
