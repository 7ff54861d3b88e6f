package main

import (
	"log"
	"log/slog"
	"os"

	"whatsapp-session-service/logger"
	"whatsapp-session-service/src/config"
	"whatsapp-session-service/src/server"
)

// @title WhatsApp Session Service API
// @version 1.0
// @description Manages the lifecycle of browser-driven WhatsApp sessions: QR authentication, credential backup, recovery, and message dispatch.

func main() {
	cfg := loadConfig()
	setupLogging(cfg.LogLevel)

	srv, err := server.NewServer(&cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Run(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}

func loadConfig() config.GlobalConfig {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func setupLogging(level string) {
	logger.Init()

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})))
}
