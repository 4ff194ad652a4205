package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eduboard/backend/internal/config"
	"github.com/eduboard/backend/internal/server"
)

const defaultHTTPPort = 8080

func main() {
	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	slog.Info("eduboard: starting API server",
		"http_port", c.HTTP.Port,
		"admin_enabled", c.Admin.Enabled,
	)
	go s.Start()

	<-shutdown
	slog.Info("eduboard: shutdown signal received")
	s.Shutdown()
}

func loadConfig() (server.Config, error) {
	var c server.Config

	p := os.Getenv("CONFIG_PATH")
	if p == "" {
		return c, fmt.Errorf("CONFIG_PATH not set")
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = defaultHTTPPort
	}

	if err := validateConfig(c); err != nil {
		return c, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// validateConfig rejects configs that would only fail later, at the
// first infra dial, with a less obvious error.
func validateConfig(c server.Config) error {
	if c.Postgres.Addr == "" {
		return fmt.Errorf("postgres.addr is required")
	}
	if len(c.Redis.Leaderboard.Addrs) == 0 {
		return fmt.Errorf("redis.leaderboard.addrs is required")
	}
	if len(c.Redis.Pubsub.Addrs) == 0 {
		return fmt.Errorf("redis.pubsub.addrs is required")
	}
	if c.Assistant.BaseURL == "" {
		return fmt.Errorf("assistant.baseurl is required")
	}

	return nil
}
