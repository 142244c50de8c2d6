// README: Driver-side watcher; polls pending delivery requests and optionally claims them.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"petmarket/internal/clock"
	"petmarket/internal/logger"
	"petmarket/internal/types"
)

type Config struct {
	BaseURL    string
	Token      string
	DriverID   string
	Every      time.Duration
	Timeout    time.Duration
	AutoAccept bool
	LogLevel   string
}

func main() {
	cfg := loadConfig()
	log := logger.New("dispatch-watch", cfg.LogLevel)
	if cfg.Token == "" || !types.ValidID(cfg.DriverID) {
		log.Error("usage", "detail", "-token and a valid -driver are required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := newWatcher(newAPIClient(cfg.BaseURL, cfg.Token, cfg.Timeout), types.ID(cfg.DriverID), cfg.AutoAccept, log)
	err := w.poller(cfg.Every, clock.Real{}).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("exit", "error", err)
		os.Exit(1)
	}
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("PETMARKET_API_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.Token, "token", os.Getenv("PETMARKET_TOKEN"), "Bearer token of the driver")
	flag.StringVar(&cfg.DriverID, "driver", os.Getenv("PETMARKET_DRIVER_ID"), "Driver staff id")
	flag.DurationVar(&cfg.Every, "every", envOrDefaultDuration("PETMARKET_POLL_EVERY", 5*time.Second), "Poll interval")
	flag.DurationVar(&cfg.Timeout, "timeout", envOrDefaultDuration("PETMARKET_HTTP_TIMEOUT", 10*time.Second), "Per-request timeout")
	flag.BoolVar(&cfg.AutoAccept, "accept", envOrDefaultBool("PETMARKET_AUTO_ACCEPT", false), "Accept the first request offered")
	flag.StringVar(&cfg.LogLevel, "log-level", envOrDefault("PETMARKET_LOG_LEVEL", "info"), "Log level")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

