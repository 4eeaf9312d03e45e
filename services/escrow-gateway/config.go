package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries the gateway's environment-driven settings. The gateway is a
// separate process from the custody daemon and only ever talks to it over
// JSON-RPC.
type Config struct {
	ListenAddress string
	DatabasePath  string
	NodeURL       string
	NodeAuthToken string
	APIKey        string
	PollInterval  time.Duration
	BatchSize     int
}

// LoadConfigFromEnv reads gateway settings from the environment, applying the
// defaults a local deployment expects.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddress: envOr("GATEWAY_LISTEN", ":8081"),
		DatabasePath:  envOr("GATEWAY_DB", "gateway.db"),
		NodeURL:       envOr("GATEWAY_NODE_URL", "http://localhost:8080"),
		NodeAuthToken: strings.TrimSpace(os.Getenv("GATEWAY_NODE_TOKEN")),
		APIKey:        strings.TrimSpace(os.Getenv("GATEWAY_API_KEY")),
		PollInterval:  5 * time.Second,
		BatchSize:     100,
	}
	if raw := strings.TrimSpace(os.Getenv("GATEWAY_POLL_INTERVAL")); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("gateway: invalid GATEWAY_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = interval
	}
	if raw := strings.TrimSpace(os.Getenv("GATEWAY_BATCH_SIZE")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("gateway: invalid GATEWAY_BATCH_SIZE: %q", raw)
		}
		cfg.BatchSize = size
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway: GATEWAY_API_KEY is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
