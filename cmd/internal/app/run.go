package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Run loads configuration, validates the security posture, builds the
// component graph, and serves until SIGINT/SIGTERM. It returns an error
// rather than exiting so cmd/ripple keeps deferred cleanup effective.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	if err := ValidateSecurityConfig(cfg); err != nil {
		return err
	}

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}
