package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	DefaultInterval   = 10 * time.Second
	DefaultRPCTimeout = 10 * time.Second
)

// Validate checks everything that must hold before the process may start.
// Any error returned here is fatal; nothing is half-started on bad config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if strings.TrimSpace(cfg.RPC.Address) == "" {
		return fmt.Errorf("rpc.address must be set")
	}
	cookie := strings.TrimSpace(cfg.RPC.CookieFile)
	user := strings.TrimSpace(cfg.RPC.User)
	if cookie != "" && user != "" {
		return fmt.Errorf("rpc.cookie_file and rpc.user are mutually exclusive")
	}
	if cookie == "" && user == "" {
		return fmt.Errorf("rpc auth missing: set rpc.cookie_file or rpc.user/rpc.password")
	}
	if cookie != "" {
		if _, err := os.Stat(cookie); err != nil {
			return fmt.Errorf("rpc.cookie_file: %w", err)
		}
	}
	if _, err := ParseDurationOrDefault("rpc.timeout", cfg.RPC.Timeout, DefaultRPCTimeout); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Nats.Address) == "" {
		return fmt.Errorf("nats.address must be set")
	}
	if strings.TrimSpace(cfg.Nats.Username) == "" &&
		(strings.TrimSpace(cfg.Nats.Password) != "" || strings.TrimSpace(cfg.Nats.PasswordFile) != "") {
		return fmt.Errorf("nats password set without nats.username")
	}

	if strings.TrimSpace(cfg.Metrics.Address) == "" {
		return fmt.Errorf("metrics.address must be set")
	}

	iv, err := ParseDurationOrDefault("extractor.interval", cfg.Extractor.Interval, DefaultInterval)
	if err != nil {
		return err
	}
	if iv <= 0 {
		return fmt.Errorf("extractor.interval must be > 0")
	}

	return nil
}

// Interval returns the validated base tick interval.
func (e ExtractorConfig) IntervalDuration() time.Duration {
	d, err := ParseDurationOrDefault("extractor.interval", e.Interval, DefaultInterval)
	if err != nil || d <= 0 {
		return DefaultInterval
	}
	return d
}

// TimeoutDuration returns the validated per-call RPC timeout.
func (r RPCConfig) TimeoutDuration() time.Duration {
	d, err := ParseDurationOrDefault("rpc.timeout", r.Timeout, DefaultRPCTimeout)
	if err != nil || d <= 0 {
		return DefaultRPCTimeout
	}
	return d
}
