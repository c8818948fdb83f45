package config

import (
	"fmt"
	"log/slog"

	"solirey/crypto"
)

const (
	// DefaultFeeBps is the platform commission in basis points.
	DefaultFeeBps = uint32(200)
	// MaxFeeBps caps the commission so the digital split never exceeds the price.
	MaxFeeBps = uint32(5000)
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.FeeBps > MaxFeeBps {
		return fmt.Errorf("FeeBps %d exceeds maximum %d", c.FeeBps, MaxFeeBps)
	}
	if c.DataDir == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	if c.ListenAddress == "" {
		return fmt.Errorf("ListenAddress must not be empty")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.RequestsPerSecond must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.Burst must be positive when a rate is set")
	}
	if _, err := c.LogLevelValue(); err != nil {
		return err
	}
	if _, err := c.PlatformAddress(); err != nil {
		return err
	}
	for _, alloc := range c.Alloc {
		if _, _, err := alloc.Parse(); err != nil {
			return err
		}
	}
	return nil
}

// PlatformAddress returns the address entitled to commissions. An empty
// setting yields the zero address, which only works with a zero fee.
func (c *Config) PlatformAddress() ([20]byte, error) {
	if c.Platform == "" {
		if c.FeeBps > 0 {
			return [20]byte{}, fmt.Errorf("Platform must be set when FeeBps is positive")
		}
		return [20]byte{}, nil
	}
	addr, err := crypto.ParseAddress(c.Platform)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid Platform: %w", err)
	}
	return addr, nil
}

// LogLevelValue maps LogLevel onto a slog level.
func (c *Config) LogLevelValue() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LogLevel %q", c.LogLevel)
	}
	return level, nil
}
