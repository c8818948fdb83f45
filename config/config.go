package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"solirey/crypto"
)

// Config is the daemon configuration read from a TOML file.
type Config struct {
	ListenAddress string    `toml:"ListenAddress"`
	DataDir       string    `toml:"DataDir"`
	Environment   string    `toml:"Environment"`
	LogFile       string    `toml:"LogFile"`
	LogLevel      string    `toml:"LogLevel"`
	FeeBps        uint32    `toml:"FeeBps"`
	Platform      string    `toml:"Platform"`
	RateLimit     RateLimit `toml:"rate_limit"`
	Pauses        Pauses    `toml:"pauses"`
	Tracing       Tracing   `toml:"tracing"`
	Alloc         []Alloc   `toml:"alloc"`
}

// Load loads the configuration from the given path. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ListenAddress: "127.0.0.1:8545",
		DataDir:       "./solirey-data",
		Environment:   "local",
		LogLevel:      "info",
		FeeBps:        DefaultFeeBps,
		Platform:      crypto.FormatAddress(crypto.DeriveAddress([]byte("solirey/platform"))),
		RateLimit: RateLimit{
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}

func (c *Config) normalize() {
	c.ListenAddress = strings.TrimSpace(c.ListenAddress)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.Environment = strings.TrimSpace(c.Environment)
	c.Platform = strings.TrimSpace(c.Platform)
	c.Tracing.Endpoint = strings.TrimSpace(c.Tracing.Endpoint)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Alloc == nil {
		c.Alloc = []Alloc{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	cfg.normalize()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
