package config

import (
	"fmt"
	"math/big"
	"strings"

	"solirey/crypto"
)

// RateLimit bounds the read API request rate per client.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// Pauses switches individual market modules off.
type Pauses struct {
	Auction bool `toml:"Auction"`
	Escrow  bool `toml:"Escrow"`
	Payment bool `toml:"Payment"`
}

// Modules returns the pause flags keyed by module name.
func (p Pauses) Modules() map[string]bool {
	return map[string]bool{
		"auction": p.Auction,
		"escrow":  p.Escrow,
		"payment": p.Payment,
	}
}

// Tracing points span export at an OTLP/HTTP collector. An empty endpoint
// keeps spans in-process.
type Tracing struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
}

// Alloc credits an account at startup when the data directory is empty.
type Alloc struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// Parse resolves the allocation into raw values.
func (a Alloc) Parse() ([20]byte, *big.Int, error) {
	addr, err := crypto.ParseAddress(a.Address)
	if err != nil {
		return [20]byte{}, nil, fmt.Errorf("alloc %q: %w", a.Address, err)
	}
	balance, err := parseUintAmount(a.Balance)
	if err != nil {
		return [20]byte{}, nil, fmt.Errorf("alloc %q: %w", a.Address, err)
	}
	return addr, balance, nil
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
