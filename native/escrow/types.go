package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// EscrowState represents the lifecycle of a two-party escrow.
type EscrowState uint8

const (
	// StateCreated means the seller staked and the escrow awaits a buyer.
	StateCreated EscrowState = iota
	// StateLocked means the buyer paid and delivery is pending.
	StateLocked
	// StateInactive is terminal: the escrow was confirmed or aborted.
	StateInactive
)

// Valid reports whether the state value is within the supported range.
func (s EscrowState) Valid() bool {
	switch s {
	case StateCreated, StateLocked, StateInactive:
		return true
	default:
		return false
	}
}

func (s EscrowState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLocked:
		return "locked"
	case StateInactive:
		return "inactive"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Escrow is a purchase where both parties lock collateral. Value is the sale
// price; the seller stakes 2*Value at creation and the buyer pays 2*Value to
// lock the purchase, getting Value back on confirmation.
type Escrow struct {
	ID        string
	Seller    [20]byte
	Buyer     [20]byte
	Creator   [20]byte
	AssetID   uint64
	Value     *big.Int
	State     EscrowState
	CreatedAt uint64
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Value != nil {
		clone.Value = new(big.Int).Set(e.Value)
	} else {
		clone.Value = big.NewInt(0)
	}
	return &clone
}

// Stake returns the collateral each party locks, 2*Value.
func (e *Escrow) Stake() *big.Int {
	if e == nil || e.Value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Lsh(e.Value, 1)
}

// SanitizeEscrow validates the supplied escrow and returns a normalised clone.
// The function does not mutate the original value.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	clone := e.Clone()
	clone.ID = strings.TrimSpace(clone.ID)
	if clone.ID == "" {
		return nil, fmt.Errorf("escrow id must not be empty")
	}
	if clone.Value.Sign() < 0 {
		return nil, fmt.Errorf("escrow value must be non-negative")
	}
	if !clone.State.Valid() {
		return nil, fmt.Errorf("invalid escrow state: %d", clone.State)
	}
	return clone, nil
}
