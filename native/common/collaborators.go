package common

import (
	"math/big"
	"strings"

	markerrors "solirey/core/errors"
)

// MaxIDLength bounds caller supplied listing identifiers.
const MaxIDLength = 128

// AssetRegistry is the subset of the asset registry the engines rely on.
type AssetRegistry interface {
	Mint(operator, to [20]byte) (uint64, error)
	Transfer(operator, from, to [20]byte, assetID uint64, data []byte) error
	OwnerOf(assetID uint64) ([20]byte, error)
	OriginalCreatorOf(assetID uint64) ([20]byte, error)
}

// FundMover moves attached value between accounts.
type FundMover interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// SanitizeID trims the identifier and enforces the length bounds.
func SanitizeID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" || len(trimmed) > MaxIDLength {
		return "", markerrors.ErrInvalidID
	}
	return trimmed, nil
}

// CloneBigInt returns a copy of v, treating nil as zero.
func CloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// IsZeroAddress reports whether addr is the zero address.
func IsZeroAddress(addr [20]byte) bool {
	return addr == [20]byte{}
}
