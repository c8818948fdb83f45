package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of market addresses.
const AddressPrefix = "sol"

// Address represents a 20-byte market address with a bech32 prefix.
type Address struct {
	prefix string
	bytes  [20]byte
}

func NewAddress(b [20]byte) Address {
	return Address{prefix: AddressPrefix, bytes: b}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(a.prefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() [20]byte {
	return a.bytes
}

// FormatAddress renders a raw address in bech32 form.
func FormatAddress(b [20]byte) string {
	return NewAddress(b).String()
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes long")
	}
	var out [20]byte
	copy(out[:], conv)
	return NewAddress(out), nil
}

// ParseAddress accepts either a bech32 "sol1..." address or a 0x-prefixed hex
// address.
func ParseAddress(s string) ([20]byte, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address must not be empty")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		if !common.IsHexAddress(trimmed) {
			return [20]byte{}, fmt.Errorf("invalid hex address %q", trimmed)
		}
		return common.HexToAddress(trimmed), nil
	}
	addr, err := DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Bytes(), nil
}

// DeriveAddress returns a deterministic address from the keccak256 hash of the
// supplied parts, taking the last 20 bytes like contract address derivation.
func DeriveAddress(parts ...[]byte) [20]byte {
	hash := crypto.Keccak256(parts...)
	var out [20]byte
	copy(out[:], hash[len(hash)-20:])
	return out
}
