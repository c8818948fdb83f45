package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	var raw [20]byte
	copy(raw[:], bytes.Repeat([]byte{0xAB}, 20))

	encoded := FormatAddress(raw)
	require.True(t, strings.HasPrefix(encoded, AddressPrefix+"1"))

	decoded, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, raw, decoded.Bytes())
}

func TestParseAddressAcceptsHexAndBech32(t *testing.T) {
	var raw [20]byte
	raw[19] = 0x01

	fromHex, err := ParseAddress("0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	require.Equal(t, raw, fromHex)

	fromBech, err := ParseAddress(FormatAddress(raw))
	require.NoError(t, err)
	require.Equal(t, raw, fromBech)

	_, err = ParseAddress("0x1234")
	require.Error(t, err)
	_, err = ParseAddress("")
	require.Error(t, err)
}

func TestDeriveAddressIsDeterministic(t *testing.T) {
	a := DeriveAddress([]byte("auction"), []byte("1"))
	b := DeriveAddress([]byte("auction"), []byte("1"))
	c := DeriveAddress([]byte("auction"), []byte("2"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
