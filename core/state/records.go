package state

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"solirey/native/auction"
	"solirey/native/escrow"
	"solirey/native/payment"
	"solirey/native/registry"
)

var (
	assetPrefix             = []byte("registry/asset/")
	assetSequenceKey        = []byte("registry/seq")
	ledgerPrefix            = "ledger/"
	auctionPrefix           = "auction/listing/"
	individualAuctionPrefix = []byte("auction/instance/")
	escrowPrefix            = "escrow/listing/"
	listingPrefix           = "payment/listing/"
	individualListingPrefix = []byte("payment/instance/")
	instanceKindPrefix      = []byte("instance/kind/")
	instanceSequenceKey     = []byte("instance/seq")
	errNilRecord            = errors.New("state: nil record")
)

func prefixedKey(prefix []byte, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

func assetKey(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return prefixedKey(assetPrefix, buf[:])
}

func ledgerKey(namespace, listingID string, party [20]byte) []byte {
	return []byte(ledgerPrefix + namespace + "/" + listingID + "/" + hex.EncodeToString(party[:]))
}

// AssetGet returns the registry record for id.
func (m *Manager) AssetGet(id uint64) (*registry.Asset, bool, error) {
	var asset registry.Asset
	ok, err := m.KVGet(assetKey(id), &asset)
	if err != nil || !ok {
		return nil, false, err
	}
	return &asset, true, nil
}

// AssetPut stores the registry record.
func (m *Manager) AssetPut(asset *registry.Asset) error {
	if asset == nil {
		return errNilRecord
	}
	return m.KVPut(assetKey(asset.ID), asset)
}

// AssetDelete removes the registry record for id.
func (m *Manager) AssetDelete(id uint64) error {
	return m.KVDelete(assetKey(id))
}

// AssetSequence returns the last assigned asset id.
func (m *Manager) AssetSequence() (uint64, error) {
	var seq uint64
	if _, err := m.KVGet(assetSequenceKey, &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// SetAssetSequence records the last assigned asset id.
func (m *Manager) SetAssetSequence(seq uint64) error {
	return m.KVPut(assetSequenceKey, seq)
}

// LedgerGet returns the pending balance of party for a listing. Missing
// entries read as zero.
func (m *Manager) LedgerGet(namespace, listingID string, party [20]byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(ledgerKey(namespace, listingID, party), amount)
	if err != nil {
		return nil, fmt.Errorf("state: decode ledger entry: %w", err)
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// LedgerPut stores the pending balance of party for a listing. Zero balances
// are deleted.
func (m *Manager) LedgerPut(namespace, listingID string, party [20]byte, amount *big.Int) error {
	key := ledgerKey(namespace, listingID, party)
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative ledger balance")
	}
	return m.KVPut(key, amount)
}

// AuctionGet returns the multi-listing auction stored under id.
func (m *Manager) AuctionGet(id string) (*auction.Auction, bool, error) {
	var record auction.Auction
	ok, err := m.KVGet([]byte(auctionPrefix+strings.TrimSpace(id)), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record.Clone(), true, nil
}

// AuctionPut stores the multi-listing auction.
func (m *Manager) AuctionPut(record *auction.Auction) error {
	if record == nil {
		return errNilRecord
	}
	return m.KVPut([]byte(auctionPrefix+record.ID), record.Clone())
}

// IndividualAuctionGet returns the record of the auction instance at addr.
func (m *Manager) IndividualAuctionGet(addr [20]byte) (*auction.IndividualAuction, bool, error) {
	var record auction.IndividualAuction
	ok, err := m.KVGet(prefixedKey(individualAuctionPrefix, addr[:]), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record.Clone(), true, nil
}

// IndividualAuctionPut stores the record of an auction instance.
func (m *Manager) IndividualAuctionPut(record *auction.IndividualAuction) error {
	if record == nil {
		return errNilRecord
	}
	return m.KVPut(prefixedKey(individualAuctionPrefix, record.Address[:]), record.Clone())
}

// EscrowGet returns the escrow stored under id.
func (m *Manager) EscrowGet(id string) (*escrow.Escrow, bool, error) {
	var record escrow.Escrow
	ok, err := m.KVGet([]byte(escrowPrefix+strings.TrimSpace(id)), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	if !record.State.Valid() {
		return nil, false, fmt.Errorf("state: escrow %q has invalid state %d", id, record.State)
	}
	return record.Clone(), true, nil
}

// EscrowPut stores the escrow.
func (m *Manager) EscrowPut(record *escrow.Escrow) error {
	if record == nil {
		return errNilRecord
	}
	if !record.State.Valid() {
		return fmt.Errorf("state: invalid escrow state %d", record.State)
	}
	return m.KVPut([]byte(escrowPrefix+record.ID), record.Clone())
}

func listingKey(kind payment.Kind, id string) []byte {
	return []byte(listingPrefix + kind.String() + "/" + strings.TrimSpace(id))
}

// ListingGet returns the fixed-price listing of the given kind.
func (m *Manager) ListingGet(kind payment.Kind, id string) (*payment.Listing, bool, error) {
	var record payment.Listing
	ok, err := m.KVGet(listingKey(kind, id), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record.Clone(), true, nil
}

// ListingPut stores a fixed-price listing under its kind.
func (m *Manager) ListingPut(record *payment.Listing) error {
	if record == nil {
		return errNilRecord
	}
	if !record.Kind.Valid() {
		return fmt.Errorf("state: invalid listing kind %d", record.Kind)
	}
	return m.KVPut(listingKey(record.Kind, record.ID), record.Clone())
}

// IndividualListingGet returns the record of the sale instance at addr.
func (m *Manager) IndividualListingGet(addr [20]byte) (*payment.IndividualListing, bool, error) {
	var record payment.IndividualListing
	ok, err := m.KVGet(prefixedKey(individualListingPrefix, addr[:]), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record.Clone(), true, nil
}

// IndividualListingPut stores the record of a sale instance.
func (m *Manager) IndividualListingPut(record *payment.IndividualListing) error {
	if record == nil {
		return errNilRecord
	}
	return m.KVPut(prefixedKey(individualListingPrefix, record.Address[:]), record.Clone())
}

// InstanceKind identifies the module behind a deployed single-asset instance.
type InstanceKind uint8

const (
	InstanceUnknown InstanceKind = iota
	InstanceAuction
	InstancePayment
)

func (k InstanceKind) String() string {
	switch k {
	case InstanceAuction:
		return "auction"
	case InstancePayment:
		return "payment"
	default:
		return "unknown"
	}
}

// InstanceKindGet reports which module owns the instance at addr.
func (m *Manager) InstanceKindGet(addr [20]byte) (InstanceKind, error) {
	var kind uint8
	ok, err := m.KVGet(prefixedKey(instanceKindPrefix, addr[:]), &kind)
	if err != nil || !ok {
		return InstanceUnknown, err
	}
	return InstanceKind(kind), nil
}

// InstanceKindPut records which module owns the instance at addr.
func (m *Manager) InstanceKindPut(addr [20]byte, kind InstanceKind) error {
	return m.KVPut(prefixedKey(instanceKindPrefix, addr[:]), uint8(kind))
}

// NextInstanceNonce increments and returns the deployment counter used to
// derive instance addresses.
func (m *Manager) NextInstanceNonce() (uint64, error) {
	var seq uint64
	if _, err := m.KVGet(instanceSequenceKey, &seq); err != nil {
		return 0, err
	}
	seq++
	if err := m.KVPut(instanceSequenceKey, seq); err != nil {
		return 0, err
	}
	return seq, nil
}
