// Package nativetest provides an in-memory backend for the bank, registry and
// ledger so engine tests can run full settlement flows without a database.
package nativetest

import (
	"bytes"
	"fmt"
	"math/big"

	"solirey/core/types"
	"solirey/native/registry"
)

// State implements the account, asset and ledger accessors the native
// modules expect from core/state.Manager.
type State struct {
	Accounts map[[20]byte]*types.Account
	Assets   map[uint64]*registry.Asset
	Pending  map[string]*big.Int
	Sequence uint64
}

// NewState returns an empty in-memory state.
func NewState() *State {
	return &State{
		Accounts: make(map[[20]byte]*types.Account),
		Assets:   make(map[uint64]*registry.Asset),
		Pending:  make(map[string]*big.Int),
	}
}

// Address returns an address filled with the given byte.
func Address(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func toAddress(b []byte) ([20]byte, error) {
	var addr [20]byte
	if len(b) != len(addr) {
		return addr, fmt.Errorf("address must be 20 bytes")
	}
	copy(addr[:], b)
	return addr, nil
}

func (s *State) GetAccount(addr []byte) (*types.Account, error) {
	key, err := toAddress(addr)
	if err != nil {
		return nil, err
	}
	return s.Accounts[key].Clone(), nil
}

func (s *State) PutAccount(addr []byte, account *types.Account) error {
	key, err := toAddress(addr)
	if err != nil {
		return err
	}
	s.Accounts[key] = account.Clone()
	return nil
}

// BalanceOf returns the account balance or zero.
func (s *State) BalanceOf(addr [20]byte) *big.Int {
	return s.Accounts[addr].Clone().Balance
}

func (s *State) AssetGet(id uint64) (*registry.Asset, bool, error) {
	asset, ok := s.Assets[id]
	if !ok {
		return nil, false, nil
	}
	return asset.Clone(), true, nil
}

func (s *State) AssetPut(asset *registry.Asset) error {
	if asset == nil {
		return fmt.Errorf("nil asset")
	}
	s.Assets[asset.ID] = asset.Clone()
	return nil
}

func (s *State) AssetDelete(id uint64) error {
	delete(s.Assets, id)
	return nil
}

func (s *State) AssetSequence() (uint64, error) { return s.Sequence, nil }

func (s *State) SetAssetSequence(v uint64) error {
	s.Sequence = v
	return nil
}

func ledgerKey(namespace, listingID string, party [20]byte) string {
	return fmt.Sprintf("%s/%s/%x", namespace, listingID, party)
}

func (s *State) LedgerGet(namespace, listingID string, party [20]byte) (*big.Int, error) {
	amount, ok := s.Pending[ledgerKey(namespace, listingID, party)]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(amount), nil
}

func (s *State) LedgerPut(namespace, listingID string, party [20]byte, amount *big.Int) error {
	s.Pending[ledgerKey(namespace, listingID, party)] = new(big.Int).Set(amount)
	return nil
}
