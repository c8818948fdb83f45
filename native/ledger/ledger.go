// Package ledger tracks pull-payment balances. Engines credit what a party is
// owed at settlement time and the party later withdraws it in a separate call.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	errNilStore       = errors.New("ledger: store not configured")
	errNegativeCredit = errors.New("ledger: negative credit")
)

// Store persists pending balances keyed by (namespace, listing id, party).
type Store interface {
	LedgerGet(namespace, listingID string, party [20]byte) (*big.Int, error)
	LedgerPut(namespace, listingID string, party [20]byte, amount *big.Int) error
}

// Ledger is a namespaced view over a Store. Each engine owns one namespace so
// balances of different engines never mix.
type Ledger struct {
	namespace string
	store     Store
}

// New returns a ledger scoped to the namespace.
func New(namespace string, store Store) *Ledger {
	return &Ledger{namespace: strings.TrimSpace(namespace), store: store}
}

// Namespace reports the namespace the ledger writes to.
func (l *Ledger) Namespace() string {
	if l == nil {
		return ""
	}
	return l.namespace
}

// Balance returns the withdrawable amount of party for the listing.
func (l *Ledger) Balance(listingID string, party [20]byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	amount, err := l.store.LedgerGet(l.namespace, listingID, party)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(amount), nil
}

// Credit adds amount to the balance of party. Zero credits are ignored.
func (l *Ledger) Credit(listingID string, party [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeCredit
	}
	current, err := l.Balance(listingID, party)
	if err != nil {
		return err
	}
	current.Add(current, amount)
	if err := l.store.LedgerPut(l.namespace, listingID, party, current); err != nil {
		return fmt.Errorf("ledger: credit: %w", err)
	}
	return nil
}

// Take zeroes the balance of party and returns what it held. Callers must move
// the funds only after Take succeeded so a re-entrant call observes zero.
func (l *Ledger) Take(listingID string, party [20]byte) (*big.Int, error) {
	amount, err := l.Balance(listingID, party)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return amount, nil
	}
	if err := l.store.LedgerPut(l.namespace, listingID, party, big.NewInt(0)); err != nil {
		return nil, fmt.Errorf("ledger: take: %w", err)
	}
	return amount, nil
}
