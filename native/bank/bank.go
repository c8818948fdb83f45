// Package bank holds spendable balances and moves value attached to market
// calls between accounts.
package bank

import (
	"errors"
	"fmt"
	"math/big"

	"solirey/core/types"
)

var (
	errNilState          = errors.New("bank: state not configured")
	ErrInsufficientFunds = errors.New("bank: insufficient balance")
	errNegativeAmount    = errors.New("bank: negative amount")
)

type bankState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Payee is implemented by addresses that run code when they receive funds.
// The callback runs after the balance has been credited; returning an error
// fails the whole transfer.
type Payee interface {
	OnFundsReceived(from [20]byte, amount *big.Int) error
}

// Bank moves balances between accounts stored in state.
type Bank struct {
	state  bankState
	payees map[[20]byte]Payee
}

// NewBank creates a bank bound to the supplied state.
func NewBank(state bankState) *Bank {
	return &Bank{state: state, payees: make(map[[20]byte]Payee)}
}

// SetState configures the state backend used by the bank.
func (b *Bank) SetState(state bankState) { b.state = state }

// RegisterPayee installs the receive hook for addr. A nil payee removes it.
func (b *Bank) RegisterPayee(addr [20]byte, payee Payee) {
	if payee == nil {
		delete(b.payees, addr)
		return
	}
	b.payees[addr] = payee
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// Balance returns the spendable balance of addr.
func (b *Bank) Balance(addr [20]byte) (*big.Int, error) {
	if b == nil || b.state == nil {
		return nil, errNilState
	}
	acc, err := b.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(ensureAccount(acc).Balance), nil
}

// Deposit credits addr out of thin air. Used for genesis allocations.
func (b *Bank) Deposit(addr [20]byte, amount *big.Int) error {
	if b == nil || b.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeAmount
	}
	acc, err := b.state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc = ensureAccount(acc)
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return b.state.PutAccount(addr[:], acc)
}

// Transfer moves amount from one account to another and then runs the payee
// hook of the recipient, if any. Zero amounts are a no-op and do not invoke
// the hook.
func (b *Bank) Transfer(from, to [20]byte, amount *big.Int) error {
	if b == nil || b.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeAmount
	}
	amt := new(big.Int).Set(amount)
	fromAcc, err := b.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromAcc.Balance, amt)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	if err := b.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	toAcc, err := b.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	toAcc = ensureAccount(toAcc)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := b.state.PutAccount(to[:], toAcc); err != nil {
		return err
	}
	if payee, ok := b.payees[to]; ok {
		if err := payee.OnFundsReceived(from, new(big.Int).Set(amt)); err != nil {
			return fmt.Errorf("bank: payee rejected transfer: %w", err)
		}
	}
	return nil
}
