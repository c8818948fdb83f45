package state

import (
	"fmt"
	"math/big"

	"solirey/core/types"
)

var accountPrefix = []byte("account/")

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return buf
}

// GetAccount returns the account stored under the address. Unknown addresses
// yield an empty account with a zero balance.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("address must not be empty")
	}
	var stored storedAccount
	ok, err := m.KVGet(accountKey(addr), &stored)
	if err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	account := &types.Account{Balance: big.NewInt(0)}
	if !ok {
		return account, nil
	}
	account.Nonce = stored.Nonce
	if stored.Balance != nil {
		account.Balance.Set(stored.Balance)
	}
	return account, nil
}

// PutAccount persists the account under the address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("account must not be nil")
	}
	balance := big.NewInt(0)
	if account.Balance != nil {
		if account.Balance.Sign() < 0 {
			return fmt.Errorf("negative balance not allowed")
		}
		balance.Set(account.Balance)
	}
	return m.KVPut(accountKey(addr), storedAccount{Nonce: account.Nonce, Balance: balance})
}
