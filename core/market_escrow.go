package core

import (
	"math/big"

	"solirey/native/escrow"
)

// CreateEscrow stakes value from caller and lists a newly minted asset.
func (m *Market) CreateEscrow(caller [20]byte, id string, value *big.Int) (*escrow.Escrow, error) {
	var out *escrow.Escrow
	err := m.Execute(ModuleEscrow, "CreateEscrow", func() error {
		var err error
		out, err = m.escrows.CreateEscrow(caller, id, value)
		return err
	})
	return out, err
}

// ResellEscrow lists an asset the caller holds through a new escrow.
func (m *Market) ResellEscrow(caller [20]byte, id string, assetID uint64, value *big.Int) (*escrow.Escrow, error) {
	var out *escrow.Escrow
	err := m.Execute(ModuleEscrow, "Resell", func() error {
		var err error
		out, err = m.escrows.Resell(caller, id, assetID, value)
		return err
	})
	return out, err
}

// ConfirmPurchase locks the buyer's payment into the escrow.
func (m *Market) ConfirmPurchase(id string, caller [20]byte, value *big.Int) error {
	return m.Execute(ModuleEscrow, "ConfirmPurchase", func() error {
		return m.escrows.ConfirmPurchase(id, caller, value)
	})
}

// ConfirmReceived settles the escrow and delivers the asset to the buyer.
func (m *Market) ConfirmReceived(id string, caller [20]byte) error {
	return m.Execute(ModuleEscrow, "ConfirmReceived", func() error {
		return m.escrows.ConfirmReceived(id, caller)
	})
}

// AbortEscrow cancels an escrow that has no buyer yet.
func (m *Market) AbortEscrow(id string, caller [20]byte) error {
	return m.Execute(ModuleEscrow, "Abort", func() error {
		return m.escrows.Abort(id, caller)
	})
}

// WithdrawEscrow pays the caller's balance on the escrow.
func (m *Market) WithdrawEscrow(id string, caller [20]byte) (*big.Int, error) {
	return m.payout(ModuleEscrow, "Withdraw", func() (*big.Int, error) {
		return m.escrows.Withdraw(id, caller)
	})
}

// Escrow returns the escrow stored under id.
func (m *Market) Escrow(id string) (*escrow.Escrow, error) {
	var out *escrow.Escrow
	err := m.view(func() error {
		var err error
		out, err = m.escrows.Escrow(id)
		return err
	})
	return out, err
}

// EscrowBalance returns what addr may withdraw from the escrow.
func (m *Market) EscrowBalance(id string, addr [20]byte) (*big.Int, error) {
	var out *big.Int
	err := m.view(func() error {
		var err error
		out, err = m.escrows.Balance(id, addr)
		return err
	})
	return out, err
}
