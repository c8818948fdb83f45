package core

import (
	"fmt"
	"math/big"

	markerrors "solirey/core/errors"
	corestate "solirey/core/state"
	"solirey/crypto"
	"solirey/native/payment"
)

func (m *Market) onPayment(kind payment.Kind, method string, fn func(*payment.Engine) error) error {
	return m.Execute(ModulePayment, method, func() error {
		engine, err := m.paymentEngine(kind)
		if err != nil {
			return err
		}
		return fn(engine)
	})
}

// CreatePayment mints an asset for caller and lists it at price.
func (m *Market) CreatePayment(kind payment.Kind, caller [20]byte, id string, price *big.Int) (*payment.Listing, error) {
	var out *payment.Listing
	err := m.onPayment(kind, "CreatePayment", func(engine *payment.Engine) error {
		var err error
		out, err = engine.CreatePayment(caller, id, price)
		return err
	})
	return out, err
}

// ResellPayment lists an asset the caller holds at price.
func (m *Market) ResellPayment(kind payment.Kind, caller [20]byte, id string, assetID uint64, price *big.Int) (*payment.Listing, error) {
	var out *payment.Listing
	err := m.onPayment(kind, "Resell", func(engine *payment.Engine) error {
		var err error
		out, err = engine.Resell(caller, id, assetID, price)
		return err
	})
	return out, err
}

// Pay buys a fixed-price listing.
func (m *Market) Pay(kind payment.Kind, id string, caller [20]byte, value *big.Int) error {
	return m.onPayment(kind, "Pay", func(engine *payment.Engine) error {
		return engine.Pay(id, caller, value)
	})
}

// WithdrawPayment pays the seller of a sold listing.
func (m *Market) WithdrawPayment(kind payment.Kind, id string, caller [20]byte) (*big.Int, error) {
	return m.payout(ModulePayment, "Withdraw", func() (*big.Int, error) {
		engine, err := m.paymentEngine(kind)
		if err != nil {
			return nil, err
		}
		return engine.Withdraw(id, caller)
	})
}

// WithdrawPaymentFee pays the platform its commission on a sold listing.
func (m *Market) WithdrawPaymentFee(kind payment.Kind, id string, caller [20]byte) (*big.Int, error) {
	return m.payout(ModulePayment, "WithdrawFee", func() (*big.Int, error) {
		engine, err := m.paymentEngine(kind)
		if err != nil {
			return nil, err
		}
		return engine.WithdrawFee(id, caller)
	})
}

// AbortPayment delists an unsold listing.
func (m *Market) AbortPayment(kind payment.Kind, id string, caller [20]byte) error {
	return m.onPayment(kind, "Abort", func(engine *payment.Engine) error {
		return engine.Abort(id, caller)
	})
}

// Listing returns the fixed-price listing of the given kind.
func (m *Market) Listing(kind payment.Kind, id string) (*payment.Listing, error) {
	var out *payment.Listing
	err := m.view(func() error {
		engine, err := m.paymentEngine(kind)
		if err != nil {
			return err
		}
		out, err = engine.Listing(id)
		return err
	})
	return out, err
}

// DeployIndividualPayment opens a single-asset tangible sale owned by caller
// and returns its address.
func (m *Market) DeployIndividualPayment(caller [20]byte, price *big.Int) ([20]byte, error) {
	var addr [20]byte
	err := m.Execute(ModulePayment, "DeployIndividual", func() error {
		var err error
		if addr, err = m.deriveInstanceAddress(caller); err != nil {
			return err
		}
		if err := m.state.InstanceKindPut(addr, corestate.InstancePayment); err != nil {
			return err
		}
		inst := payment.NewIndividual(addr, caller, price)
		inst.SetState(m.state)
		m.configure(inst)
		_, err = inst.Open()
		return err
	})
	if err != nil {
		return [20]byte{}, err
	}
	return addr, nil
}

func (m *Market) individualPayment(addr [20]byte) (*payment.Individual, error) {
	kind, err := m.state.InstanceKindGet(addr)
	if err != nil {
		return nil, err
	}
	if kind != corestate.InstancePayment {
		return nil, fmt.Errorf("%w: payment instance %s", markerrors.ErrNotFound, crypto.FormatAddress(addr))
	}
	return m.attachPayment(addr), nil
}

// IndividualPay buys the asset of the sale instance at addr.
func (m *Market) IndividualPay(addr, caller [20]byte, value *big.Int) error {
	return m.Execute(ModulePayment, "IndividualPay", func() error {
		inst, err := m.individualPayment(addr)
		if err != nil {
			return err
		}
		return inst.Pay(caller, value)
	})
}

// IndividualWithdrawPayment pays the instance seller and the platform.
func (m *Market) IndividualWithdrawPayment(addr, caller [20]byte) (*big.Int, error) {
	return m.payout(ModulePayment, "IndividualWithdraw", func() (*big.Int, error) {
		inst, err := m.individualPayment(addr)
		if err != nil {
			return nil, err
		}
		return inst.Withdraw(caller)
	})
}

// IndividualAbortPayment cancels the sale instance before payment.
func (m *Market) IndividualAbortPayment(addr, caller [20]byte) error {
	return m.Execute(ModulePayment, "IndividualAbort", func() error {
		inst, err := m.individualPayment(addr)
		if err != nil {
			return err
		}
		return inst.Abort(caller)
	})
}

// IndividualListing returns the record of the sale instance at addr.
func (m *Market) IndividualListing(addr [20]byte) (*payment.IndividualListing, error) {
	var out *payment.IndividualListing
	err := m.view(func() error {
		inst, err := m.individualPayment(addr)
		if err != nil {
			return err
		}
		out, err = inst.Record()
		return err
	})
	return out, err
}
