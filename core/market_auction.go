package core

import (
	"fmt"
	"math/big"

	markerrors "solirey/core/errors"
	corestate "solirey/core/state"
	"solirey/crypto"
	"solirey/native/auction"
)

// CreateAuction mints a new asset for caller and opens an auction over it.
func (m *Market) CreateAuction(caller [20]byte, id string, durationSecs uint64, startingBid *big.Int) (*auction.Auction, error) {
	var out *auction.Auction
	err := m.Execute(ModuleAuction, "CreateAuction", func() error {
		var err error
		out, err = m.auctions.CreateAuction(caller, id, durationSecs, startingBid)
		return err
	})
	return out, err
}

// ResellAuction auctions an asset the caller already holds.
func (m *Market) ResellAuction(caller [20]byte, id string, assetID uint64, durationSecs uint64, startingBid *big.Int) (*auction.Auction, error) {
	var out *auction.Auction
	err := m.Execute(ModuleAuction, "Resell", func() error {
		var err error
		out, err = m.auctions.Resell(caller, id, assetID, durationSecs, startingBid)
		return err
	})
	return out, err
}

// Bid places value on the auction.
func (m *Market) Bid(id string, caller [20]byte, value *big.Int) error {
	return m.Execute(ModuleAuction, "Bid", func() error {
		return m.auctions.Bid(id, caller, value)
	})
}

// WithdrawBid pays the caller's pending return.
func (m *Market) WithdrawBid(id string, caller [20]byte) (*big.Int, error) {
	return m.payout(ModuleAuction, "Withdraw", func() (*big.Int, error) {
		return m.auctions.Withdraw(id, caller)
	})
}

// WithdrawAuctionFee pays the platform its commission on the auction.
func (m *Market) WithdrawAuctionFee(id string, caller [20]byte) (*big.Int, error) {
	return m.payout(ModuleAuction, "WithdrawFee", func() (*big.Int, error) {
		return m.auctions.WithdrawFee(id, caller)
	})
}

// AuctionEnd closes the auction and delivers the asset.
func (m *Market) AuctionEnd(id string, caller [20]byte) error {
	return m.Execute(ModuleAuction, "AuctionEnd", func() error {
		return m.auctions.AuctionEnd(id, caller)
	})
}

// GetTheHighestBid pays the beneficiary the net proceeds.
func (m *Market) GetTheHighestBid(id string, caller [20]byte) (*big.Int, error) {
	return m.payout(ModuleAuction, "GetTheHighestBid", func() (*big.Int, error) {
		return m.auctions.GetTheHighestBid(id, caller)
	})
}

// AbortAuction cancels an auction nobody bid on.
func (m *Market) AbortAuction(id string, caller [20]byte) error {
	return m.Execute(ModuleAuction, "Abort", func() error {
		return m.auctions.Abort(id, caller)
	})
}

// Auction returns the auction stored under id.
func (m *Market) Auction(id string) (*auction.Auction, error) {
	var out *auction.Auction
	err := m.view(func() error {
		var err error
		out, err = m.auctions.Auction(id)
		return err
	})
	return out, err
}

// PendingReturn returns what addr may withdraw from the auction.
func (m *Market) PendingReturn(id string, addr [20]byte) (*big.Int, error) {
	var out *big.Int
	err := m.view(func() error {
		var err error
		out, err = m.auctions.PendingReturn(id, addr)
		return err
	})
	return out, err
}

// DeployIndividualAuction opens a single-asset auction owned by caller and
// returns its address. The caller deposits the asset with TransferAsset.
func (m *Market) DeployIndividualAuction(caller [20]byte, durationSecs uint64, startingBid *big.Int) ([20]byte, error) {
	var addr [20]byte
	err := m.Execute(ModuleAuction, "DeployIndividual", func() error {
		var err error
		if addr, err = m.deriveInstanceAddress(caller); err != nil {
			return err
		}
		if err := m.state.InstanceKindPut(addr, corestate.InstanceAuction); err != nil {
			return err
		}
		inst := auction.NewIndividual(addr, caller, durationSecs, startingBid)
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

func (m *Market) individualAuction(addr [20]byte) (*auction.Individual, error) {
	kind, err := m.state.InstanceKindGet(addr)
	if err != nil {
		return nil, err
	}
	if kind != corestate.InstanceAuction {
		return nil, fmt.Errorf("%w: auction instance %s", markerrors.ErrNotFound, crypto.FormatAddress(addr))
	}
	return m.attachAuction(addr), nil
}

func (m *Market) onIndividualAuction(method string, addr [20]byte, fn func(*auction.Individual) error) error {
	return m.Execute(ModuleAuction, method, func() error {
		inst, err := m.individualAuction(addr)
		if err != nil {
			return err
		}
		return fn(inst)
	})
}

// IndividualBid places value on the auction instance at addr.
func (m *Market) IndividualBid(addr, caller [20]byte, value *big.Int) error {
	return m.onIndividualAuction("IndividualBid", addr, func(inst *auction.Individual) error {
		return inst.Bid(caller, value)
	})
}

// IndividualWithdrawBid pays the caller's pending return from the instance.
func (m *Market) IndividualWithdrawBid(addr, caller [20]byte) (*big.Int, error) {
	return m.payout(ModuleAuction, "IndividualWithdraw", func() (*big.Int, error) {
		inst, err := m.individualAuction(addr)
		if err != nil {
			return nil, err
		}
		return inst.Withdraw(caller)
	})
}

// IndividualWithdrawAuctionFee pays the platform its commission on the
// instance.
func (m *Market) IndividualWithdrawAuctionFee(addr, caller [20]byte) (*big.Int, error) {
	return m.payout(ModuleAuction, "IndividualWithdrawFee", func() (*big.Int, error) {
		inst, err := m.individualAuction(addr)
		if err != nil {
			return nil, err
		}
		return inst.WithdrawFee(caller)
	})
}

// IndividualAuctionEnd closes the instance and delivers the asset.
func (m *Market) IndividualAuctionEnd(addr, caller [20]byte) error {
	return m.onIndividualAuction("IndividualAuctionEnd", addr, func(inst *auction.Individual) error {
		return inst.AuctionEnd(caller)
	})
}

// IndividualGetTheHighestBid pays the instance beneficiary the net proceeds.
func (m *Market) IndividualGetTheHighestBid(addr, caller [20]byte) (*big.Int, error) {
	return m.payout(ModuleAuction, "IndividualGetTheHighestBid", func() (*big.Int, error) {
		inst, err := m.individualAuction(addr)
		if err != nil {
			return nil, err
		}
		return inst.GetTheHighestBid(caller)
	})
}

// IndividualAbortAuction cancels the instance before any bid.
func (m *Market) IndividualAbortAuction(addr, caller [20]byte) error {
	return m.onIndividualAuction("IndividualAbort", addr, func(inst *auction.Individual) error {
		return inst.Abort(caller)
	})
}

// IndividualAuction returns the record of the instance at addr.
func (m *Market) IndividualAuction(addr [20]byte) (*auction.IndividualAuction, error) {
	var out *auction.IndividualAuction
	err := m.view(func() error {
		inst, err := m.individualAuction(addr)
		if err != nil {
			return err
		}
		out, err = inst.Record()
		return err
	})
	return out, err
}

// IndividualPendingReturn returns what addr may withdraw from the instance.
func (m *Market) IndividualPendingReturn(instance, addr [20]byte) (*big.Int, error) {
	var out *big.Int
	err := m.view(func() error {
		inst, err := m.individualAuction(instance)
		if err != nil {
			return err
		}
		out, err = inst.PendingReturn(addr)
		return err
	})
	return out, err
}

func (m *Market) payout(module, method string, fn func() (*big.Int, error)) (*big.Int, error) {
	var out *big.Int
	err := m.Execute(module, method, func() error {
		var err error
		out, err = fn()
		return err
	})
	if err != nil {
		return nil, err
	}
	m.settle(module, out)
	return out, nil
}
