package auction

import (
	"math/big"
)

// Auction is a timed English auction over a single asset held in custody by
// the engine.
type Auction struct {
	ID            string
	Beneficiary   [20]byte
	AssetID       uint64
	Deadline      uint64
	StartingBid   *big.Int
	HighestBid    *big.Int
	HighestBidder [20]byte
	Ended         bool
	Transferred   bool
	CreatedAt     uint64
}

// Clone returns a deep copy of the auction.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	clone.StartingBid = cloneBigInt(a.StartingBid)
	clone.HighestBid = cloneBigInt(a.HighestBid)
	return &clone
}

// HasBid reports whether anyone bid on the auction.
func (a *Auction) HasBid() bool {
	return a != nil && a.HighestBid != nil && a.HighestBid.Sign() > 0
}

// Settled reports whether the id may be reused: the round ended and there is
// nothing left for the beneficiary to collect.
func (a *Auction) Settled() bool {
	if a == nil {
		return true
	}
	return a.Ended && (!a.HasBid() || a.Transferred)
}

// IndividualAuction is the record of a single-asset auction instance.
type IndividualAuction struct {
	Address       [20]byte
	Beneficiary   [20]byte
	AssetID       uint64
	HasAsset      bool
	Deadline      uint64
	StartingBid   *big.Int
	HighestBid    *big.Int
	HighestBidder [20]byte
	Ended         bool
	Transferred   bool
	CreatedAt     uint64
}

// Clone returns a deep copy of the record.
func (a *IndividualAuction) Clone() *IndividualAuction {
	if a == nil {
		return nil
	}
	clone := *a
	clone.StartingBid = cloneBigInt(a.StartingBid)
	clone.HighestBid = cloneBigInt(a.HighestBid)
	return &clone
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
