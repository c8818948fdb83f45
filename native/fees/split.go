// Package fees computes how a sale price is divided between the platform, the
// original creator and the seller.
package fees

import (
	"fmt"
	"math/big"
)

const (
	// DefaultFeeBps is the platform commission applied when no policy is
	// configured (2%).
	DefaultFeeBps uint32 = 200
	// MaxFeeBps caps the commission so that a fee plus an equal royalty never
	// exceeds the sale price.
	MaxFeeBps uint32 = 5_000

	bpsDenominator = 10_000
)

// Policy captures the commission rate in basis points.
type Policy struct {
	FeeBps uint32
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy { return Policy{FeeBps: DefaultFeeBps} }

// NewPolicy validates the basis points and returns the policy.
func NewPolicy(feeBps uint32) (Policy, error) {
	p := Policy{FeeBps: feeBps}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate ensures the rate stays within MaxFeeBps.
func (p Policy) Validate() error {
	if p.FeeBps > MaxFeeBps {
		return fmt.Errorf("fees: fee bps %d exceeds maximum %d", p.FeeBps, MaxFeeBps)
	}
	return nil
}

// Unit returns floor(amount * FeeBps / 10000). Negative or nil amounts yield
// zero.
func (p Policy) Unit(amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || p.FeeBps == 0 {
		return big.NewInt(0)
	}
	unit := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(p.FeeBps)))
	return unit.Quo(unit, big.NewInt(bpsDenominator))
}

// Split is the settled division of a sale price. The seller absorbs every
// rounding remainder, so the parts always add up to Price.
type Split struct {
	Price          *big.Int
	PlatformFee    *big.Int
	CreatorRoyalty *big.Int
	SellerNet      *big.Int
}

// Total returns PlatformFee + CreatorRoyalty + SellerNet.
func (s Split) Total() *big.Int {
	total := new(big.Int)
	for _, part := range []*big.Int{s.PlatformFee, s.CreatorRoyalty, s.SellerNet} {
		if part != nil {
			total.Add(total, part)
		}
	}
	return total
}

// PlatformOnly withholds one fee unit for the platform. Used by auctions and
// tangible fixed-price sales.
func (p Policy) PlatformOnly(price *big.Int) Split {
	amount := nonNegative(price)
	fee := p.Unit(amount)
	return Split{
		Price:          amount,
		PlatformFee:    fee,
		CreatorRoyalty: big.NewInt(0),
		SellerNet:      new(big.Int).Sub(amount, fee),
	}
}

// WithRoyalty withholds one fee unit for the platform and an equal unit for
// the original creator. Used by escrow and digital fixed-price sales.
func (p Policy) WithRoyalty(price *big.Int) Split {
	amount := nonNegative(price)
	unit := p.Unit(amount)
	net := new(big.Int).Sub(amount, unit)
	net.Sub(net, unit)
	return Split{
		Price:          amount,
		PlatformFee:    unit,
		CreatorRoyalty: new(big.Int).Set(unit),
		SellerNet:      net,
	}
}

func nonNegative(v *big.Int) *big.Int {
	if v == nil || v.Sign() < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
