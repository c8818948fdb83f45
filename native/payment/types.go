package payment

import (
	"fmt"
	"math/big"
	"strings"
)

// Kind selects the commission split of a fixed-price engine.
type Kind uint8

const (
	// KindDigital withholds a platform fee and an equal creator royalty.
	KindDigital Kind = iota
	// KindTangible withholds only the platform fee.
	KindTangible
)

func (k Kind) String() string {
	switch k {
	case KindDigital:
		return "digital"
	case KindTangible:
		return "tangible"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Valid reports whether the kind is supported.
func (k Kind) Valid() bool {
	return k == KindDigital || k == KindTangible
}

// ParseKind resolves a kind from its string form.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "digital":
		return KindDigital, nil
	case "tangible":
		return KindTangible, nil
	default:
		return 0, fmt.Errorf("payment: unknown kind %q", s)
	}
}

// Namespace returns the ledger namespace of engines of this kind.
func (k Kind) Namespace() string {
	return "payment." + k.String()
}

// Listing is a fixed-price sale. Price doubles as the for-sale flag: it is
// positive while listed and reset to zero on sale or abort.
type Listing struct {
	ID                  string
	Kind                Kind
	Seller              [20]byte
	Creator             [20]byte
	Buyer               [20]byte
	AssetID             uint64
	Price               *big.Int
	Payment             *big.Int
	Fee                 *big.Int
	Royalty             *big.Int
	WithdrawnBySeller   bool
	WithdrawnByPlatform bool
	Aborted             bool
	CreatedAt           uint64
}

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Price = cloneBigInt(l.Price)
	clone.Payment = cloneBigInt(l.Payment)
	clone.Fee = cloneBigInt(l.Fee)
	clone.Royalty = cloneBigInt(l.Royalty)
	return &clone
}

// ForSale reports whether the listing can be bought.
func (l *Listing) ForSale() bool {
	return l != nil && l.Price != nil && l.Price.Sign() > 0
}

// Sold reports whether a buyer paid for the listing.
func (l *Listing) Sold() bool {
	return l != nil && l.Buyer != ([20]byte{})
}

// IndividualListing is the record of a single-asset tangible sale instance.
type IndividualListing struct {
	Address           [20]byte
	Seller            [20]byte
	Buyer             [20]byte
	AssetID           uint64
	HasAsset          bool
	Price             *big.Int
	Payment           *big.Int
	Fee               *big.Int
	Paid              bool
	WithdrawnBySeller bool
	Aborted           bool
	CreatedAt         uint64
}

// Clone returns a deep copy of the record.
func (l *IndividualListing) Clone() *IndividualListing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Price = cloneBigInt(l.Price)
	clone.Payment = cloneBigInt(l.Payment)
	clone.Fee = cloneBigInt(l.Fee)
	return &clone
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
