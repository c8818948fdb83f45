package payment

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"solirey/core/events"
	markerrors "solirey/core/errors"
	"solirey/core/types"
	"solirey/native/common"
	"solirey/native/fees"
	"solirey/native/ledger"
)

var (
	errNilState    = errors.New("payment engine: state not configured")
	errNilRegistry = errors.New("payment engine: registry not configured")
	errNilBank     = errors.New("payment engine: bank not configured")
	errNilAddress  = errors.New("payment engine: custody address not configured")
	errNilPlatform = errors.New("payment engine: platform address not configured")
	errInvalidKind = errors.New("payment engine: invalid kind")
)

type engineState interface {
	ledger.Store
	ListingGet(kind Kind, id string) (*Listing, bool, error)
	ListingPut(*Listing) error
}

type paymentEvent struct {
	evt *types.Event
}

func (e paymentEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e paymentEvent) Event() *types.Event { return e.evt }

// Engine sells assets at a fixed price. One engine serves one Kind; the kind
// decides whether the original creator earns a royalty on each sale.
type Engine struct {
	kind       Kind
	state      engineState
	balances   *ledger.Ledger
	registry   common.AssetRegistry
	bank       common.FundMover
	emitter    events.Emitter
	address    [20]byte
	platform   [20]byte
	fees       fees.Policy
	nowFn      func() int64
	depositing bool
}

// NewEngine creates a fixed-price engine of the given kind with a no-op
// emitter.
func NewEngine(kind Kind) *Engine {
	return &Engine{
		kind:    kind,
		emitter: events.NoopEmitter{},
		fees:    fees.DefaultPolicy(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// Kind returns the kind served by the engine.
func (e *Engine) Kind() Kind { return e.kind }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) {
	e.state = state
	e.balances = ledger.New(e.kind.Namespace(), state)
}

// SetRegistry configures the asset registry.
func (e *Engine) SetRegistry(registry common.AssetRegistry) { e.registry = registry }

// SetBank configures the fund mover.
func (e *Engine) SetBank(bank common.FundMover) { e.bank = bank }

// SetAddress configures the custody address of the engine.
func (e *Engine) SetAddress(addr [20]byte) { e.address = addr }

// Address returns the custody address of the engine.
func (e *Engine) Address() [20]byte { return e.address }

// SetPlatform configures the address entitled to the commission.
func (e *Engine) SetPlatform(addr [20]byte) { e.platform = addr }

// SetFeePolicy overrides the commission policy.
func (e *Engine) SetFeePolicy(policy fees.Policy) { e.fees = policy }

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(paymentEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	now := e.nowFn()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case !e.kind.Valid():
		return errInvalidKind
	case e.registry == nil:
		return errNilRegistry
	case e.bank == nil:
		return errNilBank
	case e.address == ([20]byte{}):
		return errNilAddress
	}
	return nil
}

func (e *Engine) lookup(id string) (*Listing, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.ListingGet(e.kind, strings.TrimSpace(id))
}

func (e *Engine) loadListing(id string) (*Listing, error) {
	listing, ok, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: listing %q", markerrors.ErrNotFound, id)
	}
	return listing, nil
}

func (e *Engine) storeListing(l *Listing) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.ListingPut(l)
}

func (e *Engine) ensureIDAvailable(id string) error {
	_, ok, err := e.lookup(id)
	if err != nil {
		return err
	}
	if ok {
		return markerrors.ErrDuplicateID
	}
	return nil
}

func (e *Engine) split(price *big.Int) fees.Split {
	if e.kind == KindDigital {
		return e.fees.WithRoyalty(price)
	}
	return e.fees.PlatformOnly(price)
}

// OnAssetReceived accepts custody only while the engine itself is pulling an
// asset in during CreatePayment or Resell.
func (e *Engine) OnAssetReceived(operator, from [20]byte, assetID uint64, data []byte) error {
	if !e.depositing {
		return markerrors.ErrUnauthorized
	}
	return nil
}

// withCustody opens the deposit hook for the duration of fn.
func (e *Engine) withCustody(fn func() error) error {
	e.depositing = true
	defer func() { e.depositing = false }()
	return fn()
}

// CreatePayment mints a new asset attributed to the caller into custody and
// lists it at price.
func (e *Engine) CreatePayment(caller [20]byte, id string, price *big.Int) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, markerrors.ErrZeroPrice
	}
	id, err := common.SanitizeID(id)
	if err != nil {
		return nil, err
	}
	if err := e.ensureIDAvailable(id); err != nil {
		return nil, err
	}
	var assetID uint64
	err = e.withCustody(func() error {
		var mintErr error
		assetID, mintErr = e.registry.Mint(caller, e.address)
		return mintErr
	})
	if err != nil {
		return nil, err
	}
	return e.list(caller, caller, id, assetID, price)
}

// Resell lists an asset the caller holds. The creator recorded by the
// registry keeps earning royalties.
func (e *Engine) Resell(caller [20]byte, id string, assetID uint64, price *big.Int) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, markerrors.ErrWrongPricing
	}
	id, err := common.SanitizeID(id)
	if err != nil {
		return nil, err
	}
	holder, err := e.registry.OwnerOf(assetID)
	if err != nil {
		return nil, err
	}
	if holder != caller {
		return nil, markerrors.ErrNotAuthorized
	}
	if err := e.ensureIDAvailable(id); err != nil {
		return nil, err
	}
	creator, err := e.registry.OriginalCreatorOf(assetID)
	if err != nil {
		return nil, err
	}
	err = e.withCustody(func() error {
		return e.registry.Transfer(caller, caller, e.address, assetID, nil)
	})
	if err != nil {
		return nil, err
	}
	return e.list(caller, creator, id, assetID, price)
}

func (e *Engine) list(seller, creator [20]byte, id string, assetID uint64, price *big.Int) (*Listing, error) {
	listing := &Listing{
		ID:        id,
		Kind:      e.kind,
		Seller:    seller,
		Creator:   creator,
		AssetID:   assetID,
		Price:     new(big.Int).Set(price),
		Payment:   big.NewInt(0),
		Fee:       big.NewInt(0),
		Royalty:   big.NewInt(0),
		CreatedAt: e.now(),
	}
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(listing))
	return listing.Clone(), nil
}

// Pay buys the listing at exactly its price. Proceeds are split and credited
// before the asset moves to the buyer.
func (e *Engine) Pay(id string, caller [20]byte, value *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	listing, ok, err := e.lookup(id)
	if err != nil {
		return err
	}
	if !ok || !listing.ForSale() {
		return markerrors.ErrNotForSale
	}
	if value == nil || value.Cmp(listing.Price) != 0 {
		return markerrors.ErrWrongPrice
	}
	if caller == listing.Seller {
		return markerrors.ErrUnauthorized
	}
	split := e.split(listing.Price)
	if split.PlatformFee.Sign() > 0 && e.platform == ([20]byte{}) {
		return errNilPlatform
	}
	if err := e.bank.Transfer(caller, e.address, value); err != nil {
		return err
	}
	listing.Price = big.NewInt(0)
	listing.Buyer = caller
	listing.Payment = split.SellerNet
	listing.Fee = split.PlatformFee
	listing.Royalty = split.CreatorRoyalty
	if err := e.storeListing(listing); err != nil {
		return err
	}
	credits := []struct {
		party  [20]byte
		amount *big.Int
	}{
		{listing.Seller, split.SellerNet},
		{listing.Creator, split.CreatorRoyalty},
		{e.platform, split.PlatformFee},
	}
	for _, c := range credits {
		if err := e.balances.Credit(listing.ID, c.party, c.amount); err != nil {
			return err
		}
	}
	if err := e.registry.Transfer(e.address, e.address, caller, listing.AssetID, nil); err != nil {
		return err
	}
	e.emit(NewPaidEvent(listing))
	return nil
}

// Withdraw pays the seller its net proceeds and releases the creator's
// royalty. It succeeds once per sale. Only the seller may call it, so a
// creator who is not the seller receives the royalty when the seller
// withdraws.
func (e *Engine) Withdraw(id string, caller [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	listing, err := e.loadListing(id)
	if err != nil {
		return nil, err
	}
	if caller != listing.Seller || !listing.Sold() {
		return nil, markerrors.ErrNotAuthorized
	}
	if listing.WithdrawnBySeller {
		return nil, markerrors.ErrAlreadyWithdrawn
	}
	listing.WithdrawnBySeller = true
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	amount, err := e.balances.Take(listing.ID, listing.Seller)
	if err != nil {
		return nil, err
	}
	var royalty *big.Int
	if listing.Creator != listing.Seller {
		if royalty, err = e.balances.Take(listing.ID, listing.Creator); err != nil {
			return nil, err
		}
	}
	if err := e.bank.Transfer(e.address, listing.Seller, amount); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(e.address, listing.Creator, royalty); err != nil {
		return nil, err
	}
	e.emit(NewWithdrawnEvent(listing, amount))
	return amount, nil
}

// WithdrawFee pays the platform its commission. It succeeds once per sale.
func (e *Engine) WithdrawFee(id string, caller [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	listing, err := e.loadListing(id)
	if err != nil {
		return nil, err
	}
	if e.platform == ([20]byte{}) || caller != e.platform || !listing.Sold() {
		return nil, markerrors.ErrNotAuthorized
	}
	if listing.WithdrawnByPlatform {
		return nil, markerrors.ErrAlreadyWithdrawn
	}
	listing.WithdrawnByPlatform = true
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	amount, err := e.balances.Take(listing.ID, e.platform)
	if err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(e.address, e.platform, amount); err != nil {
		return nil, err
	}
	e.emit(NewFeeWithdrawnEvent(listing, amount))
	return amount, nil
}

// Abort delists an unsold listing and returns the asset to the seller.
func (e *Engine) Abort(id string, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	listing, err := e.loadListing(id)
	if err != nil {
		return err
	}
	if caller != listing.Seller {
		return markerrors.ErrUnauthorized
	}
	if !listing.ForSale() {
		return markerrors.ErrNotForSale
	}
	listing.Price = big.NewInt(0)
	listing.Aborted = true
	if err := e.storeListing(listing); err != nil {
		return err
	}
	if err := e.registry.Transfer(e.address, e.address, listing.Seller, listing.AssetID, nil); err != nil {
		return err
	}
	e.emit(NewAbortedEvent(listing))
	return nil
}

// Listing returns a copy of the listing.
func (e *Engine) Listing(id string) (*Listing, error) {
	listing, err := e.loadListing(id)
	if err != nil {
		return nil, err
	}
	return listing.Clone(), nil
}

// Balance returns what addr may still collect from the listing.
func (e *Engine) Balance(id string, addr [20]byte) (*big.Int, error) {
	if e == nil || e.balances == nil {
		return nil, errNilState
	}
	return e.balances.Balance(strings.TrimSpace(id), addr)
}
