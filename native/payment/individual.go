package payment

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"solirey/core/events"
	markerrors "solirey/core/errors"
	"solirey/core/types"
	"solirey/crypto"
	"solirey/native/common"
	"solirey/native/fees"
	"solirey/native/ledger"
)

// IndividualNamespace is the ledger namespace shared by single-asset sales.
const IndividualNamespace = "payment.individual"

var errNotOpened = errors.New("payment: instance not opened")

type individualState interface {
	ledger.Store
	IndividualListingGet(addr [20]byte) (*IndividualListing, bool, error)
	IndividualListingPut(*IndividualListing) error
}

// Individual sells exactly one tangible asset at a fixed price. The seller
// deposits the asset through the registry after the instance is opened.
type Individual struct {
	address [20]byte
	seller  [20]byte
	price   *big.Int

	state    individualState
	balances *ledger.Ledger
	registry common.AssetRegistry
	bank     common.FundMover
	emitter  events.Emitter
	platform [20]byte
	fees     fees.Policy
	nowFn    func() int64
}

// NewIndividual prepares a sale at address for seller. Open writes the record.
func NewIndividual(address, seller [20]byte, price *big.Int) *Individual {
	inst := Attach(address)
	inst.seller = seller
	inst.price = cloneBigInt(price)
	return inst
}

// Attach returns a handle for an instance that was opened earlier.
func Attach(address [20]byte) *Individual {
	return &Individual{
		address: address,
		emitter: events.NoopEmitter{},
		fees:    fees.DefaultPolicy(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the state backend holding the instance record and ledger.
func (i *Individual) SetState(state individualState) {
	i.state = state
	i.balances = ledger.New(IndividualNamespace, state)
}

// SetRegistry configures the asset registry used to move the sold asset.
func (i *Individual) SetRegistry(registry common.AssetRegistry) { i.registry = registry }

// SetBank configures the bank that holds and releases payments.
func (i *Individual) SetBank(bank common.FundMover) { i.bank = bank }

// SetPlatform sets the address entitled to the commission.
func (i *Individual) SetPlatform(addr [20]byte) { i.platform = addr }

// SetFeePolicy overrides the commission rate.
func (i *Individual) SetFeePolicy(policy fees.Policy) { i.fees = policy }

// SetNowFunc overrides the clock used for timestamps.
func (i *Individual) SetNowFunc(now func() int64) {
	if now == nil {
		i.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	i.nowFn = now
}

// SetEmitter configures the event emitter. Nil restores the no-op emitter.
func (i *Individual) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		i.emitter = events.NoopEmitter{}
		return
	}
	i.emitter = emitter
}

// Address returns the instance address.
func (i *Individual) Address() [20]byte { return i.address }

func (i *Individual) listingID() string { return crypto.FormatAddress(i.address) }

func (i *Individual) now() uint64 {
	if i.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	now := i.nowFn()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

func (i *Individual) emit(event *types.Event) {
	if i.emitter == nil || event == nil {
		return
	}
	i.emitter.Emit(paymentEvent{evt: event})
}

func (i *Individual) ready() error {
	switch {
	case i.state == nil:
		return errNilState
	case i.registry == nil:
		return errNilRegistry
	case i.bank == nil:
		return errNilBank
	case i.address == ([20]byte{}):
		return errNilAddress
	}
	return nil
}

func (i *Individual) load() (*IndividualListing, error) {
	if i.state == nil {
		return nil, errNilState
	}
	rec, ok, err := i.state.IndividualListingGet(i.address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %w", markerrors.ErrNotFound, errNotOpened)
	}
	return rec, nil
}

func (i *Individual) store(rec *IndividualListing) error {
	if i.state == nil {
		return errNilState
	}
	return i.state.IndividualListingPut(rec)
}

func (i *Individual) view(rec *IndividualListing) *Listing {
	l := &Listing{
		ID:        i.listingID(),
		Kind:      KindTangible,
		Seller:    rec.Seller,
		Creator:   rec.Seller,
		AssetID:   rec.AssetID,
		Price:     rec.Price,
		Payment:   rec.Payment,
		Fee:       rec.Fee,
		Royalty:   big.NewInt(0),
		Aborted:   rec.Aborted,
		CreatedAt: rec.CreatedAt,
	}
	if rec.Paid {
		l.Buyer = rec.Buyer
	}
	return l
}

// Open writes the initial record.
func (i *Individual) Open() (*IndividualListing, error) {
	if err := i.ready(); err != nil {
		return nil, err
	}
	if _, ok, err := i.state.IndividualListingGet(i.address); err != nil {
		return nil, err
	} else if ok {
		return nil, markerrors.ErrDuplicateID
	}
	if i.price.Sign() <= 0 {
		return nil, markerrors.ErrZeroPrice
	}
	rec := &IndividualListing{
		Address:   i.address,
		Seller:    i.seller,
		Price:     cloneBigInt(i.price),
		Payment:   big.NewInt(0),
		Fee:       big.NewInt(0),
		CreatedAt: i.now(),
	}
	if err := i.store(rec); err != nil {
		return nil, err
	}
	i.emit(NewCreatedEvent(i.view(rec)))
	return rec.Clone(), nil
}

// Record returns a copy of the instance record.
func (i *Individual) Record() (*IndividualListing, error) {
	rec, err := i.load()
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// OnAssetReceived accepts the single asset from the seller while the sale is
// still open.
func (i *Individual) OnAssetReceived(operator, from [20]byte, assetID uint64, data []byte) error {
	rec, err := i.load()
	if err != nil {
		return err
	}
	if operator != rec.Seller {
		return markerrors.ErrUnauthorized
	}
	if rec.HasAsset {
		return markerrors.ErrAlreadyHasAsset
	}
	if rec.Aborted || rec.Paid {
		return markerrors.ErrInvalidState
	}
	rec.AssetID = assetID
	rec.HasAsset = true
	return i.store(rec)
}

// Pay buys the asset at exactly the listed price.
func (i *Individual) Pay(caller [20]byte, value *big.Int) error {
	if err := i.ready(); err != nil {
		return err
	}
	rec, err := i.load()
	if err != nil {
		return err
	}
	if rec.Paid {
		return markerrors.ErrAlreadyPaid
	}
	if !rec.HasAsset || rec.Aborted || rec.Price.Sign() == 0 {
		return markerrors.ErrNotForSale
	}
	if value == nil || value.Cmp(rec.Price) != 0 {
		return markerrors.ErrWrongPrice
	}
	if caller == rec.Seller {
		return markerrors.ErrUnauthorized
	}
	split := i.fees.PlatformOnly(rec.Price)
	if split.PlatformFee.Sign() > 0 && i.platform == ([20]byte{}) {
		return errNilPlatform
	}
	if err := i.bank.Transfer(caller, i.address, value); err != nil {
		return err
	}
	rec.Paid = true
	rec.Buyer = caller
	rec.Price = big.NewInt(0)
	rec.Payment = split.SellerNet
	rec.Fee = split.PlatformFee
	if err := i.store(rec); err != nil {
		return err
	}
	id := i.listingID()
	if err := i.balances.Credit(id, rec.Seller, split.SellerNet); err != nil {
		return err
	}
	if err := i.balances.Credit(id, i.platform, split.PlatformFee); err != nil {
		return err
	}
	if err := i.registry.Transfer(i.address, i.address, caller, rec.AssetID, nil); err != nil {
		return err
	}
	i.emit(NewPaidEvent(i.view(rec)))
	return nil
}

// Withdraw pays the seller its net proceeds and the platform its fee.
func (i *Individual) Withdraw(caller [20]byte) (*big.Int, error) {
	if err := i.ready(); err != nil {
		return nil, err
	}
	rec, err := i.load()
	if err != nil {
		return nil, err
	}
	if caller != rec.Seller {
		return nil, markerrors.ErrUnauthorized
	}
	if !rec.Paid {
		return nil, markerrors.ErrInvalidState
	}
	if rec.WithdrawnBySeller {
		return nil, markerrors.ErrAlreadyWithdrawn
	}
	rec.WithdrawnBySeller = true
	if err := i.store(rec); err != nil {
		return nil, err
	}
	id := i.listingID()
	amount, err := i.balances.Take(id, rec.Seller)
	if err != nil {
		return nil, err
	}
	fee, err := i.balances.Take(id, i.platform)
	if err != nil {
		return nil, err
	}
	if err := i.bank.Transfer(i.address, rec.Seller, amount); err != nil {
		return nil, err
	}
	if err := i.bank.Transfer(i.address, i.platform, fee); err != nil {
		return nil, err
	}
	i.emit(NewWithdrawnEvent(i.view(rec), amount))
	return amount, nil
}

// Abort cancels the sale before payment and returns a deposited asset.
func (i *Individual) Abort(caller [20]byte) error {
	if err := i.ready(); err != nil {
		return err
	}
	rec, err := i.load()
	if err != nil {
		return err
	}
	if caller != rec.Seller {
		return markerrors.ErrUnauthorized
	}
	if rec.Paid {
		return markerrors.ErrAlreadyPaid
	}
	if rec.Aborted {
		return markerrors.ErrNotForSale
	}
	rec.Aborted = true
	rec.Price = big.NewInt(0)
	if err := i.store(rec); err != nil {
		return err
	}
	if rec.HasAsset {
		if err := i.registry.Transfer(i.address, i.address, rec.Seller, rec.AssetID, nil); err != nil {
			return err
		}
	}
	i.emit(NewAbortedEvent(i.view(rec)))
	return nil
}

// Balance returns what addr may still collect from the instance.
func (i *Individual) Balance(addr [20]byte) (*big.Int, error) {
	if i.balances == nil {
		return nil, errNilState
	}
	return i.balances.Balance(i.listingID(), addr)
}
