package auction

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

// IndividualNamespace is the ledger namespace shared by single-asset auctions.
// Each instance uses its bech32 address as the listing id.
const IndividualNamespace = "auction.individual"

var errNotOpened = errors.New("auction: instance not opened")

type individualState interface {
	ledger.Store
	IndividualAuctionGet(addr [20]byte) (*IndividualAuction, bool, error)
	IndividualAuctionPut(*IndividualAuction) error
}

// Individual is an auction instance that sells exactly one asset. The asset
// arrives through the registry deposit hook instead of being minted by the
// auction itself.
type Individual struct {
	address      [20]byte
	beneficiary  [20]byte
	durationSecs uint64
	startingBid  *big.Int

	state    individualState
	pending  *ledger.Ledger
	registry common.AssetRegistry
	bank     common.FundMover
	emitter  events.Emitter
	platform [20]byte
	fees     fees.Policy
	nowFn    func() int64
}

// NewIndividual prepares an instance at address for beneficiary. The record is
// written by Open once the dependencies are configured.
func NewIndividual(address, beneficiary [20]byte, durationSecs uint64, startingBid *big.Int) *Individual {
	inst := Attach(address)
	inst.beneficiary = beneficiary
	inst.durationSecs = durationSecs
	inst.startingBid = cloneBigInt(startingBid)
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
	i.pending = ledger.New(IndividualNamespace, state)
}

// SetRegistry configures the asset registry used to move the sold asset.
func (i *Individual) SetRegistry(registry common.AssetRegistry) { i.registry = registry }

// SetBank configures the bank that holds and releases payments.
func (i *Individual) SetBank(bank common.FundMover) { i.bank = bank }

// SetPlatform sets the address entitled to the commission.
func (i *Individual) SetPlatform(addr [20]byte) { i.platform = addr }

// SetFeePolicy overrides the commission rate.
func (i *Individual) SetFeePolicy(policy fees.Policy) { i.fees = policy }

// SetNowFunc overrides the clock used for deadlines and timestamps.
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
	i.emitter.Emit(auctionEvent{evt: event})
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

func (i *Individual) load() (*IndividualAuction, error) {
	if i.state == nil {
		return nil, errNilState
	}
	rec, ok, err := i.state.IndividualAuctionGet(i.address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %w", markerrors.ErrNotFound, errNotOpened)
	}
	return rec, nil
}

func (i *Individual) store(rec *IndividualAuction) error {
	if i.state == nil {
		return errNilState
	}
	return i.state.IndividualAuctionPut(rec)
}

// view adapts the record to the multi-listing shape used by the event
// constructors.
func (i *Individual) view(rec *IndividualAuction) *Auction {
	return &Auction{
		ID:            i.listingID(),
		Beneficiary:   rec.Beneficiary,
		AssetID:       rec.AssetID,
		Deadline:      rec.Deadline,
		StartingBid:   rec.StartingBid,
		HighestBid:    rec.HighestBid,
		HighestBidder: rec.HighestBidder,
		Ended:         rec.Ended,
		Transferred:   rec.Transferred,
		CreatedAt:     rec.CreatedAt,
	}
}

// Open writes the initial record. The bidding window starts now.
func (i *Individual) Open() (*IndividualAuction, error) {
	if err := i.ready(); err != nil {
		return nil, err
	}
	if _, ok, err := i.state.IndividualAuctionGet(i.address); err != nil {
		return nil, err
	} else if ok {
		return nil, markerrors.ErrDuplicateID
	}
	if i.startingBid.Sign() < 0 {
		return nil, errNegativeValue
	}
	now := i.now()
	deadline, err := deadlineAfter(now, i.durationSecs)
	if err != nil {
		return nil, err
	}
	rec := &IndividualAuction{
		Address:     i.address,
		Beneficiary: i.beneficiary,
		Deadline:    deadline,
		StartingBid: cloneBigInt(i.startingBid),
		HighestBid:  big.NewInt(0),
		CreatedAt:   now,
	}
	if err := i.store(rec); err != nil {
		return nil, err
	}
	i.emit(NewCreatedEvent(i.view(rec)))
	return rec.Clone(), nil
}

// Record returns a copy of the instance record.
func (i *Individual) Record() (*IndividualAuction, error) {
	rec, err := i.load()
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// OnAssetReceived accepts the single asset from the beneficiary. Deposits
// into an ended or aborted instance are refused since nothing could release
// them afterwards.
func (i *Individual) OnAssetReceived(operator, from [20]byte, assetID uint64, data []byte) error {
	rec, err := i.load()
	if err != nil {
		return err
	}
	if operator != rec.Beneficiary {
		return markerrors.ErrUnauthorized
	}
	if rec.HasAsset {
		return markerrors.ErrAlreadyHasAsset
	}
	if rec.Ended {
		return markerrors.ErrInvalidState
	}
	rec.AssetID = assetID
	rec.HasAsset = true
	return i.store(rec)
}

// Bid places value on the instance.
func (i *Individual) Bid(caller [20]byte, value *big.Int) error {
	if err := i.ready(); err != nil {
		return err
	}
	rec, err := i.load()
	if err != nil {
		return err
	}
	if rec.Ended || i.now() >= rec.Deadline {
		return markerrors.ErrAuctionEnded
	}
	if !rec.HasAsset {
		return markerrors.ErrInvalidState
	}
	if caller == rec.Beneficiary {
		return markerrors.ErrSelfBid
	}
	amount := cloneBigInt(value)
	if amount.Cmp(rec.StartingBid) <= 0 {
		return markerrors.ErrBidTooLow
	}
	if amount.Cmp(rec.HighestBid) <= 0 {
		return markerrors.ErrHigherBidExists
	}
	if err := i.bank.Transfer(caller, i.address, amount); err != nil {
		return err
	}
	if rec.HighestBid.Sign() > 0 {
		if err := i.pending.Credit(i.listingID(), rec.HighestBidder, rec.HighestBid); err != nil {
			return err
		}
	}
	rec.HighestBid = amount
	rec.HighestBidder = caller
	if err := i.store(rec); err != nil {
		return err
	}
	i.emit(NewBidEvent(i.view(rec)))
	return nil
}

// Withdraw pays out the caller's pending return. The current highest bidder
// has nothing to withdraw: their funds are the live bid.
func (i *Individual) Withdraw(caller [20]byte) (*big.Int, error) {
	if err := i.ready(); err != nil {
		return nil, err
	}
	rec, err := i.load()
	if err != nil {
		return nil, err
	}
	if rec.HighestBid.Sign() > 0 && caller == rec.HighestBidder {
		return nil, markerrors.ErrStillHighestBidder
	}
	return i.payout(caller)
}

// WithdrawFee pays the platform its commission.
func (i *Individual) WithdrawFee(caller [20]byte) (*big.Int, error) {
	if err := i.ready(); err != nil {
		return nil, err
	}
	if i.platform == ([20]byte{}) || caller != i.platform {
		return nil, markerrors.ErrNotAuthorized
	}
	if _, err := i.load(); err != nil {
		return nil, err
	}
	return i.payout(caller)
}

func (i *Individual) payout(party [20]byte) (*big.Int, error) {
	id := i.listingID()
	amount, err := i.pending.Take(id, party)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return amount, nil
	}
	if err := i.bank.Transfer(i.address, party, amount); err != nil {
		return nil, err
	}
	i.emit(NewWithdrawnEvent(id, party, amount))
	return amount, nil
}

// AuctionEnd closes bidding and hands over the asset.
func (i *Individual) AuctionEnd(caller [20]byte) error {
	if err := i.ready(); err != nil {
		return err
	}
	rec, err := i.load()
	if err != nil {
		return err
	}
	if i.now() < rec.Deadline {
		return markerrors.ErrNotYetEnded
	}
	if rec.Ended {
		return markerrors.ErrAlreadyEnded
	}
	rec.Ended = true
	if err := i.store(rec); err != nil {
		return err
	}
	if rec.HasAsset {
		recipient := rec.Beneficiary
		if rec.HighestBid.Sign() > 0 {
			recipient = rec.HighestBidder
		}
		if err := i.registry.Transfer(i.address, i.address, recipient, rec.AssetID, nil); err != nil {
			return err
		}
	}
	i.emit(NewEndedEvent(i.view(rec)))
	return nil
}

// GetTheHighestBid pays the beneficiary the net proceeds and credits the
// platform its commission.
func (i *Individual) GetTheHighestBid(caller [20]byte) (*big.Int, error) {
	if err := i.ready(); err != nil {
		return nil, err
	}
	rec, err := i.load()
	if err != nil {
		return nil, err
	}
	if !rec.Ended {
		return nil, markerrors.ErrNotEnded
	}
	if caller != rec.Beneficiary {
		return nil, markerrors.ErrNotBeneficiary
	}
	if rec.Transferred {
		return nil, markerrors.ErrAlreadyWithdrawn
	}
	split := i.fees.PlatformOnly(rec.HighestBid)
	if split.PlatformFee.Sign() > 0 && i.platform == ([20]byte{}) {
		return nil, errNilPlatform
	}
	rec.Transferred = true
	if err := i.store(rec); err != nil {
		return nil, err
	}
	if err := i.pending.Credit(i.listingID(), i.platform, split.PlatformFee); err != nil {
		return nil, err
	}
	if err := i.bank.Transfer(i.address, rec.Beneficiary, split.SellerNet); err != nil {
		return nil, err
	}
	i.emit(NewCollectedEvent(i.view(rec), split.SellerNet, split.PlatformFee))
	return split.SellerNet, nil
}

// Abort cancels the instance before the deadline while nobody has bid.
func (i *Individual) Abort(caller [20]byte) error {
	if err := i.ready(); err != nil {
		return err
	}
	rec, err := i.load()
	if err != nil {
		return err
	}
	if caller != rec.Beneficiary {
		return markerrors.ErrNotAuthorized
	}
	if rec.Ended || i.now() >= rec.Deadline {
		return markerrors.ErrAuctionEnded
	}
	if rec.HighestBid.Sign() > 0 {
		return markerrors.ErrCannotAbort
	}
	rec.Ended = true
	if err := i.store(rec); err != nil {
		return err
	}
	if rec.HasAsset {
		if err := i.registry.Transfer(i.address, i.address, rec.Beneficiary, rec.AssetID, nil); err != nil {
			return err
		}
	}
	i.emit(NewAbortedEvent(i.view(rec)))
	return nil
}

// PendingReturn returns what addr may withdraw from the instance.
func (i *Individual) PendingReturn(addr [20]byte) (*big.Int, error) {
	if i.pending == nil {
		return nil, errNilState
	}
	return i.pending.Balance(i.listingID(), addr)
}
