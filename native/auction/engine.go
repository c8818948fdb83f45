package auction

import (
	"errors"
	"fmt"
	"math"
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

// Namespace is the pending-return ledger namespace of the auction engine.
const Namespace = "auction"

var (
	errNilState      = errors.New("auction engine: state not configured")
	errNilRegistry   = errors.New("auction engine: registry not configured")
	errNilBank       = errors.New("auction engine: bank not configured")
	errNilAddress    = errors.New("auction engine: custody address not configured")
	errNilPlatform   = errors.New("auction engine: platform address not configured")
	errNegativeValue = errors.New("auction engine: negative amount")
	errLongDuration  = errors.New("auction engine: duration overflows deadline")
)

type engineState interface {
	ledger.Store
	AuctionGet(id string) (*Auction, bool, error)
	AuctionPut(*Auction) error
}

type auctionEvent struct {
	evt *types.Event
}

func (e auctionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e auctionEvent) Event() *types.Event { return e.evt }

// Engine runs any number of concurrent auctions keyed by caller supplied ids.
// Bid funds sit at the engine address until the beneficiary collects them or
// the outbid bidders withdraw their pending returns.
type Engine struct {
	state      engineState
	pending    *ledger.Ledger
	registry   common.AssetRegistry
	bank       common.FundMover
	emitter    events.Emitter
	address    [20]byte
	platform   [20]byte
	fees       fees.Policy
	nowFn      func() int64
	depositing bool
}

// NewEngine creates an auction engine with a no-op emitter and the default
// fee policy.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		fees:    fees.DefaultPolicy(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) {
	e.state = state
	e.pending = ledger.New(Namespace, state)
}

// SetRegistry configures the asset registry holding the auctioned assets.
func (e *Engine) SetRegistry(registry common.AssetRegistry) { e.registry = registry }

// SetBank configures the fund mover used for bids and payouts.
func (e *Engine) SetBank(bank common.FundMover) { e.bank = bank }

// SetAddress configures the address that takes custody of assets and funds.
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
	e.emitter.Emit(auctionEvent{evt: event})
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

// deadlineAfter returns now+durationSecs, rejecting sums that wrap.
func deadlineAfter(now, durationSecs uint64) (uint64, error) {
	if durationSecs > math.MaxUint64-now {
		return 0, errLongDuration
	}
	return now + durationSecs, nil
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.registry == nil:
		return errNilRegistry
	case e.bank == nil:
		return errNilBank
	case e.address == ([20]byte{}):
		return errNilAddress
	}
	return nil
}

func (e *Engine) loadAuction(id string) (*Auction, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	auction, ok, err := e.state.AuctionGet(strings.TrimSpace(id))
	if err != nil {
		return nil, false, err
	}
	return auction, ok, nil
}

func (e *Engine) mustLoadAuction(id string) (*Auction, error) {
	auction, ok, err := e.loadAuction(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: auction %q", markerrors.ErrNotFound, id)
	}
	return auction, nil
}

func (e *Engine) storeAuction(a *Auction) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.AuctionPut(a)
}

func (e *Engine) ensureIDAvailable(id string) error {
	existing, ok, err := e.loadAuction(id)
	if err != nil {
		return err
	}
	if ok && !existing.Settled() {
		return markerrors.ErrDuplicateID
	}
	return nil
}

// OnAssetReceived accepts custody only while the engine itself is pulling an
// asset in during CreateAuction or Resell.
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

// CreateAuction mints a new asset attributed to the caller directly into the
// engine's custody and opens an auction for it.
func (e *Engine) CreateAuction(caller [20]byte, id string, durationSecs uint64, startingBid *big.Int) (*Auction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	id, err := common.SanitizeID(id)
	if err != nil {
		return nil, err
	}
	starting := cloneBigInt(startingBid)
	if starting.Sign() < 0 {
		return nil, errNegativeValue
	}
	if _, err := deadlineAfter(e.now(), durationSecs); err != nil {
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
	return e.open(caller, id, assetID, durationSecs, starting)
}

// Resell lets the current holder of an asset auction it again under a new or
// settled id.
func (e *Engine) Resell(caller [20]byte, id string, assetID uint64, durationSecs uint64, startingBid *big.Int) (*Auction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	id, err := common.SanitizeID(id)
	if err != nil {
		return nil, err
	}
	starting := cloneBigInt(startingBid)
	if starting.Sign() < 0 {
		return nil, errNegativeValue
	}
	if _, err := deadlineAfter(e.now(), durationSecs); err != nil {
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
	err = e.withCustody(func() error {
		return e.registry.Transfer(caller, caller, e.address, assetID, nil)
	})
	if err != nil {
		return nil, err
	}
	return e.open(caller, id, assetID, durationSecs, starting)
}

func (e *Engine) open(beneficiary [20]byte, id string, assetID uint64, durationSecs uint64, startingBid *big.Int) (*Auction, error) {
	now := e.now()
	deadline, err := deadlineAfter(now, durationSecs)
	if err != nil {
		return nil, err
	}
	auction := &Auction{
		ID:          id,
		Beneficiary: beneficiary,
		AssetID:     assetID,
		Deadline:    deadline,
		StartingBid: startingBid,
		HighestBid:  big.NewInt(0),
		CreatedAt:   now,
	}
	if err := e.storeAuction(auction); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(auction))
	return auction.Clone(), nil
}

// Bid places value on the auction. The previous highest bid becomes a pending
// return of its bidder.
func (e *Engine) Bid(id string, caller [20]byte, value *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	auction, ok, err := e.loadAuction(id)
	if err != nil {
		return err
	}
	if !ok || auction.Ended || e.now() >= auction.Deadline {
		return markerrors.ErrAuctionEnded
	}
	if caller == auction.Beneficiary {
		return markerrors.ErrSelfBid
	}
	amount := cloneBigInt(value)
	if amount.Cmp(auction.StartingBid) <= 0 {
		return markerrors.ErrBidTooLow
	}
	if amount.Cmp(auction.HighestBid) <= 0 {
		return markerrors.ErrHigherBidExists
	}
	if err := e.bank.Transfer(caller, e.address, amount); err != nil {
		return err
	}
	if auction.HasBid() {
		if err := e.pending.Credit(auction.ID, auction.HighestBidder, auction.HighestBid); err != nil {
			return err
		}
	}
	auction.HighestBid = amount
	auction.HighestBidder = caller
	if err := e.storeAuction(auction); err != nil {
		return err
	}
	e.emit(NewBidEvent(auction))
	return nil
}

// Withdraw pays out the caller's pending return. A zero balance is a no-op.
func (e *Engine) Withdraw(id string, caller [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	auction, err := e.mustLoadAuction(id)
	if err != nil {
		return nil, err
	}
	return e.payout(auction.ID, caller)
}

// WithdrawFee pays the platform its accumulated commission for the auction.
func (e *Engine) WithdrawFee(id string, caller [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.platform == ([20]byte{}) || caller != e.platform {
		return nil, markerrors.ErrNotAuthorized
	}
	auction, err := e.mustLoadAuction(id)
	if err != nil {
		return nil, err
	}
	return e.payout(auction.ID, caller)
}

func (e *Engine) payout(id string, party [20]byte) (*big.Int, error) {
	amount, err := e.pending.Take(id, party)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return amount, nil
	}
	if err := e.bank.Transfer(e.address, party, amount); err != nil {
		return nil, err
	}
	e.emit(NewWithdrawnEvent(id, party, amount))
	return amount, nil
}

// AuctionEnd closes the auction once the deadline passed and hands the asset
// to the winner, or back to the beneficiary when nobody bid. Anyone may call.
func (e *Engine) AuctionEnd(id string, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	auction, err := e.mustLoadAuction(id)
	if err != nil {
		return err
	}
	if e.now() < auction.Deadline {
		return markerrors.ErrNotYetEnded
	}
	if auction.Ended {
		return markerrors.ErrAlreadyEnded
	}
	auction.Ended = true
	if err := e.storeAuction(auction); err != nil {
		return err
	}
	recipient := auction.Beneficiary
	if auction.HasBid() {
		recipient = auction.HighestBidder
	}
	if err := e.registry.Transfer(e.address, e.address, recipient, auction.AssetID, nil); err != nil {
		return err
	}
	e.emit(NewEndedEvent(auction))
	return nil
}

// GetTheHighestBid settles the proceeds of an ended auction: the commission is
// credited to the platform and the net is paid to the beneficiary.
func (e *Engine) GetTheHighestBid(id string, caller [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	auction, err := e.mustLoadAuction(id)
	if err != nil {
		return nil, err
	}
	if !auction.Ended {
		return nil, markerrors.ErrNotEnded
	}
	if caller != auction.Beneficiary {
		return nil, markerrors.ErrNotBeneficiary
	}
	if auction.Transferred {
		return nil, markerrors.ErrAlreadyWithdrawn
	}
	split := e.fees.PlatformOnly(auction.HighestBid)
	if split.PlatformFee.Sign() > 0 && e.platform == ([20]byte{}) {
		return nil, errNilPlatform
	}
	auction.Transferred = true
	if err := e.storeAuction(auction); err != nil {
		return nil, err
	}
	if err := e.pending.Credit(auction.ID, e.platform, split.PlatformFee); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(e.address, auction.Beneficiary, split.SellerNet); err != nil {
		return nil, err
	}
	e.emit(NewCollectedEvent(auction, split.SellerNet, split.PlatformFee))
	return split.SellerNet, nil
}

// Abort cancels an auction nobody bid on and returns the asset.
func (e *Engine) Abort(id string, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	auction, err := e.mustLoadAuction(id)
	if err != nil {
		return err
	}
	if caller != auction.Beneficiary {
		return markerrors.ErrNotBeneficiary
	}
	if auction.Ended {
		return markerrors.ErrAlreadyEnded
	}
	if auction.HasBid() {
		return markerrors.ErrCannotAbort
	}
	auction.Ended = true
	if err := e.storeAuction(auction); err != nil {
		return err
	}
	if err := e.registry.Transfer(e.address, e.address, auction.Beneficiary, auction.AssetID, nil); err != nil {
		return err
	}
	e.emit(NewAbortedEvent(auction))
	return nil
}

// Auction returns a copy of the auction record.
func (e *Engine) Auction(id string) (*Auction, error) {
	auction, err := e.mustLoadAuction(id)
	if err != nil {
		return nil, err
	}
	return auction.Clone(), nil
}

// PendingReturn returns what addr may withdraw from the auction.
func (e *Engine) PendingReturn(id string, addr [20]byte) (*big.Int, error) {
	if e == nil || e.pending == nil {
		return nil, errNilState
	}
	return e.pending.Balance(strings.TrimSpace(id), addr)
}
