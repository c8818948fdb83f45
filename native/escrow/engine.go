package escrow

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

// Namespace is the ledger namespace of the escrow engine.
const Namespace = "escrow"

var (
	errNilState    = errors.New("escrow engine: state not configured")
	errNilRegistry = errors.New("escrow engine: registry not configured")
	errNilBank     = errors.New("escrow engine: bank not configured")
	errNilAddress  = errors.New("escrow engine: custody address not configured")
	errNilPlatform = errors.New("escrow engine: platform address not configured")
)

type engineState interface {
	ledger.Store
	EscrowGet(id string) (*Escrow, bool, error)
	EscrowPut(*Escrow) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine wires the escrow business logic with external state, the asset
// registry and the bank. Settlement credits the ledger and every party pulls
// its share with Withdraw.
type Engine struct {
	state      engineState
	balances   *ledger.Ledger
	registry   common.AssetRegistry
	bank       common.FundMover
	emitter    events.Emitter
	address    [20]byte
	platform   [20]byte
	fees       fees.Policy
	nowFn      func() int64
	receiving  common.Lock
	depositing bool
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
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
	e.balances = ledger.New(Namespace, state)
}

// SetRegistry configures the asset registry.
func (e *Engine) SetRegistry(registry common.AssetRegistry) { e.registry = registry }

// SetBank configures the fund mover.
func (e *Engine) SetBank(bank common.FundMover) { e.bank = bank }

// SetAddress configures the custody address of the engine.
func (e *Engine) SetAddress(addr [20]byte) { e.address = addr }

// Address returns the custody address of the engine.
func (e *Engine) Address() [20]byte { return e.address }

// SetPlatform configures the address that should receive escrow fees.
func (e *Engine) SetPlatform(addr [20]byte) { e.platform = addr }

// SetFeePolicy overrides the commission policy.
func (e *Engine) SetFeePolicy(policy fees.Policy) { e.fees = policy }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
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
	e.emitter.Emit(escrowEvent{evt: event})
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
	case e.registry == nil:
		return errNilRegistry
	case e.bank == nil:
		return errNilBank
	case e.address == ([20]byte{}):
		return errNilAddress
	}
	return nil
}

func (e *Engine) loadEscrow(id string) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok, err := e.state.EscrowGet(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: escrow %q", markerrors.ErrNotFound, id)
	}
	return esc, nil
}

func (e *Engine) storeEscrow(esc *Escrow) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	sanitized, err := SanitizeEscrow(esc)
	if err != nil {
		return err
	}
	return e.state.EscrowPut(sanitized)
}

func (e *Engine) ensureIDAvailable(id string) error {
	_, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return err
	}
	if ok {
		return markerrors.ErrDuplicateID
	}
	return nil
}

func checkStake(value *big.Int) error {
	if value == nil || value.Sign() <= 0 || value.Bit(0) == 1 {
		return markerrors.ErrOddValue
	}
	return nil
}

// OnAssetReceived accepts custody only while the engine itself is pulling an
// asset in during CreateEscrow or Resell.
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

// CreateEscrow stakes value from the seller and mints the asset being sold
// into custody. The sale price is value/2.
func (e *Engine) CreateEscrow(caller [20]byte, id string, value *big.Int) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	id, err := common.SanitizeID(id)
	if err != nil {
		return nil, err
	}
	if err := checkStake(value); err != nil {
		return nil, err
	}
	if err := e.ensureIDAvailable(id); err != nil {
		return nil, err
	}
	stake := new(big.Int).Set(value)
	if err := e.bank.Transfer(caller, e.address, stake); err != nil {
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
	return e.open(caller, caller, id, assetID, stake)
}

// Resell lists an asset the caller holds. Royalties keep flowing to the
// asset's original creator.
func (e *Engine) Resell(caller [20]byte, id string, assetID uint64, value *big.Int) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
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
		return nil, markerrors.ErrUnauthorized
	}
	if err := checkStake(value); err != nil {
		return nil, err
	}
	if err := e.ensureIDAvailable(id); err != nil {
		return nil, err
	}
	creator, err := e.registry.OriginalCreatorOf(assetID)
	if err != nil {
		return nil, err
	}
	stake := new(big.Int).Set(value)
	if err := e.bank.Transfer(caller, e.address, stake); err != nil {
		return nil, err
	}
	err = e.withCustody(func() error {
		return e.registry.Transfer(caller, caller, e.address, assetID, nil)
	})
	if err != nil {
		return nil, err
	}
	return e.open(caller, creator, id, assetID, stake)
}

func (e *Engine) open(seller, creator [20]byte, id string, assetID uint64, stake *big.Int) (*Escrow, error) {
	esc := &Escrow{
		ID:        id,
		Seller:    seller,
		Creator:   creator,
		AssetID:   assetID,
		Value:     new(big.Int).Rsh(stake, 1),
		State:     StateCreated,
		CreatedAt: e.now(),
	}
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(esc))
	return esc.Clone(), nil
}

// ConfirmPurchase locks the escrow with the buyer's matching stake.
func (e *Engine) ConfirmPurchase(id string, caller [20]byte, value *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.State != StateCreated {
		return markerrors.ErrInvalidState
	}
	if value == nil || value.Cmp(esc.Stake()) != 0 {
		return markerrors.ErrWrongAmount
	}
	if caller == esc.Seller {
		return markerrors.ErrUnauthorized
	}
	if err := e.bank.Transfer(caller, e.address, value); err != nil {
		return err
	}
	esc.Buyer = caller
	esc.State = StateLocked
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewPurchasedEvent(esc))
	return nil
}

// ConfirmReceived settles a locked escrow. The buyer gets Value back, the
// seller its stake plus the net price, and the creator and platform one fee
// unit each. The asset is handed to the buyer last.
func (e *Engine) ConfirmReceived(id string, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.receiving.Enter() {
		return markerrors.ErrInvalidState
	}
	defer e.receiving.Exit()

	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Buyer {
		return markerrors.ErrUnauthorized
	}
	if esc.State != StateLocked {
		return markerrors.ErrInvalidState
	}
	split := e.fees.WithRoyalty(esc.Value)
	if split.PlatformFee.Sign() > 0 && e.platform == ([20]byte{}) {
		return errNilPlatform
	}
	esc.State = StateInactive
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	sellerShare := new(big.Int).Add(esc.Stake(), split.SellerNet)
	credits := []struct {
		party  [20]byte
		amount *big.Int
	}{
		{esc.Buyer, esc.Value},
		{esc.Seller, sellerShare},
		{esc.Creator, split.CreatorRoyalty},
		{e.platform, split.PlatformFee},
	}
	for _, c := range credits {
		if err := e.balances.Credit(esc.ID, c.party, c.amount); err != nil {
			return err
		}
	}
	if err := e.registry.Transfer(e.address, e.address, esc.Buyer, esc.AssetID, nil); err != nil {
		return err
	}
	e.emit(NewReceivedEvent(esc))
	return nil
}

// Abort cancels an escrow nobody bought yet. The seller's stake becomes
// withdrawable and the asset goes back to the seller.
func (e *Engine) Abort(id string, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Seller {
		return markerrors.ErrUnauthorized
	}
	if esc.State != StateCreated {
		return markerrors.ErrInvalidState
	}
	esc.State = StateInactive
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	if err := e.balances.Credit(esc.ID, esc.Seller, esc.Stake()); err != nil {
		return err
	}
	if err := e.registry.Transfer(e.address, e.address, esc.Seller, esc.AssetID, nil); err != nil {
		return err
	}
	e.emit(NewAbortedEvent(esc))
	return nil
}

// Withdraw pays the caller everything the escrow credited to it. A zero
// balance is a no-op.
func (e *Engine) Withdraw(id string, caller [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	amount, err := e.balances.Take(esc.ID, caller)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return amount, nil
	}
	if err := e.bank.Transfer(e.address, caller, amount); err != nil {
		return nil, err
	}
	e.emit(NewWithdrawnEvent(esc.ID, caller, amount))
	return amount, nil
}

// Escrow returns a copy of the escrow record.
func (e *Engine) Escrow(id string) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// Balance returns what addr may withdraw from the escrow.
func (e *Engine) Balance(id string, addr [20]byte) (*big.Int, error) {
	if e == nil || e.balances == nil {
		return nil, errNilState
	}
	return e.balances.Balance(strings.TrimSpace(id), addr)
}
