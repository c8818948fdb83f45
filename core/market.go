package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"solirey/core/events"
	corestate "solirey/core/state"
	"solirey/crypto"
	"solirey/native/auction"
	"solirey/native/bank"
	"solirey/native/common"
	"solirey/native/escrow"
	"solirey/native/fees"
	"solirey/native/payment"
	"solirey/native/registry"
	"solirey/observability"
	"solirey/storage"
)

// Module names used for pause flags, logs and metrics.
const (
	ModuleAuction  = "auction"
	ModuleEscrow   = "escrow"
	ModulePayment  = "payment"
	ModuleRegistry = "registry"
	ModuleBank     = "bank"
)

var (
	errNilDatabase  = errors.New("market: database not configured")
	errUnknownKind  = errors.New("market: unknown listing kind")
	genesisFlagKey  = []byte("market/genesis")
	instanceAddrTag = []byte("solirey/instance")
)

// EngineAddress returns the custody address of a market engine.
func EngineAddress(name string) [20]byte {
	return crypto.DeriveAddress([]byte("solirey/engine"), []byte(name))
}

// MarketConfig carries the runtime settings of the market.
type MarketConfig struct {
	Platform [20]byte
	FeeBps   uint32
	Pauses   common.PauseView
	Now      func() int64
	Logger   *slog.Logger
	Emitter  events.Emitter
	// Tracer defaults to the global provider's "solirey/market" tracer.
	Tracer   trace.Tracer
}

// Market executes every call against the engines one at a time. Each call
// runs on a state snapshot that is committed when the call succeeds and
// rolled back when it fails, so a failing callback leaves no trace.
type Market struct {
	mu sync.Mutex

	state    *corestate.Manager
	registry *registry.Registry
	bank     *bank.Bank
	auctions *auction.Engine
	escrows  *escrow.Engine
	digital  *payment.Engine
	tangible *payment.Engine

	platform [20]byte
	fees     fees.Policy
	pauses   common.PauseView
	nowFn    func() int64
	logger   *slog.Logger
	tracer   trace.Tracer
	sink     events.Emitter
	pending  *eventBuffer
}

// NewMarket wires the registry, bank and engines over db.
func NewMarket(db storage.Database, cfg MarketConfig) (*Market, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	policy, err := fees.NewPolicy(cfg.FeeBps)
	if err != nil {
		return nil, err
	}
	if policy.FeeBps > 0 && cfg.Platform == ([20]byte{}) {
		return nil, fmt.Errorf("market: platform address required for a %d bps fee", policy.FeeBps)
	}
	m := &Market{
		state:    corestate.NewManager(db),
		registry: registry.NewRegistry(),
		platform: cfg.Platform,
		fees:     policy,
		pauses:   cfg.Pauses,
		nowFn:    cfg.Now,
		logger:   cfg.Logger,
		tracer:   cfg.Tracer,
		sink:     observability.EventCounter{Next: cfg.Emitter},
		pending:  &eventBuffer{},
	}
	if m.nowFn == nil {
		m.nowFn = func() int64 { return time.Now().Unix() }
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer("solirey/market")
	}
	m.logger = m.logger.With("component", "market")

	m.registry.SetState(m.state)
	m.registry.SetEmitter(m.pending)
	m.registry.SetResolver(m.resolveInstance)
	m.bank = bank.NewBank(m.state)

	m.auctions = auction.NewEngine()
	m.auctions.SetState(m.state)
	m.auctions.SetAddress(EngineAddress(ModuleAuction))
	m.configure(m.auctions)
	m.registry.RegisterReceiver(m.auctions.Address(), m.auctions)

	m.escrows = escrow.NewEngine()
	m.escrows.SetState(m.state)
	m.escrows.SetAddress(EngineAddress(ModuleEscrow))
	m.configure(m.escrows)
	m.registry.RegisterReceiver(m.escrows.Address(), m.escrows)

	for _, kind := range []payment.Kind{payment.KindDigital, payment.KindTangible} {
		engine := payment.NewEngine(kind)
		engine.SetState(m.state)
		engine.SetAddress(EngineAddress(kind.Namespace()))
		m.configure(engine)
		m.registry.RegisterReceiver(engine.Address(), engine)
		if kind == payment.KindDigital {
			m.digital = engine
		} else {
			m.tangible = engine
		}
	}
	return m, nil
}

// wirable is the configuration surface shared by every engine and instance.
type wirable interface {
	SetRegistry(common.AssetRegistry)
	SetBank(common.FundMover)
	SetPlatform([20]byte)
	SetFeePolicy(fees.Policy)
	SetNowFunc(func() int64)
	SetEmitter(events.Emitter)
}

func (m *Market) configure(target wirable) {
	target.SetRegistry(m.registry)
	target.SetBank(m.bank)
	target.SetPlatform(m.platform)
	target.SetFeePolicy(m.fees)
	target.SetNowFunc(m.now)
	target.SetEmitter(m.pending)
}

func (m *Market) now() int64 { return m.nowFn() }

// Platform returns the address entitled to commissions.
func (m *Market) Platform() [20]byte { return m.platform }

// FeePolicy returns the commission policy applied by every engine.
func (m *Market) FeePolicy() fees.Policy { return m.fees }

// Execute runs fn as one atomic market call.
func (m *Market) Execute(module, method string, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.execute(module, method, fn)
}

func (m *Market) execute(module, method string, fn func() error) (err error) {
	callID := uuid.NewString()
	start := time.Now()
	logger := m.logger.With("call", callID, "module", module, "method", method)
	_, span := m.tracer.Start(context.Background(), module+"."+method, trace.WithAttributes(
		attribute.String("market.module", module),
		attribute.String("market.method", method),
		attribute.String("market.call_id", callID),
	))
	defer func() {
		observability.Market().Observe(module, method, time.Since(start), err)
		if err != nil {
			span.SetAttributes(attribute.String("market.error_reason", observability.ErrorReason(err)))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "committed")
		}
		span.End()
	}()

	if err = common.Guard(m.pauses, module); err != nil {
		logger.Warn("market call rejected", "error", err)
		return err
	}

	snapshot := m.state.Snapshot()
	m.pending.reset()
	err = m.run(fn)
	if err == nil {
		err = m.state.Commit()
	}
	if err != nil {
		m.state.RevertToSnapshot(snapshot)
		m.pending.reset()
		observability.Market().RecordRevert(module)
		logger.Info("market call reverted",
			"error", err,
			"reason", observability.ErrorReason(err),
			"duration", time.Since(start))
		return err
	}
	for _, evt := range m.pending.drain() {
		m.sink.Emit(evt)
	}
	logger.Debug("market call committed", "duration", time.Since(start))
	return nil
}

func (m *Market) run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("market: call panicked: %v", r)
		}
	}()
	return fn()
}

// view runs a read-only function under the market lock.
func (m *Market) view(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

func (m *Market) settle(module string, amount *big.Int) {
	observability.Market().RecordSettlement(module, amount)
}

// ApplyGenesis credits the allocations once. Later calls are no-ops.
func (m *Market) ApplyGenesis(alloc map[[20]byte]*big.Int) error {
	return m.Execute(ModuleBank, "ApplyGenesis", func() error {
		applied, err := m.state.KVGet(genesisFlagKey, nil)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		for addr, amount := range alloc {
			if err := m.bank.Deposit(addr, amount); err != nil {
				return err
			}
		}
		return m.state.KVPut(genesisFlagKey, true)
	})
}

// Balance returns the spendable balance of addr.
func (m *Market) Balance(addr [20]byte) (*big.Int, error) {
	var out *big.Int
	err := m.view(func() error {
		var err error
		out, err = m.bank.Balance(addr)
		return err
	})
	return out, err
}

// Transfer moves funds between accounts.
func (m *Market) Transfer(from, to [20]byte, amount *big.Int) error {
	return m.Execute(ModuleBank, "Transfer", func() error {
		return m.bank.Transfer(from, to, amount)
	})
}

func (m *Market) paymentEngine(kind payment.Kind) (*payment.Engine, error) {
	switch kind {
	case payment.KindDigital:
		return m.digital, nil
	case payment.KindTangible:
		return m.tangible, nil
	default:
		return nil, errUnknownKind
	}
}

func (m *Market) deriveInstanceAddress(caller [20]byte) ([20]byte, error) {
	nonce, err := m.state.NextInstanceNonce()
	if err != nil {
		return [20]byte{}, err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return crypto.DeriveAddress(instanceAddrTag, caller[:], buf[:]), nil
}

// resolveInstance attaches deposit hooks for deployed instances on demand.
func (m *Market) resolveInstance(addr [20]byte) (registry.Receiver, bool) {
	kind, err := m.state.InstanceKindGet(addr)
	if err != nil {
		m.logger.Error("instance lookup failed", "address", crypto.FormatAddress(addr), "error", err)
		return nil, false
	}
	switch kind {
	case corestate.InstanceAuction:
		return m.attachAuction(addr), true
	case corestate.InstancePayment:
		return m.attachPayment(addr), true
	default:
		return nil, false
	}
}

func (m *Market) attachAuction(addr [20]byte) *auction.Individual {
	inst := auction.Attach(addr)
	inst.SetState(m.state)
	m.configure(inst)
	return inst
}

func (m *Market) attachPayment(addr [20]byte) *payment.Individual {
	inst := payment.Attach(addr)
	inst.SetState(m.state)
	m.configure(inst)
	return inst
}

// eventBuffer holds the events of the running call until it commits.
type eventBuffer struct {
	events []events.Event
}

func (b *eventBuffer) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

func (b *eventBuffer) reset() { b.events = b.events[:0] }

func (b *eventBuffer) drain() []events.Event {
	out := append([]events.Event(nil), b.events...)
	b.events = b.events[:0]
	return out
}
