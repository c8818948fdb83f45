package core

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"solirey/core/events"
	markerrors "solirey/core/errors"
	"solirey/native/common"
	"solirey/native/escrow"
	"solirey/native/payment"
	"solirey/storage"
)

var (
	platformAddr = testAddr(0xF0)
	alice        = testAddr(0x01)
	bob          = testAddr(0x02)
	carol        = testAddr(0x03)
)

func testAddr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func milli(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000))
}

type testMarket struct {
	*Market
	db     *storage.MemDB
	events *events.Recorder
	now    int64
}

func newTestMarket(t *testing.T, pauses common.PauseView) *testMarket {
	t.Helper()
	tm := &testMarket{db: storage.NewMemDB(), events: &events.Recorder{}, now: 10_000}
	tm.reopen(t, pauses)
	require.NoError(t, tm.ApplyGenesis(map[[20]byte]*big.Int{
		alice: ether(100),
		bob:   ether(100),
		carol: ether(100),
	}))
	return tm
}

func (tm *testMarket) reopen(t *testing.T, pauses common.PauseView) {
	t.Helper()
	market, err := NewMarket(tm.db, MarketConfig{
		Platform: platformAddr,
		FeeBps:   200,
		Pauses:   pauses,
		Now:      func() int64 { return tm.now },
		Emitter:  tm.events,
	})
	require.NoError(t, err)
	tm.Market = market
}

func (tm *testMarket) balance(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	bal, err := tm.Balance(addr)
	require.NoError(t, err)
	return bal
}

func TestNewMarketValidatesConfig(t *testing.T) {
	_, err := NewMarket(nil, MarketConfig{})
	require.Error(t, err)
	_, err = NewMarket(storage.NewMemDB(), MarketConfig{FeeBps: 200})
	require.Error(t, err)
	_, err = NewMarket(storage.NewMemDB(), MarketConfig{FeeBps: 9_000, Platform: platformAddr})
	require.Error(t, err)
	_, err = NewMarket(storage.NewMemDB(), MarketConfig{})
	require.NoError(t, err)
}

func TestExecuteRevertsFailedCalls(t *testing.T) {
	tm := newTestMarket(t, nil)
	boom := errors.New("boom")
	before := len(tm.events.Types())

	err := tm.Execute(ModuleBank, "Test", func() error {
		if err := tm.bank.Transfer(alice, bob, ether(5)); err != nil {
			return err
		}
		if _, err := tm.registry.Mint(alice, alice); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, ether(100), tm.balance(t, alice))
	require.Equal(t, ether(100), tm.balance(t, bob))
	_, err = tm.Asset(1)
	require.ErrorIs(t, err, markerrors.ErrNotFound)
	require.Len(t, tm.events.Types(), before)
	require.Zero(t, tm.state.Pending())
}

func TestExecuteRecoversPanics(t *testing.T) {
	tm := newTestMarket(t, nil)
	err := tm.Execute(ModuleBank, "Test", func() error {
		require.NoError(t, tm.bank.Transfer(alice, bob, ether(1)))
		panic("unexpected")
	})
	require.Error(t, err)
	require.Equal(t, ether(100), tm.balance(t, alice))
}

func TestGenesisAppliesOnce(t *testing.T) {
	tm := newTestMarket(t, nil)
	require.NoError(t, tm.ApplyGenesis(map[[20]byte]*big.Int{alice: ether(1)}))
	require.Equal(t, ether(100), tm.balance(t, alice))
}

func TestPausedModuleRejectsCalls(t *testing.T) {
	tm := newTestMarket(t, common.PauseSet{ModuleEscrow: true})
	_, err := tm.CreateEscrow(alice, "e-1", ether(2))
	require.ErrorIs(t, err, common.ErrModulePaused)
	require.Equal(t, ether(100), tm.balance(t, alice))

	_, err = tm.CreateAuction(alice, "lot", 100, big.NewInt(1))
	require.NoError(t, err)
}

func TestEscrowSettlementPersists(t *testing.T) {
	tm := newTestMarket(t, nil)
	esc, err := tm.CreateEscrow(alice, "e-1", ether(2))
	require.NoError(t, err)
	require.NoError(t, tm.ConfirmPurchase("e-1", bob, ether(2)))

	tm.reopen(t, nil)
	require.ErrorIs(t, tm.ConfirmReceived("e-1", carol), markerrors.ErrUnauthorized)
	require.NoError(t, tm.ConfirmReceived("e-1", bob))

	stored, err := tm.Escrow("e-1")
	require.NoError(t, err)
	require.Equal(t, escrow.StateInactive, stored.State)
	asset, err := tm.Asset(esc.AssetID)
	require.NoError(t, err)
	require.Equal(t, bob, asset.Holder)

	paid, err := tm.WithdrawEscrow("e-1", bob)
	require.NoError(t, err)
	require.Equal(t, ether(1), paid)
	paid, err = tm.WithdrawEscrow("e-1", alice)
	require.NoError(t, err)
	require.Equal(t, milli(2_980), paid)
	paid, err = tm.WithdrawEscrow("e-1", platformAddr)
	require.NoError(t, err)
	require.Equal(t, milli(20), paid)

	require.Equal(t, milli(100_980), tm.balance(t, alice))
	require.Equal(t, ether(99), tm.balance(t, bob))
	require.Zero(t, tm.balance(t, EngineAddress(ModuleEscrow)).Sign())
}

func TestAuctionUsesInjectedClock(t *testing.T) {
	tm := newTestMarket(t, nil)
	created, err := tm.CreateAuction(alice, "lot", 60, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, uint64(10_060), created.Deadline)

	require.NoError(t, tm.Bid("lot", bob, ether(1)))
	require.ErrorIs(t, tm.AuctionEnd("lot", carol), markerrors.ErrNotYetEnded)

	tm.now = 10_060
	require.ErrorIs(t, tm.Bid("lot", carol, ether(2)), markerrors.ErrAuctionEnded)
	require.NoError(t, tm.AuctionEnd("lot", carol))

	net, err := tm.GetTheHighestBid("lot", alice)
	require.NoError(t, err)
	require.Equal(t, milli(980), net)
	fee, err := tm.WithdrawAuctionFee("lot", platformAddr)
	require.NoError(t, err)
	require.Equal(t, milli(20), fee)

	asset, err := tm.Asset(created.AssetID)
	require.NoError(t, err)
	require.Equal(t, bob, asset.Holder)
}

func TestEventsReachSinkOnlyAfterCommit(t *testing.T) {
	tm := newTestMarket(t, nil)
	_, err := tm.CreatePayment(payment.KindDigital, alice, "sale", ether(1))
	require.NoError(t, err)
	_, ok := tm.events.Last(payment.EventTypePaymentCreated)
	require.True(t, ok)

	require.ErrorIs(t, tm.Pay(payment.KindDigital, "sale", bob, ether(2)), markerrors.ErrWrongPrice)
	_, ok = tm.events.Last(payment.EventTypePaymentPaid)
	require.False(t, ok)

	require.NoError(t, tm.Pay(payment.KindDigital, "sale", bob, ether(1)))
	_, ok = tm.events.Last(payment.EventTypePaymentPaid)
	require.True(t, ok)
}

func TestPaymentKindsAreSeparate(t *testing.T) {
	tm := newTestMarket(t, nil)
	_, err := tm.CreatePayment(payment.KindTangible, alice, "sale", ether(1))
	require.NoError(t, err)
	_, err = tm.Listing(payment.KindDigital, "sale")
	require.ErrorIs(t, err, markerrors.ErrNotFound)
	_, err = tm.CreatePayment(payment.KindDigital, alice, "sale", ether(1))
	require.NoError(t, err)
	_, err = tm.CreatePayment(payment.Kind(7), alice, "other", ether(1))
	require.Error(t, err)
}

func TestIndividualAuctionSurvivesRestart(t *testing.T) {
	tm := newTestMarket(t, nil)
	inst, err := tm.DeployIndividualAuction(alice, 100, big.NewInt(0))
	require.NoError(t, err)

	other, err := tm.DeployIndividualAuction(alice, 100, big.NewInt(0))
	require.NoError(t, err)
	require.NotEqual(t, inst, other)

	assetID, err := tm.MintAsset(alice, alice)
	require.NoError(t, err)

	// A fresh market attaches the instance hook from state.
	tm.reopen(t, nil)
	require.ErrorIs(t, tm.TransferAsset(bob, alice, inst, assetID), markerrors.ErrNotOwnerOrApproved)
	require.NoError(t, tm.TransferAsset(alice, alice, inst, assetID))

	rec, err := tm.IndividualAuction(inst)
	require.NoError(t, err)
	require.True(t, rec.HasAsset)

	require.NoError(t, tm.IndividualBid(inst, bob, ether(1)))
	require.NoError(t, tm.IndividualBid(inst, carol, ether(2)))
	_, err = tm.IndividualWithdrawBid(inst, carol)
	require.ErrorIs(t, err, markerrors.ErrStillHighestBidder)
	refund, err := tm.IndividualWithdrawBid(inst, bob)
	require.NoError(t, err)
	require.Equal(t, ether(1), refund)

	tm.now += 100
	require.NoError(t, tm.IndividualAuctionEnd(inst, bob))
	net, err := tm.IndividualGetTheHighestBid(inst, alice)
	require.NoError(t, err)
	require.Equal(t, milli(1_960), net)
	fee, err := tm.IndividualWithdrawAuctionFee(inst, platformAddr)
	require.NoError(t, err)
	require.Equal(t, milli(40), fee)

	asset, err := tm.Asset(assetID)
	require.NoError(t, err)
	require.Equal(t, carol, asset.Holder)
	require.Zero(t, tm.balance(t, inst).Sign())

	_, err = tm.IndividualListing(inst)
	require.ErrorIs(t, err, markerrors.ErrNotFound)
}

func TestIndividualPaymentFlow(t *testing.T) {
	tm := newTestMarket(t, nil)
	inst, err := tm.DeployIndividualPayment(alice, ether(1))
	require.NoError(t, err)
	require.ErrorIs(t, tm.IndividualPay(inst, bob, ether(1)), markerrors.ErrNotForSale)

	assetID, err := tm.MintAsset(alice, inst)
	require.NoError(t, err)
	require.NoError(t, tm.IndividualPay(inst, bob, ether(1)))
	require.ErrorIs(t, tm.IndividualAbortPayment(inst, alice), markerrors.ErrAlreadyPaid)

	paid, err := tm.IndividualWithdrawPayment(inst, alice)
	require.NoError(t, err)
	require.Equal(t, milli(980), paid)
	require.Equal(t, milli(20), tm.balance(t, platformAddr))

	asset, err := tm.Asset(assetID)
	require.NoError(t, err)
	require.Equal(t, bob, asset.Holder)
}

func TestFailedDeployLeavesNoInstance(t *testing.T) {
	tm := newTestMarket(t, nil)
	_, err := tm.DeployIndividualPayment(alice, big.NewInt(0))
	require.ErrorIs(t, err, markerrors.ErrZeroPrice)

	inst, err := tm.DeployIndividualPayment(alice, ether(1))
	require.NoError(t, err)
	rec, err := tm.IndividualListing(inst)
	require.NoError(t, err)
	require.Equal(t, alice, rec.Seller)
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) string {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestExecuteTracesCalls(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	market, err := NewMarket(storage.NewMemDB(), MarketConfig{
		Platform: platformAddr,
		FeeBps:   200,
		Tracer:   provider.Tracer("test"),
	})
	require.NoError(t, err)

	_, err = market.CreateEscrow(alice, "deal-1", ether(2))
	require.Error(t, err)
	require.NoError(t, market.ApplyGenesis(map[[20]byte]*big.Int{alice: ether(10)}))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	failed := spans[0]
	require.Equal(t, "escrow.CreateEscrow", failed.Name())
	require.Equal(t, ModuleEscrow, spanAttr(failed, "market.module"))
	require.Equal(t, "CreateEscrow", spanAttr(failed, "market.method"))
	require.NotEmpty(t, spanAttr(failed, "market.error_reason"))
	require.Equal(t, codes.Error, failed.Status().Code)

	ok := spans[1]
	require.Equal(t, "bank.ApplyGenesis", ok.Name())
	require.Empty(t, spanAttr(ok, "market.error_reason"))
	require.Equal(t, codes.Ok, ok.Status().Code)
}
