package escrow

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"solirey/core/events"
	markerrors "solirey/core/errors"
	"solirey/native/bank"
	"solirey/native/nativetest"
	"solirey/native/registry"
)

type mockState struct {
	*nativetest.State
	escrows map[string]*Escrow
}

func newMockState() *mockState {
	return &mockState{State: nativetest.NewState(), escrows: make(map[string]*Escrow)}
}

func (m *mockState) EscrowPut(e *Escrow) error {
	if e == nil {
		return fmt.Errorf("nil escrow")
	}
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return err
	}
	m.escrows[sanitized.ID] = sanitized.Clone()
	return nil
}

func (m *mockState) EscrowGet(id string) (*Escrow, bool, error) {
	esc, ok := m.escrows[id]
	if !ok {
		return nil, false, nil
	}
	return esc.Clone(), true, nil
}

type receiverFunc func(operator, from [20]byte, assetID uint64, data []byte) error

func (f receiverFunc) OnAssetReceived(operator, from [20]byte, assetID uint64, data []byte) error {
	return f(operator, from, assetID, data)
}

var (
	engineAddr = nativetest.Address(0xE1)
	platform   = nativetest.Address(0xF0)
	seller     = nativetest.Address(0x01)
	buyer      = nativetest.Address(0x02)
	stranger   = nativetest.Address(0x03)
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func milli(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000))
}

type harness struct {
	state    *mockState
	registry *registry.Registry
	bank     *bank.Bank
	engine   *Engine
	events   *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{state: newMockState(), events: &events.Recorder{}}
	h.registry = registry.NewRegistry()
	h.registry.SetState(h.state)
	h.bank = bank.NewBank(h.state)
	h.engine = NewEngine()
	h.engine.SetState(h.state)
	h.engine.SetRegistry(h.registry)
	h.engine.SetBank(h.bank)
	h.engine.SetAddress(engineAddr)
	h.engine.SetPlatform(platform)
	h.engine.SetEmitter(h.events)
	h.engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	h.registry.RegisterReceiver(engineAddr, h.engine)
	for _, addr := range [][20]byte{seller, buyer, stranger} {
		require.NoError(t, h.bank.Deposit(addr, ether(10)))
	}
	return h
}

func (h *harness) balance(id string, addr [20]byte) *big.Int {
	bal, err := h.engine.Balance(id, addr)
	if err != nil {
		panic(err)
	}
	return bal
}

func TestScenarioEscrowLifecycle(t *testing.T) {
	h := newHarness(t)
	esc, err := h.engine.CreateEscrow(seller, "deal-1", ether(2))
	require.NoError(t, err)
	require.Equal(t, 0, esc.Value.Cmp(ether(1)))
	require.Equal(t, StateCreated, esc.State)
	require.Equal(t, seller, esc.Creator)

	owner, err := h.registry.OwnerOf(esc.AssetID)
	require.NoError(t, err)
	require.Equal(t, engineAddr, owner)

	require.ErrorIs(t, h.engine.ConfirmPurchase("deal-1", buyer, ether(1)), markerrors.ErrWrongAmount)
	require.NoError(t, h.engine.ConfirmPurchase("deal-1", buyer, ether(2)))
	require.ErrorIs(t, h.engine.ConfirmPurchase("deal-1", stranger, ether(2)), markerrors.ErrInvalidState)

	require.ErrorIs(t, h.engine.ConfirmReceived("deal-1", stranger), markerrors.ErrUnauthorized)
	require.NoError(t, h.engine.ConfirmReceived("deal-1", buyer))
	require.ErrorIs(t, h.engine.ConfirmReceived("deal-1", buyer), markerrors.ErrInvalidState)

	owner, err = h.registry.OwnerOf(esc.AssetID)
	require.NoError(t, err)
	require.Equal(t, buyer, owner)

	// v = 1 ether, unit = 0.02 ether. Seller is also the creator.
	require.Equal(t, 0, h.balance("deal-1", buyer).Cmp(ether(1)))
	require.Equal(t, 0, h.balance("deal-1", seller).Cmp(milli(2_980)))
	require.Equal(t, 0, h.balance("deal-1", platform).Cmp(milli(20)))

	for _, party := range [][20]byte{buyer, seller, platform} {
		_, err := h.engine.Withdraw("deal-1", party)
		require.NoError(t, err)
	}
	require.Zero(t, h.state.BalanceOf(engineAddr).Sign())
	require.Equal(t, 0, h.state.BalanceOf(buyer).Cmp(ether(9)))
	require.Equal(t, 0, h.state.BalanceOf(seller).Cmp(milli(10_980)))

	again, err := h.engine.Withdraw("deal-1", buyer)
	require.NoError(t, err)
	require.Zero(t, again.Sign())

	require.Equal(t, []string{
		EventTypeEscrowCreated,
		EventTypeEscrowPurchased,
		EventTypeEscrowReceived,
		EventTypeEscrowWithdrawn,
		EventTypeEscrowWithdrawn,
		EventTypeEscrowWithdrawn,
	}, h.events.Types())
}

func TestCreateEscrowRejectsOddValue(t *testing.T) {
	h := newHarness(t)
	for _, v := range []*big.Int{big.NewInt(3), big.NewInt(0), nil} {
		_, err := h.engine.CreateEscrow(seller, "deal-1", v)
		require.ErrorIs(t, err, markerrors.ErrOddValue)
	}
	require.Equal(t, 0, h.state.BalanceOf(seller).Cmp(ether(10)))
}

func TestDuplicateEscrowID(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateEscrow(seller, "deal-1", big.NewInt(100))
	require.NoError(t, err)
	require.NoError(t, h.engine.Abort("deal-1", seller))

	_, err = h.engine.CreateEscrow(seller, "deal-1", big.NewInt(100))
	require.ErrorIs(t, err, markerrors.ErrDuplicateID)
}

func TestSellerCannotBuyOwnEscrow(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateEscrow(seller, "deal-1", big.NewInt(100))
	require.NoError(t, err)
	require.ErrorIs(t, h.engine.ConfirmPurchase("deal-1", seller, big.NewInt(100)), markerrors.ErrUnauthorized)
}

func TestAbort(t *testing.T) {
	h := newHarness(t)
	esc, err := h.engine.CreateEscrow(seller, "deal-1", ether(2))
	require.NoError(t, err)

	require.ErrorIs(t, h.engine.Abort("deal-1", buyer), markerrors.ErrUnauthorized)
	require.NoError(t, h.engine.Abort("deal-1", seller))
	require.ErrorIs(t, h.engine.Abort("deal-1", seller), markerrors.ErrInvalidState)
	require.ErrorIs(t, h.engine.ConfirmPurchase("deal-1", buyer, ether(2)), markerrors.ErrInvalidState)

	owner, err := h.registry.OwnerOf(esc.AssetID)
	require.NoError(t, err)
	require.Equal(t, seller, owner)

	got, err := h.engine.Withdraw("deal-1", seller)
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(ether(2)))
	require.Equal(t, 0, h.state.BalanceOf(seller).Cmp(ether(10)))
}

func TestAbortAfterPurchase(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateEscrow(seller, "deal-1", ether(2))
	require.NoError(t, err)
	require.NoError(t, h.engine.ConfirmPurchase("deal-1", buyer, ether(2)))
	require.ErrorIs(t, h.engine.Abort("deal-1", seller), markerrors.ErrInvalidState)
}

func TestResellPaysOriginalCreator(t *testing.T) {
	h := newHarness(t)
	esc, err := h.engine.CreateEscrow(seller, "deal-1", ether(2))
	require.NoError(t, err)
	require.NoError(t, h.engine.ConfirmPurchase("deal-1", buyer, ether(2)))
	require.NoError(t, h.engine.ConfirmReceived("deal-1", buyer))

	_, err = h.engine.Resell(stranger, "deal-2", esc.AssetID, ether(4))
	require.ErrorIs(t, err, markerrors.ErrUnauthorized)
	_, err = h.engine.Resell(buyer, "deal-2", esc.AssetID, big.NewInt(5))
	require.ErrorIs(t, err, markerrors.ErrOddValue)
	_, err = h.engine.Resell(buyer, "deal-1", esc.AssetID, ether(4))
	require.ErrorIs(t, err, markerrors.ErrDuplicateID)

	resold, err := h.engine.Resell(buyer, "deal-2", esc.AssetID, ether(4))
	require.NoError(t, err)
	require.Equal(t, buyer, resold.Seller)
	require.Equal(t, seller, resold.Creator)

	require.NoError(t, h.engine.ConfirmPurchase("deal-2", stranger, ether(4)))
	require.NoError(t, h.engine.ConfirmReceived("deal-2", stranger))

	// v = 2 ether, unit = 0.04 ether.
	require.Equal(t, 0, h.balance("deal-2", stranger).Cmp(ether(2)))
	require.Equal(t, 0, h.balance("deal-2", buyer).Cmp(milli(5_920)))
	require.Equal(t, 0, h.balance("deal-2", seller).Cmp(milli(40)))
	require.Equal(t, 0, h.balance("deal-2", platform).Cmp(milli(40)))

	total := new(big.Int)
	for _, party := range [][20]byte{stranger, buyer, seller, platform} {
		total.Add(total, h.balance("deal-2", party))
	}
	require.Equal(t, 0, total.Cmp(ether(8)))
}

func TestConfirmReceivedRejectsReentry(t *testing.T) {
	h := newHarness(t)
	contract := nativetest.Address(0xCC)
	require.NoError(t, h.bank.Deposit(contract, ether(10)))
	_, err := h.engine.CreateEscrow(seller, "deal-1", ether(2))
	require.NoError(t, err)
	require.NoError(t, h.engine.ConfirmPurchase("deal-1", contract, ether(2)))

	var nested error
	h.registry.RegisterReceiver(contract, receiverFunc(func(operator, from [20]byte, assetID uint64, _ []byte) error {
		nested = h.engine.ConfirmReceived("deal-1", contract)
		return nil
	}))

	require.NoError(t, h.engine.ConfirmReceived("deal-1", contract))
	require.ErrorIs(t, nested, markerrors.ErrInvalidState)
	require.Equal(t, 0, h.balance("deal-1", contract).Cmp(ether(1)))
}

func TestUnsolicitedDepositRejected(t *testing.T) {
	h := newHarness(t)
	id, err := h.registry.Mint(stranger, stranger)
	require.NoError(t, err)
	require.ErrorIs(t, h.registry.Transfer(stranger, stranger, engineAddr, id, nil), markerrors.ErrUnauthorized)
}

func TestCustodyClosesAfterPanic(t *testing.T) {
	h := newHarness(t)
	require.Panics(t, func() {
		_ = h.engine.withCustody(func() error { panic("mint failed") })
	})
	_, err := h.registry.Mint(stranger, engineAddr)
	require.ErrorIs(t, err, markerrors.ErrUnauthorized)
}

func TestUnknownEscrow(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.engine.ConfirmPurchase("nope", buyer, ether(2)), markerrors.ErrNotFound)
	_, err := h.engine.Escrow("nope")
	require.ErrorIs(t, err, markerrors.ErrNotFound)
}

func TestEventAttributes(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateEscrow(seller, "deal-1", big.NewInt(10))
	require.NoError(t, err)
	require.NoError(t, h.engine.ConfirmPurchase("deal-1", buyer, big.NewInt(10)))

	evt, ok := h.events.Last(EventTypeEscrowPurchased)
	require.True(t, ok)
	require.Equal(t, "deal-1", evt.Attr("id"))
	require.Equal(t, "5", evt.Attr("value"))
	require.Equal(t, "locked", evt.Attr("state"))
	require.NotEmpty(t, evt.Attr("buyer"))
	require.Equal(t, "1700000000", evt.Attr("createdAt"))
}
