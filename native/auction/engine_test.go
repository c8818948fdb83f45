package auction

import (
	"fmt"
	"math"
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
	auctions    map[string]*Auction
	individuals map[[20]byte]*IndividualAuction
}

func newMockState() *mockState {
	return &mockState{
		State:       nativetest.NewState(),
		auctions:    make(map[string]*Auction),
		individuals: make(map[[20]byte]*IndividualAuction),
	}
}

func (m *mockState) AuctionGet(id string) (*Auction, bool, error) {
	a, ok := m.auctions[id]
	if !ok {
		return nil, false, nil
	}
	return a.Clone(), true, nil
}

func (m *mockState) AuctionPut(a *Auction) error {
	if a == nil {
		return fmt.Errorf("nil auction")
	}
	m.auctions[a.ID] = a.Clone()
	return nil
}

func (m *mockState) IndividualAuctionGet(addr [20]byte) (*IndividualAuction, bool, error) {
	a, ok := m.individuals[addr]
	if !ok {
		return nil, false, nil
	}
	return a.Clone(), true, nil
}

func (m *mockState) IndividualAuctionPut(a *IndividualAuction) error {
	if a == nil {
		return fmt.Errorf("nil auction")
	}
	m.individuals[a.Address] = a.Clone()
	return nil
}

type payeeFunc func(from [20]byte, amount *big.Int) error

func (f payeeFunc) OnFundsReceived(from [20]byte, amount *big.Int) error { return f(from, amount) }

var (
	engineAddr = nativetest.Address(0xE0)
	platform   = nativetest.Address(0xF0)
	seller     = nativetest.Address(0x01)
	bidderA    = nativetest.Address(0x02)
	bidderB    = nativetest.Address(0x03)
	stranger   = nativetest.Address(0x04)
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

type harness struct {
	state    *mockState
	registry *registry.Registry
	bank     *bank.Bank
	engine   *Engine
	events   *events.Recorder
	now      int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{state: newMockState(), events: &events.Recorder{}, now: 1_000}
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
	h.engine.SetNowFunc(func() int64 { return h.now })
	h.registry.RegisterReceiver(engineAddr, h.engine)
	for _, addr := range [][20]byte{seller, bidderA, bidderB, stranger} {
		require.NoError(t, h.bank.Deposit(addr, ether(100)))
	}
	return h
}

func (h *harness) balance(addr [20]byte) *big.Int {
	return h.state.BalanceOf(addr)
}

func TestScenarioAuctionEndAndCollect(t *testing.T) {
	h := newHarness(t)
	auction, err := h.engine.CreateAuction(seller, "lot-1", 100, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, uint64(1_100), auction.Deadline)

	owner, err := h.registry.OwnerOf(auction.AssetID)
	require.NoError(t, err)
	require.Equal(t, engineAddr, owner)
	creator, err := h.registry.OriginalCreatorOf(auction.AssetID)
	require.NoError(t, err)
	require.Equal(t, seller, creator)

	require.NoError(t, h.engine.Bid("lot-1", bidderA, ether(1)))

	h.now = 1_101
	require.NoError(t, h.engine.AuctionEnd("lot-1", stranger))
	require.ErrorIs(t, h.engine.AuctionEnd("lot-1", stranger), markerrors.ErrAlreadyEnded)

	owner, err = h.registry.OwnerOf(auction.AssetID)
	require.NoError(t, err)
	require.Equal(t, bidderA, owner)

	sellerBefore := h.balance(seller)
	net, err := h.engine.GetTheHighestBid("lot-1", seller)
	require.NoError(t, err)

	fee := new(big.Int).Div(ether(1), big.NewInt(50))
	wantNet := new(big.Int).Sub(ether(1), fee)
	require.Equal(t, 0, net.Cmp(wantNet))
	require.Equal(t, 0, new(big.Int).Sub(h.balance(seller), sellerBefore).Cmp(wantNet))

	_, err = h.engine.GetTheHighestBid("lot-1", seller)
	require.ErrorIs(t, err, markerrors.ErrAlreadyWithdrawn)

	_, err = h.engine.WithdrawFee("lot-1", stranger)
	require.ErrorIs(t, err, markerrors.ErrNotAuthorized)
	got, err := h.engine.WithdrawFee("lot-1", platform)
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(fee))
	require.Zero(t, h.balance(engineAddr).Sign())

	require.Equal(t, []string{
		EventTypeAuctionCreated,
		EventTypeAuctionBid,
		EventTypeAuctionEnded,
		EventTypeAuctionCollected,
		EventTypeAuctionWithdrawn,
	}, h.events.Types())
}

func TestScenarioOutbidWithdraw(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateAuction(seller, "lot-1", 100, big.NewInt(0))
	require.NoError(t, err)

	require.NoError(t, h.engine.Bid("lot-1", bidderA, ether(1)))
	require.NoError(t, h.engine.Bid("lot-1", bidderB, ether(2)))

	pending, err := h.engine.PendingReturn("lot-1", bidderA)
	require.NoError(t, err)
	require.Equal(t, 0, pending.Cmp(ether(1)))
	require.Equal(t, 0, h.balance(bidderA).Cmp(ether(99)))

	got, err := h.engine.Withdraw("lot-1", bidderA)
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(ether(1)))
	require.Equal(t, 0, h.balance(bidderA).Cmp(ether(100)))

	pending, err = h.engine.PendingReturn("lot-1", bidderA)
	require.NoError(t, err)
	require.Zero(t, pending.Sign())

	again, err := h.engine.Withdraw("lot-1", bidderA)
	require.NoError(t, err)
	require.Zero(t, again.Sign())
	require.Equal(t, 0, h.balance(bidderA).Cmp(ether(100)))
}

func TestBidGuards(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateAuction(seller, "lot-1", 100, big.NewInt(100))
	require.NoError(t, err)

	require.ErrorIs(t, h.engine.Bid("missing", bidderA, ether(1)), markerrors.ErrAuctionEnded)
	require.ErrorIs(t, h.engine.Bid("lot-1", seller, ether(1)), markerrors.ErrSelfBid)
	require.ErrorIs(t, h.engine.Bid("lot-1", bidderA, big.NewInt(100)), markerrors.ErrBidTooLow)
	require.ErrorIs(t, h.engine.Bid("lot-1", bidderA, big.NewInt(0)), markerrors.ErrBidTooLow)

	require.NoError(t, h.engine.Bid("lot-1", bidderA, big.NewInt(500)))
	require.ErrorIs(t, h.engine.Bid("lot-1", bidderB, big.NewInt(500)), markerrors.ErrHigherBidExists)
	require.ErrorIs(t, h.engine.Bid("lot-1", bidderB, big.NewInt(101)), markerrors.ErrHigherBidExists)

	h.now = 1_100
	require.ErrorIs(t, h.engine.Bid("lot-1", bidderB, ether(1)), markerrors.ErrAuctionEnded)

	auction, err := h.engine.Auction("lot-1")
	require.NoError(t, err)
	require.Equal(t, int64(500), auction.HighestBid.Int64())
	require.Equal(t, bidderA, auction.HighestBidder)
}

func TestHighestBidIsMonotonicAndFundsConserved(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateAuction(seller, "lot-1", 1_000, big.NewInt(10))
	require.NoError(t, err)

	bidders := [][20]byte{bidderA, bidderB, stranger}
	deposited := big.NewInt(0)
	previous := big.NewInt(0)
	for round, amount := range []int64{11, 20, 35, 36, 80, 81, 1_000} {
		bidder := bidders[round%len(bidders)]
		require.NoError(t, h.engine.Bid("lot-1", bidder, big.NewInt(amount)))
		deposited.Add(deposited, big.NewInt(amount))

		auction, err := h.engine.Auction("lot-1")
		require.NoError(t, err)
		require.Equal(t, 1, auction.HighestBid.Cmp(previous))
		require.GreaterOrEqual(t, auction.HighestBid.Cmp(auction.StartingBid), 0)
		previous = auction.HighestBid

		total := new(big.Int).Set(auction.HighestBid)
		for _, b := range bidders {
			pending, err := h.engine.PendingReturn("lot-1", b)
			require.NoError(t, err)
			total.Add(total, pending)
		}
		require.Equal(t, 0, total.Cmp(deposited))
		require.Equal(t, 0, h.balance(engineAddr).Cmp(deposited))
	}
}

func TestAuctionEndGuards(t *testing.T) {
	h := newHarness(t)
	auction, err := h.engine.CreateAuction(seller, "lot-1", 100, big.NewInt(1))
	require.NoError(t, err)

	require.ErrorIs(t, h.engine.AuctionEnd("lot-1", seller), markerrors.ErrNotYetEnded)
	_, err = h.engine.GetTheHighestBid("lot-1", seller)
	require.ErrorIs(t, err, markerrors.ErrNotEnded)

	h.now = 2_000
	require.NoError(t, h.engine.AuctionEnd("lot-1", seller))

	// Nobody bid: the asset goes back to the beneficiary.
	owner, err := h.registry.OwnerOf(auction.AssetID)
	require.NoError(t, err)
	require.Equal(t, seller, owner)

	_, err = h.engine.GetTheHighestBid("lot-1", stranger)
	require.ErrorIs(t, err, markerrors.ErrNotBeneficiary)
	net, err := h.engine.GetTheHighestBid("lot-1", seller)
	require.NoError(t, err)
	require.Zero(t, net.Sign())

	require.ErrorIs(t, h.engine.AuctionEnd("missing", seller), markerrors.ErrNotFound)
}

func TestAbort(t *testing.T) {
	h := newHarness(t)
	first, err := h.engine.CreateAuction(seller, "lot-1", 100, big.NewInt(1))
	require.NoError(t, err)
	_, err = h.engine.CreateAuction(seller, "lot-2", 100, big.NewInt(1))
	require.NoError(t, err)

	require.ErrorIs(t, h.engine.Abort("lot-1", stranger), markerrors.ErrNotBeneficiary)
	require.NoError(t, h.engine.Abort("lot-1", seller))
	require.ErrorIs(t, h.engine.Abort("lot-1", seller), markerrors.ErrAlreadyEnded)
	require.ErrorIs(t, h.engine.Bid("lot-1", bidderA, ether(1)), markerrors.ErrAuctionEnded)

	owner, err := h.registry.OwnerOf(first.AssetID)
	require.NoError(t, err)
	require.Equal(t, seller, owner)

	require.NoError(t, h.engine.Bid("lot-2", bidderA, ether(1)))
	require.ErrorIs(t, h.engine.Abort("lot-2", seller), markerrors.ErrCannotAbort)
}

func TestDuplicateIDAndReuse(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateAuction(seller, "lot-1", 100, big.NewInt(1))
	require.NoError(t, err)

	_, err = h.engine.CreateAuction(seller, " lot-1 ", 100, big.NewInt(1))
	require.ErrorIs(t, err, markerrors.ErrDuplicateID)
	_, err = h.engine.CreateAuction(seller, "   ", 100, big.NewInt(1))
	require.ErrorIs(t, err, markerrors.ErrInvalidID)

	require.NoError(t, h.engine.Bid("lot-1", bidderA, big.NewInt(5)))
	require.NoError(t, h.engine.Bid("lot-1", bidderB, big.NewInt(6)))
	h.now = 1_200
	require.NoError(t, h.engine.AuctionEnd("lot-1", seller))

	// Ended but the proceeds are still uncollected.
	_, err = h.engine.CreateAuction(seller, "lot-1", 100, big.NewInt(1))
	require.ErrorIs(t, err, markerrors.ErrDuplicateID)

	_, err = h.engine.GetTheHighestBid("lot-1", seller)
	require.NoError(t, err)
	reopened, err := h.engine.CreateAuction(seller, "lot-1", 100, big.NewInt(1))
	require.NoError(t, err)
	require.Zero(t, reopened.HighestBid.Sign())

	// The pending return of the previous round is still withdrawable.
	got, err := h.engine.Withdraw("lot-1", bidderA)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.Int64())
}

func TestResellPreservesCreator(t *testing.T) {
	h := newHarness(t)
	auction, err := h.engine.CreateAuction(seller, "lot-1", 100, big.NewInt(1))
	require.NoError(t, err)
	require.NoError(t, h.engine.Bid("lot-1", bidderA, ether(1)))
	h.now = 1_200
	require.NoError(t, h.engine.AuctionEnd("lot-1", seller))

	_, err = h.engine.Resell(stranger, "lot-2", auction.AssetID, 100, big.NewInt(1))
	require.ErrorIs(t, err, markerrors.ErrNotAuthorized)

	resold, err := h.engine.Resell(bidderA, "lot-2", auction.AssetID, 100, ether(2))
	require.NoError(t, err)
	require.Equal(t, bidderA, resold.Beneficiary)
	require.Equal(t, uint64(1_300), resold.Deadline)
	require.Zero(t, resold.HighestBid.Sign())

	owner, err := h.registry.OwnerOf(auction.AssetID)
	require.NoError(t, err)
	require.Equal(t, engineAddr, owner)
	creator, err := h.registry.OriginalCreatorOf(auction.AssetID)
	require.NoError(t, err)
	require.Equal(t, seller, creator)

	_, err = h.engine.Resell(bidderA, "lot-2", auction.AssetID, 100, ether(2))
	require.ErrorIs(t, err, markerrors.ErrNotAuthorized)
}

func TestCustodyRejectsUnsolicitedDeposits(t *testing.T) {
	h := newHarness(t)
	id, err := h.registry.Mint(stranger, stranger)
	require.NoError(t, err)

	err = h.registry.Transfer(stranger, stranger, engineAddr, id, nil)
	require.ErrorIs(t, err, markerrors.ErrUnauthorized)
	owner, err := h.registry.OwnerOf(id)
	require.NoError(t, err)
	require.Equal(t, stranger, owner)
}

func TestDurationOverflowRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateAuction(seller, "lot-1", math.MaxUint64, big.NewInt(0))
	require.ErrorIs(t, err, errLongDuration)
	_, err = h.engine.Auction("lot-1")
	require.ErrorIs(t, err, markerrors.ErrNotFound)

	assetID, err := h.registry.Mint(seller, seller)
	require.NoError(t, err)
	_, err = h.engine.Resell(seller, "lot-2", assetID, math.MaxUint64-uint64(h.now)+1, big.NewInt(0))
	require.ErrorIs(t, err, errLongDuration)
	owner, err := h.registry.OwnerOf(assetID)
	require.NoError(t, err)
	require.Equal(t, seller, owner)

	auction, err := h.engine.CreateAuction(seller, "lot-3", math.MaxUint64-uint64(h.now), big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), auction.Deadline)
}

func TestCustodyClosesAfterPanic(t *testing.T) {
	h := newHarness(t)
	require.Panics(t, func() {
		_ = h.engine.withCustody(func() error { panic("mint failed") })
	})
	_, err := h.registry.Mint(stranger, engineAddr)
	require.ErrorIs(t, err, markerrors.ErrUnauthorized)
}

func TestReentrantWithdrawPaysOnce(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateAuction(seller, "lot-1", 100, big.NewInt(0))
	require.NoError(t, err)
	require.NoError(t, h.engine.Bid("lot-1", bidderA, ether(1)))
	require.NoError(t, h.engine.Bid("lot-1", bidderB, ether(2)))

	var nested *big.Int
	h.bank.RegisterPayee(bidderA, payeeFunc(func(from [20]byte, amount *big.Int) error {
		var err error
		nested, err = h.engine.Withdraw("lot-1", bidderA)
		return err
	}))

	got, err := h.engine.Withdraw("lot-1", bidderA)
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(ether(1)))
	require.NotNil(t, nested)
	require.Zero(t, nested.Sign())
	require.Equal(t, 0, h.balance(bidderA).Cmp(ether(100)))
}

func TestBidRequiresFunds(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateAuction(seller, "lot-1", 100, big.NewInt(0))
	require.NoError(t, err)
	require.ErrorIs(t, h.engine.Bid("lot-1", bidderA, ether(101)), bank.ErrInsufficientFunds)

	auction, err := h.engine.Auction("lot-1")
	require.NoError(t, err)
	require.Zero(t, auction.HighestBid.Sign())
}

func TestEngineRequiresConfiguration(t *testing.T) {
	e := NewEngine()
	_, err := e.CreateAuction(seller, "lot-1", 1, big.NewInt(1))
	require.ErrorIs(t, err, errNilState)

	e.SetState(newMockState())
	_, err = e.CreateAuction(seller, "lot-1", 1, big.NewInt(1))
	require.ErrorIs(t, err, errNilRegistry)
}

func TestCreatedEventAttributes(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateAuction(seller, "lot-1", 100, big.NewInt(7))
	require.NoError(t, err)

	evt, ok := h.events.Last(EventTypeAuctionCreated)
	require.True(t, ok)
	require.Equal(t, "lot-1", evt.Attr("id"))
	require.Equal(t, "7", evt.Attr("startingBid"))
	require.Equal(t, "1100", evt.Attr("deadline"))
	require.Equal(t, "1", evt.Attr("assetId"))
}
