package auction

import (
	"math/big"
	"strconv"

	"solirey/core/types"
	"solirey/crypto"
)

const (
	EventTypeAuctionCreated   = "auction.created"
	EventTypeAuctionBid       = "auction.bid"
	EventTypeAuctionWithdrawn = "auction.withdrawn"
	EventTypeAuctionEnded     = "auction.ended"
	EventTypeAuctionCollected = "auction.collected"
	EventTypeAuctionAborted   = "auction.aborted"
)

// NewCreatedEvent returns the canonical payload for a newly opened auction.
func NewCreatedEvent(a *Auction) *types.Event {
	evt := newAuctionEvent(EventTypeAuctionCreated, a)
	evt.Attributes["startingBid"] = amountString(a.StartingBid)
	evt.Attributes["deadline"] = strconv.FormatUint(a.Deadline, 10)
	return evt
}

// NewBidEvent returns the canonical payload for an accepted bid.
func NewBidEvent(a *Auction) *types.Event {
	evt := newAuctionEvent(EventTypeAuctionBid, a)
	evt.Attributes["bidder"] = crypto.FormatAddress(a.HighestBidder)
	evt.Attributes["amount"] = amountString(a.HighestBid)
	return evt
}

// NewEndedEvent returns the canonical payload emitted by auctionEnd.
func NewEndedEvent(a *Auction) *types.Event {
	evt := newAuctionEvent(EventTypeAuctionEnded, a)
	if a.HasBid() {
		evt.Attributes["winner"] = crypto.FormatAddress(a.HighestBidder)
	}
	evt.Attributes["amount"] = amountString(a.HighestBid)
	return evt
}

// NewCollectedEvent returns the payload emitted when the beneficiary collects
// the proceeds.
func NewCollectedEvent(a *Auction, net, fee *big.Int) *types.Event {
	evt := newAuctionEvent(EventTypeAuctionCollected, a)
	evt.Attributes["net"] = amountString(net)
	evt.Attributes["fee"] = amountString(fee)
	return evt
}

// NewAbortedEvent returns the payload for an aborted auction.
func NewAbortedEvent(a *Auction) *types.Event {
	return newAuctionEvent(EventTypeAuctionAborted, a)
}

// NewWithdrawnEvent returns the payload for a pending-return withdrawal.
func NewWithdrawnEvent(id string, party [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeAuctionWithdrawn,
		Attributes: map[string]string{
			"id":     id,
			"party":  crypto.FormatAddress(party),
			"amount": amountString(amount),
		},
	}
}

func newAuctionEvent(eventType string, a *Auction) *types.Event {
	attrs := map[string]string{}
	if a != nil {
		attrs["id"] = a.ID
		attrs["beneficiary"] = crypto.FormatAddress(a.Beneficiary)
		attrs["assetId"] = strconv.FormatUint(a.AssetID, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
