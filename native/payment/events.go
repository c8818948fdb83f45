package payment

import (
	"math/big"
	"strconv"

	"solirey/core/types"
	"solirey/crypto"
)

const (
	EventTypePaymentCreated      = "payment.created"
	EventTypePaymentPaid         = "payment.paid"
	EventTypePaymentWithdrawn    = "payment.withdrawn"
	EventTypePaymentFeeWithdrawn = "payment.fee_withdrawn"
	EventTypePaymentAborted      = "payment.aborted"
)

// NewCreatedEvent returns the canonical payload for a new listing.
func NewCreatedEvent(l *Listing) *types.Event { return newListingEvent(EventTypePaymentCreated, l) }

// NewPaidEvent returns the canonical payload for a completed purchase.
func NewPaidEvent(l *Listing) *types.Event { return newListingEvent(EventTypePaymentPaid, l) }

// NewAbortedEvent returns the canonical payload for a withdrawn listing.
func NewAbortedEvent(l *Listing) *types.Event { return newListingEvent(EventTypePaymentAborted, l) }

// NewWithdrawnEvent returns the payload for the seller collecting proceeds.
func NewWithdrawnEvent(l *Listing, amount *big.Int) *types.Event {
	evt := newListingEvent(EventTypePaymentWithdrawn, l)
	evt.Attributes["amount"] = amountString(amount)
	return evt
}

// NewFeeWithdrawnEvent returns the payload for the platform collecting its fee.
func NewFeeWithdrawnEvent(l *Listing, amount *big.Int) *types.Event {
	evt := newListingEvent(EventTypePaymentFeeWithdrawn, l)
	evt.Attributes["amount"] = amountString(amount)
	return evt
}

func newListingEvent(eventType string, l *Listing) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = l.ID
	attrs["kind"] = l.Kind.String()
	attrs["seller"] = crypto.FormatAddress(l.Seller)
	attrs["creator"] = crypto.FormatAddress(l.Creator)
	attrs["assetId"] = strconv.FormatUint(l.AssetID, 10)
	attrs["price"] = amountString(l.Price)
	if l.Sold() {
		attrs["buyer"] = crypto.FormatAddress(l.Buyer)
		attrs["payment"] = amountString(l.Payment)
		attrs["fee"] = amountString(l.Fee)
		attrs["royalty"] = amountString(l.Royalty)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
