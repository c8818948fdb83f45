package escrow

import (
	"math/big"
	"strconv"

	"solirey/core/types"
	"solirey/crypto"
)

const (
	EventTypeEscrowCreated   = "escrow.created"
	EventTypeEscrowPurchased = "escrow.purchased"
	EventTypeEscrowReceived  = "escrow.received"
	EventTypeEscrowAborted   = "escrow.aborted"
	EventTypeEscrowWithdrawn = "escrow.withdrawn"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// escrow.
func NewCreatedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowCreated, e) }

// NewPurchasedEvent returns the canonical event payload emitted when a buyer
// locks the escrow.
func NewPurchasedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowPurchased, e) }

// NewReceivedEvent returns the canonical event payload emitted when the buyer
// confirms delivery.
func NewReceivedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowReceived, e) }

// NewAbortedEvent returns the canonical event payload for a seller abort.
func NewAbortedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowAborted, e) }

// NewWithdrawnEvent returns the payload for a party withdrawing its balance.
func NewWithdrawnEvent(id string, party [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeEscrowWithdrawn,
		Attributes: map[string]string{
			"id":     id,
			"party":  crypto.FormatAddress(party),
			"amount": amount.String(),
		},
	}
}

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = sanitized.ID
	attrs["seller"] = crypto.FormatAddress(sanitized.Seller)
	attrs["creator"] = crypto.FormatAddress(sanitized.Creator)
	attrs["assetId"] = strconv.FormatUint(sanitized.AssetID, 10)
	attrs["value"] = sanitized.Value.String()
	attrs["state"] = sanitized.State.String()
	attrs["createdAt"] = strconv.FormatUint(sanitized.CreatedAt, 10)
	if sanitized.Buyer != ([20]byte{}) {
		attrs["buyer"] = crypto.FormatAddress(sanitized.Buyer)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
