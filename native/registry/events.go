package registry

import (
	"strconv"

	"solirey/core/types"
	"solirey/crypto"
)

const (
	EventTypeMinted      = "registry.minted"
	EventTypeTransferred = "registry.transferred"
)

// NewMintedEvent returns the canonical payload for a freshly minted asset.
func NewMintedEvent(a *Asset) *types.Event {
	return &types.Event{
		Type: EventTypeMinted,
		Attributes: map[string]string{
			"assetId": strconv.FormatUint(a.ID, 10),
			"holder":  crypto.FormatAddress(a.Holder),
			"creator": crypto.FormatAddress(a.Creator),
		},
	}
}

// NewTransferredEvent returns the canonical payload for a custody change.
func NewTransferredEvent(operator, from [20]byte, a *Asset) *types.Event {
	return &types.Event{
		Type: EventTypeTransferred,
		Attributes: map[string]string{
			"assetId":  strconv.FormatUint(a.ID, 10),
			"operator": crypto.FormatAddress(operator),
			"from":     crypto.FormatAddress(from),
			"to":       crypto.FormatAddress(a.Holder),
		},
	}
}
