package errors

import stderrors "errors"

// Settlement reason tags. Every guard in the market engines surfaces exactly
// one of these so callers can branch with errors.Is.
var (
	ErrDuplicateID        = stderrors.New("market: duplicate id")
	ErrInvalidID          = stderrors.New("market: invalid id")
	ErrNotFound           = stderrors.New("market: listing not found")
	ErrAuctionEnded       = stderrors.New("auction: already ended")
	ErrNotYetEnded        = stderrors.New("auction: not yet ended")
	ErrAlreadyEnded       = stderrors.New("auction: auctionEnd already called")
	ErrNotEnded           = stderrors.New("auction: not ended")
	ErrSelfBid            = stderrors.New("auction: beneficiary cannot bid")
	ErrBidTooLow          = stderrors.New("auction: bid must exceed the starting bid")
	ErrHigherBidExists    = stderrors.New("auction: higher bid already exists")
	ErrStillHighestBidder = stderrors.New("auction: caller is the highest bidder")
	ErrNotBeneficiary     = stderrors.New("auction: caller is not the beneficiary")
	ErrCannotAbort        = stderrors.New("auction: cannot abort once bid")
	ErrAlreadyWithdrawn   = stderrors.New("market: already withdrawn")
	ErrNotAuthorized      = stderrors.New("market: not authorized")
	ErrUnauthorized       = stderrors.New("market: unauthorized")
	ErrOddValue           = stderrors.New("escrow: value has to be even")
	ErrInvalidState       = stderrors.New("market: invalid state")
	ErrWrongAmount        = stderrors.New("escrow: wrong payment amount")
	ErrZeroPrice          = stderrors.New("payment: price must be positive")
	ErrNotForSale         = stderrors.New("payment: not for sale")
	ErrWrongPrice         = stderrors.New("payment: incorrect price")
	ErrWrongPricing       = stderrors.New("payment: wrong pricing")
	ErrAlreadyPaid        = stderrors.New("payment: already paid")
	ErrAlreadyHasAsset    = stderrors.New("market: already holds an asset")
	ErrNotOwnerOrApproved = stderrors.New("registry: caller is not owner nor approved")
)
