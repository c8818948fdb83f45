package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	markerrors "solirey/core/errors"
	"solirey/crypto"
	"solirey/native/auction"
	"solirey/native/escrow"
	"solirey/native/payment"
	"solirey/observability"
)

type errorJSON struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type auctionJSON struct {
	ID            string  `json:"id,omitempty"`
	Address       string  `json:"address,omitempty"`
	Beneficiary   string  `json:"beneficiary"`
	AssetID       uint64  `json:"assetId"`
	HasAsset      *bool   `json:"hasAsset,omitempty"`
	Deadline      uint64  `json:"deadline"`
	StartingBid   string  `json:"startingBid"`
	HighestBid    string  `json:"highestBid"`
	HighestBidder *string `json:"highestBidder,omitempty"`
	Ended         bool    `json:"ended"`
	Transferred   bool    `json:"transferred"`
	CreatedAt     uint64  `json:"createdAt"`
}

type escrowJSON struct {
	ID        string  `json:"id"`
	Seller    string  `json:"seller"`
	Buyer     *string `json:"buyer,omitempty"`
	Creator   string  `json:"creator"`
	AssetID   uint64  `json:"assetId"`
	Value     string  `json:"value"`
	State     string  `json:"state"`
	CreatedAt uint64  `json:"createdAt"`
}

type listingJSON struct {
	ID                  string  `json:"id,omitempty"`
	Address             string  `json:"address,omitempty"`
	Kind                string  `json:"kind"`
	Seller              string  `json:"seller"`
	Creator             string  `json:"creator,omitempty"`
	Buyer               *string `json:"buyer,omitempty"`
	AssetID             uint64  `json:"assetId"`
	Price               string  `json:"price"`
	Payment             string  `json:"payment"`
	Fee                 string  `json:"fee"`
	Royalty             string  `json:"royalty,omitempty"`
	ForSale             bool    `json:"forSale"`
	WithdrawnBySeller   bool    `json:"withdrawnBySeller"`
	WithdrawnByPlatform *bool   `json:"withdrawnByPlatform,omitempty"`
	Aborted             bool    `json:"aborted"`
	CreatedAt           uint64  `json:"createdAt"`
}

type assetJSON struct {
	ID       uint64  `json:"id"`
	Holder   string  `json:"holder"`
	Creator  string  `json:"creator"`
	Approved *string `json:"approved,omitempty"`
}

type balanceJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorJSON{Code: code, Message: message})
}

func (s *Server) writeMarketError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, markerrors.ErrNotFound):
		status = http.StatusNotFound
	case observability.ErrorReason(err) == "internal":
		status = http.StatusInternalServerError
		s.logger.Error("rpc read failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, observability.ErrorReason(err), err.Error())
}

func optionalAddress(addr [20]byte) *string {
	if addr == ([20]byte{}) {
		return nil
	}
	formatted := crypto.FormatAddress(addr)
	return &formatted
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressParam(r *http.Request, name string) ([20]byte, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return addr, nil
}

func formatAuction(a *auction.Auction) auctionJSON {
	return auctionJSON{
		ID:            a.ID,
		Beneficiary:   crypto.FormatAddress(a.Beneficiary),
		AssetID:       a.AssetID,
		Deadline:      a.Deadline,
		StartingBid:   amountString(a.StartingBid),
		HighestBid:    amountString(a.HighestBid),
		HighestBidder: optionalAddress(a.HighestBidder),
		Ended:         a.Ended,
		Transferred:   a.Transferred,
		CreatedAt:     a.CreatedAt,
	}
}

func formatIndividualAuction(a *auction.IndividualAuction) auctionJSON {
	hasAsset := a.HasAsset
	return auctionJSON{
		Address:       crypto.FormatAddress(a.Address),
		Beneficiary:   crypto.FormatAddress(a.Beneficiary),
		AssetID:       a.AssetID,
		HasAsset:      &hasAsset,
		Deadline:      a.Deadline,
		StartingBid:   amountString(a.StartingBid),
		HighestBid:    amountString(a.HighestBid),
		HighestBidder: optionalAddress(a.HighestBidder),
		Ended:         a.Ended,
		Transferred:   a.Transferred,
		CreatedAt:     a.CreatedAt,
	}
}

func formatEscrow(e *escrow.Escrow) escrowJSON {
	return escrowJSON{
		ID:        e.ID,
		Seller:    crypto.FormatAddress(e.Seller),
		Buyer:     optionalAddress(e.Buyer),
		Creator:   crypto.FormatAddress(e.Creator),
		AssetID:   e.AssetID,
		Value:     amountString(e.Value),
		State:     e.State.String(),
		CreatedAt: e.CreatedAt,
	}
}

func formatListing(l *payment.Listing) listingJSON {
	withdrawnByPlatform := l.WithdrawnByPlatform
	return listingJSON{
		ID:                  l.ID,
		Kind:                l.Kind.String(),
		Seller:              crypto.FormatAddress(l.Seller),
		Creator:             crypto.FormatAddress(l.Creator),
		Buyer:               optionalAddress(l.Buyer),
		AssetID:             l.AssetID,
		Price:               amountString(l.Price),
		Payment:             amountString(l.Payment),
		Fee:                 amountString(l.Fee),
		Royalty:             amountString(l.Royalty),
		ForSale:             l.ForSale(),
		WithdrawnBySeller:   l.WithdrawnBySeller,
		WithdrawnByPlatform: &withdrawnByPlatform,
		Aborted:             l.Aborted,
		CreatedAt:           l.CreatedAt,
	}
}

func formatIndividualListing(l *payment.IndividualListing) listingJSON {
	out := listingJSON{
		Address:           crypto.FormatAddress(l.Address),
		Kind:              payment.KindTangible.String(),
		Seller:            crypto.FormatAddress(l.Seller),
		AssetID:           l.AssetID,
		Price:             amountString(l.Price),
		Payment:           amountString(l.Payment),
		Fee:               amountString(l.Fee),
		ForSale:           l.HasAsset && !l.Paid && !l.Aborted,
		WithdrawnBySeller: l.WithdrawnBySeller,
		Aborted:           l.Aborted,
		CreatedAt:         l.CreatedAt,
	}
	if l.Paid {
		out.Buyer = optionalAddress(l.Buyer)
	}
	return out
}

func (s *Server) handleAuction(w http.ResponseWriter, r *http.Request) {
	a, err := s.market.Auction(chi.URLParam(r, "id"))
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatAuction(a))
}

func (s *Server) handlePendingReturn(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "addr")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.market.Auction(id); err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	amount, err := s.market.PendingReturn(id, addr)
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSON{Address: crypto.FormatAddress(addr), Balance: amountString(amount)})
}

func (s *Server) handleEscrow(w http.ResponseWriter, r *http.Request) {
	e, err := s.market.Escrow(chi.URLParam(r, "id"))
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatEscrow(e))
}

func (s *Server) handleEscrowBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "addr")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.market.Escrow(id); err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	amount, err := s.market.EscrowBalance(id, addr)
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSON{Address: crypto.FormatAddress(addr), Balance: amountString(amount)})
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	kind, err := payment.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_kind", err.Error())
		return
	}
	l, err := s.market.Listing(kind, chi.URLParam(r, "id"))
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatListing(l))
}

func (s *Server) handleIndividualAuction(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "addr")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	a, err := s.market.IndividualAuction(addr)
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatIndividualAuction(a))
}

func (s *Server) handleIndividualPendingReturn(w http.ResponseWriter, r *http.Request) {
	instance, err := addressParam(r, "addr")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	party, err := addressParam(r, "party")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	amount, err := s.market.IndividualPendingReturn(instance, party)
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSON{Address: crypto.FormatAddress(party), Balance: amountString(amount)})
}

func (s *Server) handleIndividualListing(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "addr")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	l, err := s.market.IndividualListing(addr)
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatIndividualListing(l))
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "asset id must be an unsigned integer")
		return
	}
	asset, err := s.market.Asset(id)
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assetJSON{
		ID:       asset.ID,
		Holder:   crypto.FormatAddress(asset.Holder),
		Creator:  crypto.FormatAddress(asset.Creator),
		Approved: optionalAddress(asset.Approved),
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "addr")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	balance, err := s.market.Balance(addr)
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSON{Address: crypto.FormatAddress(addr), Balance: amountString(balance)})
}
