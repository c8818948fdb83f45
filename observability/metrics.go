package observability

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	markerrors "solirey/core/errors"
	"solirey/native/common"
)

const namespace = "solirey"

type marketMetrics struct {
	calls      *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	reverts    *prometheus.CounterVec
	settlement *prometheus.CounterVec
}

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *marketMetrics

	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics
)

// Market returns the lazily-initialised metrics registry used by the market
// executor.
func Market() *marketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &marketMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "market",
				Name:      "calls_total",
				Help:      "Total market calls segmented by module, method, and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "market",
				Name:      "errors_total",
				Help:      "Total failed market calls segmented by module, method, and reason.",
			}, []string{"module", "method", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "market",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for market calls including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			reverts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "market",
				Name:      "reverts_total",
				Help:      "Count of calls whose state changes were rolled back.",
			}, []string{"module"}),
			settlement: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "market",
				Name:      "settled_value_total",
				Help:      "Value paid out by market calls in base units, segmented by module.",
			}, []string{"module"}),
		}
		prometheus.MustRegister(
			marketRegistry.calls,
			marketRegistry.errors,
			marketRegistry.latency,
			marketRegistry.reverts,
			marketRegistry.settlement,
		)
	})
	return marketRegistry
}

// Observe records the outcome of a market call.
func (m *marketMetrics) Observe(module, method string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	module = labelOr(module, "unknown")
	method = labelOr(method, "unknown")
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(module, method, ErrorReason(err)).Inc()
	}
	m.calls.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordRevert increments the revert counter for the module.
func (m *marketMetrics) RecordRevert(module string) {
	if m == nil {
		return
	}
	m.reverts.WithLabelValues(labelOr(module, "unknown")).Inc()
}

// RecordSettlement adds a payout to the settled value counter.
func (m *marketMetrics) RecordSettlement(module string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.settlement.WithLabelValues(labelOr(module, "unknown")).Add(bigToFloat(amount))
}

// RPC returns the lazily-initialised metrics registry used by the read API.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total read API requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for read API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of read API requests rejected by the rate limiter.",
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records a served read API request.
func (m *rpcMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = labelOr(route, "unmatched")
	m.requests.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the route.
func (m *rpcMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(labelOr(route, "unmatched")).Inc()
}

var reasons = []struct {
	err    error
	reason string
}{
	{markerrors.ErrDuplicateID, "duplicate_id"},
	{markerrors.ErrAuctionEnded, "auction_ended"},
	{markerrors.ErrNotYetEnded, "not_yet_ended"},
	{markerrors.ErrAlreadyEnded, "already_ended"},
	{markerrors.ErrNotEnded, "not_ended"},
	{markerrors.ErrSelfBid, "self_bid"},
	{markerrors.ErrBidTooLow, "bid_too_low"},
	{markerrors.ErrHigherBidExists, "higher_bid_exists"},
	{markerrors.ErrStillHighestBidder, "still_highest_bidder"},
	{markerrors.ErrNotBeneficiary, "not_beneficiary"},
	{markerrors.ErrAlreadyWithdrawn, "already_withdrawn"},
	{markerrors.ErrCannotAbort, "cannot_abort"},
	{markerrors.ErrNotAuthorized, "not_authorized"},
	{markerrors.ErrUnauthorized, "unauthorized"},
	{markerrors.ErrOddValue, "odd_value"},
	{markerrors.ErrInvalidState, "invalid_state"},
	{markerrors.ErrWrongAmount, "wrong_amount"},
	{markerrors.ErrZeroPrice, "zero_price"},
	{markerrors.ErrNotForSale, "not_for_sale"},
	{markerrors.ErrWrongPrice, "wrong_price"},
	{markerrors.ErrWrongPricing, "wrong_pricing"},
	{markerrors.ErrAlreadyPaid, "already_paid"},
	{markerrors.ErrAlreadyHasAsset, "already_has_asset"},
	{markerrors.ErrNotOwnerOrApproved, "not_owner_or_approved"},
	{markerrors.ErrNotFound, "not_found"},
	{markerrors.ErrInvalidID, "invalid_id"},
	{common.ErrModulePaused, "paused"},
}

// ErrorReason maps an error onto a stable metric label.
func ErrorReason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal"
}

func labelOr(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
