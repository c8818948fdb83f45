package rpc

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"solirey/native/auction"
	"solirey/native/escrow"
	"solirey/native/payment"
	"solirey/native/registry"
	"solirey/observability"
)

// Market is the read surface served over HTTP.
type Market interface {
	Auction(id string) (*auction.Auction, error)
	PendingReturn(id string, addr [20]byte) (*big.Int, error)
	IndividualAuction(addr [20]byte) (*auction.IndividualAuction, error)
	IndividualPendingReturn(instance, addr [20]byte) (*big.Int, error)
	Escrow(id string) (*escrow.Escrow, error)
	EscrowBalance(id string, addr [20]byte) (*big.Int, error)
	Listing(kind payment.Kind, id string) (*payment.Listing, error)
	IndividualListing(addr [20]byte) (*payment.IndividualListing, error)
	Asset(id uint64) (*registry.Asset, error)
	Balance(addr [20]byte) (*big.Int, error)
}

// Config tunes the HTTP server.
type Config struct {
	ListenAddress     string
	RateLimit         RateLimit
	ReadHeaderTimeout time.Duration
	Logger            *slog.Logger
	// Tracer defaults to the global provider's "solirey/rpc" tracer.
	Tracer            trace.Tracer
}

// Server exposes market state over a JSON HTTP API.
type Server struct {
	market  Market
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer
	limiter *RateLimiter
	handler http.Handler
}

// NewServer builds the router for market.
func NewServer(market Market, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("solirey/rpc")
	}
	s := &Server{
		market:  market,
		cfg:     cfg,
		logger:  logger.With("component", "rpc"),
		tracer:  tracer,
		limiter: NewRateLimiter(cfg.RateLimit, logger),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)
	r.Use(s.limiter.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/auctions/{id}", s.handleAuction)
		v1.Get("/auctions/{id}/pending/{addr}", s.handlePendingReturn)
		v1.Get("/escrows/{id}", s.handleEscrow)
		v1.Get("/escrows/{id}/balance/{addr}", s.handleEscrowBalance)
		v1.Get("/listings/{kind}/{id}", s.handleListing)
		v1.Get("/instances/auction/{addr}", s.handleIndividualAuction)
		v1.Get("/instances/auction/{addr}/pending/{party}", s.handleIndividualPendingReturn)
		v1.Get("/instances/payment/{addr}", s.handleIndividualListing)
		v1.Get("/assets/{id}", s.handleAsset)
		v1.Get("/accounts/{addr}", s.handleAccount)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	return r
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler { return s.handler }

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", "address", s.cfg.ListenAddress)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(ctx)
		next.ServeHTTP(recorder, r)
		route := routePattern(r)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", recorder.status),
		)
		observability.RPC().Observe(route, recorder.status, time.Since(start))
		s.logger.Debug("rpc request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", recorder.status,
			"duration", time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
