// Package web exposes the router, the position book and the wallet over HTTP with SSE streams.
package web

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"github.com/vadiminshakov/perpsplit/internal/services/quote"
	"github.com/vadiminshakov/perpsplit/internal/services/routing"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

const (
	snapshotPollInterval = 2 * time.Second
	heartbeatInterval    = 20 * time.Second
	shutdownTimeout      = 5 * time.Second
)

// Router routing pipeline.
type Router interface {
	Quote(ctx context.Context, intent domain.OrderIntent) (domain.Quote, error)
	Prepare(ctx context.Context, intent domain.OrderIntent) (routing.Prepared, error)
	Submit(ctx context.Context, intent domain.OrderIntent) (domain.Submission, error)
}

// Drafts coalesces quotes of an order being edited.
type Drafts interface {
	Submit(intent domain.OrderIntent) uint64
	Latest() (quote.Result, bool)
	Subscribe() chan quote.Result
	Unsubscribe(ch chan quote.Result)
}

// Sessions owns the trading session.
type Sessions interface {
	Establish(owner, account common.Address) (domain.Session, error)
	End()
	Current() (domain.Session, bool)
}

// Submissions journal of handed-off bundles.
type Submissions interface {
	Get(id string) (domain.Submission, bool)
	List() []domain.Submission
}

// Balances cached wallet balances.
type Balances interface {
	Read() (domain.WalletBalances, bool)
}

// Markets cached market registry.
type Markets interface {
	Markets() domain.Markets
}

// Valuations live position valuations.
type Valuations interface {
	Read() (domain.Valuations, bool)
	Subscribe() chan domain.Valuations
	Unsubscribe(ch chan domain.Valuations)
}

type balanceSnapshotReader interface {
	SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error)
	Latest(owner string) (domain.BalanceSnapshot, bool)
}

// Deps collaborators served by the API. Nil members answer 503.
type Deps struct {
	Router      Router
	Drafts      Drafts
	Sessions    Sessions
	Submissions Submissions
	Balances    Balances
	Markets     Markets
	Valuations  Valuations
	Snapshots   balanceSnapshotReader
}

// Server serves the JSON API and the SSE streams.
type Server struct {
	Addr   string
	deps   Deps
	logger *zap.Logger
}

// NewServer creates a new web server instance.
func NewServer(addr string, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, deps: deps, logger: logger.With(zap.String("component", "web"))}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /balances", s.handleBalances)
	mux.HandleFunc("GET /balances/{owner}/last", s.handleLastSnapshot)
	mux.HandleFunc("GET /markets", s.handleMarkets)
	mux.HandleFunc("GET /positions", s.handlePositions)
	mux.HandleFunc("POST /orders/quote", s.handleQuote)
	mux.HandleFunc("POST /orders/prepare", s.handlePrepare)
	mux.HandleFunc("POST /orders", s.handleSubmit)
	mux.HandleFunc("GET /orders", s.handleSubmissions)
	mux.HandleFunc("GET /orders/{id}", s.handleSubmission)
	mux.HandleFunc("PUT /draft", s.handlePutDraft)
	mux.HandleFunc("GET /draft", s.handleGetDraft)
	mux.HandleFunc("GET /session", s.handleGetSession)
	mux.HandleFunc("POST /session", s.handlePostSession)
	mux.HandleFunc("DELETE /session", s.handleDeleteSession)
	mux.HandleFunc("GET /balance/stream", s.handleBalanceStream)
	mux.HandleFunc("GET /positions/stream", s.handlePositionStream)
	mux.HandleFunc("GET /draft/stream", s.handleDraftStream)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting api server", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve api")
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with ACME certificates.
// An HTTP server on :80 answers the HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("acme server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme server", zap.Error(err))
		}
	}()

	s.logger.Info("starting api server with automatic tls", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve api over tls")
	}
	return nil
}
