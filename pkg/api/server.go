// Package api serves the leaderboard, sync, debug, stats and faucet endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/netip"
	"time"

	"github.com/ava-labs/libevm/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/faucet"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/metrics"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/syncer"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/types"
)

const (
	DefaultPageSize    = 50
	DefaultMaxPageSize = 100
	MaxNameLength      = 24
)

var (
	ErrMissingLeaderboard  = errors.New("leaderboard store is required")
	ErrInvalidTrustedProxy = errors.New("invalid trusted proxy")
)

// Config for the HTTP API.
type Config struct {
	Addr           string
	PageSize       int
	MaxPageSize    int
	SyncOnRead     bool
	AllowedOrigins []string
	// TrustedProxies are addresses or CIDR ranges whose X-Forwarded-For header is honoured.
	TrustedProxies []string
}

func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		PageSize:       DefaultPageSize,
		MaxPageSize:    DefaultMaxPageSize,
		AllowedOrigins: []string{"*"},
	}
}

// Leaderboard is the read/rename surface of the leaderboard store.
type Leaderboard interface {
	Top(ctx context.Context, limit int) ([]types.LeaderboardRow, error)
	Get(ctx context.Context, wallet string) (types.LeaderboardRow, bool, error)
	SetName(ctx context.Context, wallet, name string, updatedAt time.Time) error
}

// Syncer runs the synchronizer on demand.
type Syncer interface {
	Run(ctx context.Context) (syncer.Result, error)
	RecentLogs(ctx context.Context, blocks uint64) (syncer.Range, []syncer.RawLog, error)
}

// Accounts reads per-address chain state.
type Accounts interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// Faucet sends test tokens.
type Faucet interface {
	Request(ctx context.Context, ip, addr string) (faucet.Drip, error)
}

// Archive counts archived score events per wallet.
type Archive interface {
	CountByWallet(ctx context.Context, wallet common.Address) (uint64, error)
}

// Deps are the backends behind the routes. Only Leaderboard is required; routes whose
// backend is nil answer 503.
type Deps struct {
	Leaderboard Leaderboard
	Syncer      Syncer
	Accounts    Accounts
	Faucet      Faucet
	Archive     Archive
}

type Server struct {
	cfg        Config
	deps       Deps
	log        *zap.SugaredLogger
	metrics    *metrics.Metrics
	handler    http.Handler
	httpServer *http.Server
	trusted    []netip.Prefix
	claims     *nameClaims
	now        func() time.Time
}

func New(cfg Config, deps Deps, log *zap.SugaredLogger, m *metrics.Metrics) (*Server, error) {
	if deps.Leaderboard == nil {
		return nil, ErrMissingLeaderboard
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = DefaultMaxPageSize
	}
	if cfg.PageSize > cfg.MaxPageSize {
		cfg.PageSize = cfg.MaxPageSize
	}
	trusted, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		metrics: m,
		trusted: trusted,
		claims:  newNameClaims(NameSignatureTTL),
		now:     time.Now,
	}

	r := mux.NewRouter()
	r.Use(s.instrument)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard/{wallet}", s.handleLeaderboardRow).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard/{wallet}/name", s.handleSetName).Methods(http.MethodPut)
	api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	api.HandleFunc("/debug/logs", s.handleDebugLogs).Methods(http.MethodGet)
	api.HandleFunc("/stats/{address}", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/faucet", s.handleFaucet).Methods(http.MethodPost)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)

	return s, nil
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving on cfg.Addr. This is non-blocking.
// Returns a channel that receives an error if the server fails.
func (s *Server) Start() <-chan error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("api server listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the server started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
