package api

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ava-labs/libevm/accounts"
	"github.com/ava-labs/libevm/common"
	"github.com/ava-labs/libevm/common/hexutil"
	"github.com/ava-labs/libevm/core/types"
	"github.com/ava-labs/libevm/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/chainclient/testutils"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/data/inmemory"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/faucet"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/metrics"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/scores"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/syncer"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSyncer struct {
	runs   int
	result syncer.Result
	err    error
	onRun  func()

	logsRange syncer.Range
	logs      []syncer.RawLog
	logsErr   error
	gotBlocks uint64
}

func (f *fakeSyncer) Run(context.Context) (syncer.Result, error) {
	f.runs++
	if f.onRun != nil {
		f.onRun()
	}
	return f.result, f.err
}

func (f *fakeSyncer) RecentLogs(_ context.Context, blocks uint64) (syncer.Range, []syncer.RawLog, error) {
	f.gotBlocks = blocks
	return f.logsRange, f.logs, f.logsErr
}

type fakeFaucet struct {
	drip faucet.Drip
	err  error
	ip   string
	addr string
}

func (f *fakeFaucet) Request(_ context.Context, ip, addr string) (faucet.Drip, error) {
	f.ip, f.addr = ip, addr
	return f.drip, f.err
}

type fakeArchive struct {
	n   uint64
	err error
}

func (f fakeArchive) CountByWallet(context.Context, common.Address) (uint64, error) {
	return f.n, f.err
}

func newTestServer(t *testing.T, cfg Config, deps Deps) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	if deps.Leaderboard == nil {
		deps.Leaderboard = inmemory.NewLeaderboard()
	}
	s, err := New(cfg, deps, zaptest.NewLogger(t).Sugar(), m)
	require.NoError(t, err)
	s.now = func() time.Time { return t0 }
	return s, reg
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func wallet(i int) string {
	return fmt.Sprintf("0x%040x", i)
}

func seed(t *testing.T, lb *inmemory.Leaderboard, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, lb.UpsertBestScore(t.Context(), wallet(i), int64(i*10), t0.Add(time.Duration(i)*time.Second)))
	}
}

func TestNew_RequiresLeaderboard(t *testing.T) {
	t.Parallel()

	_, err := New(DefaultConfig(), Deps{}, nil, nil)
	require.ErrorIs(t, err, ErrMissingLeaderboard)
}

func TestNew_ClampsPageSize(t *testing.T) {
	t.Parallel()

	s, err := New(Config{PageSize: 500, MaxPageSize: 20}, Deps{Leaderboard: inmemory.NewLeaderboard()}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, s.cfg.PageSize)

	s, err = New(Config{}, Deps{Leaderboard: inmemory.NewLeaderboard()}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, s.cfg.PageSize)
	assert.Equal(t, DefaultMaxPageSize, s.cfg.MaxPageSize)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, DefaultConfig(), Deps{})
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestLeaderboard_RankedAndLimited(t *testing.T) {
	t.Parallel()

	lb := inmemory.NewLeaderboard()
	seed(t, lb, 5)
	s, _ := newTestServer(t, Config{PageSize: 3, MaxPageSize: 4}, Deps{Leaderboard: lb})

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"default page size", "", 3},
		{"explicit", "?limit=2", 2},
		{"capped", "?limit=1000", 4},
		{"non-positive falls back", "?limit=0", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/api/leaderboard"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)

			resp := decode[leaderboardResponse](t, rec)
			require.Len(t, resp.Items, tt.want)
			for i, row := range resp.Items {
				assert.Equal(t, i+1, row.Rank)
				assert.Equal(t, int64((5-i)*10), row.BestScore)
			}
			assert.Nil(t, resp.Sync)
		})
	}
}

func TestLeaderboard_InvalidLimit(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, DefaultConfig(), Deps{})
	rec := do(t, s, http.MethodGet, "/api/leaderboard?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Error, "limit")
}

func TestLeaderboard_SyncOnRead(t *testing.T) {
	t.Parallel()

	lb := inmemory.NewLeaderboard()
	sy := &fakeSyncer{
		result: syncer.Result{From: 1, To: 10, Head: 10, Chunks: 1, EventsProcessed: 1},
		onRun: func() {
			// the read must see what the sync wrote
			_ = lb.UpsertBestScore(context.Background(), wallet(1), 99, t0)
		},
	}
	cfg := DefaultConfig()
	cfg.SyncOnRead = true
	s, _ := newTestServer(t, cfg, Deps{Leaderboard: lb, Syncer: sy})

	rec := do(t, s, http.MethodGet, "/api/leaderboard", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[leaderboardResponse](t, rec)
	assert.Equal(t, 1, sy.runs)
	require.NotNil(t, resp.Sync)
	assert.Equal(t, uint64(10), resp.Sync.Head)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(99), resp.Items[0].BestScore)
}

func TestLeaderboard_SyncOnReadFailureServesStaleRows(t *testing.T) {
	t.Parallel()

	lb := inmemory.NewLeaderboard()
	seed(t, lb, 2)
	cfg := DefaultConfig()
	cfg.SyncOnRead = true

	t.Run("error", func(t *testing.T) {
		s, _ := newTestServer(t, cfg, Deps{Leaderboard: lb, Syncer: &fakeSyncer{err: errors.New("rpc down")}})
		rec := do(t, s, http.MethodGet, "/api/leaderboard", "")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[leaderboardResponse](t, rec)
		assert.Len(t, resp.Items, 2)
		assert.Equal(t, "rpc down", resp.SyncError)
	})

	t.Run("in progress elsewhere", func(t *testing.T) {
		s, _ := newTestServer(t, cfg, Deps{Leaderboard: lb, Syncer: &fakeSyncer{err: syncer.ErrSyncInProgress}})
		rec := do(t, s, http.MethodGet, "/api/leaderboard", "")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[leaderboardResponse](t, rec)
		assert.Len(t, resp.Items, 2)
		assert.Empty(t, resp.SyncError)
	})
}

func TestLeaderboardRow(t *testing.T) {
	t.Parallel()

	lb := inmemory.NewLeaderboard()
	seed(t, lb, 1)
	s, _ := newTestServer(t, DefaultConfig(), Deps{Leaderboard: lb})

	rec := do(t, s, http.MethodGet, "/api/leaderboard/"+strings.ToUpper(wallet(1)[2:]), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing 0x prefix")

	rec = do(t, s, http.MethodGet, "/api/leaderboard/0x"+strings.ToUpper(wallet(1)[2:]), "")
	require.Equal(t, http.StatusOK, rec.Code)
	row := decode[RankedRow](t, rec)
	assert.Equal(t, wallet(1), row.Wallet)
	assert.Equal(t, int64(10), row.BestScore)

	rec = do(t, s, http.MethodGet, "/api/leaderboard/"+wallet(2), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func signName(t *testing.T, name string, issuedAt time.Time) (common.Address, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey), signNameWith(t, key, name, issuedAt)
}

func signNameWith(t *testing.T, key *ecdsa.PrivateKey, name string, issuedAt time.Time) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(NameMessage(name, issuedAt.Unix()))), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func nameBody(name string, issuedAt time.Time, sig string) string {
	return fmt.Sprintf(`{"name":%q,"issuedAt":%d,"signature":%q}`, name, issuedAt.Unix(), sig)
}

func TestSetName(t *testing.T) {
	t.Parallel()

	lb := inmemory.NewLeaderboard()
	s, _ := newTestServer(t, DefaultConfig(), Deps{Leaderboard: lb})
	// the signature covers the trimmed name
	addr, sig := signName(t, "alice", t0)
	w := strings.ToLower(addr.Hex())

	rec := do(t, s, http.MethodPut, "/api/leaderboard/"+addr.Hex()+"/name", nameBody("  alice ", t0, sig))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	row, found, err := lb.Get(t.Context(), w)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", row.Name)
	assert.Equal(t, int64(0), row.BestScore)
}

func TestSetName_Rejections(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, DefaultConfig(), Deps{})
	addr, sig := signName(t, "alice", t0)
	other, _ := signName(t, "alice", t0)

	tests := []struct {
		name   string
		wallet string
		body   string
		code   int
	}{
		{"bad wallet", "0x123", `{}`, http.StatusBadRequest},
		{"bad json", addr.Hex(), `{`, http.StatusBadRequest},
		{"too long", addr.Hex(), nameBody(strings.Repeat("x", MaxNameLength+1), t0, sig), http.StatusBadRequest},
		{"other signer", other.Hex(), nameBody("alice", t0, sig), http.StatusUnauthorized},
		{"signed different name", addr.Hex(), nameBody("bob", t0, sig), http.StatusUnauthorized},
		{"signed different time", addr.Hex(), nameBody("alice", t0.Add(time.Second), sig), http.StatusUnauthorized},
		{"garbage signature", addr.Hex(), `{"name":"alice","issuedAt":1,"signature":"0x1234"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPut, "/api/leaderboard/"+tt.wallet+"/name", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestSetName_ExpiredOrReplayedSignature(t *testing.T) {
	t.Parallel()

	lb := inmemory.NewLeaderboard()
	s, _ := newTestServer(t, DefaultConfig(), Deps{Leaderboard: lb})
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	path := "/api/leaderboard/" + addr.Hex() + "/name"

	stale := t0.Add(-NameSignatureTTL - time.Second)
	rec := do(t, s, http.MethodPut, path, nameBody("old", stale, signNameWith(t, key, "old", stale)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	future := t0.Add(10 * time.Minute)
	rec = do(t, s, http.MethodPut, path, nameBody("later", future, signNameWith(t, key, "later", future)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	first := t0.Add(-2 * time.Minute)
	firstBody := nameBody("alice", first, signNameWith(t, key, "alice", first))
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, path, firstBody).Code)

	second := t0.Add(-time.Minute)
	secondBody := nameBody("alice2", second, signNameWith(t, key, "alice2", second))
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, path, secondBody).Code)

	// resubmitting the earlier claim must not revert the rename
	rec = do(t, s, http.MethodPut, path, firstBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrStaleSignature.Error())

	row, _, err := lb.Get(t.Context(), strings.ToLower(addr.Hex()))
	require.NoError(t, err)
	assert.Equal(t, "alice2", row.Name)
}

func TestNameClaims_PrunesExpiredWallets(t *testing.T) {
	t.Parallel()

	c := newNameClaims(time.Minute)
	require.NoError(t, c.accept("0xa", t0.Unix(), t0))
	require.NoError(t, c.accept("0xb", t0.Unix(), t0))
	require.ErrorIs(t, c.accept("0xa", t0.Unix(), t0), ErrStaleSignature)

	later := t0.Add(2 * time.Minute)
	require.NoError(t, c.accept("0xc", later.Unix(), later))
	assert.Len(t, c.last, 1)
}

func TestSync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sy   *fakeSyncer
		code int
	}{
		{"ok", &fakeSyncer{result: syncer.Result{Head: 5, Chunks: 1}}, http.StatusOK},
		{"in progress", &fakeSyncer{err: syncer.ErrSyncInProgress}, http.StatusConflict},
		{"failed", &fakeSyncer{err: errors.New("failed to get chain head: boom")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, DefaultConfig(), Deps{Syncer: tt.sy})
			rec := do(t, s, http.MethodPost, "/api/sync", "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, 1, tt.sy.runs)
			resp := decode[syncResponse](t, rec)
			if tt.sy.err != nil {
				assert.Equal(t, tt.sy.err.Error(), resp.Error)
			} else {
				assert.Equal(t, uint64(5), resp.Result.Head)
			}
		})
	}

	s, _ := newTestServer(t, DefaultConfig(), Deps{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/api/sync", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/api/sync", "").Code)
}

func TestDebugLogs(t *testing.T) {
	t.Parallel()

	ev := scores.ScoreSubmittedEvent{Player: common.HexToAddress(wallet(1)), Score: big.NewInt(5), BlockNumber: 9}
	sy := &fakeSyncer{
		logsRange: syncer.Range{From: 1, To: 10},
		logs: []syncer.RawLog{
			{Log: types.Log{BlockNumber: 9, Topics: []common.Hash{scores.Topic}}, Event: &ev},
			{Log: types.Log{BlockNumber: 10}, Error: scores.ErrUnexpectedShape.Error()},
		},
	}
	s, _ := newTestServer(t, DefaultConfig(), Deps{Syncer: sy})

	rec := do(t, s, http.MethodGet, "/api/debug/logs?blocks=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(10), sy.gotBlocks)

	var resp struct {
		From uint64            `json:"fromBlock"`
		To   uint64            `json:"toBlock"`
		Logs []json.RawMessage `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.From)
	assert.Equal(t, uint64(10), resp.To)
	assert.Len(t, resp.Logs, 2)
	assert.Contains(t, string(resp.Logs[1]), scores.ErrUnexpectedShape.Error())

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/debug/logs?blocks=-1", "").Code)

	sy.logsErr = errors.New("range too large")
	assert.Equal(t, http.StatusBadGateway, do(t, s, http.MethodGet, "/api/debug/logs", "").Code)
	assert.Equal(t, uint64(0), sy.gotBlocks)
}

func TestStats(t *testing.T) {
	t.Parallel()

	client := &testutils.MockClient{}
	addr := common.HexToAddress(wallet(7))
	client.On("BalanceAt", mock.Anything, addr, (*big.Int)(nil)).Return(big.NewInt(1234), nil)
	client.On("NonceAt", mock.Anything, addr, (*big.Int)(nil)).Return(uint64(3), nil)

	s, _ := newTestServer(t, DefaultConfig(), Deps{Accounts: client, Archive: fakeArchive{n: 4}})
	rec := do(t, s, http.MethodGet, "/api/stats/"+addr.Hex(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[statsResponse](t, rec)
	assert.Equal(t, wallet(7), resp.Address)
	assert.Equal(t, "1234", resp.Balance)
	assert.Equal(t, uint64(3), resp.TxCount)
	require.NotNil(t, resp.ScoreEvents)
	assert.Equal(t, uint64(4), *resp.ScoreEvents)

	// archive failures do not fail the request
	s, _ = newTestServer(t, DefaultConfig(), Deps{Accounts: client, Archive: fakeArchive{err: errors.New("down")}})
	rec = do(t, s, http.MethodGet, "/api/stats/"+addr.Hex(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[statsResponse](t, rec).ScoreEvents)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/stats/nope", "").Code)
	client.AssertExpectations(t)
}

func TestStats_RPCFailure(t *testing.T) {
	t.Parallel()

	client := &testutils.MockClient{}
	client.On("BalanceAt", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()

	s, _ := newTestServer(t, DefaultConfig(), Deps{Accounts: client})
	rec := do(t, s, http.MethodGet, "/api/stats/"+wallet(1), "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	client.AssertExpectations(t)
}

func TestFaucet(t *testing.T) {
	t.Parallel()

	f := &fakeFaucet{drip: faucet.Drip{To: common.HexToAddress(wallet(1)), Amount: "1", Nonce: 2}}
	s, _ := newTestServer(t, DefaultConfig(), Deps{Faucet: f})

	req := httptest.NewRequest(http.MethodPost, "/api/faucet", strings.NewReader(`{"address":"`+wallet(1)+`"}`))
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 172.16.0.1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "192.0.2.1", f.ip, "forwarded header from an untrusted peer is ignored")
	assert.Equal(t, wallet(1), f.addr)
	assert.Equal(t, uint64(2), decode[faucet.Drip](t, rec).Nonce)
}

func TestFaucet_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		f          Faucet
		body       string
		code       int
		retryAfter string
	}{
		{"disabled", nil, `{"address":"` + wallet(1) + `"}`, http.StatusServiceUnavailable, ""},
		{"bad json", &fakeFaucet{}, `nope`, http.StatusBadRequest, ""},
		{"bad address", &fakeFaucet{}, `{"address":"0x12"}`, http.StatusBadRequest, ""},
		{"rate limited", &fakeFaucet{err: &faucet.LimitError{Kind: "address", RetryAfter: 90 * time.Second}}, `{"address":"` + wallet(1) + `"}`, http.StatusTooManyRequests, "90"},
		{"send failed", &fakeFaucet{err: errors.New("nonce too low")}, `{"address":"` + wallet(1) + `"}`, http.StatusBadGateway, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, DefaultConfig(), Deps{Faucet: tt.f})
			rec := do(t, s, http.MethodPost, "/api/faucet", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))
		})
	}
}

func TestRequestMetricsAndCORS(t *testing.T) {
	t.Parallel()

	s, reg := newTestServer(t, DefaultConfig(), Deps{})

	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard/"+wallet(3), nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	n, err := testutil.GatherAndCount(reg, "leaderboard_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/nope", "").Code)
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		trusted []string
		remote  string
		fwd     []string
		want    string
	}{
		{"peer only", nil, "192.0.2.1:5555", nil, "192.0.2.1"},
		{"untrusted peer ignores header", nil, "192.0.2.1:5555", []string{"198.51.100.7"}, "192.0.2.1"},
		{"trusted peer", []string{"10.0.0.0/8"}, "10.1.2.3:80", []string{" 198.51.100.7 "}, "198.51.100.7"},
		{"rightmost untrusted hop", []string{"10.0.0.0/8"}, "10.1.2.3:80", []string{"6.6.6.6, 198.51.100.7, 10.9.9.9"}, "198.51.100.7"},
		{"repeated headers", []string{"10.1.2.3"}, "10.1.2.3:80", []string{"6.6.6.6", "198.51.100.7"}, "198.51.100.7"},
		{"garbage hop stops walk", []string{"10.0.0.0/8"}, "10.1.2.3:80", []string{"198.51.100.7, nonsense, 10.0.0.5"}, "10.0.0.5"},
		{"trusted peer without header", []string{"10.0.0.0/8"}, "10.1.2.3:80", nil, "10.1.2.3"},
		{"ipv6 peer", []string{"::1"}, "[::1]:80", []string{"2001:db8::7"}, "2001:db8::7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			cfg.TrustedProxies = tt.trusted
			s, _ := newTestServer(t, cfg, Deps{})

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for _, v := range tt.fwd {
				r.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tt.want, s.clientIP(r))
		})
	}
}

func TestNew_InvalidTrustedProxy(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.TrustedProxies = []string{"10.0.0.0/99"}
	_, err := New(cfg, Deps{Leaderboard: inmemory.NewLeaderboard()}, nil, nil)
	require.ErrorIs(t, err, ErrInvalidTrustedProxy)
}

// limitedFaucet applies only the per-IP window of a real limiter.
type limitedFaucet struct {
	limiter *faucet.Limiter
}

func (f *limitedFaucet) Request(_ context.Context, ip, addr string) (faucet.Drip, error) {
	if err := f.limiter.AllowIP(ip); err != nil {
		return faucet.Drip{}, err
	}
	return faucet.Drip{To: common.HexToAddress(addr), Amount: "1"}, nil
}

func TestFaucet_ForwardedForCannotEvadeIPLimit(t *testing.T) {
	t.Parallel()

	f := &limitedFaucet{limiter: faucet.NewLimiter(faucet.DefaultLimiterConfig())}
	s, _ := newTestServer(t, DefaultConfig(), Deps{Faucet: f})

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/faucet", strings.NewReader(`{"address":"`+wallet(i)+`"}`))
		req.RemoteAddr = "203.0.113.9:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}
	assert.Equal(t, faucet.DefaultPerIPLimit, allowed)
}
