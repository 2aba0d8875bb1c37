package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ava-labs/libevm/common"
	"github.com/gorilla/mux"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/faucet"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/syncer"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/utils"
)

const maxBodyBytes = 16 * 1024

// RankedRow is one leaderboard entry as served to clients.
type RankedRow struct {
	Rank      int       `json:"rank"`
	Wallet    string    `json:"wallet"`
	BestScore int64     `json:"bestScore"`
	Name      string    `json:"name,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type leaderboardResponse struct {
	Items     []RankedRow    `json:"items"`
	Sync      *syncer.Result `json:"sync,omitempty"`
	SyncError string         `json:"syncError,omitempty"`
}

type setNameRequest struct {
	Name      string `json:"name"`
	IssuedAt  int64  `json:"issuedAt"`
	Signature string `json:"signature"`
}

type syncResponse struct {
	Result syncer.Result `json:"result"`
	Error  string        `json:"error,omitempty"`
}

type debugLogsResponse struct {
	From uint64          `json:"fromBlock"`
	To   uint64          `json:"toBlock"`
	Logs []syncer.RawLog `json:"logs"`
}

type statsResponse struct {
	Address     string  `json:"address"`
	Balance     string  `json:"balance"`
	TxCount     uint64  `json:"txCount"`
	ScoreEvents *uint64 `json:"scoreEvents,omitempty"`
}

type faucetRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := s.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var resp leaderboardResponse
	if s.cfg.SyncOnRead && s.deps.Syncer != nil {
		res, err := s.deps.Syncer.Run(r.Context())
		switch {
		case err == nil:
			resp.Sync = &res
		case errors.Is(err, syncer.ErrSyncInProgress):
			s.log.Debugw("sync on read skipped, another instance is syncing")
		default:
			// stale rows are still served
			s.log.Warnw("sync on read failed", "error", err)
			resp.SyncError = err.Error()
		}
	}

	rows, err := s.deps.Leaderboard.Top(r.Context(), limit)
	if err != nil {
		s.log.Errorw("failed to read leaderboard", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read leaderboard")
		return
	}

	resp.Items = make([]RankedRow, len(rows))
	for i, row := range rows {
		resp.Items[i] = RankedRow{
			Rank:      i + 1,
			Wallet:    row.Wallet,
			BestScore: row.BestScore,
			Name:      row.Name,
			UpdatedAt: row.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) parseLimit(raw string) (int, error) {
	if raw == "" {
		return s.cfg.PageSize, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if n <= 0 {
		return s.cfg.PageSize, nil
	}
	return min(n, s.cfg.MaxPageSize), nil
}

func (s *Server) handleLeaderboardRow(w http.ResponseWriter, r *http.Request) {
	wallet, err := utils.NormalizeWallet(mux.Vars(r)["wallet"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	row, found, err := s.deps.Leaderboard.Get(r.Context(), wallet)
	if err != nil {
		s.log.Errorw("failed to read leaderboard row", "wallet", wallet, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read leaderboard")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "wallet not on leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, RankedRow{
		Wallet:    row.Wallet,
		BestScore: row.BestScore,
		Name:      row.Name,
		UpdatedAt: row.UpdatedAt,
	})
}

func (s *Server) handleSetName(w http.ResponseWriter, r *http.Request) {
	wallet, err := utils.NormalizeWallet(mux.Vars(r)["wallet"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req setNameRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		writeError(w, http.StatusBadRequest, "name must be at most "+strconv.Itoa(MaxNameLength)+" characters")
		return
	}
	if err := verifyNameSignature(common.HexToAddress(wallet), name, req.IssuedAt, req.Signature); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.claims.accept(wallet, req.IssuedAt, s.now()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if err := s.deps.Leaderboard.SetName(r.Context(), wallet, name, s.now().UTC()); err != nil {
		s.log.Errorw("failed to set name", "wallet", wallet, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set name")
		return
	}
	s.log.Infow("leaderboard name set", "wallet", wallet, "name", name)
	writeJSON(w, http.StatusOK, map[string]string{"wallet": wallet, "name": name})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}

	res, err := s.deps.Syncer.Run(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, syncResponse{Result: res})
	case errors.Is(err, syncer.ErrSyncInProgress):
		writeJSON(w, http.StatusConflict, syncResponse{Result: res, Error: err.Error()})
	default:
		s.log.Errorw("sync failed", "error", err)
		writeJSON(w, http.StatusBadGateway, syncResponse{Result: res, Error: err.Error()})
	}
}

func (s *Server) handleDebugLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}

	var blocks uint64
	if raw := r.URL.Query().Get("blocks"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "blocks must be a non-negative integer")
			return
		}
		blocks = n
	}

	rng, logs, err := s.deps.Syncer.RecentLogs(r.Context(), blocks)
	if err != nil {
		s.log.Errorw("failed to fetch recent logs", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, debugLogsResponse{From: rng.From, To: rng.To, Logs: logs})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Accounts == nil {
		writeError(w, http.StatusServiceUnavailable, "chain client is not configured")
		return
	}
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, utils.ErrInvalidAddress.Error())
		return
	}
	addr := common.HexToAddress(raw)

	balance, err := s.deps.Accounts.BalanceAt(r.Context(), addr, nil)
	if err != nil {
		s.log.Errorw("failed to read balance", "address", addr.Hex(), "error", err)
		writeError(w, http.StatusBadGateway, "failed to read balance")
		return
	}
	nonce, err := s.deps.Accounts.NonceAt(r.Context(), addr, nil)
	if err != nil {
		s.log.Errorw("failed to read nonce", "address", addr.Hex(), "error", err)
		writeError(w, http.StatusBadGateway, "failed to read transaction count")
		return
	}

	resp := statsResponse{
		Address: strings.ToLower(addr.Hex()),
		Balance: balance.String(),
		TxCount: nonce,
	}
	if s.deps.Archive != nil {
		// archive is best effort
		n, err := s.deps.Archive.CountByWallet(r.Context(), addr)
		if err != nil {
			s.log.Warnw("failed to count archived scores", "address", resp.Address, "error", err)
		} else {
			resp.ScoreEvents = &n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Faucet == nil {
		writeError(w, http.StatusServiceUnavailable, faucet.ErrFaucetDisabled.Error())
		return
	}

	var req faucetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	addr := strings.TrimSpace(req.Address)
	if !common.IsHexAddress(addr) {
		writeError(w, http.StatusBadRequest, utils.ErrInvalidAddress.Error())
		return
	}

	drip, err := s.deps.Faucet.Request(r.Context(), s.clientIP(r), addr)
	if err != nil {
		var limitErr *faucet.LimitError
		switch {
		case errors.As(err, &limitErr):
			secs := int64(math.Ceil(limitErr.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.FormatInt(max(secs, 1), 10))
			writeError(w, http.StatusTooManyRequests, limitErr.Error())
		case errors.Is(err, faucet.ErrFaucetDisabled):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusBadGateway, "faucet transfer failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, drip)
}
