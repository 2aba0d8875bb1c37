package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/types"
)

var _ types.LeaderboardRepository = (*Leaderboard)(nil)

// Leaderboard is a thread-safe in-memory LeaderboardRepository, used by the memory store and tests.
type Leaderboard struct {
	mu   sync.RWMutex
	rows map[string]types.LeaderboardRow
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{rows: make(map[string]types.LeaderboardRow)}
}

func (*Leaderboard) Initialize(context.Context) error {
	return nil
}

func (l *Leaderboard) BestScore(_ context.Context, wallet string) (int64, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	row, ok := l.rows[wallet]
	return row.BestScore, ok, nil
}

// UpsertBestScore mirrors the conditional upsert of the SQL store: a stored score is only
// replaced by a strictly greater one.
func (l *Leaderboard) UpsertBestScore(_ context.Context, wallet string, score int64, updatedAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[wallet]
	if ok && row.BestScore >= score {
		return nil
	}
	row.Wallet = wallet
	row.BestScore = score
	row.UpdatedAt = updatedAt
	l.rows[wallet] = row
	return nil
}

func (l *Leaderboard) Top(_ context.Context, limit int) ([]types.LeaderboardRow, error) {
	l.mu.RLock()
	out := make([]types.LeaderboardRow, 0, len(l.rows))
	for _, row := range l.rows {
		// name-only rows stay out of the ranking until the wallet scores
		if row.BestScore <= 0 {
			continue
		}
		out = append(out, row)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BestScore != out[j].BestScore {
			return out[i].BestScore > out[j].BestScore
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].Wallet < out[j].Wallet
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *Leaderboard) Get(_ context.Context, wallet string) (types.LeaderboardRow, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	row, ok := l.rows[wallet]
	return row, ok, nil
}

func (l *Leaderboard) SetName(_ context.Context, wallet, name string, updatedAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[wallet]
	if !ok {
		row = types.LeaderboardRow{Wallet: wallet, UpdatedAt: updatedAt}
	}
	row.Name = name
	l.rows[wallet] = row
	return nil
}

// Len returns the number of rows.
func (l *Leaderboard) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rows)
}
