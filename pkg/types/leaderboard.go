package types

import (
	"context"
	"time"
)

// LeaderboardRow is one wallet's best score. Wallet is always the lowercase 0x-prefixed address.
type LeaderboardRow struct {
	Wallet    string    `json:"wallet"`
	BestScore int64     `json:"bestScore"`
	UpdatedAt time.Time `json:"updatedAt"`
	Name      string    `json:"name,omitempty"`
}

// SyncCheckpoint is the last block fully scanned by a synchronizer.
type SyncCheckpoint struct {
	ID        string    `json:"id"`
	LastBlock uint64    `json:"lastBlock"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Gap is an inclusive block range whose logs could not be fetched during a run.
type Gap struct {
	ID           int64     `json:"id"`
	CheckpointID string    `json:"checkpointId"`
	FromBlock    uint64    `json:"fromBlock"`
	ToBlock      uint64    `json:"toBlock"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LeaderboardRepository persists best scores per wallet.
//
// Concurrency-safety:
// All implementations must be safe for concurrent use by multiple goroutines.
type LeaderboardRepository interface {
	// Initialize creates the backing table if needed.
	Initialize(ctx context.Context) error

	// BestScore returns the stored best score for wallet. found is false when no row exists.
	BestScore(ctx context.Context, wallet string) (score int64, found bool, err error)

	// UpsertBestScore stores score for wallet unless the stored value is already greater or
	// equal. It never lowers a stored score.
	UpsertBestScore(ctx context.Context, wallet string, score int64, updatedAt time.Time) error

	// Top returns up to limit rows ordered by best score descending, earliest first on ties.
	Top(ctx context.Context, limit int) ([]LeaderboardRow, error)

	// Get returns the row for wallet. found is false when no row exists.
	Get(ctx context.Context, wallet string) (row LeaderboardRow, found bool, err error)

	// SetName sets the display name of wallet, creating a zero-score row if missing.
	// An empty name clears it.
	SetName(ctx context.Context, wallet, name string, updatedAt time.Time) error
}

// GapRepository records block ranges skipped by the synchronizer so they can be replayed.
type GapRepository interface {
	Initialize(ctx context.Context) error
	RecordGap(ctx context.Context, gap Gap) error
	ListGaps(ctx context.Context, checkpointID string) ([]Gap, error)
	DeleteGap(ctx context.Context, id int64) error
}
