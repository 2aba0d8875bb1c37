package checkpoint

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/checkpointer"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/postgres"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/types"
)

// Repository is used to write and read the synchronizer checkpoint in Postgres. It implements the
// checkpointer.Checkpointer interface and adds a read of the full row.
type Repository interface {
	checkpointer.Checkpointer
	Get(ctx context.Context, id string) (types.SyncCheckpoint, bool, error)
}

var _ Repository = (*repository)(nil)

var errBlockOutOfRange = errors.New("block number out of BIGINT range")

//go:embed queries/create-table.sql
var createTableQuery string

//go:embed queries/write-checkpoint.sql
var writeCheckpointQuery string

//go:embed queries/read-checkpoint.sql
var readCheckpointQuery string

//go:embed queries/delete-checkpoint.sql
var deleteCheckpointQuery string

type repository struct {
	client    postgres.Client
	tableName string
	now       func() time.Time
}

func NewRepository(ctx context.Context, client postgres.Client, tableName string) (Repository, error) {
	repo := &repository{client: client, tableName: tableName, now: time.Now}
	if err := repo.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint table: %w", err)
	}
	return repo, nil
}

// Initialize ensures the checkpoint table exists.
// Schema:
//   - id: TEXT primary key, one row per synchronizer
//   - last_block: BIGINT, last block fully scanned
//   - updated_at: TIMESTAMPTZ of the last write
func (r *repository) Initialize(ctx context.Context) error {
	if _, err := r.client.DB().Exec(ctx, fmt.Sprintf(createTableQuery, r.table())); err != nil {
		return fmt.Errorf("failed to create table %s: %w", r.tableName, err)
	}
	return nil
}

// Write overwrites the checkpoint row. Concurrent writers are last-writer-wins.
func (r *repository) Write(ctx context.Context, id string, lastBlock uint64) error {
	if lastBlock > math.MaxInt64 {
		return fmt.Errorf("%w: %d", errBlockOutOfRange, lastBlock)
	}
	_, err := r.client.DB().Exec(ctx, fmt.Sprintf(writeCheckpointQuery, r.table()),
		id, int64(lastBlock), r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (r *repository) Read(ctx context.Context, id string) (uint64, bool, error) {
	cp, exists, err := r.Get(ctx, id)
	return cp.LastBlock, exists, err
}

func (r *repository) Get(ctx context.Context, id string) (types.SyncCheckpoint, bool, error) {
	var (
		cp        types.SyncCheckpoint
		lastBlock int64
	)
	err := r.client.DB().
		QueryRow(ctx, fmt.Sprintf(readCheckpointQuery, r.table()), id).
		Scan(&cp.ID, &lastBlock, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.SyncCheckpoint{}, false, nil
		}
		return types.SyncCheckpoint{}, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if lastBlock < 0 {
		return types.SyncCheckpoint{}, false, fmt.Errorf("%w: %d", errBlockOutOfRange, lastBlock)
	}
	cp.LastBlock = uint64(lastBlock)
	return cp, true, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	if _, err := r.client.DB().Exec(ctx, fmt.Sprintf(deleteCheckpointQuery, r.table()), id); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (r *repository) table() string {
	return pgx.Identifier{r.tableName}.Sanitize()
}
