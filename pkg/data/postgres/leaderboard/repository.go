package leaderboard

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/postgres"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/types"
)

var _ types.LeaderboardRepository = (*repository)(nil)

//go:embed queries/create-table.sql
var createTableQuery string

//go:embed queries/create-rank-index.sql
var createRankIndexQuery string

//go:embed queries/best-score.sql
var bestScoreQuery string

//go:embed queries/upsert-best-score.sql
var upsertBestScoreQuery string

//go:embed queries/top.sql
var topQuery string

//go:embed queries/get.sql
var getQuery string

//go:embed queries/set-name.sql
var setNameQuery string

type repository struct {
	client    postgres.Client
	tableName string
}

// NewRepository returns a leaderboard repository over tableName, creating the table if needed.
func NewRepository(ctx context.Context, client postgres.Client, tableName string) (types.LeaderboardRepository, error) {
	repo := &repository{client: client, tableName: tableName}
	if err := repo.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to create leaderboard table: %w", err)
	}
	return repo, nil
}

// Initialize ensures the leaderboard table and its ranking index exist.
// Schema:
//   - wallet: TEXT primary key, lowercase hex address
//   - best_score: BIGINT, highest score ever observed for the wallet
//   - updated_at: TIMESTAMPTZ of the last best score change, breaks ranking ties
//   - name: optional display name
func (r *repository) Initialize(ctx context.Context) error {
	table := r.table()
	if _, err := r.client.DB().Exec(ctx, fmt.Sprintf(createTableQuery, table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", r.tableName, err)
	}
	index := pgx.Identifier{r.tableName + "_rank_idx"}.Sanitize()
	if _, err := r.client.DB().Exec(ctx, fmt.Sprintf(createRankIndexQuery, table, index)); err != nil {
		return fmt.Errorf("failed to create rank index on %s: %w", r.tableName, err)
	}
	return nil
}

func (r *repository) BestScore(ctx context.Context, wallet string) (int64, bool, error) {
	var score int64
	err := r.client.DB().QueryRow(ctx, fmt.Sprintf(bestScoreQuery, r.table()), wallet).Scan(&score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read best score: %w", err)
	}
	return score, true, nil
}

// UpsertBestScore inserts or raises the wallet's best score. The conditional update keeps the
// score monotonic even when several writers race on the same wallet.
func (r *repository) UpsertBestScore(ctx context.Context, wallet string, score int64, updatedAt time.Time) error {
	_, err := r.client.DB().Exec(ctx, fmt.Sprintf(upsertBestScoreQuery, r.table()), wallet, score, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert best score: %w", err)
	}
	return nil
}

func (r *repository) Top(ctx context.Context, limit int) ([]types.LeaderboardRow, error) {
	rows, err := r.client.DB().Query(ctx, fmt.Sprintf(topQuery, r.table()), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.LeaderboardRow, error) {
		return scanRow(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan leaderboard: %w", err)
	}
	return out, nil
}

func (r *repository) Get(ctx context.Context, wallet string) (types.LeaderboardRow, bool, error) {
	row, err := scanRow(r.client.DB().QueryRow(ctx, fmt.Sprintf(getQuery, r.table()), wallet))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.LeaderboardRow{}, false, nil
		}
		return types.LeaderboardRow{}, false, fmt.Errorf("failed to read leaderboard row: %w", err)
	}
	return row, true, nil
}

func (r *repository) SetName(ctx context.Context, wallet, name string, updatedAt time.Time) error {
	if _, err := r.client.DB().Exec(ctx, fmt.Sprintf(setNameQuery, r.table()), wallet, updatedAt, name); err != nil {
		return fmt.Errorf("failed to set name: %w", err)
	}
	return nil
}

func (r *repository) table() string {
	return pgx.Identifier{r.tableName}.Sanitize()
}

func scanRow(row pgx.Row) (types.LeaderboardRow, error) {
	var (
		out  types.LeaderboardRow
		name *string
	)
	if err := row.Scan(&out.Wallet, &out.BestScore, &out.UpdatedAt, &name); err != nil {
		return types.LeaderboardRow{}, err
	}
	if name != nil {
		out.Name = *name
	}
	return out, nil
}
