package syncgaps

import (
	"context"
	_ "embed"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/postgres"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/types"
)

var _ types.GapRepository = (*repository)(nil)

//go:embed queries/create-table.sql
var createTableQuery string

//go:embed queries/insert-gap.sql
var insertGapQuery string

//go:embed queries/list-gaps.sql
var listGapsQuery string

//go:embed queries/delete-gap.sql
var deleteGapQuery string

type repository struct {
	client    postgres.Client
	tableName string
}

func NewRepository(ctx context.Context, client postgres.Client, tableName string) (types.GapRepository, error) {
	repo := &repository{client: client, tableName: tableName}
	if err := repo.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to create gaps table: %w", err)
	}
	return repo, nil
}

func (r *repository) Initialize(ctx context.Context) error {
	if _, err := r.client.DB().Exec(ctx, fmt.Sprintf(createTableQuery, r.table())); err != nil {
		return fmt.Errorf("failed to create table %s: %w", r.tableName, err)
	}
	return nil
}

func (r *repository) RecordGap(ctx context.Context, gap types.Gap) error {
	if gap.ToBlock > math.MaxInt64 || gap.FromBlock > gap.ToBlock {
		return fmt.Errorf("invalid gap [%d, %d]", gap.FromBlock, gap.ToBlock)
	}
	_, err := r.client.DB().Exec(ctx, fmt.Sprintf(insertGapQuery, r.table()),
		gap.CheckpointID, int64(gap.FromBlock), int64(gap.ToBlock), gap.Reason, gap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record gap: %w", err)
	}
	return nil
}

func (r *repository) ListGaps(ctx context.Context, checkpointID string) ([]types.Gap, error) {
	rows, err := r.client.DB().Query(ctx, fmt.Sprintf(listGapsQuery, r.table()), checkpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list gaps: %w", err)
	}
	gaps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Gap, error) {
		var (
			g        types.Gap
			from, to int64
		)
		if err := row.Scan(&g.ID, &g.CheckpointID, &from, &to, &g.Reason, &g.CreatedAt); err != nil {
			return types.Gap{}, err
		}
		g.FromBlock, g.ToBlock = uint64(from), uint64(to)
		return g, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan gaps: %w", err)
	}
	return gaps, nil
}

func (r *repository) DeleteGap(ctx context.Context, id int64) error {
	if _, err := r.client.DB().Exec(ctx, fmt.Sprintf(deleteGapQuery, r.table()), id); err != nil {
		return fmt.Errorf("failed to delete gap %d: %w", id, err)
	}
	return nil
}

func (r *repository) table() string {
	return pgx.Identifier{r.tableName}.Sanitize()
}
