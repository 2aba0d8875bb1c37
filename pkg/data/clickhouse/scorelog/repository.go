// Package scorelog archives every decoded ScoreSubmitted event in ClickHouse. Replays of the same
// log collapse into one row through the ReplacingMergeTree key.
package scorelog

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/ava-labs/libevm/common"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/clickhouse"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/scores"
)

// Repository writes score events to ClickHouse
type Repository interface {
	CreateTableIfNotExists(ctx context.Context) error
	WriteEvent(ctx context.Context, ev scores.ScoreSubmittedEvent) error
	CountByWallet(ctx context.Context, wallet common.Address) (uint64, error)
}

//go:embed queries/create-table.sql
var createTableQuery string

//go:embed queries/insert-event.sql
var insertEventQuery string

//go:embed queries/count-by-wallet.sql
var countByWalletQuery string

type repository struct {
	client    clickhouse.Client
	tableName string
	chainID   uint64
	contract  common.Address
	now       func() time.Time
}

// NewRepository creates the archive repository and initializes its table.
func NewRepository(
	ctx context.Context,
	client clickhouse.Client,
	tableName string,
	chainID uint64,
	contract common.Address,
) (Repository, error) {
	repo := &repository{
		client:    client,
		tableName: tableName,
		chainID:   chainID,
		contract:  contract,
		now:       time.Now,
	}
	if err := repo.CreateTableIfNotExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize score events table: %w", err)
	}
	return repo, nil
}

func (r *repository) CreateTableIfNotExists(ctx context.Context) error {
	if err := r.client.Exec(ctx, fmt.Sprintf(createTableQuery, r.tableName)); err != nil {
		return fmt.Errorf("failed to create score events table: %w", err)
	}
	return nil
}

func (r *repository) WriteEvent(ctx context.Context, ev scores.ScoreSubmittedEvent) error {
	if ev.Score == nil {
		return fmt.Errorf("event at block %d has no score", ev.BlockNumber)
	}
	err := r.client.Exec(ctx, fmt.Sprintf(insertEventQuery, r.tableName),
		r.chainID,
		string(r.contract.Bytes()),
		string(ev.Player.Bytes()),
		ev.Wallet(),
		ev.Score.String(),
		ev.BlockNumber,
		string(ev.TxHash.Bytes()),
		uint32(ev.LogIndex), //nolint:gosec // log index within a block
		r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write score event: %w", err)
	}
	return nil
}

func (r *repository) CountByWallet(ctx context.Context, wallet common.Address) (uint64, error) {
	var n uint64
	err := r.client.
		QueryRow(ctx, fmt.Sprintf(countByWalletQuery, r.tableName),
			r.chainID, string(r.contract.Bytes()), strings.ToLower(wallet.Hex())).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count score events: %w", err)
	}
	return n, nil
}

// Publisher feeds the synchronizer's decoded events into the archive.
type Publisher struct {
	repo Repository
}

func NewPublisher(repo Repository) *Publisher {
	return &Publisher{repo: repo}
}

func (*Publisher) Name() string {
	return "clickhouse"
}

func (p *Publisher) Publish(ctx context.Context, ev scores.ScoreSubmittedEvent) error {
	return p.repo.WriteEvent(ctx, ev)
}
