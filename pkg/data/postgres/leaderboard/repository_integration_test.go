//go:build integration
// +build integration

package leaderboard

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/postgres/testutils"
)

func TestRepository_Integration(t *testing.T) {
	client := testutils.StartPostgres(t)
	ctx := t.Context()

	repo, err := NewRepository(ctx, client, "leaderboard")
	require.NoError(t, err)
	// Initialize is idempotent.
	require.NoError(t, repo.Initialize(ctx))

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertBestScore(ctx, "0xa", 10, t0))
	require.NoError(t, repo.UpsertBestScore(ctx, "0xa", 5, t0.Add(time.Hour)))
	require.NoError(t, repo.UpsertBestScore(ctx, "0xb", 10, t0.Add(time.Minute)))
	require.NoError(t, repo.UpsertBestScore(ctx, "0xc", 30, t0))

	score, found, err := repo.BestScore(ctx, "0xa")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(10), score, "lower score never overwrites")

	require.NoError(t, repo.SetName(ctx, "0xb", "bob", t0))
	require.NoError(t, repo.SetName(ctx, "0xd", "dora", t0))

	rows, err := repo.Top(ctx, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "0xc", rows[0].Wallet)
	assert.Equal(t, "0xa", rows[1].Wallet)
	assert.Equal(t, "0xb", rows[2].Wallet)
	assert.Equal(t, "bob", rows[2].Name)

	rows, err = repo.Top(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 3, "0xd has a name but no score")

	row, found, err := repo.Get(ctx, "0xd")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Zero(t, row.BestScore)

	require.NoError(t, repo.SetName(ctx, "0xd", "", t0))
	row, _, err = repo.Get(ctx, "0xd")
	require.NoError(t, err)
	assert.Empty(t, row.Name)
}

func TestRepository_Integration_ConcurrentUpsertsStayMonotonic(t *testing.T) {
	client := testutils.StartPostgres(t)
	ctx := t.Context()
	repo, err := NewRepository(ctx, client, "leaderboard")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(score int64) {
			defer wg.Done()
			assert.NoError(t, repo.UpsertBestScore(ctx, "0xrace", score, time.Now()))
		}(i)
	}
	wg.Wait()

	score, _, err := repo.BestScore(ctx, "0xrace")
	require.NoError(t, err)
	assert.Equal(t, int64(50), score)
}
