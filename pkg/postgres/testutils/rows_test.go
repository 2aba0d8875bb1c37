package testutils

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowScan(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	var (
		wallet string
		score  int64
		at     time.Time
		name   *string
	)
	require.NoError(t, Row{Values: []any{"0xa", int64(7), now, "alice"}}.Scan(&wallet, &score, &at, &name))
	assert.Equal(t, "0xa", wallet)
	assert.Equal(t, int64(7), score)
	assert.Equal(t, now, at)
	require.NotNil(t, name)
	assert.Equal(t, "alice", *name)

	require.NoError(t, Row{Values: []any{"0xb", int64(1), now, nil}}.Scan(&wallet, &score, &at, &name))
	assert.Nil(t, name)

	assert.ErrorIs(t, NoRow().Scan(&wallet), pgx.ErrNoRows)
	assert.Error(t, Row{Values: []any{"x"}}.Scan(&score))
	assert.Error(t, Row{Values: []any{"x", "y"}}.Scan(&wallet))
}

func TestRows_CollectRows(t *testing.T) {
	t.Parallel()

	rows := NewRows([]any{int64(1)}, []any{int64(2)}, []any{int64(3)})
	got, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got)
	assert.True(t, rows.Closed())

	boom := errors.New("conn reset")
	_, err = pgx.CollectRows(NewRows([]any{int64(1)}).WithErr(boom), pgx.RowTo[int64])
	assert.ErrorIs(t, err, boom)
}
