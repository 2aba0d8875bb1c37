package checkpoint

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/postgres/testutils"
)

func newRepo(t *testing.T, conn *testutils.MockDB) *repository {
	t.Helper()
	conn.On("Exec", mock.Anything, testutils.SQLContains("CREATE TABLE IF NOT EXISTS", `"sync_state"`)).
		Return(testutils.Tag("CREATE TABLE"), nil).Once()
	repo, err := NewRepository(t.Context(), testutils.NewTestClient(conn), "sync_state")
	require.NoError(t, err)
	r := repo.(*repository)
	r.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return r
}

func TestRepository_Write(t *testing.T) {
	t.Parallel()
	conn := &testutils.MockDB{}
	repo := newRepo(t, conn)

	conn.On("Exec", mock.Anything, testutils.SQLContains("ON CONFLICT (id) DO UPDATE"),
		"leaderboard", int64(4999), time.Unix(1_700_000_000, 0).UTC(),
	).Return(testutils.Tag("INSERT 0 1"), nil).Once()

	require.NoError(t, repo.Write(t.Context(), "leaderboard", 4999))
	conn.AssertExpectations(t)
}

func TestRepository_Write_Error(t *testing.T) {
	t.Parallel()
	conn := &testutils.MockDB{}
	repo := newRepo(t, conn)
	execErr := errors.New("password authentication failed")

	conn.On("Exec", mock.Anything, testutils.SQLContains("INSERT INTO"), mock.Anything, mock.Anything, mock.Anything).
		Return(testutils.Tag(""), execErr).Once()

	err := repo.Write(t.Context(), "leaderboard", 1)
	require.ErrorIs(t, err, execErr)
}

func TestRepository_Write_OutOfRange(t *testing.T) {
	t.Parallel()
	repo := newRepo(t, &testutils.MockDB{})

	err := repo.Write(t.Context(), "leaderboard", math.MaxUint64)
	require.ErrorIs(t, err, errBlockOutOfRange)
}

func TestRepository_Read(t *testing.T) {
	t.Parallel()
	at := time.Unix(1_700_000_000, 0).UTC()

	tests := []struct {
		name       string
		row        testutils.Row
		wantBlock  uint64
		wantExists bool
		wantErr    bool
	}{
		{name: "exists", row: testutils.Row{Values: []any{"leaderboard", int64(777), at}}, wantBlock: 777, wantExists: true},
		{name: "missing", row: testutils.NoRow()},
		{name: "negative", row: testutils.Row{Values: []any{"leaderboard", int64(-1), at}}, wantErr: true},
		{name: "scan error", row: testutils.Row{Err: errors.New("timeout")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			conn := &testutils.MockDB{}
			repo := newRepo(t, conn)
			conn.On("QueryRow", mock.Anything, testutils.SQLContains("WHERE id = $1"), "leaderboard").
				Return(tt.row).Once()

			block, exists, err := repo.Read(t.Context(), "leaderboard")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantBlock, block)
			assert.Equal(t, tt.wantExists, exists)
		})
	}
}

func TestRepository_Delete(t *testing.T) {
	t.Parallel()
	conn := &testutils.MockDB{}
	repo := newRepo(t, conn)
	conn.On("Exec", mock.Anything, testutils.SQLContains("DELETE FROM", `"sync_state"`), "leaderboard").
		Return(testutils.Tag("DELETE 1"), nil).Once()

	require.NoError(t, repo.Delete(t.Context(), "leaderboard"))
	conn.AssertExpectations(t)
}
