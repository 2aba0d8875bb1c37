package testutils

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/postgres"
)

// MockDB is a testify mock of postgres.Conn (and therefore postgres.DB).
type MockDB struct {
	mock.Mock
}

func (m *MockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	callArgs := append([]any{ctx, sql}, args...)
	ret := m.Called(callArgs...)
	tag, _ := ret.Get(0).(pgconn.CommandTag)
	return tag, ret.Error(1)
}

func (m *MockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	callArgs := append([]any{ctx, sql}, args...)
	ret := m.Called(callArgs...)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(pgx.Rows), ret.Error(1)
}

func (m *MockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	callArgs := append([]any{ctx, sql}, args...)
	ret := m.Called(callArgs...)
	return ret.Get(0).(pgx.Row)
}

func (m *MockDB) Release() {
	m.Called()
}

// MockClient is a postgres.Client backed by a MockDB.
type MockClient struct {
	mock.Mock
	Conn *MockDB
}

// NewTestClient returns a client whose DB() is conn.
func NewTestClient(conn *MockDB) *MockClient {
	return &MockClient{Conn: conn}
}

func (c *MockClient) DB() postgres.DB {
	return c.Conn
}

func (c *MockClient) Acquire(ctx context.Context) (postgres.Conn, error) {
	ret := c.Called(ctx)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(postgres.Conn), ret.Error(1)
}

func (c *MockClient) Ping(ctx context.Context) error {
	return c.Called(ctx).Error(0)
}

func (c *MockClient) Close() {
	c.Called()
}

// SQLContains matches a statement containing every fragment.
func SQLContains(fragments ...string) interface{} {
	return mock.MatchedBy(func(sql string) bool {
		for _, f := range fragments {
			if !strings.Contains(sql, f) {
				return false
			}
		}
		return true
	})
}

// Tag builds a command tag such as "INSERT 0 1".
func Tag(s string) pgconn.CommandTag {
	return pgconn.NewCommandTag(s)
}
