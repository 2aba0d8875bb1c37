package testutils

import (
	"context"
	"errors"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of clickhouse.Client. Exec and QueryRow expectations take the
// query and then each argument flattened, e.g. On("Exec", ctx, query, a, b).
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Exec(ctx context.Context, query string, args ...any) error {
	ret := m.Called(append([]any{ctx, query}, args...)...)
	return ret.Error(0)
}

func (m *MockClient) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	ret := m.Called(append([]any{ctx, query}, args...)...)
	return ret.Get(0).(driver.Row)
}

func (m *MockClient) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockClient) Close() error {
	return m.Called().Error(0)
}

// CountRow is a driver.Row holding the result of a single count() query.
type CountRow struct {
	Count   uint64
	Failure error
}

func (r CountRow) Err() error {
	return r.Failure
}

func (r CountRow) Scan(dest ...any) error {
	if r.Failure != nil {
		return r.Failure
	}
	if len(dest) != 1 {
		return errors.New("count row scans into exactly one destination")
	}
	p, ok := dest[0].(*uint64)
	if !ok || p == nil {
		return errors.New("count row scans into *uint64")
	}
	*p = r.Count
	return nil
}

func (r CountRow) ScanStruct(dest any) error {
	return r.Scan(dest)
}
