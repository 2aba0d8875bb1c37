// Package lease implements a cross-process sync lease on Postgres session advisory locks.
package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/postgres"
)

const (
	tryLockQuery  = "SELECT pg_try_advisory_lock(hashtext($1))"
	unlockQuery   = "SELECT pg_advisory_unlock(hashtext($1))"
	unlockTimeout = 5 * time.Second
)

// Lease hands out advisory locks keyed by name. A held lock pins one pooled connection until it
// is released, because advisory locks belong to the session that took them.
type Lease struct {
	client postgres.Client
	log    *zap.SugaredLogger
}

func New(client postgres.Client, log *zap.SugaredLogger) *Lease {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Lease{client: client, log: log}
}

// TryLock attempts to take the lock for key without waiting. When acquired is false another
// session holds it.
func (l *Lease) TryLock(ctx context.Context, key string) (func(), bool, error) {
	conn, err := l.client.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryLockQuery, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("failed to try advisory lock %q: %w", key, err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	release := sync.OnceFunc(func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, unlockQuery, key); err != nil {
			l.log.Warnw("failed to release advisory lock", "key", key, "error", err)
		}
		conn.Release()
	})
	return release, true, nil
}
