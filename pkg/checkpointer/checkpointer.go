package checkpointer

import (
	"context"
	"fmt"
	"time"
)

// Checkpointer abstracts checkpoint persistence across different data stores. A checkpoint is the
// last block a synchronizer has fully scanned, keyed by a checkpoint ID so several contracts can
// share one table. The leaderboard synchronizer uses a single well-known ID.
type Checkpointer interface {
	// Initialize ensures the underlying storage is ready (creates tables, schemas, etc.). This
	// should be idempotent and safe to call multiple times.
	Initialize(ctx context.Context) error

	// Write overwrites the checkpoint for id with lastBlock.
	Write(ctx context.Context, id string, lastBlock uint64) error

	// Read retrieves the checkpoint for id. If no checkpoint exists, exists is false and
	// lastBlock is 0.
	Read(ctx context.Context, id string) (lastBlock uint64, exists bool, err error)

	// Delete removes the checkpoint so the next run starts from the configured start block.
	Delete(ctx context.Context, id string) error
}

// WriteWithRetry persists lastBlock, retrying up to cfg.MaxRetries times with cfg.RetryBackoff
// between attempts. Each attempt is bounded by cfg.WriteTimeout.
func WriteWithRetry(
	ctx context.Context,
	cp Checkpointer,
	cfg Config,
	id string,
	lastBlock uint64,
) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		writeCtx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
		lastErr = cp.Write(writeCtx, id, lastBlock)
		cancel()
		if lastErr == nil {
			return nil
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(cfg.RetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed to write checkpoint %q (block: %d) after %d attempts: %w",
		id, lastBlock, cfg.MaxRetries+1, lastErr)
}
