package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/checkpointer"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/types"
)

var _ checkpointer.Checkpointer = (*Checkpoints)(nil)

// Checkpoints keeps checkpoints in a map. Writes are last-writer-wins per ID.
type Checkpoints struct {
	mu     sync.Mutex
	rows   map[string]types.SyncCheckpoint
	writes int
	now    func() time.Time
}

func NewCheckpoints() *Checkpoints {
	return &Checkpoints{rows: make(map[string]types.SyncCheckpoint), now: time.Now}
}

func (*Checkpoints) Initialize(context.Context) error {
	return nil
}

func (c *Checkpoints) Write(_ context.Context, id string, lastBlock uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[id] = types.SyncCheckpoint{ID: id, LastBlock: lastBlock, UpdatedAt: c.now().UTC()}
	c.writes++
	return nil
}

func (c *Checkpoints) Read(_ context.Context, id string) (uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[id]
	return row.LastBlock, ok, nil
}

func (c *Checkpoints) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, id)
	return nil
}

// Writes returns how many times Write was called.
func (c *Checkpoints) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}
