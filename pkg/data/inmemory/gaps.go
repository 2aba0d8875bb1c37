package inmemory

import (
	"context"
	"sync"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/types"
)

var _ types.GapRepository = (*Gaps)(nil)

// Gaps stores skipped ranges in insertion order.
type Gaps struct {
	mu     sync.Mutex
	nextID int64
	gaps   []types.Gap
}

func NewGaps() *Gaps {
	return &Gaps{nextID: 1}
}

func (*Gaps) Initialize(context.Context) error {
	return nil
}

func (g *Gaps) RecordGap(_ context.Context, gap types.Gap) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	gap.ID = g.nextID
	g.nextID++
	g.gaps = append(g.gaps, gap)
	return nil
}

func (g *Gaps) ListGaps(_ context.Context, checkpointID string) ([]types.Gap, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []types.Gap
	for _, gap := range g.gaps {
		if gap.CheckpointID == checkpointID {
			out = append(out, gap)
		}
	}
	return out, nil
}

func (g *Gaps) DeleteGap(_ context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, gap := range g.gaps {
		if gap.ID == id {
			g.gaps = append(g.gaps[:i], g.gaps[i+1:]...)
			return nil
		}
	}
	return nil
}
