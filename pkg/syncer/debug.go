package syncer

import (
	"context"
	"fmt"

	"github.com/ava-labs/libevm/core/types"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/scores"
)

// RawLog is a ScoreSubmitted log as returned by the node, with its decoded form when valid.
type RawLog struct {
	Log   types.Log                   `json:"log"`
	Event *scores.ScoreSubmittedEvent `json:"event,omitempty"`
	Error string                      `json:"error,omitempty"`
}

// RecentLogs fetches the contract's ScoreSubmitted logs of the last blocks blocks, bypassing the
// checkpoint and the leaderboard. blocks is capped at the chunk size; zero means the chunk size.
func (s *Syncer) RecentLogs(ctx context.Context, blocks uint64) (Range, []RawLog, error) {
	if blocks == 0 || blocks > s.cfg.ChunkSize {
		blocks = s.cfg.ChunkSize
	}

	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return Range{}, nil, fmt.Errorf("failed to get chain head: %w", err)
	}
	r := Range{To: head}
	if head >= blocks {
		r.From = head - blocks + 1
	}

	logs, err := s.fetch(ctx, r)
	if err != nil {
		return r, nil, fmt.Errorf("failed to fetch logs for blocks %s: %w", r, err)
	}

	out := make([]RawLog, 0, len(logs))
	for _, lg := range logs {
		raw := RawLog{Log: lg}
		ev, err := scores.Decode(lg)
		if err != nil {
			raw.Error = err.Error()
		} else {
			raw.Event = &ev
		}
		out = append(out, raw)
	}
	return r, out, nil
}
