package syncer

import (
	"errors"
	"fmt"

	"github.com/ava-labs/libevm/common"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/checkpointer"
)

// CheckpointMode controls how often the checkpoint is persisted during a run.
type CheckpointMode string

const (
	// CheckpointPerChunk writes the checkpoint after every chunk.
	CheckpointPerChunk CheckpointMode = "chunk"
	// CheckpointPerPass writes the checkpoint once, after the last chunk.
	CheckpointPerPass CheckpointMode = "pass"
)

// ChunkErrorPolicy decides what happens when a chunk's logs cannot be fetched.
type ChunkErrorPolicy string

const (
	// SkipChunk logs the failure, records the range as a gap and moves on.
	SkipChunk ChunkErrorPolicy = "skip"
	// AbortOnChunk stops the run and returns the fetch error.
	AbortOnChunk ChunkErrorPolicy = "abort"
)

const (
	DefaultCheckpointID = "leaderboard"
	DefaultChunkSize    = 2000
)

var (
	ErrMissingContract     = errors.New("contract address is required")
	ErrMissingCheckpointID = errors.New("checkpoint id is required")
	ErrInvalidChunkSize    = errors.New("chunk size must be greater than zero")
	ErrInvalidMode         = errors.New("invalid checkpoint mode")
	ErrInvalidPolicy       = errors.New("invalid chunk error policy")
)

// Config holds the synchronizer settings.
type Config struct {
	Contract     common.Address
	CheckpointID string

	// StartBlock is where scanning begins when there is no checkpoint and Lookback is zero.
	StartBlock uint64
	// Lookback, when non-zero and no checkpoint exists, starts the first run at head-Lookback.
	Lookback uint64

	ChunkSize      uint64
	CheckpointMode CheckpointMode
	OnChunkError   ChunkErrorPolicy

	Checkpoint checkpointer.Config
}

// DefaultConfig returns a Config with everything but the contract address filled in.
func DefaultConfig() Config {
	return Config{
		CheckpointID:   DefaultCheckpointID,
		ChunkSize:      DefaultChunkSize,
		CheckpointMode: CheckpointPerChunk,
		OnChunkError:   SkipChunk,
		Checkpoint:     checkpointer.DefaultConfig(),
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.Contract == (common.Address{}) {
		return ErrMissingContract
	}
	if c.CheckpointID == "" {
		return ErrMissingCheckpointID
	}
	if c.ChunkSize == 0 {
		return ErrInvalidChunkSize
	}
	switch c.CheckpointMode {
	case CheckpointPerChunk, CheckpointPerPass:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.CheckpointMode)
	}
	switch c.OnChunkError {
	case SkipChunk, AbortOnChunk:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, c.OnChunkError)
	}
	return nil
}
