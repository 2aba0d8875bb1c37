package syncer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	ethereum "github.com/ava-labs/libevm"
	"github.com/ava-labs/libevm/common"
	"github.com/ava-labs/libevm/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/chainclient"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/checkpointer"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/metrics"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/scores"
	domain "github.com/testnet-dashboard/leaderboard-indexer/pkg/types"
)

var (
	ErrMissingClient       = errors.New("chain client is required")
	ErrMissingStore        = errors.New("leaderboard store is required")
	ErrMissingCheckpointer = errors.New("checkpointer is required")
	ErrNoGapStore          = errors.New("gap store is not configured")

	// ErrSyncInProgress is returned when another process holds the sync lease.
	ErrSyncInProgress = errors.New("sync already in progress")
)

const skipNotImproved = "not_improved"

// Store is the leaderboard persistence the upsert sink writes to.
type Store interface {
	BestScore(ctx context.Context, wallet string) (int64, bool, error)
	UpsertBestScore(ctx context.Context, wallet string, score int64, updatedAt time.Time) error
}

// GapStore records ranges skipped after fetch failures.
type GapStore interface {
	RecordGap(ctx context.Context, gap domain.Gap) error
	ListGaps(ctx context.Context, checkpointID string) ([]domain.Gap, error)
	DeleteGap(ctx context.Context, id int64) error
}

// Publisher receives every decoded event after the leaderboard write. Failures never affect the
// leaderboard.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev scores.ScoreSubmittedEvent) error
}

// Locker provides a lease shared between processes. release must be called once the run ends.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), acquired bool, err error)
}

// Deps are the collaborators of a Syncer. Gaps, Publishers and Locker are optional.
type Deps struct {
	Client       chainclient.LogReader
	Store        Store
	Checkpointer checkpointer.Checkpointer
	Gaps         GapStore
	Publishers   []Publisher
	Locker       Locker
}

// Result summarizes one run.
type Result struct {
	From              uint64  `json:"from"`
	To                uint64  `json:"to"`
	Head              uint64  `json:"head"`
	Chunks            int     `json:"chunks"`
	LogsFetched       int     `json:"logsFetched"`
	EventsDecoded     int     `json:"eventsDecoded"`
	EventsProcessed   int     `json:"eventsProcessed"`
	EventsSkipped     int     `json:"eventsSkipped"`
	UpsertErrors      int     `json:"upsertErrors"`
	PublishErrors     int     `json:"publishErrors"`
	SkippedRanges     []Range `json:"skippedRanges,omitempty"`
	CheckpointWritten bool    `json:"checkpointWritten"`
	// Shared is true when the result came from a run started by another caller.
	Shared bool `json:"shared"`
}

// Syncer scans the game contract's ScoreSubmitted logs in chunks and folds them into the
// leaderboard.
type Syncer struct {
	cfg        Config
	client     chainclient.LogReader
	store      Store
	cp         checkpointer.Checkpointer
	gaps       GapStore
	publishers []Publisher
	locker     Locker

	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	group   singleflight.Group
	now     func() time.Time
}

func New(cfg Config, deps Deps, log *zap.SugaredLogger, m *metrics.Metrics) (*Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Client == nil {
		return nil, ErrMissingClient
	}
	if deps.Store == nil {
		return nil, ErrMissingStore
	}
	if deps.Checkpointer == nil {
		return nil, ErrMissingCheckpointer
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Syncer{
		cfg:        cfg,
		client:     deps.Client,
		store:      deps.Store,
		cp:         deps.Checkpointer,
		gaps:       deps.Gaps,
		publishers: deps.Publishers,
		locker:     deps.Locker,
		log:        log.With("checkpointID", cfg.CheckpointID),
		metrics:    m,
		now:        time.Now,
	}, nil
}

// Config returns the configuration the Syncer was built with.
func (s *Syncer) Config() Config {
	return s.cfg
}

// Run scans from the block after the checkpoint up to the current head.
//
// Concurrent callers share a single in-flight run and receive its result. The shared run uses
// the context of the caller that started it.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	return s.do(ctx, s.cfg.CheckpointID, s.scan)
}

// ReplayGaps re-fetches every recorded gap through the same decode and upsert path and deletes
// each gap once all of its blocks were fetched.
func (s *Syncer) ReplayGaps(ctx context.Context) (Result, error) {
	if s.gaps == nil {
		return Result{}, ErrNoGapStore
	}
	return s.do(ctx, s.cfg.CheckpointID+"/replay", s.replay)
}

// Start runs the synchronizer immediately and then every interval until ctx is cancelled.
// Failed runs are logged and retried on the next tick.
func (s *Syncer) Start(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, err := s.Run(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, ErrSyncInProgress):
			s.log.Debugw("sync lease held elsewhere, waiting for next tick")
		default:
			s.log.Errorw("periodic sync failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Syncer) do(
	ctx context.Context,
	key string,
	fn func(context.Context) (Result, error),
) (Result, error) {
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.guarded(ctx, key, fn)
	})
	res, _ := v.(Result)
	res.Shared = shared
	return res, err
}

func (s *Syncer) guarded(
	ctx context.Context,
	key string,
	fn func(context.Context) (Result, error),
) (Result, error) {
	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx, key)
		if err != nil {
			return Result{}, fmt.Errorf("failed to acquire sync lease: %w", err)
		}
		if !acquired {
			return Result{}, ErrSyncInProgress
		}
		defer release()
	}

	start := time.Now()
	res, err := fn(ctx)
	s.metrics.RecordRun(err, time.Since(start).Seconds())
	return res, err
}

func (s *Syncer) scan(ctx context.Context) (Result, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get chain head: %w", err)
	}
	s.metrics.SetHead(head)

	from, err := s.resolveStart(ctx, head)
	if err != nil {
		return Result{}, err
	}

	res := Result{From: from, Head: head}
	if from > head {
		s.log.Debugw("checkpoint is at head, nothing to scan", "from", from, "head", head)
		return res, nil
	}

	for _, r := range Chunks(from, head, s.cfg.ChunkSize) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.scanChunk(ctx, r, &res); err != nil {
			return res, err
		}
		res.Chunks++
		res.To = r.To

		if s.cfg.CheckpointMode == CheckpointPerChunk {
			if err := s.writeCheckpoint(ctx, r.To); err != nil {
				return res, err
			}
			res.CheckpointWritten = true
		}
	}

	if s.cfg.CheckpointMode == CheckpointPerPass {
		if err := s.writeCheckpoint(ctx, head); err != nil {
			return res, err
		}
		res.CheckpointWritten = true
	}

	s.log.Infow("sync finished",
		"from", res.From,
		"to", res.To,
		"chunks", res.Chunks,
		"logs", res.LogsFetched,
		"processed", res.EventsProcessed,
		"skipped", res.EventsSkipped,
		"upsertErrors", res.UpsertErrors,
		"skippedRanges", len(res.SkippedRanges),
	)
	return res, nil
}

// resolveStart picks the first block of the run: the block after the checkpoint, else
// head-Lookback (never below StartBlock), else StartBlock.
func (s *Syncer) resolveStart(ctx context.Context, head uint64) (uint64, error) {
	last, exists, err := s.cp.Read(ctx, s.cfg.CheckpointID)
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint %q: %w", s.cfg.CheckpointID, err)
	}

	switch {
	case exists:
		return last + 1, nil
	case s.cfg.Lookback > 0:
		if head < s.cfg.Lookback || head-s.cfg.Lookback < s.cfg.StartBlock {
			return s.cfg.StartBlock, nil
		}
		return head - s.cfg.Lookback, nil
	default:
		return s.cfg.StartBlock, nil
	}
}

func (s *Syncer) scanChunk(ctx context.Context, r Range, res *Result) error {
	logs, err := s.fetch(ctx, r)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if s.cfg.OnChunkError == AbortOnChunk {
			s.metrics.RecordChunk(metrics.ChunkAborted, 0)
			return fmt.Errorf("failed to fetch logs for blocks %s: %w", r, err)
		}

		s.metrics.RecordChunk(metrics.ChunkSkipped, 0)
		s.log.Warnw("skipping chunk after fetch failure", "from", r.From, "to", r.To, "error", err)
		res.SkippedRanges = append(res.SkippedRanges, r)
		s.recordGap(ctx, r, err)
		return nil
	}

	s.metrics.RecordChunk(metrics.ChunkOK, len(logs))
	s.log.Infow("scanned chunk", "from", r.From, "to", r.To, "logs", len(logs))
	res.LogsFetched += len(logs)
	return s.apply(ctx, logs, res)
}

func (s *Syncer) fetch(ctx context.Context, r Range) ([]types.Log, error) {
	return s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.From),
		ToBlock:   new(big.Int).SetUint64(r.To),
		Addresses: []common.Address{s.cfg.Contract},
		Topics:    [][]common.Hash{{scores.Topic}},
	})
}

// apply decodes and upserts logs in the order the node returned them.
func (s *Syncer) apply(ctx context.Context, logs []types.Log, res *Result) error {
	for _, lg := range logs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lg.Removed {
			res.EventsSkipped++
			s.metrics.IncEventSkipped("removed")
			continue
		}
		ev, err := scores.Decode(lg)
		if err != nil {
			res.EventsSkipped++
			s.metrics.IncEventSkipped(scores.SkipReason(err))
			s.log.Debugw("skipping log", "block", lg.BlockNumber, "index", lg.Index, "error", err)
			continue
		}
		res.EventsDecoded++

		written, err := s.upsert(ctx, ev)
		switch {
		case err != nil:
			res.UpsertErrors++
			s.metrics.IncUpsertError()
			s.log.Errorw("failed to upsert best score",
				"wallet", ev.Wallet(),
				"score", ev.Score.String(),
				"block", ev.BlockNumber,
				"error", err,
			)
		case written:
			res.EventsProcessed++
			s.metrics.IncEventsProcessed()
		default:
			s.metrics.IncEventSkipped(skipNotImproved)
		}

		res.PublishErrors += s.publish(ctx, ev)
	}
	return nil
}

// upsert writes ev's score when it beats the stored best. A missing row counts as zero.
func (s *Syncer) upsert(ctx context.Context, ev scores.ScoreSubmittedEvent) (bool, error) {
	wallet := ev.Wallet()
	score := ev.ScoreInt64()

	stored, _, err := s.store.BestScore(ctx, wallet)
	if err != nil {
		return false, fmt.Errorf("failed to read best score: %w", err)
	}
	if score <= stored {
		return false, nil
	}
	if err := s.store.UpsertBestScore(ctx, wallet, score, s.now().UTC()); err != nil {
		return false, fmt.Errorf("failed to write best score: %w", err)
	}
	return true, nil
}

func (s *Syncer) publish(ctx context.Context, ev scores.ScoreSubmittedEvent) int {
	failed := 0
	for _, p := range s.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			failed++
			s.metrics.IncSinkError(p.Name())
			s.log.Warnw("failed to publish score event",
				"sink", p.Name(),
				"wallet", ev.Wallet(),
				"block", ev.BlockNumber,
				"error", err,
			)
		}
	}
	return failed
}

func (s *Syncer) writeCheckpoint(ctx context.Context, block uint64) error {
	if err := checkpointer.WriteWithRetry(ctx, s.cp, s.cfg.Checkpoint, s.cfg.CheckpointID, block); err != nil {
		s.metrics.IncCheckpointFailure()
		return err
	}
	s.metrics.SetCheckpoint(block)
	return nil
}

func (s *Syncer) recordGap(ctx context.Context, r Range, cause error) {
	if s.gaps == nil {
		return
	}
	gap := domain.Gap{
		CheckpointID: s.cfg.CheckpointID,
		FromBlock:    r.From,
		ToBlock:      r.To,
		Reason:       truncate(cause.Error(), 512),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.gaps.RecordGap(ctx, gap); err != nil {
		s.metrics.IncSinkError("gaps")
		s.log.Errorw("failed to record skipped range", "from", r.From, "to", r.To, "error", err)
	}
}

func (s *Syncer) replay(ctx context.Context) (Result, error) {
	gaps, err := s.gaps.ListGaps(ctx, s.cfg.CheckpointID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list gaps: %w", err)
	}

	var res Result
	for _, gap := range gaps {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		complete := true
		for _, r := range Chunks(gap.FromBlock, gap.ToBlock, s.cfg.ChunkSize) {
			logs, err := s.fetch(ctx, r)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return res, ctxErr
				}
				s.log.Warnw("gap still unavailable", "gapID", gap.ID, "from", r.From, "to", r.To, "error", err)
				res.SkippedRanges = append(res.SkippedRanges, r)
				complete = false
				continue
			}
			res.Chunks++
			res.LogsFetched += len(logs)
			if err := s.apply(ctx, logs, &res); err != nil {
				return res, err
			}
		}

		if !complete {
			continue
		}
		if err := s.gaps.DeleteGap(ctx, gap.ID); err != nil {
			return res, fmt.Errorf("failed to delete replayed gap %d: %w", gap.ID, err)
		}
		s.log.Infow("replayed gap", "gapID", gap.ID, "from", gap.FromBlock, "to", gap.ToBlock)
	}
	return res, nil
}

// truncate returns valid UTF-8 of at most n bytes, cut on a rune boundary.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
