// Package batch drives a selection of candidates through enrichment and
// persistence one item at a time.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/starford/gleaner/internal/apperr"
	"github.com/starford/gleaner/internal/enrich"
	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/selection"
)

// DefaultInterval is the pause between successive items.
const DefaultInterval = 2 * time.Second

// Candidates is a read-only, 1-indexed view of the items a selection
// refers to.
type Candidates[C any] interface {
	Len() int
	At(pos int) (C, bool)
}

// Slice adapts a slice to Candidates.
type Slice[C any] []C

// Len returns the number of candidates.
func (s Slice[C]) Len() int { return len(s) }

// At returns the candidate at 1-based position pos.
func (s Slice[C]) At(pos int) (C, bool) {
	var zero C
	if pos < 1 || pos > len(s) {
		return zero, false
	}
	return s[pos-1], true
}

// Job describes what a batch does with each selected candidate.
type Job[C any] struct {
	Candidates Candidates[C]
	// Label names a candidate in reports; optional.
	Label   func(C) string
	Enrich  func(ctx context.Context, c C) (*enrich.Result, error)
	Persist func(ctx context.Context, c C, res *enrich.Result) (models.Record, error)
	// Progress is called after each item, in selection order; optional.
	Progress func(Item)
}

// Executor runs batches sequentially with a fixed pause between items.
type Executor struct {
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// Option customizes an Executor.
type Option func(*Executor)

// WithSleeper overrides how the inter-item pause is performed.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor returns an executor pausing interval between items.
// A negative interval is treated as zero.
func NewExecutor(interval time.Duration, opts ...Option) *Executor {
	e := &Executor{
		interval: max(interval, 0),
		sleep:    SleepWithContext,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run processes every position in set, in ascending order. A failing item
// never stops the batch. Once ctx is done, the current and all remaining
// items are reported as aborted; records already persisted stay valid.
func Run[C any](ctx context.Context, e *Executor, set selection.Set, job Job[C]) Outcome {
	out := Outcome{
		ID:    ulid.Make().String(),
		Items: make([]Item, 0, len(set)),
	}
	started := time.Now()
	e.logger.Info("batch: started",
		slog.String("batch_id", out.ID),
		slog.Int("items", len(set)),
		slog.String("selection", set.String()))

	for i, pos := range set {
		if i > 0 && ctx.Err() == nil {
			_ = e.sleep(ctx, e.interval)
		}

		var item Item
		if err := ctx.Err(); err != nil {
			item = Item{Position: pos, Err: fmt.Errorf("%w: %w", apperr.ErrBatchAborted, err)}
			if c, ok := job.Candidates.At(pos); ok {
				item.Label = job.label(c)
			}
		} else {
			item = runOne(ctx, e.logger, out.ID, pos, job)
		}

		recordItem(item)
		out.Items = append(out.Items, item)
		if job.Progress != nil {
			job.Progress(item)
		}
	}

	out.Duration = time.Since(started)
	recordRun(out)
	e.logger.Info("batch: finished",
		slog.String("batch_id", out.ID),
		slog.Int("succeeded", out.Succeeded()),
		slog.Int("failed", out.Failed()),
		slog.Duration("duration", out.Duration))
	return out
}

func runOne[C any](ctx context.Context, logger *slog.Logger, batchID string, pos int, job Job[C]) Item {
	item := Item{Position: pos}

	c, ok := job.Candidates.At(pos)
	if !ok {
		item.Err = fmt.Errorf("position %d: %w", pos, apperr.ErrCandidateUnavailable)
		logger.Warn("batch: candidate unavailable",
			slog.String("batch_id", batchID), slog.Int("position", pos))
		return item
	}
	item.Label = job.label(c)

	res, err := safeEnrich(ctx, job, c)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			item.Err = fmt.Errorf("%w: %w", apperr.ErrBatchAborted, ctxErr)
			return item
		}
		logger.Warn("batch: enrichment failed",
			slog.String("batch_id", batchID),
			slog.Int("position", pos),
			slog.String("label", item.Label),
			slog.String("error", err.Error()))
		item.Err = fmt.Errorf("%w: %w", apperr.ErrEnrichmentFailed, err)
		return item
	}

	rec, err := job.Persist(ctx, c, res)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, apperr.ErrPersistenceFailed) {
			item.Err = fmt.Errorf("%w: %w", apperr.ErrBatchAborted, ctxErr)
			return item
		}
		if !errors.Is(err, apperr.ErrPersistenceFailed) {
			err = fmt.Errorf("%w: %w", apperr.ErrPersistenceFailed, err)
		}
		logger.Error("batch: persist failed",
			slog.String("batch_id", batchID),
			slog.Int("position", pos),
			slog.String("error", err.Error()))
		item.Err = err
		return item
	}
	item.Record = &rec
	logger.Debug("batch: item stored",
		slog.String("batch_id", batchID),
		slog.Int("position", pos),
		slog.String("record_id", rec.ID))
	return item
}

// safeEnrich converts an enricher panic into an error so that one bad item
// cannot take the batch down.
func safeEnrich[C any](ctx context.Context, job Job[C], c C) (res *enrich.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	res, err = job.Enrich(ctx, c)
	if err == nil && res == nil {
		err = errors.New("empty enrichment result")
	}
	return res, err
}

func (j Job[C]) label(c C) string {
	if j.Label == nil {
		return ""
	}
	return j.Label(c)
}

// SleepWithContext blocks for d or until ctx is done.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
