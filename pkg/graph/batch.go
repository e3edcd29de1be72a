package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ember-journal/ember/backend/internal/util"
	"github.com/ember-journal/ember/backend/pkg/ai"
	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/logger"
)

// BatchState describes where a batch run ended up.
type BatchState string

const (
	StateRunning     BatchState = "running"
	StateRateLimited BatchState = "rate_limited"
	StateCancelled   BatchState = "cancelled"
	StateCompleted   BatchState = "completed"
)

// Progress is a point-in-time snapshot of a batch run.
type Progress struct {
	Fraction float64
	Message  string
	State    BatchState
}

// ProgressFunc receives progress snapshots during a batch run. Called
// synchronously from the batch loop, so it must return quickly.
type ProgressFunc func(Progress)

// BatchOptions tunes a batch run. Zero values select the defaults.
type BatchOptions struct {
	// ExtractDelay is the pause before each extraction call after the
	// first. Defaults to 1500ms, pacing provider rate limits.
	ExtractDelay time.Duration
	// DiscoverDelay is the pause before each discovery call after the
	// first. Defaults to 500ms.
	DiscoverDelay time.Duration
	OnProgress    ProgressFunc
}

// BatchResult summarizes a batch run.
type BatchResult struct {
	Extracted  int
	Discovered int
	Skipped    int
	Failed     int
	State      BatchState
}

// ProcessAll runs extraction over every entry that has not been extracted,
// then discovery over every entry that has not been discovered. Entries are
// processed strictly one at a time; a single dedupe cache spans the run.
//
// Rate limiting halts the run so remaining entries stay pending for the
// next one. Other per-entry failures are logged and skipped.
func (e *Engine) ProcessAll(ctx context.Context, opts BatchOptions) (BatchResult, error) {
	if opts.ExtractDelay == 0 {
		opts.ExtractDelay = 1500 * time.Millisecond
	}
	if opts.DiscoverDelay == 0 {
		opts.DiscoverDelay = 500 * time.Millisecond
	}

	result := BatchResult{State: StateRunning}

	entries, err := e.store.ListEntries(ctx)
	if err != nil {
		return result, err
	}

	toExtract := []common.Entry{}
	toDiscover := []common.Entry{}
	for _, entry := range entries {
		if !entry.EntitiesExtracted {
			toExtract = append(toExtract, entry)
		}
		if !entry.RelationshipsDiscovered {
			toDiscover = append(toDiscover, entry)
		}
	}

	total := len(toExtract) + len(toDiscover)
	if total == 0 {
		result.State = StateCompleted
		e.report(opts, 1, "nothing to process", StateCompleted)
		return result, nil
	}

	done := 0
	cache := NewDedupeCache()

	for i, entry := range toExtract {
		if err := e.pace(ctx, i, opts.ExtractDelay); err != nil {
			result.State = StateCancelled
			e.report(opts, fraction(done, total), "cancelled", StateCancelled)
			return result, err
		}
		e.report(opts, fraction(done, total),
			fmt.Sprintf("extracting entities %d/%d", i+1, len(toExtract)), StateRunning)

		_, err := e.ExtractEntities(ctx, entry, cache)
		done++
		switch {
		case err == nil:
			result.Extracted++
		case errors.Is(err, ErrNoEntitiesFound):
			result.Skipped++
		case errors.Is(err, ai.ErrRateLimited):
			result.State = StateRateLimited
			e.report(opts, fraction(done, total), "rate limited, run halted", StateRateLimited)
			return result, err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			result.State = StateCancelled
			e.report(opts, fraction(done, total), "cancelled", StateCancelled)
			return result, err
		default:
			result.Failed++
			logger.Warn("[Batch] Entity extraction failed", "entry", entry.ID, "err", err)
		}
	}

	for i, entry := range toDiscover {
		if err := e.pace(ctx, i, opts.DiscoverDelay); err != nil {
			result.State = StateCancelled
			e.report(opts, fraction(done, total), "cancelled", StateCancelled)
			return result, err
		}
		e.report(opts, fraction(done, total),
			fmt.Sprintf("discovering relationships %d/%d", i+1, len(toDiscover)), StateRunning)

		// Reload: extraction in this run may have attached entities.
		current, err := e.store.GetEntry(ctx, entry.ID)
		if err != nil {
			done++
			result.Failed++
			continue
		}

		_, err = e.DiscoverRelationships(ctx, current)
		done++
		switch {
		case err == nil:
			result.Discovered++
		case errors.Is(err, ErrInsufficientEntities):
			result.Skipped++
		case errors.Is(err, ai.ErrRateLimited):
			result.State = StateRateLimited
			e.report(opts, fraction(done, total), "rate limited, run halted", StateRateLimited)
			return result, err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			result.State = StateCancelled
			e.report(opts, fraction(done, total), "cancelled", StateCancelled)
			return result, err
		default:
			result.Failed++
			logger.Warn("[Batch] Relationship discovery failed", "entry", entry.ID, "err", err)
		}
	}

	result.State = StateCompleted
	e.report(opts, 1, "completed", StateCompleted)
	return result, nil
}

func (e *Engine) pace(ctx context.Context, index int, delay time.Duration) error {
	if index == 0 {
		return ctx.Err()
	}
	return util.SleepWithContext(ctx, delay)
}

func (e *Engine) report(opts BatchOptions, frac float64, msg string, state BatchState) {
	if opts.OnProgress == nil {
		return
	}
	opts.OnProgress(Progress{Fraction: frac, Message: msg, State: state})
}

func fraction(done, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(done) / float64(total)
}
