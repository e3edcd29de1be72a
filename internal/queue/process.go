package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/graph"
	"github.com/ember-journal/ember/backend/pkg/insights"
	"github.com/ember-journal/ember/backend/pkg/logger"
	"github.com/ember-journal/ember/backend/pkg/rank"
	"github.com/ember-journal/ember/backend/pkg/store"
)

// ExtractJob requests entity extraction. EntryID targets one entry; All
// runs the serial batch over every pending entry instead.
type ExtractJob struct {
	EntryID string `json:"entry_id,omitempty"`
	All     bool   `json:"all,omitempty"`
}

// DiscoverJob requests relationship discovery for one entry.
type DiscoverJob struct {
	EntryID string `json:"entry_id"`
}

// InsightJob requests insight generation. Date is YYYY-MM-DD; empty means
// today.
type InsightJob struct {
	Timeframe string `json:"timeframe"`
	Date      string `json:"date,omitempty"`
}

// ProcessExtractMessage handles one extract_queue message. Entries without
// extractable entities count as success so they are not retried.
func ProcessExtractMessage(
	ctx context.Context,
	engine *graph.Engine,
	analyzer *rank.Analyzer,
	s store.Store,
	body string,
) error {
	var job ExtractJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return fmt.Errorf("invalid extract job: %w", err)
	}

	if job.All {
		result, err := engine.ProcessAll(ctx, graph.BatchOptions{})
		if err != nil {
			return err
		}
		logger.Info("[Queue] Batch processing finished",
			"extracted", result.Extracted,
			"discovered", result.Discovered,
			"skipped", result.Skipped,
			"failed", result.Failed,
			"state", result.State,
		)
		return nil
	}

	if job.EntryID == "" {
		return errors.New("extract job names no entry")
	}
	entry, err := s.GetEntry(ctx, job.EntryID)
	if err != nil {
		return err
	}
	entities, err := engine.ExtractEntities(ctx, entry, nil)
	switch {
	case errors.Is(err, graph.ErrNoEntitiesFound):
		logger.Info("[Queue] No entities found in entry", "entry", job.EntryID)
	case err != nil:
		return err
	default:
		logger.Info("[Queue] Extracted entities", "entry", job.EntryID, "count", len(entities))
	}

	// The connection engine compares these analyses; keep them in step with
	// extraction. A failed analysis must not requeue the whole job.
	if _, err := analyzer.AnalyzeEntry(ctx, entry); err != nil {
		logger.Warn("[Queue] Entry analysis failed", "entry", job.EntryID, "err", err)
	}
	return nil
}

// ProcessDiscoverMessage handles one discover_queue message. Entries with
// too few entities count as success.
func ProcessDiscoverMessage(
	ctx context.Context,
	engine *graph.Engine,
	s store.Store,
	body string,
) error {
	var job DiscoverJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return fmt.Errorf("invalid discover job: %w", err)
	}
	if job.EntryID == "" {
		return errors.New("discover job names no entry")
	}

	entry, err := s.GetEntry(ctx, job.EntryID)
	if err != nil {
		return err
	}
	relationships, err := engine.DiscoverRelationships(ctx, entry)
	if errors.Is(err, graph.ErrInsufficientEntities) {
		logger.Info("[Queue] Too few entities for discovery", "entry", job.EntryID)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("[Queue] Discovered relationships", "entry", job.EntryID, "count", len(relationships))
	return nil
}

// ProcessInsightMessage handles one insight_queue message. Windows without
// enough entries count as success.
func ProcessInsightMessage(
	ctx context.Context,
	engine *insights.Engine,
	body string,
) error {
	var job InsightJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return fmt.Errorf("invalid insight job: %w", err)
	}

	day := time.Now().UTC()
	if job.Date != "" {
		parsed, err := time.Parse("2006-01-02", job.Date)
		if err != nil {
			return fmt.Errorf("invalid insight job date: %w", err)
		}
		day = parsed
	}

	var (
		generated []common.Insight
		err       error
	)
	switch common.Timeframe(job.Timeframe) {
	case common.TimeframeDaily:
		generated, err = engine.GenerateDaily(ctx, day)
	case common.TimeframeWeekly:
		generated, err = engine.GenerateWeekly(ctx, day)
	default:
		return fmt.Errorf("unknown insight timeframe %q", job.Timeframe)
	}

	if errors.Is(err, insights.ErrNoData) {
		logger.Info("[Queue] Not enough entries for insights", "timeframe", job.Timeframe, "date", job.Date)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("[Queue] Generated insights", "timeframe", job.Timeframe, "count", len(generated))
	return nil
}
