// Package insights generates daily and weekly pattern insights over
// journal entries. Results are persisted and cached; a window is only sent
// to the model once per cache lifetime.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ember-journal/ember/backend/internal/util"
	"github.com/ember-journal/ember/backend/pkg/ai"
	"github.com/ember-journal/ember/backend/pkg/cache"
	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/logger"
	"github.com/ember-journal/ember/backend/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrNoData indicates the requested window does not contain enough entries
// to generate insights from. Daily needs at least one entry, weekly at
// least three. The check runs before any model call.
var ErrNoData = errors.New("not enough entries in window for insights")

const (
	insightThreshold = 0.6
	minWeeklyEntries = 3

	cacheTTL = 24 * time.Hour

	maxPromptTokens = 8000
	promptEncoding  = "o200k_base"

	maxTries       = 3
	retryBaseDelay = time.Second
)

// Engine generates, persists, and caches insights.
type Engine struct {
	store  store.Store
	client ai.JournalAIClient
	cache  *cache.Cache[[]common.Insight]

	retryDelay time.Duration
}

// NewEngine creates an insight engine backed by the given store and client.
func NewEngine(s store.Store, client ai.JournalAIClient) *Engine {
	return &Engine{
		store:      s,
		client:     client,
		cache:      cache.New[[]common.Insight](cacheTTL),
		retryDelay: retryBaseDelay,
	}
}

// InvalidateCache drops all cached insight windows. Call after entries
// change so the next generation sees fresh data.
func (e *Engine) InvalidateCache() {
	e.cache.InvalidateAll()
}

type rawInsight struct {
	Type            string   `json:"type"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Confidence      float64  `json:"confidence"`
	RelatedEntities []string `json:"relatedEntities"`
	Evidence        []string `json:"evidence"`
}

func validateInsight(in *rawInsight) error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Description) == "" {
		return errors.New("missing title or description")
	}
	if !common.ValidInsightType(common.InsightType(in.Type)) {
		return fmt.Errorf("unknown insight type %q", in.Type)
	}
	if in.Confidence < insightThreshold || in.Confidence > 1 {
		return fmt.Errorf("confidence %v outside accepted range", in.Confidence)
	}
	return nil
}

// GenerateDaily generates insights for the calendar day containing day.
// Cached results are returned without a model call.
func (e *Engine) GenerateDaily(ctx context.Context, day time.Time) ([]common.Insight, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	key := "daily:" + start.Format("2006-01-02")
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	entries, err := e.store.ListEntriesBetween(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoData
	}

	prompt, err := e.buildPrompt(ctx, entries, false)
	if err != nil {
		return nil, err
	}
	insights, err := e.generate(ctx, ai.DailyInsightsPrompt, prompt, common.TimeframeDaily, entries)
	if err != nil {
		return nil, err
	}

	e.cache.Put(key, insights)
	return insights, nil
}

// GenerateWeekly generates insights over the seven days ending with the
// calendar day containing day. Windows with fewer than three entries fail
// with ErrNoData before any model call.
func (e *Engine) GenerateWeekly(ctx context.Context, day time.Time) ([]common.Insight, error) {
	end := day.UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -7)
	key := "weekly:" + start.Format("2006-01-02")
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	entries, err := e.store.ListEntriesBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(entries) < minWeeklyEntries {
		return nil, ErrNoData
	}

	prompt, err := e.buildPrompt(ctx, entries, true)
	if err != nil {
		return nil, err
	}
	insights, err := e.generate(ctx, ai.WeeklyInsightsPrompt, prompt, common.TimeframeWeekly, entries)
	if err != nil {
		return nil, err
	}

	e.cache.Put(key, insights)
	return insights, nil
}

func (e *Engine) generate(
	ctx context.Context,
	systemTemplate string,
	prompt string,
	timeframe common.Timeframe,
	entries []common.Entry,
) ([]common.Insight, error) {
	typeList := make([]string, 0, len(common.InsightTypes))
	for _, t := range common.InsightTypes {
		typeList = append(typeList, string(t))
	}
	systemPrompt := fmt.Sprintf(systemTemplate, strings.Join(typeList, ", "))

	response, err := util.RetryBackoffWithContext(
		ctx, maxTries, e.retryDelay, ai.Retryable,
		func(ctx context.Context) (string, error) {
			return e.client.GenerateCompletion(ctx, prompt,
				ai.WithSystemPrompts(systemPrompt))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("insight generation failed: %w", err)
	}

	raw, skipped, err := ai.DecodeArray(response, validateInsight)
	if err != nil {
		return nil, fmt.Errorf("insight generation failed: %w", err)
	}
	if skipped > 0 {
		logger.Debug("[Insights] Skipped invalid insights", "timeframe", timeframe, "skipped", skipped)
	}

	entities, err := e.store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	entryIDs := make([]string, 0, len(entries))
	for _, entry := range entries {
		entryIDs = append(entryIDs, entry.ID)
	}

	now := time.Now().UTC()
	insights := make([]common.Insight, 0, len(raw))
	for _, r := range raw {
		id, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		var evidence []byte
		if len(r.Evidence) > 0 {
			evidence, err = json.Marshal(r.Evidence)
			if err != nil {
				return nil, err
			}
		}
		insights = append(insights, common.Insight{
			ID:               id,
			Type:             common.InsightType(r.Type),
			Title:            strings.TrimSpace(r.Title),
			Description:      strings.TrimSpace(r.Description),
			Confidence:       r.Confidence,
			Timeframe:        timeframe,
			RelatedEntityIDs: resolveEntityIDs(entities, r.RelatedEntities),
			RelatedEntryIDs:  entryIDs,
			Evidence:         evidence,
			GeneratedAt:      now,
		})
	}

	slices.SortStableFunc(insights, func(a, b common.Insight) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})

	if err := e.store.SaveInsights(ctx, insights); err != nil {
		return nil, err
	}
	return insights, nil
}

// buildPrompt renders entries as the user prompt. Weekly windows are
// grouped into a day-by-day timeline; daily windows list entries directly.
func (e *Engine) buildPrompt(ctx context.Context, entries []common.Entry, timeline bool) (string, error) {
	var b strings.Builder
	lastDay := ""
	for i, entry := range entries {
		if timeline {
			day := entry.EffectiveDate().Format("Monday, 2006-01-02")
			if day != lastDay {
				fmt.Fprintf(&b, "\n## %s\n", day)
				lastDay = day
			}
		} else if i > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString(strings.TrimSpace(entry.Content))
		b.WriteString("\n")

		if values := e.entityValues(ctx, entry); len(values) > 0 {
			fmt.Fprintf(&b, "(entities: %s)\n", strings.Join(values, ", "))
		}
	}
	return util.TruncateTokens(b.String(), promptEncoding, maxPromptTokens), nil
}

func (e *Engine) entityValues(ctx context.Context, entry common.Entry) []string {
	values := make([]string, 0, len(entry.EntityIDs))
	for _, id := range entry.EntityIDs {
		entity, err := e.store.GetEntity(ctx, id)
		if err != nil {
			continue
		}
		values = append(values, entity.Value)
	}
	return values
}

func resolveEntityIDs(entities []common.Entity, values []string) []string {
	ids := []string{}
	for _, value := range values {
		for _, entity := range entities {
			if entity.Matches(value) {
				if !slices.Contains(ids, entity.ID) {
					ids = append(ids, entity.ID)
				}
				break
			}
		}
	}
	return ids
}
