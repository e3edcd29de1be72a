// Package rank scores journal entries by relevance to a source entry. Two
// mechanisms coexist: graph ranking walks entity relationships and insight
// co-membership, and the legacy connection engine compares per-entry
// analyses pairwise.
package rank

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/store"
)

// Relationship type weights for phase 1 scoring. Causation is the
// strongest signal, shared topics the weakest.
var relationWeights = map[common.RelationType]float64{
	common.RelationCausal:    0.9,
	common.RelationEmotional: 0.7,
	common.RelationTemporal:  0.5,
	common.RelationTopical:   0.4,
}

const (
	insightWeight       = 0.5
	defaultMinRelevance = 0.3
	defaultLimit        = 5
)

// Engine ranks entries related to a source entry through the knowledge
// graph.
type Engine struct {
	store store.Store

	minRelevance float64
	now          func() time.Time
}

// EngineOption tunes a ranking engine at construction time.
type EngineOption func(*Engine)

// WithMinRelevance overrides the score floor below which candidates are
// dropped. Defaults to 0.3.
func WithMinRelevance(min float64) EngineOption {
	return func(e *Engine) {
		e.minRelevance = min
	}
}

// NewEngine creates a ranking engine over the given store.
func NewEngine(s store.Store, opts ...EngineOption) *Engine {
	e := &Engine{store: s, minRelevance: defaultMinRelevance, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type accumulator struct {
	score   float64
	reasons []string
}

func (a *accumulator) add(score float64, reason string) {
	a.score += score
	if !slices.Contains(a.reasons, reason) {
		a.reasons = append(a.reasons, reason)
	}
}

// FindRelated returns up to limit entries related to the source entry,
// strongest first. limit <= 0 selects the default of 5. Candidates scoring
// below the relevance floor are dropped. Lookup failures for individual
// candidates are swallowed so one bad record cannot sink the whole ranking.
func (e *Engine) FindRelated(ctx context.Context, entryID string, limit int) ([]common.RelatedEntry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	source, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	scores := map[string]*accumulator{}
	accumulate := func(candidateID string, score float64, reason string) {
		if candidateID == entryID || score <= 0 {
			return
		}
		acc, ok := scores[candidateID]
		if !ok {
			acc = &accumulator{}
			scores[candidateID] = acc
		}
		acc.add(score, reason)
	}

	// Phase 1: walk relationships out of the source entry's entities and
	// credit every entry the far entity appears in.
	for _, entityID := range source.EntityIDs {
		entity, err := e.store.GetEntity(ctx, entityID)
		if err != nil {
			continue
		}
		relationships, err := e.store.ListRelationshipsForEntity(ctx, entityID)
		if err != nil {
			continue
		}
		for _, rel := range relationships {
			otherID, ok := rel.Other(entityID)
			if !ok {
				continue
			}
			other, err := e.store.GetEntity(ctx, otherID)
			if err != nil {
				continue
			}
			// The edge type alone sets the weight; edge confidence
			// already gated persistence at discovery time.
			weight, ok := relationWeights[rel.Type]
			if !ok {
				continue
			}
			candidates, err := e.store.ListEntriesForEntity(ctx, otherID)
			if err != nil {
				continue
			}
			reason := fmt.Sprintf("%s link between %s and %s", rel.Type, entity.Value, other.Value)
			for _, candidate := range candidates {
				accumulate(candidate.ID, weight, reason)
			}
		}
	}

	// Phase 2: entries sharing an insight with the source get credit
	// proportional to the insight's confidence.
	insights, err := e.store.ListInsightsForEntry(ctx, entryID)
	if err == nil {
		for _, insight := range insights {
			reason := fmt.Sprintf("shares insight %q", insight.Title)
			for _, candidateID := range insight.RelatedEntryIDs {
				accumulate(candidateID, insight.Confidence*insightWeight, reason)
			}
		}
	}

	now := e.now().UTC()
	related := make([]common.RelatedEntry, 0, len(scores))
	for candidateID, acc := range scores {
		candidate, err := e.store.GetEntry(ctx, candidateID)
		if err != nil {
			continue
		}
		score := acc.score * recencyFactor(now.Sub(candidate.EffectiveDate()))
		if score < e.minRelevance {
			continue
		}
		related = append(related, common.RelatedEntry{
			Entry:          candidate,
			RelevanceScore: score,
			Reason:         strings.Join(acc.reasons, "; "),
		})
	}

	slices.SortStableFunc(related, func(a, b common.RelatedEntry) int {
		switch {
		case a.RelevanceScore > b.RelevanceScore:
			return -1
		case a.RelevanceScore < b.RelevanceScore:
			return 1
		}
		return strings.Compare(a.Entry.ID, b.Entry.ID)
	})
	if len(related) > limit {
		related = related[:limit]
	}
	return related, nil
}

// recencyFactor dampens accumulated scores once, after all rules have
// contributed: full weight inside a week, 0.8 inside a month, 0.5 beyond.
func recencyFactor(age time.Duration) float64 {
	switch {
	case age <= 7*24*time.Hour:
		return 1.0
	case age <= 30*24*time.Hour:
		return 0.8
	}
	return 0.5
}
