package rank

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ember-journal/ember/backend/internal/util"
	"github.com/ember-journal/ember/backend/pkg/ai"
	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/store"
)

const (
	analysisMaxPromptTokens = 6000
	analysisPromptEncoding  = "o200k_base"

	analysisMaxTries   = 3
	analysisRetryDelay = time.Second
)

type rawAnalysis struct {
	Entities            []string `json:"entities" jsonschema_description:"People, places, and named things the entry mentions"`
	Themes              []string `json:"themes" jsonschema_description:"Short keyword phrases for the subjects of the entry"`
	Sentiment           string   `json:"sentiment" jsonschema:"enum=positive,enum=negative,enum=neutral,enum=mixed"`
	SentimentConfidence float64  `json:"sentimentConfidence" jsonschema_description:"Certainty in the sentiment label, 0.0 to 1.0"`
	Emotions            []string `json:"emotions" jsonschema_description:"Distinct feelings the author expresses, single lowercase words"`
}

// Analyzer produces the structured per-entry analyses the connection
// engine compares. The response is one fixed-shape object, so it uses
// schema-constrained generation rather than the array-sanitizing path the
// graph engines need.
type Analyzer struct {
	store  store.Store
	client ai.JournalAIClient

	retryDelay time.Duration
}

// NewAnalyzer creates an analyzer backed by the given store and AI client.
func NewAnalyzer(s store.Store, client ai.JournalAIClient) *Analyzer {
	return &Analyzer{store: s, client: client, retryDelay: analysisRetryDelay}
}

// AnalyzeEntry analyzes one entry and persists the result, replacing any
// earlier analysis for the same entry. Callers holding a ConnectionEngine
// should ClearCache afterwards.
func (a *Analyzer) AnalyzeEntry(ctx context.Context, entry common.Entry) (common.EntryAnalysis, error) {
	content := util.TruncateTokens(entry.Content, analysisPromptEncoding, analysisMaxPromptTokens)

	raw, err := util.RetryBackoffWithContext(
		ctx, analysisMaxTries, a.retryDelay, ai.Retryable,
		func(ctx context.Context) (rawAnalysis, error) {
			var r rawAnalysis
			err := a.client.GenerateCompletionWithFormat(ctx,
				"entry_analysis",
				"Structured analysis of one journal entry",
				content, &r,
				ai.WithSystemPrompts(ai.AnalyzeEntryPrompt))
			return r, err
		},
	)
	if err != nil {
		return common.EntryAnalysis{}, fmt.Errorf("entry analysis failed: %w", err)
	}

	analysis := common.EntryAnalysis{
		EntryID:             entry.ID,
		Entities:            cleanTerms(raw.Entities),
		Themes:              cleanTerms(raw.Themes),
		Sentiment:           strings.ToLower(strings.TrimSpace(raw.Sentiment)),
		SentimentConfidence: clamp01(raw.SentimentConfidence),
		Emotions:            cleanTerms(raw.Emotions),
		AnalyzedAt:          time.Now().UTC(),
	}
	if err := a.store.SaveAnalysis(ctx, analysis); err != nil {
		return common.EntryAnalysis{}, err
	}
	return analysis, nil
}

func cleanTerms(terms []string) []string {
	out := []string{}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term != "" {
			out = append(out, term)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
