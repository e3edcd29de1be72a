package rank

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ember-journal/ember/backend/pkg/ai"
	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/store/memory"
)

// fakeAnalysisClient fills the structured output target through a
// user-supplied function.
type fakeAnalysisClient struct {
	fill  func(out any) error
	calls int
}

func (f *fakeAnalysisClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeAnalysisClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.calls++
	return f.fill(out)
}

func (f *fakeAnalysisClient) Model() string               { return "test-model" }
func (f *fakeAnalysisClient) ResetMetrics()               {}
func (f *fakeAnalysisClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func TestAnalyzeEntryPersistsNormalizedAnalysis(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	client := &fakeAnalysisClient{fill: func(out any) error {
		r := out.(*rawAnalysis)
		r.Entities = []string{"Sarah", " ", "Cafe Luna"}
		r.Themes = []string{"work stress"}
		r.Sentiment = " Negative "
		r.SentimentConfidence = 1.4
		r.Emotions = []string{"anxious"}
		return nil
	}}
	analyzer := NewAnalyzer(s, client)

	now := time.Now().UTC()
	entry := common.Entry{ID: "e1", Content: "Vented to Sarah at Cafe Luna about work.", CreatedAt: now, UpdatedAt: now}
	if err := s.SaveEntry(ctx, entry); err != nil {
		t.Fatalf("SaveEntry() error = %v", err)
	}

	got, err := analyzer.AnalyzeEntry(ctx, entry)
	if err != nil {
		t.Fatalf("AnalyzeEntry() error = %v", err)
	}
	if len(got.Entities) != 2 {
		t.Errorf("entities = %v, want blank entries dropped", got.Entities)
	}
	if got.Sentiment != "negative" {
		t.Errorf("sentiment = %q, want normalized %q", got.Sentiment, "negative")
	}
	if got.SentimentConfidence != 1 {
		t.Errorf("sentiment confidence = %v, want clamped to 1", got.SentimentConfidence)
	}

	analyses, err := s.ListAnalyses(ctx)
	if err != nil {
		t.Fatalf("ListAnalyses() error = %v", err)
	}
	if len(analyses) != 1 || analyses[0].EntryID != "e1" {
		t.Fatalf("ListAnalyses() = %+v, want one analysis for e1", analyses)
	}
}

func TestAnalyzeEntryRetriesRateLimitToCeiling(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	client := &fakeAnalysisClient{fill: func(out any) error {
		return fmt.Errorf("%w: 429", ai.ErrRateLimited)
	}}
	analyzer := NewAnalyzer(s, client)
	analyzer.retryDelay = time.Millisecond

	entry := common.Entry{ID: "e1", Content: "text"}
	_, err := analyzer.AnalyzeEntry(ctx, entry)
	if !errors.Is(err, ai.ErrRateLimited) {
		t.Fatalf("AnalyzeEntry() error = %v, want ErrRateLimited", err)
	}
	if client.calls != 3 {
		t.Errorf("model called %d times, want 3", client.calls)
	}

	analyses, _ := s.ListAnalyses(ctx)
	if len(analyses) != 0 {
		t.Errorf("failed analysis was persisted: %+v", analyses)
	}
}
