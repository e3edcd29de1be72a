package insights

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ember-journal/ember/backend/pkg/ai"
	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/store/memory"
)

type fakeClient struct {
	response string
	calls    int
}

func (f *fakeClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	f.calls++
	return f.response, nil
}

func (f *fakeClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return errors.New("not implemented")
}

func (f *fakeClient) Model() string               { return "test-model" }
func (f *fakeClient) ResetMetrics()               {}
func (f *fakeClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func seedEntries(t *testing.T, s *memory.MemoryStore, day time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		d := day.Add(time.Duration(i) * time.Hour)
		err := s.SaveEntry(context.Background(), common.Entry{
			ID: string(rune('a' + i)), Content: "entry content",
			Date: &d, CreatedAt: d, UpdatedAt: d,
		})
		if err != nil {
			t.Fatalf("SaveEntry() error = %v", err)
		}
	}
}

func TestGenerateWeeklyRequiresThreeEntries(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seedEntries(t, s, day, 2)

	client := &fakeClient{response: "[]"}
	engine := NewEngine(s, client)

	_, err := engine.GenerateWeekly(ctx, day)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("GenerateWeekly() error = %v, want ErrNoData", err)
	}
	if client.calls != 0 {
		t.Errorf("model called %d times, want 0 before the data check", client.calls)
	}
}

func TestGenerateDailyEmptyDay(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	client := &fakeClient{response: "[]"}
	engine := NewEngine(s, client)

	_, err := engine.GenerateDaily(ctx, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("GenerateDaily() error = %v, want ErrNoData", err)
	}
}

func TestGenerateDaily(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seedEntries(t, s, day, 1)

	now := time.Now().UTC()
	s.SaveEntity(ctx, common.Entity{
		ID: "ent-sarah", Type: common.EntityTypePerson, Value: "Sarah",
		Confidence: 0.9, CreatedAt: now, UpdatedAt: now,
	})

	client := &fakeClient{response: `[
		{"type":"emotional","title":"Calmer evenings","description":"Evenings read calmer than mornings.","confidence":0.7,"relatedEntities":["Sarah"]},
		{"type":"social","title":"Sarah again","description":"Sarah shows up a lot.","confidence":0.9,"relatedEntities":["Sarah"]},
		{"type":"topical","title":"Weak signal","description":"Too thin to report.","confidence":0.4,"relatedEntities":[]}
	]`}
	engine := NewEngine(s, client)

	got, err := engine.GenerateDaily(ctx, day)
	if err != nil {
		t.Fatalf("GenerateDaily() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GenerateDaily() returned %d insights, want 2 (threshold filter)", len(got))
	}
	if got[0].Confidence < got[1].Confidence {
		t.Error("GenerateDaily() not sorted by confidence descending")
	}
	if got[0].Timeframe != common.TimeframeDaily {
		t.Errorf("insight timeframe = %q, want daily", got[0].Timeframe)
	}
	if len(got[0].RelatedEntityIDs) != 1 || got[0].RelatedEntityIDs[0] != "ent-sarah" {
		t.Errorf("related entity ids = %v, want [ent-sarah]", got[0].RelatedEntityIDs)
	}

	persisted, _ := s.ListInsights(ctx, common.TimeframeDaily)
	if len(persisted) != 2 {
		t.Errorf("store holds %d insights, want 2", len(persisted))
	}
}

func TestGenerateDailyCaches(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seedEntries(t, s, day, 1)

	client := &fakeClient{response: `[{"type":"topical","title":"T","description":"D","confidence":0.8,"relatedEntities":[]}]`}
	engine := NewEngine(s, client)

	first, err := engine.GenerateDaily(ctx, day)
	if err != nil {
		t.Fatalf("GenerateDaily() error = %v", err)
	}
	second, err := engine.GenerateDaily(ctx, day)
	if err != nil {
		t.Fatalf("GenerateDaily() second call error = %v", err)
	}
	if client.calls != 1 {
		t.Errorf("model called %d times, want 1 (cache hit)", client.calls)
	}
	if len(first) != len(second) || first[0].ID != second[0].ID {
		t.Error("cached result differs from original")
	}

	engine.InvalidateCache()
	if _, err := engine.GenerateDaily(ctx, day); err != nil {
		t.Fatalf("GenerateDaily() after invalidate error = %v", err)
	}
	if client.calls != 2 {
		t.Errorf("model called %d times after invalidate, want 2", client.calls)
	}
}

func TestGenerateWeekly(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	// Spread three entries across the trailing week.
	for i, offset := range []int{0, -2, -5} {
		d := day.AddDate(0, 0, offset)
		s.SaveEntry(ctx, common.Entry{
			ID: string(rune('a' + i)), Content: "entry content",
			Date: &d, CreatedAt: d, UpdatedAt: d,
		})
	}

	client := &fakeClient{response: `[
		{"type":"temporal","title":"Strong mornings","description":"Mornings trend positive.","confidence":0.75,"relatedEntities":[],"evidence":["mentioned on 3 of 7 days"]}
	]`}
	engine := NewEngine(s, client)

	got, err := engine.GenerateWeekly(ctx, day)
	if err != nil {
		t.Fatalf("GenerateWeekly() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GenerateWeekly() returned %d insights, want 1", len(got))
	}
	if got[0].Timeframe != common.TimeframeWeekly {
		t.Errorf("insight timeframe = %q, want weekly", got[0].Timeframe)
	}
	if len(got[0].Evidence) == 0 {
		t.Error("weekly insight evidence not persisted")
	}
	if len(got[0].RelatedEntryIDs) != 3 {
		t.Errorf("related entry ids = %v, want all 3 window entries", got[0].RelatedEntryIDs)
	}
}
