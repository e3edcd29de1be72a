package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ember-journal/ember/backend/pkg/ai"
	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/store/memory"
)

// fakeClient answers completion calls through a user-supplied function
// receiving the joined system prompts and the user prompt.
type fakeClient struct {
	respond func(system, prompt string) (string, error)
	calls   int
}

func (f *fakeClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.calls++
	options := ai.GenerateOptions{}
	for _, o := range opts {
		o(&options)
	}
	return f.respond(strings.Join(options.SystemPrompts, "\n"), prompt)
}

func (f *fakeClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return errors.New("not implemented")
}

func (f *fakeClient) Model() string               { return "test-model" }
func (f *fakeClient) ResetMetrics()               {}
func (f *fakeClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func isDiscoveryPrompt(system string) bool {
	return strings.Contains(system, "relate")
}

func saveEntry(t *testing.T, s *memory.MemoryStore, id, content string) common.Entry {
	t.Helper()
	now := time.Now().UTC()
	entry := common.Entry{ID: id, Content: content, CreatedAt: now, UpdatedAt: now}
	if err := s.SaveEntry(context.Background(), entry); err != nil {
		t.Fatalf("SaveEntry() error = %v", err)
	}
	return entry
}

func TestExtractEntitiesMergesDuplicates(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()

	now := time.Now().UTC()
	existing := common.Entity{
		ID: "ent-sarah", Type: common.EntityTypePerson, Value: "Sarah",
		Confidence: 0.8, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.SaveEntity(ctx, existing); err != nil {
		t.Fatalf("SaveEntity() error = %v", err)
	}

	client := &fakeClient{respond: func(system, prompt string) (string, error) {
		return `[{"type":"person","value":"Sarah","confidence":0.95,"aliases":["Sara"]}]`, nil
	}}
	engine := NewEngine(s, client)

	entry := saveEntry(t, s, "e1", "Had coffee with Sarah today.")
	got, err := engine.ExtractEntities(ctx, entry, nil)
	if err != nil {
		t.Fatalf("ExtractEntities() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ExtractEntities() returned %d entities, want 1", len(got))
	}
	if got[0].ID != existing.ID {
		t.Errorf("merged entity ID = %q, want %q", got[0].ID, existing.ID)
	}
	if got[0].Confidence != 0.95 {
		t.Errorf("merged confidence = %v, want 0.95", got[0].Confidence)
	}
	if !slices.Contains(got[0].Aliases, "Sara") {
		t.Errorf("merged aliases = %v, want to contain Sara", got[0].Aliases)
	}

	all, _ := s.ListEntities(ctx)
	if len(all) != 1 {
		t.Errorf("store holds %d entities, want 1", len(all))
	}

	updated, err := s.GetEntry(ctx, "e1")
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if !updated.EntitiesExtracted || updated.ExtractionModel != "test-model" {
		t.Errorf("entry marker = %+v, want extracted by test-model", updated)
	}
	if !slices.Contains(updated.EntityIDs, existing.ID) {
		t.Errorf("entry entity ids = %v, want to contain %q", updated.EntityIDs, existing.ID)
	}
}

func TestExtractEntitiesConfidenceFilter(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	client := &fakeClient{respond: func(system, prompt string) (string, error) {
		return `[
			{"type":"topic","value":"Running","confidence":0.9,"aliases":[]},
			{"type":"topic","value":"Maybe Gardening","confidence":0.4,"aliases":[]},
			{"type":"nonsense","value":"Broken","confidence":0.9,"aliases":[]}
		]`, nil
	}}
	engine := NewEngine(s, client)

	entry := saveEntry(t, s, "e1", "Went running. Thought about gardening.")
	got, err := engine.ExtractEntities(ctx, entry, nil)
	if err != nil {
		t.Fatalf("ExtractEntities() error = %v", err)
	}
	if len(got) != 1 || got[0].Value != "Running" {
		t.Errorf("ExtractEntities() = %+v, want only Running", got)
	}
}

func TestExtractEntitiesCustomThreshold(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	client := &fakeClient{respond: func(system, prompt string) (string, error) {
		return `[
			{"type":"topic","value":"Running","confidence":0.95,"aliases":[]},
			{"type":"topic","value":"Gardening","confidence":0.8,"aliases":[]}
		]`, nil
	}}
	engine := NewEngine(s, client, WithExtractionThreshold(0.9))

	entry := saveEntry(t, s, "e1", "Went running. Gardened a little.")
	got, err := engine.ExtractEntities(ctx, entry, nil)
	if err != nil {
		t.Fatalf("ExtractEntities() error = %v", err)
	}
	if len(got) != 1 || got[0].Value != "Running" {
		t.Errorf("ExtractEntities() = %+v, want only Running above the raised threshold", got)
	}
}

func TestExtractEntitiesNoneFound(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	client := &fakeClient{respond: func(system, prompt string) (string, error) {
		return `[{"type":"topic","value":"Weak","confidence":0.2,"aliases":[]}]`, nil
	}}
	engine := NewEngine(s, client)

	entry := saveEntry(t, s, "e1", "Nothing much today.")
	_, err := engine.ExtractEntities(ctx, entry, nil)
	if !errors.Is(err, ErrNoEntitiesFound) {
		t.Fatalf("ExtractEntities() error = %v, want ErrNoEntitiesFound", err)
	}

	updated, _ := s.GetEntry(ctx, "e1")
	if !updated.EntitiesExtracted {
		t.Error("entry without entities was not marked extracted")
	}
}

func TestExtractEntitiesBatchCacheReuse(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	client := &fakeClient{respond: func(system, prompt string) (string, error) {
		return `[{"type":"topic","value":"Yoga","confidence":0.8,"aliases":[]}]`, nil
	}}
	engine := NewEngine(s, client)
	cache := NewDedupeCache()

	e1 := saveEntry(t, s, "e1", "Morning yoga.")
	e2 := saveEntry(t, s, "e2", "Evening yoga.")

	if _, err := engine.ExtractEntities(ctx, e1, cache); err != nil {
		t.Fatalf("ExtractEntities(e1) error = %v", err)
	}
	if _, err := engine.ExtractEntities(ctx, e2, cache); err != nil {
		t.Fatalf("ExtractEntities(e2) error = %v", err)
	}

	all, _ := s.ListEntities(ctx)
	if len(all) != 1 {
		t.Fatalf("store holds %d entities, want 1 shared entity", len(all))
	}
	entries, _ := s.ListEntriesForEntity(ctx, all[0].ID)
	if len(entries) != 2 {
		t.Errorf("entity attached to %d entries, want 2", len(entries))
	}
}

func TestDiscoverRelationshipsInsufficientEntities(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	client := &fakeClient{respond: func(system, prompt string) (string, error) {
		t.Fatal("model should not be called for a single-entity entry")
		return "", nil
	}}
	engine := NewEngine(s, client)

	entry := saveEntry(t, s, "e1", "Just me and my thoughts.")
	entry.EntityIDs = []string{"lonely-entity"}
	now := time.Now().UTC()
	s.SaveEntity(ctx, common.Entity{ID: "lonely-entity", Type: common.EntityTypeTopic, Value: "Thoughts", Confidence: 0.9, CreatedAt: now, UpdatedAt: now})
	s.SaveEntry(ctx, entry)
	s.AttachEntity(ctx, entry.ID, "lonely-entity")
	entry, _ = s.GetEntry(ctx, entry.ID)

	_, err := engine.DiscoverRelationships(ctx, entry)
	if !errors.Is(err, ErrInsufficientEntities) {
		t.Fatalf("DiscoverRelationships() error = %v, want ErrInsufficientEntities", err)
	}
	updated, _ := s.GetEntry(ctx, entry.ID)
	if !updated.RelationshipsDiscovered {
		t.Error("single-entity entry was not marked discovered")
	}
}

func TestDiscoverRelationships(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	now := time.Now().UTC()
	work := common.Entity{ID: "ent-work", Type: common.EntityTypeEvent, Value: "Work Presentation", Confidence: 0.9, CreatedAt: now, UpdatedAt: now}
	anxious := common.Entity{ID: "ent-anx", Type: common.EntityTypeEmotion, Value: "Anxious", Aliases: []string{"Anxiety"}, Confidence: 0.85, CreatedAt: now, UpdatedAt: now}
	s.SaveEntity(ctx, work)
	s.SaveEntity(ctx, anxious)

	entry := saveEntry(t, s, "e1", "The work presentation made me anxious.")
	s.AttachEntity(ctx, entry.ID, work.ID)
	s.AttachEntity(ctx, entry.ID, anxious.ID)
	entry, _ = s.GetEntry(ctx, entry.ID)

	client := &fakeClient{respond: func(system, prompt string) (string, error) {
		return `[
			{"fromEntity":"Work Presentation","toEntity":"Anxiety","type":"causal","confidence":0.85,"evidence":"made me anxious"},
			{"fromEntity":"Work Presentation","toEntity":"Gym","type":"topical","confidence":0.9,"evidence":"hallucinated"},
			{"fromEntity":"Work Presentation","toEntity":"Anxious","type":"topical","confidence":0.3,"evidence":"below threshold"}
		]`, nil
	}}
	engine := NewEngine(s, client)

	got, err := engine.DiscoverRelationships(ctx, entry)
	if err != nil {
		t.Fatalf("DiscoverRelationships() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("DiscoverRelationships() returned %d relationships, want 1", len(got))
	}
	r := got[0]
	if r.FromEntityID != work.ID || r.ToEntityID != anxious.ID {
		t.Errorf("relationship endpoints = %q -> %q, want %q -> %q", r.FromEntityID, r.ToEntityID, work.ID, anxious.ID)
	}
	if r.Type != common.RelationCausal {
		t.Errorf("relationship type = %q, want causal", r.Type)
	}
	if r.SourceEntryID != entry.ID {
		t.Errorf("relationship source = %q, want %q", r.SourceEntryID, entry.ID)
	}

	stored, _ := s.ListRelationshipsForEntity(ctx, anxious.ID)
	if len(stored) != 1 {
		t.Errorf("store holds %d relationships for entity, want 1", len(stored))
	}
}

func TestProcessAllHaltsOnRateLimit(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	saveEntry(t, s, "e1", "First entry.")
	saveEntry(t, s, "e2", "Second entry.")

	client := &fakeClient{respond: func(system, prompt string) (string, error) {
		return "", fmt.Errorf("%w: 429", ai.ErrRateLimited)
	}}
	engine := NewEngine(s, client)
	engine.retryDelay = time.Millisecond

	result, err := engine.ProcessAll(ctx, BatchOptions{
		ExtractDelay:  time.Millisecond,
		DiscoverDelay: time.Millisecond,
	})
	if !errors.Is(err, ai.ErrRateLimited) {
		t.Fatalf("ProcessAll() error = %v, want ErrRateLimited", err)
	}
	if result.State != StateRateLimited {
		t.Errorf("ProcessAll() state = %q, want %q", result.State, StateRateLimited)
	}
	// Retried to the ceiling on the first entry, then the run halted
	// without touching the second.
	if client.calls != 3 {
		t.Errorf("model called %d times, want 3", client.calls)
	}
}

func TestProcessAllContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	saveEntry(t, s, "e1", "bad entry")
	saveEntry(t, s, "e2", "good entry")

	client := &fakeClient{respond: func(system, prompt string) (string, error) {
		if isDiscoveryPrompt(system) {
			return `[]`, nil
		}
		if strings.Contains(prompt, "bad") {
			return "", ai.MalformedResponse("gibberish")
		}
		return `[
			{"type":"topic","value":"Reading","confidence":0.8,"aliases":[]},
			{"type":"emotion","value":"Calm","confidence":0.7,"aliases":[]}
		]`, nil
	}}
	engine := NewEngine(s, client)

	result, err := engine.ProcessAll(ctx, BatchOptions{
		ExtractDelay:  time.Millisecond,
		DiscoverDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("ProcessAll() error = %v", err)
	}
	if result.State != StateCompleted {
		t.Errorf("ProcessAll() state = %q, want %q", result.State, StateCompleted)
	}
	if result.Extracted != 1 || result.Failed != 1 {
		t.Errorf("ProcessAll() = %+v, want 1 extracted, 1 failed", result)
	}
	if result.Discovered != 1 {
		t.Errorf("ProcessAll() discovered = %d, want 1", result.Discovered)
	}
}

func TestProcessAllCancelled(t *testing.T) {
	s := memory.NewMemoryStore()
	saveEntry(t, s, "e1", "First entry.")
	saveEntry(t, s, "e2", "Second entry.")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{respond: func(system, prompt string) (string, error) {
		return `[]`, nil
	}}
	engine := NewEngine(s, client)

	result, err := engine.ProcessAll(ctx, BatchOptions{
		ExtractDelay:  time.Millisecond,
		DiscoverDelay: time.Millisecond,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ProcessAll() error = %v, want context.Canceled", err)
	}
	if result.State != StateCancelled {
		t.Errorf("ProcessAll() state = %q, want %q", result.State, StateCancelled)
	}
}

func TestProcessAllNothingPending(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore()
	entry := saveEntry(t, s, "e1", "Done already.")
	s.MarkEntryExtracted(ctx, entry.ID, "test-model")
	s.MarkEntryDiscovered(ctx, entry.ID, "test-model")

	client := &fakeClient{respond: func(system, prompt string) (string, error) {
		t.Fatal("model should not be called when nothing is pending")
		return "", nil
	}}
	engine := NewEngine(s, client)

	result, err := engine.ProcessAll(ctx, BatchOptions{})
	if err != nil {
		t.Fatalf("ProcessAll() error = %v", err)
	}
	if result.State != StateCompleted {
		t.Errorf("ProcessAll() state = %q, want %q", result.State, StateCompleted)
	}
}
