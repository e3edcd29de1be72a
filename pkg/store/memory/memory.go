// Package memory provides an in-memory Store. It backs tests and the
// single-user desktop deployment where no Postgres is available.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/store"
)

// MemoryStore implements store.Store with plain maps behind one mutex.
// The engines serialize their writes, so a single lock is enough.
type MemoryStore struct {
	mu sync.RWMutex

	entries       map[string]common.Entry
	entities      map[string]common.Entity
	relationships []common.Relationship
	insights      map[string]common.Insight
	analyses      map[string]common.EntryAnalysis
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  map[string]common.Entry{},
		entities: map[string]common.Entity{},
		insights: map[string]common.Insight{},
		analyses: map[string]common.EntryAnalysis{},
	}
}

func (s *MemoryStore) GetEntry(ctx context.Context, id string) (common.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return common.Entry{}, store.ErrNotFound
	}
	return entry, nil
}

func (s *MemoryStore) ListEntries(ctx context.Context) ([]common.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func (s *MemoryStore) ListEntriesBetween(ctx context.Context, from, to time.Time) ([]common.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []common.Entry{}
	for _, e := range s.entries {
		d := e.EffectiveDate()
		if !d.Before(from) && d.Before(to) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *MemoryStore) ListEntriesForEntity(ctx context.Context, entityID string) ([]common.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []common.Entry{}
	for _, e := range s.entries {
		if slices.Contains(e.EntityIDs, entityID) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *MemoryStore) SaveEntry(ctx context.Context, entry common.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	return nil
}

func (s *MemoryStore) MarkEntryExtracted(ctx context.Context, id string, model string) error {
	return s.markEntry(id, func(e *common.Entry, now time.Time) {
		e.EntitiesExtracted = true
		e.ExtractedAt = &now
		e.ExtractionModel = model
	})
}

func (s *MemoryStore) MarkEntryDiscovered(ctx context.Context, id string, model string) error {
	return s.markEntry(id, func(e *common.Entry, now time.Time) {
		e.RelationshipsDiscovered = true
		e.DiscoveredAt = &now
		e.DiscoveryModel = model
	})
}

func (s *MemoryStore) markEntry(id string, apply func(*common.Entry, time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return store.ErrNotFound
	}
	apply(&entry, time.Now().UTC())
	s.entries[id] = entry
	return nil
}

func (s *MemoryStore) DeleteEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) GetEntity(ctx context.Context, id string) (common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.entities[id]
	if !ok {
		return common.Entity{}, store.ErrNotFound
	}
	return entity, nil
}

func (s *MemoryStore) FindEntities(ctx context.Context, entityType common.EntityType, search string) ([]common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.TrimSpace(strings.ToLower(search))
	out := []common.Entity{}
	for _, e := range s.entities {
		if entityType != "" && e.Type != entityType {
			continue
		}
		if q != "" && !e.Matches(q) {
			continue
		}
		out = append(out, e)
	}
	sortEntities(out)
	return out, nil
}

func (s *MemoryStore) ListEntities(ctx context.Context) ([]common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sortEntities(out)
	return out, nil
}

func (s *MemoryStore) SaveEntity(ctx context.Context, entity common.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity.ID] = entity
	return nil
}

func (s *MemoryStore) UpdateEntity(ctx context.Context, entity common.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entity.ID]; !ok {
		return store.ErrNotFound
	}
	s.entities[entity.ID] = entity
	return nil
}

func (s *MemoryStore) AttachEntity(ctx context.Context, entryID string, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[entryID]
	if !ok {
		return store.ErrNotFound
	}
	if slices.Contains(entry.EntityIDs, entityID) {
		return nil
	}
	entry.EntityIDs = append(entry.EntityIDs, entityID)
	s.entries[entryID] = entry
	return nil
}

func (s *MemoryStore) ListRelationshipsForEntity(ctx context.Context, entityID string) ([]common.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []common.Relationship{}
	for _, r := range s.relationships {
		if r.FromEntityID == entityID || r.ToEntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveRelationships(ctx context.Context, relationships []common.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relationships = append(s.relationships, relationships...)
	return nil
}

func (s *MemoryStore) SaveInsights(ctx context.Context, insights []common.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range insights {
		s.insights[in.ID] = in
	}
	return nil
}

func (s *MemoryStore) ListInsights(ctx context.Context, timeframe common.Timeframe) ([]common.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []common.Insight{}
	for _, in := range s.insights {
		if timeframe != "" && in.Timeframe != timeframe {
			continue
		}
		out = append(out, in)
	}
	slices.SortFunc(out, func(a, b common.Insight) int {
		if a.GeneratedAt.Equal(b.GeneratedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.GeneratedAt.After(b.GeneratedAt) {
			return -1
		}
		return 1
	})
	return out, nil
}

func (s *MemoryStore) ListInsightsForEntry(ctx context.Context, entryID string) ([]common.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []common.Insight{}
	for _, in := range s.insights {
		if slices.Contains(in.RelatedEntryIDs, entryID) {
			out = append(out, in)
		}
	}
	return out, nil
}

func (s *MemoryStore) SetInsightFlags(ctx context.Context, id string, isRead, isStarred bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.insights[id]
	if !ok {
		return store.ErrNotFound
	}
	in.IsRead = isRead
	in.IsStarred = isStarred
	s.insights[id] = in
	return nil
}

func (s *MemoryStore) ListAnalyses(ctx context.Context) ([]common.EntryAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.EntryAnalysis, 0, len(s.analyses))
	for _, a := range s.analyses {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b common.EntryAnalysis) int {
		return strings.Compare(a.EntryID, b.EntryID)
	})
	return out, nil
}

func (s *MemoryStore) SaveAnalysis(ctx context.Context, analysis common.EntryAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[analysis.EntryID] = analysis
	return nil
}

func (s *MemoryStore) ClearGraph(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = map[string]common.Entity{}
	s.relationships = nil
	for id, e := range s.entries {
		e.EntitiesExtracted = false
		e.ExtractedAt = nil
		e.ExtractionModel = ""
		e.RelationshipsDiscovered = false
		e.DiscoveredAt = nil
		e.DiscoveryModel = ""
		e.EntityIDs = nil
		s.entries[id] = e
	}
	return nil
}

func sortEntries(entries []common.Entry) {
	slices.SortFunc(entries, func(a, b common.Entry) int {
		da, db := a.EffectiveDate(), b.EffectiveDate()
		if da.Equal(db) {
			return strings.Compare(a.ID, b.ID)
		}
		if da.Before(db) {
			return -1
		}
		return 1
	})
}

func sortEntities(entities []common.Entity) {
	slices.SortFunc(entities, func(a, b common.Entity) int {
		if a.Type != b.Type {
			return strings.Compare(string(a.Type), string(b.Type))
		}
		return strings.Compare(strings.ToLower(a.Value), strings.ToLower(b.Value))
	})
}
