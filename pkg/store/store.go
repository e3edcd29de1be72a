// Package store defines persistence for the journal knowledge graph:
// entries, entities, relationships, insights, and legacy entry analyses.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ember-journal/ember/backend/pkg/common"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary for the knowledge graph. Entities are
// shared across entries and survive entry deletion; DeleteEntry only
// detaches them. Implementations must tolerate concurrent readers.
type Store interface {
	// Entries

	GetEntry(ctx context.Context, id string) (common.Entry, error)
	ListEntries(ctx context.Context) ([]common.Entry, error)
	// ListEntriesBetween returns entries whose effective date falls in
	// [from, to), ordered oldest first.
	ListEntriesBetween(ctx context.Context, from, to time.Time) ([]common.Entry, error)
	ListEntriesForEntity(ctx context.Context, entityID string) ([]common.Entry, error)
	SaveEntry(ctx context.Context, entry common.Entry) error
	// MarkEntryExtracted sets the extraction idempotency marker together
	// with the model that produced it.
	MarkEntryExtracted(ctx context.Context, id string, model string) error
	MarkEntryDiscovered(ctx context.Context, id string, model string) error
	// DeleteEntry removes the entry and its entity attachments. Entities
	// themselves are left in place, orphaned or not.
	DeleteEntry(ctx context.Context, id string) error

	// Entities

	GetEntity(ctx context.Context, id string) (common.Entity, error)
	// FindEntities returns entities of the given type whose value or
	// aliases match search case-insensitively. An empty type matches all
	// types; an empty search matches all values.
	FindEntities(ctx context.Context, entityType common.EntityType, search string) ([]common.Entity, error)
	ListEntities(ctx context.Context) ([]common.Entity, error)
	SaveEntity(ctx context.Context, entity common.Entity) error
	UpdateEntity(ctx context.Context, entity common.Entity) error
	// AttachEntity links an entity to an entry. Attaching twice is a no-op.
	AttachEntity(ctx context.Context, entryID string, entityID string) error

	// Relationships

	// ListRelationshipsForEntity returns edges where the entity appears on
	// either side.
	ListRelationshipsForEntity(ctx context.Context, entityID string) ([]common.Relationship, error)
	SaveRelationships(ctx context.Context, relationships []common.Relationship) error

	// Insights

	SaveInsights(ctx context.Context, insights []common.Insight) error
	ListInsights(ctx context.Context, timeframe common.Timeframe) ([]common.Insight, error)
	ListInsightsForEntry(ctx context.Context, entryID string) ([]common.Insight, error)
	SetInsightFlags(ctx context.Context, id string, isRead, isStarred bool) error

	// Legacy analyses

	ListAnalyses(ctx context.Context) ([]common.EntryAnalysis, error)
	SaveAnalysis(ctx context.Context, analysis common.EntryAnalysis) error

	// ClearGraph removes all entities and relationships and resets the
	// extraction and discovery markers on every entry. Entries, insights,
	// and analyses are kept.
	ClearGraph(ctx context.Context) error
}
