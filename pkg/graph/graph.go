// Package graph turns journal entries into a knowledge graph: it extracts
// typed entities from entry text, merges duplicates across entries, and
// discovers typed relationships between the entities of an entry.
package graph

import (
	"errors"
	"strings"
	"time"

	"github.com/ember-journal/ember/backend/pkg/ai"
	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/store"
)

var (
	// ErrNoEntitiesFound indicates extraction ran but nothing in the entry
	// cleared the confidence threshold.
	ErrNoEntitiesFound = errors.New("no entities found in entry")

	// ErrInsufficientEntities indicates an entry has fewer than two
	// entities, so there is nothing to relate.
	ErrInsufficientEntities = errors.New("not enough entities for relationship discovery")
)

const (
	defaultExtractionThreshold = 0.5
	// Stricter than extraction: spurious edges are costlier than spurious
	// entities.
	defaultDiscoveryThreshold = 0.6

	maxPromptTokens = 6000
	promptEncoding  = "o200k_base"

	maxTries       = 3
	retryBaseDelay = time.Second
)

// Engine extracts entities and discovers relationships against a store.
type Engine struct {
	store  store.Store
	client ai.JournalAIClient

	extractionThreshold float64
	discoveryThreshold  float64
	retryDelay          time.Duration
}

// EngineOption tunes a graph engine at construction time.
type EngineOption func(*Engine)

// WithExtractionThreshold overrides the minimum confidence an extracted
// entity must carry. Defaults to 0.5.
func WithExtractionThreshold(min float64) EngineOption {
	return func(e *Engine) {
		e.extractionThreshold = min
	}
}

// WithDiscoveryThreshold overrides the minimum confidence a discovered
// relationship must carry. Defaults to 0.6.
func WithDiscoveryThreshold(min float64) EngineOption {
	return func(e *Engine) {
		e.discoveryThreshold = min
	}
}

// NewEngine creates a graph engine backed by the given store and AI client.
func NewEngine(s store.Store, client ai.JournalAIClient, opts ...EngineOption) *Engine {
	e := &Engine{
		store:               s,
		client:              client,
		extractionThreshold: defaultExtractionThreshold,
		discoveryThreshold:  defaultDiscoveryThreshold,
		retryDelay:          retryBaseDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DedupeCache holds the canonical entities seen during one batch run, so
// serial extraction reuses an entity across entries before the store lookup.
// Not safe for concurrent use; batch runs are strictly serial.
type DedupeCache struct {
	byKey map[string]string
}

// NewDedupeCache returns an empty cache for one batch run.
func NewDedupeCache() *DedupeCache {
	return &DedupeCache{byKey: map[string]string{}}
}

func dedupeKey(entityType common.EntityType, value string) string {
	return string(entityType) + "|" + strings.TrimSpace(strings.ToLower(value))
}

func (c *DedupeCache) lookup(entityType common.EntityType, value string) (string, bool) {
	id, ok := c.byKey[dedupeKey(entityType, value)]
	return id, ok
}

// register indexes the entity under its value and every alias.
func (c *DedupeCache) register(entity common.Entity) {
	c.byKey[dedupeKey(entity.Type, entity.Value)] = entity.ID
	for _, alias := range entity.Aliases {
		c.byKey[dedupeKey(entity.Type, alias)] = entity.ID
	}
}
