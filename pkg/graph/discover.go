package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ember-journal/ember/backend/internal/util"
	"github.com/ember-journal/ember/backend/pkg/ai"
	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/logger"
	"github.com/ember-journal/ember/backend/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type rawRelationship struct {
	FromEntity string  `json:"fromEntity"`
	ToEntity   string  `json:"toEntity"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

func validateRelationship(minConfidence float64) func(*rawRelationship) error {
	return func(r *rawRelationship) error {
		if strings.TrimSpace(r.FromEntity) == "" || strings.TrimSpace(r.ToEntity) == "" {
			return errors.New("missing endpoint")
		}
		if !common.ValidRelationType(common.RelationType(r.Type)) {
			return fmt.Errorf("unknown relationship type %q", r.Type)
		}
		if r.Confidence < minConfidence || r.Confidence > 1 {
			return fmt.Errorf("confidence %v outside accepted range", r.Confidence)
		}
		return nil
	}
}

// DiscoverRelationships proposes typed edges between the entities of one
// entry and persists the ones that survive validation. The entry must have
// been through extraction first; entries with fewer than two entities are
// marked discovered and return ErrInsufficientEntities.
func (e *Engine) DiscoverRelationships(
	ctx context.Context,
	entry common.Entry,
) ([]common.Relationship, error) {
	entities := make([]common.Entity, 0, len(entry.EntityIDs))
	for _, id := range entry.EntityIDs {
		entity, err := e.store.GetEntity(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	if len(entities) < 2 {
		if err := e.store.MarkEntryDiscovered(ctx, entry.ID, e.client.Model()); err != nil {
			return nil, err
		}
		return nil, ErrInsufficientEntities
	}

	var entityList strings.Builder
	for _, entity := range entities {
		fmt.Fprintf(&entityList, "- %s (%s)\n", entity.Value, entity.Type)
	}
	typeList := make([]string, 0, len(common.RelationTypes))
	for _, t := range common.RelationTypes {
		typeList = append(typeList, string(t))
	}
	systemPrompt := fmt.Sprintf(ai.DiscoverRelationshipsPrompt,
		entityList.String(), strings.Join(typeList, ", "))
	content := util.TruncateTokens(entry.Content, promptEncoding, maxPromptTokens)

	response, err := util.RetryBackoffWithContext(
		ctx, maxTries, e.retryDelay, ai.Retryable,
		func(ctx context.Context) (string, error) {
			return e.client.GenerateCompletion(ctx, content,
				ai.WithSystemPrompts(systemPrompt))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("relationship discovery failed: %w", err)
	}

	raw, skipped, err := ai.DecodeArray(response, validateRelationship(e.discoveryThreshold))
	if err != nil {
		return nil, fmt.Errorf("relationship discovery failed: %w", err)
	}

	relationships := make([]common.Relationship, 0, len(raw))
	for _, r := range raw {
		from, okFrom := resolveEntity(entities, r.FromEntity)
		to, okTo := resolveEntity(entities, r.ToEntity)
		if !okFrom || !okTo || from.ID == to.ID {
			// Edges referencing entities outside the entry are model
			// hallucinations and dropped.
			skipped++
			continue
		}
		id, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		relationships = append(relationships, common.Relationship{
			ID:            id,
			FromEntityID:  from.ID,
			ToEntityID:    to.ID,
			Type:          common.RelationType(r.Type),
			Confidence:    r.Confidence,
			Evidence:      strings.TrimSpace(r.Evidence),
			SourceEntryID: entry.ID,
			CreatedAt:     time.Now().UTC(),
		})
	}
	if skipped > 0 {
		logger.Debug("[Discover] Skipped invalid relationships", "entry", entry.ID, "skipped", skipped)
	}

	if err := e.store.SaveRelationships(ctx, relationships); err != nil {
		return nil, err
	}
	if err := e.store.MarkEntryDiscovered(ctx, entry.ID, e.client.Model()); err != nil {
		return nil, err
	}
	return relationships, nil
}

func resolveEntity(entities []common.Entity, value string) (common.Entity, bool) {
	for _, e := range entities {
		if e.Matches(value) {
			return e, true
		}
	}
	return common.Entity{}, false
}
