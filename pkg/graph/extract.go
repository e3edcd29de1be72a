package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ember-journal/ember/backend/internal/util"
	"github.com/ember-journal/ember/backend/pkg/ai"
	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type rawEntity struct {
	Type       string   `json:"type"`
	Value      string   `json:"value"`
	Confidence float64  `json:"confidence"`
	Aliases    []string `json:"aliases"`
}

func validateEntity(minConfidence float64) func(*rawEntity) error {
	return func(e *rawEntity) error {
		if strings.TrimSpace(e.Value) == "" {
			return errors.New("empty value")
		}
		if !common.ValidEntityType(common.EntityType(e.Type)) {
			return fmt.Errorf("unknown entity type %q", e.Type)
		}
		if e.Confidence < minConfidence || e.Confidence > 1 {
			return fmt.Errorf("confidence %v outside accepted range", e.Confidence)
		}
		return nil
	}
}

// ExtractEntities runs entity extraction for one entry, merges the result
// into the existing entity set, and attaches the entities to the entry.
// cache may be nil outside batch runs. The entry is marked extracted even
// when nothing clears the threshold, so batch runs do not revisit it; in
// that case ErrNoEntitiesFound is returned alongside the empty slice.
func (e *Engine) ExtractEntities(
	ctx context.Context,
	entry common.Entry,
	cache *DedupeCache,
) ([]common.Entity, error) {
	typeList := make([]string, 0, len(common.EntityTypes))
	for _, t := range common.EntityTypes {
		typeList = append(typeList, string(t))
	}
	systemPrompt := fmt.Sprintf(ai.ExtractEntitiesPrompt, strings.Join(typeList, ", "))
	content := util.TruncateTokens(entry.Content, promptEncoding, maxPromptTokens)

	response, err := util.RetryBackoffWithContext(
		ctx, maxTries, e.retryDelay, ai.Retryable,
		func(ctx context.Context) (string, error) {
			return e.client.GenerateCompletion(ctx, content,
				ai.WithSystemPrompts(systemPrompt))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("entity extraction failed: %w", err)
	}

	raw, skipped, err := ai.DecodeArray(response, validateEntity(e.extractionThreshold))
	if err != nil {
		return nil, fmt.Errorf("entity extraction failed: %w", err)
	}
	if skipped > 0 {
		logger.Debug("[Extract] Skipped invalid entities", "entry", entry.ID, "skipped", skipped)
	}

	entities := make([]common.Entity, 0, len(raw))
	for _, r := range raw {
		entity, err := e.mergeEntity(ctx, r, cache)
		if err != nil {
			return nil, err
		}
		if err := e.store.AttachEntity(ctx, entry.ID, entity.ID); err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	if err := e.store.MarkEntryExtracted(ctx, entry.ID, e.client.Model()); err != nil {
		return nil, err
	}

	if len(entities) == 0 {
		return nil, ErrNoEntitiesFound
	}
	return entities, nil
}

// mergeEntity folds one raw extraction into the entity set: reuse a
// batch-cached entity first, then a stored one matching by value or alias,
// otherwise create a new one. Merging keeps the higher confidence and
// unions aliases.
func (e *Engine) mergeEntity(
	ctx context.Context,
	r rawEntity,
	cache *DedupeCache,
) (common.Entity, error) {
	entityType := common.EntityType(r.Type)

	existing, found, err := e.findExisting(ctx, entityType, r.Value, cache)
	if err != nil {
		return common.Entity{}, err
	}

	if !found {
		id, err := gonanoid.New()
		if err != nil {
			return common.Entity{}, err
		}
		now := time.Now().UTC()
		entity := common.Entity{
			ID:         id,
			Type:       entityType,
			Value:      strings.TrimSpace(r.Value),
			Confidence: r.Confidence,
			Aliases:    dedupeAliases(nil, r.Aliases, "", strings.TrimSpace(r.Value)),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := e.store.SaveEntity(ctx, entity); err != nil {
			return common.Entity{}, err
		}
		if cache != nil {
			cache.register(entity)
		}
		return entity, nil
	}

	if r.Confidence > existing.Confidence {
		existing.Confidence = r.Confidence
	}
	// When the new mention matched an alias rather than the canonical
	// value, that spelling becomes an alias too.
	extra := ""
	if !strings.EqualFold(strings.TrimSpace(r.Value), existing.Value) {
		extra = strings.TrimSpace(r.Value)
	}
	existing.Aliases = dedupeAliases(existing.Aliases, r.Aliases, extra, existing.Value)
	existing.UpdatedAt = time.Now().UTC()

	if err := e.store.UpdateEntity(ctx, existing); err != nil {
		return common.Entity{}, err
	}
	if cache != nil {
		cache.register(existing)
	}
	return existing, nil
}

func (e *Engine) findExisting(
	ctx context.Context,
	entityType common.EntityType,
	value string,
	cache *DedupeCache,
) (common.Entity, bool, error) {
	if cache != nil {
		if id, ok := cache.lookup(entityType, value); ok {
			entity, err := e.store.GetEntity(ctx, id)
			if err != nil {
				return common.Entity{}, false, err
			}
			return entity, true, nil
		}
	}

	matches, err := e.store.FindEntities(ctx, entityType, value)
	if err != nil {
		return common.Entity{}, false, err
	}
	if len(matches) == 0 {
		return common.Entity{}, false, nil
	}
	return matches[0], true, nil
}

func dedupeAliases(existing, incoming []string, extra, canonical string) []string {
	out := slices.Clone(existing)
	add := func(alias string) {
		alias = strings.TrimSpace(alias)
		if alias == "" || strings.EqualFold(alias, canonical) {
			return
		}
		for _, have := range out {
			if strings.EqualFold(have, alias) {
				return
			}
		}
		out = append(out, alias)
	}
	for _, a := range incoming {
		add(a)
	}
	add(extra)
	return out
}
