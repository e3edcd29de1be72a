package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const entitySelect = `
	SELECT id, type, value, confidence, aliases, metadata, created_at, updated_at
	FROM entities
`

func scanEntity(row pgxv5.Row) (common.Entity, error) {
	var (
		e        common.Entity
		aliases  []byte
		metadata []byte
	)
	err := row.Scan(&e.ID, &e.Type, &e.Value, &e.Confidence, &aliases, &metadata, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return common.Entity{}, err
	}
	if len(aliases) > 0 {
		if err := json.Unmarshal(aliases, &e.Aliases); err != nil {
			return common.Entity{}, err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return common.Entity{}, err
		}
	}
	return e, nil
}

func collectEntities(rows pgxv5.Rows) ([]common.Entity, error) {
	defer rows.Close()
	out := []common.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PgxStore) GetEntity(ctx context.Context, id string) (common.Entity, error) {
	row := s.conn.QueryRow(ctx, entitySelect+` WHERE id = $1`, id)
	e, err := scanEntity(row)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.Entity{}, store.ErrNotFound
	}
	return e, err
}

func (s *PgxStore) FindEntities(ctx context.Context, entityType common.EntityType, search string) ([]common.Entity, error) {
	// Alias matching happens in Go since aliases live in jsonb. The type
	// filter narrows the scan first.
	query := entitySelect + ` WHERE ($1 = '' OR type = $1) ORDER BY type, lower(value)`
	rows, err := s.conn.Query(ctx, query, string(entityType))
	if err != nil {
		return nil, err
	}
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, err
	}
	q := strings.TrimSpace(strings.ToLower(search))
	if q == "" {
		return entities, nil
	}
	out := []common.Entity{}
	for _, e := range entities {
		if e.Matches(q) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *PgxStore) ListEntities(ctx context.Context) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, entitySelect+` ORDER BY type, lower(value)`)
	if err != nil {
		return nil, err
	}
	return collectEntities(rows)
}

func (s *PgxStore) SaveEntity(ctx context.Context, entity common.Entity) error {
	aliases, metadata, err := marshalEntityJSON(entity)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(ctx, `
		INSERT INTO entities (id, type, value, confidence, aliases, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			value = EXCLUDED.value,
			confidence = EXCLUDED.confidence,
			aliases = EXCLUDED.aliases,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		entity.ID, entity.Type, entity.Value, entity.Confidence, aliases, metadata,
		entity.CreatedAt, entity.UpdatedAt,
	)
	return err
}

func (s *PgxStore) UpdateEntity(ctx context.Context, entity common.Entity) error {
	aliases, metadata, err := marshalEntityJSON(entity)
	if err != nil {
		return err
	}
	tag, err := s.conn.Exec(ctx, `
		UPDATE entities
		SET type = $2, value = $3, confidence = $4, aliases = $5, metadata = $6, updated_at = $7
		WHERE id = $1`,
		entity.ID, entity.Type, entity.Value, entity.Confidence, aliases, metadata, entity.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PgxStore) AttachEntity(ctx context.Context, entryID string, entityID string) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO entry_entities (entry_id, entity_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		entryID, entityID)
	return err
}

func marshalEntityJSON(entity common.Entity) ([]byte, []byte, error) {
	aliases := entity.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	aliasesJSON, err := json.Marshal(aliases)
	if err != nil {
		return nil, nil, err
	}
	metadata := entity.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, nil, err
	}
	return aliasesJSON, metadataJSON, nil
}
