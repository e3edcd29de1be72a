package pgx

import (
	"context"

	"github.com/ember-journal/ember/backend/pkg/common"
)

func (s *PgxStore) ListRelationshipsForEntity(ctx context.Context, entityID string) ([]common.Relationship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, from_entity_id, to_entity_id, type, confidence, evidence, source_entry_id, created_at
		FROM relationships
		WHERE from_entity_id = $1 OR to_entity_id = $1
		ORDER BY created_at, id`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []common.Relationship{}
	for rows.Next() {
		var r common.Relationship
		if err := rows.Scan(
			&r.ID, &r.FromEntityID, &r.ToEntityID, &r.Type,
			&r.Confidence, &r.Evidence, &r.SourceEntryID, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PgxStore) SaveRelationships(ctx context.Context, relationships []common.Relationship) error {
	if len(relationships) == 0 {
		return nil
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, r := range relationships {
		if _, err := tx.Exec(ctx, `
			INSERT INTO relationships (
				id, from_entity_id, to_entity_id, type, confidence, evidence, source_entry_id, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
			r.ID, r.FromEntityID, r.ToEntityID, r.Type,
			r.Confidence, r.Evidence, r.SourceEntryID, r.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
