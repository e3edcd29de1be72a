package pgx

import (
	"context"
	"errors"
	"time"

	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const entrySelect = `
	SELECT e.id, e.content, e.date, e.created_at, e.updated_at,
	       e.entities_extracted, e.extracted_at, e.extraction_model,
	       e.relationships_discovered, e.discovered_at, e.discovery_model,
	       COALESCE(array_agg(ee.entity_id) FILTER (WHERE ee.entity_id IS NOT NULL), '{}')
	FROM entries e
	LEFT JOIN entry_entities ee ON ee.entry_id = e.id
`

func scanEntry(row pgxv5.Row) (common.Entry, error) {
	var e common.Entry
	err := row.Scan(
		&e.ID, &e.Content, &e.Date, &e.CreatedAt, &e.UpdatedAt,
		&e.EntitiesExtracted, &e.ExtractedAt, &e.ExtractionModel,
		&e.RelationshipsDiscovered, &e.DiscoveredAt, &e.DiscoveryModel,
		&e.EntityIDs,
	)
	return e, err
}

func collectEntries(rows pgxv5.Rows) ([]common.Entry, error) {
	defer rows.Close()
	out := []common.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PgxStore) GetEntry(ctx context.Context, id string) (common.Entry, error) {
	row := s.conn.QueryRow(ctx, entrySelect+` WHERE e.id = $1 GROUP BY e.id`, id)
	e, err := scanEntry(row)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.Entry{}, store.ErrNotFound
	}
	return e, err
}

func (s *PgxStore) ListEntries(ctx context.Context) ([]common.Entry, error) {
	rows, err := s.conn.Query(ctx, entrySelect+`
		GROUP BY e.id
		ORDER BY COALESCE(e.date, e.created_at), e.id`)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (s *PgxStore) ListEntriesBetween(ctx context.Context, from, to time.Time) ([]common.Entry, error) {
	rows, err := s.conn.Query(ctx, entrySelect+`
		WHERE COALESCE(e.date, e.created_at) >= $1 AND COALESCE(e.date, e.created_at) < $2
		GROUP BY e.id
		ORDER BY COALESCE(e.date, e.created_at), e.id`, from, to)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (s *PgxStore) ListEntriesForEntity(ctx context.Context, entityID string) ([]common.Entry, error) {
	rows, err := s.conn.Query(ctx, entrySelect+`
		WHERE e.id IN (SELECT entry_id FROM entry_entities WHERE entity_id = $1)
		GROUP BY e.id
		ORDER BY COALESCE(e.date, e.created_at), e.id`, entityID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (s *PgxStore) SaveEntry(ctx context.Context, entry common.Entry) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO entries (
			id, content, date, created_at, updated_at,
			entities_extracted, extracted_at, extraction_model,
			relationships_discovered, discovered_at, discovery_model
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			date = EXCLUDED.date,
			updated_at = EXCLUDED.updated_at,
			entities_extracted = EXCLUDED.entities_extracted,
			extracted_at = EXCLUDED.extracted_at,
			extraction_model = EXCLUDED.extraction_model,
			relationships_discovered = EXCLUDED.relationships_discovered,
			discovered_at = EXCLUDED.discovered_at,
			discovery_model = EXCLUDED.discovery_model`,
		entry.ID, entry.Content, entry.Date, entry.CreatedAt, entry.UpdatedAt,
		entry.EntitiesExtracted, entry.ExtractedAt, entry.ExtractionModel,
		entry.RelationshipsDiscovered, entry.DiscoveredAt, entry.DiscoveryModel,
	)
	return err
}

func (s *PgxStore) MarkEntryExtracted(ctx context.Context, id string, model string) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE entries
		SET entities_extracted = TRUE, extracted_at = $2, extraction_model = $3
		WHERE id = $1`,
		id, time.Now().UTC(), model)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PgxStore) MarkEntryDiscovered(ctx context.Context, id string, model string) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE entries
		SET relationships_discovered = TRUE, discovered_at = $2, discovery_model = $3
		WHERE id = $1`,
		id, time.Now().UTC(), model)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PgxStore) DeleteEntry(ctx context.Context, id string) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
