package pgx

import (
	"context"
	"encoding/json"

	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const insightSelect = `
	SELECT id, type, title, description, confidence, timeframe,
	       related_entity_ids, related_entry_ids, evidence,
	       generated_at, is_read, is_starred
	FROM insights
`

func scanInsight(row pgxv5.Row) (common.Insight, error) {
	var (
		in       common.Insight
		entities []byte
		entries  []byte
	)
	err := row.Scan(
		&in.ID, &in.Type, &in.Title, &in.Description, &in.Confidence, &in.Timeframe,
		&entities, &entries, &in.Evidence,
		&in.GeneratedAt, &in.IsRead, &in.IsStarred,
	)
	if err != nil {
		return common.Insight{}, err
	}
	if len(entities) > 0 {
		if err := json.Unmarshal(entities, &in.RelatedEntityIDs); err != nil {
			return common.Insight{}, err
		}
	}
	if len(entries) > 0 {
		if err := json.Unmarshal(entries, &in.RelatedEntryIDs); err != nil {
			return common.Insight{}, err
		}
	}
	return in, nil
}

func collectInsights(rows pgxv5.Rows) ([]common.Insight, error) {
	defer rows.Close()
	out := []common.Insight{}
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *PgxStore) SaveInsights(ctx context.Context, insights []common.Insight) error {
	if len(insights) == 0 {
		return nil
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, in := range insights {
		entityIDs := in.RelatedEntityIDs
		if entityIDs == nil {
			entityIDs = []string{}
		}
		entryIDs := in.RelatedEntryIDs
		if entryIDs == nil {
			entryIDs = []string{}
		}
		entitiesJSON, err := json.Marshal(entityIDs)
		if err != nil {
			return err
		}
		entriesJSON, err := json.Marshal(entryIDs)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO insights (
				id, type, title, description, confidence, timeframe,
				related_entity_ids, related_entry_ids, evidence,
				generated_at, is_read, is_starred
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO NOTHING`,
			in.ID, in.Type, in.Title, in.Description, in.Confidence, in.Timeframe,
			entitiesJSON, entriesJSON, in.Evidence,
			in.GeneratedAt, in.IsRead, in.IsStarred,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PgxStore) ListInsights(ctx context.Context, timeframe common.Timeframe) ([]common.Insight, error) {
	rows, err := s.conn.Query(ctx, insightSelect+`
		WHERE ($1 = '' OR timeframe = $1)
		ORDER BY generated_at DESC, id`, string(timeframe))
	if err != nil {
		return nil, err
	}
	return collectInsights(rows)
}

func (s *PgxStore) ListInsightsForEntry(ctx context.Context, entryID string) ([]common.Insight, error) {
	rows, err := s.conn.Query(ctx, insightSelect+`
		WHERE related_entry_ids @> to_jsonb(ARRAY[$1]::text[])
		ORDER BY generated_at DESC, id`, entryID)
	if err != nil {
		return nil, err
	}
	return collectInsights(rows)
}

func (s *PgxStore) SetInsightFlags(ctx context.Context, id string, isRead, isStarred bool) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE insights SET is_read = $2, is_starred = $3 WHERE id = $1`,
		id, isRead, isStarred)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
