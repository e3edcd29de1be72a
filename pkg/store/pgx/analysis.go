package pgx

import (
	"context"
	"encoding/json"

	"github.com/ember-journal/ember/backend/pkg/common"
)

func (s *PgxStore) ListAnalyses(ctx context.Context) ([]common.EntryAnalysis, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT entry_id, entities, themes, sentiment, sentiment_confidence, emotions, analyzed_at
		FROM entry_analyses
		ORDER BY entry_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []common.EntryAnalysis{}
	for rows.Next() {
		var (
			a        common.EntryAnalysis
			entities []byte
			themes   []byte
			emotions []byte
		)
		if err := rows.Scan(&a.EntryID, &entities, &themes, &a.Sentiment, &a.SentimentConfidence, &emotions, &a.AnalyzedAt); err != nil {
			return nil, err
		}
		for _, pair := range []struct {
			raw []byte
			dst *[]string
		}{
			{entities, &a.Entities},
			{themes, &a.Themes},
			{emotions, &a.Emotions},
		} {
			if len(pair.raw) > 0 {
				if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
					return nil, err
				}
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PgxStore) SaveAnalysis(ctx context.Context, analysis common.EntryAnalysis) error {
	marshal := func(v []string) ([]byte, error) {
		if v == nil {
			v = []string{}
		}
		return json.Marshal(v)
	}
	entities, err := marshal(analysis.Entities)
	if err != nil {
		return err
	}
	themes, err := marshal(analysis.Themes)
	if err != nil {
		return err
	}
	emotions, err := marshal(analysis.Emotions)
	if err != nil {
		return err
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO entry_analyses (
			entry_id, entities, themes, sentiment, sentiment_confidence, emotions, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entry_id) DO UPDATE SET
			entities = EXCLUDED.entities,
			themes = EXCLUDED.themes,
			sentiment = EXCLUDED.sentiment,
			sentiment_confidence = EXCLUDED.sentiment_confidence,
			emotions = EXCLUDED.emotions,
			analyzed_at = EXCLUDED.analyzed_at`,
		analysis.EntryID, entities, themes, analysis.Sentiment,
		analysis.SentimentConfidence, emotions, analysis.AnalyzedAt,
	)
	return err
}

func (s *PgxStore) ClearGraph(ctx context.Context) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		`DELETE FROM relationships`,
		`DELETE FROM entry_entities`,
		`DELETE FROM entities`,
		`UPDATE entries SET
			entities_extracted = FALSE, extracted_at = NULL, extraction_model = '',
			relationships_discovered = FALSE, discovered_at = NULL, discovery_model = ''`,
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
