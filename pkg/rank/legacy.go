package rank

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ember-journal/ember/backend/pkg/cache"
	"github.com/ember-journal/ember/backend/pkg/common"
	"github.com/ember-journal/ember/backend/pkg/store"
)

// Thresholds and weights of the pairwise comparison rules. These predate
// graph ranking and are kept compatible with stored analyses.
const (
	entitySimilarityThreshold = 0.8
	themeOverlapThreshold     = 0.6
	sentimentWeight           = 0.7

	connectionFloor = 0.3

	connectionCacheTTL = 5 * time.Minute
)

// Whole-graph results share the per-entry cache under a reserved key; entry
// ids are nanoids and never contain a colon.
const graphCacheKey = "graph:all"

// SubConnection is one triggered comparison rule between two entries.
type SubConnection struct {
	Kind     string  `json:"kind"` // entity, theme, sentiment
	Detail   string  `json:"detail"`
	Strength float64 `json:"strength"`
}

// Connection links two analyzed entries with an overall strength and the
// rules that produced it.
type Connection struct {
	SourceEntryID  string          `json:"source_entry_id"`
	TargetEntryID  string          `json:"target_entry_id"`
	Strength       float64         `json:"strength"`
	SubConnections []SubConnection `json:"sub_connections"`
}

// ConnectionEngine computes pairwise connections between entry analyses.
// Per-entry results are cached briefly since the UI asks repeatedly while
// the underlying analyses rarely change.
type ConnectionEngine struct {
	store store.Store
	cache *cache.Cache[[]Connection]
}

// NewConnectionEngine creates a connection engine over the given store.
func NewConnectionEngine(s store.Store) *ConnectionEngine {
	return &ConnectionEngine{
		store: s,
		cache: cache.New[[]Connection](connectionCacheTTL),
	}
}

// ClearCache drops all cached per-entry connections. Call after analyses
// change.
func (e *ConnectionEngine) ClearCache() {
	e.cache.InvalidateAll()
}

// ConnectionsFor returns the connections from one entry to every other
// analyzed entry, strongest first.
func (e *ConnectionEngine) ConnectionsFor(ctx context.Context, entryID string) ([]Connection, error) {
	if cached, ok := e.cache.Get(entryID); ok {
		return cached, nil
	}

	analyses, err := e.store.ListAnalyses(ctx)
	if err != nil {
		return nil, err
	}

	var source *common.EntryAnalysis
	for i := range analyses {
		if analyses[i].EntryID == entryID {
			source = &analyses[i]
			break
		}
	}
	if source == nil {
		return nil, store.ErrNotFound
	}

	connections := []Connection{}
	for i := range analyses {
		if analyses[i].EntryID == entryID {
			continue
		}
		if conn, ok := compare(*source, analyses[i]); ok {
			connections = append(connections, conn)
		}
	}
	sortConnections(connections)

	e.cache.Put(entryID, connections)
	return connections, nil
}

// GenerateKnowledgeGraph compares every pair of analyzed entries once and
// returns all connections clearing the strength floor, strongest first.
// The full graph is O(n²) to compute, so results are cached like the
// per-entry views.
func (e *ConnectionEngine) GenerateKnowledgeGraph(ctx context.Context) ([]Connection, error) {
	if cached, ok := e.cache.Get(graphCacheKey); ok {
		return cached, nil
	}

	analyses, err := e.store.ListAnalyses(ctx)
	if err != nil {
		return nil, err
	}

	connections := []Connection{}
	for i := 0; i < len(analyses); i++ {
		for j := i + 1; j < len(analyses); j++ {
			if conn, ok := compare(analyses[i], analyses[j]); ok {
				connections = append(connections, conn)
			}
		}
	}
	sortConnections(connections)

	e.cache.Put(graphCacheKey, connections)
	return connections, nil
}

// compare runs the three comparison rules between two analyses. The overall
// strength is the mean of the triggered rule strengths; pairs where no rule
// triggers or the mean falls under the floor produce no connection.
func compare(a, b common.EntryAnalysis) (Connection, bool) {
	subs := []SubConnection{}

	if sim, pair, ok := bestEntityMatch(a.Entities, b.Entities); ok {
		subs = append(subs, SubConnection{
			Kind:     "entity",
			Detail:   pair,
			Strength: sim,
		})
	}

	if overlap := Jaccard(themeKeywords(a.Themes), themeKeywords(b.Themes)); overlap > themeOverlapThreshold {
		subs = append(subs, SubConnection{
			Kind:     "theme",
			Detail:   fmt.Sprintf("shared themes (%.0f%% overlap)", overlap*100),
			Strength: overlap,
		})
	}

	if a.Sentiment != "" && strings.EqualFold(a.Sentiment, b.Sentiment) {
		subs = append(subs, SubConnection{
			Kind:     "sentiment",
			Detail:   fmt.Sprintf("both %s", strings.ToLower(a.Sentiment)),
			Strength: sentimentWeight * a.SentimentConfidence * b.SentimentConfidence,
		})
	}

	if shared := intersect(a.Emotions, b.Emotions); len(shared) > 0 {
		subs = append(subs, SubConnection{
			Kind:     "emotion",
			Detail:   "shared emotions: " + strings.Join(shared, ", "),
			Strength: Jaccard(a.Emotions, b.Emotions),
		})
	}

	if len(subs) == 0 {
		return Connection{}, false
	}

	total := 0.0
	for _, sub := range subs {
		total += sub.Strength
	}
	strength := total / float64(len(subs))
	if strength < connectionFloor {
		return Connection{}, false
	}

	return Connection{
		SourceEntryID:  a.EntryID,
		TargetEntryID:  b.EntryID,
		Strength:       strength,
		SubConnections: subs,
	}, true
}

// themeKeywords flattens theme phrases into their word tokens so phrasing
// differences ("work stress" vs "stress, work") do not hide overlap.
func themeKeywords(themes []string) []string {
	keywords := []string{}
	for _, theme := range themes {
		keywords = append(keywords, Tokenize(theme)...)
	}
	return keywords
}

func intersect(a, b []string) []string {
	setB := toSet(b)
	shared := []string{}
	for _, item := range a {
		key := strings.TrimSpace(strings.ToLower(item))
		if _, ok := setB[key]; ok && !slices.Contains(shared, key) {
			shared = append(shared, key)
		}
	}
	return shared
}

// bestEntityMatch finds the most similar cross pair of entity names above
// the similarity threshold.
func bestEntityMatch(a, b []string) (float64, string, bool) {
	best := 0.0
	detail := ""
	for _, ea := range a {
		for _, eb := range b {
			sim := StringSimilarity(ea, eb)
			if sim > entitySimilarityThreshold && sim > best {
				best = sim
				detail = fmt.Sprintf("%s ~ %s", ea, eb)
			}
		}
	}
	return best, detail, best > 0
}

func sortConnections(connections []Connection) {
	slices.SortStableFunc(connections, func(a, b Connection) int {
		switch {
		case a.Strength > b.Strength:
			return -1
		case a.Strength < b.Strength:
			return 1
		}
		return strings.Compare(a.TargetEntryID, b.TargetEntryID)
	})
}

// ConnectionTier buckets a strength for display.
func ConnectionTier(strength float64) string {
	switch {
	case strength >= 0.8:
		return "strong"
	case strength >= 0.6:
		return "moderate"
	case strength >= 0.4:
		return "weak"
	}
	return "very weak"
}

// GraphStats summarizes a generated connection set by tier.
type GraphStats struct {
	Total    int `json:"total"`
	Strong   int `json:"strong"`
	Moderate int `json:"moderate"`
	Weak     int `json:"weak"`
	VeryWeak int `json:"very_weak"`
}

// Stats counts connections per tier.
func Stats(connections []Connection) GraphStats {
	stats := GraphStats{Total: len(connections)}
	for _, conn := range connections {
		switch ConnectionTier(conn.Strength) {
		case "strong":
			stats.Strong++
		case "moderate":
			stats.Moderate++
		case "weak":
			stats.Weak++
		default:
			stats.VeryWeak++
		}
	}
	return stats
}
