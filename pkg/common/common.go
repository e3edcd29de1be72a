package common

import (
	"strings"
	"time"
)

// EntityType classifies an extracted entity. The set is closed: parsers
// skip values outside of it.
type EntityType string

const (
	EntityTypePerson  EntityType = "person"
	EntityTypePlace   EntityType = "place"
	EntityTypeEvent   EntityType = "event"
	EntityTypeEmotion EntityType = "emotion"
	EntityTypeTopic   EntityType = "topic"
)

// EntityTypes lists every valid entity type in prompt order.
var EntityTypes = []EntityType{
	EntityTypePerson,
	EntityTypePlace,
	EntityTypeEvent,
	EntityTypeEmotion,
	EntityTypeTopic,
}

// ValidEntityType reports whether t is one of the closed entity type set.
func ValidEntityType(t EntityType) bool {
	for _, v := range EntityTypes {
		if t == v {
			return true
		}
	}
	return false
}

// RelationType classifies a directed edge between two entities.
type RelationType string

const (
	RelationTemporal  RelationType = "temporal"
	RelationCausal    RelationType = "causal"
	RelationEmotional RelationType = "emotional"
	RelationTopical   RelationType = "topical"
)

// RelationTypes lists every valid relationship type.
var RelationTypes = []RelationType{
	RelationTemporal,
	RelationCausal,
	RelationEmotional,
	RelationTopical,
}

// ValidRelationType reports whether t is one of the closed relationship
// type set.
func ValidRelationType(t RelationType) bool {
	for _, v := range RelationTypes {
		if t == v {
			return true
		}
	}
	return false
}

// InsightType classifies a derived pattern statement.
type InsightType string

const (
	InsightFrequency  InsightType = "frequency"
	InsightTemporal   InsightType = "temporal"
	InsightEmotional  InsightType = "emotional"
	InsightSocial     InsightType = "social"
	InsightTopical    InsightType = "topical"
	InsightSuggestion InsightType = "suggestion"
)

// InsightTypes lists every valid insight type.
var InsightTypes = []InsightType{
	InsightFrequency,
	InsightTemporal,
	InsightEmotional,
	InsightSocial,
	InsightTopical,
	InsightSuggestion,
}

// ValidInsightType reports whether t is one of the closed insight type set.
func ValidInsightType(t InsightType) bool {
	for _, v := range InsightTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Timeframe is the window an insight was generated over.
type Timeframe string

const (
	TimeframeDaily   Timeframe = "daily"
	TimeframeWeekly  Timeframe = "weekly"
	TimeframeMonthly Timeframe = "monthly"
)

// Entry is a single journal text record. Content is plaintext at this
// layer; encryption at rest is the host application's concern.
//
// Date is the user-assigned semantic date of the entry and may differ from
// CreatedAt. The extraction and discovery marker fields are idempotency
// markers so batch runs can skip already-processed entries; editing content
// does not reset them.
type Entry struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Date      *time.Time `json:"date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	EntitiesExtracted bool       `json:"entities_extracted"`
	ExtractedAt       *time.Time `json:"extracted_at,omitempty"`
	ExtractionModel   string     `json:"extraction_model,omitempty"`

	RelationshipsDiscovered bool       `json:"relationships_discovered"`
	DiscoveredAt            *time.Time `json:"discovered_at,omitempty"`
	DiscoveryModel          string     `json:"discovery_model,omitempty"`

	EntityIDs []string `json:"entity_ids,omitempty"`
}

// EffectiveDate returns the user-assigned date when set, otherwise the
// creation timestamp. Ranking recency decay works off this value.
func (e *Entry) EffectiveDate() time.Time {
	if e.Date != nil {
		return *e.Date
	}
	return e.CreatedAt
}

// Entity is a typed atomic concept extracted from journal text. The pair
// (Type, normalized Value) is kept unique by the extraction engine's merge
// step, not by the store.
type Entity struct {
	ID         string         `json:"id"`
	Type       EntityType     `json:"type"`
	Value      string         `json:"value"`
	Confidence float64        `json:"confidence"`
	Aliases    []string       `json:"aliases,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Matches reports whether query equals the entity's value or one of its
// aliases, ignoring case and surrounding whitespace.
func (e *Entity) Matches(query string) bool {
	q := strings.TrimSpace(strings.ToLower(query))
	if q == "" {
		return false
	}
	if strings.TrimSpace(strings.ToLower(e.Value)) == q {
		return true
	}
	for _, alias := range e.Aliases {
		if strings.TrimSpace(strings.ToLower(alias)) == q {
			return true
		}
	}
	return false
}

// Relationship is a typed, directed, weighted edge between two entities.
// Evidence carries the text excerpt that justifies the edge and
// SourceEntryID records which entry it was discovered in. Relationships are
// never updated after creation.
type Relationship struct {
	ID            string       `json:"id"`
	FromEntityID  string       `json:"from_entity_id"`
	ToEntityID    string       `json:"to_entity_id"`
	Type          RelationType `json:"type"`
	Confidence    float64      `json:"confidence"`
	Evidence      string       `json:"evidence,omitempty"`
	SourceEntryID string       `json:"source_entry_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Other returns the entity on the far side of the edge from entityID, and
// false if entityID is on neither side.
func (r *Relationship) Other(entityID string) (string, bool) {
	switch entityID {
	case r.FromEntityID:
		return r.ToEntityID, true
	case r.ToEntityID:
		return r.FromEntityID, true
	}
	return "", false
}

// Insight is a derived pattern statement over a time window. The related
// id slices are loose references resolved by lookup; they may dangle if
// their referents are deleted.
type Insight struct {
	ID               string      `json:"id"`
	Type             InsightType `json:"type"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	Confidence       float64     `json:"confidence"`
	Timeframe        Timeframe   `json:"timeframe"`
	RelatedEntityIDs []string    `json:"related_entity_ids,omitempty"`
	RelatedEntryIDs  []string    `json:"related_entry_ids,omitempty"`
	Evidence         []byte      `json:"evidence,omitempty"`
	GeneratedAt      time.Time   `json:"generated_at"`
	IsRead           bool        `json:"is_read"`
	IsStarred        bool        `json:"is_starred"`
}

// RelatedEntry pairs an entry with its computed relevance score and the
// human-readable trail of rules that contributed to it. Produced fresh per
// ranking call and never persisted.
type RelatedEntry struct {
	Entry          Entry
	RelevanceScore float64
	Reason         string
}

// EntryAnalysis is the legacy structured per-entry AI analysis consumed by
// the pairwise connection engine. It predates graph extraction and uses its
// own schema: flat entity names, theme keywords, and an overall sentiment.
type EntryAnalysis struct {
	EntryID             string    `json:"entry_id"`
	Entities            []string  `json:"entities,omitempty"`
	Themes              []string  `json:"themes,omitempty"`
	Sentiment           string    `json:"sentiment,omitempty"`
	SentimentConfidence float64   `json:"sentiment_confidence"`
	Emotions            []string  `json:"emotions,omitempty"`
	AnalyzedAt          time.Time `json:"analyzed_at"`
}
