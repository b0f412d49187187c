// Package cluster groups normalized items into event clusters. The matcher
// scores an incoming item against an in-memory index of recently active
// clusters using three layers: a lexical near-duplicate check over
// canonicalized token sets, a character n-gram cosine as the language-agnostic
// backbone, and a weighted overlap of entity signatures as a precision
// booster. The engine drives assignment passes over unassigned items, derives
// cluster columns from members, and retires idle clusters, optionally
// archiving them first.
package cluster

import (
	"github.com/google/uuid"

	"github.com/mihasm/news-globe/internal/ner"
)

// Match types reported with an assignment, from cheapest to most involved:
// token-set near-duplicate, windowed partial near-duplicate, and the combined
// n-gram plus signature score.
const (
	MatchNearDupTokenSet = "near_dup_token_set"
	MatchNearDupPartial  = "near_dup_partial"
	MatchSignature       = "ngram+ner_signature"
)

// Match is a successful assignment decision.
type Match struct {
	ClusterID uuid.UUID
	Score     float64
	Type      string
}

// EntityExtractor recognizes named entities in text. *ner.Extractor
// implements it; tests substitute fixed tables.
type EntityExtractor interface {
	Extract(text string) []ner.Entity
}
