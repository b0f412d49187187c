package cluster

import (
	"time"

	"github.com/google/uuid"
)

// RepText is a cluster's representative text with its activity timestamp.
// A nil LastSeen means the cluster has no recorded activity; such entries
// never age out of matching.
type RepText struct {
	ClusterID uuid.UUID
	Text      string
	LastSeen  *time.Time
}

// indexEntry holds the precomputed match features for one cluster.
type indexEntry struct {
	clusterID uuid.UUID
	canon     string
	sig       signature
	flat      map[string]bool
	script    string
	ng        map[uint32]float64
	lastSeen  *time.Time
}

// Index holds match features for recently active clusters, ordered newest
// first. It is not safe for concurrent use; the engine serializes access
// through the assignment pass.
type Index struct {
	extractor   EntityExtractor
	entries     []*indexEntry
	lastRefresh time.Time
}

// NewIndex returns an empty index.
func NewIndex(extractor EntityExtractor) *Index {
	return &Index{extractor: extractor}
}

func (ix *Index) build(rep RepText) *indexEntry {
	canon, _ := canonicalize(rep.Text)
	sig, script := extractSignature(ix.extractor, rep.Text)
	return &indexEntry{
		clusterID: rep.ClusterID,
		canon:     canon,
		sig:       sig,
		flat:      sig.flatten(),
		script:    script,
		ng:        ngramVector(rep.Text),
		lastSeen:  rep.LastSeen,
	}
}

// Refresh replaces all entries, preserving the order of reps, and marks the
// index fresh.
func (ix *Index) Refresh(reps []RepText) {
	entries := make([]*indexEntry, 0, len(reps))
	for _, rep := range reps {
		entries = append(entries, ix.build(rep))
	}
	ix.entries = entries
	ix.lastRefresh = time.Now().UTC()
}

// AddOrUpdate inserts or replaces the entry for a cluster, moving it to the
// front. New clusters match before older ones on score ties.
func (ix *Index) AddOrUpdate(clusterID uuid.UUID, text string, lastSeen *time.Time) {
	entries := make([]*indexEntry, 0, len(ix.entries)+1)
	entries = append(entries, ix.build(RepText{ClusterID: clusterID, Text: text, LastSeen: lastSeen}))
	for _, e := range ix.entries {
		if e.clusterID != clusterID {
			entries = append(entries, e)
		}
	}
	ix.entries = entries
}

// Remove drops the entry for a cluster, if present.
func (ix *Index) Remove(clusterID uuid.UUID) {
	for i, e := range ix.entries {
		if e.clusterID == clusterID {
			ix.entries = append(ix.entries[:i], ix.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of indexed clusters.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// ClusterIDs returns the indexed cluster IDs in match order.
func (ix *Index) ClusterIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(ix.entries))
	for i, e := range ix.entries {
		ids[i] = e.clusterID
	}
	return ids
}
