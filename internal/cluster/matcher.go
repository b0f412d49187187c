package cluster

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scoring thresholds. The n-gram cosine is the backbone: nothing matches
// below minNgramScore no matter how strong the signature overlap is, and a
// cosine at or above strongNgramScore passes the key gate on its own.
const (
	ngramWeight     = 0.55
	sigWeight       = 0.35
	minNgramScore   = 0.28
	minSigScore     = 0.18
	minFinalScore   = 0.36
	strongNgram     = 0.60
	eventGateNgram  = 0.45
	fuzzyGateNgram  = 0.42
	fuzzyRescueSlop = 0.05

	lexTokenSetThreshold = 85.0
	lexPartialThreshold  = 88.0

	fuzzyThreshold   = 88.0
	fuzzyMaxPerLabel = 30
	fuzzyBonusWeight = 0.10

	isoDateMismatchPenalty = 0.08
	crossScriptStrong      = 0.72

	maxClusterAge     = 21 * 24 * time.Hour
	timeHalfLifeHours = 72.0
	timeWeight        = 0.10

	prefilterMaxCandidates = 2500

	indexRefreshInterval = 5 * time.Minute
	indexWindow          = 72 * time.Hour
)

// keyLabels are the entity labels that establish topic identity on their
// own. GPE is excluded: country names glue unrelated stories together.
var keyLabels = []string{"PERSON", "ORG", "EVENT", "LAW"}

// eventIndicators flag semantic tokens that mark an event-style story.
var eventIndicators = map[string]bool{
	"protest": true, "protests": true, "demonstration": true, "rally": true,
	"unrest": true, "uprising": true, "riot": true, "clash": true,
	"crackdown": true,
	"violence": true, "death": true, "deaths": true, "killed": true,
	"executed": true, "casualties": true, "fatalities": true,
	"blackout": true, "shutdown": true, "censorship": true, "blocked": true,
	"disrupted": true, "internet": true,
	"sanctions": true, "embargo": true, "crisis": true, "conflict": true,
	"war": true,
	"activist": true, "rights": true, "freedom": true,
	"primary_protest": true, "primary_violence": true, "primary_death": true,
	"primary_internet": true, "primary_regime": true,
}

var eventIndicatorTypes = map[string]bool{
	"protest": true, "violence": true, "death": true,
	"internet": true, "regime": true, "sanctions": true,
}

// Matcher scores items against the index and picks the cluster they join.
// The toggles may be flipped before the first Assign call; they are not
// safe to change concurrently with matching.
type Matcher struct {
	index   *Index
	refresh func(window time.Duration)
	now     func() time.Time

	// LexicalNearDup enables the early token-overlap near-duplicate path.
	LexicalNearDup bool
	// FuzzyEntities enables fuzzy entity comparison in the signature
	// rescue and the key gate.
	FuzzyEntities bool
	// ScriptGuard rejects cross-script matches whose combined score is
	// not strong enough to override the script mismatch.
	ScriptGuard bool
}

// NewMatcher builds a matcher over index. refresh is called with the index
// window whenever the index is stale; nil skips refreshing.
func NewMatcher(index *Index, refresh func(window time.Duration)) *Matcher {
	return &Matcher{
		index:          index,
		refresh:        refresh,
		now:            time.Now,
		LexicalNearDup: true,
		FuzzyEntities:  true,
	}
}

// Assign returns the best cluster for an item's text, or ok=false when no
// indexed cluster clears the thresholds and the item should seed a new one.
// createdAt is the item's event time; cluster age and recency decay are
// measured against it.
func (m *Matcher) Assign(text string, createdAt time.Time) (Match, bool) {
	if m.needsRefresh() && m.refresh != nil {
		m.refresh(indexWindow)
	}
	if len(m.index.entries) == 0 {
		return Match{}, false
	}

	canon, _ := canonicalize(text)
	sig, script := extractSignature(m.index.extractor, text)
	flat := sig.flatten()
	ng := ngramVector(text)
	if len(sig) == 0 && canon == "" && len(ng) == 0 {
		return Match{}, false
	}

	cands := m.prefilter(flat)
	if len(cands) == 0 {
		cands = m.index.entries
	}

	// Lexical near-duplicate early win. Candidate age is not checked on
	// this path: a verbatim repost belongs to its cluster however old.
	if m.LexicalNearDup && canon != "" {
		if match, ok := bestTokenSet(canon, cands); ok {
			return match, true
		}
		if match, ok := bestPartial(canon, cands); ok {
			return match, true
		}
	}

	var (
		bestID    uuid.UUID
		bestFinal = -1.0
		found     bool
	)
	for _, e := range cands {
		if tooOld(createdAt, e.lastSeen) {
			continue
		}

		ngScore := cosineSparse(ng, e.ng)
		if ngScore < minNgramScore {
			continue
		}

		sigScore := weightedJaccard(sig, e.sig)

		// Fuzzy rescue: a signature just under its floor can be lifted
		// by close entity matches, but only when the n-gram cosine is
		// already decent.
		if m.FuzzyEntities && ngScore >= minNgramScore+fuzzyRescueSlop &&
			sigScore < minSigScore && sigScore > minSigScore*0.75 {
			sigScore = fuzzyBoost(sig, e.sig, sigScore)
		}

		if !m.passesKeyGate(sig, e.sig, ngScore) {
			continue
		}

		final := ngramWeight*ngScore + sigWeight*sigScore
		final -= isoDatePenalty(sig, e.sig)

		if m.ScriptGuard && script != scriptOther && e.script != scriptOther &&
			script != e.script && final < crossScriptStrong {
			continue
		}

		if e.lastSeen != nil {
			age := ageHours(createdAt, *e.lastSeen)
			final += timeWeight * (math.Exp2(-age/timeHalfLifeHours) - 1)
		}

		if final < minFinalScore {
			continue
		}
		if final > bestFinal {
			bestID, bestFinal, found = e.clusterID, final, true
		}
	}

	if !found {
		return Match{}, false
	}
	return Match{ClusterID: bestID, Score: bestFinal, Type: MatchSignature}, true
}

func (m *Matcher) needsRefresh() bool {
	lr := m.index.lastRefresh
	return lr.IsZero() || m.now().Sub(lr) > indexRefreshInterval
}

// prefilter keeps entries sharing at least one flattened feature with the
// item, capped. The caller falls back to the full index on an empty result.
func (m *Matcher) prefilter(flat map[string]bool) []*indexEntry {
	if len(flat) == 0 {
		return nil
	}
	var out []*indexEntry
	for _, e := range m.index.entries {
		if len(e.flat) == 0 {
			continue
		}
		if overlaps(flat, e.flat) {
			out = append(out, e)
			if len(out) >= prefilterMaxCandidates {
				break
			}
		}
	}
	return out
}

func bestTokenSet(canon string, cands []*indexEntry) (Match, bool) {
	var (
		bestID uuid.UUID
		best   float64
		found  bool
	)
	for _, e := range cands {
		if e.canon == "" {
			continue
		}
		if s := tokenSetRatio(canon, e.canon); s >= lexTokenSetThreshold && s > best {
			bestID, best, found = e.clusterID, s, true
		}
	}
	if !found {
		return Match{}, false
	}
	return Match{ClusterID: bestID, Score: best / 100, Type: MatchNearDupTokenSet}, true
}

func bestPartial(canon string, cands []*indexEntry) (Match, bool) {
	var (
		bestID uuid.UUID
		best   float64
		found  bool
	)
	for _, e := range cands {
		if e.canon == "" {
			continue
		}
		if s := partialRatio(canon, e.canon); s >= lexPartialThreshold && s > best {
			bestID, best, found = e.clusterID, s, true
		}
	}
	if !found {
		return Match{}, false
	}
	return Match{ClusterID: bestID, Score: best / 100, Type: MatchNearDupPartial}, true
}

// tooOld reports whether the cluster's last activity predates the item by
// more than the maximum cluster age. No recorded activity never ages out.
func tooOld(now time.Time, lastSeen *time.Time) bool {
	if lastSeen == nil {
		return false
	}
	return now.Sub(*lastSeen) > maxClusterAge
}

func ageHours(now, lastSeen time.Time) float64 {
	h := now.Sub(lastSeen).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// weightedJaccard scores label-wise set overlap between two signatures,
// weighting each label by how strongly it identifies a topic.
func weightedJaccard(a, b signature) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var inter, union float64
	for label, va := range a {
		i, u := setOverlap(va, b[label])
		w := weightFor(label)
		inter += w * float64(i)
		union += w * float64(u)
	}
	for label, vb := range b {
		if _, ok := a[label]; !ok {
			union += weightFor(label) * float64(len(vb))
		}
	}

	if union <= 1e-9 {
		return 0
	}
	return inter / union
}

func setOverlap(a, b map[string]bool) (inter, union int) {
	union = len(b)
	for v := range a {
		if b[v] {
			inter++
		} else {
			union++
		}
	}
	return inter, union
}

func overlaps(a, b map[string]bool) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

// passesKeyGate decides whether two signatures may belong to the same story.
// A very strong n-gram cosine passes outright; otherwise at least one key
// label must overlap exactly, or both sides must look event-like with a
// decent cosine, or (with fuzzy entities on) a key entity pair must be a
// close fuzzy match.
func (m *Matcher) passesKeyGate(a, b signature, ngScore float64) bool {
	if ngScore >= strongNgram {
		return true
	}
	for _, label := range keyLabels {
		if overlaps(a[label], b[label]) {
			return true
		}
	}
	if hasEventIndicators(a) && hasEventIndicators(b) && ngScore >= eventGateNgram {
		return true
	}
	if m.FuzzyEntities && ngScore >= fuzzyGateNgram && hasFuzzyKeyOverlap(a, b) {
		return true
	}
	return false
}

// hasEventIndicators reports whether the signature's semantic tokens mark an
// event-style story, either directly or through a "type:word" token.
func hasEventIndicators(sig signature) bool {
	sem := sig["SEMANTIC"]
	if len(sem) == 0 {
		return false
	}
	for tok := range sem {
		if eventIndicators[tok] {
			return true
		}
		if et, word, ok := strings.Cut(tok, ":"); ok {
			if eventIndicatorTypes[et] || eventIndicators[word] {
				return true
			}
		}
	}
	return false
}

// hasFuzzyKeyOverlap reports whether any key entity pair is a close fuzzy
// match. Values are compared in sorted order, capped per label.
func hasFuzzyKeyOverlap(a, b signature) bool {
	for _, label := range keyLabels {
		la := cappedSorted(a[label], fuzzyMaxPerLabel)
		lb := cappedSorted(b[label], fuzzyMaxPerLabel)
		if len(la) == 0 || len(lb) == 0 {
			continue
		}
		for _, va := range la {
			for _, vb := range lb {
				if tokenSetRatio(va, vb) >= fuzzyThreshold {
					return true
				}
			}
		}
	}
	return false
}

// fuzzyBoost lifts a near-threshold signature score when key entities
// fuzzily agree. The bump is the weighted share of matching entities scaled
// by fuzzyBonusWeight; the result never drops below base or exceeds 1.
func fuzzyBoost(a, b signature, base float64) float64 {
	var hits, total float64
	for _, label := range keyLabels {
		la := cappedSorted(a[label], fuzzyMaxPerLabel)
		lb := cappedSorted(b[label], fuzzyMaxPerLabel)
		if len(la) == 0 || len(lb) == 0 {
			continue
		}
		w := weightFor(label)
		for _, va := range la {
			var best float64
			for _, vb := range lb {
				if s := tokenSetRatio(va, vb); s > best {
					best = s
					if best >= 100 {
						break
					}
				}
			}
			if best >= fuzzyThreshold {
				hits += w * best / 100
			}
			total += w
		}
	}
	if total <= 1e-9 {
		return base
	}
	return math.Min(1, base+fuzzyBonusWeight*hits/total)
}

func cappedSorted(set map[string]bool, limit int) []string {
	if len(set) == 0 {
		return nil
	}
	vals := make([]string, 0, len(set))
	for v := range set {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	if len(vals) > limit {
		vals = vals[:limit]
	}
	return vals
}

// isoDatePenalty returns the boundary penalty when both signatures carry
// explicit dates and none agree.
func isoDatePenalty(a, b signature) float64 {
	da, db := a["ISO_DATE"], b["ISO_DATE"]
	if len(da) == 0 || len(db) == 0 {
		return 0
	}
	for d := range da {
		if db[d] {
			return 0
		}
	}
	return isoDateMismatchPenalty
}
