package cluster

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	reDomain  = regexp.MustCompile(`(?i)\b([a-z0-9-]+\.)+([a-z]{2,})\b`)
	reISODate = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	reYear    = regexp.MustCompile(`\b(19\d{2}|20\d{2}|2100)\b`)
)

// labelMap folds extractor labels into signature labels. Labels not listed
// pass through unchanged.
var labelMap = map[string]string{
	"GPE":         "GPE",
	"LOC":         "LOC",
	"FAC":         "FAC",
	"ORG":         "ORG",
	"NORP":        "NORP",
	"PERSON":      "PERSON",
	"PRODUCT":     "PRODUCT",
	"EVENT":       "EVENT",
	"LAW":         "LAW",
	"WORK_OF_ART": "WORK",
	"DATE":        "DATE",
	"TIME":        "TIME",
	"MONEY":       "MONEY",
	"PERCENT":     "PERCENT",
	"QUANTITY":    "QUANTITY",
	"ORDINAL":     "ORDINAL",
	"CARDINAL":    "CARDINAL",
	"MISC":        "ORG",
}

// labelWeights rank how strongly each feature label identifies a topic.
// Dates and numbers stay low: they act as boundaries, not glue, and the
// ISO_DATE mismatch penalty handles the boundary side separately.
var labelWeights = map[string]float64{
	"PERSON":   2.0,
	"ORG":      2.2,
	"GPE":      0.9,
	"LOC":      1.6,
	"FAC":      1.4,
	"EVENT":    2.8,
	"LAW":      1.8,
	"PRODUCT":  1.2,
	"WORK":     1.0,
	"DATE":     1.2,
	"TIME":     0.8,
	"MONEY":    0.8,
	"PERCENT":  0.6,
	"QUANTITY": 0.6,
	"ORDINAL":  0.4,
	"CARDINAL": 0.4,
	"NUM":      0.7,
	"TW":       0.7,
	"DOMAIN":   1.0,
	"URL":      0.4,
	"ISO_DATE": 0.7,
	"YEAR":     0.6,
	"SEMANTIC": 1.3,
	"SCRIPT":   0.0,
}

func weightFor(label string) float64 {
	if w, ok := labelWeights[label]; ok {
		return w
	}
	return 1.0
}

// signature maps a feature label to its set of normalized values. Value sets
// are never empty; add creates them on first use.
type signature map[string]map[string]bool

func (s signature) add(label, value string) {
	vals, ok := s[label]
	if !ok {
		vals = make(map[string]bool)
		s[label] = vals
	}
	vals[value] = true
}

// flatten renders the signature as "LABEL=value" strings for prefiltering.
func (s signature) flatten() map[string]bool {
	out := make(map[string]bool)
	for label, vals := range s {
		for v := range vals {
			out[label+"="+v] = true
		}
	}
	return out
}

var caseFolder = cases.Fold()

// normText trims, NFKC-normalizes, collapses whitespace, and case-folds, so
// entity values compare across scripts and width variants.
func normText(s string) string {
	t := strings.TrimSpace(s)
	t = norm.NFKC.String(t)
	t = reSpaces.ReplaceAllString(t, " ")
	return caseFolder.String(t)
}

const scriptOther = "OTHER"

// scriptRanges lists the recognized scripts in tie-break order.
var scriptRanges = []struct {
	name  string
	table *unicode.RangeTable
}{
	{"LATIN", unicode.Latin},
	{"CYRILLIC", unicode.Cyrillic},
	{"ARABIC", unicode.Arabic},
	{"HEBREW", unicode.Hebrew},
	{"GREEK", unicode.Greek},
	{"DEVANAGARI", unicode.Devanagari},
	{"HAN", unicode.Han},
	{"HIRAGANA", unicode.Hiragana},
	{"KATAKANA", unicode.Katakana},
	{"HANGUL", unicode.Hangul},
}

// detectScript returns the script bucket with the most letters in text, or
// OTHER when no letters match a known script.
func detectScript(text string) string {
	counts := make(map[string]int)
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		bucket := scriptOther
		for _, sr := range scriptRanges {
			if unicode.Is(sr.table, r) {
				bucket = sr.name
				break
			}
		}
		counts[bucket]++
	}

	best, bestCount := "", 0
	for _, sr := range scriptRanges {
		if counts[sr.name] > bestCount {
			best, bestCount = sr.name, counts[sr.name]
		}
	}
	if counts[scriptOther] > bestCount || best == "" {
		return scriptOther
	}
	return best
}

// semanticKeywords groups high-signal event vocabulary by type, scanned in
// order so a word in two groups classifies as the earlier one.
var semanticKeywords = []struct {
	eventType string
	words     map[string]bool
}{
	{"protest", map[string]bool{
		"protest": true, "protests": true, "demonstration": true,
		"demonstrations": true, "rally": true, "rallies": true,
		"vigil": true, "march": true,
	}},
	{"violence", map[string]bool{
		"violence": true, "violent": true, "riot": true, "riots": true,
		"clash": true, "clashes": true, "unrest": true, "uprising": true,
	}},
	{"death", map[string]bool{
		"death": true, "deaths": true, "toll": true, "killed": true,
		"killing": true, "executed": true, "executions": true,
		"casualties": true, "fatalities": true,
	}},
	{"internet", map[string]bool{
		"blackout": true, "shutdown": true, "censorship": true,
		"blocked": true, "disrupted": true, "interrupted": true,
		"internet": true,
	}},
	{"regime", map[string]bool{
		"regime": true, "government": true, "authorities": true,
		"security": true, "forces": true, "crackdown": true,
		"repression": true,
	}},
	{"sanctions", map[string]bool{
		"sanctions": true, "embargo": true, "export": true, "ban": true,
		"banned": true, "restrictions": true, "diplomatic": true,
	}},
	{"media", map[string]bool{
		"footage": true, "video": true, "videos": true, "images": true,
		"photos": true, "journalist": true, "journalists": true,
		"coverage": true,
	}},
	{"activist", map[string]bool{
		"activist": true, "activists": true, "dissident": true,
		"dissidents": true, "rights": true, "freedom": true,
	}},
}

func matchSemanticType(word string) string {
	for _, g := range semanticKeywords {
		if g.words[word] {
			return g.eventType
		}
	}
	return ""
}

// dominantType returns the most frequent event type, ties going to the
// lexicographically smallest name.
func dominantType(hits map[string]int) string {
	var best string
	bestN := 0
	for et, n := range hits {
		if n > bestN || (n == bestN && (best == "" || et < best)) {
			best, bestN = et, n
		}
	}
	return best
}

// extractSemanticTokens pulls topic tokens out of text for when entity
// recognition is weak: typed event keywords as "type:word", tokens carrying
// digits or %, and longer content words that often survive across languages
// as loanwords. When any typed keywords hit, a "primary_<type>" marker for
// the dominant type is added.
func extractSemanticTokens(text string) map[string]bool {
	t := strings.ToLower(text)
	t = reURL.ReplaceAllString(t, " ")
	t = reMention.ReplaceAllString(t, " ")
	t = reHashtag.ReplaceAllString(t, " ")
	t = reEmoji.ReplaceAllString(t, " ")
	t = rePunct.ReplaceAllString(t, " ")
	t = strings.TrimSpace(reSpaces.ReplaceAllString(t, " "))

	tokens := make(map[string]bool)
	typeHits := make(map[string]int)

	for _, w := range strings.Fields(t) {
		if utf8.RuneCountInString(w) < 3 || stopwords[w] {
			continue
		}
		if et := matchSemanticType(w); et != "" {
			tokens[et+":"+w] = true
			typeHits[et]++
			continue
		}
		if hasDigit(w) || strings.Contains(w, "%") {
			tokens[w] = true
		} else if utf8.RuneCountInString(w) >= 6 {
			tokens[w] = true
		}
	}

	if len(typeHits) > 0 {
		tokens["primary_"+dominantType(typeHits)] = true
	}
	return tokens
}

// extractSignature builds the per-label feature sets for text and detects
// its dominant script. Pattern features (URLs, domains, numbers, dates) come
// from regular expressions over the retweet-stripped text; entity features
// come from the extractor with values normalized and those shorter than
// three runes dropped.
func extractSignature(ext EntityExtractor, raw string) (signature, string) {
	feats := make(signature)
	t := strings.TrimSpace(raw)
	if t == "" {
		return feats, scriptOther
	}
	t = reRetweet.ReplaceAllString(t, "")
	script := detectScript(t)

	for _, m := range reURL.FindAllString(t, -1) {
		feats.add("URL", normText(m))
	}
	for _, m := range reDomain.FindAllString(t, -1) {
		feats.add("DOMAIN", normText(m))
	}

	for _, x := range extractNumbers(t) {
		feats.add("NUM", x)
	}
	for _, x := range extractPercents(t) {
		feats.add("PERCENT", x)
	}
	for _, x := range extractTimeWindows(t) {
		feats.add("TW", x)
	}
	for _, m := range reISODate.FindAllString(t, -1) {
		feats.add("ISO_DATE", m)
	}
	for _, m := range reYear.FindAllString(t, -1) {
		feats.add("YEAR", m)
	}

	for _, ent := range ext.Extract(t) {
		label := ent.Label
		if mapped, ok := labelMap[label]; ok {
			label = mapped
		}
		val := normText(ent.Text)
		if utf8.RuneCountInString(val) <= 2 {
			continue
		}
		feats.add(label, val)
	}

	for tok := range extractSemanticTokens(t) {
		feats.add("SEMANTIC", tok)
	}
	return feats, script
}
