package cluster

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	reRetweet = regexp.MustCompile(`(?i)^\s*rt\s+@[\p{L}\p{N}_]+:\s*`)
	reURL     = regexp.MustCompile(`https?://\S+`)
	reMention = regexp.MustCompile(`@[\p{L}\p{N}_]+`)
	reHashtag = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	reEmoji   = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}]+`)
	reSpaces  = regexp.MustCompile(`\s+`)

	// Punctuation collapses to space; % survives so percent tokens keep
	// their marker.
	rePunct = regexp.MustCompile(`[^\p{L}\p{N}_\s%]`)

	reNumber     = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+\b|\b\d+\b`)
	rePercent    = regexp.MustCompile(`\b(\d{1,3})\s*%`)
	reTimeWindow = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(hours?|days?|weeks?|months?|years?)\b`)
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"from": true, "with": true, "by": true, "as": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true,
	"this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "they": true, "them": true, "their": true,
	"we": true, "you": true,
	"said": true, "says": true, "say": true, "report": true, "reports": true,
	"reported": true, "according": true,
	"via": true, "new": true, "latest": true, "breaking": true, "news": true,
}

var timeUnits = map[string]string{
	"hour":  "h",
	"day":   "d",
	"week":  "w",
	"month": "m",
	"year":  "y",
}

// extractNumbers returns plain and comma-grouped integers with commas
// stripped, keeping values of one to ten digits.
func extractNumbers(text string) []string {
	var out []string
	for _, m := range reNumber.FindAllString(text, -1) {
		s := strings.ReplaceAll(m, ",", "")
		if len(s) <= 10 {
			out = append(out, s)
		}
	}
	return out
}

// extractPercents returns percentage mentions as "<n>%" tokens.
func extractPercents(text string) []string {
	var out []string
	for _, m := range rePercent.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1]+"%")
	}
	return out
}

// extractTimeWindows returns duration mentions as compact tokens, "48 hours"
// becoming "48h".
func extractTimeWindows(text string) []string {
	var out []string
	for _, m := range reTimeWindow.FindAllStringSubmatch(text, -1) {
		unit := strings.ToLower(m[2])
		unit = strings.TrimSuffix(unit, "s")
		if u, ok := timeUnits[unit]; ok {
			out = append(out, m[1]+u)
		}
	}
	return out
}

// canonicalize reduces text to its sorted unique content tokens for the
// lexical near-duplicate path: words of three or more runes outside the
// stoplist, plus extracted numbers, percents, and time windows. rare holds
// the subset distinctive enough to identify a story on its own (anything
// with a digit or %, and words of four or more runes).
func canonicalize(raw string) (canon string, rare map[string]bool) {
	t := strings.TrimSpace(raw)
	if t == "" {
		return "", nil
	}

	t = reRetweet.ReplaceAllString(t, "")
	t = reURL.ReplaceAllString(t, " ")
	t = reMention.ReplaceAllString(t, " ")
	t = reHashtag.ReplaceAllString(t, " ")
	t = reEmoji.ReplaceAllString(t, " ")

	nums := extractNumbers(t)
	pcts := extractPercents(t)
	tws := extractTimeWindows(t)

	t = rePunct.ReplaceAllString(t, " ")
	t = strings.ToLower(strings.TrimSpace(reSpaces.ReplaceAllString(t, " ")))

	set := make(map[string]bool)
	for _, w := range strings.Fields(t) {
		if utf8.RuneCountInString(w) >= 3 && !stopwords[w] {
			set[w] = true
		}
	}
	for _, tok := range nums {
		set[tok] = true
	}
	for _, tok := range pcts {
		set[tok] = true
	}
	for _, tok := range tws {
		set[tok] = true
	}

	tokens := make([]string, 0, len(set))
	for tok := range set {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	rare = make(map[string]bool)
	for _, tok := range tokens {
		if stopwords[tok] {
			continue
		}
		if hasDigit(tok) || strings.Contains(tok, "%") || utf8.RuneCountInString(tok) >= 4 {
			rare[tok] = true
		}
	}
	return strings.Join(tokens, " "), rare
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
