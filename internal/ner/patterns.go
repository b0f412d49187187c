package ner

import (
	"regexp"
	"strings"
	"unicode"
)

const monthNames = `January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept|Sep|Oct|Nov|Dec`

var (
	// Day-first, month-first, and month-year forms, plus bare weekdays.
	// Bare month names are not matched; "may" is too common a word.
	reDate = regexp.MustCompile(`(?i)\b(?:` +
		`\d{1,2}(?:st|nd|rd|th)?\s+(?:` + monthNames + `)\.?(?:\s+\d{4})?` +
		`|(?:` + monthNames + `)\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,\s*\d{4})?` +
		`|(?:` + monthNames + `)\s+\d{4}` +
		`|Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday` +
		`)\b`)

	reISODate = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)

	reMoneySymbol   = regexp.MustCompile(`[$€£¥]\s?\d[\d,.]*(?:\s?(?i:million|billion|trillion|bn|mn))?`)
	reMoneyCurrency = regexp.MustCompile(`(?i)\b\d[\d,.]*\s?(?:million|billion|trillion)?\s?(?:dollars|euros|pounds|yen|rubles|rupees|yuan|francs|won|dinars|riyals|dirhams)\b`)
	reMoneyCode     = regexp.MustCompile(`\b(?:USD|EUR|GBP|JPY|CNY|RUB|INR|CHF)\s?\d[\d,.]*`)
)

// dateWords are calendar words the pattern pass owns; the run chunker leaves
// them alone so "Monday" does not read as a place.
var dateWords = buildDateWords()

func buildDateWords() map[string]bool {
	words := map[string]bool{
		"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
		"friday": true, "saturday": true, "sunday": true,
	}
	for _, m := range strings.Split(monthNames, "|") {
		words[strings.ToLower(m)] = true
	}
	return words
}

func extractDates(text string) []Entity {
	var out []Entity
	for _, m := range reDate.FindAllString(text, -1) {
		out = append(out, Entity{Text: strings.TrimSpace(m), Label: "DATE"})
	}
	for _, m := range reISODate.FindAllString(text, -1) {
		out = append(out, Entity{Text: m, Label: "DATE"})
	}
	return out
}

func extractMoney(text string) []Entity {
	var out []Entity
	for _, re := range []*regexp.Regexp{reMoneySymbol, reMoneyCurrency, reMoneyCode} {
		for _, m := range re.FindAllString(text, -1) {
			out = append(out, Entity{Text: strings.TrimSpace(m), Label: "MONEY"})
		}
	}
	return out
}

// extractUncased resolves lexicon entries in scripts the run chunker cannot
// reach: tokens in uncased or lowercased non-Latin scripts, and CJK text,
// which has no word separators and needs substring matching.
func (e *Extractor) extractUncased(text string) []Entity {
	var out []Entity

	hasCJK := false
	for _, t := range tokenize(text) {
		first, _ := firstRune(t.text)
		if isCJKRune(first) {
			hasCJK = true
			continue
		}
		if isLatinLetter(first) {
			continue
		}
		if le, ok := e.lexicon[foldKey(t.text)]; ok {
			out = append(out, Entity{Text: le.entityText(t.text), Label: le.label})
		}
	}

	if hasCJK {
		folded := foldKey(text)
		for _, entry := range e.cjk {
			if strings.Contains(folded, entry.surface) {
				out = append(out, Entity{Text: entry.entityText(entry.surface), Label: entry.label})
			}
		}
	}
	return out
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}

func isLatinLetter(r rune) bool {
	return unicode.Is(unicode.Latin, r)
}
