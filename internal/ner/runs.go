package ner

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type token struct {
	text      string
	start     int
	end       int
	sentStart bool
}

// connectors may join two capitalized tokens into one run ("Bank of England",
// "Rio de Janeiro") but never start or end one.
var connectors = map[string]bool{
	"of": true, "de": true, "del": true, "della": true, "di": true,
	"da": true, "la": true, "le": true, "el": true, "al": true,
	"bin": true, "ibn": true, "van": true, "von": true, "der": true,
	"den": true, "dos": true, "das": true, "do": true,
}

// titles strip from the head of a run, leaving the PERSON remainder.
var titles = map[string]bool{
	"president": true, "minister": true, "chancellor": true, "senator": true,
	"governor": true, "mayor": true, "general": true, "colonel": true,
	"king": true, "queen": true, "pope": true, "sheikh": true, "prime": true,
	"dr": true, "mr": true, "mrs": true, "ms": true, "sir": true, "prof": true,
}

var trailingTriggers = map[string]string{
	// organizations
	"university": "ORG", "ministry": "ORG", "bank": "ORG", "police": "ORG",
	"army": "ORG", "agency": "ORG", "party": "ORG", "council": "ORG",
	"court": "ORG", "committee": "ORG", "company": "ORG", "corporation": "ORG",
	"corp": "ORG", "inc": "ORG", "ltd": "ORG", "group": "ORG",
	"association": "ORG", "organization": "ORG", "organisation": "ORG",
	"institute": "ORG", "commission": "ORG", "parliament": "ORG",
	"congress": "ORG", "senate": "ORG", "federation": "ORG", "union": "ORG",
	"authority": "ORG", "times": "ORG", "post": "ORG", "herald": "ORG",
	"tribune": "ORG", "journal": "ORG", "news": "ORG",
	// facilities
	"airport": "FAC", "bridge": "FAC", "station": "FAC", "dam": "FAC",
	"port": "FAC", "stadium": "FAC", "hospital": "FAC", "prison": "FAC",
	"plant": "FAC", "tower": "FAC", "tunnel": "FAC", "refinery": "FAC",
	"terminal": "FAC", "base": "FAC",
	// laws and instruments
	"act": "LAW", "amendment": "LAW", "treaty": "LAW", "accord": "LAW",
	"protocol": "LAW", "resolution": "LAW", "directive": "LAW", "bill": "LAW",
	"code": "LAW", "constitution": "LAW", "convention": "LAW",
	"agreement": "LAW",
	// named events
	"olympics": "EVENT", "cup": "EVENT", "summit": "EVENT",
	"festival": "EVENT", "war": "EVENT", "games": "EVENT",
	// geographic features
	"river": "LOC", "lake": "LOC", "mountain": "LOC", "mountains": "LOC",
	"sea": "LOC", "ocean": "LOC", "island": "LOC", "islands": "LOC",
	"valley": "LOC", "desert": "LOC", "bay": "LOC", "strait": "LOC",
	"peninsula": "LOC", "gulf": "LOC", "coast": "LOC", "falls": "LOC",
	"canyon": "LOC", "forest": "LOC",
	// political geography
	"city": "GPE", "republic": "GPE", "kingdom": "GPE", "state": "GPE",
	"province": "GPE", "county": "GPE", "district": "GPE",
}

var leadingTriggers = map[string]string{
	"hurricane": "EVENT", "typhoon": "EVENT", "cyclone": "EVENT",
	"storm": "EVENT", "operation": "EVENT",
	"mount": "LOC", "lake": "LOC", "cape": "LOC",
}

// extractRuns finds capitalized-token runs in bicameral scripts and
// classifies each one.
func (e *Extractor) extractRuns(text string) []Entity {
	tokens := tokenize(text)

	var out []Entity
	for i := 0; i < len(tokens); {
		if !isCapitalized(tokens[i].text) {
			i++
			continue
		}

		j := i + 1
		for j < len(tokens) && gapIsSpace(text, tokens[j-1], tokens[j]) {
			if isCapitalized(tokens[j].text) {
				j++
				continue
			}
			// A connector joins only when another capitalized token follows.
			if connectors[foldKey(tokens[j].text)] &&
				j+1 < len(tokens) &&
				isCapitalized(tokens[j+1].text) &&
				gapIsSpace(text, tokens[j], tokens[j+1]) {
				j += 2
				continue
			}
			break
		}

		if ent, ok := e.classifyRun(text, tokens[i:j]); ok {
			out = append(out, ent)
		}
		i = j
	}
	return out
}

// classifyRun decides the label for one capitalized run. Rules are tried in
// order; the lexicon always wins.
func (e *Extractor) classifyRun(text string, run []token) (Entity, bool) {
	span := text[run[0].start : run[len(run)-1].end]
	full := foldKey(span)

	if le, ok := e.lexicon[full]; ok {
		return Entity{Text: le.entityText(span), Label: le.label}, true
	}
	if len(run) == 1 && dateWords[full] {
		return Entity{}, false
	}

	// Strip leading titles; the remainder is a person.
	k := 0
	for k < len(run) && titles[foldKey(run[k].text)] {
		k++
	}
	if k > 0 && k < len(run) {
		rest := text[run[k].start : run[len(run)-1].end]
		return Entity{Text: rest, Label: "PERSON"}, true
	}

	first := foldKey(run[0].text)
	last := foldKey(run[len(run)-1].text)

	if len(run) > 1 {
		if label, ok := trailingTriggers[last]; ok {
			return Entity{Text: span, Label: label}, true
		}
		if label, ok := leadingTriggers[first]; ok {
			return Entity{Text: span, Label: label}, true
		}
		// "Bank of England", "Port of Beirut": head trigger plus "of".
		if label, ok := trailingTriggers[first]; ok && strings.Contains(full, " of ") {
			return Entity{Text: span, Label: label}, true
		}
		if e.given[first] {
			return Entity{Text: span, Label: "PERSON"}, true
		}
	}

	if len(run) == 1 && isAcronym(run[0].text) {
		return Entity{Text: span, Label: "ORG"}, true
	}

	// Inner lexicon hit: "Eastern Ukraine" names Ukraine even though the
	// full span is unknown.
	for _, t := range run {
		if le, ok := e.lexicon[foldKey(t.text)]; ok {
			return Entity{Text: le.entityText(t.text), Label: le.label}, true
		}
	}

	if len(run) > 1 {
		return Entity{Text: span, Label: "ORG"}, true
	}

	// A lone capitalized word at a sentence start is usually just a
	// sentence start.
	if run[0].sentStart || len([]rune(run[0].text)) < 2 {
		return Entity{}, false
	}
	return Entity{Text: span, Label: "LOC"}, true
}

// tokenize splits text into word tokens with byte offsets and sentence-start
// marks. A token is a maximal rune of letters, with apostrophes and hyphens
// kept when flanked by letters.
func tokenize(text string) []token {
	var (
		tokens    []token
		runes     = []rune(text)
		offsets   = make([]int, len(runes)+1)
		sentStart = true
	)
	pos := 0
	for i, r := range runes {
		offsets[i] = pos
		pos += utf8.RuneLen(r)
	}
	offsets[len(runes)] = pos

	i := 0
	for i < len(runes) {
		r := runes[i]
		if !unicode.IsLetter(r) {
			if r == '.' || r == '!' || r == '?' || r == ';' || r == ':' || r == '\n' {
				sentStart = true
			}
			i++
			continue
		}

		j := i + 1
		for j < len(runes) {
			if unicode.IsLetter(runes[j]) {
				j++
				continue
			}
			if (runes[j] == '\'' || runes[j] == '-' || runes[j] == '’') &&
				j+1 < len(runes) && unicode.IsLetter(runes[j+1]) {
				j += 2
				continue
			}
			break
		}

		tokens = append(tokens, token{
			text:      string(runes[i:j]),
			start:     offsets[i],
			end:       offsets[j],
			sentStart: sentStart,
		})
		sentStart = false
		i = j
	}
	return tokens
}

// gapIsSpace reports whether only non-breaking space characters separate two
// tokens. Line breaks end a run.
func gapIsSpace(text string, a, b token) bool {
	for _, r := range text[a.end:b.start] {
		if r == '\n' || !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func isCapitalized(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// isAcronym reports whether s is a short all-uppercase letter sequence, the
// shape of agency and organization abbreviations.
func isAcronym(s string) bool {
	runes := []rune(s)
	if len(runes) < 2 || len(runes) > 6 {
		return false
	}
	for _, r := range runes {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
