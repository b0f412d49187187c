package ner

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

//go:embed lexicon.txt
var embeddedLexicon string

// GIVEN entries mark given names used as heads of PERSON runs. They are not
// emitted as a label of their own.
const labelGiven = "GIVEN"

var validLabels = map[string]bool{
	"PERSON":   true,
	"ORG":      true,
	"GPE":      true,
	"LOC":      true,
	"FAC":      true,
	"EVENT":    true,
	"LAW":      true,
	"DATE":     true,
	"MONEY":    true,
	labelGiven: true,
}

var folder = cases.Fold()

// foldKey normalizes a surface for lexicon lookup: NFKC, full case folding,
// collapsed inner whitespace.
func foldKey(s string) string {
	s = norm.NFKC.String(s)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// loadLexicon parses tab-separated "surface<TAB>LABEL[<TAB>canonical]" lines
// into the extractor's tables. The optional third field names the canonical
// form alternate spellings resolve to. Blank lines and lines starting with #
// are skipped. Later entries win, so an extra lexicon file can relabel
// embedded surfaces.
func (e *Extractor) loadLexicon(data string) error {
	for i, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		surface, rest, ok := strings.Cut(line, "\t")
		if !ok {
			return fmt.Errorf("line %d: missing tab separator", i+1)
		}
		label, canonical, _ := strings.Cut(rest, "\t")
		surface = strings.TrimSpace(surface)
		label = strings.TrimSpace(label)
		canonical = strings.TrimSpace(canonical)
		if surface == "" {
			return fmt.Errorf("line %d: empty surface", i+1)
		}
		if !validLabels[label] {
			return fmt.Errorf("line %d: unknown label %q", i+1, label)
		}

		key := foldKey(surface)
		if label == labelGiven {
			e.given[key] = true
			continue
		}
		ent := lexEntry{label: label, canonical: canonical}
		e.lexicon[key] = ent
		if isCJKSurface(key) {
			ent.surface = key
			e.cjk = append(e.cjk, ent)
		}
	}
	return nil
}

// isCJKSurface reports whether the surface is written in a script without
// word separators, which forces substring matching instead of token lookup.
func isCJKSurface(s string) bool {
	for _, r := range s {
		if isCJKRune(r) {
			return true
		}
	}
	return false
}

func isCJKRune(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK unified ideographs
		return true
	case r >= 0x3040 && r <= 0x30FF: // hiragana, katakana
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // hangul syllables
		return true
	default:
		return false
	}
}
