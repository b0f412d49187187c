// Package ner extracts named entities from multilingual news text without a
// model runtime. It combines an embedded lexicon of places, organizations, and
// given names with capitalized-run chunking for bicameral scripts, trigger-word
// classification, and pattern rules for dates and money. Both the ingestion
// pipeline (LOC/GPE surfaces for geocoding) and the clustering engine (the full
// label set for signatures) run the same extractor, so labels stay consistent
// across the system.
package ner

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mihasm/news-globe/internal/logging"
)

// Entity is a labelled span found in the input text. Text is the matched
// surface, except for lexicon entries that declare a canonical form, where
// alternate spellings of one name ("Tokio", "Токио") converge on it. Label is
// one of PERSON, ORG, GPE, LOC, FAC, EVENT, LAW, DATE, or MONEY.
type Entity struct {
	Text  string
	Label string
}

// Config configures an Extractor.
type Config struct {
	// LexiconPath names an optional extra lexicon file merged over the
	// embedded one. A configured path that cannot be read is an error.
	LexiconPath string
	Logger      *slog.Logger
}

// Extractor recognizes entities in text. It is safe for concurrent use once
// constructed; the lexicon is read-only after New.
type Extractor struct {
	lexicon map[string]lexEntry
	given   map[string]bool
	cjk     []lexEntry
	logger  *slog.Logger
}

// lexEntry is one lexicon row. surface is only set for CJK entries, which
// are matched by substring scan rather than map lookup.
type lexEntry struct {
	surface   string
	label     string
	canonical string
}

// entityText returns the form an entity built from this entry should carry:
// the declared canonical form when present, else the matched surface.
func (le lexEntry) entityText(surface string) string {
	if le.canonical != "" {
		return le.canonical
	}
	return surface
}

// New builds an Extractor from the embedded lexicon, merged with the extra
// lexicon file when Config.LexiconPath is set.
func New(cfg Config) (*Extractor, error) {
	e := &Extractor{
		lexicon: make(map[string]lexEntry),
		given:   make(map[string]bool),
		logger:  logging.Default(cfg.Logger).With("component", "ner"),
	}
	if err := e.loadLexicon(embeddedLexicon); err != nil {
		return nil, fmt.Errorf("embedded lexicon: %w", err)
	}

	if cfg.LexiconPath != "" {
		data, err := os.ReadFile(cfg.LexiconPath)
		if err != nil {
			return nil, fmt.Errorf("read lexicon %s: %w", cfg.LexiconPath, err)
		}
		if err := e.loadLexicon(string(data)); err != nil {
			return nil, fmt.Errorf("parse lexicon %s: %w", cfg.LexiconPath, err)
		}
		e.logger.Info("extra lexicon loaded", "path", cfg.LexiconPath)
	}

	e.logger.Debug("ner lexicon ready", "entries", len(e.lexicon), "given_names", len(e.given))
	return e, nil
}

// Extract returns the entities found in text, in order of first occurrence.
// Repeated mentions of the same surface and label are reported once.
func (e *Extractor) Extract(text string) []Entity {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		out  []Entity
		seen = make(map[string]bool)
	)
	add := func(ent Entity) {
		key := ent.Label + "\x00" + foldKey(ent.Text)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, ent)
	}

	for _, ent := range e.extractRuns(text) {
		add(ent)
	}
	for _, ent := range e.extractUncased(text) {
		add(ent)
	}
	for _, ent := range extractDates(text) {
		add(ent)
	}
	for _, ent := range extractMoney(text) {
		add(ent)
	}
	return out
}
