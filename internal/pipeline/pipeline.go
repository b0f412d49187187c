// Package pipeline turns raw intake batches into normalized items. Each pass
// drains the intake queue and runs the batch through a fixed stage order:
// validate, dedupe within the batch, prefilter against the store, enrich
// missing locations via NER plus the gazetteer, then persist record by
// record. Cheap stages run first so the expensive enrichment only sees
// records that can still be inserted.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/mihasm/news-globe/internal/gazetteer"
	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/ner"
	"github.com/mihasm/news-globe/internal/record"
	"github.com/mihasm/news-globe/internal/schedule"
	"github.com/mihasm/news-globe/internal/store"
)

const (
	defaultBatchSize    = 250
	defaultPollInterval = 5 * time.Second
	maxResolveAttempts  = 5
	defaultStopwords    = "man,it,der"
)

// Drainer fetches and clears the raw intake queue. *intake.Client
// implements it.
type Drainer interface {
	Drain(ctx context.Context) ([]json.RawMessage, error)
}

// Config holds pipeline configuration.
type Config struct {
	Intake    Drainer
	Store     *store.Store
	Extractor *ner.Extractor
	Resolver  gazetteer.Resolver

	BatchSize    int           // default 250
	PollInterval time.Duration // default 5s

	// Stopwords are NER surfaces never treated as locations. Empty means the
	// LOC_STOPWORDS environment variable, falling back to "man,it,der".
	Stopwords []string

	Logger *slog.Logger
}

// Pipeline consumes the intake queue.
type Pipeline struct {
	intake    Drainer
	store     *store.Store
	extractor *ner.Extractor
	resolver  gazetteer.Resolver

	batchSize    int
	pollInterval time.Duration
	stopwords    map[string]bool
	logger       *slog.Logger

	counters counterSet
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Intake == nil {
		return nil, fmt.Errorf("pipeline: intake drainer required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("pipeline: store required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	words := cfg.Stopwords
	if len(words) == 0 {
		env := os.Getenv("LOC_STOPWORDS")
		if env == "" {
			env = defaultStopwords
		}
		words = strings.Split(env, ",")
	}
	stopwords := make(map[string]bool, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			stopwords[w] = true
		}
	}

	return &Pipeline{
		intake:       cfg.Intake,
		store:        cfg.Store,
		extractor:    cfg.Extractor,
		resolver:     cfg.Resolver,
		batchSize:    cfg.BatchSize,
		pollInterval: cfg.PollInterval,
		stopwords:    stopwords,
		logger:       logging.Default(cfg.Logger).With("component", "pipeline"),
	}, nil
}

// Register adds the poll job to the shared scheduler.
func (p *Pipeline) Register(s *schedule.Scheduler) error {
	return s.AddEvery("pipeline:poll", p.pollInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.pollInterval*10)
		defer cancel()
		if err := p.ProcessOnce(ctx); err != nil {
			p.logger.Error("pipeline pass failed", "error", err)
		}
	})
}

// Run polls the intake queue until ctx is cancelled. A failed pass sleeps
// the poll interval like an empty one; the queue redelivers nothing, but the
// next drain picks up whatever arrived since.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "poll_interval", p.pollInterval, "batch_size", p.batchSize)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if err := p.ProcessOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("pipeline pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce drains the queue and processes everything in it.
func (p *Pipeline) ProcessOnce(ctx context.Context) error {
	raw, err := p.intake.Drain(ctx)
	if err != nil {
		return fmt.Errorf("drain intake: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	// Individually malformed elements cost only themselves.
	records := make([]record.Record, 0, len(raw))
	for _, item := range raw {
		var rec record.Record
		if err := json.Unmarshal(item, &rec); err != nil {
			p.logger.Warn("unparseable intake element", "error", err)
			p.counters.add(counterValidationErrors, 1)
			continue
		}
		records = append(records, rec)
	}

	var firstErr error
	for start := 0; start < len(records); start += p.batchSize {
		end := min(start+p.batchSize, len(records))
		if err := p.processBatch(ctx, records[start:end]); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	snapshot := p.Counters()
	p.logger.Info("intake batch processed",
		"drained", len(raw),
		"processed", snapshot.Processed,
		"inserted", snapshot.Inserted,
		"duplicates", snapshot.SkippedDuplicates,
	)
	return firstErr
}

// processBatch runs the stage order on one batch. A failing record is
// counted and skipped; the first store error is returned after the whole
// batch has been attempted.
func (p *Pipeline) processBatch(ctx context.Context, batch []record.Record) error {
	valid := make([]record.Record, 0, len(batch))
	for i := range batch {
		p.counters.add(counterProcessed, 1)
		if problems := record.Validate(&batch[i]); len(problems) > 0 {
			p.logger.Warn("invalid record",
				"source", batch[i].Source, "source_id", batch[i].SourceID,
				"problems", strings.Join(problems, "; "))
			p.counters.add(counterValidationErrors, 1)
			continue
		}
		valid = append(valid, batch[i])
	}
	if len(valid) == 0 {
		return nil
	}

	valid = p.dedupeWithinBatch(valid)
	valid, err := p.filterAlreadyIngested(ctx, valid)
	if err != nil {
		return err
	}
	if len(valid) == 0 {
		return nil
	}

	p.enrichLocations(ctx, valid)

	var firstErr error
	for i := range valid {
		outcome, err := p.storeRecord(ctx, &valid[i])
		if err != nil {
			p.logger.Error("store failed",
				"source", valid[i].Source, "source_id", valid[i].SourceID, "error", err)
			p.counters.add(counterUnknownError, 1)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		p.counters.add(outcome, 1)
	}
	return firstErr
}

// dedupeWithinBatch drops repeated (source, source_id) pairs, keeping the
// first occurrence.
func (p *Pipeline) dedupeWithinBatch(records []record.Record) []record.Record {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for i := range records {
		key := records[i].Key()
		if seen[key] {
			p.counters.add(counterSkippedDuplicates, 1)
			continue
		}
		seen[key] = true
		out = append(out, records[i])
	}
	return out
}

// filterAlreadyIngested bulk-checks the store per source and drops records
// that already have a row, before any expensive enrichment.
func (p *Pipeline) filterAlreadyIngested(ctx context.Context, records []record.Record) ([]record.Record, error) {
	bySource := make(map[string][]string)
	for i := range records {
		bySource[records[i].Source] = append(bySource[records[i].Source], records[i].SourceID)
	}

	existing := make(map[string]bool)
	for source, ids := range bySource {
		found, err := p.store.ExistingIDs(ctx, source, ids)
		if err != nil {
			return nil, fmt.Errorf("prefilter %s: %w", source, err)
		}
		for id := range found {
			existing[source+"\x00"+id] = true
		}
	}
	if len(existing) == 0 {
		return records, nil
	}

	out := records[:0]
	for i := range records {
		if existing[records[i].Key()] {
			p.counters.add(counterSkippedDuplicates, 1)
			continue
		}
		out = append(out, records[i])
	}
	return out, nil
}

// enrichLocations fills in coordinates for records that lack them, using
// NER location surfaces resolved through the gazetteer. Resolution failures
// only cost the individual record its location.
func (p *Pipeline) enrichLocations(ctx context.Context, records []record.Record) {
	if p.extractor == nil || p.resolver == nil {
		return
	}

	for i := range records {
		rec := &records[i]
		if rec.HasCoordinates() {
			continue
		}
		combined := strings.TrimSpace(rec.Title + "\n" + rec.Text)
		if combined == "" {
			continue
		}
		p.counters.add(counterLocationNERAttempted, 1)

		candidates := p.locationCandidates(combined)
		if len(candidates) == 0 {
			continue
		}
		p.counters.add(counterLocationNERFound, 1)

		for _, surface := range candidates[:min(len(candidates), maxResolveAttempts)] {
			cand, err := p.resolver.Resolve(ctx, surface)
			if err != nil {
				p.logger.Warn("gazetteer lookup failed", "surface", surface, "error", err)
				continue
			}
			if cand == nil {
				continue
			}
			rec.LocationName = cand.Name
			rec.Lat = record.Float(cand.Lat)
			rec.Lon = record.Float(cand.Lon)
			p.counters.add(counterLocationResolved, 1)
			break
		}
	}
}

// locationCandidates extracts filtered LOC/GPE surfaces, deduplicated
// case-insensitively in first-seen order.
func (p *Pipeline) locationCandidates(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ent := range p.extractor.Extract(text) {
		if ent.Label != "LOC" && ent.Label != "GPE" {
			continue
		}
		surface := strings.TrimSpace(ent.Text)
		lower := strings.ToLower(surface)
		if utf8.RuneCountInString(surface) < 3 {
			continue
		}
		if p.stopwords[lower] {
			continue
		}
		// Single all-lowercase tokens are the classic NER false positive.
		if !strings.ContainsRune(surface, ' ') && isAllLower(surface) {
			continue
		}
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, surface)
	}
	return out
}

// isAllLower reports whether s contains at least one cased rune and no
// uppercase ones. Uncased scripts are never "lowercase".
func isAllLower(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			return false
		}
		if unicode.IsLower(r) {
			cased = true
		}
	}
	return cased
}

// storeRecord persists one record in its own transaction and classifies the
// outcome. Only genuine store failures surface as errors.
func (p *Pipeline) storeRecord(ctx context.Context, rec *record.Record) (counter, error) {
	// EMSC earthquake bots on Mastodon shadow the USGS/GDACS feeds.
	if rec.Source == "mastodon" && strings.Contains(rec.SourceID, "emsc") {
		return counterIgnored, nil
	}
	if !rec.HasCoordinates() {
		return counterNoLocationData, nil
	}
	if strings.TrimSpace(rec.PublishedAt) == "" {
		return counterMissingPublishedAt, nil
	}

	collectedAt, err := record.ParseEpoch(rec.CollectedAt)
	if err != nil {
		p.logger.Warn("invalid collected_at",
			"source", rec.Source, "source_id", rec.SourceID, "collected_at", rec.CollectedAt)
		return counterInvalidCollectedAt, nil
	}
	publishedAt, err := record.ParseISO(rec.PublishedAt)
	if err != nil {
		p.logger.Warn("invalid published_at",
			"source", rec.Source, "source_id", rec.SourceID, "published_at", rec.PublishedAt)
		return counterInvalidPublishedAt, nil
	}

	inserted, err := p.store.UpsertItem(ctx, &store.Item{
		Source:       rec.Source,
		SourceID:     rec.SourceID,
		CollectedAt:  collectedAt,
		PublishedAt:  publishedAt,
		Title:        rec.Title,
		Text:         rec.Text,
		URL:          rec.URL,
		Author:       rec.Author,
		MediaURLs:    rec.MediaURLs,
		Entities:     rec.Entities,
		LocationName: rec.LocationName,
		Lat:          rec.Lat,
		Lon:          rec.Lon,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return counterUnknownError, err
	}
	if inserted {
		return counterInserted, nil
	}
	// Lost a race with another writer after the prefilter.
	return counterSkippedDuplicates, nil
}
