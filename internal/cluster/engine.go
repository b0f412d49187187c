package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/schedule"
	"github.com/mihasm/news-globe/internal/store"
)

const (
	assignInterval  = 5 * time.Second
	assignBatchSize = 10000

	recalcInterval = 5 * time.Minute
	recalcWindow   = time.Hour

	cleanupInterval  = time.Hour
	cleanupBatchSize = 500
	defaultRetention = 30 * 24 * time.Hour

	indexLimit     = 5000
	maxTitleRunes  = 200
	fallbackTitle  = "No title"
	archiveTimeFmt = time.RFC3339
)

// ArchiveSink receives a serialized cluster before it is deleted. Name is
// unique per cluster; the reader yields the complete archive body.
type ArchiveSink interface {
	Store(ctx context.Context, name string, r io.Reader) error
}

// Config configures an Engine.
type Config struct {
	Store     *store.Store
	Extractor EntityExtractor

	// Archive, when set, receives retired clusters before deletion. A
	// cluster whose archive write fails is kept and retried next run.
	Archive ArchiveSink

	// Retention is how long an idle cluster survives before cleanup
	// retires it. Zero means 30 days.
	Retention time.Duration

	Logger *slog.Logger
}

// Engine owns the clustering loop: assigning unassigned items to clusters,
// refreshing derived cluster columns, and retiring idle clusters. It is the
// only writer of cluster rows and the only mutator of the match index.
type Engine struct {
	store     *store.Store
	archive   ArchiveSink
	logger    *slog.Logger
	retention time.Duration
	index     *Index
	matcher   *Matcher
	now       func() time.Time
}

// PassStats summarizes one assignment pass.
type PassStats struct {
	Processed   int // items examined
	Assigned    int // joined an existing cluster
	NewClusters int // seeded a new cluster
	Deferred    int // target cluster vanished mid-pass; retried next pass
	Failed      int // persistence errors
}

// New builds an Engine. Store and Extractor are required.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("cluster: store is required")
	}
	if cfg.Extractor == nil {
		return nil, errors.New("cluster: entity extractor is required")
	}
	logger := logging.Default(cfg.Logger).With("component", "cluster")
	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}

	e := &Engine{
		store:     cfg.Store,
		archive:   cfg.Archive,
		logger:    logger,
		retention: retention,
		index:     NewIndex(cfg.Extractor),
		now:       time.Now,
	}
	e.matcher = NewMatcher(e.index, e.refreshIndex)
	return e, nil
}

// Matcher exposes the engine's matcher for toggling match options.
func (e *Engine) Matcher() *Matcher {
	return e.matcher
}

// Register adds the engine's periodic jobs to the scheduler.
func (e *Engine) Register(s *schedule.Scheduler) error {
	if err := s.AddEvery("cluster:assign", assignInterval, e.runAssign); err != nil {
		return err
	}
	if err := s.AddEvery("cluster:recalculate", recalcInterval, e.runRecalculate); err != nil {
		return err
	}
	return s.AddEvery("cluster:cleanup", cleanupInterval, e.runCleanup)
}

func (e *Engine) runAssign() {
	if _, err := e.ProcessUnassigned(context.Background()); err != nil {
		e.logger.Error("assignment pass failed", "error", err)
	}
}

func (e *Engine) runRecalculate() {
	if _, err := e.Recalculate(context.Background()); err != nil {
		e.logger.Error("cluster recalculation failed", "error", err)
	}
}

func (e *Engine) runCleanup() {
	if _, err := e.Cleanup(context.Background()); err != nil {
		e.logger.Error("cluster cleanup failed", "error", err)
	}
}

// ProcessUnassigned assigns pending items to clusters, seeding new clusters
// for items nothing matches. At most assignBatchSize items are handled per
// pass, newest first; the rest wait for the next pass.
func (e *Engine) ProcessUnassigned(ctx context.Context) (PassStats, error) {
	var stats PassStats

	items, err := e.store.UnassignedItems(ctx, assignBatchSize)
	if err != nil {
		return stats, fmt.Errorf("load unassigned items: %w", err)
	}

	for i := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		it := &items[i]
		stats.Processed++

		text := itemText(it)
		createdAt := itemCreatedAt(it, e.now())

		match, ok := e.matcher.Assign(text, createdAt)
		if !ok {
			if err := e.createCluster(ctx, it, text, createdAt); err != nil {
				stats.Failed++
				e.logger.Error("seed cluster failed", "item", it.ID, "error", err)
				continue
			}
			stats.NewClusters++
			continue
		}

		err := e.store.AssignItem(ctx, it.ID, match.ClusterID, e.now())
		switch {
		case errors.Is(err, store.ErrStaleCluster):
			e.index.Remove(match.ClusterID)
			stats.Deferred++
		case err != nil:
			stats.Failed++
			e.logger.Error("assign item failed",
				"item", it.ID, "cluster", match.ClusterID, "error", err)
		default:
			stats.Assigned++
			e.logger.Debug("item assigned",
				"item", it.ID, "cluster", match.ClusterID,
				"score", match.Score, "match", match.Type)
		}
	}

	if stats.Processed > 0 {
		e.logger.Info("assignment pass complete",
			"processed", stats.Processed, "assigned", stats.Assigned,
			"new_clusters", stats.NewClusters, "deferred", stats.Deferred,
			"failed", stats.Failed)
	}
	return stats, nil
}

func (e *Engine) createCluster(ctx context.Context, it *store.Item, text string, createdAt time.Time) error {
	title := truncateRunes(text, maxTitleRunes)
	if title == "" {
		title = fallbackTitle
	}

	now := e.now()
	c := &store.Cluster{
		ID:              uuid.Must(uuid.NewV7()),
		Title:           title,
		RepLocationName: it.LocationName,
		RepLat:          it.Lat,
		RepLon:          it.Lon,
		FirstSeenAt:     &createdAt,
		LastSeenAt:      &createdAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.InsertCluster(ctx, c); err != nil {
		return err
	}
	if err := e.store.AssignItem(ctx, it.ID, c.ID, now); err != nil {
		return fmt.Errorf("attach seed item: %w", err)
	}

	e.index.AddOrUpdate(c.ID, title, &createdAt)
	e.logger.Debug("cluster seeded", "cluster", c.ID, "item", it.ID)
	return nil
}

// RefreshIndex rebuilds the match index from recently active clusters.
func (e *Engine) RefreshIndex(ctx context.Context) error {
	since := e.now().Add(-indexWindow)
	reps, err := e.store.RecentClusterTexts(ctx, since, indexLimit)
	if err != nil {
		return fmt.Errorf("refresh cluster index: %w", err)
	}
	e.index.Refresh(toRepTexts(reps))
	e.logger.Debug("cluster index refreshed", "clusters", e.index.Len())
	return nil
}

// refreshIndex is the matcher's refresh callback. Errors leave the current
// entries in place.
func (e *Engine) refreshIndex(window time.Duration) {
	since := e.now().Add(-window)
	reps, err := e.store.RecentClusterTexts(context.Background(), since, indexLimit)
	if err != nil {
		e.logger.Error("cluster index refresh failed", "error", err)
		return
	}
	e.index.Refresh(toRepTexts(reps))
}

// Recalculate refreshes derived columns of clusters updated within the last
// hour and returns how many were touched.
func (e *Engine) Recalculate(ctx context.Context) (int, error) {
	n, err := e.store.RecalculateClusters(ctx, e.now().Add(-recalcWindow))
	if err != nil {
		return 0, fmt.Errorf("recalculate clusters: %w", err)
	}
	if n > 0 {
		e.logger.Debug("cluster columns recalculated", "clusters", n)
	}
	return n, nil
}

// Cleanup retires clusters idle past the retention window: each is archived
// (when a sink is configured), then deleted with its items detached. Items
// return to the unassigned pool and may re-cluster later. Returns the number
// of clusters deleted.
func (e *Engine) Cleanup(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.retention)
	clusters, err := e.store.ClustersLastSeenBefore(ctx, cutoff, cleanupBatchSize)
	if err != nil {
		return 0, fmt.Errorf("load idle clusters: %w", err)
	}

	deleted := 0
	for i := range clusters {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		c := &clusters[i]

		if e.archive != nil {
			if err := e.archiveCluster(ctx, c); err != nil {
				e.logger.Error("cluster archive failed", "cluster", c.ID, "error", err)
				continue
			}
		}

		detached, err := e.store.DeleteCluster(ctx, c.ID)
		if err != nil {
			e.logger.Error("cluster delete failed", "cluster", c.ID, "error", err)
			continue
		}
		deleted++
		e.logger.Info("cluster retired",
			"cluster", c.ID, "items_detached", detached, "last_seen", c.LastSeenAt)
	}

	if deleted > 0 {
		e.logger.Info("cleanup pass complete", "deleted", deleted)
	}
	return deleted, nil
}

// archivedCluster is the header line of a cluster archive.
type archivedCluster struct {
	Type         string   `json:"type"`
	ClusterID    string   `json:"cluster_id"`
	Title        string   `json:"title,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	LocationName string   `json:"location_name,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	FirstSeenAt  string   `json:"first_seen_at,omitempty"`
	LastSeenAt   string   `json:"last_seen_at,omitempty"`
	ItemCount    int      `json:"item_count"`
	CreatedAt    string   `json:"created_at"`
}

// archivedItem is one member line of a cluster archive.
type archivedItem struct {
	Type         string   `json:"type"`
	Source       string   `json:"source"`
	SourceID     string   `json:"source_id"`
	Title        string   `json:"title,omitempty"`
	Text         string   `json:"text,omitempty"`
	URL          string   `json:"url,omitempty"`
	Author       string   `json:"author,omitempty"`
	LocationName string   `json:"location_name,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	PublishedAt  string   `json:"published_at,omitempty"`
	CollectedAt  string   `json:"collected_at"`
}

// archiveCluster writes the cluster and its members to the sink as
// zstd-compressed JSON lines named <cluster_id>.jsonl.zst. The first line is
// the cluster header, each following line one member item.
func (e *Engine) archiveCluster(ctx context.Context, c *store.Cluster) error {
	items, err := e.store.ItemsForCluster(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("load cluster items: %w", err)
	}

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}

	enc := json.NewEncoder(zw)
	header := archivedCluster{
		Type:         "cluster",
		ClusterID:    c.ID.String(),
		Title:        c.Title,
		Summary:      c.Summary,
		LocationName: c.RepLocationName,
		Lat:          c.RepLat,
		Lon:          c.RepLon,
		FirstSeenAt:  formatArchiveTime(c.FirstSeenAt),
		LastSeenAt:   formatArchiveTime(c.LastSeenAt),
		ItemCount:    c.ItemCount,
		CreatedAt:    c.CreatedAt.UTC().Format(archiveTimeFmt),
	}
	if err := enc.Encode(header); err != nil {
		zw.Close()
		return fmt.Errorf("encode cluster header: %w", err)
	}
	for i := range items {
		it := &items[i]
		line := archivedItem{
			Type:         "item",
			Source:       it.Source,
			SourceID:     it.SourceID,
			Title:        it.Title,
			Text:         it.Text,
			URL:          it.URL,
			Author:       it.Author,
			LocationName: it.LocationName,
			Lat:          it.Lat,
			Lon:          it.Lon,
			CollectedAt:  it.CollectedAt.UTC().Format(archiveTimeFmt),
		}
		if !it.PublishedAt.IsZero() {
			line.PublishedAt = it.PublishedAt.UTC().Format(archiveTimeFmt)
		}
		if err := enc.Encode(line); err != nil {
			zw.Close()
			return fmt.Errorf("encode cluster item: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}

	name := c.ID.String() + ".jsonl.zst"
	if err := e.archive.Store(ctx, name, &buf); err != nil {
		return fmt.Errorf("store archive %s: %w", name, err)
	}
	return nil
}

func formatArchiveTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(archiveTimeFmt)
}

// itemText joins an item's title and body the same way the index builds
// cluster representative text.
func itemText(it *store.Item) string {
	return strings.TrimSpace(strings.TrimSpace(it.Title) + " " + strings.TrimSpace(it.Text))
}

// itemCreatedAt picks an item's event time: published, else collected,
// else now.
func itemCreatedAt(it *store.Item, now time.Time) time.Time {
	if !it.PublishedAt.IsZero() {
		return it.PublishedAt
	}
	if !it.CollectedAt.IsZero() {
		return it.CollectedAt
	}
	return now
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func toRepTexts(texts []store.ClusterText) []RepText {
	reps := make([]RepText, 0, len(texts))
	for _, ct := range texts {
		rep := RepText{ClusterID: ct.ID, Text: ct.Text}
		if !ct.LastSeen.IsZero() {
			ls := ct.LastSeen
			rep.LastSeen = &ls
		}
		reps = append(reps, rep)
	}
	return reps
}
