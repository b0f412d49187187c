// Package mastodon harvests public microblog chatter from a set of Mastodon
// instances: each cycle sweeps the local public timeline plus one timeline
// per configured hashtag on every instance, in parallel with a bounded
// worker count. An unreachable instance costs only its own statuses.
package mastodon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mihasm/news-globe/internal/connector"
	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
)

// DefaultInstances is the default sweep set: general-purpose instances with
// busy local timelines.
var DefaultInstances = []string{
	"https://mastodon.social",
	"https://fosstodon.org",
	"https://mastodon.world",
	"https://hachyderm.io",
	"https://mstdn.social",
	"https://infosec.exchange",
	"https://newsie.social",
	"https://mastodon.online",
	"https://mstdn.party",
	"https://mastodon.uno",
	"https://mastodon.cloud",
	"https://mastodon.scot",
	"https://mastodon.nz",
	"https://mastodon.ie",
	"https://mastodon.green",
	"https://mastodon.sdf.org",
	"https://mastodon.me.uk",
	"https://mastodon.de",
	"https://mastodon.nl",
	"https://mastodon.sk",
}

// DefaultHashtags are the hashtag timelines swept on every instance.
var DefaultHashtags = []string{"news", "breaking", "earthquake", "protest"}

const statusLimit = 40

// Config holds Mastodon connector configuration.
type Config struct {
	Instances  []string      // defaults to DefaultInstances
	Hashtags   []string      // defaults to DefaultHashtags
	Timeout    time.Duration // per-instance request timeout, default 10s
	MaxWorkers int           // concurrent timeline fetches, default 8
	Logger     *slog.Logger
}

// Connector sweeps public and hashtag timelines.
type Connector struct {
	instances  []string
	hashtags   []string
	maxWorkers int
	client     *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Mastodon connector.
func New(cfg Config) *Connector {
	instances := cfg.Instances
	if len(instances) == 0 {
		instances = DefaultInstances
	}
	hashtags := cfg.Hashtags
	if len(hashtags) == 0 {
		hashtags = DefaultHashtags
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Connector{
		instances:  instances,
		hashtags:   hashtags,
		maxWorkers: maxWorkers,
		client:     connector.NewHTTPClient(timeout),
		logger:     logging.Default(cfg.Logger).With("component", "connector", "source", "mastodon"),
		now:        time.Now,
	}
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "mastodon" }

// status mirrors the Mastodon status fields we read.
type status struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Content   string `json:"content"`
	URL       string `json:"url"`
	Language  string `json:"language"`
	Reblog    any    `json:"reblog"`
	Account   struct {
		Acct        string `json:"acct"`
		DisplayName string `json:"display_name"`
	} `json:"account"`
	RepliesCount    int `json:"replies_count"`
	ReblogsCount    int `json:"reblogs_count"`
	FavouritesCount int `json:"favourites_count"`
	MediaAttachments []struct {
		URL string `json:"url"`
	} `json:"media_attachments"`
}

// Fetch sweeps every (instance, stream) pair and merges the results.
func (c *Connector) Fetch(ctx context.Context) ([]record.Record, error) {
	type target struct{ instance, stream string }
	var targets []target
	for _, inst := range c.instances {
		targets = append(targets, target{inst, "public:local"})
		for _, tag := range c.hashtags {
			targets = append(targets, target{inst, "tag:" + tag})
		}
	}

	var (
		mu      sync.Mutex
		records []record.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)

	for _, tg := range targets {
		g.Go(func() error {
			recs := c.fetchTimeline(gctx, tg.instance, tg.stream)
			mu.Lock()
			records = append(records, recs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	c.logger.Debug("mastodon fetch complete", "targets", len(targets), "records", len(records))
	return records, nil
}

// timelineURL builds the API URL for one stream on one instance.
func timelineURL(instance, stream string) string {
	base := strings.TrimRight(instance, "/")
	if tag, ok := strings.CutPrefix(stream, "tag:"); ok {
		return fmt.Sprintf("%s/api/v1/timelines/tag/%s?limit=%d", base, url.PathEscape(tag), statusLimit)
	}
	return fmt.Sprintf("%s/api/v1/timelines/public?local=true&limit=%d", base, statusLimit)
}

func (c *Connector) fetchTimeline(ctx context.Context, instance, stream string) []record.Record {
	var statuses []status
	if err := connector.GetJSON(ctx, c.client, timelineURL(instance, stream), &statuses); err != nil {
		c.logger.Warn("timeline fetch failed", "instance", instance, "stream", stream, "error", err)
		return nil
	}

	collected := c.now().Unix()
	records := make([]record.Record, 0, len(statuses))
	for i := range statuses {
		if rec, ok := c.toRecord(&statuses[i], instance, stream, collected); ok {
			records = append(records, rec)
		}
	}
	return records
}

func (c *Connector) toRecord(st *status, instance, stream string, collected int64) (record.Record, bool) {
	if st.URL == "" {
		return record.Record{}, false
	}
	text := strings.TrimSpace(connector.HTMLText(st.Content))

	rec := record.Record{
		Source:      "mastodon",
		SourceID:    st.URL, // status URLs are globally unique
		CollectedAt: collected,
		Title:       connector.Clip(text, 100),
		Text:        text,
		URL:         st.URL,
		Author:      st.Account.DisplayName,
		PublishedAt: st.CreatedAt,
		Entities: map[string]any{
			"instance":         instance,
			"stream":           stream,
			"status_id":        st.ID,
			"account_acct":     st.Account.Acct,
			"language":         st.Language,
			"reblog":           st.Reblog != nil,
			"replies_count":    st.RepliesCount,
			"reblogs_count":    st.ReblogsCount,
			"favourites_count": st.FavouritesCount,
		},
		Raw: st,
	}
	for _, m := range st.MediaAttachments {
		if m.URL != "" {
			rec.MediaURLs = append(rec.MediaURLs, m.URL)
		}
	}
	return rec, true
}
