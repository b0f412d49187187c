package mastodon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const timelineFixture = `[
  {
    "id": "113900000000000001",
    "created_at": "2026-01-17T09:05:00.000Z",
    "content": "<p>Strong shaking felt in <a href=\"#\">Tokyo</a> just now</p>",
    "url": "https://mastodon.example/@alice/113900000000000001",
    "language": "en",
    "reblog": null,
    "account": {"acct": "alice", "display_name": "Alice"},
    "replies_count": 3,
    "reblogs_count": 7,
    "favourites_count": 12
  },
  {"id": "2", "content": "no url, dropped", "url": "", "account": {}}
]`

func TestTimelineURL(t *testing.T) {
	cases := map[string]string{
		"public:local": "https://inst.example/api/v1/timelines/public?local=true&limit=40",
		"tag:news":     "https://inst.example/api/v1/timelines/tag/news?limit=40",
	}
	for stream, want := range cases {
		if got := timelineURL("https://inst.example/", stream); got != want {
			t.Errorf("timelineURL(%q) = %q, want %q", stream, got, want)
		}
	}
}

func TestFetch(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Write([]byte(timelineFixture))
	}))
	defer srv.Close()

	c := New(Config{Instances: []string{srv.URL}, Hashtags: []string{"news"}})
	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// public:local + tag:news, one valid status each.
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if len(paths) != 2 {
		t.Fatalf("got %d requests, want 2", len(paths))
	}

	var sawTag bool
	for _, p := range paths {
		if strings.Contains(p, "/timelines/tag/news") {
			sawTag = true
		}
	}
	if !sawTag {
		t.Errorf("hashtag timeline not requested: %v", paths)
	}

	rec := records[0]
	if rec.Source != "mastodon" {
		t.Errorf("source = %q", rec.Source)
	}
	if rec.Text != "Strong shaking felt in Tokyo just now" {
		t.Errorf("text = %q", rec.Text)
	}
	if rec.PublishedAt != "2026-01-17T09:05:00.000Z" {
		t.Errorf("published_at = %q", rec.PublishedAt)
	}
	if rec.Entities["account_acct"] != "alice" || rec.Entities["reblog"] != false {
		t.Errorf("entities = %v", rec.Entities)
	}
}
