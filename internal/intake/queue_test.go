package intake

import (
	"testing"

	"github.com/mihasm/news-globe/internal/record"
)

func TestQueuePushAndDrain(t *testing.T) {
	q := NewQueue()

	size := q.Push([]record.Record{
		{Source: "usgs", SourceID: "a"},
		{Source: "usgs", SourceID: "b"},
	})
	if size != 2 {
		t.Fatalf("Push returned size %d, want 2", size)
	}

	size = q.Push([]record.Record{{Source: "rss", SourceID: "c"}})
	if size != 3 {
		t.Fatalf("second Push returned size %d, want 3", size)
	}

	items := q.Drain()
	if len(items) != 3 {
		t.Fatalf("Drain returned %d items, want 3", len(items))
	}
	// FIFO across pushes.
	if items[0].SourceID != "a" || items[2].SourceID != "c" {
		t.Errorf("unexpected drain order: %v, %v, %v", items[0].SourceID, items[1].SourceID, items[2].SourceID)
	}

	if q.Size() != 0 {
		t.Errorf("Size after drain = %d, want 0", q.Size())
	}
}

func TestQueueDrainTwice(t *testing.T) {
	q := NewQueue()
	q.Push([]record.Record{{Source: "usgs", SourceID: "a"}})

	first := q.Drain()
	if len(first) != 1 {
		t.Fatalf("first Drain returned %d items, want 1", len(first))
	}

	// Immediately draining again must return an empty, non-nil slice.
	second := q.Drain()
	if second == nil {
		t.Fatal("second Drain returned nil slice")
	}
	if len(second) != 0 {
		t.Fatalf("second Drain returned %d items, want 0", len(second))
	}
}

func TestQueueDefaults(t *testing.T) {
	q := NewQueue()

	sources := q.TweetSources()
	for _, name := range []string{"home_timeline", "search", "home_latest_timeline"} {
		if !sources[name] {
			t.Errorf("default tweet source %q should be enabled", name)
		}
	}

	queries := q.SearchQueries()
	if len(queries) != 1 || queries[0] != "breaking" {
		t.Errorf("default search queries = %v, want [breaking]", queries)
	}
}

func TestQueueConfigCopies(t *testing.T) {
	q := NewQueue()

	// Mutating a returned copy must not leak into the queue.
	sources := q.TweetSources()
	sources["search"] = false
	if !q.TweetSources()["search"] {
		t.Error("TweetSources copy mutation leaked into queue")
	}

	queries := q.SearchQueries()
	queries[0] = "mutated"
	if q.SearchQueries()[0] != "breaking" {
		t.Error("SearchQueries copy mutation leaked into queue")
	}

	// Mutating the input after Set must not leak either.
	in := map[string]bool{"search": true}
	q.SetTweetSources(in)
	in["search"] = false
	if !q.TweetSources()["search"] {
		t.Error("SetTweetSources kept a reference to caller's map")
	}
}
