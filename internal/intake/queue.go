// Package intake holds the hand-off queue between connector workers and the
// ingestion pipeline, plus the HTTP surface that exposes it. Raw records are
// appended by the supervisor and drained (consume-on-read) by the pipeline.
package intake

import (
	"sync"

	"github.com/mihasm/news-globe/internal/record"
)

// Queue is the shared FIFO of raw records. It also carries two config values
// read by external scrapers: tweet sources and search queries. All access is
// serialised under one mutex; this is the only cross-worker shared state.
type Queue struct {
	mu            sync.Mutex
	items         []record.Record
	tweetSources  map[string]bool
	searchQueries []string
}

// NewQueue creates a queue with the default scraper config.
func NewQueue() *Queue {
	return &Queue{
		tweetSources: map[string]bool{
			"home_timeline":        true,
			"search":               true,
			"home_latest_timeline": true,
		},
		searchQueries: []string{"breaking"},
	}
}

// Push appends a batch and returns the new queue size.
func (q *Queue) Push(items []record.Record) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	return len(q.items)
}

// Drain returns all queued records and clears the queue. A drained record is
// never returned twice. Always returns a non-nil slice.
func (q *Queue) Drain() []record.Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	if out == nil {
		out = []record.Record{}
	}
	return out
}

// Size returns the current number of queued records.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// TweetSources returns a copy of the tweet source toggles.
func (q *Queue) TweetSources() map[string]bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]bool, len(q.tweetSources))
	for k, v := range q.tweetSources {
		out[k] = v
	}
	return out
}

// SetTweetSources replaces the tweet source toggles.
func (q *Queue) SetTweetSources(sources map[string]bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tweetSources = make(map[string]bool, len(sources))
	for k, v := range sources {
		q.tweetSources[k] = v
	}
}

// SearchQueries returns a copy of the search query list.
func (q *Queue) SearchQueries() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.searchQueries))
	copy(out, q.searchQueries)
	return out
}

// SetSearchQueries replaces the search query list.
func (q *Queue) SetSearchQueries(queries []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.searchQueries = make([]string, len(queries))
	copy(q.searchQueries, queries)
}
