package pipeline

import "sync"

// counter identifies one pipeline counter.
type counter int

const (
	counterProcessed counter = iota
	counterInserted
	counterSkippedDuplicates
	counterValidationErrors
	counterNoLocationData
	counterMissingPublishedAt
	counterInvalidCollectedAt
	counterInvalidPublishedAt
	counterIgnored
	counterLocationNERAttempted
	counterLocationNERFound
	counterLocationResolved
	counterUnknownError
	counterCount
)

// counterSet is the pipeline's internal accumulator.
type counterSet struct {
	mu sync.Mutex
	v  [counterCount]int64
}

func (c *counterSet) add(which counter, n int64) {
	c.mu.Lock()
	c.v[which] += n
	c.mu.Unlock()
}

// Counters is a snapshot of pipeline activity since start.
type Counters struct {
	Processed            int64 `json:"processed"`
	Inserted             int64 `json:"inserted"`
	SkippedDuplicates    int64 `json:"skipped_duplicates"`
	ValidationErrors     int64 `json:"validation_errors"`
	NoLocationData       int64 `json:"no_location_data"`
	MissingPublishedAt   int64 `json:"missing_published_at"`
	InvalidCollectedAt   int64 `json:"invalid_collected_at"`
	InvalidPublishedAt   int64 `json:"invalid_published_at"`
	Ignored              int64 `json:"ignored"`
	LocationNERAttempted int64 `json:"location_ner_attempted"`
	LocationNERFound     int64 `json:"location_ner_found"`
	LocationResolved     int64 `json:"location_resolved"`
	UnknownError         int64 `json:"unknown_error"`
}

// Counters returns a copy of the current counts, safe to read and marshal.
func (p *Pipeline) Counters() Counters {
	p.counters.mu.Lock()
	defer p.counters.mu.Unlock()
	v := p.counters.v
	return Counters{
		Processed:            v[counterProcessed],
		Inserted:             v[counterInserted],
		SkippedDuplicates:    v[counterSkippedDuplicates],
		ValidationErrors:     v[counterValidationErrors],
		NoLocationData:       v[counterNoLocationData],
		MissingPublishedAt:   v[counterMissingPublishedAt],
		InvalidCollectedAt:   v[counterInvalidCollectedAt],
		InvalidPublishedAt:   v[counterInvalidPublishedAt],
		Ignored:              v[counterIgnored],
		LocationNERAttempted: v[counterLocationNERAttempted],
		LocationNERFound:     v[counterLocationNERFound],
		LocationResolved:     v[counterLocationResolved],
		UnknownError:         v[counterUnknownError],
	}
}
