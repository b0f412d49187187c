// Package connector defines the contract every feed connector implements
// plus the helpers they share. A connector is one harvest source: Fetch
// produces one cycle's worth of records and returns; the supervisor decides
// when to call it again. Connectors keep all state per instance (seen sets,
// endpoint probes) and never touch global state, so any number of them can
// run concurrently.
package connector

import (
	"context"
	"log/slog"

	"github.com/mihasm/news-globe/internal/record"
)

// Connector is a source of ingestion records.
// Fetch must respect context cancellation and return promptly when the
// context is done, yielding whatever it has already produced or an error.
type Connector interface {
	// Name returns the stable source name (matches record.Sources).
	Name() string

	// Fetch performs one harvest cycle and returns the batch.
	Fetch(ctx context.Context) ([]record.Record, error)
}

// Factory creates a Connector from schedule configuration parameters.
// Factories validate required params, apply defaults, and return a fully
// constructed connector or a descriptive error. Factories must not start
// goroutines or perform I/O beyond validation.
//
// The config map comes from the supervisor's JSON schedule file, so values
// arrive with JSON types: numbers are float64, lists are []any. The Param*
// helpers in this package do the coercion.
//
// The logger parameter is optional. If nil, the connector disables logging.
type Factory func(cfg map[string]any, logger *slog.Logger) (Connector, error)
