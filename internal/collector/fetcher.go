package collector

import (
	"context"
	"time"

	"DipSentinel/internal/model"
)

// Fetcher loads daily bars for a symbol. Implementations may return fewer bars
// than asked for and need not sort or de-duplicate them.
type Fetcher interface {
	FetchDailyBars(ctx context.Context, symbol string, count int) ([]model.DailyBar, error)
	Name() string
}

// RangeFetcher is implemented by fetchers that can load an explicit date range.
type RangeFetcher interface {
	FetchDailyRange(ctx context.Context, symbol string, from, to time.Time) ([]model.DailyBar, error)
}
