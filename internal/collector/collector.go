package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"DipSentinel/internal/calculator"
	"DipSentinel/internal/model"
)

// ErrNoBars is returned when a fetch produced no usable bar at all.
var ErrNoBars = errors.New("no bars returned")

// Collector fetches daily bars and prepares them for evaluation:
// sorted, one bar per date, daily returns filled in.
type Collector struct {
	Fetcher   Fetcher
	Symbol    string
	BatchDays int           // calendar days per range request during History
	Limiter   *rate.Limiter // paces consecutive range requests
	Now       func() time.Time
}

// NewCollector creates a Collector pacing history batches at one request per interval.
func NewCollector(fetcher Fetcher, symbol string, batchDays int, interval time.Duration) *Collector {
	if batchDays <= 0 {
		batchDays = 200
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Collector{
		Fetcher:   fetcher,
		Symbol:    symbol,
		BatchDays: batchDays,
		Limiter:   rate.NewLimiter(limit, 1),
		Now:       time.Now,
	}
}

// Recent returns the latest count bars.
func (c *Collector) Recent(ctx context.Context, count int) (*model.PriceSeries, error) {
	bars, err := c.Fetcher.FetchDailyBars(ctx, c.Symbol, count)
	if err != nil {
		return nil, fmt.Errorf("fetch daily bars from %s: %w", c.Fetcher.Name(), err)
	}
	return c.series(bars)
}

// History returns roughly days calendar days of bars ending today. Range
// capable fetchers are queried in BatchDays chunks; a failing chunk is logged
// and skipped. Other fetchers get a single request sized in trading days.
func (c *Collector) History(ctx context.Context, days int) (*model.PriceSeries, error) {
	rf, ok := c.Fetcher.(RangeFetcher)
	if !ok {
		bars, err := c.Fetcher.FetchDailyBars(ctx, c.Symbol, days*5/7+1)
		if err != nil {
			return nil, fmt.Errorf("fetch history from %s: %w", c.Fetcher.Name(), err)
		}
		return c.series(bars)
	}

	to := c.Now()
	from := to.AddDate(0, 0, -days)
	var all []model.DailyBar
	for start, batch := from, 1; start.Before(to); batch++ {
		end := start.AddDate(0, 0, c.BatchDays)
		if end.After(to) {
			end = to
		}
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		bars, err := rf.FetchDailyRange(ctx, c.Symbol, start, end)
		if err != nil {
			log.Warn().Err(err).Int("batch", batch).Str("symbol", c.Symbol).
				Str("from", start.Format(time.DateOnly)).Str("to", end.Format(time.DateOnly)).
				Msg("history batch failed, skipping")
		} else {
			all = append(all, bars...)
		}
		start = end.AddDate(0, 0, 1)
	}
	return c.series(all)
}

func (c *Collector) series(bars []model.DailyBar) (*model.PriceSeries, error) {
	prepared := calculator.PrepareSeries(bars)
	if len(prepared) == 0 {
		return nil, fmt.Errorf("%s: %w", c.Symbol, ErrNoBars)
	}
	log.Debug().Str("symbol", c.Symbol).Int("bars", len(prepared)).
		Str("first", prepared[0].Date.Format(time.DateOnly)).
		Str("last", prepared[len(prepared)-1].Date.Format(time.DateOnly)).
		Msg("price series prepared")
	return &model.PriceSeries{Symbol: c.Symbol, Bars: prepared, FetchedAt: c.Now()}, nil
}
