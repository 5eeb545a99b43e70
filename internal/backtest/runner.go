// Package backtest replays historical bars through the same monthly trigger
// engine the live monitor uses, one fresh state per calendar month.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"DipSentinel/internal/breadth"
	"DipSentinel/internal/calculator"
	"DipSentinel/internal/metrics"
	"DipSentinel/internal/model"
	"DipSentinel/internal/recorder"
	"DipSentinel/internal/strategy"
)

const (
	DefaultExtraDays      = 30
	DefaultMinTradingDays = 5
	volatilityWindow      = 5
	defaultVolatility     = 0.01
)

// HistorySource returns about days calendar days of prepared bars.
type HistorySource interface {
	History(ctx context.Context, days int) (*model.PriceSeries, error)
}

// Result is a finished replay.
type Result struct {
	Summary model.BacktestSummary
	Months  []model.BacktestMonthResult
}

// Runner replays a history window.
type Runner struct {
	Symbol         string
	History        HistorySource
	Engine         *strategy.Engine
	ExtraDays      int // lead days requested on top of the window
	MinTradingDays int // months with fewer bars are skipped
	Recorder       recorder.Recorder
	Metrics        *metrics.Metrics
	Clock          func() time.Time
}

// NewRunner creates a Runner with default lead days and month threshold.
func NewRunner(symbol string, history HistorySource, rules strategy.Rules) *Runner {
	return &Runner{
		Symbol:         symbol,
		History:        history,
		Engine:         strategy.NewEngine(rules),
		ExtraDays:      DefaultExtraDays,
		MinTradingDays: DefaultMinTradingDays,
		Recorder:       recorder.NewNoopRecorder(),
		Clock:          time.Now,
	}
}

// Run fetches windowDays (plus ExtraDays) of history and replays every month
// that has at least MinTradingDays bars.
func (r *Runner) Run(ctx context.Context, windowDays int) (*Result, error) {
	if windowDays <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d days", windowDays)
	}
	started := time.Now()
	log.Info().Str("symbol", r.Symbol).Int("days", windowDays).Msg("starting backtest")

	series, err := r.History.History(ctx, windowDays+r.ExtraDays)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	if len(series.Bars) == 0 {
		return nil, fmt.Errorf("fetch history: empty series for %s", r.Symbol)
	}
	log.Info().Int("bars", len(series.Bars)).
		Str("from", series.Bars[0].Date.Format(time.DateOnly)).
		Str("to", series.Bars[len(series.Bars)-1].Date.Format(time.DateOnly)).
		Msg("history loaded")

	res := &Result{}
	skipped := 0
	for _, bars := range calculator.GroupByMonth(series.Bars) {
		month := bars[0].Month()
		if len(bars) < r.MinTradingDays {
			log.Info().Stringer("month", month).Int("bars", len(bars)).Msg("skipping month with too few trading days")
			skipped++
			continue
		}
		mr, err := ReplayMonth(r.Engine, r.Symbol, bars)
		if err != nil {
			return nil, fmt.Errorf("replay %s: %w", month, err)
		}
		res.Months = append(res.Months, mr)
	}

	res.Summary = Summarize(r.Symbol, res.Months)
	res.Summary.RunID = uuid.NewString()
	res.Summary.GeneratedAt = r.Clock()
	res.Summary.SkippedMonths = skipped

	if err := r.Recorder.RecordBacktest(&res.Summary, res.Months); err != nil {
		log.Error().Err(err).Str("run_id", res.Summary.RunID).Msg("record backtest")
	}
	r.Metrics.BacktestCompleted(time.Since(started))
	log.Info().Str("run_id", res.Summary.RunID).Int("months", res.Summary.TotalMonths).
		Int("skipped", skipped).Int("triggers", res.Summary.TotalTriggers).Msg("backtest done")
	return res, nil
}

// ReplayMonth evaluates one month's bars in order against a fresh state.
// Breadth is simulated from the date and the trailing return volatility.
func ReplayMonth(engine *strategy.Engine, symbol string, bars []model.DailyBar) (model.BacktestMonthResult, error) {
	month := bars[0].Month()
	st := model.NewMonthlyTriggerState(symbol, month)
	start := bars[0].Open
	end := bars[len(bars)-1].Close

	mr := model.BacktestMonthResult{
		Month:       month,
		StartPrice:  start,
		EndPrice:    end,
		MonthReturn: calculator.PeriodReturn(start, end),
		TradingDays: len(bars),
	}

	for i, bar := range bars {
		if d := calculator.CumulativeDecline(start, bar.Close); d > mr.MaxDecline {
			mr.MaxDecline = d
		}
		events, err := engine.Evaluate(st, bar, func() float64 {
			return breadth.Seeded(bar.Date, TrailingVolatility(bars, i))
		})
		if err != nil {
			return mr, err
		}
		mr.Triggers = append(mr.Triggers, events...)
	}
	mr.FinalState = *st
	return mr, nil
}

// TrailingVolatility is the sample standard deviation of the daily returns
// of bars[i-4..i]. Early in the month, or with fewer than two returns, it is
// a flat 1%.
func TrailingVolatility(bars []model.DailyBar, i int) float64 {
	if i < volatilityWindow {
		return defaultVolatility
	}
	var returns []float64
	for _, b := range bars[max(0, i-volatilityWindow+1) : i+1] {
		if b.HasReturn {
			returns = append(returns, b.DailyReturn)
		}
	}
	v, err := calculator.StdDev(returns)
	if err != nil {
		return defaultVolatility
	}
	return v
}
