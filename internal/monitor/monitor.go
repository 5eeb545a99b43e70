// Package monitor runs the live daily check: fetch today's bar, roll the
// month over when needed, evaluate the trigger rules, notify and persist.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"DipSentinel/internal/breadth"
	"DipSentinel/internal/calculator"
	"DipSentinel/internal/metrics"
	"DipSentinel/internal/model"
	"DipSentinel/internal/notifier"
	"DipSentinel/internal/recorder"
	"DipSentinel/internal/state"
	"DipSentinel/internal/strategy"
)

var (
	// ErrProviderUnavailable means the price provider could not be reached;
	// the day is skipped and the state is left untouched.
	ErrProviderUnavailable = errors.New("price provider unavailable")
	// ErrNoDataForToday means the fetched window has no bar for today yet.
	ErrNoDataForToday = errors.New("no bar for today")
)

// DefaultLookback is the number of recent bars fetched for a check.
const DefaultLookback = 60

// BarSource returns the most recent daily bars of the monitored symbol.
type BarSource interface {
	Recent(ctx context.Context, count int) (*model.PriceSeries, error)
}

// CheckResult describes one completed daily check.
type CheckResult struct {
	Symbol            string
	Date              time.Time
	Bar               model.DailyBar
	CumulativeDecline float64
	Rolled            bool
	Events            []model.TriggerEvent
	NotifyFailures    int
	State             *model.MonthlyTriggerState
}

// Monitor is the live daily check driver for one symbol.
type Monitor struct {
	Symbol   string
	Lookback int
	Location *time.Location
	Clock    func() time.Time

	Prices   BarSource
	Breadth  breadth.Provider
	Notifier notifier.Notifier
	Store    state.Store
	Recorder recorder.Recorder
	Engine   *strategy.Engine
	Metrics  *metrics.Metrics

	mu sync.Mutex // serializes daily checks

	viewMu sync.Mutex // guards last and saved, never held across I/O
	last   *CheckResult
	saved  *model.MonthlyTriggerState
}

// New creates a Monitor with the default lookback, the local clock and no-op
// notifier and recorder; callers replace what they need.
func New(symbol string, prices BarSource, bp breadth.Provider, store state.Store, rules strategy.Rules) *Monitor {
	return &Monitor{
		Symbol:   symbol,
		Lookback: DefaultLookback,
		Location: time.Local,
		Clock:    time.Now,
		Prices:   prices,
		Breadth:  bp,
		Notifier: notifier.Noop{},
		Store:    store,
		Recorder: recorder.NewNoopRecorder(),
		Engine:   strategy.NewEngine(rules),
	}
}

// RunDailyCheck evaluates today's bar. It returns ErrProviderUnavailable or
// ErrNoDataForToday (both wrapped) when the day cannot be evaluated; in that
// case nothing is persisted. Notification failures are logged and counted,
// never returned.
func (m *Monitor) RunDailyCheck(ctx context.Context) (*CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	started := time.Now()
	today := model.DateOf(m.Clock(), m.Location)
	logger := log.With().Str("symbol", m.Symbol).Str("date", today.Format(time.DateOnly)).Logger()
	logger.Info().Msg("running daily check")

	st := state.LoadOrDefault(m.Store, m.Symbol)

	series, err := m.Prices.Recent(ctx, m.Lookback)
	if err != nil {
		logger.Error().Err(err).Msg("fetch recent bars failed, skipping today")
		m.Metrics.CheckCompleted("provider_unavailable", time.Since(started))
		m.recordCheck(&recorder.DailyCheck{Symbol: m.Symbol, Date: today, Status: "provider_unavailable"})
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	bar, ok := calculator.FindBar(series.Bars, today)
	if !ok {
		logger.Info().Int("bars", len(series.Bars)).Msg("no bar for today yet, nothing to do")
		m.Metrics.CheckCompleted("no_data", time.Since(started))
		return nil, fmt.Errorf("%w: %s %s", ErrNoDataForToday, m.Symbol, today.Format(time.DateOnly))
	}

	next, rolled := strategy.Rollover(st, m.Symbol, bar.Month())
	if rolled {
		seedMonthStart(next, series.Bars)
		logger.Info().Stringer("from", st.Month).Stringer("to", next.Month).Msg("month rollover, state reset")
	}

	events, err := m.Engine.Evaluate(next, bar, func() float64 {
		v := m.Breadth.CurrentBreadth(ctx)
		logger.Info().Str("provider", m.Breadth.Name()).Float64("breadth", v).Msg("market breadth looked up")
		return v
	})
	if err != nil {
		logger.Error().Err(err).Msg("evaluate failed, state left untouched")
		m.Metrics.CheckCompleted("failed", time.Since(started))
		return nil, fmt.Errorf("evaluate %s: %w", today.Format(time.DateOnly), err)
	}

	res := &CheckResult{
		Symbol: m.Symbol,
		Date:   today,
		Bar:    bar,
		Rolled: rolled,
		Events: events,
		State:  next,
	}
	if next.MonthStartPrice != nil {
		res.CumulativeDecline = calculator.CumulativeDecline(*next.MonthStartPrice, bar.Close)
	}

	for i := range events {
		ev := &events[i]
		logger.Info().Str("trigger", string(ev.Type)).Str("condition", ev.Condition).
			Float64("price", ev.Price).Float64("decline", ev.CumulativeDecline).Msg("trigger fired")
		m.Metrics.TriggerFired(string(ev.Type))
		if err := m.Recorder.RecordTrigger(m.Symbol, ev); err != nil {
			logger.Error().Err(err).Msg("record trigger")
		}
		if err := m.Notifier.Send(ctx, notifier.FormatTrigger(m.Symbol, *ev)); err != nil {
			res.NotifyFailures++
			logger.Error().Err(err).Str("trigger", string(ev.Type)).Str("channel", m.Notifier.Name()).Msg("notification failed")
		}
	}

	var saved *model.MonthlyTriggerState
	if err := m.Store.Save(next); err != nil {
		logger.Error().Err(err).Msg("save state failed")
	} else {
		saved = next.Clone()
	}

	start := 0.0
	if next.MonthStartPrice != nil {
		start = *next.MonthStartPrice
	}
	m.recordCheck(&recorder.DailyCheck{
		Symbol:            m.Symbol,
		Date:              today,
		Close:             bar.Close,
		DailyReturn:       bar.Return(),
		MonthStartPrice:   start,
		CumulativeDecline: res.CumulativeDecline,
		Triggers:          len(events),
		Status:            "ok",
	})
	m.Metrics.ObservePosition(m.Symbol, bar.Close, res.CumulativeDecline)
	m.Metrics.CheckCompleted("ok", time.Since(started))

	logger.Info().Float64("close", bar.Close).Float64("return", bar.Return()).
		Float64("decline", res.CumulativeDecline).Int("triggers", len(events)).Msg("daily check done")
	m.viewMu.Lock()
	m.last = res
	m.saved = saved
	m.viewMu.Unlock()
	return res, nil
}

// seedMonthStart uses the open of the month's first bar in the window, so a
// monitor started mid-month measures the decline from the real month start.
func seedMonthStart(st *model.MonthlyTriggerState, bars []model.DailyBar) {
	for _, b := range bars {
		if b.Month() == st.Month {
			start := b.StartPrice()
			st.MonthStartPrice = &start
			return
		}
	}
}

func (m *Monitor) recordCheck(chk *recorder.DailyCheck) {
	if err := m.Recorder.RecordDailyCheck(chk); err != nil {
		log.Error().Err(err).Str("symbol", m.Symbol).Msg("record daily check")
	}
}

// State returns the persisted state, or a fresh one when none is stored.
// It does not wait for a running check; the store is read once and then
// served from the copy kept after each successful save.
func (m *Monitor) State() *model.MonthlyTriggerState {
	m.viewMu.Lock()
	saved := m.saved
	m.viewMu.Unlock()
	if saved != nil {
		return saved.Clone()
	}

	st := state.LoadOrDefault(m.Store, m.Symbol)
	m.viewMu.Lock()
	if m.saved == nil {
		m.saved = st.Clone()
	}
	m.viewMu.Unlock()
	return st
}

// StatusText renders the persisted state together with the last check of
// this process, if any.
func (m *Monitor) StatusText() string {
	st := m.State()

	m.viewMu.Lock()
	last := m.last
	m.viewMu.Unlock()

	if last != nil && last.State.Month == st.Month {
		bar := last.Bar
		return notifier.FormatStatus(st, &bar, last.CumulativeDecline)
	}
	return notifier.FormatStatus(st, nil, 0)
}
