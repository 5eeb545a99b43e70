package strategy

import (
	"errors"
	"fmt"
	"time"

	"DipSentinel/internal/calculator"
	"DipSentinel/internal/model"
)

var (
	// ErrMonthMismatch is returned when a bar does not belong to the state's month.
	ErrMonthMismatch = errors.New("bar outside tracked month")
	// ErrStaleBar is returned when a bar precedes the state's last checked date.
	ErrStaleBar = errors.New("bar precedes last checked date")
)

// BreadthFunc returns the current market breadth on a 0-100 scale.
type BreadthFunc func() float64

// Engine evaluates daily bars against the monthly trigger rules.
type Engine struct {
	Rules Rules
}

// NewEngine creates an Engine for the given rules.
func NewEngine(rules Rules) *Engine {
	return &Engine{Rules: rules}
}

// Evaluate runs one day through the monthly state machine and returns the
// events that fired, in priority order: FirstDip or MonthlyDeadline, then
// SecondDip, then ThirdDip.
//
// st is updated in place only when evaluation succeeds; callers never see a
// partially evaluated state. breadth is called at most once, and only when
// SecondDip has fired and ThirdDip has not.
func (e *Engine) Evaluate(st *model.MonthlyTriggerState, bar model.DailyBar, breadth BreadthFunc) ([]model.TriggerEvent, error) {
	if bar.Month() != st.Month {
		return nil, fmt.Errorf("%w: bar %s, state %s", ErrMonthMismatch, bar.Date.Format(time.DateOnly), st.Month)
	}
	if last, ok := st.LastChecked(); ok && bar.Date.Before(last) {
		return nil, fmt.Errorf("%w: bar %s, last checked %s", ErrStaleBar, bar.Date.Format(time.DateOnly), st.LastCheckedDate)
	}

	next := st.Clone()
	if next.MonthStartPrice == nil {
		start := bar.StartPrice()
		next.MonthStartPrice = &start
	}
	low := bar.Close
	if next.MonthLowPrice != nil && *next.MonthLowPrice < low {
		low = *next.MonthLowPrice
	}
	next.MonthLowPrice = &low

	start := *next.MonthStartPrice
	decline := calculator.CumulativeDecline(start, bar.Close)

	var events []model.TriggerEvent
	fire := func(t model.TriggerType) *model.TriggerEvent {
		events = append(events, model.TriggerEvent{
			Date:              bar.Date,
			Type:              t,
			Condition:         e.Rules.Condition(t),
			DailyReturn:       bar.Return(),
			Price:             bar.Close,
			MonthStartPrice:   start,
			CumulativeDecline: decline,
		})
		return &events[len(events)-1]
	}

	// Stage 1: whichever alternative is met first resolves it for the month.
	switch {
	case !next.StageOneResolved() && e.Rules.isFirstDip(bar):
		fire(model.TriggerFirstDip)
		next.FirstDipTriggered = true
	case !next.StageOneResolved() && e.Rules.isDeadline(bar.Date):
		fire(model.TriggerMonthlyDeadline)
		next.MonthlyDeadlineTriggered = true
	}

	// Stage 2
	if !next.SecondDipTriggered && start > 0 && e.Rules.isSecondDip(decline) {
		fire(model.TriggerSecondDip)
		next.SecondDipTriggered = true
	}

	// Stage 3
	if next.SecondDipTriggered && !next.ThirdDipTriggered && breadth != nil {
		if b := breadth(); e.Rules.isThirdDip(b) {
			ev := fire(model.TriggerThirdDip)
			ev.MarketBreadth = &b
			next.ThirdDipTriggered = true
		}
	}

	next.LastCheckedDate = bar.Date.Format(time.DateOnly)
	*st = *next
	return events, nil
}

// Rollover returns st when it already tracks month, otherwise a fresh state
// for month. rolled reports whether the state was replaced.
func Rollover(st *model.MonthlyTriggerState, symbol string, month model.MonthKey) (next *model.MonthlyTriggerState, rolled bool) {
	if st != nil && st.Month == month {
		return st, false
	}
	return model.NewMonthlyTriggerState(symbol, month), true
}
