package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DipSentinel/internal/calculator"
	"DipSentinel/internal/model"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func bar(date time.Time, open, close, ret float64) model.DailyBar {
	return model.DailyBar{Date: date, Open: open, High: open, Low: close, Close: close, DailyReturn: ret, HasReturn: true}
}

// countingBreadth returns value and counts how often it was asked.
func countingBreadth(value float64, calls *int) BreadthFunc {
	return func() float64 {
		*calls++
		return value
	}
}

func newState(m time.Month) *model.MonthlyTriggerState {
	return model.NewMonthlyTriggerState("RSP", model.MonthKey{Year: 2024, Month: m})
}

func types(events []model.TriggerEvent) []model.TriggerType {
	out := make([]model.TriggerType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestEvaluate_FirstDipOnDayTwo(t *testing.T) {
	e := NewEngine(DefaultRules())
	st := newState(time.August)

	events, err := e.Evaluate(st, bar(day(time.August, 1), 100, 100.5, 0.004), nil)
	require.NoError(t, err)
	assert.Empty(t, events)
	require.NotNil(t, st.MonthStartPrice)
	assert.Equal(t, 100.0, *st.MonthStartPrice)

	events, err = e.Evaluate(st, bar(day(time.August, 2), 100.4, 99.294, -0.012), nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, model.TriggerFirstDip, ev.Type)
	assert.Equal(t, 99.294, ev.Price)
	assert.InDelta(t, -0.012, ev.DailyReturn, 1e-12)
	assert.InDelta(t, (100-99.294)/100, ev.CumulativeDecline, 1e-12)
	assert.Equal(t, "日跌幅≥1%", ev.Condition)
	assert.Nil(t, ev.MarketBreadth)
	assert.True(t, st.FirstDipTriggered)
	assert.Equal(t, "2024-08-02", st.LastCheckedDate)
}

func TestEvaluate_MissingOpenStartsMonthAtClose(t *testing.T) {
	e := NewEngine(DefaultRules())
	st := newState(time.August)

	first := bar(day(time.August, 1), 0, 100, 0)
	first.HasReturn = false
	_, err := e.Evaluate(st, first, nil)
	require.NoError(t, err)
	require.NotNil(t, st.MonthStartPrice)
	assert.Equal(t, 100.0, *st.MonthStartPrice)

	calls := 0
	events, err := e.Evaluate(st, bar(day(time.August, 2), 96, 90, -0.0625), countingBreadth(30, &calls))
	require.NoError(t, err)
	assert.Contains(t, types(events), model.TriggerSecondDip)
	assert.InDelta(t, 0.1, events[0].CumulativeDecline, 1e-12)
}

func TestEvaluate_MonthlyDeadlineOnThirdFriday(t *testing.T) {
	e := NewEngine(DefaultRules())
	st := newState(time.August)

	var fired []model.TriggerEvent
	price := 100.0
	for d := 1; d <= 30; d++ {
		date := day(time.August, d)
		if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			continue
		}
		events, err := e.Evaluate(st, bar(date, price, price*1.001, 0.001), nil)
		require.NoError(t, err)
		fired = append(fired, events...)
		price *= 1.001
	}

	require.Len(t, fired, 1)
	assert.Equal(t, model.TriggerMonthlyDeadline, fired[0].Type)
	assert.Equal(t, 16, fired[0].Date.Day())
	assert.Equal(t, "第三个周五到期", fired[0].Condition)
	assert.True(t, st.MonthlyDeadlineTriggered)
	assert.False(t, st.FirstDipTriggered)
}

func TestEvaluate_FirstDipWinsTieWithDeadline(t *testing.T) {
	e := NewEngine(DefaultRules())
	st := newState(time.August)

	events, err := e.Evaluate(st, bar(day(time.August, 16), 100, 98.5, -0.015), nil)
	require.NoError(t, err)
	assert.Equal(t, []model.TriggerType{model.TriggerFirstDip}, types(events))
	assert.True(t, st.FirstDipTriggered)
	assert.False(t, st.MonthlyDeadlineTriggered)
}

func TestEvaluate_StageOneAlternativesAreExclusive(t *testing.T) {
	e := NewEngine(DefaultRules())
	st := newState(time.August)

	_, err := e.Evaluate(st, bar(day(time.August, 16), 100, 100, 0), nil)
	require.NoError(t, err)
	require.True(t, st.MonthlyDeadlineTriggered)

	events, err := e.Evaluate(st, bar(day(time.August, 19), 100, 98, -0.02), nil)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.False(t, st.FirstDipTriggered)
}

func TestEvaluate_SecondThenThirdDip(t *testing.T) {
	e := NewEngine(DefaultRules())
	st := newState(time.August)
	calls := 0

	closes := map[int]float64{1: 99.5, 2: 99, 5: 98.5, 6: 98, 7: 97.5, 8: 97, 9: 96, 12: 94.9, 13: 94.5, 14: 94.4}
	var all []model.TriggerEvent
	for _, d := range []int{1, 2, 5, 6, 7, 8, 9} {
		events, err := e.Evaluate(st, bar(day(time.August, d), 100, closes[d], -0.005), countingBreadth(30, &calls))
		require.NoError(t, err)
		all = append(all, events...)
	}
	assert.Empty(t, all)
	assert.Zero(t, calls, "breadth must not be fetched before the second dip")

	// Day 12: decline 5.1% -> SecondDip; breadth 30 does not fire ThirdDip.
	events, err := e.Evaluate(st, bar(day(time.August, 12), 96, closes[12], -0.0115), countingBreadth(30, &calls))
	require.NoError(t, err)
	assert.Equal(t, []model.TriggerType{model.TriggerFirstDip, model.TriggerSecondDip}, types(events))
	assert.Equal(t, 1, calls)

	// Day 14: breadth 10 -> ThirdDip carrying the breadth value.
	events, err = e.Evaluate(st, bar(day(time.August, 14), 94.5, closes[14], -0.001), countingBreadth(10, &calls))
	require.NoError(t, err)
	require.Equal(t, []model.TriggerType{model.TriggerThirdDip}, types(events))
	require.NotNil(t, events[0].MarketBreadth)
	assert.Equal(t, 10.0, *events[0].MarketBreadth)
	assert.InDelta(t, 0.056, events[0].CumulativeDecline, 1e-9)
	assert.Equal(t, "市场宽度<15%", events[0].Condition)
	assert.Equal(t, 2, calls)

	// Stage 3 is done: no more lookups.
	_, err = e.Evaluate(st, bar(day(time.August, 15), 94.4, 90, -0.04), countingBreadth(5, &calls))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestEvaluate_AllStagesSameDay(t *testing.T) {
	e := NewEngine(DefaultRules())
	st := newState(time.August)

	_, err := e.Evaluate(st, bar(day(time.August, 1), 100, 100, 0), nil)
	require.NoError(t, err)
	calls := 0
	events, err := e.Evaluate(st, bar(day(time.August, 2), 100, 94, -0.06), countingBreadth(12, &calls))
	require.NoError(t, err)
	assert.Equal(t, []model.TriggerType{model.TriggerFirstDip, model.TriggerSecondDip, model.TriggerThirdDip}, types(events))
	assert.Equal(t, 1, calls)
}

func TestEvaluate_NoSecondDipWhenDeclineStaysSmall(t *testing.T) {
	e := NewEngine(DefaultRules())
	st := newState(time.August)
	calls := 0
	for d := 1; d <= 30; d++ {
		date := day(time.August, d)
		if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			continue
		}
		_, err := e.Evaluate(st, bar(date, 100, 96, -0.002), countingBreadth(1, &calls))
		require.NoError(t, err)
	}
	assert.False(t, st.SecondDipTriggered)
	assert.False(t, st.ThirdDipTriggered)
	assert.Zero(t, calls)
}

func TestEvaluate_IdempotentForSameBar(t *testing.T) {
	e := NewEngine(DefaultRules())
	st := newState(time.August)
	_, err := e.Evaluate(st, bar(day(time.August, 1), 100, 100, 0), nil)
	require.NoError(t, err)

	b := bar(day(time.August, 2), 100, 93, -0.07)
	first, err := e.Evaluate(st, b, countingBreadth(40, new(int)))
	require.NoError(t, err)
	assert.Len(t, first, 2)

	again, err := e.Evaluate(st, b, countingBreadth(40, new(int)))
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestEvaluate_MonthLowIsNonIncreasing(t *testing.T) {
	e := NewEngine(DefaultRules())
	st := newState(time.August)
	closes := []float64{100, 98, 99, 97, 101, 96, 100}
	prev := closes[0] + 1
	for i, c := range closes {
		_, err := e.Evaluate(st, bar(day(time.August, i+1), 100, c, 0), nil)
		require.NoError(t, err)
		require.NotNil(t, st.MonthLowPrice)
		assert.LessOrEqual(t, *st.MonthLowPrice, prev)
		prev = *st.MonthLowPrice
	}
	assert.Equal(t, 96.0, prev)
}

func TestEvaluate_PreconditionViolationsLeaveStateUntouched(t *testing.T) {
	e := NewEngine(DefaultRules())
	st := newState(time.August)
	_, err := e.Evaluate(st, bar(day(time.August, 5), 100, 100, 0), nil)
	require.NoError(t, err)
	before := st.Clone()

	_, err = e.Evaluate(st, bar(day(time.September, 3), 100, 90, -0.1), nil)
	assert.ErrorIs(t, err, ErrMonthMismatch)

	_, err = e.Evaluate(st, bar(day(time.August, 2), 100, 90, -0.1), nil)
	assert.ErrorIs(t, err, ErrStaleBar)

	assert.Equal(t, before, st)
}

func TestEvaluate_FirstBarWithoutReturnIsFlat(t *testing.T) {
	e := NewEngine(DefaultRules())
	st := newState(time.August)
	events, err := e.Evaluate(st, model.DailyBar{Date: day(time.August, 1), Open: 100, Close: 99}, nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRollover(t *testing.T) {
	st := newState(time.August)
	st.FirstDipTriggered = true
	st.SecondDipTriggered = true
	start, low := 100.0, 94.0
	st.MonthStartPrice, st.MonthLowPrice = &start, &low

	same, rolled := Rollover(st, "RSP", model.MonthKey{Year: 2024, Month: time.August})
	assert.False(t, rolled)
	assert.Same(t, st, same)

	next, rolled := Rollover(st, "RSP", model.MonthKey{Year: 2024, Month: time.September})
	assert.True(t, rolled)
	assert.Equal(t, model.MonthKey{Year: 2024, Month: time.September}, next.Month)
	for _, tt := range model.TriggerTypes {
		assert.False(t, next.Triggered(tt))
	}
	assert.Nil(t, next.MonthStartPrice)
	assert.Nil(t, next.MonthLowPrice)

	fresh, rolled := Rollover(nil, "RSP", model.MonthKey{Year: 2024, Month: time.September})
	assert.True(t, rolled)
	assert.Equal(t, "RSP", fresh.Symbol)
}

func TestEvaluate_InvariantsHoldOverRandomWalk(t *testing.T) {
	e := NewEngine(DefaultRules())
	st := newState(time.March)
	returns := []float64{-0.004, 0.006, -0.008, -0.02, 0.01, -0.015, -0.03, 0.002, -0.025, 0.004, -0.01, 0.0, -0.02, 0.03, -0.012, 0.005, -0.007, 0.001, -0.004, 0.002, -0.001}
	price := 50.0
	d := day(time.March, 1)
	for _, r := range returns {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		open := price
		price *= 1 + r
		_, err := e.Evaluate(st, bar(d, open, price, r), func() float64 { return calculator.Mean([]float64{5, 20}) })
		require.NoError(t, err)

		assert.False(t, st.FirstDipTriggered && st.MonthlyDeadlineTriggered)
		if st.SecondDipTriggered {
			assert.NotNil(t, st.MonthStartPrice)
		}
		if st.ThirdDipTriggered {
			assert.True(t, st.SecondDipTriggered)
		}
		d = d.AddDate(0, 0, 1)
	}
}

func TestRules_CustomConditionText(t *testing.T) {
	r := Rules{FirstDipReturn: -0.015, SecondDipDecline: 0.08, BreadthThreshold: 12.5, DeadlineWeekday: time.Wednesday, DeadlineOccurrence: 2}
	assert.Equal(t, "日跌幅≥1.5%", r.Condition(model.TriggerFirstDip))
	assert.Equal(t, "第二个周三到期", r.Condition(model.TriggerMonthlyDeadline))
	assert.Equal(t, "月累计跌幅≥8%", r.Condition(model.TriggerSecondDip))
	assert.Equal(t, "市场宽度<12.5%", r.Condition(model.TriggerThirdDip))
}
