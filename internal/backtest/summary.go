package backtest

import (
	"math"

	"DipSentinel/internal/calculator"
	"DipSentinel/internal/model"
)

// Summarize aggregates replayed months. Counts are months in which a type
// fired, not events.
func Summarize(symbol string, months []model.BacktestMonthResult) model.BacktestSummary {
	s := model.BacktestSummary{
		Symbol:      symbol,
		TotalMonths: len(months),
		Counts:      make(map[model.TriggerType]int, len(model.TriggerTypes)),
	}
	for _, t := range model.TriggerTypes {
		s.Counts[t] = 0
	}
	if len(months) == 0 {
		return s
	}
	s.FirstMonth = months[0].Month
	s.LastMonth = months[len(months)-1].Month

	returns := make([]float64, 0, len(months))
	declines := make([]float64, 0, len(months))
	s.BestMonthReturn = math.Inf(-1)
	s.WorstMonthReturn = math.Inf(1)
	for i := range months {
		m := &months[i]
		for _, t := range model.TriggerTypes {
			if m.Triggered(t) {
				s.Counts[t]++
			}
		}
		s.TotalTriggers += len(m.Triggers)
		if len(m.Triggers) > 0 {
			s.TriggerMonths++
		}
		if m.MonthReturn < 0 {
			s.DecliningMonths++
		}
		returns = append(returns, m.MonthReturn)
		declines = append(declines, m.MaxDecline)
		s.BestMonthReturn = math.Max(s.BestMonthReturn, m.MonthReturn)
		s.WorstMonthReturn = math.Min(s.WorstMonthReturn, m.MonthReturn)
		s.MaxDecline = math.Max(s.MaxDecline, m.MaxDecline)
	}
	s.AvgMonthReturn = calculator.Mean(returns)
	s.StdMonthReturn = calculator.PopulationStdDev(returns)
	s.AvgMaxDecline = calculator.Mean(declines)
	if s.DecliningMonths > 0 {
		c := float64(s.TriggerMonths) / float64(s.DecliningMonths)
		s.Coverage = &c
	}
	return s
}
