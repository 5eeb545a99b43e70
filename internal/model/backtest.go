package model

import "time"

// BacktestMonthResult is one replayed month. Immutable once the month is exhausted.
type BacktestMonthResult struct {
	Month       MonthKey            `json:"month"`
	StartPrice  float64             `json:"month_start_price"`
	EndPrice    float64             `json:"month_end_price"`
	MonthReturn float64             `json:"month_return"`
	MaxDecline  float64             `json:"max_decline"`
	TradingDays int                 `json:"trading_days"`
	Triggers    []TriggerEvent      `json:"triggers"`
	FinalState  MonthlyTriggerState `json:"final_state"`
}

// Triggered reports whether any event of type t fired this month.
func (r *BacktestMonthResult) Triggered(t TriggerType) bool {
	return r.FinalState.Triggered(t)
}

// BacktestSummary aggregates a whole replay window.
type BacktestSummary struct {
	RunID            string              `json:"run_id"`
	Symbol           string              `json:"symbol"`
	GeneratedAt      time.Time           `json:"generated_at"`
	FirstMonth       MonthKey            `json:"first_month"`
	LastMonth        MonthKey            `json:"last_month"`
	TotalMonths      int                 `json:"total_months"`
	SkippedMonths    int                 `json:"skipped_months"`
	Counts           map[TriggerType]int `json:"trigger_counts"`
	TotalTriggers    int                 `json:"total_triggers"`
	TriggerMonths    int                 `json:"trigger_months"`
	DecliningMonths  int                 `json:"declining_months"`
	Coverage         *float64            `json:"coverage"` // nil when no month declined
	AvgMonthReturn   float64             `json:"avg_month_return"`
	StdMonthReturn   float64             `json:"std_month_return"`
	BestMonthReturn  float64             `json:"best_month_return"`
	WorstMonthReturn float64             `json:"worst_month_return"`
	AvgMaxDecline    float64             `json:"avg_max_decline"`
	MaxDecline       float64             `json:"max_decline"`
}

// Period renders the replayed month range, e.g. "2024-08 to 2025-05".
func (s *BacktestSummary) Period() string {
	if s.TotalMonths == 0 {
		return "No data"
	}
	return s.FirstMonth.String() + " to " + s.LastMonth.String()
}

// TriggersPerMonth is the mean number of events per replayed month.
func (s *BacktestSummary) TriggersPerMonth() float64 {
	if s.TotalMonths == 0 {
		return 0
	}
	return float64(s.TotalTriggers) / float64(s.TotalMonths)
}

// Share returns the fraction of months in which t fired.
func (s *BacktestSummary) Share(t TriggerType) float64 {
	if s.TotalMonths == 0 {
		return 0
	}
	return float64(s.Counts[t]) / float64(s.TotalMonths)
}
