package recorder

import (
	"time"

	"DipSentinel/internal/model"
)

// DailyCheck is one completed live check.
type DailyCheck struct {
	Symbol            string
	Date              time.Time
	Close             float64
	DailyReturn       float64
	MonthStartPrice   float64
	CumulativeDecline float64
	Triggers          int
	Status            string // "ok", "no_data", "failed"
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordDailyCheck(chk *DailyCheck) error
	RecordTrigger(symbol string, ev *model.TriggerEvent) error
	RecordBacktest(summary *model.BacktestSummary, months []model.BacktestMonthResult) error
	Close() error
}
