package recorder

import "DipSentinel/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordDailyCheck(_ *DailyCheck) error { return nil }

func (n *NoopRecorder) RecordTrigger(_ string, _ *model.TriggerEvent) error { return nil }

func (n *NoopRecorder) RecordBacktest(_ *model.BacktestSummary, _ []model.BacktestMonthResult) error {
	return nil
}

func (n *NoopRecorder) Close() error { return nil }
