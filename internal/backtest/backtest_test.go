package backtest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DipSentinel/internal/calculator"
	"DipSentinel/internal/model"
	"DipSentinel/internal/recorder"
	"DipSentinel/internal/strategy"
)

type fakeHistory struct {
	bars      []model.DailyBar
	requested int
}

func (f *fakeHistory) History(_ context.Context, days int) (*model.PriceSeries, error) {
	f.requested = days
	return &model.PriceSeries{Symbol: "RSP", Bars: calculator.PrepareSeries(f.bars)}, nil
}

type captureRecorder struct {
	summary *model.BacktestSummary
	months  int
}

func (c *captureRecorder) RecordDailyCheck(*recorder.DailyCheck) error { return nil }

func (c *captureRecorder) RecordTrigger(string, *model.TriggerEvent) error { return nil }

func (c *captureRecorder) Close() error { return nil }

func (c *captureRecorder) RecordBacktest(s *model.BacktestSummary, months []model.BacktestMonthResult) error {
	c.summary, c.months = s, len(months)
	return nil
}

// weekdays returns bars for every weekday in [from, to], priced by closeFor.
// Each bar opens at the previous close, the first one at 100.
func weekdays(from, to time.Time, closeFor func(time.Time) float64) []model.DailyBar {
	var bars []model.DailyBar
	prev := 100.0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		c := closeFor(d)
		bars = append(bars, model.DailyBar{Date: d, Open: prev, High: math.Max(prev, c), Low: math.Min(prev, c), Close: c})
		prev = c
	}
	return bars
}

func date(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC) }

// Three January bars, a flat February and a March that dips 1.5% on the 4th
// and is down 5.1% by the 11th before settling at 95.
func sampleBars() []model.DailyBar {
	march := map[int]float64{1: 100, 4: 98.5, 5: 98, 6: 97, 7: 96, 8: 95.5, 11: 94.9}
	return weekdays(date(time.January, 29), date(time.March, 29), func(d time.Time) float64 {
		if d.Month() != time.March {
			return 100
		}
		if c, ok := march[d.Day()]; ok {
			return c
		}
		return 95
	})
}

func newTestRunner(h HistorySource) *Runner {
	r := NewRunner("RSP", h, strategy.DefaultRules())
	r.Clock = func() time.Time { return time.Date(2024, 3, 30, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestRunSkipsPartialFirstMonth(t *testing.T) {
	h := &fakeHistory{bars: sampleBars()}
	r := newTestRunner(h)
	rec := &captureRecorder{}
	r.Recorder = rec

	res, err := r.Run(context.Background(), 60)
	require.NoError(t, err)
	assert.Equal(t, 90, h.requested)

	s := res.Summary
	require.Len(t, res.Months, 2)
	assert.Equal(t, model.MonthKey{Year: 2024, Month: time.February}, res.Months[0].Month)
	assert.Equal(t, 1, s.SkippedMonths)
	assert.Equal(t, 2, s.TotalMonths)
	assert.Equal(t, "2024-02 to 2024-03", s.Period())
	assert.NotEmpty(t, s.RunID)
	assert.Same(t, &res.Summary, rec.summary)
	assert.Equal(t, 2, rec.months)

	assert.Equal(t, 1, s.Counts[model.TriggerFirstDip])
	assert.Equal(t, 1, s.Counts[model.TriggerMonthlyDeadline])
	assert.Equal(t, 1, s.Counts[model.TriggerSecondDip])
	assert.LessOrEqual(t, s.Counts[model.TriggerThirdDip], 1)
	assert.Equal(t, 2, s.TriggerMonths)
	assert.Equal(t, 1, s.DecliningMonths)
	require.NotNil(t, s.Coverage)
	assert.InDelta(t, 2.0, *s.Coverage, 1e-9)
}

func TestReplayMonthEvents(t *testing.T) {
	res, err := newTestRunner(&fakeHistory{bars: sampleBars()}).Run(context.Background(), 60)
	require.NoError(t, err)

	feb, mar := res.Months[0], res.Months[1]
	require.Len(t, feb.Triggers, 1)
	assert.Equal(t, model.TriggerMonthlyDeadline, feb.Triggers[0].Type)
	assert.Equal(t, date(time.February, 16), feb.Triggers[0].Date)
	assert.Zero(t, feb.MonthReturn)
	assert.Zero(t, feb.MaxDecline)
	assert.Equal(t, 21, feb.TradingDays)

	require.GreaterOrEqual(t, len(mar.Triggers), 2)
	assert.Equal(t, model.TriggerFirstDip, mar.Triggers[0].Type)
	assert.Equal(t, date(time.March, 4), mar.Triggers[0].Date)
	assert.Equal(t, model.TriggerSecondDip, mar.Triggers[1].Type)
	assert.Equal(t, date(time.March, 11), mar.Triggers[1].Date)
	assert.InDelta(t, 0.051, mar.Triggers[1].CumulativeDecline, 1e-9)
	assert.InDelta(t, -0.05, mar.MonthReturn, 1e-9)
	assert.InDelta(t, 0.051, mar.MaxDecline, 1e-9)
	assert.False(t, mar.FinalState.MonthlyDeadlineTriggered)

	if len(mar.Triggers) == 3 {
		third := mar.Triggers[2]
		assert.Equal(t, model.TriggerThirdDip, third.Type)
		require.NotNil(t, third.MarketBreadth)
		assert.Less(t, *third.MarketBreadth, 15.0)
		assert.False(t, third.Date.Before(mar.Triggers[1].Date))
	}
}

func TestNoDecliningMonthGivesNoCoverage(t *testing.T) {
	bars := weekdays(date(time.February, 1), date(time.February, 29), func(time.Time) float64 { return 100 })
	res, err := newTestRunner(&fakeHistory{bars: bars}).Run(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Summary.DecliningMonths)
	assert.Nil(t, res.Summary.Coverage)
	assert.Zero(t, res.Summary.Counts[model.TriggerSecondDip])
	assert.Zero(t, res.Summary.Counts[model.TriggerThirdDip])

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, res))
	assert.Contains(t, buf.String(), "触发覆盖率: N/A")
}

func TestTrailingVolatility(t *testing.T) {
	returns := []float64{0, 0.01, -0.01, 0.01, -0.01, 0.01}
	bars := make([]model.DailyBar, len(returns))
	for i, r := range returns {
		bars[i] = model.DailyBar{DailyReturn: r, HasReturn: i > 0}
	}
	assert.Equal(t, 0.01, TrailingVolatility(bars, 4))
	assert.InDelta(t, math.Sqrt(1.2e-4), TrailingVolatility(bars, 5), 1e-12)

	for i := 1; i < len(bars); i++ {
		bars[i].HasReturn = i == 5
	}
	assert.Equal(t, 0.01, TrailingVolatility(bars, 5))
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize("RSP", nil)
	assert.Equal(t, "No data", s.Period())
	assert.Zero(t, s.TotalMonths)
	assert.Nil(t, s.Coverage)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, &Result{Summary: s}))
	assert.Contains(t, buf.String(), "无回测数据")
}

func TestReportAndExport(t *testing.T) {
	res, err := newTestRunner(&fakeHistory{bars: sampleBars()}).Run(context.Background(), 60)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, res))
	report := buf.String()
	assert.Contains(t, report, "2024-02 to 2024-03")
	assert.Contains(t, report, "到期提醒触发: 1 次 (50.0%)")
	assert.Contains(t, report, "触发覆盖率: 200.0%")
	assert.Contains(t, report, "2024-03-04 - 日跌幅≥1%")

	dir := t.TempDir()
	csvPath, jsonPath, err := Export(dir, res)
	require.NoError(t, err)

	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "\ufeff"))
	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(raw), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, csvHeader, rows[0])
	assert.Len(t, rows, 1+res.Summary.TotalTriggers)
	assert.Equal(t, []string{"2024-02", "100", "100", "0", "0", "21", "1", "2024-02-16", "monthly_deadline"}, rows[1][:9])
	assert.Equal(t, "", rows[1][13])

	var doc map[string]any
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "2024-02 to 2024-03", doc["backtest_period"])
	assert.Equal(t, float64(res.Summary.TotalTriggers), doc["total_triggers"])
	counts := doc["backtest_summary"].(map[string]any)
	assert.Equal(t, 2.0, counts["total_months"])
	assert.Equal(t, 1.0, counts["monthly_deadline_triggered"])
}

func TestExportMonthWithoutTriggers(t *testing.T) {
	months := []model.BacktestMonthResult{{Month: model.MonthKey{Year: 2024, Month: time.May}, StartPrice: 10, EndPrice: 11, MonthReturn: 0.1, TradingDays: 22}}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, months))
	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0", rows[1][6])
	assert.Len(t, rows[1], len(csvHeader))
}
