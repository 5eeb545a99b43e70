package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DipSentinel/internal/backtest"
	"DipSentinel/internal/breadth"
	"DipSentinel/internal/calculator"
	"DipSentinel/internal/model"
	"DipSentinel/internal/monitor"
	"DipSentinel/internal/state"
	"DipSentinel/internal/strategy"
)

type fakePrices struct {
	bars []model.DailyBar
	err  error
}

func (f *fakePrices) Recent(context.Context, int) (*model.PriceSeries, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.PriceSeries{Bars: calculator.PrepareSeries(f.bars)}, nil
}

func (f *fakePrices) History(context.Context, int) (*model.PriceSeries, error) {
	return f.Recent(context.Background(), 0)
}

type recordingNotifier struct{ sent []string }

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Send(_ context.Context, text string) error {
	r.sent = append(r.sent, text)
	return nil
}

// Weekdays of February 2024 with a 2% drop on the 6th.
func februaryBars() []model.DailyBar {
	var bars []model.DailyBar
	prev := 100.0
	for d := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC); d.Month() == time.February; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		c := prev
		if d.Day() == 6 {
			c = prev * 0.98
		}
		bars = append(bars, model.DailyBar{Date: d, Open: prev, High: prev, Low: c, Close: c})
		prev = c
	}
	return bars
}

func newTestScheduler(t *testing.T, prices *fakePrices, now time.Time) (*Scheduler, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	mon := monitor.New("RSP", prices, breadth.Fixed{Value: 20}, &state.MemoryStore{}, strategy.DefaultRules())
	mon.Location = time.UTC
	mon.Clock = func() time.Time { return now }
	mon.Notifier = n

	bt := backtest.NewRunner("RSP", prices, strategy.DefaultRules())
	s := NewScheduler(context.Background(), time.UTC, mon, bt, n)
	s.OutputDir = t.TempDir()
	return s, n
}

func TestRegisterRejectsBadCron(t *testing.T) {
	s, _ := newTestScheduler(t, &fakePrices{}, time.Now())
	assert.Error(t, s.Register("not a cron"))
	require.NoError(t, s.Register("0 0 21 * * 1-5"))
	assert.Len(t, s.Cron.Entries(), 1)
}

func TestCheckCommand(t *testing.T) {
	s, n := newTestScheduler(t, &fakePrices{bars: februaryBars()}, time.Date(2024, 2, 6, 21, 0, 0, 0, time.UTC))

	reply := s.HandleCommand(context.Background(), "/check")
	assert.Contains(t, reply, "今日触发: 1 个提醒")
	assert.Contains(t, reply, "第一笔定投: ✅已触发")
	require.Len(t, n.sent, 1)

	reply = s.HandleCommand(context.Background(), "/check")
	assert.Contains(t, reply, "今日无触发条件")

	assert.Contains(t, s.HandleCommand(context.Background(), "/status"), "监控月份: 2024-02")
}

func TestCheckCommandWithoutTodayBar(t *testing.T) {
	s, _ := newTestScheduler(t, &fakePrices{bars: februaryBars()}, time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC))
	assert.Contains(t, s.HandleCommand(context.Background(), "立即检查"), "今日暂无行情数据")
}

func TestDailyJobAlertsOnProviderFailure(t *testing.T) {
	s, n := newTestScheduler(t, &fakePrices{err: errors.New("timeout")}, time.Date(2024, 2, 6, 21, 0, 0, 0, time.UTC))
	s.RunDailyNow()
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "行情数据不可用")
}

func TestBacktestCommand(t *testing.T) {
	s, _ := newTestScheduler(t, &fakePrices{bars: februaryBars()}, time.Now())

	assert.Contains(t, s.HandleCommand(context.Background(), "/backtest 5"), "用法")

	reply := s.HandleCommand(context.Background(), "/backtest 60")
	assert.Contains(t, reply, "2024-02 to 2024-02")
	assert.Contains(t, reply, "第一笔定投: 1次")

	_, err := os.Stat(filepath.Join(s.OutputDir, backtest.ResultsFile))
	assert.NoError(t, err)
}

func TestHelp(t *testing.T) {
	s, _ := newTestScheduler(t, &fakePrices{}, time.Now())
	assert.Contains(t, s.HandleCommand(context.Background(), "hello"), "可用命令")
	assert.Contains(t, s.HandleCommand(context.Background(), "  "), "可用命令")
}
