package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"DipSentinel/internal/backtest"
	"DipSentinel/internal/monitor"
	"DipSentinel/internal/notifier"
)

// Scheduler runs the daily check on a cron schedule and answers chat commands.
type Scheduler struct {
	Cron     *cron.Cron
	Monitor  *monitor.Monitor
	Backtest *backtest.Runner
	Notifier notifier.Notifier
	Ctx      context.Context

	BacktestDays int
	OutputDir    string
}

// NewScheduler creates a Scheduler whose cron expressions carry a seconds
// field and are evaluated in loc. Overlapping runs of a job are skipped.
func NewScheduler(ctx context.Context, loc *time.Location, mon *monitor.Monitor, bt *backtest.Runner, n notifier.Notifier) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		Monitor:      mon,
		Backtest:     bt,
		Notifier:     n,
		Ctx:          ctx,
		BacktestDays: 365,
	}
}

// Register adds the daily check job.
func (s *Scheduler) Register(dailyCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, s.dailyCheck); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	for _, e := range s.Cron.Entries() {
		log.Info().Time("next", e.Next).Msg("job scheduled")
	}
	log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// RunDailyNow executes the daily check immediately (for RUN_ON_START).
func (s *Scheduler) RunDailyNow() {
	s.dailyCheck()
}

func (s *Scheduler) dailyCheck() {
	_, err := s.Monitor.RunDailyCheck(s.Ctx)
	switch {
	case err == nil, errors.Is(err, monitor.ErrNoDataForToday):
	case errors.Is(err, monitor.ErrProviderUnavailable):
		s.trySend(fmt.Sprintf("❌ %s 每日检查失败: 行情数据不可用\n%v", s.Monitor.Symbol, err))
	default:
		log.Error().Err(err).Msg("daily check failed")
		s.trySend(fmt.Sprintf("❌ %s 每日检查失败: %v", s.Monitor.Symbol, err))
	}
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	switch fields[0] {
	case "/status", "查看状态":
		return s.Monitor.StatusText()
	case "/check", "立即检查":
		return s.checkNow(ctx)
	case "/backtest", "回测":
		days := s.BacktestDays
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 30 {
				return "用法: /backtest [天数≥30]"
			}
			days = n
		}
		return s.backtestNow(ctx, days)
	default:
		return helpText
	}
}

const helpText = "可用命令:\n• /status 查看状态\n• /check 立即检查\n• /backtest [天数] 回测"

func (s *Scheduler) checkNow(ctx context.Context) string {
	res, err := s.Monitor.RunDailyCheck(ctx)
	switch {
	case errors.Is(err, monitor.ErrNoDataForToday):
		return "😴 今日暂无行情数据，稍后再试\n\n" + s.Monitor.StatusText()
	case err != nil:
		return fmt.Sprintf("❌ 检查失败: %v", err)
	}
	head := "😴 今日无触发条件"
	if n := len(res.Events); n > 0 {
		head = fmt.Sprintf("🔔 今日触发: %d 个提醒", n)
	}
	return head + "\n\n" + s.Monitor.StatusText()
}

func (s *Scheduler) backtestNow(ctx context.Context, days int) string {
	if s.Backtest == nil {
		return "回测未启用"
	}
	res, err := s.Backtest.Run(ctx, days)
	if err != nil {
		log.Error().Err(err).Int("days", days).Msg("backtest command failed")
		return fmt.Sprintf("❌ 回测失败: %v", err)
	}
	reply := notifier.FormatBacktestSummary(&res.Summary)
	if s.OutputDir != "" {
		csvPath, jsonPath, err := backtest.Export(s.OutputDir, res)
		if err != nil {
			log.Error().Err(err).Msg("export backtest")
		} else {
			reply += fmt.Sprintf("\n\n📁 %s\n📁 %s", csvPath, jsonPath)
		}
	}
	return reply
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.Send(s.Ctx, text); err != nil {
		log.Error().Err(err).Msg("send notification")
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
