package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"DipSentinel/internal/model"
)

const dateLayout = "2006-01-02"

// SQLiteRecorder persists historical data to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the monitor writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS daily_checks (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp          INTEGER NOT NULL,
			symbol             TEXT NOT NULL,
			trade_date         TEXT NOT NULL,
			close              REAL,
			daily_return       REAL,
			month_start_price  REAL,
			cumulative_decline REAL,
			triggers           INTEGER,
			status             TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_date ON daily_checks(symbol, trade_date)`,

		`CREATE TABLE IF NOT EXISTS trigger_events (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp          INTEGER NOT NULL,
			run_id             TEXT,
			symbol             TEXT NOT NULL,
			trade_date         TEXT NOT NULL,
			trigger_type       TEXT NOT NULL,
			condition          TEXT,
			daily_return       REAL,
			price              REAL,
			month_start_price  REAL,
			cumulative_decline REAL,
			market_breadth     REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_date ON trigger_events(symbol, trade_date)`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_run ON trigger_events(run_id)`,

		`CREATE TABLE IF NOT EXISTS backtest_runs (
			run_id           TEXT PRIMARY KEY,
			timestamp        INTEGER NOT NULL,
			symbol           TEXT NOT NULL,
			period           TEXT,
			total_months     INTEGER,
			skipped_months   INTEGER,
			total_triggers   INTEGER,
			first_dip        INTEGER,
			monthly_deadline INTEGER,
			second_dip       INTEGER,
			third_dip        INTEGER,
			declining_months INTEGER,
			trigger_months   INTEGER,
			coverage         REAL,
			avg_month_return REAL,
			max_decline      REAL
		)`,

		`CREATE TABLE IF NOT EXISTS backtest_months (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT NOT NULL,
			month        TEXT NOT NULL,
			start_price  REAL,
			end_price    REAL,
			month_return REAL,
			max_decline  REAL,
			trading_days INTEGER,
			triggers     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_months_run ON backtest_months(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordDailyCheck(chk *DailyCheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO daily_checks
		(timestamp, symbol, trade_date, close, daily_return, month_start_price, cumulative_decline, triggers, status)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), chk.Symbol, chk.Date.Format(dateLayout), chk.Close, chk.DailyReturn,
		chk.MonthStartPrice, chk.CumulativeDecline, chk.Triggers, chk.Status,
	)
	return err
}

func (r *SQLiteRecorder) RecordTrigger(symbol string, ev *model.TriggerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return insertTrigger(r.db, "", symbol, ev)
}

// RecordBacktest stores a run, its months and their trigger events in one transaction.
func (r *SQLiteRecorder) RecordBacktest(s *model.BacktestSummary, months []model.BacktestMonthResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var coverage sql.NullFloat64
	if s.Coverage != nil {
		coverage = sql.NullFloat64{Float64: *s.Coverage, Valid: true}
	}
	_, err = tx.Exec(`INSERT INTO backtest_runs
		(run_id, timestamp, symbol, period, total_months, skipped_months, total_triggers,
		 first_dip, monthly_deadline, second_dip, third_dip,
		 declining_months, trigger_months, coverage, avg_month_return, max_decline)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.RunID, s.GeneratedAt.Unix(), s.Symbol, s.Period(), s.TotalMonths, s.SkippedMonths, s.TotalTriggers,
		s.Counts[model.TriggerFirstDip], s.Counts[model.TriggerMonthlyDeadline],
		s.Counts[model.TriggerSecondDip], s.Counts[model.TriggerThirdDip],
		s.DecliningMonths, s.TriggerMonths, coverage, s.AvgMonthReturn, s.MaxDecline,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i := range months {
		m := &months[i]
		_, err := tx.Exec(`INSERT INTO backtest_months
			(run_id, month, start_price, end_price, month_return, max_decline, trading_days, triggers)
			VALUES (?,?,?,?,?,?,?,?)`,
			s.RunID, m.Month.String(), m.StartPrice, m.EndPrice, m.MonthReturn, m.MaxDecline,
			m.TradingDays, len(m.Triggers),
		)
		if err != nil {
			return fmt.Errorf("insert month %s: %w", m.Month, err)
		}
		for j := range m.Triggers {
			if err := insertTrigger(tx, s.RunID, s.Symbol, &m.Triggers[j]); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertTrigger(db execer, runID, symbol string, ev *model.TriggerEvent) error {
	var breadth sql.NullFloat64
	if ev.MarketBreadth != nil {
		breadth = sql.NullFloat64{Float64: *ev.MarketBreadth, Valid: true}
	}
	var run sql.NullString
	if runID != "" {
		run = sql.NullString{String: runID, Valid: true}
	}
	_, err := db.Exec(`INSERT INTO trigger_events
		(timestamp, run_id, symbol, trade_date, trigger_type, condition,
		 daily_return, price, month_start_price, cumulative_decline, market_breadth)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), run, symbol, ev.Date.Format(dateLayout), string(ev.Type), ev.Condition,
		ev.DailyReturn, ev.Price, ev.MonthStartPrice, ev.CumulativeDecline, breadth,
	)
	if err != nil {
		return fmt.Errorf("insert trigger %s: %w", ev.Type, err)
	}
	return nil
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
