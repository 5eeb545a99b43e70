package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"DipSentinel/internal/model"
)

const (
	ResultsFile = "backtest_results.csv"
	SummaryFile = "backtest_summary.json"
)

var csvHeader = []string{
	"month", "month_start_price", "month_end_price", "month_return", "max_decline",
	"trading_days", "total_triggers",
	"trigger_date", "trigger_type", "trigger_condition", "trigger_daily_return",
	"trigger_price", "trigger_cumulative_decline", "trigger_market_breadth",
}

// WriteCSV writes one row per trigger event, or a single row with empty
// trigger columns for a month without triggers. The file starts with a UTF-8
// BOM so spreadsheet tools detect the encoding of the Chinese condition text.
func WriteCSV(w io.Writer, months []model.BacktestMonthResult) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, m := range months {
		base := []string{
			m.Month.String(),
			num(m.StartPrice), num(m.EndPrice), num(m.MonthReturn), num(m.MaxDecline),
			strconv.Itoa(m.TradingDays), strconv.Itoa(len(m.Triggers)),
		}
		if len(m.Triggers) == 0 {
			if err := cw.Write(append(base, "", "", "", "", "", "", "")); err != nil {
				return err
			}
			continue
		}
		for _, ev := range m.Triggers {
			breadth := ""
			if ev.MarketBreadth != nil {
				breadth = num(*ev.MarketBreadth)
			}
			row := append(append([]string{}, base...),
				ev.Date.Format(time.DateOnly), string(ev.Type), ev.Condition,
				num(ev.DailyReturn), num(ev.Price), num(ev.CumulativeDecline), breadth,
			)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

type summaryCounts struct {
	TotalMonths              int `json:"total_months"`
	FirstDipTriggered        int `json:"first_dip_triggered"`
	MonthlyDeadlineTriggered int `json:"monthly_deadline_triggered"`
	SecondDipTriggered       int `json:"second_dip_triggered"`
	ThirdDipTriggered        int `json:"third_dip_triggered"`
}

type summaryDocument struct {
	RunID           string                `json:"run_id"`
	Symbol          string                `json:"symbol"`
	GeneratedAt     time.Time             `json:"generated_at"`
	BacktestSummary summaryCounts         `json:"backtest_summary"`
	TotalTriggers   int                   `json:"total_triggers"`
	BacktestPeriod  string                `json:"backtest_period"`
	SkippedMonths   int                   `json:"skipped_months"`
	Statistics      model.BacktestSummary `json:"statistics"`
}

// WriteSummaryJSON writes the aggregate record.
func WriteSummaryJSON(w io.Writer, s *model.BacktestSummary) error {
	doc := summaryDocument{
		RunID:       s.RunID,
		Symbol:      s.Symbol,
		GeneratedAt: s.GeneratedAt,
		BacktestSummary: summaryCounts{
			TotalMonths:              s.TotalMonths,
			FirstDipTriggered:        s.Counts[model.TriggerFirstDip],
			MonthlyDeadlineTriggered: s.Counts[model.TriggerMonthlyDeadline],
			SecondDipTriggered:       s.Counts[model.TriggerSecondDip],
			ThirdDipTriggered:        s.Counts[model.TriggerThirdDip],
		},
		TotalTriggers:  s.TotalTriggers,
		BacktestPeriod: s.Period(),
		SkippedMonths:  s.SkippedMonths,
		Statistics:     *s,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}

// Export writes ResultsFile and SummaryFile into dir and returns their paths.
func Export(dir string, res *Result) (csvPath, jsonPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}
	csvPath = filepath.Join(dir, ResultsFile)
	jsonPath = filepath.Join(dir, SummaryFile)

	if err := writeFile(csvPath, func(w io.Writer) error { return WriteCSV(w, res.Months) }); err != nil {
		return "", "", err
	}
	if err := writeFile(jsonPath, func(w io.Writer) error { return WriteSummaryJSON(w, &res.Summary) }); err != nil {
		return "", "", err
	}
	return csvPath, jsonPath, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
