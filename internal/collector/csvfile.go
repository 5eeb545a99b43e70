package collector

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"DipSentinel/internal/model"
)

// CSVFetcher serves bars from a local file with the header
// date,open,high,low,close,volume. Used for offline replay.
type CSVFetcher struct {
	Path string
}

func NewCSVFetcher(path string) *CSVFetcher { return &CSVFetcher{Path: path} }

func (f *CSVFetcher) Name() string { return "csv" }

func (f *CSVFetcher) FetchDailyBars(ctx context.Context, _ string, count int) ([]model.DailyBar, error) {
	bars, err := f.load()
	if err != nil {
		return nil, err
	}
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return bars, nil
}

func (f *CSVFetcher) FetchDailyRange(ctx context.Context, _ string, from, to time.Time) ([]model.DailyBar, error) {
	bars, err := f.load()
	if err != nil {
		return nil, err
	}
	lo, hi := model.DateOf(from, nil), model.DateOf(to, nil)
	out := bars[:0]
	for _, b := range bars {
		if b.Date.Before(lo) || b.Date.After(hi) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *CSVFetcher) load() ([]model.DailyBar, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open bars csv: %w", err)
	}
	defer file.Close()
	return ParseBarsCSV(file)
}

// ParseBarsCSV decodes date,open,high,low,close[,volume] rows. The header row
// is required and columns are matched by name.
func ParseBarsCSV(r io.Reader) ([]model.DailyBar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, name := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("csv missing column %q", name)
		}
	}

	var bars []model.DailyBar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		d, err := model.ParseDate(field("date"))
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		b := model.DailyBar{Date: d}
		for _, p := range []struct {
			name string
			dst  *float64
		}{{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close}, {"volume", &b.Volume}} {
			s := field(p.name)
			if s == "" {
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d column %s: %w", line, p.name, err)
			}
			*p.dst = v
		}
		bars = append(bars, b)
	}
	return bars, nil
}
