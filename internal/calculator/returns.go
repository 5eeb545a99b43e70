package calculator

import (
	"sort"
	"time"

	"DipSentinel/internal/model"
)

// PrepareSeries sorts bars by date, drops bars without a positive close, keeps
// one bar per calendar date (the last one received) and recomputes
// DailyReturn as close/prevClose - 1.
// The first bar of the result has no return.
func PrepareSeries(bars []model.DailyBar) []model.DailyBar {
	if len(bars) == 0 {
		return nil
	}
	sorted := make([]model.DailyBar, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			sorted = append(sorted, b)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := make([]model.DailyBar, 0, len(sorted))
	for _, b := range sorted {
		if n := len(out); n > 0 && model.SameDate(out[n-1].Date, b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}

	for i := range out {
		out[i].HasReturn = false
		out[i].DailyReturn = 0
		if i == 0 {
			continue
		}
		if prev := out[i-1].Close; prev > 0 {
			out[i].DailyReturn = out[i].Close/prev - 1
			out[i].HasReturn = true
		}
	}
	return out
}

// GroupByMonth splits a prepared series into consecutive months, ascending.
func GroupByMonth(bars []model.DailyBar) [][]model.DailyBar {
	var groups [][]model.DailyBar
	for _, b := range bars {
		n := len(groups)
		if n == 0 || groups[n-1][0].Month() != b.Month() {
			groups = append(groups, []model.DailyBar{b})
			continue
		}
		groups[n-1] = append(groups[n-1], b)
	}
	return groups
}

// FindBar returns the bar dated on day, searching from the end.
func FindBar(bars []model.DailyBar, day time.Time) (model.DailyBar, bool) {
	for i := len(bars) - 1; i >= 0; i-- {
		if model.SameDate(bars[i].Date, day) {
			return bars[i], true
		}
	}
	return model.DailyBar{}, false
}
