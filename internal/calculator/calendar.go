package calculator

import "time"

// WeekdaysInMonth lists every date in t's month that falls on wd, ascending.
func WeekdaysInMonth(t time.Time, wd time.Weekday) []time.Time {
	y, m, _ := t.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7

	var days []time.Time
	for d := first.AddDate(0, 0, offset); d.Month() == m; d = d.AddDate(0, 0, 7) {
		days = append(days, d)
	}
	return days
}

// IsNthWeekday reports whether t is the n-th occurrence of wd in its month.
// When the month has fewer than n occurrences the last one counts instead.
func IsNthWeekday(t time.Time, wd time.Weekday, n int) bool {
	if n <= 0 {
		return false
	}
	days := WeekdaysInMonth(t, wd)
	if len(days) == 0 {
		return false
	}
	target := days[len(days)-1]
	if len(days) >= n {
		target = days[n-1]
	}
	y, m, d := t.Date()
	ty, tm, td := target.Date()
	return y == ty && m == tm && d == td
}

// IsThirdWeekday reports whether t is the month's third wd.
func IsThirdWeekday(t time.Time, wd time.Weekday) bool {
	return IsNthWeekday(t, wd, 3)
}
