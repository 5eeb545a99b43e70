package model

import (
	"fmt"
	"time"
)

// DailyBar is one trading day of the monitored instrument.
// Date is the calendar date in the exchange timezone, stored at UTC midnight.
type DailyBar struct {
	Date        time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	DailyReturn float64 // Close/prevClose - 1
	HasReturn   bool    // false for the first bar of a series
}

// Return yields the bar's daily return, treating an absent return as flat.
func (b DailyBar) Return() float64 {
	if !b.HasReturn {
		return 0
	}
	return b.DailyReturn
}

// StartPrice is the price a month starting with this bar is measured from:
// the open, or the close when the provider sent no usable open.
func (b DailyBar) StartPrice() float64 {
	if b.Open > 0 {
		return b.Open
	}
	return b.Close
}

// Month returns the MonthKey the bar belongs to.
func (b DailyBar) Month() MonthKey {
	return MonthOf(b.Date)
}

// PriceSeries holds a prepared daily series for one symbol.
type PriceSeries struct {
	Symbol    string
	Bars      []DailyBar
	FetchedAt time.Time
}

// DateOf truncates t to its calendar date in loc and returns it at UTC midnight.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO calendar date (2006-01-02).
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// MonthKey identifies a calendar month.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthOf derives the MonthKey of a date.
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// IsZero reports whether the key was never set.
func (k MonthKey) IsZero() bool {
	return k.Year == 0 && k.Month == 0
}

// Before reports whether k is an earlier month than o.
func (k MonthKey) Before(o MonthKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	return k.Month < o.Month
}

func (k MonthKey) String() string {
	if k.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// MarshalText encodes the key as "YYYY-MM", or empty when unset.
func (k MonthKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes "YYYY-MM"; empty input yields the zero key.
func (k *MonthKey) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = MonthKey{}
		return nil
	}
	t, err := time.Parse("2006-01", string(b))
	if err != nil {
		return fmt.Errorf("parse month %q: %w", string(b), err)
	}
	*k = MonthOf(t)
	return nil
}
