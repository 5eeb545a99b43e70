package model

import "time"

// MonthlyTriggerState tracks one month's progress through the four conditions.
//
// Flags are set at most once per month and only cleared by replacing the
// state on month rollover. FirstDipTriggered and MonthlyDeadlineTriggered are
// mutually exclusive.
type MonthlyTriggerState struct {
	Symbol                   string    `json:"symbol"`
	Month                    MonthKey  `json:"current_month"`
	FirstDipTriggered        bool      `json:"first_dip_triggered"`
	MonthlyDeadlineTriggered bool      `json:"monthly_deadline_triggered"`
	SecondDipTriggered       bool      `json:"second_dip_triggered"`
	ThirdDipTriggered        bool      `json:"third_dip_triggered"`
	MonthStartPrice          *float64  `json:"month_start_price"`
	MonthLowPrice            *float64  `json:"month_low_price"`
	LastCheckedDate          string    `json:"last_check_date"` // 2006-01-02, empty if never checked
	UpdatedAt                time.Time `json:"updated_at"`
}

// NewMonthlyTriggerState returns a fresh state for month with every flag cleared.
func NewMonthlyTriggerState(symbol string, month MonthKey) *MonthlyTriggerState {
	return &MonthlyTriggerState{Symbol: symbol, Month: month}
}

// StageOneResolved reports whether either stage-1 alternative already fired.
func (s *MonthlyTriggerState) StageOneResolved() bool {
	return s.FirstDipTriggered || s.MonthlyDeadlineTriggered
}

// Triggered reports whether the flag for t is set.
func (s *MonthlyTriggerState) Triggered(t TriggerType) bool {
	switch t {
	case TriggerFirstDip:
		return s.FirstDipTriggered
	case TriggerMonthlyDeadline:
		return s.MonthlyDeadlineTriggered
	case TriggerSecondDip:
		return s.SecondDipTriggered
	case TriggerThirdDip:
		return s.ThirdDipTriggered
	}
	return false
}

// LastChecked parses LastCheckedDate; ok is false when unset or malformed.
func (s *MonthlyTriggerState) LastChecked() (time.Time, bool) {
	if s.LastCheckedDate == "" {
		return time.Time{}, false
	}
	t, err := ParseDate(s.LastCheckedDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Clone returns a deep copy.
func (s *MonthlyTriggerState) Clone() *MonthlyTriggerState {
	c := *s
	if s.MonthStartPrice != nil {
		v := *s.MonthStartPrice
		c.MonthStartPrice = &v
	}
	if s.MonthLowPrice != nil {
		v := *s.MonthLowPrice
		c.MonthLowPrice = &v
	}
	return &c
}
