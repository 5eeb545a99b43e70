package model

import "time"

// TriggerType identifies which of the four monthly conditions fired.
type TriggerType string

const (
	TriggerFirstDip        TriggerType = "first_dip"
	TriggerMonthlyDeadline TriggerType = "monthly_deadline"
	TriggerSecondDip       TriggerType = "second_dip"
	TriggerThirdDip        TriggerType = "third_dip"
)

// TriggerTypes lists all trigger types in evaluation priority order.
var TriggerTypes = []TriggerType{
	TriggerFirstDip,
	TriggerMonthlyDeadline,
	TriggerSecondDip,
	TriggerThirdDip,
}

// TriggerEvent is emitted once when a condition fires. Never mutated after creation.
type TriggerEvent struct {
	Date              time.Time   `json:"date"`
	Type              TriggerType `json:"type"`
	Condition         string      `json:"condition"`
	DailyReturn       float64     `json:"daily_return"`
	Price             float64     `json:"price"`
	MonthStartPrice   float64     `json:"month_start_price"`
	CumulativeDecline float64     `json:"cumulative_decline"`
	MarketBreadth     *float64    `json:"market_breadth,omitempty"` // ThirdDip only
}
