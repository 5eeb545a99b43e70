package strategy

import (
	"fmt"
	"math"
	"time"

	"DipSentinel/internal/calculator"
	"DipSentinel/internal/model"
)

// Rules holds the thresholds of the four monthly conditions.
type Rules struct {
	FirstDipReturn     float64      // FirstDip fires when the daily return is at or below this (negative)
	SecondDipDecline   float64      // SecondDip fires when the month-to-date decline reaches this
	BreadthThreshold   float64      // ThirdDip fires when breadth is strictly below this (0-100)
	DeadlineWeekday    time.Weekday // MonthlyDeadline weekday
	DeadlineOccurrence int          // MonthlyDeadline occurrence of DeadlineWeekday, last one if the month is short
}

// DefaultRules: -1% day, 5% monthly decline, breadth below 15, third Friday.
func DefaultRules() Rules {
	return Rules{
		FirstDipReturn:     -0.01,
		SecondDipDecline:   0.05,
		BreadthThreshold:   15,
		DeadlineWeekday:    time.Friday,
		DeadlineOccurrence: 3,
	}
}

func (r Rules) isFirstDip(bar model.DailyBar) bool {
	return bar.Return() <= r.FirstDipReturn
}

func (r Rules) isDeadline(day time.Time) bool {
	return calculator.IsNthWeekday(day, r.DeadlineWeekday, r.DeadlineOccurrence)
}

func (r Rules) isSecondDip(decline float64) bool {
	return decline >= r.SecondDipDecline
}

func (r Rules) isThirdDip(breadth float64) bool {
	return breadth < r.BreadthThreshold
}

var weekdayNames = [...]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}
var ordinals = [...]string{"", "一", "二", "三", "四", "五"}

// Condition renders the human readable condition text for t.
func (r Rules) Condition(t model.TriggerType) string {
	switch t {
	case model.TriggerFirstDip:
		return fmt.Sprintf("日跌幅≥%s", percent(-r.FirstDipReturn))
	case model.TriggerMonthlyDeadline:
		n := fmt.Sprint(r.DeadlineOccurrence)
		if r.DeadlineOccurrence > 0 && r.DeadlineOccurrence < len(ordinals) {
			n = ordinals[r.DeadlineOccurrence]
		}
		return fmt.Sprintf("第%s个%s到期", n, weekdayNames[r.DeadlineWeekday%7])
	case model.TriggerSecondDip:
		return fmt.Sprintf("月累计跌幅≥%s", percent(r.SecondDipDecline))
	case model.TriggerThirdDip:
		return fmt.Sprintf("市场宽度<%g%%", r.BreadthThreshold)
	}
	return string(t)
}

func percent(frac float64) string {
	return fmt.Sprintf("%g%%", math.Round(frac*1e4)/1e2)
}
