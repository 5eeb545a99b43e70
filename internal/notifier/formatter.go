package notifier

import (
	"fmt"
	"strings"

	"DipSentinel/internal/model"
)

var triggerTitles = map[model.TriggerType]string{
	model.TriggerFirstDip:        "触发第一笔定投",
	model.TriggerMonthlyDeadline: "触发第一笔定投（到期提醒）",
	model.TriggerSecondDip:       "触发第二笔定投",
	model.TriggerThirdDip:        "触发第三笔定投",
}

// TriggerLabel is the short Chinese name of a trigger type.
func TriggerLabel(t model.TriggerType) string {
	switch t {
	case model.TriggerFirstDip:
		return "第一笔定投"
	case model.TriggerMonthlyDeadline:
		return "到期提醒"
	case model.TriggerSecondDip:
		return "第二笔定投"
	case model.TriggerThirdDip:
		return "第三笔定投"
	}
	return string(t)
}

// FormatTrigger renders the alert message for one trigger event.
func FormatTrigger(symbol string, ev model.TriggerEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 %s定投提醒 - %s\n\n", symbol, triggerTitles[ev.Type])
	fmt.Fprintf(&b, "📊 触发条件: %s\n", ev.Condition)

	switch ev.Type {
	case model.TriggerFirstDip:
		fmt.Fprintf(&b, "📈 当日收盘价: $%.2f\n", ev.Price)
		fmt.Fprintf(&b, "📉 当日跌幅: %s\n", pct(ev.DailyReturn))
	case model.TriggerMonthlyDeadline:
		fmt.Fprintf(&b, "📈 当日收盘价: $%.2f\n", ev.Price)
		fmt.Fprintf(&b, "📉 当日涨跌: %s\n", pct(ev.DailyReturn))
	case model.TriggerSecondDip:
		fmt.Fprintf(&b, "📈 当前价格: $%.2f\n", ev.Price)
		fmt.Fprintf(&b, "📉 月初价格: $%.2f\n", ev.MonthStartPrice)
		fmt.Fprintf(&b, "📊 累计跌幅: %s\n", pct(ev.CumulativeDecline))
	case model.TriggerThirdDip:
		fmt.Fprintf(&b, "📈 当前价格: $%.2f\n", ev.Price)
		if ev.MarketBreadth != nil {
			fmt.Fprintf(&b, "📊 市场宽度: %.1f%%\n", *ev.MarketBreadth)
		}
		fmt.Fprintf(&b, "📉 累计跌幅: %s\n", pct(ev.CumulativeDecline))
	}
	fmt.Fprintf(&b, "📅 日期: %s\n\n", ev.Date.Format("2006-01-02"))

	switch ev.Type {
	case model.TriggerFirstDip:
		b.WriteString("💡 建议: 执行第一笔定投")
	case model.TriggerMonthlyDeadline:
		b.WriteString("💡 说明: 当月未触发跌幅条件，按计划执行第一笔定投")
	case model.TriggerSecondDip:
		b.WriteString("💡 建议: 执行第二笔定投，增加投资力度")
	case model.TriggerThirdDip:
		b.WriteString("⚠️ 市场恐慌情绪加剧，建议执行第三笔定投")
	}
	return b.String()
}

// FormatStatus renders the month's progress. bar may be nil when no check
// ran yet; decline is the month-to-date decline at bar.
func FormatStatus(st *model.MonthlyTriggerState, bar *model.DailyBar, decline float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s监控状态", st.Symbol)
	if bar != nil {
		fmt.Fprintf(&b, " (%s)", bar.Date.Format("2006-01-02"))
	}
	b.WriteString("\n━━━━━━━━━━━━━━━━━━━━\n")
	if bar != nil {
		fmt.Fprintf(&b, "💰 当前价格: $%.2f\n", bar.Close)
		fmt.Fprintf(&b, "📈 日收益率: %+.2f%%\n", bar.Return()*100)
		fmt.Fprintf(&b, "📉 月累计跌幅: %s\n", pct(decline))
	}
	month := st.Month.String()
	if month == "" {
		month = "未开始"
	}
	fmt.Fprintf(&b, "📅 监控月份: %s\n", month)
	if st.MonthStartPrice != nil {
		fmt.Fprintf(&b, "🏁 月初价格: $%.2f\n", *st.MonthStartPrice)
	}
	if st.MonthLowPrice != nil {
		fmt.Fprintf(&b, "⬇️ 月内最低: $%.2f\n", *st.MonthLowPrice)
	}
	b.WriteString("\n🎯 触发状态:\n")
	for _, t := range model.TriggerTypes {
		mark := "⏳等待中"
		if st.Triggered(t) {
			mark = "✅已触发"
		}
		fmt.Fprintf(&b, "   %s: %s\n", TriggerLabel(t), mark)
	}
	if st.LastCheckedDate != "" {
		fmt.Fprintf(&b, "\n最后检查: %s", st.LastCheckedDate)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatBacktestSummary renders a short summary suitable for a chat reply.
func FormatBacktestSummary(s *model.BacktestSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📈 %s 回测摘要\n\n", s.Symbol)
	fmt.Fprintf(&b, "回测期间: %s\n", s.Period())
	fmt.Fprintf(&b, "总月份数: %d\n", s.TotalMonths)
	if s.TotalMonths == 0 {
		return b.String() + "无可用数据"
	}
	b.WriteString("\n🎯 触发统计:\n")
	for _, t := range model.TriggerTypes {
		fmt.Fprintf(&b, "   %s: %d次 (%.1f%%)\n", TriggerLabel(t), s.Counts[t], s.Share(t)*100)
	}
	fmt.Fprintf(&b, "\n总触发次数: %d\n", s.TotalTriggers)
	fmt.Fprintf(&b, "平均每月触发: %.1f次\n", s.TriggersPerMonth())
	if s.Coverage != nil {
		fmt.Fprintf(&b, "触发覆盖率: %.1f%%", *s.Coverage*100)
	} else {
		b.WriteString("触发覆盖率: N/A")
	}
	return b.String()
}

func pct(frac float64) string {
	return fmt.Sprintf("%.2f%%", frac*100)
}
