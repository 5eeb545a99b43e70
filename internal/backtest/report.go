package backtest

import (
	"fmt"
	"io"
	"strings"

	"DipSentinel/internal/model"
	"DipSentinel/internal/notifier"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// WriteReport prints the human readable backtest report.
func WriteReport(w io.Writer, res *Result) error {
	s := &res.Summary
	var b strings.Builder

	b.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&b, "📊 %s 定投监控系统 - 回测报告\n", s.Symbol)
	b.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&b, "📅 回测期间: %s (%d 个月", s.Period(), s.TotalMonths)
	if s.SkippedMonths > 0 {
		fmt.Fprintf(&b, ", 跳过 %d 个数据不足月份", s.SkippedMonths)
	}
	b.WriteString(")\n")
	if s.RunID != "" {
		fmt.Fprintf(&b, "🆔 运行编号: %s\n", s.RunID)
	}

	if s.TotalMonths == 0 {
		b.WriteString("❌ 无回测数据\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString("\n📊 触发统计摘要:\n" + rule + "\n")
	fmt.Fprintf(&b, "总监控月数: %d\n", s.TotalMonths)
	for _, t := range model.TriggerTypes {
		fmt.Fprintf(&b, "%s触发: %d 次 (%.1f%%)\n", notifier.TriggerLabel(t), s.Counts[t], s.Share(t)*100)
	}

	b.WriteString("\n📋 详细触发记录:\n" + rule + "\n")
	for _, m := range res.Months {
		if len(m.Triggers) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n📅 %s (月收益: %+.2f%%, 最大跌幅: %.2f%%)\n", m.Month, m.MonthReturn*100, m.MaxDecline*100)
		for _, ev := range m.Triggers {
			fmt.Fprintf(&b, "   🔔 %s - %s (日收益: %+.2f%%, 价格: $%.2f)",
				ev.Date.Format("2006-01-02"), ev.Condition, ev.DailyReturn*100, ev.Price)
			if ev.MarketBreadth != nil {
				fmt.Fprintf(&b, ", 市场宽度: %.1f%%", *ev.MarketBreadth)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n💡 回测洞察:\n" + rule + "\n")
	fmt.Fprintf(&b, "总触发次数: %d\n", s.TotalTriggers)
	fmt.Fprintf(&b, "平均每月触发: %.1f 次\n", s.TriggersPerMonth())
	b.WriteString("月收益率统计:\n")
	fmt.Fprintf(&b, "   平均月收益: %+.2f%%\n", s.AvgMonthReturn*100)
	fmt.Fprintf(&b, "   月收益标准差: %.2f%%\n", s.StdMonthReturn*100)
	fmt.Fprintf(&b, "   最好月份: %+.2f%%\n", s.BestMonthReturn*100)
	fmt.Fprintf(&b, "   最差月份: %+.2f%%\n", s.WorstMonthReturn*100)
	b.WriteString("最大跌幅统计:\n")
	fmt.Fprintf(&b, "   平均最大跌幅: %.2f%%\n", s.AvgMaxDecline*100)
	fmt.Fprintf(&b, "   最大跌幅: %.2f%%\n", s.MaxDecline*100)

	b.WriteString("\n🎯 策略有效性:\n")
	fmt.Fprintf(&b, "触发月份数: %d\n", s.TriggerMonths)
	fmt.Fprintf(&b, "下跌月份数: %d\n", s.DecliningMonths)
	if s.Coverage != nil {
		fmt.Fprintf(&b, "触发覆盖率: %.1f%%\n", *s.Coverage*100)
	} else {
		b.WriteString("触发覆盖率: N/A\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
