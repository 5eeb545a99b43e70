package calculator

// CumulativeDecline returns (start - price) / start. A zero or negative start
// is treated as a no-decline day.
func CumulativeDecline(start, price float64) float64 {
	if start <= 0 {
		return 0
	}
	return (start - price) / start
}

// PeriodReturn returns end/start - 1, or 0 when start is not positive.
func PeriodReturn(start, end float64) float64 {
	if start <= 0 {
		return 0
	}
	return (end - start) / start
}
