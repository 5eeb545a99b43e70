// Package breadth supplies the market breadth percentage used by the third
// dip condition. Providers never fail their caller: when no real value is
// available they return a conservative value that cannot trigger an alert.
package breadth

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultValue is the conservative breadth reported when nothing better is known.
const DefaultValue = 20.0

// Provider reports the current market breadth on a 0-100 scale.
type Provider interface {
	CurrentBreadth(ctx context.Context) float64
	Name() string
}

// Fixed always reports Value.
type Fixed struct {
	Value float64
}

func (f Fixed) CurrentBreadth(context.Context) float64 { return f.Value }
func (f Fixed) Name() string                          { return "fixed" }

// DailySimulated reports a pseudo-random value that stays stable for a whole
// calendar day: 25 ± 10, clamped to [5, 45].
type DailySimulated struct {
	Now func() time.Time
}

func (s DailySimulated) Name() string { return "simulated" }

func (s DailySimulated) CurrentBreadth(context.Context) float64 {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	seed := dateSeed(now()) % 1000
	r := rand.New(rand.NewSource(seed))
	v := clamp(25+r.Float64()*20-10, 5, 45)
	log.Info().Float64("breadth", v).Msg("using simulated market breadth")
	return v
}

// Seeded is the replay breadth model: deterministic per date, and lower when
// the trailing return volatility is higher.
// 30 - 100*volatility ± 15, clamped to [5, 50].
func Seeded(date time.Time, volatility float64) float64 {
	r := rand.New(rand.NewSource(dateSeed(date) % 10000))
	return clamp(30-volatility*100+r.Float64()*30-15, 5, 50)
}

func dateSeed(t time.Time) int64 {
	n, _ := strconv.ParseInt(t.Format("20060102"), 10, 64)
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Valid reports whether v is a plausible breadth percentage.
func Valid(v float64) bool {
	return v >= 0 && v <= 100
}
