package breadth

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	percentRe        = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	advanceDeclineRe = regexp.MustCompile(`"advanceDecline":\s*(\d+(?:\.\d+)?)`)
)

// breadthSelectors are tried before falling back to the whole page text.
var breadthSelectors = []string{"[id*='breadth']", "[class*='breadth']"}

// ParseMarketMemo extracts the first percentage in [0,100] from a
// TheMarketMemo page, preferring elements labelled as breadth.
func ParseMarketMemo(html string) (float64, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, false
	}
	doc.Find("script, style, noscript").Remove()

	for _, sel := range breadthSelectors {
		var (
			value float64
			found bool
		)
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			value, found = firstPercent(s.Text())
			return !found
		})
		if found {
			return value, true
		}
	}
	return firstPercent(doc.Find("body").Text())
}

// ParseTradingView looks for an "advanceDecline" figure embedded in the
// page scripts.
func ParseTradingView(html string) (float64, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, false
	}
	var (
		value float64
		found bool
	)
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(strings.ToLower(text), "advance") {
			return true
		}
		m := advanceDeclineRe.FindStringSubmatch(text)
		if m == nil {
			return true
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || !Valid(v) {
			return true
		}
		value, found = v, true
		return false
	})
	return value, found
}

func firstPercent(text string) (float64, bool) {
	for _, m := range percentRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil && Valid(v) {
			return v, true
		}
	}
	return 0, false
}
