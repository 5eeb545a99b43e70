package breadth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"DipSentinel/internal/metrics"
)

var errNoValue = errors.New("no breadth value found in page")

// Source is one web page that publishes a breadth figure.
type Source struct {
	Name  string
	URL   string
	Parse func(html string) (float64, bool)
}

// DefaultSources returns the sources in the order they are tried.
func DefaultSources() []Source {
	return []Source{
		{Name: "TheMarketMemo", URL: "https://themarketmemo.com/marketbreadth/", Parse: ParseMarketMemo},
		{Name: "TradingView", URL: "https://www.tradingview.com/markets/stocks-usa/market-movers-advance-decline/", Parse: ParseTradingView},
	}
}

// WebProvider scrapes breadth from a list of sources, each guarded by its own
// circuit breaker, and falls back to Fallback when every source fails.
type WebProvider struct {
	Sources  []Source
	Client   *http.Client
	Timeout  time.Duration // per source request
	Pause    time.Duration // wait between two sources
	Fallback Provider
	Metrics  *metrics.Metrics

	breakers map[string]*gobreaker.CircuitBreaker
}

// NewWebProvider creates a provider over sources with optional proxy support.
func NewWebProvider(sources []Source, proxyURL string, timeout, pause time.Duration, fallback Provider) *WebProvider {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if fallback == nil {
		fallback = Fixed{Value: DefaultValue}
	}
	p := &WebProvider{
		Sources:  sources,
		Client:   &http.Client{Transport: transport},
		Timeout:  timeout,
		Pause:    pause,
		Fallback: fallback,
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(sources)),
	}
	for _, src := range sources {
		p.breakers[src.Name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    src.Name,
			Timeout: 30 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("source", name).Str("from", from.String()).Str("to", to.String()).Msg("breadth source breaker changed state")
			},
		})
	}
	return p
}

func (p *WebProvider) Name() string { return "web" }

// CurrentBreadth returns the first value any source yields, else the fallback's.
func (p *WebProvider) CurrentBreadth(ctx context.Context) float64 {
	for i, src := range p.Sources {
		if i > 0 && p.Pause > 0 {
			select {
			case <-ctx.Done():
				return p.fallback(ctx)
			case <-time.After(p.Pause):
			}
		}
		v, err := p.fromSource(ctx, src)
		if err != nil {
			log.Warn().Err(err).Str("source", src.Name).Msg("breadth source failed")
			p.Metrics.BreadthSourceFailed(src.Name)
			continue
		}
		log.Info().Str("source", src.Name).Float64("breadth", v).Msg("market breadth fetched")
		p.Metrics.ObserveBreadth(src.Name, v)
		return v
	}
	log.Warn().Msg("all breadth sources unavailable, using fallback")
	return p.fallback(ctx)
}

func (p *WebProvider) fallback(ctx context.Context) float64 {
	v := p.Fallback.CurrentBreadth(ctx)
	p.Metrics.ObserveBreadth(p.Fallback.Name(), v)
	return v
}

func (p *WebProvider) fromSource(ctx context.Context, src Source) (float64, error) {
	cb, ok := p.breakers[src.Name]
	if !ok {
		return 0, fmt.Errorf("no breaker for source %s", src.Name)
	}
	out, err := cb.Execute(func() (interface{}, error) {
		html, err := p.get(ctx, src.URL)
		if err != nil {
			return nil, err
		}
		v, ok := src.Parse(html)
		if !ok {
			return nil, errNoValue
		}
		return v, nil
	})
	if err != nil {
		return 0, err
	}
	return out.(float64), nil
}

func (p *WebProvider) get(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request %s: status %d", pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pageURL, err)
	}
	return string(body), nil
}
