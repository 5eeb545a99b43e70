// Package notifier delivers alert text to people: Telegram, Server酱 (WeChat
// push) or nowhere. Delivery failures are reported to the caller, which
// decides whether they matter.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"DipSentinel/internal/metrics"
)

// Notifier sends one message.
type Notifier interface {
	Send(ctx context.Context, text string) error
	Name() string
}

// Noop discards every message.
type Noop struct{}

func (Noop) Send(_ context.Context, text string) error {
	log.Debug().Int("len", len(text)).Msg("notification dropped, no channel configured")
	return nil
}

func (Noop) Name() string { return "noop" }

// Retrying retries a notifier with exponential backoff: Backoff, 2*Backoff, ...
type Retrying struct {
	Notifier   Notifier
	MaxRetries int
	Backoff    time.Duration
}

// WithRetry wraps n. A zero backoff means one second.
func WithRetry(n Notifier, maxRetries int, backoff time.Duration) *Retrying {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Retrying{Notifier: n, MaxRetries: maxRetries, Backoff: backoff}
}

func (r *Retrying) Name() string { return r.Notifier.Name() }

func (r *Retrying) Send(ctx context.Context, text string) error {
	var lastErr error
	for i := 0; i <= r.MaxRetries; i++ {
		err := r.Notifier.Send(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == r.MaxRetries {
			break
		}
		backoff := r.Backoff << uint(i)
		log.Warn().Err(err).Str("channel", r.Notifier.Name()).
			Int("attempt", i+1).Int("max", r.MaxRetries+1).Dur("backoff", backoff).
			Msg("send failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("all %d attempts exhausted: %w", r.MaxRetries+1, lastErr)
}

// Multi sends every message to all channels. It fails only if a channel
// failed, after trying all of them.
type Multi struct {
	Channels []Notifier
	Metrics  *metrics.Metrics
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Send(ctx context.Context, text string) error {
	var errs []error
	for _, ch := range m.Channels {
		err := ch.Send(ctx, text)
		m.Metrics.NotificationSent(ch.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		log.Info().Str("channel", ch.Name()).Msg("notification sent")
	}
	return errors.Join(errs...)
}
