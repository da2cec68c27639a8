// Package breaker decorates a provider with a circuit breaker so a failing
// upstream is short-circuited instead of being called on every attempt.
package breaker

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vnmchuo/puqee/internal/provider"
)

type Settings struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

func DefaultSettings() Settings {
	return Settings{
		MaxRequests:         3,
		Interval:            5 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 3,
	}
}

type Provider struct {
	next provider.Provider
	cb   *gobreaker.CircuitBreaker
}

func Wrap(next provider.Provider, s Settings, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 3
	}
	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// A caller giving up is not the upstream's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &Provider{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (p *Provider) Generate(ctx context.Context, messages []provider.Message, opts provider.Options) (*provider.Response, error) {
	result, err := p.cb.Execute(func() (interface{}, error) {
		return p.next.Generate(ctx, messages, opts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, provider.NewError(p.Name(), 0, err)
		}
		return nil, err
	}
	return result.(*provider.Response), nil
}

func (p *Provider) State() gobreaker.State {
	return p.cb.State()
}

func (p *Provider) Name() string {
	return p.next.Name()
}

func (p *Provider) Model() string {
	return p.next.Model()
}

func (p *Provider) Close() error {
	if c, ok := p.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
