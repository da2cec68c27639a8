package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vnmchuo/puqee/internal/redact"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// AttemptEvent describes one call to an adapter.
type AttemptEvent struct {
	Provider string
	Attempt  int
	Outcome  Outcome
	Duration time.Duration
	Err      error
}

// Observer receives one event per attempt. Implementations must be safe for
// concurrent use; a panic inside ObserveAttempt is recovered by the gateway.
type Observer interface {
	ObserveAttempt(ctx context.Context, ev AttemptEvent)
}

type ObserverFunc func(ctx context.Context, ev AttemptEvent)

func (f ObserverFunc) ObserveAttempt(ctx context.Context, ev AttemptEvent) {
	f(ctx, ev)
}

type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) ObserveAttempt(_ context.Context, ev AttemptEvent) {
	fields := []zap.Field{
		zap.String("provider", ev.Provider),
		zap.Int("attempt", ev.Attempt),
		zap.String("outcome", string(ev.Outcome)),
		zap.Duration("duration", ev.Duration),
	}
	if ev.Err != nil {
		o.logger.Warn("llm attempt failed", append(fields, zap.String("error", redact.Error(ev.Err)))...)
		return
	}
	o.logger.Debug("llm attempt succeeded", fields...)
}
