// Package gateway dispatches generation requests to registered LLM
// providers with bounded, linearly backed-off retries.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/vnmchuo/puqee/internal/provider"
	"github.com/vnmchuo/puqee/internal/redact"
)

// RetryPolicy bounds how a single call is retried. Before attempt k (k >= 2)
// the gateway waits BaseDelay*(k-1).
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
	// Retryable, when set, stops the loop early for errors it rejects.
	// Nil retries every failure.
	Retryable func(error) bool
}

type Config struct {
	DefaultProvider string
	Retry           RetryPolicy
}

type Gateway struct {
	registry        *Registry
	defaultProvider string
	retry           RetryPolicy
	observers       []Observer
	tracer          trace.Tracer
	logger          *zap.Logger
}

type Option func(*Gateway)

func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gateway) {
		if tracer != nil {
			g.tracer = tracer
		}
	}
}

func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		if o != nil {
			g.observers = append(g.observers, o)
		}
	}
}

func New(cfg Config, registry *Registry, opts ...Option) *Gateway {
	if registry == nil {
		registry = NewRegistry()
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Retry.BaseDelay < 0 {
		cfg.Retry.BaseDelay = 0
	}
	g := &Gateway{
		registry:        registry,
		defaultProvider: cfg.DefaultProvider,
		retry:           cfg.Retry,
		tracer:          noop.NewTracerProvider().Tracer("gateway"),
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("component", "llm_gateway"))
	return g
}

func (g *Gateway) Registry() *Registry {
	return g.registry
}

func (g *Gateway) DefaultProvider() string {
	return g.defaultProvider
}

func (g *Gateway) Generate(ctx context.Context, messages []provider.Message, providerName string, opts provider.Options) (*provider.Response, error) {
	if err := validateMessages(messages); err != nil {
		return nil, err
	}

	name, p, err := g.resolve(providerName)
	if err != nil {
		return nil, err
	}

	ctx, span := g.tracer.Start(ctx, "gateway.generate", trace.WithAttributes(
		attribute.String("provider", name),
		attribute.Int("messages", len(messages)),
		attribute.Int("max_attempts", g.retry.MaxAttempts),
	))
	defer span.End()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := g.retry.BaseDelay * time.Duration(attempt-1)
			g.logger.Info("retrying llm call",
				zap.String("provider", name),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", g.retry.MaxAttempts),
				zap.Duration("delay", delay),
			)
			if err := sleep(ctx, delay); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "cancelled")
				return nil, fmt.Errorf("generate via %s cancelled after %d attempt(s): %w", name, attempts, err)
			}
		}

		attempts = attempt
		resp, err := g.attempt(ctx, p, name, attempt, messages, opts)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt))
			return resp, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			span.RecordError(ctxErr)
			span.SetStatus(codes.Error, "cancelled")
			return nil, fmt.Errorf("generate via %s cancelled after %d attempt(s): %w", name, attempts, ctxErr)
		}
		if g.retry.Retryable != nil && !g.retry.Retryable(err) {
			g.logger.Warn("llm error not retryable", zap.String("provider", name), zap.String("error", redact.Error(err)))
			break
		}
	}

	gwErr := &GatewayError{Provider: name, Attempts: attempts, Err: lastErr}
	span.SetAttributes(attribute.Int("attempts", attempts))
	span.RecordError(gwErr)
	span.SetStatus(codes.Error, "attempts exhausted")
	g.logger.Error("llm call failed",
		zap.String("provider", name),
		zap.Int("attempts", attempts),
		zap.String("error", redact.Error(lastErr)),
	)
	return nil, gwErr
}

// GenerateSimple sends an optional system prompt and one user message and
// returns only the reply text.
func (g *Gateway) GenerateSimple(ctx context.Context, systemPrompt, userMessage, providerName string, opts provider.Options) (string, error) {
	messages := make([]provider.Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: userMessage})

	resp, err := g.Generate(ctx, messages, providerName, opts)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (g *Gateway) Providers() []string {
	return g.registry.List()
}

type ProviderInfo struct {
	Name    string `json:"name"`
	Adapter string `json:"adapter"`
	Model   string `json:"model"`
	Default bool   `json:"default"`
}

// ProviderInfo describes a registered provider. Credentials are never exposed.
func (g *Gateway) ProviderInfo(name string) (ProviderInfo, error) {
	p, err := g.registry.Resolve(name)
	if err != nil {
		return ProviderInfo{}, err
	}
	return ProviderInfo{
		Name:    name,
		Adapter: p.Name(),
		Model:   p.Model(),
		Default: name == g.defaultProvider,
	}, nil
}

// Close releases adapters holding connections and empties the registry.
func (g *Gateway) Close() error {
	g.logger.Info("shutting down llm gateway")
	var errs []error
	for name, p := range g.registry.drain() {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (g *Gateway) resolve(name string) (string, provider.Provider, error) {
	if name != "" {
		p, err := g.registry.Resolve(name)
		if err != nil {
			return "", nil, err
		}
		return name, p, nil
	}

	if g.defaultProvider == "" {
		return "", nil, &ConfigurationError{Reason: "no default provider configured"}
	}
	p, err := g.registry.Resolve(g.defaultProvider)
	if err != nil {
		return "", nil, &ConfigurationError{Reason: "default provider unavailable", Err: err}
	}
	return g.defaultProvider, p, nil
}

func (g *Gateway) attempt(ctx context.Context, p provider.Provider, name string, n int, messages []provider.Message, opts provider.Options) (*provider.Response, error) {
	attemptCtx := ctx
	if g.retry.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, g.retry.AttemptTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.Generate(attemptCtx, messages, opts)
	if err == nil && resp == nil {
		err = provider.NewError(name, 0, errors.New("adapter returned no response"))
	}

	ev := AttemptEvent{
		Provider: name,
		Attempt:  n,
		Outcome:  OutcomeSuccess,
		Duration: time.Since(start),
		Err:      err,
	}
	if err != nil {
		ev.Outcome = OutcomeFailure
	}
	g.report(ctx, ev)

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *Gateway) report(ctx context.Context, ev AttemptEvent) {
	attrs := []attribute.KeyValue{
		attribute.Int("attempt", ev.Attempt),
		attribute.String("outcome", string(ev.Outcome)),
		attribute.Int64("duration_ms", ev.Duration.Milliseconds()),
	}
	if ev.Err != nil {
		attrs = append(attrs, attribute.String("error", redact.Error(ev.Err)))
	}
	trace.SpanFromContext(ctx).AddEvent("attempt", trace.WithAttributes(attrs...))

	for _, o := range g.observers {
		g.notify(ctx, o, ev)
	}
}

func (g *Gateway) notify(ctx context.Context, o Observer, ev AttemptEvent) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("attempt observer panicked", zap.Any("panic", r))
		}
	}()
	o.ObserveAttempt(ctx, ev)
}

func validateMessages(messages []provider.Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: messages must not be empty", ErrInvalidArgument)
	}
	for i, m := range messages {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: message %d has unknown role %q", ErrInvalidArgument, i, m.Role)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
