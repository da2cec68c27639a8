package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/vnmchuo/puqee/internal/provider"
)

type scriptedProvider struct {
	name       string
	model      string
	failures   int
	alwaysFail bool
	block      bool
	err        error

	calls  atomic.Int32
	closed atomic.Bool

	mu   sync.Mutex
	seen []provider.Message
}

func (p *scriptedProvider) Name() string  { return p.name }
func (p *scriptedProvider) Model() string { return p.model }

func (p *scriptedProvider) Generate(ctx context.Context, messages []provider.Message, _ provider.Options) (*provider.Response, error) {
	n := int(p.calls.Add(1))
	p.mu.Lock()
	p.seen = append([]provider.Message(nil), messages...)
	p.mu.Unlock()
	if p.block {
		<-ctx.Done()
		return nil, provider.NewError(p.name, 0, ctx.Err())
	}
	if p.alwaysFail || n <= p.failures {
		if p.err != nil {
			return nil, p.err
		}
		return nil, provider.NewError(p.name, 503, fmt.Errorf("attempt %d failed", n))
	}
	return &provider.Response{
		Content:  p.name + ": " + messages[len(messages)-1].Content,
		Model:    p.model,
		Provider: p.name,
	}, nil
}

func (p *scriptedProvider) Close() error {
	p.closed.Store(true)
	return nil
}

func userMessages(text string) []provider.Message {
	return []provider.Message{{Role: provider.RoleUser, Content: text}}
}

func newTestGateway(def string, policy RetryPolicy, providers ...*scriptedProvider) *Gateway {
	reg := NewRegistry()
	for _, p := range providers {
		reg.Register(p.name, p)
	}
	return New(Config{DefaultProvider: def, Retry: policy}, reg)
}

func TestGenerate_SucceedsFirstAttempt(t *testing.T) {
	p := &scriptedProvider{name: "alpha", model: "alpha-1"}
	g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 3}, p)

	resp, err := g.Generate(context.Background(), userMessages("hi"), "alpha", provider.Options{})
	require.NoError(t, err)
	assert.Equal(t, "alpha: hi", resp.Content)
	assert.Equal(t, "alpha", resp.Provider)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestGenerate_RetriesUntilSuccess(t *testing.T) {
	p := &scriptedProvider{name: "alpha", failures: 2}
	g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond}, p)

	start := time.Now()
	resp, err := g.Generate(context.Background(), userMessages("hi"), "", provider.Options{})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "alpha: hi", resp.Content)
	assert.EqualValues(t, 3, p.calls.Load())
	// 10ms before attempt 2, 20ms before attempt 3.
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestGenerate_ExhaustsAttempts(t *testing.T) {
	p := &scriptedProvider{name: "alpha", alwaysFail: true}
	g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 4}, p)

	_, err := g.Generate(context.Background(), userMessages("hi"), "alpha", provider.Options{})
	require.Error(t, err)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "alpha", gwErr.Provider)
	assert.Equal(t, 4, gwErr.Attempts)
	assert.Contains(t, gwErr.Error(), "attempt 4 failed")
	assert.EqualValues(t, 4, p.calls.Load())

	var provErr *provider.ProviderError
	assert.ErrorAs(t, err, &provErr)
}

func TestGenerate_NonEmptyContentProperty(t *testing.T) {
	roles := []provider.Role{provider.RoleSystem, provider.RoleUser, provider.RoleAssistant}
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		msgs := make([]provider.Message, n)
		for i := range msgs {
			msgs[i] = provider.Message{
				Role:    rapid.SampledFrom(roles).Draw(rt, "role"),
				Content: rapid.String().Draw(rt, "content"),
			}
		}

		p := &scriptedProvider{name: "alpha"}
		g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 2}, p)
		resp, err := g.Generate(context.Background(), msgs, "", provider.Options{})
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if resp.Content == "" {
			rt.Fatal("empty content")
		}
	})
}

func TestGenerate_ExhaustionWaitsLinearBackoff(t *testing.T) {
	p := &scriptedProvider{name: "alpha", alwaysFail: true}
	base := 15 * time.Millisecond
	g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 3, BaseDelay: base}, p)

	start := time.Now()
	_, err := g.Generate(context.Background(), userMessages("hi"), "alpha", provider.Options{})
	elapsed := time.Since(start)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, 3, gwErr.Attempts)
	assert.GreaterOrEqual(t, elapsed, 3*base)
}

func TestGenerate_AttemptCountProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxAttempts := rapid.IntRange(1, 6).Draw(rt, "maxAttempts")
		failures := rapid.IntRange(0, 8).Draw(rt, "failures")

		p := &scriptedProvider{name: "alpha", failures: failures}
		g := newTestGateway("alpha", RetryPolicy{MaxAttempts: maxAttempts}, p)

		_, err := g.Generate(context.Background(), userMessages("hi"), "", provider.Options{})

		wantCalls := min(failures+1, maxAttempts)
		if int(p.calls.Load()) != wantCalls {
			rt.Fatalf("calls = %d, want %d", p.calls.Load(), wantCalls)
		}
		if failures < maxAttempts {
			if err != nil {
				rt.Fatalf("unexpected error: %v", err)
			}
			return
		}
		var gwErr *GatewayError
		if !errors.As(err, &gwErr) || gwErr.Attempts != maxAttempts {
			rt.Fatalf("expected GatewayError with %d attempts, got %v", maxAttempts, err)
		}
	})
}

func TestGenerate_InvalidMessages(t *testing.T) {
	p := &scriptedProvider{name: "alpha"}
	g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 3}, p)

	tests := []struct {
		name     string
		messages []provider.Message
	}{
		{"nil", nil},
		{"empty", []provider.Message{}},
		{"unknown role", []provider.Message{{Role: "tool", Content: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Generate(context.Background(), tt.messages, "alpha", provider.Options{})
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
	assert.Zero(t, p.calls.Load())
}

func TestGenerate_UnknownProvider(t *testing.T) {
	p := &scriptedProvider{name: "alpha"}
	g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 3}, p)

	_, err := g.Generate(context.Background(), userMessages("hi"), "nope", provider.Options{})
	var cfgErr *ConfigurationError
	assert.False(t, errors.As(err, &cfgErr))
	var nf *ProviderNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.Name)
	assert.Zero(t, p.calls.Load())
}

func TestGenerate_DefaultResolution(t *testing.T) {
	alpha := &scriptedProvider{name: "alpha"}
	beta := &scriptedProvider{name: "beta"}

	t.Run("uses default when name is empty", func(t *testing.T) {
		g := newTestGateway("beta", RetryPolicy{MaxAttempts: 1}, alpha, beta)
		resp, err := g.Generate(context.Background(), userMessages("hi"), "", provider.Options{})
		require.NoError(t, err)
		assert.Equal(t, "beta", resp.Provider)
	})

	t.Run("dangling default", func(t *testing.T) {
		g := newTestGateway("gamma", RetryPolicy{MaxAttempts: 1}, alpha)
		_, err := g.Generate(context.Background(), userMessages("hi"), "", provider.Options{})
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		var nf *ProviderNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "gamma", nf.Name)
	})

	t.Run("no default", func(t *testing.T) {
		g := newTestGateway("", RetryPolicy{MaxAttempts: 1}, alpha)
		_, err := g.Generate(context.Background(), userMessages("hi"), "", provider.Options{})
		var cfgErr *ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})
}

func TestGenerate_ConcurrentCallsStayIsolated(t *testing.T) {
	names := []string{"alpha", "beta", "gamma", "delta"}
	providers := make([]*scriptedProvider, len(names))
	for i, n := range names {
		providers[i] = &scriptedProvider{name: n}
	}
	g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 2}, providers...)

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := names[i%len(names)]
			text := fmt.Sprintf("msg-%d", i)
			resp, err := g.Generate(context.Background(), userMessages(text), name, provider.Options{})
			if err != nil {
				errs <- err
				return
			}
			if want := name + ": " + text; resp.Content != want {
				errs <- fmt.Errorf("got %q, want %q", resp.Content, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	for _, p := range providers {
		assert.EqualValues(t, 50, p.calls.Load())
	}
}

func TestGenerate_RegisterWhileDispatching(t *testing.T) {
	g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 1}, &scriptedProvider{name: "alpha"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			g.Registry().Register(fmt.Sprintf("p%d", i), &scriptedProvider{name: fmt.Sprintf("p%d", i)})
		}(i)
		go func() {
			defer wg.Done()
			_, err := g.Generate(context.Background(), userMessages("hi"), "", provider.Options{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 51, g.Registry().Len())
}

func TestGenerate_CancelledDuringBackoff(t *testing.T) {
	p := &scriptedProvider{name: "alpha", alwaysFail: true}
	g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second}, p)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.Generate(ctx, userMessages("hi"), "alpha", provider.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var gwErr *GatewayError
	assert.False(t, errors.As(err, &gwErr))
	assert.EqualValues(t, 1, p.calls.Load())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGenerate_AttemptTimeout(t *testing.T) {
	p := &scriptedProvider{name: "alpha", block: true}
	g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 2, AttemptTimeout: 20 * time.Millisecond}, p)

	_, err := g.Generate(context.Background(), userMessages("hi"), "alpha", provider.Options{})
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, 2, gwErr.Attempts)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerate_RetryableClassifier(t *testing.T) {
	p := &scriptedProvider{
		name:       "alpha",
		alwaysFail: true,
		err:        provider.NewError("alpha", 401, errors.New("bad key")),
	}
	g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 3, Retryable: provider.IsRetryable}, p)

	_, err := g.Generate(context.Background(), userMessages("hi"), "alpha", provider.Options{})
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, 1, gwErr.Attempts)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestGenerate_ObserverSeesEveryAttempt(t *testing.T) {
	p := &scriptedProvider{name: "alpha", failures: 1}
	reg := NewRegistry()
	reg.Register("alpha", p)

	var mu sync.Mutex
	var events []AttemptEvent
	record := ObserverFunc(func(_ context.Context, ev AttemptEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	panicky := ObserverFunc(func(context.Context, AttemptEvent) { panic("boom") })

	g := New(Config{DefaultProvider: "alpha", Retry: RetryPolicy{MaxAttempts: 3}}, reg,
		WithObserver(panicky), WithObserver(record))

	_, err := g.Generate(context.Background(), userMessages("hi"), "", provider.Options{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, OutcomeFailure, events[0].Outcome)
	assert.Equal(t, 1, events[0].Attempt)
	assert.Error(t, events[0].Err)
	assert.Equal(t, OutcomeSuccess, events[1].Outcome)
	assert.Equal(t, 2, events[1].Attempt)
}

func TestGenerateSimple(t *testing.T) {
	p := &scriptedProvider{name: "alpha"}
	g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 1}, p)

	text, err := g.GenerateSimple(context.Background(), "be brief", "hello", "", provider.Options{})
	require.NoError(t, err)
	assert.Equal(t, "alpha: hello", text)
	assert.Equal(t, []provider.Message{
		{Role: provider.RoleSystem, Content: "be brief"},
		{Role: provider.RoleUser, Content: "hello"},
	}, p.seen)

	_, err = g.GenerateSimple(context.Background(), "", "hi", "", provider.Options{})
	require.NoError(t, err)
	assert.Equal(t, []provider.Message{{Role: provider.RoleUser, Content: "hi"}}, p.seen)
}

func TestProvidersAndInfo(t *testing.T) {
	alpha := &scriptedProvider{name: "alpha", model: "a-1"}
	beta := &scriptedProvider{name: "beta", model: "b-1"}
	g := newTestGateway("beta", RetryPolicy{MaxAttempts: 1}, beta, alpha)

	assert.Equal(t, []string{"alpha", "beta"}, g.Providers())

	info, err := g.ProviderInfo("beta")
	require.NoError(t, err)
	assert.Equal(t, ProviderInfo{Name: "beta", Adapter: "beta", Model: "b-1", Default: true}, info)

	_, err = g.ProviderInfo("gamma")
	var nf *ProviderNotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestClose(t *testing.T) {
	alpha := &scriptedProvider{name: "alpha"}
	g := newTestGateway("alpha", RetryPolicy{MaxAttempts: 1}, alpha)

	require.NoError(t, g.Close())
	assert.True(t, alpha.closed.Load())
	assert.Empty(t, g.Providers())
}
