package textgen

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/resilience"
)

// GuardOptions tunes a guarded generator.
type GuardOptions struct {
	Breaker           *resilience.Breaker
	RequestsPerMinute int
	Timeout           time.Duration
}

type guarded struct {
	next    Generator
	breaker *resilience.Breaker
	limiter *rate.Limiter
	timeout time.Duration
}

// Guard wraps gen so every call waits for the rate limiter, runs under the
// timeout and passes through the breaker. There are no retries: one
// attempt per call. Every failure, including an empty completion, is
// returned as a *model.BackendError.
func Guard(gen Generator, opts GuardOptions) Generator {
	g := &guarded{
		next:    gen,
		breaker: opts.Breaker,
		timeout: opts.Timeout,
	}
	if g.breaker == nil {
		g.breaker = resilience.NewBreaker(gen.Provider(), resilience.BreakerConfig{})
	}
	if g.timeout <= 0 {
		g.timeout = 60 * time.Second
	}
	if opts.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return g
}

func (g *guarded) Provider() string { return g.next.Provider() }
func (g *guarded) Model() string    { return g.next.Model() }

func (g *guarded) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, g.fail(eris.Wrap(err, "rate limit wait"))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	c, err := resilience.Call(ctx, g.breaker, func(ctx context.Context) (*Completion, error) {
		c, err := g.next.Complete(ctx, p)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(c.Text) == "" {
			return nil, eris.New("empty completion")
		}
		return c, nil
	})
	if err != nil {
		return nil, g.fail(err)
	}
	return c, nil
}

func (g *guarded) fail(err error) error {
	return &model.BackendError{Backend: g.next.Provider(), Err: err}
}
