// Package resilience guards calls to text-generation backends and remote
// record sources with circuit breakers, retries and error classification.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/config"
)

// State is the position of a breaker.
type State int

const (
	// Closed lets calls through.
	Closed State = iota
	// Open rejects calls until the reset timeout elapses.
	Open
	// HalfOpen admits probe calls after the reset timeout.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a breaker rejects a call without running it.
var ErrOpen = eris.New("circuit breaker is open")

// BreakerConfig controls breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// Probes is the number of successful half-open calls needed to close.
	// Default: 1.
	Probes int

	// OnTransition is called with the breaker name on every state change.
	OnTransition func(name string, from, to State)
}

// NewBreakerConfig converts the circuit section of the app config.
func NewBreakerConfig(cfg config.CircuitConfig) BreakerConfig {
	return BreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     time.Duration(cfg.ResetTimeoutSecs) * time.Second,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.Probes <= 0 {
		c.Probes = 1
	}
	return c
}

// Breaker trips after consecutive failures of one backend.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	probes   int
	openedAt time.Time

	now func() time.Time
}

// NewBreaker creates a closed breaker for the named backend.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{
		name: name,
		cfg:  cfg.withDefaults(),
		now:  time.Now,
	}
}

// Name returns the backend name the breaker guards.
func (b *Breaker) Name() string { return b.name }

// Call runs fn unless the breaker is open. Cancellation by the caller is
// not counted as a backend failure; an exceeded deadline is.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err != nil && !errors.Is(ctx.Err(), context.Canceled))
	if err != nil {
		return zero, err
	}
	return val, nil
}

// State returns the current state, reporting HalfOpen once an open
// breaker's reset timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return HalfOpen
	}
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probes = 0
	if b.state != Closed {
		b.moveTo(Closed)
	}
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
		return eris.Wrapf(ErrOpen, "breaker %s", b.name)
	}
	b.moveTo(HalfOpen)
	return nil
}

func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !failed {
		switch b.state {
		case HalfOpen:
			b.probes++
			if b.probes >= b.cfg.Probes {
				b.failures = 0
				b.probes = 0
				b.moveTo(Closed)
			}
		case Closed:
			b.failures = 0
		}
		return
	}

	b.failures++
	switch b.state {
	case Closed:
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			b.moveTo(Open)
		}
	case HalfOpen:
		b.probes = 0
		b.openedAt = b.now()
		b.moveTo(Open)
	}
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(to State) {
	from := b.state
	b.state = to
	zap.L().Info("resilience: breaker state change",
		zap.String("backend", b.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	if b.cfg.OnTransition != nil {
		b.cfg.OnTransition(b.name, from, to)
	}
}
