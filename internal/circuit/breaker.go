package circuit

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/capadapt/capadapt/pkg/errors"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed lets every call through
	StateClosed State = iota
	// StateOpen rejects calls until the open timeout elapses
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through
	StateHalfOpen
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config contains circuit breaker configuration
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	// 0 disables the breaker.
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// OpenTimeout is how long the circuit stays open before probing
	OpenTimeout time.Duration `yaml:"open_timeout"`

	// HalfOpenMaxRequests is the number of concurrent probes allowed while half-open
	HalfOpenMaxRequests uint32 `yaml:"half_open_max_requests"`

	// OnStateChange is called after every transition, outside the breaker lock
	OnStateChange func(name string, from, to State) `yaml:"-"`
}

// DefaultConfig returns the default breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		OpenTimeout:         time.Minute,
		HalfOpenMaxRequests: 1,
	}
}

// Counts holds the numbers of calls and their outcomes since the last transition
type Counts struct {
	Requests            uint32 `json:"requests"`
	Failures            uint32 `json:"failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	InFlight            uint32 `json:"in_flight"`
}

// Breaker implements the circuit breaker pattern
type Breaker struct {
	name   string
	config Config
	now    func() time.Time

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
}

// NewBreaker creates a closed breaker
func NewBreaker(name string, config Config) *Breaker {
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = DefaultConfig().OpenTimeout
	}
	if config.HalfOpenMaxRequests == 0 {
		config.HalfOpenMaxRequests = 1
	}
	return &Breaker{name: name, config: config, now: time.Now}
}

// Name returns the breaker name
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs fn unless the circuit is open. Context cancellation is not counted
// as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if b.config.FailureThreshold == 0 {
		return fn(ctx)
	}
	if err := b.before(); err != nil {
		return err
	}
	err := fn(ctx)
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	state, probing := b.currentState()
	var err error
	switch {
	case state == StateOpen:
		err = b.openError()
	case state == StateHalfOpen && b.counts.InFlight >= b.config.HalfOpenMaxRequests:
		err = b.openError()
	default:
		b.counts.Requests++
		b.counts.InFlight++
	}
	b.mu.Unlock()

	if probing {
		b.notify(StateOpen, StateHalfOpen)
	}
	return err
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	b.counts.InFlight--
	from := b.state
	to := from

	switch {
	case err == nil || stderrors.Is(err, context.Canceled):
		b.counts.ConsecutiveFailures = 0
		if from == StateHalfOpen {
			to = StateClosed
		}
	default:
		b.counts.Failures++
		b.counts.ConsecutiveFailures++
		if from == StateHalfOpen || b.counts.ConsecutiveFailures >= b.config.FailureThreshold {
			to = StateOpen
		}
	}
	if to != from {
		b.transition(to)
	}
	b.mu.Unlock()

	if to != from {
		b.notify(from, to)
	}
}

// currentState moves an expired open circuit to half-open and reports whether it
// did. Callers hold mu and notify after releasing it.
func (b *Breaker) currentState() (State, bool) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.config.OpenTimeout {
		b.transition(StateHalfOpen)
		return b.state, true
	}
	return b.state, false
}

func (b *Breaker) notify(from, to State) {
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) transition(to State) {
	inFlight := b.counts.InFlight
	b.state = to
	b.counts = Counts{InFlight: inFlight}
	if to == StateOpen {
		b.openedAt = b.now()
	}
}

func (b *Breaker) openError() error {
	retryIn := b.config.OpenTimeout - b.now().Sub(b.openedAt)
	if retryIn < 0 {
		retryIn = 0
	}
	return errors.NewError(errors.ErrCodeCircuitOpen, "circuit breaker is open").
		WithComponent("circuit").
		WithContext("breaker", b.name).
		WithContext("retry_in", retryIn.Round(time.Millisecond).String())
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	state, probing := b.currentState()
	b.mu.Unlock()
	if probing {
		b.notify(StateOpen, StateHalfOpen)
	}
	return state
}

// Counts returns the counters since the last transition
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset closes the circuit
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.transition(StateClosed)
	b.mu.Unlock()
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}
