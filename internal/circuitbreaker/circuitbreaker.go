package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the current state of a breaker.
//
//	Closed -> Open:      consecutive failures reach MaxFailures
//	Open -> HalfOpen:    RecoveryTimeout elapsed since the last failure
//	HalfOpen -> Closed:  a trial succeeds
//	HalfOpen -> Open:    a trial fails
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a breaker rejects a call.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds the configuration for a Breaker.
type Config struct {
	// Name identifies the protected adapter ("ses", "sns-sms", "push-relay").
	Name string

	// MaxFailures is the number of consecutive failures before the breaker opens.
	MaxFailures int

	// RecoveryTimeout is how long to stay open before letting a trial through.
	RecoveryTimeout time.Duration

	// HalfOpenMaxRequests caps concurrent trials while half-open.
	HalfOpenMaxRequests int

	// OnReject, when set, is called with Name for every rejected call.
	OnReject func(name string)
}

// DefaultConfig returns five failures, a thirty second cool-down and a single trial.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxFailures:         5,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// Breaker fails fast once a channel adapter keeps failing, so a dead
// provider costs one quick FAILED delivery instead of a full timeout.
type Breaker struct {
	mu     sync.Mutex
	config Config
	logger *zap.Logger
	now    func() time.Time

	state            State
	failureCount     int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	halfOpenRequests int

	totalRequests  int64
	totalFailures  int64
	totalSuccesses int64
	totalRejected  int64
}

// New creates a closed breaker, filling zero config fields with defaults.
func New(cfg Config, logger *zap.Logger) *Breaker {
	def := DefaultConfig(cfg.Name)
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}

	return &Breaker{
		config:          cfg,
		logger:          logger,
		now:             time.Now,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Name returns the configured breaker name.
func (b *Breaker) Name() string {
	return b.config.Name
}

// Do runs fn when the breaker admits the call and records its outcome.
// A rejected call returns an error wrapping ErrOpen without running fn.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		if b.config.OnReject != nil {
			b.config.OnReject(b.config.Name)
		}
		return fmt.Errorf("%w: %s unavailable", ErrOpen, b.config.Name)
	}

	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if b.now().Sub(b.lastFailureTime) >= b.config.RecoveryTimeout {
			b.transitionTo(StateHalfOpen)
			b.halfOpenRequests = 1
			return true
		}
		b.totalRejected++
		return false

	case StateHalfOpen:
		if b.halfOpenRequests < b.config.HalfOpenMaxRequests {
			b.halfOpenRequests++
			return true
		}
		b.totalRejected++
		return false
	}
	return false
}

// RecordSuccess resets the failure streak and closes a half-open breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccesses++
	b.failureCount = 0

	if b.state == StateHalfOpen {
		b.transitionTo(StateClosed)
	}
}

// RecordFailure extends the failure streak, opening the breaker at the threshold
// and re-opening it immediately from half-open.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures++
	b.failureCount++
	b.lastFailureTime = b.now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.MaxFailures {
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		b.transitionTo(StateOpen)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a point-in-time snapshot for the health endpoint.
type Stats struct {
	Name            string `json:"name"`
	State           string `json:"state"`
	FailureCount    int    `json:"failure_count"`
	TotalRequests   int64  `json:"total_requests"`
	TotalFailures   int64  `json:"total_failures"`
	TotalSuccesses  int64  `json:"total_successes"`
	TotalRejected   int64  `json:"total_rejected"`
	LastFailure     string `json:"last_failure,omitempty"`
	LastStateChange string `json:"last_state_change"`
}

// Stats returns the current counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Name:            b.config.Name,
		State:           b.state.String(),
		FailureCount:    b.failureCount,
		TotalRequests:   b.totalRequests,
		TotalFailures:   b.totalFailures,
		TotalSuccesses:  b.totalSuccesses,
		TotalRejected:   b.totalRejected,
		LastStateChange: b.lastStateChange.Format(time.RFC3339),
	}
	if !b.lastFailureTime.IsZero() {
		s.LastFailure = b.lastFailureTime.Format(time.RFC3339)
	}
	return s
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transitionTo(StateClosed)
	b.failureCount = 0
}

// must be called with mu held
func (b *Breaker) transitionTo(next State) {
	if b.state == next {
		return
	}

	prev := b.state
	b.state = next
	b.lastStateChange = b.now()
	b.halfOpenRequests = 0

	log := b.logger.Info
	if next == StateOpen {
		log = b.logger.Warn
	}
	log("circuit breaker state change",
		zap.String("breaker", b.config.Name),
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
		zap.Int("failures", b.failureCount),
	)
}

func (b *Breaker) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("Breaker[%s] state=%s failures=%d/%d",
		b.config.Name, b.state, b.failureCount, b.config.MaxFailures)
}
