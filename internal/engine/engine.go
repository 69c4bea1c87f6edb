package engine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/landform-io/landform/internal/provider"
	"github.com/landform-io/landform/internal/state"
)

const defaultParallelism = 10

// Metrics receives counters from planning and applying. Implementations
// must be safe for concurrent use.
type Metrics interface {
	RecordPlanChange(action string)
	RecordApplyOutcome(action, outcome string, d time.Duration)
}

// ApplyEvent is one progress notification during apply.
type ApplyEvent struct {
	Key      string
	Action   string
	Status   string // "started", "completed", "failed", "skipped"
	Duration time.Duration
	Error    error
}

// ApplyCallback receives apply events. Called from worker goroutines.
type ApplyCallback func(event ApplyEvent)

// Engine plans and applies resource configurations.
type Engine struct {
	registry    *provider.Registry
	store       state.Store
	log         zerolog.Logger
	metrics     Metrics
	events      ApplyCallback
	parallelism int
	retry       *RetryPolicy
	timeout     time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithEvents sets the apply progress callback.
func WithEvents(cb ApplyCallback) Option {
	return func(e *Engine) { e.events = cb }
}

// WithParallelism bounds concurrent provider calls.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithRetryPolicy overrides the retry policy for retryable provider errors.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithTimeout bounds a single provider call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New builds an Engine over a provider registry and a state store.
func New(registry *provider.Registry, store state.Store, opts ...Option) *Engine {
	e := &Engine{
		registry:    registry,
		store:       store,
		log:         zerolog.Nop(),
		parallelism: defaultParallelism,
		retry:       DefaultRetryPolicy(),
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) emit(ev ApplyEvent) {
	if e.events != nil {
		e.events(ev)
	}
}

func (e *Engine) recordOutcome(action, outcome string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordApplyOutcome(action, outcome, d)
	}
}
