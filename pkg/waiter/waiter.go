// Package waiter turns "fire an asynchronous mutation, then poll until a terminal state"
// into a single bounded operation.
package waiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudctl/cloudctl/pkg/core"
)

const (
	DefaultMaxWaitSeconds  = 1200
	DefaultIntervalSeconds = 30

	opWait = "Wait"
)

// Accessor re-fetches a resource and returns its raw JSON object.
type Accessor func(ctx context.Context, id string) (map[string]any, error)

// PollTarget identifies what is being awaited.
type PollTarget struct {
	ID         string
	Accessor   Accessor
	StateField string
	Targets    []string
}

func (t PollTarget) validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return core.Validation(opWait, "resource identifier is empty")
	}
	if t.Accessor == nil {
		return core.Validation(opWait, "no accessor configured for %s", t.ID)
	}
	if t.StateField == "" {
		return core.Validation(opWait, "no state field configured for %s", t.ID)
	}
	if len(t.Targets) == 0 {
		return core.Validation(opWait, "at least one target state is required")
	}
	return nil
}

func (t PollTarget) matches(state string) bool {
	for _, target := range t.Targets {
		if strings.EqualFold(target, state) {
			return true
		}
	}
	return false
}

// Config bounds the polling loop.
type Config struct {
	MaxWaitSeconds  int
	IntervalSeconds int
}

// DefaultConfig waits up to 1200 seconds, polling every 30 seconds.
func DefaultConfig() Config {
	return Config{
		MaxWaitSeconds:  DefaultMaxWaitSeconds,
		IntervalSeconds: DefaultIntervalSeconds,
	}
}

// Validate reports a validation error unless both bounds are positive and the interval
// does not exceed the max wait.
func (c Config) Validate() error {
	errs := []error{}
	if c.MaxWaitSeconds <= 0 {
		errs = append(errs, fmt.Errorf("max wait seconds must be positive, got %d", c.MaxWaitSeconds))
	}
	if c.IntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("wait interval seconds must be positive, got %d", c.IntervalSeconds))
	}
	if c.MaxWaitSeconds > 0 && c.IntervalSeconds > c.MaxWaitSeconds {
		errs = append(errs, fmt.Errorf("wait interval seconds (%d) exceeds max wait seconds (%d)", c.IntervalSeconds, c.MaxWaitSeconds))
	}
	if err := errors.Join(errs...); err != nil {
		return core.Validation(opWait, "%w", err)
	}
	return nil
}

// MaxCalls is the upper bound of accessor calls a single Wait performs.
func (c Config) MaxCalls() int {
	return (c.MaxWaitSeconds+c.IntervalSeconds-1)/c.IntervalSeconds + 1
}

// Status is how a wait ended without an error.
type Status int

const (
	StatusReached Status = iota
	StatusTimedOut
	StatusNotFoundTreatedAsSuccess
)

func (s Status) String() string {
	switch s {
	case StatusReached:
		return "reached"
	case StatusTimedOut:
		return "timed_out"
	case StatusNotFoundTreatedAsSuccess:
		return "not_found_treated_as_success"
	default:
		return "unknown"
	}
}

// Outcome describes how a wait ended. State is the final state for StatusReached and the
// last known state otherwise. Resource is the last payload returned by the accessor.
type Outcome struct {
	Status   Status
	State    string
	Resource map[string]any
	Calls    int
	Elapsed  time.Duration
}

// Clock abstracts time so the loop can be driven deterministically.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Waiter polls resources until they reach a target state.
type Waiter struct {
	clock  Clock
	logger *slog.Logger
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(w *Waiter) {
		w.clock = c
	}
}

// WithLogger sets the logger for poll progress. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Waiter) {
		w.logger = l
	}
}

// New returns a Waiter on the wall clock.
func New(options ...Option) *Waiter {
	w := &Waiter{
		clock:  realClock{},
		logger: slog.Default(),
	}

	for _, option := range options {
		option(w)
	}

	return w
}

// Wait polls target until one of its target states is observed, max wait elapses, or the
// accessor fails. A not-found failure counts as success when deletion is true.
//
// The returned Outcome is never nil, so callers can render the last known state even when
// an error is returned. Errors are never retried.
func (w *Waiter) Wait(ctx context.Context, target PollTarget, cfg Config, deletion bool) (*Outcome, error) {
	outcome := &Outcome{}
	if err := target.validate(); err != nil {
		return outcome, err
	}
	if err := cfg.Validate(); err != nil {
		return outcome, err
	}

	var (
		start    = w.clock.Now()
		maxWait  = time.Duration(cfg.MaxWaitSeconds) * time.Second
		interval = time.Duration(cfg.IntervalSeconds) * time.Second
		logger   = w.logger.With(slog.String("id", target.ID), slog.Any("targets", target.Targets))
	)

	for {
		if err := ctx.Err(); err != nil {
			return outcome, core.Cancelled(opWait, err)
		}

		resource, err := target.Accessor(ctx, target.ID)
		outcome.Calls++
		outcome.Elapsed = w.clock.Now().Sub(start)
		if err != nil {
			switch {
			case core.IsNotFound(err) && deletion:
				logger.Debug("resource no longer exists, treating deletion as complete")
				outcome.Status = StatusNotFoundTreatedAsSuccess
				return outcome, nil
			case errors.Is(err, context.Canceled):
				return outcome, core.Cancelled(opWait, err)
			}
			return outcome, err
		}

		outcome.Resource = resource
		outcome.State = stateOf(resource, target.StateField)
		logger.Debug("polled resource", slog.String("state", outcome.State), slog.Int("call", outcome.Calls))

		if target.matches(outcome.State) {
			outcome.Status = StatusReached
			return outcome, nil
		}

		if outcome.Elapsed >= maxWait {
			outcome.Status = StatusTimedOut
			return outcome, nil
		}

		if err := w.clock.Sleep(ctx, min(interval, maxWait-outcome.Elapsed)); err != nil {
			return outcome, core.Cancelled(opWait, err)
		}
	}
}

// stateOf reads field from resource. Keys are matched case-insensitively as a fallback,
// since some services return the same field as lifecycleState and lifecycle_state.
func stateOf(resource map[string]any, field string) string {
	v, ok := resource[field]
	if !ok {
		normalized := normalizeKey(field)
		for k, candidate := range resource {
			if normalizeKey(k) == normalized {
				v, ok = candidate, true
				break
			}
		}
	}
	if !ok || v == nil {
		return ""
	}
	if s, isString := v.(string); isString {
		return s
	}
	return fmt.Sprint(v)
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(k))
}
