package request

import (
	"time"

	"github.com/cloudctl/cloudctl/pkg/waiter"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var positive = validation.Required.Error("must be positive")

// WaitFlags are the flags every waiting command accepts.
type WaitFlags struct {
	States          []string
	MaxWaitSeconds  int
	IntervalSeconds int
	MaxRetries      int
}

func DefaultWaitFlags() WaitFlags {
	return WaitFlags{
		MaxWaitSeconds:  waiter.DefaultMaxWaitSeconds,
		IntervalSeconds: waiter.DefaultIntervalSeconds,
	}
}

// Enabled reports whether the command should wait at all.
func (w WaitFlags) Enabled() bool {
	return len(w.States) > 0
}

// Validate checks the flags against the states the resource can be in.
func (w WaitFlags) Validate(op string, allowed []string) error {
	states := w.States
	if states == nil {
		states = []string{}
	}
	return Schema{
		"wait-for-state":        {EachOneOf(allowed...)},
		"max-wait-seconds":      {positive, validation.Min(1)},
		"wait-interval-seconds": {positive, validation.Min(1), validation.Max(w.MaxWaitSeconds).Error("must not exceed --max-wait-seconds")},
		"max-retries":           {validation.Min(0)},
	}.Validate(op, map[string]any{
		"wait-for-state":        states,
		"max-wait-seconds":      w.MaxWaitSeconds,
		"wait-interval-seconds": w.IntervalSeconds,
		"max-retries":           w.MaxRetries,
	})
}

func (w WaitFlags) Config() waiter.Config {
	return waiter.Config{MaxWaitSeconds: w.MaxWaitSeconds, IntervalSeconds: w.IntervalSeconds}
}

// Target builds the poll target for id. Transient fetch failures are retried when
// --max-retries is set.
func (w WaitFlags) Target(id, stateField string, accessor waiter.Accessor) waiter.PollTarget {
	return waiter.PollTarget{
		ID:         id,
		Accessor:   waiter.RetryTransient(accessor, w.MaxRetries, time.Duration(w.IntervalSeconds)*time.Second),
		StateField: stateField,
		Targets:    w.States,
	}
}
