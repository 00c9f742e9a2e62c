package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudctl/cloudctl/pkg/request"
	"github.com/cloudctl/cloudctl/pkg/waiter"

	"github.com/spf13/cobra"
)

var errWaitTimedOut = errors.New("timed out waiting for the resource to reach the requested state")

func addWaitFlags(cmd *cobra.Command, w *request.WaitFlags, states []string) {
	defaults := request.DefaultWaitFlags()
	cmd.Flags().StringSliceVar(&w.States, "wait-for-state", nil, fmt.Sprintf(`Wait until the resource reaches one of the given states (case-insensitive).
May be repeated. Accepted values: %s`, strings.Join(states, ", ")))
	cmd.Flags().IntVar(&w.MaxWaitSeconds, "max-wait-seconds", defaults.MaxWaitSeconds, "The maximum time to wait for the resource to reach a state defined by --wait-for-state")
	cmd.Flags().IntVar(&w.IntervalSeconds, "wait-interval-seconds", defaults.IntervalSeconds, "The time between checks of the resource state while waiting")
	cmd.Flags().IntVar(&w.MaxRetries, "max-retries", defaults.MaxRetries, "Retry transient failures while waiting up to this many times")
}

// waitJob is a wait that a command asks for after its mutation succeeded.
type waitJob struct {
	flags      request.WaitFlags
	id         string
	stateField string
	accessor   waiter.Accessor
	deletion   bool
	// initial is rendered when no wait was requested.
	initial map[string]any
}

func (j waitJob) run(ctx context.Context, out io.Writer) error {
	if !j.flags.Enabled() {
		if j.initial == nil {
			return nil
		}
		return render(out, flagOutput, j.initial)
	}

	outcome, err := waiter.New().Wait(ctx, j.flags.Target(j.id, j.stateField, j.accessor), j.flags.Config(), j.deletion)
	if err != nil {
		metrics.ObserveWait("error", outcome.Calls, outcome.Elapsed)
		return err
	}
	metrics.ObserveWait(outcome.Status.String(), outcome.Calls, outcome.Elapsed)

	switch outcome.Status {
	case waiter.StatusTimedOut:
		slog.Warn("failed to wait until the resource entered the specified state, outputting last known resource state",
			slog.String("id", j.id),
			slog.String("state", outcome.State),
			slog.Int("calls", outcome.Calls),
		)
		if outcome.Resource != nil {
			if err := render(out, flagOutput, outcome.Resource); err != nil {
				return err
			}
		}
		return errWaitTimedOut
	case waiter.StatusNotFoundTreatedAsSuccess:
		slog.Info("resource no longer exists", slog.String("id", j.id))
		return nil
	}

	return render(out, flagOutput, outcome.Resource)
}
