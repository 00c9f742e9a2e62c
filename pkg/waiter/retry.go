package waiter

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudctl/cloudctl/pkg/core"

	"github.com/cenkalti/backoff/v4"
)

// RetryTransient wraps accessor so that transient failures are retried up to maxRetries
// times with a constant interval. Any other failure is returned after the first attempt.
//
// Waiter never retries on its own; this is meant for callers that opt in.
func RetryTransient(accessor Accessor, maxRetries int, interval time.Duration) Accessor {
	if maxRetries <= 0 {
		return accessor
	}

	return func(ctx context.Context, id string) (map[string]any, error) {
		var resource map[string]any
		err := backoff.RetryNotify(
			func() error {
				r, err := accessor(ctx, id)
				if err != nil {
					if core.IsTransient(err) {
						return err
					}
					return backoff.Permanent(err)
				}
				resource = r
				return nil
			},
			backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(maxRetries)), ctx),
			func(err error, next time.Duration) {
				slog.Debug("transient failure while polling, retrying",
					slog.String("id", id),
					slog.String("err", err.Error()),
					slog.Duration("next", next),
				)
			},
		)
		if err != nil {
			return nil, err
		}
		return resource, nil
	}
}
