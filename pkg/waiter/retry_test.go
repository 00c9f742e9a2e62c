package waiter

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudctl/cloudctl/pkg/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryTransient(t *testing.T) {
	transient := core.Transient("GetJob", errors.New("503"))
	notFound := core.NotFound("GetJob", errors.New("404"))

	tests := []struct {
		name       string
		steps      []step
		maxRetries int
		wantCalls  int
		wantErr    error
		wantState  string
	}{
		{
			name:       "recovers from transient failures",
			steps:      []step{{err: transient}, {err: transient}, {state: "SUCCEEDED"}},
			maxRetries: 3,
			wantCalls:  3,
			wantState:  "SUCCEEDED",
		},
		{
			name:       "gives up after max retries",
			steps:      []step{{err: transient}},
			maxRetries: 2,
			wantCalls:  3,
			wantErr:    transient,
		},
		{
			name:       "does not retry non-transient failures",
			steps:      []step{{err: notFound}, {state: "SUCCEEDED"}},
			maxRetries: 5,
			wantCalls:  1,
			wantErr:    notFound,
		},
		{
			name:       "disabled when max retries is zero",
			steps:      []step{{err: transient}, {state: "SUCCEEDED"}},
			maxRetries: 0,
			wantCalls:  1,
			wantErr:    transient,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &scriptedAccessor{steps: tt.steps}
			res, err := RetryTransient(a.fetch, tt.maxRetries, 0)(context.Background(), "ocid1.job")
			assert.Equal(t, tt.wantCalls, a.calls)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, res["lifecycleState"])
		})
	}
}

func TestRetryTransient_KeepsNotFoundVisibleToWaiter(t *testing.T) {
	a := &scriptedAccessor{steps: []step{{err: core.Transient("GetStack", errors.New("502"))}, {err: core.NotFound("GetStack", errors.New("gone"))}}}
	pt := target(a, "DELETED")
	pt.Accessor = RetryTransient(a.fetch, 3, 0)

	outcome, err := New(WithClock(newFakeClock())).Wait(context.Background(), pt, DefaultConfig(), true)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFoundTreatedAsSuccess, outcome.Status)
	assert.Equal(t, 2, a.calls)
}
