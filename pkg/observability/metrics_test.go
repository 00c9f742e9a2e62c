package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveWait(t *testing.T) {
	m := NewMetrics(nil)

	m.ObserveWait("reached", 3, 60*time.Second)
	m.ObserveWait("timed_out", 4, 90*time.Second)

	assert.Equal(t, float64(7), testutil.ToFloat64(m.Wait.Polls))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Wait.Outcomes.WithLabelValues("reached")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Wait.Outcomes.WithLabelValues("timed_out")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Wait.Duration))
}

func TestMetrics_ObserveStep(t *testing.T) {
	m := NewMetrics(nil)

	m.ObserveStep("unlock", nil)
	m.ObserveStep("finalize", errors.New("locked"))

	expected := `
# HELP cloudctl_appliance_steps_total Number of appliance bring-up steps by result.
# TYPE cloudctl_appliance_steps_total counter
cloudctl_appliance_steps_total{result="failed",step="finalize"} 1
cloudctl_appliance_steps_total{result="success",step="unlock"} 1
`
	require.NoError(t, testutil.CollectAndCompare(m.Appliance.Steps, strings.NewReader(expected)))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveWait("reached", 1, time.Second)
	m.ObserveStep("unlock", nil)
}

func TestMetrics_PrivateRegistry(t *testing.T) {
	a := NewMetrics(nil)
	b := NewMetrics(nil)
	a.ObserveStep("unlock", nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(a.Appliance.Steps.WithLabelValues("unlock", ResultSuccess)))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.Appliance.Steps.WithLabelValues("unlock", ResultSuccess)))
}

func TestMetrics_Push(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMetrics(nil)
	m.ObserveWait("reached", 2, time.Second)

	require.NoError(t, m.Push(context.Background(), srv.URL, "cloudctl", "ci-runner-1"))
	assert.Equal(t, "/metrics/job/cloudctl/instance/ci-runner-1", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestInstrumentClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := NewMetrics(nil)
	c := InstrumentClient(m.Http, srv.Client())

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Http.RequestsTotal.WithLabelValues("get", "202")))
}
