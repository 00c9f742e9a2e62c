package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InstrumentRoundTripper wraps next so every request reports to the HTTP client collectors.
func InstrumentRoundTripper(metrics *HttpMetrics, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperCounter(
		metrics.RequestsTotal,
		promhttp.InstrumentRoundTripperDuration(
			metrics.RequestDuration,
			next,
		),
	)
}

// InstrumentClient returns a copy of c whose transport is instrumented.
func InstrumentClient(metrics *HttpMetrics, c *http.Client) *http.Client {
	instrumented := *c
	instrumented.Transport = InstrumentRoundTripper(metrics, c.Transport)
	return &instrumented
}
