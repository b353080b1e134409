package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler returns an http.Handler exposing the adapter's metrics in
// Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
