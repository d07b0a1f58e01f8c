// Package exporters publishes the collected metrics over HTTP for Prometheus
// and over the event bus for the live metrics stream.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler serves every metric registered with the default registry,
// including the Go runtime and process collectors. OpenMetrics is offered
// to scrapers that ask for it.
func HTTPHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
