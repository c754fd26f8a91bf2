package okta

import (
	"github.com/prometheus/client_golang/prometheus"
)

var pagesFetched = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "oktascan",
	Subsystem: "api",
	Name:      "pages_fetched_total",
	Help:      "Number of paginated Okta API pages fetched.",
})

// RegisterMetrics registers the client's counters with the default registry
func RegisterMetrics() {
	prometheus.MustRegister(pagesFetched)
}
