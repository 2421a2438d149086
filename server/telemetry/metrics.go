// Package telemetry exposes server counters in Prometheus text format.
// All metrics live in the default VictoriaMetrics set and are served by
// an optional HTTP endpoint; when no endpoint is configured the counters
// still update but are simply never scraped.
package telemetry

import (
	"fmt"
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"github.com/ValentinKolb/sKV/lib/store"
)

var (
	ConnectionsAccepted = metrics.NewCounter(`skv_connections_accepted_total`)
	ConnectionsClosed   = metrics.NewCounter(`skv_connections_closed_total`)
	ProtocolErrors      = metrics.NewCounter(`skv_protocol_errors_total`)
	ErrorReplies        = metrics.NewCounter(`skv_error_replies_total`)
	AOLRecords          = metrics.NewCounter(`skv_aol_records_total`)
)

// CommandCounter returns the per-command counter, creating it on first
// use so only commands actually seen appear in the export.
func CommandCounter(name string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`skv_commands_total{command=%q}`, name))
}

// RegisterStoreGauges exports keyspace gauges backed by live store state.
func RegisterStoreGauges(st store.IStore) {
	metrics.NewGauge(`skv_keys`, func() float64 {
		return float64(st.Stats().Keys)
	})
	metrics.NewGauge(`skv_keys_expiring`, func() float64 {
		return float64(st.Stats().Expiring)
	})
	metrics.NewGauge(`skv_evicted_keys_total`, func() float64 {
		return float64(st.Stats().Evictions)
	})
	metrics.NewGauge(`skv_expired_keys_total`, func() float64 {
		s := st.Stats()
		return float64(s.ExpiredLazy + s.ExpiredActive)
	})
}

// Handler serves the metrics endpoint ("/metrics").
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
}
