// Package metrics enthält die Prometheus-Zähler der Pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PublicationsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publications_ingested_total",
			Help: "Publications written by ingestion, by result (created, updated).",
		},
		[]string{"result"},
	)
	RecordsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestion_records_dropped_total",
			Help: "Raw records skipped because they failed validation.",
		},
	)
	QueueItemsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extraction_queue_items_enqueued_total",
			Help: "Queue items inserted into the extraction queue.",
		},
	)
	ExtractionItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_items_processed_total",
			Help: "Queue items processed by the extraction runner, by outcome.",
		},
		[]string{"outcome"},
	)
	StorageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_failures_total",
			Help: "Best-effort storage writes that failed, by use case.",
		},
		[]string{"use_case"},
	)
)

func init() {
	prometheus.MustRegister(PublicationsIngested, RecordsDropped, QueueItemsEnqueued, ExtractionItems, StorageFailures)
}
