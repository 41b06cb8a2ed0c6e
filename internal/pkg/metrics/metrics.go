// Package metrics exposes the Prometheus vectors the queue scheduler,
// workers and HTTP layer record against: command submission/outcome
// counters, OCC retry/timeout counters, queue depth, and the usual
// HTTP request histograms.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPDuration is the standard http_request_duration_seconds
	// histogram, labeled by method/endpoint/status_code.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)
)

var (
	// CommandsSubmittedTotal counts accepted command intakes, by type.
	CommandsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_commands_submitted_total",
			Help: "Total number of commands accepted into the queue",
		},
		[]string{"type"},
	)

	// CommandsProcessedTotal counts handler outcomes by type and the
	// queue status they left the item in (processed, occ_timeout,
	// failed, dead_letter, or pending after a dependency revert).
	CommandsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_commands_processed_total",
			Help: "Total number of command handler outcomes, by resulting queue status",
		},
		[]string{"type", "status"},
	)

	// OCCRetriesTotal counts every STALE_ACCOUNT retry attempt inside
	// the OCC driver, regardless of eventual outcome.
	OCCRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_occ_retries_total",
			Help: "Total number of OCC retry attempts due to STALE_ACCOUNT",
		},
		[]string{"type"},
	)

	// OCCTimeoutsTotal counts pipelines that exhausted their retry
	// budget.
	OCCTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_occ_timeouts_total",
			Help: "Total number of commands that exhausted OCC retries",
		},
		[]string{"type"},
	)

	// DeadLettersTotal counts commands moved to dead_letter.
	DeadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_dead_letters_total",
			Help: "Total number of commands moved to dead_letter",
		},
		[]string{"type"},
	)

	// QueueDepthGauge reports, under the status label
	// "claimed_this_poll", how many items the scheduler claimed on its
	// most recent poll (at most the free worker slots). It is not a
	// count of every claimable item.
	QueueDepthGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledger_queue_depth",
			Help: "Number of command_queue_items claimed by the scheduler's most recent poll",
		},
		[]string{"status"},
	)

	// KafkaPublishErrorsTotal tracks sync-producer publish failures.
	KafkaPublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_kafka_publish_errors_total",
			Help: "Total number of Kafka publish errors",
		},
		[]string{"reason"},
	)

	// KafkaDroppedTotal counts commands dropped before they ever reach
	// Kafka, e.g. when the producer's input channel is full.
	KafkaDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_kafka_dropped_total",
			Help: "Total number of commands dropped before reaching Kafka",
		},
		[]string{"reason"},
	)
)

// RecordCommandSubmitted increments CommandsSubmittedTotal for a
// command type.
func RecordCommandSubmitted(commandType string) {
	CommandsSubmittedTotal.WithLabelValues(commandType).Inc()
}

// RecordCommandProcessed increments CommandsProcessedTotal for a
// (type, resulting queue status) pair.
func RecordCommandProcessed(commandType, status string) {
	CommandsProcessedTotal.WithLabelValues(commandType, status).Inc()
}

// RecordOCCRetry increments OCCRetriesTotal for a command type.
func RecordOCCRetry(commandType string) {
	OCCRetriesTotal.WithLabelValues(commandType).Inc()
}

// RecordOCCTimeout increments OCCTimeoutsTotal for a command type.
func RecordOCCTimeout(commandType string) {
	OCCTimeoutsTotal.WithLabelValues(commandType).Inc()
}

// RecordDeadLetter increments DeadLettersTotal for a command type.
func RecordDeadLetter(commandType string) {
	DeadLettersTotal.WithLabelValues(commandType).Inc()
}

// SetQueueDepth sets QueueDepthGauge to count for the status label.
func SetQueueDepth(status string, count float64) {
	QueueDepthGauge.WithLabelValues(status).Set(count)
}

// RecordEventDropped increments KafkaDroppedTotal, called when a
// command never reaches the Kafka producer.
func RecordEventDropped(reason string) {
	KafkaDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordEventPublishingError increments KafkaPublishErrorsTotal for a
// failed Kafka publish.
func RecordEventPublishingError(reason string) {
	KafkaPublishErrorsTotal.WithLabelValues(reason).Inc()
}
