// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

// Package metrics exposes prometheus instrumentation for the pipeline.
// Failures never surface to end users; queue depth and these counters are
// how operators see the system.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admission metrics
	EventsAdmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_events_admitted_total",
			Help: "Events that passed admission validation",
		},
		[]string{"kind"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_events_rejected_total",
			Help: "Events dropped at admission",
		},
		[]string{"kind", "reason"}, // "unrecoverable", "no_tenant"
	)

	// Queue metrics
	JobsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_jobs_published_total",
			Help: "Jobs appended to a queue",
		},
		[]string{"queue"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_jobs_processed_total",
			Help: "Jobs executed to commit",
		},
		[]string{"queue"},
	)

	JobsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_jobs_dropped_total",
			Help: "Jobs dropped without retry",
		},
		[]string{"queue", "reason"}, // "no_tenant", "target_gone", "unrecoverable"
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_jobs_failed_total",
			Help: "Job executions handed back to the queue retry policy",
		},
		[]string{"queue"},
	)

	JobsPoisoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursetrace_jobs_poisoned_total",
			Help: "Jobs routed to the poison queue after exhausting retries",
		},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coursetrace_queue_depth",
			Help: "Published-minus-acknowledged jobs per queue",
		},
		[]string{"queue"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursetrace_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	// Upsert layer metrics
	RecordsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_records_inserted_total",
			Help: "New records inserted by natural key",
		},
		[]string{"kind"},
	)

	RecordDurationUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_record_duration_updates_total",
			Help: "Existing records whose duration was superseded",
		},
		[]string{"kind"},
	)

	RecordDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_record_duplicates_total",
			Help: "Duplicate deliveries discarded by the upsert policy",
		},
		[]string{"kind"},
	)

	// Read side
	ProgressComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_progress_computations_total",
			Help: "Progress snapshots synthesized",
		},
		[]string{"strategy"}, // "leaf", "video", "container"
	)
)

// RecordAdmitted increments the admission counter for a kind.
func RecordAdmitted(kind string) {
	EventsAdmitted.WithLabelValues(kind).Inc()
}

// RecordRejected increments the rejection counter.
func RecordRejected(kind, reason string) {
	EventsRejected.WithLabelValues(kind, reason).Inc()
}

// RecordPublished increments the published counter and the depth gauge.
func RecordPublished(queue string) {
	JobsPublished.WithLabelValues(queue).Inc()
	QueueDepth.WithLabelValues(queue).Inc()
}

// RecordProcessed increments the processed counter and decrements depth.
func RecordProcessed(queue string, elapsed time.Duration) {
	JobsProcessed.WithLabelValues(queue).Inc()
	QueueDepth.WithLabelValues(queue).Dec()
	JobDuration.WithLabelValues(queue).Observe(elapsed.Seconds())
}

// RecordDropped increments the drop counter and decrements depth.
func RecordDropped(queue, reason string) {
	JobsDropped.WithLabelValues(queue, reason).Inc()
	QueueDepth.WithLabelValues(queue).Dec()
}

// RecordFailed increments the failure counter. Depth is unchanged: the job
// goes back to the queue.
func RecordFailed(queue string) {
	JobsFailed.WithLabelValues(queue).Inc()
}

// RecordPoisoned increments the poisoned counter and releases the source
// queue's depth. The job left its category queue for good.
func RecordPoisoned(queue string) {
	JobsPoisoned.Inc()
	if queue != "" {
		QueueDepth.WithLabelValues(queue).Dec()
	}
}
