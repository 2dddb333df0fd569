package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory server metrics using atomic counters.
type Metrics struct {
	startTime      time.Time
	requests       atomic.Int64
	serverErrors   atomic.Int64
	clientErrors   atomic.Int64
	batchApplied   atomic.Int64
	batchRejected  atomic.Int64
	pullRequests   atomic.Int64
	itemsDelivered atomic.Int64
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds        float64 `json:"uptime_seconds"`
	Requests             int64   `json:"requests"`
	ServerErrors         int64   `json:"server_errors"`
	ClientErrors         int64   `json:"client_errors"`
	BatchRecordsApplied  int64   `json:"batch_records_applied"`
	BatchRecordsRejected int64   `json:"batch_records_rejected"`
	PullRequests         int64   `json:"pull_requests"`
	ItemsDelivered       int64   `json:"items_delivered"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordRequest increments the total request counter.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordError increments the server error (5xx) counter.
func (m *Metrics) RecordError() {
	m.serverErrors.Add(1)
}

// RecordClientError increments the client error (4xx) counter.
func (m *Metrics) RecordClientError() {
	m.clientErrors.Add(1)
}

// RecordBatch adds applied and rejected record counts from one batch.
func (m *Metrics) RecordBatch(applied, rejected int64) {
	m.batchApplied.Add(applied)
	m.batchRejected.Add(rejected)
}

// RecordPullRequest increments the pull request counter.
func (m *Metrics) RecordPullRequest() {
	m.pullRequests.Add(1)
}

// RecordItemsDelivered adds n to the delivered items counter.
func (m *Metrics) RecordItemsDelivered(n int64) {
	m.itemsDelivered.Add(n)
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:        time.Since(m.startTime).Seconds(),
		Requests:             m.requests.Load(),
		ServerErrors:         m.serverErrors.Load(),
		ClientErrors:         m.clientErrors.Load(),
		BatchRecordsApplied:  m.batchApplied.Load(),
		BatchRecordsRejected: m.batchRejected.Load(),
		PullRequests:         m.pullRequests.Load(),
		ItemsDelivered:       m.itemsDelivered.Load(),
	}
}
