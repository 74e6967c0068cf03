package metrics

import (
	"fmt"
	"strings"
)

// FormatPrometheus formats a snapshot in Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	sb.WriteString("# HELP flowshaper_uptime_seconds Time since the shaper started\n")
	sb.WriteString("# TYPE flowshaper_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("flowshaper_uptime_seconds %d\n\n", snap.UptimeSeconds))

	sb.WriteString("# HELP flowshaper_enqueued_total Accepted enqueues by priority\n")
	sb.WriteString("# TYPE flowshaper_enqueued_total counter\n")
	for prio, count := range snap.Enqueued {
		sb.WriteString(fmt.Sprintf("flowshaper_enqueued_total{priority=\"%d\"} %d\n", prio, count))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP flowshaper_dispatched_total Dispatched elements by priority\n")
	sb.WriteString("# TYPE flowshaper_dispatched_total counter\n")
	for prio, count := range snap.Dispatched {
		sb.WriteString(fmt.Sprintf("flowshaper_dispatched_total{priority=\"%d\"} %d\n", prio, count))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP flowshaper_dispatched_bytes_total Dispatched payload bytes by priority\n")
	sb.WriteString("# TYPE flowshaper_dispatched_bytes_total counter\n")
	for prio, count := range snap.DispatchedBytes {
		sb.WriteString(fmt.Sprintf("flowshaper_dispatched_bytes_total{priority=\"%d\"} %d\n", prio, count))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP flowshaper_queue_depth Elements currently queued by priority\n")
	sb.WriteString("# TYPE flowshaper_queue_depth gauge\n")
	for prio, depth := range snap.QueueDepth {
		sb.WriteString(fmt.Sprintf("flowshaper_queue_depth{priority=\"%d\"} %d\n", prio, depth))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP flowshaper_queue_bytes Payload bytes currently queued by priority\n")
	sb.WriteString("# TYPE flowshaper_queue_bytes gauge\n")
	for prio, bytes := range snap.QueueBytes {
		sb.WriteString(fmt.Sprintf("flowshaper_queue_bytes{priority=\"%d\"} %d\n", prio, bytes))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP flowshaper_rejected_total Enqueues rejected for invalid priority\n")
	sb.WriteString("# TYPE flowshaper_rejected_total counter\n")
	sb.WriteString(fmt.Sprintf("flowshaper_rejected_total %d\n\n", snap.Rejected))

	sb.WriteString("# HELP flowshaper_dropped_total Items dropped before dispatch\n")
	sb.WriteString("# TYPE flowshaper_dropped_total counter\n")
	sb.WriteString(fmt.Sprintf("flowshaper_dropped_total %d\n", snap.Dropped))

	return sb.String()
}
