// Package monitoring exposes kernel activity as Prometheus metrics.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the kernel.
type Metrics struct {
	// Syscall metrics
	SyscallsTotal   *prometheus.CounterVec
	SyscallDuration *prometheus.HistogramVec

	// Message metrics
	MessagesSent *prometheus.CounterVec
	RepliesSent  prometheus.Counter

	// Memory metrics
	FramesInUse prometheus.Gauge
	PagesLent   prometheus.Gauge
	PagesMoved  prometheus.Counter

	// Process metrics
	ProcessesActive prometheus.Gauge
	ServersActive   prometheus.Gauge
	Connections     prometheus.Gauge
}

// NewMetrics creates a kernel metrics collector registered with the default
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		SyscallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_syscalls_total",
				Help: "Total syscalls by call name and outcome",
			},
			[]string{"call", "outcome"},
		),
		SyscallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_syscall_duration_seconds",
				Help:    "Syscall duration in seconds, including time blocked",
				Buckets: []float64{.000001, .00001, .0001, .001, .01, .1, 1, 10},
			},
			[]string{"call"},
		),
		MessagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_messages_sent_total",
				Help: "Messages delivered by kind",
			},
			[]string{"kind"},
		),
		RepliesSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_replies_sent_total",
				Help: "Replies delivered to blocked senders",
			},
		),
		FramesInUse: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_frames_in_use",
				Help: "Allocated physical frames",
			},
		),
		PagesLent: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_pages_lent",
				Help: "Pages currently mapped into a borrower",
			},
		),
		PagesMoved: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_pages_moved_total",
				Help: "Pages whose ownership changed hands",
			},
		),
		ProcessesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_processes_active",
				Help: "Live processes",
			},
		),
		ServersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_servers_active",
				Help: "Registered servers",
			},
		),
		Connections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_connections",
				Help: "Live connections across all processes",
			},
		),
	}
}

// RecordSyscall counts one syscall by name and outcome. Nil-safe so the
// kernel can run without a collector.
func (m *Metrics) RecordSyscall(call, outcome string) {
	if m == nil {
		return
	}
	m.SyscallsTotal.WithLabelValues(call, outcome).Inc()
}

// RecordMessage counts one delivered message by kind.
func (m *Metrics) RecordMessage(kind string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(kind).Inc()
}

// RecordReply counts one reply.
func (m *Metrics) RecordReply() {
	if m == nil {
		return
	}
	m.RepliesSent.Inc()
}

// RecordMove counts pages whose ownership changed.
func (m *Metrics) RecordMove(pages int) {
	if m == nil {
		return
	}
	m.PagesMoved.Add(float64(pages))
}

// SetFramesInUse updates the allocated-frame gauge.
func (m *Metrics) SetFramesInUse(n int) {
	if m == nil {
		return
	}
	m.FramesInUse.Set(float64(n))
}

// AddPagesLent tracks the borrow window opening (positive) or closing
// (negative).
func (m *Metrics) AddPagesLent(n int) {
	if m == nil {
		return
	}
	m.PagesLent.Add(float64(n))
}

// AddProcesses adjusts the live-process gauge.
func (m *Metrics) AddProcesses(n int) {
	if m == nil {
		return
	}
	m.ProcessesActive.Add(float64(n))
}

// AddServers adjusts the registered-server gauge.
func (m *Metrics) AddServers(n int) {
	if m == nil {
		return
	}
	m.ServersActive.Add(float64(n))
}

// AddConnections adjusts the live-connection gauge.
func (m *Metrics) AddConnections(n int) {
	if m == nil {
		return
	}
	m.Connections.Add(float64(n))
}
