package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "grbl"

// Metrics содержит счетчики потоковой передачи, контроллера и сервера.
type Metrics struct {
	LinesSent        prometheus.Counter
	LinesAcked       prometheus.Counter
	ControllerErrors prometheus.Counter
	Outstanding      prometheus.Gauge
	Capacity         prometheus.Gauge
	JobState         prometheus.Gauge
	ClientsConnected prometheus.Gauge
	EventsPublished  *prometheus.CounterVec
}

// New создает метрики и регистрирует их в reg. При reg == nil метрики не регистрируются.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LinesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "streamer",
			Name:      "lines_sent_total",
			Help:      "Total number of program lines written to the controller",
		}),
		LinesAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "streamer",
			Name:      "lines_acked_total",
			Help:      "Total number of lines acknowledged with ok",
		}),
		ControllerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "errors_total",
			Help:      "Total number of error and alarm lines reported by the controller",
		}),
		Outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "streamer",
			Name:      "outstanding_bytes",
			Help:      "Bytes sent but not yet acknowledged",
		}),
		Capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "streamer",
			Name:      "capacity_bytes",
			Help:      "Last advertised controller receive buffer capacity",
		}),
		JobState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "state",
			Help:      "Job state (0=idle, 1=running, 2=paused)",
		}),
		ClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "clients_connected",
			Help:      "Number of connected protocol clients",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of broadcast events by kind",
		}, []string{"event"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.LinesSent,
			m.LinesAcked,
			m.ControllerErrors,
			m.Outstanding,
			m.Capacity,
			m.JobState,
			m.ClientsConnected,
			m.EventsPublished,
		)
	}
	return m
}

// NewUnregistered возвращает метрики без регистрации (для тестов и встраивания).
func NewUnregistered() *Metrics {
	return New(nil)
}
