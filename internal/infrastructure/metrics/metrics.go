package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Registry holds every collector of the service.
type Registry struct {
	reg *prometheus.Registry

	ConnectAttempts   *prometheus.CounterVec
	ConnectionStatus  prometheus.Gauge
	Publishes         *prometheus.CounterVec
	PublishAttempts   prometheus.Histogram
	Subscribes        *prometheus.CounterVec
	MessagesIngested  *prometheus.CounterVec
	DevicesCreated    prometheus.Counter
	DispatchTargets   *prometheus.CounterVec
	GatewaysSwept     prometheus.Counter
	DevicesSweptOff   prometheus.Counter
	SnapshotsExported prometheus.Counter
}

// NewRegistry creates and registers all collectors under namespace.
func NewRegistry(namespace string) *Registry {
	r := &Registry{
		ConnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "connect_attempts_total",
				Help:      "Broker connect attempts by outcome",
			},
			[]string{"outcome"},
		),
		ConnectionStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "connection_status",
				Help:      "Current connection status (1=connected, 0=disconnected)",
			},
		),
		Publishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "publishes_total",
				Help:      "Publish calls by final outcome",
			},
			[]string{"outcome"},
		),
		PublishAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "publish_attempts",
				Help:      "Attempts needed per publish call",
				Buckets:   []float64{1, 2, 3, 5},
			},
		),
		Subscribes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "subscribes_total",
				Help:      "Subscribe calls by outcome",
			},
			[]string{"outcome"},
		),
		MessagesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "messages_total",
				Help:      "Inbound gateway messages by command and outcome",
			},
			[]string{"cmd", "outcome"},
		),
		DevicesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "devices_created_total",
				Help:      "Devices auto-created from gateway reports",
			},
		),
		DispatchTargets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "command",
				Name:      "targets_total",
				Help:      "Control targets by dispatch outcome",
			},
			[]string{"outcome"},
		),
		GatewaysSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "swept_offline_total",
				Help:      "Gateways marked offline by the staleness sweep",
			},
		),
		DevicesSweptOff: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "devices_swept_offline_total",
				Help:      "Devices marked offline by the staleness sweep",
			},
		),
		SnapshotsExported: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "influxdb",
				Name:      "snapshots_total",
				Help:      "Device snapshots written to the time-series store",
			},
		),
	}

	r.reg = prometheus.NewRegistry()
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ConnectAttempts,
		r.ConnectionStatus,
		r.Publishes,
		r.PublishAttempts,
		r.Subscribes,
		r.MessagesIngested,
		r.DevicesCreated,
		r.DispatchTargets,
		r.GatewaysSwept,
		r.DevicesSweptOff,
		r.SnapshotsExported,
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeOK
}

// ObserveConnect records a broker connect attempt.
func (r *Registry) ObserveConnect(err error) {
	r.ConnectAttempts.WithLabelValues(outcome(err)).Inc()
}

// SetConnected records the session state.
func (r *Registry) SetConnected(connected bool) {
	if connected {
		r.ConnectionStatus.Set(1)
		return
	}
	r.ConnectionStatus.Set(0)
}

// ObservePublish records a finished publish call.
func (r *Registry) ObservePublish(attempts int, err error) {
	r.Publishes.WithLabelValues(outcome(err)).Inc()
	r.PublishAttempts.Observe(float64(attempts))
}

// ObserveSubscribe records a subscribe call. The topic is not a label to
// keep cardinality bounded.
func (r *Registry) ObserveSubscribe(_ string, err error) {
	r.Subscribes.WithLabelValues(outcome(err)).Inc()
}

// ObserveMessage records one inbound message.
func (r *Registry) ObserveMessage(cmd, result string) {
	r.MessagesIngested.WithLabelValues(cmd, result).Inc()
}

// ObserveDeviceCreated records an auto-created device.
func (r *Registry) ObserveDeviceCreated() {
	r.DevicesCreated.Inc()
}

// ObserveDispatch records dispatch results for a batch.
func (r *Registry) ObserveDispatch(succeeded, failed int) {
	r.DispatchTargets.WithLabelValues(OutcomeOK).Add(float64(succeeded))
	r.DispatchTargets.WithLabelValues(OutcomeFailed).Add(float64(failed))
}

// ObserveSweep records a staleness sweep.
func (r *Registry) ObserveSweep(gateways int, devices int64) {
	r.GatewaysSwept.Add(float64(gateways))
	r.DevicesSweptOff.Add(float64(devices))
}

// ObserveSnapshot records a snapshot written to the time-series store.
func (r *Registry) ObserveSnapshot() {
	r.SnapshotsExported.Inc()
}
