package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "playerhooks"

var (
	once sync.Once

	eventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Count of emissions that matched at least one endpoint, by topic.",
		},
		[]string{"topic"},
	)

	jobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_jobs_enqueued_total",
			Help:      "Count of delivery jobs handed to the scheduler, by topic and result.",
		},
		[]string{"topic", "result"},
	)

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Count of delivery attempts by topic and terminal state.",
		},
		[]string{"topic", "state"},
	)

	deliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent on a single outbound POST.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 7},
		},
	)

	schedulerFailovers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_failovers_total",
			Help:      "Count of scheduling calls routed to the fallback backend.",
		},
		[]string{"backend"},
	)

	deliveryJobs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivery_jobs",
			Help:      "Jobs held by a scheduler backend, by backend and state.",
		},
		[]string{"backend", "state"},
	)

	hooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hooks_received_total",
			Help:      "Count of lifecycle hooks received, by source and hook name.",
		},
		[]string{"source", "hook"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			eventsEmitted,
			jobsEnqueued,
			deliveries,
			deliveryDuration,
			schedulerFailovers,
			deliveryJobs,
			hooksReceived,
		)
	})
}

func IncEmitted(topic string) {
	eventsEmitted.WithLabelValues(topic).Inc()
}

func IncEnqueued(topic, result string) {
	jobsEnqueued.WithLabelValues(topic, result).Inc()
}

// IncDelivery counts one handled job. state is one of succeeded, retry_scheduled, exhausted.
func IncDelivery(topic, state string) {
	deliveries.WithLabelValues(topic, state).Inc()
}

func ObserveDeliveryDuration(seconds float64) {
	deliveryDuration.Observe(seconds)
}

func IncFailover(backend string) {
	schedulerFailovers.WithLabelValues(backend).Inc()
}

// SetDeliveryJobs records how many jobs a backend holds in state.
func SetDeliveryJobs(backend, state string, n int64) {
	deliveryJobs.WithLabelValues(backend, state).Set(float64(n))
}

func IncHookReceived(source, hook string) {
	hooksReceived.WithLabelValues(source, hook).Inc()
}
