package prom

import (
	"strconv"
	"time"

	"github.com/IvanBrykalov/computecore/pool"
	"github.com/prometheus/client_golang/prometheus"
)

// Pool implements pool.Metrics.
type Pool struct {
	submitted *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	completed *prometheus.HistogramVec
	timedOut  *prometheus.CounterVec
	crashes   prometheus.Counter
	units     prometheus.Gauge
	busy      prometheus.Gauge
	queue     prometheus.Gauge
}

// NewPool constructs and registers the pool metrics.
func NewPool(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Pool {
	a := &Pool{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "tasks_submitted_total",
			Help:        "Tasks accepted into the queue",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "tasks_rejected_total",
			Help:        "Tasks refused because the queue was full",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		completed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "task_duration_seconds",
			Help:        "Execution time of tasks that ran to completion",
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 8),
			ConstLabels: constLabels,
		}, []string{"kind", "outcome"}),
		timedOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "tasks_timed_out_total",
			Help:        "Tasks that outlived the task timeout",
			ConstLabels: constLabels,
		}, []string{"kind", "dispatched"}),
		crashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "unit_crashes_total",
			Help:        "Execution units lost to a panic or unexpected exit",
			ConstLabels: constLabels,
		}),
		units: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "units",
			Help:        "Live execution units",
			ConstLabels: constLabels,
		}),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "units_busy",
			Help:        "Execution units running a task",
			ConstLabels: constLabels,
		}),
		queue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "queue_length",
			Help:        "Tasks waiting for a unit",
			ConstLabels: constLabels,
		}),
	}
	registerer(reg).MustRegister(a.submitted, a.rejected, a.completed, a.timedOut, a.crashes, a.units, a.busy, a.queue)
	return a
}

func (a *Pool) Submitted(kind string) { a.submitted.WithLabelValues(kind).Inc() }
func (a *Pool) Rejected(kind string)  { a.rejected.WithLabelValues(kind).Inc() }

func (a *Pool) Completed(kind string, d time.Duration, err error) {
	a.completed.WithLabelValues(kind, outcome(err)).Observe(d.Seconds())
}

func (a *Pool) TimedOut(kind string, dispatched bool) {
	a.timedOut.WithLabelValues(kind, strconv.FormatBool(dispatched)).Inc()
}

func (a *Pool) UnitCrashed() { a.crashes.Inc() }

func (a *Pool) Units(total, busy int) {
	a.units.Set(float64(total))
	a.busy.Set(float64(busy))
}

func (a *Pool) Queue(length int) { a.queue.Set(float64(length)) }

var _ pool.Metrics = (*Pool)(nil)
