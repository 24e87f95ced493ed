package prom

import (
	"time"

	"github.com/IvanBrykalov/computecore/coordinator"
	"github.com/prometheus/client_golang/prometheus"
)

// Coordinator implements coordinator.Metrics.
type Coordinator struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	stored   *prometheus.HistogramVec
}

// NewCoordinator constructs and registers the request metrics.
func NewCoordinator(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Coordinator {
	a := &Coordinator{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "requests_total",
			Help:        "Run calls by how they were served: hit, miss or joined",
			ConstLabels: constLabels,
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "computation_duration_seconds",
			Help:        "Submit-to-result time of computations",
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 8),
			ConstLabels: constLabels,
		}, []string{"kind", "outcome"}),
		stored: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "result_size_bytes",
			Help:        "Accounted size of results written to the cache",
			Buckets:     prometheus.ExponentialBuckets(64, 4, 8),
			ConstLabels: constLabels,
		}, []string{"kind"}),
	}
	registerer(reg).MustRegister(a.requests, a.duration, a.stored)
	return a
}

func (a *Coordinator) Hit()    { a.requests.WithLabelValues("hit").Inc() }
func (a *Coordinator) Miss()   { a.requests.WithLabelValues("miss").Inc() }
func (a *Coordinator) Joined() { a.requests.WithLabelValues("joined").Inc() }

func (a *Coordinator) Observe(kind string, d time.Duration, err error) {
	a.duration.WithLabelValues(kind, outcome(err)).Observe(d.Seconds())
}

func (a *Coordinator) Stored(kind string, bytes int64) {
	a.stored.WithLabelValues(kind).Observe(float64(bytes))
}

var _ coordinator.Metrics = (*Coordinator)(nil)
