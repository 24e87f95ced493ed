package prom

import (
	"time"

	"github.com/IvanBrykalov/computecore/modules"
	"github.com/prometheus/client_golang/prometheus"
)

// Modules implements modules.Metrics.
type Modules struct {
	loads    *prometheus.HistogramVec
	unloads  *prometheus.CounterVec
	resident prometheus.Gauge
}

// NewModules constructs and registers the module lifecycle metrics.
func NewModules(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Modules {
	a := &Modules{
		loads: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "load_duration_seconds",
			Help:        "Module loader duration by outcome",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"module", "outcome"}),
		unloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "unloads_total",
			Help:        "Module instances released",
			ConstLabels: constLabels,
		}, []string{"module"}),
		resident: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "resident",
			Help:        "Loaded module instances",
			ConstLabels: constLabels,
		}),
	}
	registerer(reg).MustRegister(a.loads, a.unloads, a.resident)
	return a
}

func (a *Modules) Load(key string, d time.Duration, err error) {
	a.loads.WithLabelValues(key, outcome(err)).Observe(d.Seconds())
}

func (a *Modules) Unload(key string) { a.unloads.WithLabelValues(key).Inc() }

func (a *Modules) Resident(loaded int) { a.resident.Set(float64(loaded)) }

var _ modules.Metrics = (*Modules)(nil)
