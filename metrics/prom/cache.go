package prom

import (
	"github.com/IvanBrykalov/computecore/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Cache implements cache.Metrics.
type Cache struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evicts    *prometheus.CounterVec
	rejects   prometheus.Counter
	sizeEnt   prometheus.Gauge
	sizeBytes prometheus.Gauge
}

// NewCache constructs and registers the cache metrics.
func NewCache(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Cache {
	a := &Cache{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses, expired entries included",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		rejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "rejected_total",
			Help:        "Values refused at Set for failing the integrity check",
			ConstLabels: constLabels,
		}),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
		sizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_bytes",
			Help:        "Approximate resident memory",
			ConstLabels: constLabels,
		}),
	}
	registerer(reg).MustRegister(a.hits, a.misses, a.evicts, a.rejects, a.sizeEnt, a.sizeBytes)
	return a
}

// Hit increments the hit counter.
func (a *Cache) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Cache) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Cache) Evict(r cache.EvictReason) { a.evicts.WithLabelValues(r.String()).Inc() }

// Reject increments the integrity rejection counter.
func (a *Cache) Reject() { a.rejects.Inc() }

// Size updates gauges for the number of entries and their total size.
func (a *Cache) Size(entries int, bytes int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeBytes.Set(float64(bytes))
}

var _ cache.Metrics = (*Cache)(nil)
