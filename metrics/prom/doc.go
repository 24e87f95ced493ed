// Package prom exports pool, cache, module and coordinator signals to
// Prometheus. Each constructor takes:
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
//
// All adapters are safe for concurrent use; Prometheus metric types are
// goroutine-safe.
package prom

import "github.com/prometheus/client_golang/prometheus"

func registerer(reg prometheus.Registerer) prometheus.Registerer {
	if reg == nil {
		return prometheus.DefaultRegisterer
	}
	return reg
}

// outcome maps an error to a stable label value.
func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
