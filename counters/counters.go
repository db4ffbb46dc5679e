// Package counters exports the resolution core's process-wide counters via
// prometheus, using the teacher's "*.n" counter naming convention
// (stats/target_stats.go, stats/proxy_stats.go).
package counters

import "github.com/prometheus/client_golang/prometheus"

const namespace = "uup"

var (
	ObjectHashHit = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "object_hash_hit_n",
		Help:      "object-hash lookups that found an existing entry",
	})
	ObjectHashMiss = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "object_hash_miss_n",
		Help:      "object-hash lookups that found nothing",
	})
	ObjectHashOverflows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "object_hash_overflows_n",
		Help:      "object-hash inserts that required an overflow row",
	})

	ModuleReload = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "module_reload_n",
		Help:      "segmented-module reload cycles, by module and outcome",
	}, []string{"module", "outcome"})
)

func init() {
	prometheus.MustRegister(ObjectHashHit, ObjectHashMiss, ObjectHashOverflows, ModuleReload)
}
