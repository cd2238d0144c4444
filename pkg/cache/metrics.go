package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_cache_requests_total",
		Help: "Cache lookups by cache name and result (hit, miss)",
	}, []string{"cache", "result"})

	CacheSetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_cache_sets_total",
		Help: "Accepted cache writes by cache name",
	}, []string{"cache"})
)
