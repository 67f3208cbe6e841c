package db

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	promPoolMaxConns = prometheus.NewDesc(
		"db_pool_max_connections",
		"Maximum number of connections the pool may hold",
		nil, nil,
	)
	promPoolTotalConns = prometheus.NewDesc(
		"db_pool_total_connections",
		"Number of open connections, idle or borrowed",
		nil, nil,
	)
	promPoolIdleConns = prometheus.NewDesc(
		"db_pool_idle_connections",
		"Number of idle connections",
		nil, nil,
	)
	promPoolAcquiredConns = prometheus.NewDesc(
		"db_pool_acquired_connections",
		"Number of connections currently borrowed",
		nil, nil,
	)
	promPoolAcquireTotal = prometheus.NewDesc(
		"db_pool_acquire_total",
		"A counter of successful acquires",
		nil, nil,
	)
	promPoolReturnTotal = prometheus.NewDesc(
		"db_pool_return_total",
		"A counter of borrowed connections given back, by outcome",
		[]string{"outcome"}, nil,
	)
	promPoolEvictTotal = prometheus.NewDesc(
		"db_pool_evict_total",
		"A counter of idle connections closed by the pool, by reason",
		[]string{"reason"}, nil,
	)
	promPoolEmptyAcquireTotal = prometheus.NewDesc(
		"db_pool_empty_acquire_total",
		"A counter of acquires that had to open a new connection",
		nil, nil,
	)
)

// PoolCollector exports the counters of a Pool to prometheus.
type PoolCollector struct {
	pool *Pool
}

// NewPoolCollector returns a collector reading p.Stat on every scrape.
func NewPoolCollector(p *Pool) *PoolCollector {
	return &PoolCollector{pool: p}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- promPoolMaxConns
	ch <- promPoolTotalConns
	ch <- promPoolIdleConns
	ch <- promPoolAcquiredConns
	ch <- promPoolAcquireTotal
	ch <- promPoolReturnTotal
	ch <- promPoolEvictTotal
	ch <- promPoolEmptyAcquireTotal
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()

	ch <- prometheus.MustNewConstMetric(promPoolMaxConns, prometheus.GaugeValue, float64(s.MaxConns))
	ch <- prometheus.MustNewConstMetric(promPoolTotalConns, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(promPoolIdleConns, prometheus.GaugeValue, float64(s.IdleConns))
	ch <- prometheus.MustNewConstMetric(promPoolAcquiredConns, prometheus.GaugeValue, float64(s.AcquiredConns))
	ch <- prometheus.MustNewConstMetric(promPoolAcquireTotal, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(promPoolReturnTotal, prometheus.CounterValue, float64(s.ReleaseCount), "released")
	ch <- prometheus.MustNewConstMetric(promPoolReturnTotal, prometheus.CounterValue, float64(s.DiscardCount), "discarded")
	ch <- prometheus.MustNewConstMetric(promPoolEvictTotal, prometheus.CounterValue, float64(s.EvictCount), "idle_timeout")
	ch <- prometheus.MustNewConstMetric(promPoolEvictTotal, prometheus.CounterValue, float64(s.BrokenCount), "broken")
	ch <- prometheus.MustNewConstMetric(promPoolEmptyAcquireTotal, prometheus.CounterValue, float64(s.EmptyAcquireCount))
}
