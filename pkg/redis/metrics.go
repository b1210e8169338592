package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	goredis "github.com/redis/go-redis/v9"
)

var (
	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_command_duration_seconds",
			Help:    "Redis command latency by command and result (ok, nil, error)",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"command", "result"},
	)
	dialErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redis_dial_errors_total",
		Help: "Failed connection attempts to Redis",
	})
)

// hook times commands; pipelines (the idempotency sweep) are recorded as one "pipeline" command.
type hook struct{}

func (hook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			dialErrors.Inc()
		}
		return conn, err
	}
}

func (hook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		started := time.Now()
		err := next(ctx, cmd)
		record(cmd.Name(), started, err)
		return err
	}
}

func (hook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		started := time.Now()
		err := next(ctx, cmds)
		record("pipeline", started, err)
		return err
	}
}

func record(command string, started time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, goredis.Nil):
		result = "nil"
	case err != nil:
		result = "error"
	}
	commandDuration.WithLabelValues(command, result).Observe(time.Since(started).Seconds())
}

// poolCollector exports connection pool stats at scrape time.
type poolCollector struct {
	client *goredis.Client
	hits   *prometheus.Desc
	misses *prometheus.Desc
	total  *prometheus.Desc
	idle   *prometheus.Desc
}

func newPoolCollector(c *goredis.Client) *poolCollector {
	return &poolCollector{
		client: c,
		hits:   prometheus.NewDesc("redis_pool_hits_total", "Connections reused from the pool", nil, nil),
		misses: prometheus.NewDesc("redis_pool_misses_total", "Connections that had to be dialed", nil, nil),
		total:  prometheus.NewDesc("redis_pool_connections", "Open connections", nil, nil),
		idle:   prometheus.NewDesc("redis_pool_idle_connections", "Idle connections", nil, nil),
	}
}

func (p *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.hits
	ch <- p.misses
	ch <- p.total
	ch <- p.idle
}

func (p *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.client.PoolStats()
	ch <- prometheus.MustNewConstMetric(p.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(p.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(p.total, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(p.idle, prometheus.GaugeValue, float64(s.IdleConns))
}
