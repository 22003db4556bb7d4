package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"k8s.io/klog/v2"
)

type metrics struct {
	logger   logr.Logger
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer, logger logr.Logger) *metrics {
	m := &metrics{
		logger: logger,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usersync",
			Name:      "http_requests_total",
			Help:      "Requests handled by the users collection, by route and status code.",
		}, []string{"method", "route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "usersync",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of requests handled by the users collection.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.requests,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// instrument records every routed request in the metrics and the access log,
// and hands the server's logger to the handler through the request context
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(klog.NewContext(r.Context(), m.logger))

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		snoop := httpsnoop.CaptureMetrics(next, w, r)

		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(snoop.Code)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(snoop.Duration.Seconds())

		m.logger.V(2).Info("Handled request",
			"method", r.Method, "url", r.URL.String(), "status", snoop.Code,
			"duration", snoop.Duration, "bytes", snoop.Written)
	})
}

// shardCollector reports the number of users stored on each shard at scrape time
type shardCollector struct {
	counter ShardCounter
	users   *prometheus.Desc
	timeout time.Duration
}

func newShardCollector(counter ShardCounter) *shardCollector {
	return &shardCollector{
		counter: counter,
		users: prometheus.NewDesc("usersync_shard_users",
			"Users stored on each shard.", []string{"shard"}, nil),
		timeout: 5 * time.Second,
	}
}

func (c *shardCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.users
}

func (c *shardCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	counts, err := c.counter.CountUsersPerShard(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.users, err)
		return
	}
	for shardID, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.users, prometheus.GaugeValue, float64(n), strconv.Itoa(shardID))
	}
}
