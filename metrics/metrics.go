package metrics

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Metrics struct {
	mutex         sync.Mutex
	preCollectFns []func()
}

type MetricsHandler struct {
	mutex           sync.Mutex
	handler         http.Handler
	lastCollectTime time.Time
}

var metrics *Metrics = &Metrics{
	preCollectFns: []func(){},
}

var (
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexindexer",
		Name:      "events_processed_total",
		Help:      "Number of contract events handled by the watchers.",
	}, []string{"chain", "watcher", "event"})

	Cycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexindexer",
		Name:      "cycles_total",
		Help:      "Number of watcher cycles by result.",
	}, []string{"chain", "watcher", "result"})

	RpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexindexer",
		Name:      "rpc_requests_total",
		Help:      "Number of json-rpc requests per endpoint and result.",
	}, []string{"chain", "endpoint", "result"})

	RpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dexindexer",
		Name:      "rpc_duration_seconds",
		Help:      "Duration of raced json-rpc operations.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"chain", "op"})

	CursorBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dexindexer",
		Name:      "cursor_block",
		Help:      "Last processed block per cursor.",
	}, []string{"chain", "event", "contract"})

	WatchedPools = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dexindexer",
		Name:      "watched_pools",
		Help:      "Number of addresses tracked by the pool watchers.",
	}, []string{"chain", "kind"})

	CorrelationPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dexindexer",
		Name:      "correlation_pending",
		Help:      "Number of staged correlation entries per kind.",
	}, []string{"kind"})
)

func AddPreCollectFn(fn func()) {
	metrics.mutex.Lock()
	defer metrics.mutex.Unlock()
	metrics.preCollectFns = append(metrics.preCollectFns, fn)
}

func StartMetricsServer(logger logrus.FieldLogger, host string, port string) error {
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{
		Addr:              host + ":" + port,
		Handler:           GetMetricsHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	go func() {
		logger.Infof("metrics server listening on %v", srv.Addr)
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Error serving metrics")
		}
	}()

	return nil
}

func GetMetricsHandler() http.Handler {
	return &MetricsHandler{
		handler:         promhttp.Handler(),
		lastCollectTime: time.Now(),
	}
}

func (mh *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mh.mutex.Lock()
	if time.Since(mh.lastCollectTime) > 1*time.Second {
		metrics.mutex.Lock()
		fns := make([]func(), len(metrics.preCollectFns))
		copy(fns, metrics.preCollectFns)
		metrics.mutex.Unlock()

		for _, fn := range fns {
			fn()
		}
		mh.lastCollectTime = time.Now()
	}
	mh.mutex.Unlock()

	mh.handler.ServeHTTP(w, r)
}
