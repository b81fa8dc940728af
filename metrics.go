package bpfsverify

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const metricsNamespace = "bpfsverify"

var (
	verifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "verifier",
		Name:      "verify_total",
		Help:      "Count of transaction verifications by outcome.",
	}, []string{"status"})

	verifyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "verifier",
		Name:      "verify_duration_seconds",
		Help:      "Duration of transaction verification.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "resolver",
		Name:      "resolve_total",
		Help:      "Count of input resolutions by outcome.",
	}, []string{"status"})

	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "resolver",
		Name:      "resolve_duration_seconds",
		Help:      "Duration of input resolution, including waiting for live events.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	poolPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "pool",
		Name:      "pending",
		Help:      "Number of verified transactions waiting to be persisted.",
	})

	poolQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "pool",
		Name:      "queued",
		Help:      "Number of transactions waiting for a missing source transaction.",
	})
)

// errorStatus 将验证错误映射为指标标签
func errorStatus(err error) string {
	var (
		missing   *MissingSourceError
		malformed *MalformedTransactionError
		conflict  *ConflictingSpendError
		timeout   *ResolutionTimeoutError
		value     *ValueConservationError
		script    *ScriptFailureError
	)
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCoinbaseStandalone):
		return "coinbase"
	case errors.As(err, &missing):
		return "missing_source"
	case errors.As(err, &malformed):
		return "malformed"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &value):
		return "value"
	case errors.As(err, &script):
		return "script"
	default:
		return "error"
	}
}

// ObserveVerify 记录一次验证的结果和耗时
func ObserveVerify(err error, started time.Time) {
	status := errorStatus(err)
	verifyTotal.WithLabelValues(status).Inc()
	verifyDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

// ObserveResolve 记录一次输入解析的结果和耗时
func ObserveResolve(err error, started time.Time) {
	status := errorStatus(err)
	resolveTotal.WithLabelValues(status).Inc()
	resolveDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

// observePool 更新内存池大小
func observePool(pool *MemoryPool) {
	pending, queued := pool.Count()
	poolPending.Set(float64(pending))
	poolQueued.Set(float64(queued))
}

// StartMetricsServer 在 addr 上提供 /metrics，ctx 结束时关闭
func StartMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logrus.Infof("starting metrics server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("metrics server failed: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("failed to shutdown metrics server: %v", err)
		}
	}()
}
