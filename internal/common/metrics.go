package common

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 驱动指标
type Metrics struct {
	OperationCounter  *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	IPAttempts        prometheus.Histogram
	KnownContainers   prometheus.Gauge
	registry          *prometheus.Registry
}

// NewMetrics 创建并注册指标，每个实例使用独立的 registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		OperationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lxcdriver_operations_total",
				Help: "Total number of container lifecycle operations",
			},
			[]string{"operation", "result"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lxcdriver_operation_duration_seconds",
				Help:    "Container lifecycle operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		IPAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lxcdriver_ip_resolve_attempts",
				Help:    "Number of attempts needed to resolve a container address",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
		),
		KnownContainers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lxcdriver_known_containers",
				Help: "Number of containers reported by lxc-ls on the last listing",
			},
		),
		registry: registry,
	}

	registry.MustRegister(m.OperationCounter)
	registry.MustRegister(m.OperationDuration)
	registry.MustRegister(m.IPAttempts)
	registry.MustRegister(m.KnownContainers)

	return m
}

// ObserveOperation 记录一次操作的结果与耗时
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.OperationCounter.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveIPAttempts 记录地址解析尝试次数
func (m *Metrics) ObserveIPAttempts(attempts int) {
	m.IPAttempts.Observe(float64(attempts))
}

// SetKnownContainers 更新已知容器数量
func (m *Metrics) SetKnownContainers(n int) {
	m.KnownContainers.Set(float64(n))
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
