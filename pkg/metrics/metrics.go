// Package metrics 导出检测循环和进程的 Prometheus 指标
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zoeyai/autotap/internal/logger"
	"github.com/zoeyai/autotap/pkg/loop"
	"github.com/zoeyai/autotap/pkg/policy"
	"github.com/zoeyai/autotap/pkg/process"
	"github.com/zoeyai/autotap/pkg/vision/ocr"
)

const namespace = "autotap"

// Collector 订阅调度器通知并更新指标
type Collector struct {
	registry *prometheus.Registry

	ticks       *prometheus.CounterVec
	taps        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	runs        prometheus.Counter
	stops       *prometheus.CounterVec
	running     prometheus.Gauge
	tickSeconds prometheus.Histogram

	memUsage prometheus.Gauge
	cpuUsage prometheus.Gauge
	threads  prometheus.Gauge
}

// New 创建 Collector，所有指标注册到独立的 registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Detection ticks by decision",
		}, []string{"decision"}),
		taps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "taps_total",
			Help:      "Tap attempts by result",
		}, []string{"result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Tick failures by stage and reason",
		}, []string{"stage", "reason"}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs started",
		}),
		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stops_total",
			Help:      "Runs stopped by reason",
		}, []string{"reason"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running",
			Help:      "1 while the detection loop is running",
		}),
		tickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one detection tick",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_bytes",
			Help:      "Resident memory of the process",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_usage_percent",
			Help:      "CPU usage in percent",
		}),
		threads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threads",
			Help:      "OS threads of the process",
		}),
	}
	c.registry.MustRegister(c.ticks, c.taps, c.failures, c.runs, c.stops,
		c.running, c.tickSeconds, c.memUsage, c.cpuUsage, c.threads)
	return c
}

// Registry 返回内部 registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler /metrics 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// StatusChanged 实现 loop.Listener
func (c *Collector) StatusChanged(s loop.Status) {
	switch s.Event {
	case loop.EventStarted:
		c.runs.Inc()
		c.running.Set(1)
	case loop.EventStopped:
		c.running.Set(0)
		c.stops.WithLabelValues(s.Reason.String()).Inc()
	case loop.EventRejected:
		c.stops.WithLabelValues("rejected").Inc()
	}
}

// TickCompleted 实现 loop.Listener
func (c *Collector) TickCompleted(r loop.Report) {
	c.ticks.WithLabelValues(r.Decision.String()).Inc()
	c.tickSeconds.Observe(r.Elapsed.Seconds())

	if r.CaptureFailed {
		c.failures.WithLabelValues("capture", "error").Inc()
	}
	if r.Failure != ocr.ReasonNone {
		c.failures.WithLabelValues("recognize", r.Failure.String()).Inc()
	}
	if r.Decision == policy.Act {
		result := "ok"
		if !r.Tapped {
			result = "failed"
		}
		c.taps.WithLabelValues(result).Inc()
	}
}

// SampleProcess 采集一次进程资源占用
func (c *Collector) SampleProcess(self *process.Self) error {
	usage, err := self.Usage()
	if err != nil {
		return err
	}
	c.memUsage.Set(float64(usage.RSSBytes))
	c.cpuUsage.Set(usage.CPUPercent)
	c.threads.Set(float64(usage.Threads))
	return nil
}

// RunProcessSampler 按 interval 采集进程资源占用，直到 ctx 结束
func (c *Collector) RunProcessSampler(ctx context.Context, interval time.Duration) error {
	self, err := process.NewSelf()
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.SampleProcess(self); err != nil {
				logger.Debug("采集进程指标失败: %v", err)
			}
		}
	}
}
