package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
	MetricTypeSummary MetricType = "summary"
)

// Metric 指标
type Metric struct {
	Name   string     `json:"name"`
	Type   MetricType `json:"type"`
	Help   string     `json:"help,omitempty"`
	Value  float64    `json:"value"`
	Count  int64      `json:"count,omitempty"`
	Sum    float64    `json:"sum,omitempty"`
	Max    float64    `json:"max,omitempty"`
	Labels string     `json:"labels,omitempty"`
}

// MetricsCollector 指标收集器
type MetricsCollector struct {
	metrics     map[string]*Metric
	metricsLock sync.RWMutex

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string]*Metric),
		startTime: time.Now(),
	}
}

func metricKey(name string, labels map[string]string) (string, string) {
	if len(labels) == 0 {
		return name, ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	rendered := "{" + strings.Join(parts, ",") + "}"
	return name + rendered, rendered
}

func (mc *MetricsCollector) entry(name, help string, typ MetricType, labels map[string]string) *Metric {
	key, rendered := metricKey(name, labels)
	m, ok := mc.metrics[key]
	if !ok {
		m = &Metric{Name: name, Type: typ, Help: help, Labels: rendered}
		mc.metrics[key] = m
	}
	return m
}

// IncrCounter 增加计数器
func (mc *MetricsCollector) IncrCounter(name, help string, labels map[string]string) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()
	mc.entry(name, help, MetricTypeCounter, labels).Value++
}

// SetGauge 设置仪表
func (mc *MetricsCollector) SetGauge(name, help string, value float64) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()
	mc.entry(name, help, MetricTypeGauge, nil).Value = value
}

// ObserveDuration 记录耗时（秒）
func (mc *MetricsCollector) ObserveDuration(name, help string, d time.Duration) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()
	m := mc.entry(name, help, MetricTypeSummary, nil)
	v := d.Seconds()
	m.Count++
	m.Sum += v
	if v > m.Max {
		m.Max = v
	}
}

// Snapshot 获取所有指标的副本，按名称排序
func (mc *MetricsCollector) Snapshot() []Metric {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	out := make([]Metric, 0, len(mc.metrics))
	for _, m := range mc.metrics {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Labels < out[j].Labels
	})
	return out
}

// Value 读取单个指标当前值
func (mc *MetricsCollector) Value(name string, labels map[string]string) (float64, bool) {
	key, _ := metricKey(name, labels)
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()
	m, ok := mc.metrics[key]
	if !ok {
		return 0, false
	}
	if m.Type == MetricTypeSummary {
		return float64(m.Count), true
	}
	return m.Value, true
}

// ExportPrometheus 导出Prometheus文本格式
func (mc *MetricsCollector) ExportPrometheus() string {
	var b strings.Builder
	described := make(map[string]bool)
	for _, m := range mc.Snapshot() {
		if !described[m.Name] {
			help := m.Help
			if help == "" {
				help = fmt.Sprintf("Metric %s", m.Name)
			}
			fmt.Fprintf(&b, "# HELP %s %s\n", m.Name, help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", m.Name, m.Type)
			described[m.Name] = true
		}
		if m.Type == MetricTypeSummary {
			fmt.Fprintf(&b, "%s_count %d\n", m.Name, m.Count)
			fmt.Fprintf(&b, "%s_sum %g\n", m.Name, m.Sum)
			continue
		}
		fmt.Fprintf(&b, "%s%s %g\n", m.Name, m.Labels, m.Value)
	}

	stats := mc.GetSystemStats()
	fmt.Fprintf(&b, "# TYPE process_uptime_seconds gauge\nprocess_uptime_seconds %g\n", stats["uptime_seconds"])
	fmt.Fprintf(&b, "# TYPE go_goroutines gauge\ngo_goroutines %d\n", stats["goroutines"])
	return b.String()
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// GetSystemStats 获取系统统计
func (mc *MetricsCollector) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime_seconds": mc.GetUptime().Seconds(),
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc":     m.HeapAlloc,
		"gc_count":       m.NumGC,
	}
}
