package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AlertLevel 告警级别
type AlertLevel string

const (
	Info     AlertLevel = "info"
	Warning  AlertLevel = "warning"
	Error    AlertLevel = "error"
	Critical AlertLevel = "critical"
)

var levelRank = map[AlertLevel]int{Info: 0, Warning: 1, Error: 2, Critical: 3}

// Alert 告警结构
type Alert struct {
	ID         string         `json:"id"`
	Level      AlertLevel     `json:"level"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Source     string         `json:"source"`
	Value      float64        `json:"value,omitempty"`
	Threshold  float64        `json:"threshold,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Resolved   bool           `json:"resolved"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Notifier 告警渠道
type Notifier interface {
	Name() string
	Notify(ctx context.Context, text string, alert *Alert) error
}

// ChannelConfig 渠道过滤与限流
type ChannelConfig struct {
	MinLevel   AlertLevel
	MaxPerHour int
	Cooldown   time.Duration
}

type channel struct {
	notifier Notifier
	config   ChannelConfig
	tracker  rateTracker
}

// rateTracker 限流追踪器
type rateTracker struct {
	hourCount int
	hourReset time.Time
	lastSent  time.Time
}

func (t *rateTracker) allow(cfg ChannelConfig, now time.Time) bool {
	if hour := now.Truncate(time.Hour); !hour.Equal(t.hourReset) {
		t.hourCount = 0
		t.hourReset = hour
	}
	if cfg.MaxPerHour > 0 && t.hourCount >= cfg.MaxPerHour {
		return false
	}
	if cfg.Cooldown > 0 && !t.lastSent.IsZero() && now.Sub(t.lastSent) < cfg.Cooldown {
		return false
	}
	t.hourCount++
	t.lastSent = now
	return true
}

// AlertStats 告警统计
type AlertStats struct {
	TotalAlerts    int64                `json:"total_alerts"`
	ActiveAlerts   int64                `json:"active_alerts"`
	ResolvedAlerts int64                `json:"resolved_alerts"`
	Suppressed     int64                `json:"suppressed"`
	ByLevel        map[AlertLevel]int64 `json:"by_level"`
	ByChannel      map[string]int64     `json:"by_channel"`
	LastAlert      time.Time            `json:"last_alert"`
}

// AlertSystem 告警系统
type AlertSystem struct {
	mu       sync.Mutex
	alerts   map[string]*Alert
	channels []*channel
	text     *template.Template
	stats    AlertStats
	logger   *zap.Logger
	now      func() time.Time
}

// 已解决告警保留时长，超过后在下次写入时清理
const resolvedRetention = 24 * time.Hour

const alertTemplate = `[{{.Level}}] {{.Title}}
{{.Message}}{{if .Threshold}}
value {{printf "%.4f" .Value}}, threshold {{printf "%.4f" .Threshold}}{{end}}
{{.Timestamp.Format "2006-01-02 15:04:05"}} ({{.Source}})`

// NewAlertSystem 创建告警系统
func NewAlertSystem(logger *zap.Logger) *AlertSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertSystem{
		alerts: make(map[string]*Alert),
		text:   template.Must(template.New("alert").Parse(alertTemplate)),
		stats: AlertStats{
			ByLevel:   make(map[AlertLevel]int64),
			ByChannel: make(map[string]int64),
		},
		logger: logger,
		now:    time.Now,
	}
}

// AddChannel 添加告警渠道
func (a *AlertSystem) AddChannel(n Notifier, cfg ChannelConfig) {
	if cfg.MinLevel == "" {
		cfg.MinLevel = Warning
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.channels = append(a.channels, &channel{notifier: n, config: cfg})
	a.logger.Info("alert channel added", zap.String("channel", n.Name()), zap.String("min_level", string(cfg.MinLevel)))
}

// SendAlert 记录告警并推送到匹配的渠道。渠道失败不影响记录
func (a *AlertSystem) SendAlert(ctx context.Context, alert *Alert) error {
	if alert == nil {
		return errors.New("alert is nil")
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = a.now()
	}

	var text bytes.Buffer
	if err := a.text.Execute(&text, alert); err != nil {
		return err
	}

	a.mu.Lock()
	a.pruneResolved(a.now())
	a.alerts[alert.ID] = alert
	a.stats.TotalAlerts++
	a.stats.ByLevel[alert.Level]++
	a.stats.LastAlert = alert.Timestamp

	var targets []Notifier
	for _, ch := range a.channels {
		if levelRank[alert.Level] < levelRank[ch.config.MinLevel] {
			continue
		}
		if !ch.tracker.allow(ch.config, a.now()) {
			a.stats.Suppressed++
			a.logger.Debug("alert rate limited", zap.String("channel", ch.notifier.Name()), zap.String("id", alert.ID))
			continue
		}
		targets = append(targets, ch.notifier)
	}
	a.mu.Unlock()

	var err error
	for _, n := range targets {
		if sendErr := n.Notify(ctx, text.String(), alert); sendErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", n.Name(), sendErr))
			continue
		}
		a.mu.Lock()
		a.stats.ByChannel[n.Name()]++
		a.mu.Unlock()
	}
	if err != nil {
		a.logger.Warn("alert delivery failed", zap.String("id", alert.ID), zap.Error(err))
	}
	return err
}

// ResolveAlert 标记告警已解决
func (a *AlertSystem) ResolveAlert(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	alert, ok := a.alerts[id]
	if !ok {
		return fmt.Errorf("alert %s not found", id)
	}
	if alert.Resolved {
		return nil
	}
	now := a.now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	a.stats.ResolvedAlerts++
	return nil
}

// ResolveSource 解决某个来源的全部告警，例如训练成功后清除之前的训练失败
func (a *AlertSystem) ResolveSource(source string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	n := 0
	for _, alert := range a.alerts {
		if alert.Source == source && !alert.Resolved {
			alert.Resolved = true
			alert.ResolvedAt = &now
			a.stats.ResolvedAlerts++
			n++
		}
	}
	return n
}

func (a *AlertSystem) pruneResolved(now time.Time) {
	for id, alert := range a.alerts {
		if alert.Resolved && alert.ResolvedAt != nil && now.Sub(*alert.ResolvedAt) > resolvedRetention {
			delete(a.alerts, id)
		}
	}
}

// Len 内存中保留的告警数量（含未过期的已解决告警）
func (a *AlertSystem) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

// GetActiveAlerts 未解决的告警，按时间倒序
func (a *AlertSystem) GetActiveAlerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Alert, 0)
	for _, alert := range a.alerts {
		if !alert.Resolved {
			out = append(out, *alert)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// GetStats 获取统计信息
func (a *AlertSystem) GetStats() AlertStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := a.stats
	stats.ByLevel = make(map[AlertLevel]int64, len(a.stats.ByLevel))
	for k, v := range a.stats.ByLevel {
		stats.ByLevel[k] = v
	}
	stats.ByChannel = make(map[string]int64, len(a.stats.ByChannel))
	for k, v := range a.stats.ByChannel {
		stats.ByChannel[k] = v
	}
	stats.ActiveAlerts = stats.TotalAlerts - stats.ResolvedAlerts
	return stats
}

// WebhookNotifier 以JSON POST推送告警
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Notify(ctx context.Context, text string, alert *Alert) error {
	payload, err := json.Marshal(map[string]any{"text": text, "alert": alert})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// SlackNotifier 发送到 Slack 频道
type SlackNotifier struct {
	client    *slack.Client
	channelID string
}

func NewSlackNotifier(token, channelID string, opts ...slack.Option) *SlackNotifier {
	return &SlackNotifier{client: slack.New(token, opts...), channelID: channelID}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Notify(ctx context.Context, text string, _ *Alert) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channelID, slack.MsgOptionText(text, false))
	return err
}
