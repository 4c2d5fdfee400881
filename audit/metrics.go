package audit

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike   AlertType = "login_failure_spike"
	AlertConnectionLossSpike AlertType = "connection_loss_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// window is a sliding-window counter that fires once per spike.
type window struct {
	hits      []time.Time
	span      time.Duration
	threshold int
}

// metricsCollector tracks sliding window counters for anomaly detection.
type metricsCollector struct {
	mu sync.Mutex

	loginFailures window
	connLosses    window

	alertFn AlertFunc
}

const (
	defaultLoginFailureWindow    = 5 * time.Minute
	defaultLoginFailureThreshold = 5
	defaultConnLossWindow        = 1 * time.Minute
	defaultConnLossThreshold     = 3
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		loginFailures: window{span: defaultLoginFailureWindow, threshold: defaultLoginFailureThreshold},
		connLosses:    window{span: defaultConnLossWindow, threshold: defaultConnLossThreshold},
		alertFn:       alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event Event) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case LoginFailure:
		m.record(&m.loginFailures, AlertLoginFailureSpike, "account login failure rate exceeds threshold")
	case ConnectionLost:
		m.record(&m.connLosses, AlertConnectionLossSpike, "account connection loss rate exceeds threshold")
	}
}

func (m *metricsCollector) record(w *window, alert AlertType, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	w.hits = append(w.hits, now)
	w.hits = trimWindow(w.hits, now, w.span)

	if len(w.hits) >= w.threshold {
		m.alertFn(AlertEvent{
			Type:      alert,
			Message:   msg,
			Count:     len(w.hits),
			Threshold: w.threshold,
			Timestamp: now,
		})
		// Reset to avoid repeated alerts within the same spike.
		w.hits = w.hits[:0]
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
