package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertCredentialFailureSpike AlertType = "credential_failure_spike"
	AlertStoreFaultSpike        AlertType = "store_fault_spike"
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

// slidingCounter counts events inside a trailing time window.
type slidingCounter struct {
	events    []time.Time
	window    time.Duration
	threshold int
}

// add records an event at now and reports the window count when it reaches
// the threshold. The window is cleared after firing.
func (c *slidingCounter) add(now time.Time) (int, bool) {
	c.events = append(c.events, now)
	c.events = trimWindow(c.events, now, c.window)
	if len(c.events) < c.threshold {
		return 0, false
	}
	n := len(c.events)
	c.events = c.events[:0]
	return n, true
}

// metricsCollector tracks sliding window counters for anomaly detection.
type metricsCollector struct {
	mu sync.Mutex

	credentialFailures slidingCounter
	storeFaults        slidingCounter

	alertFn AlertFunc
}

const (
	defaultCredentialFailureWindow    = 1 * time.Minute
	defaultCredentialFailureThreshold = 50
	defaultStoreFaultWindow           = 1 * time.Minute
	defaultStoreFaultThreshold        = 20
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		credentialFailures: slidingCounter{
			window:    defaultCredentialFailureWindow,
			threshold: defaultCredentialFailureThreshold,
		},
		storeFaults: slidingCounter{
			window:    defaultStoreFaultWindow,
			threshold: defaultStoreFaultThreshold,
		},
		alertFn: alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditCredentialDenied:
		m.record(&m.credentialFailures, AlertCredentialFailureSpike,
			"credential failure rate exceeds threshold")
	case AuditStoreFault:
		m.record(&m.storeFaults, AlertStoreFaultSpike,
			"key store fault rate exceeds threshold")
	}
}

func (m *metricsCollector) record(c *slidingCounter, typ AlertType, msg string) {
	m.mu.Lock()
	now := time.Now()
	count, fire := c.add(now)
	threshold := c.threshold
	m.mu.Unlock()

	if fire {
		m.alertFn(AlertEvent{
			Type:      typ,
			Message:   msg,
			Count:     count,
			Threshold: threshold,
			Timestamp: now,
		})
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
