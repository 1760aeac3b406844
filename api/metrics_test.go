package api

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertRecorder struct {
	mu     sync.Mutex
	alerts []AlertEvent
}

func (r *alertRecorder) record(e AlertEvent) {
	r.mu.Lock()
	r.alerts = append(r.alerts, e)
	r.mu.Unlock()
}

func (r *alertRecorder) snapshot() []AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AlertEvent(nil), r.alerts...)
}

func TestCredentialFailureSpikeAlert(t *testing.T) {
	var rec alertRecorder
	collector := newMetricsCollector(rec.record)
	collector.credentialFailures.threshold = 5

	for i := 0; i < 4; i++ {
		collector.recordEvent(AuditCredentialDenied)
	}
	assert.Empty(t, rec.snapshot(), "no alert below threshold")

	collector.recordEvent(AuditCredentialDenied)
	alerts := rec.snapshot()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCredentialFailureSpike, alerts[0].Type)
	assert.Equal(t, 5, alerts[0].Count)
	assert.Equal(t, 5, alerts[0].Threshold)
}

func TestStoreFaultSpikeAlert(t *testing.T) {
	var rec alertRecorder
	collector := newMetricsCollector(rec.record)
	collector.storeFaults.threshold = 3

	for i := 0; i < 3; i++ {
		collector.recordEvent(AuditStoreFault)
	}
	alerts := rec.snapshot()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStoreFaultSpike, alerts[0].Type)
}

func TestAlertResetsAfterFiring(t *testing.T) {
	var rec alertRecorder
	collector := newMetricsCollector(rec.record)
	collector.credentialFailures.threshold = 3

	for i := 0; i < 5; i++ {
		collector.recordEvent(AuditCredentialDenied)
	}
	assert.Len(t, rec.snapshot(), 1, "the spike fires once, then the window restarts")

	collector.recordEvent(AuditCredentialDenied)
	assert.Len(t, rec.snapshot(), 2)
}

func TestIgnoredEventsDoNotAlert(t *testing.T) {
	var rec alertRecorder
	collector := newMetricsCollector(rec.record)
	collector.credentialFailures.threshold = 1
	collector.storeFaults.threshold = 1

	collector.recordEvent(AuditTokenMinted)
	collector.recordEvent(AuditTokenValidated)
	collector.recordEvent(AuditRequestRejected)
	assert.Empty(t, rec.snapshot())
}

func TestNilCollectorIsNoop(t *testing.T) {
	var collector *metricsCollector
	assert.NotPanics(t, func() { collector.recordEvent(AuditCredentialDenied) })
}

func TestTrimWindow(t *testing.T) {
	now := time.Now()
	times := []time.Time{
		now.Add(-3 * time.Minute),
		now.Add(-2 * time.Minute),
		now.Add(-30 * time.Second),
		now,
	}
	got := trimWindow(times, now, time.Minute)
	assert.Equal(t, times[2:], got)
}
