package core

import (
	"context"
	"sync"
	"testing"
)

type recordingMetrics struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string]int
	tags       map[string]map[string]string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		counters:   map[string]int64{},
		histograms: map[string]int{},
		tags:       map[string]map[string]string{},
	}
}

func (r *recordingMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += value
	r.tags[name] = tags
}

func (r *recordingMetrics) ObserveHistogram(_ context.Context, name string, _ float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms[name]++
	r.tags[name] = tags
}

func TestServiceOperations_RecordMetrics(t *testing.T) {
	metrics := newRecordingMetrics()
	service, _, _, _ := newTestService(t, WithMetricsRecorder(metrics))

	created, err := service.CreateEndpoint(context.Background(), CreateEndpointInput{
		UserID: "user_1",
		URL:    "https://example.com/hooks",
		Events: []string{"order.created"},
	})
	if err != nil {
		t.Fatalf("create endpoint: %v", err)
	}

	if metrics.counters["webhooks.endpoint_create.total"] != 1 {
		t.Fatalf("expected create counter, got %v", metrics.counters)
	}
	if metrics.histograms["webhooks.endpoint_create.duration_ms"] != 1 {
		t.Fatalf("expected create duration histogram")
	}
	tags := metrics.tags["webhooks.endpoint_create.total"]
	if tags["status"] != "success" || tags["operation"] != "endpoint_create" {
		t.Fatalf("unexpected tags: %v", tags)
	}
	if tags["endpoint_id"] != created.ID {
		t.Fatalf("expected endpoint id tag, got %v", tags)
	}

	if _, err := service.TriggerEvent(context.Background(), "order.created", nil, ""); err != nil {
		t.Fatalf("trigger event: %v", err)
	}
	if metrics.counters["webhooks.trigger_event.total"] != 1 {
		t.Fatalf("expected trigger counter, got %v", metrics.counters)
	}
}

func TestServiceOperations_RecordFailureStatus(t *testing.T) {
	metrics := newRecordingMetrics()
	service, _, _, _ := newTestService(t, WithMetricsRecorder(metrics))

	if _, err := service.CreateEndpoint(context.Background(), CreateEndpointInput{URL: "https://example.com"}); err == nil {
		t.Fatalf("expected validation failure")
	}
	tags := metrics.tags["webhooks.endpoint_create.total"]
	if tags["status"] != "failure" {
		t.Fatalf("expected failure status tag, got %v", tags)
	}
}
