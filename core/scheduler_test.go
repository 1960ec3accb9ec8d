package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedExecutor returns one queued outcome per attempt, in order.
type scriptedExecutor struct {
	outcomes []AttemptOutcome
	errs     []error
	calls    int
	seen     []Endpoint
}

func (e *scriptedExecutor) Execute(_ context.Context, endpoint Endpoint, _ Envelope) (AttemptOutcome, error) {
	idx := e.calls
	e.calls++
	e.seen = append(e.seen, endpoint)
	if idx < len(e.errs) && e.errs[idx] != nil {
		return AttemptOutcome{}, e.errs[idx]
	}
	if idx < len(e.outcomes) {
		return e.outcomes[idx], nil
	}
	status := 200
	return AttemptOutcome{StatusCode: &status}, nil
}

func statusOutcome(status int) AttemptOutcome {
	code := status
	out := AttemptOutcome{StatusCode: &code}
	if status < 200 || status >= 300 {
		out.Error = fmt.Sprintf("endpoint responded with status %d", status)
	}
	return out
}

func newTestDispatcher(t *testing.T, executor AttemptExecutor) (*Dispatcher, *memoryEndpointStore, *memoryDeliveryLedger, *memoryDeliveryQueue) {
	t.Helper()
	endpoints := newMemoryEndpointStore()
	ledger := newMemoryDeliveryLedger()
	queue := newMemoryDeliveryQueue()
	dispatcher, err := NewDispatcher(endpoints, ledger, queue, executor, DispatcherConfig{
		BatchSize: 10,
		RetryPolicy: ExponentialRetryPolicy{
			Initial: time.Second,
			Max:     5 * time.Minute,
		},
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return dispatcher, endpoints, ledger, queue
}

func seedPendingDelivery(t *testing.T, ledger *memoryDeliveryLedger, queue *memoryDeliveryQueue, endpointID string, at time.Time) string {
	t.Helper()
	ctx := context.Background()
	envelope := Envelope{Event: "order.created", Timestamp: at, WebhookID: endpointID}
	delivery := Delivery{
		ID:         fmt.Sprintf("d_%s_%d", endpointID, at.UnixNano()),
		EndpointID: endpointID,
		Event:      "order.created",
		Payload:    envelope,
		Status:     DeliveryStatusPending,
		CreatedAt:  at,
	}
	if _, err := ledger.Create(ctx, delivery); err != nil {
		t.Fatalf("seed delivery: %v", err)
	}
	if err := queue.Enqueue(ctx, QueueEntry{
		DeliveryID:  delivery.ID,
		EndpointID:  endpointID,
		Event:       "order.created",
		Attempt:     0,
		Payload:     envelope,
		ScheduledAt: at,
		CreatedAt:   at,
	}); err != nil {
		t.Fatalf("seed queue entry: %v", err)
	}
	return delivery.ID
}

func TestExponentialRetryPolicy_DoublesAndCaps(t *testing.T) {
	policy := ExponentialRetryPolicy{Initial: time.Second, Max: 5 * time.Minute}
	expected := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for attempt, want := range expected {
		if got := policy.NextDelay(attempt + 1); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt+1, want, got)
		}
	}
	if got := policy.NextDelay(30); got != 5*time.Minute {
		t.Fatalf("expected cap at max delay, got %s", got)
	}

	var previous time.Duration
	for attempt := 1; attempt <= 20; attempt++ {
		delay := policy.NextDelay(attempt)
		if delay < previous {
			t.Fatalf("expected non-decreasing delays, attempt %d went %s -> %s", attempt, previous, delay)
		}
		previous = delay
	}
}

func TestExponentialRetryPolicy_ZeroValuesUseDefaults(t *testing.T) {
	policy := ExponentialRetryPolicy{}
	if got := policy.NextDelay(1); got != time.Second {
		t.Fatalf("expected default initial delay, got %s", got)
	}
	if got := policy.NextDelay(60); got != 5*time.Minute {
		t.Fatalf("expected default max delay, got %s", got)
	}
}

func TestDispatchDue_DeliversAfterTransientFailures(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []AttemptOutcome{
		statusOutcome(500),
		statusOutcome(500),
		statusOutcome(200),
	}}
	dispatcher, endpoints, ledger, queue := newTestDispatcher(t, executor)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dispatcher.now = func() time.Time { return now }
	endpoints.Create(context.Background(), Endpoint{
		ID:         "ep_1",
		URL:        "https://example.com/hooks",
		Secret:     "whsec_1",
		Status:     EndpointStatusActive,
		Events:     []string{"order.created"},
		MaxRetries: 5,
	})
	deliveryID := seedPendingDelivery(t, ledger, queue, "ep_1", now)

	// Attempt 1 fails: delivery moves to retrying with a 1s backoff.
	stats, err := dispatcher.DispatchDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch pass 1: %v", err)
	}
	if stats.Claimed != 1 || stats.Retried != 1 {
		t.Fatalf("unexpected stats after pass 1: %#v", stats)
	}
	delivery, _, _ := ledger.Get(context.Background(), deliveryID)
	if delivery.Status != DeliveryStatusRetrying || delivery.AttemptCount != 1 {
		t.Fatalf("expected retrying after one attempt, got %#v", delivery)
	}
	if delivery.NextRetryAt == nil || !delivery.NextRetryAt.Equal(now.Add(time.Second)) {
		t.Fatalf("expected 1s backoff, got %v", delivery.NextRetryAt)
	}

	// Attempt 2 fails: backoff doubles to 2s.
	now = now.Add(time.Second)
	stats, err = dispatcher.DispatchDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch pass 2: %v", err)
	}
	if stats.Retried != 1 {
		t.Fatalf("unexpected stats after pass 2: %#v", stats)
	}
	delivery, _, _ = ledger.Get(context.Background(), deliveryID)
	if delivery.AttemptCount != 2 {
		t.Fatalf("expected two attempts, got %d", delivery.AttemptCount)
	}
	if delivery.NextRetryAt == nil || !delivery.NextRetryAt.Equal(now.Add(2*time.Second)) {
		t.Fatalf("expected 2s backoff, got %v", delivery.NextRetryAt)
	}

	// Attempt 3 succeeds.
	now = now.Add(2 * time.Second)
	stats, err = dispatcher.DispatchDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch pass 3: %v", err)
	}
	if stats.Delivered != 1 {
		t.Fatalf("unexpected stats after pass 3: %#v", stats)
	}
	delivery, _, _ = ledger.Get(context.Background(), deliveryID)
	if delivery.Status != DeliveryStatusDelivered || delivery.AttemptCount != 3 {
		t.Fatalf("expected delivered after three attempts, got %#v", delivery)
	}
	if delivery.CompletedAt == nil {
		t.Fatalf("expected completed timestamp on terminal transition")
	}
	if delivery.NextRetryAt != nil {
		t.Fatalf("expected next retry cleared on terminal transition")
	}
	if queue.size() != 0 {
		t.Fatalf("expected no queue entries for terminal delivery")
	}

	endpoint, _, _ := endpoints.Get(context.Background(), "ep_1")
	if endpoint.SuccessCount != 1 || endpoint.LastSuccessAt == nil {
		t.Fatalf("expected success counters updated, got %#v", endpoint)
	}
	if executor.calls != 3 {
		t.Fatalf("expected three HTTP attempts, got %d", executor.calls)
	}
}

func TestDispatchDue_ExhaustsRetriesAndFails(t *testing.T) {
	executor := &scriptedExecutor{outcomes: []AttemptOutcome{
		statusOutcome(500),
		statusOutcome(500),
		statusOutcome(500),
	}}
	dispatcher, endpoints, ledger, queue := newTestDispatcher(t, executor)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dispatcher.now = func() time.Time { return now }
	endpoints.Create(context.Background(), Endpoint{
		ID:         "ep_1",
		URL:        "https://example.com/hooks",
		Secret:     "whsec_1",
		Status:     EndpointStatusActive,
		MaxRetries: 2,
	})
	deliveryID := seedPendingDelivery(t, ledger, queue, "ep_1", now)

	var failedNotes []Notification
	hooks := NewNotificationHookCoordinator()
	hooks.Register(NotificationHookFunc(func(_ context.Context, note Notification) error {
		if note.Name == NotificationDeliveryFailed {
			failedNotes = append(failedNotes, note)
		}
		return nil
	}))
	dispatcher.WithHooks(hooks)

	stats, err := dispatcher.DispatchDue(context.Background(), 10)
	if err != nil || stats.Retried != 1 {
		t.Fatalf("expected first attempt to schedule a retry, stats=%#v err=%v", stats, err)
	}

	now = now.Add(time.Second)
	stats, err = dispatcher.DispatchDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch final pass: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("expected terminal failure at max retries, stats=%#v", stats)
	}

	delivery, _, _ := ledger.Get(context.Background(), deliveryID)
	if delivery.Status != DeliveryStatusFailed || delivery.AttemptCount != 2 {
		t.Fatalf("expected failed after two attempts, got %#v", delivery)
	}
	if delivery.CompletedAt == nil {
		t.Fatalf("expected completed timestamp on failure")
	}
	if queue.size() != 0 {
		t.Fatalf("expected no retry entry after terminal failure")
	}
	if executor.calls != 2 {
		t.Fatalf("expected exactly max-retries attempts, got %d", executor.calls)
	}

	endpoint, _, _ := endpoints.Get(context.Background(), "ep_1")
	if endpoint.FailureCount != 1 || endpoint.LastFailureAt == nil {
		t.Fatalf("expected failure counters updated, got %#v", endpoint)
	}
	if len(failedNotes) != 1 || failedNotes[0].DeliveryID != deliveryID {
		t.Fatalf("expected one failure notification, got %v", failedNotes)
	}
}

func TestDispatchDue_ClaimsOnlyDueEntries(t *testing.T) {
	executor := &scriptedExecutor{}
	dispatcher, endpoints, ledger, queue := newTestDispatcher(t, executor)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dispatcher.now = func() time.Time { return now }
	endpoints.Create(context.Background(), Endpoint{
		ID:         "ep_1",
		URL:        "https://example.com/hooks",
		Secret:     "whsec_1",
		Status:     EndpointStatusActive,
		MaxRetries: 5,
	})
	seedPendingDelivery(t, ledger, queue, "ep_1", now.Add(-time.Minute))
	seedPendingDelivery(t, ledger, queue, "ep_1", now.Add(time.Hour))

	stats, err := dispatcher.DispatchDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Claimed != 1 || stats.Delivered != 1 {
		t.Fatalf("expected only the due entry to dispatch, stats=%#v", stats)
	}
	if queue.size() != 1 {
		t.Fatalf("expected future entry to stay queued")
	}
}

func TestDispatchDue_ItemFailureDoesNotAbortBatch(t *testing.T) {
	executor := &scriptedExecutor{
		errs:     []error{errors.New("signer exploded")},
		outcomes: []AttemptOutcome{{}, statusOutcome(200)},
	}
	dispatcher, endpoints, ledger, queue := newTestDispatcher(t, executor)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dispatcher.now = func() time.Time { return now }
	endpoints.Create(context.Background(), Endpoint{
		ID:         "ep_1",
		URL:        "https://example.com/hooks",
		Secret:     "whsec_1",
		Status:     EndpointStatusActive,
		MaxRetries: 5,
	})
	brokenID := seedPendingDelivery(t, ledger, queue, "ep_1", now.Add(-2*time.Minute))
	healthyID := seedPendingDelivery(t, ledger, queue, "ep_1", now.Add(-time.Minute))

	stats, err := dispatcher.DispatchDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Claimed != 2 || stats.Failed != 1 || stats.Delivered != 1 {
		t.Fatalf("expected isolation between batch items, stats=%#v", stats)
	}

	broken, _, _ := ledger.Get(context.Background(), brokenID)
	if broken.Status != DeliveryStatusFailed {
		t.Fatalf("expected fallback terminal failure, got %q", broken.Status)
	}
	if broken.Error == "" {
		t.Fatalf("expected fallback error recorded")
	}
	healthy, _, _ := ledger.Get(context.Background(), healthyID)
	if healthy.Status != DeliveryStatusDelivered {
		t.Fatalf("expected healthy item to deliver, got %q", healthy.Status)
	}
}

func TestDispatchDue_MissingEndpointFailsDelivery(t *testing.T) {
	executor := &scriptedExecutor{}
	dispatcher, _, ledger, queue := newTestDispatcher(t, executor)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dispatcher.now = func() time.Time { return now }
	deliveryID := seedPendingDelivery(t, ledger, queue, "ep_gone", now)

	stats, err := dispatcher.DispatchDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("expected orphaned entry to fail, stats=%#v", stats)
	}
	delivery, _, _ := ledger.Get(context.Background(), deliveryID)
	if delivery.Status != DeliveryStatusFailed {
		t.Fatalf("expected failed delivery for missing endpoint, got %q", delivery.Status)
	}
	if executor.calls != 0 {
		t.Fatalf("expected no HTTP attempt for missing endpoint")
	}
}

func TestDispatchDue_QueueFaultSurfaces(t *testing.T) {
	executor := &scriptedExecutor{}
	dispatcher, _, _, queue := newTestDispatcher(t, executor)
	queue.claimErr = errors.New("queue down")

	if _, err := dispatcher.DispatchDue(context.Background(), 10); err == nil {
		t.Fatalf("expected claim failure to surface")
	}
}

func TestNewDispatcher_RequiresDependencies(t *testing.T) {
	if _, err := NewDispatcher(nil, newMemoryDeliveryLedger(), newMemoryDeliveryQueue(), &scriptedExecutor{}, DispatcherConfig{}); err == nil {
		t.Fatalf("expected error for missing endpoint store")
	}
	if _, err := NewDispatcher(newMemoryEndpointStore(), newMemoryDeliveryLedger(), newMemoryDeliveryQueue(), nil, DispatcherConfig{}); err == nil {
		t.Fatalf("expected error for missing executor")
	}
}

func TestRunner_TicksUntilStopped(t *testing.T) {
	var ticks atomic.Int64
	runner, err := NewRunner("test", 5*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	runner.Start(context.Background())
	runner.Start(context.Background()) // second start is a no-op

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	runner.Stop()
	if ticks.Load() < 3 {
		t.Fatalf("expected at least three ticks, got %d", ticks.Load())
	}

	settled := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if ticks.Load() != settled {
		t.Fatalf("expected no ticks after stop")
	}

	runner.Stop() // stop is idempotent
}
