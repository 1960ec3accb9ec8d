package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryEndpointStore backs service and dispatcher tests without a
// database. Behavior mirrors the SQL store contracts.
type memoryEndpointStore struct {
	mu        sync.Mutex
	endpoints map[string]Endpoint

	createErr error
	getErr    error
}

func newMemoryEndpointStore() *memoryEndpointStore {
	return &memoryEndpointStore{endpoints: map[string]Endpoint{}}
}

func (s *memoryEndpointStore) Create(_ context.Context, endpoint Endpoint) (Endpoint, error) {
	if s.createErr != nil {
		return Endpoint{}, s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[endpoint.ID] = endpoint
	return endpoint, nil
}

func (s *memoryEndpointStore) Get(_ context.Context, id string) (Endpoint, bool, error) {
	if s.getErr != nil {
		return Endpoint{}, false, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.endpoints[id]
	return endpoint, ok, nil
}

func (s *memoryEndpointStore) ListByUser(_ context.Context, userID string) ([]Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Endpoint, 0)
	for _, endpoint := range s.endpoints {
		if endpoint.UserID == userID {
			out = append(out, endpoint)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryEndpointStore) ListForEvent(_ context.Context, event string) ([]Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Endpoint, 0)
	for _, endpoint := range s.endpoints {
		if endpoint.Status == EndpointStatusActive && endpoint.SubscribedTo(event) {
			out = append(out, endpoint)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryEndpointStore) Update(_ context.Context, id string, in UpdateEndpointInput) (Endpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.endpoints[id]
	if !ok {
		return Endpoint{}, false, nil
	}
	if in.URL != nil {
		endpoint.URL = strings.TrimSpace(*in.URL)
	}
	if in.Events != nil {
		endpoint.Events = in.Events
	}
	if in.Status != nil {
		endpoint.Status = *in.Status
	}
	if in.Description != nil {
		endpoint.Description = *in.Description
	}
	if in.Headers != nil {
		endpoint.Headers = in.Headers
	}
	if in.MaxRetries != nil {
		endpoint.MaxRetries = *in.MaxRetries
	}
	endpoint.UpdatedAt = time.Now().UTC()
	s.endpoints[id] = endpoint
	return endpoint, true, nil
}

func (s *memoryEndpointStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[id]; !ok {
		return false, nil
	}
	delete(s.endpoints, id)
	return true, nil
}

func (s *memoryEndpointStore) UpdateSecret(_ context.Context, id string, secret string) (Endpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.endpoints[id]
	if !ok {
		return Endpoint{}, false, nil
	}
	endpoint.Secret = secret
	endpoint.UpdatedAt = time.Now().UTC()
	s.endpoints[id] = endpoint
	return endpoint, true, nil
}

func (s *memoryEndpointStore) MarkTriggered(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.endpoints[id]
	if !ok {
		return nil
	}
	endpoint.LastTriggeredAt = &at
	s.endpoints[id] = endpoint
	return nil
}

func (s *memoryEndpointStore) RecordSuccess(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.endpoints[id]
	if !ok {
		return nil
	}
	endpoint.SuccessCount++
	endpoint.LastSuccessAt = &at
	s.endpoints[id] = endpoint
	return nil
}

func (s *memoryEndpointStore) RecordFailure(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.endpoints[id]
	if !ok {
		return nil
	}
	endpoint.FailureCount++
	endpoint.LastFailureAt = &at
	s.endpoints[id] = endpoint
	return nil
}

type memoryDeliveryLedger struct {
	mu         sync.Mutex
	deliveries map[string]Delivery

	createErr error
}

func newMemoryDeliveryLedger() *memoryDeliveryLedger {
	return &memoryDeliveryLedger{deliveries: map[string]Delivery{}}
}

func (l *memoryDeliveryLedger) Create(_ context.Context, delivery Delivery) (Delivery, error) {
	if l.createErr != nil {
		return Delivery{}, l.createErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deliveries[delivery.ID] = delivery
	return delivery, nil
}

func (l *memoryDeliveryLedger) Get(_ context.Context, id string) (Delivery, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delivery, ok := l.deliveries[id]
	return delivery, ok, nil
}

func (l *memoryDeliveryLedger) ListByEndpoint(_ context.Context, endpointID string, limit int) ([]Delivery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Delivery, 0)
	for _, delivery := range l.deliveries {
		if delivery.EndpointID == endpointID {
			out = append(out, delivery)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *memoryDeliveryLedger) Stats(_ context.Context, endpointID string) (DeliveryStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := DeliveryStats{EndpointID: endpointID}
	for _, delivery := range l.deliveries {
		if delivery.EndpointID != endpointID {
			continue
		}
		stats.Total++
		switch delivery.Status {
		case DeliveryStatusPending:
			stats.Pending++
		case DeliveryStatusRetrying:
			stats.Retrying++
		case DeliveryStatusDelivered:
			stats.Delivered++
		case DeliveryStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (l *memoryDeliveryLedger) MarkDelivered(_ context.Context, id string, attempt int, outcome AttemptOutcome) (Delivery, error) {
	return l.transition(id, DeliveryStatusDelivered, attempt, outcome, nil)
}

func (l *memoryDeliveryLedger) MarkRetrying(_ context.Context, id string, attempt int, outcome AttemptOutcome, nextRetryAt time.Time) (Delivery, error) {
	return l.transition(id, DeliveryStatusRetrying, attempt, outcome, &nextRetryAt)
}

func (l *memoryDeliveryLedger) MarkFailed(_ context.Context, id string, attempt int, outcome AttemptOutcome) (Delivery, error) {
	return l.transition(id, DeliveryStatusFailed, attempt, outcome, nil)
}

func (l *memoryDeliveryLedger) transition(id string, status DeliveryStatus, attempt int, outcome AttemptOutcome, nextRetryAt *time.Time) (Delivery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delivery, ok := l.deliveries[id]
	if !ok {
		return Delivery{}, fmt.Errorf("%w: %s", ErrDeliveryNotFound, id)
	}
	if err := delivery.TransitionTo(status, time.Now().UTC()); err != nil {
		return Delivery{}, err
	}
	delivery.AttemptCount = attempt
	delivery.ResponseStatus = outcome.StatusCode
	delivery.ResponseBody = outcome.Body
	delivery.Error = outcome.Error
	delivery.DurationMs = outcome.Duration.Milliseconds()
	if status == DeliveryStatusRetrying {
		delivery.NextRetryAt = nextRetryAt
	}
	l.deliveries[id] = delivery
	return delivery, nil
}

func (l *memoryDeliveryLedger) PurgeTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var removed int64
	for id, delivery := range l.deliveries {
		if delivery.Status.Terminal() && delivery.CreatedAt.Before(cutoff) {
			delete(l.deliveries, id)
			removed++
		}
	}
	return removed, nil
}

type memoryDeliveryQueue struct {
	mu      sync.Mutex
	entries []QueueEntry
	nextID  int

	enqueueErr error
	claimErr   error
}

func newMemoryDeliveryQueue() *memoryDeliveryQueue {
	return &memoryDeliveryQueue{}
}

func (q *memoryDeliveryQueue) Enqueue(_ context.Context, entry QueueEntry) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.entries {
		if existing.DeliveryID == entry.DeliveryID && existing.Attempt == entry.Attempt {
			return fmt.Errorf("memory queue: duplicate entry for delivery %q attempt %d", entry.DeliveryID, entry.Attempt)
		}
	}
	if entry.ID == "" {
		q.nextID++
		entry.ID = fmt.Sprintf("q_%d", q.nextID)
	}
	q.entries = append(q.entries, entry)
	return nil
}

func (q *memoryDeliveryQueue) ClaimDue(_ context.Context, now time.Time, limit int) ([]QueueEntry, error) {
	if q.claimErr != nil {
		return nil, q.claimErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	due := make([]QueueEntry, 0)
	remaining := make([]QueueEntry, 0, len(q.entries))
	for _, entry := range q.entries {
		if !entry.ScheduledAt.After(now) {
			due = append(due, entry)
			continue
		}
		remaining = append(remaining, entry)
	}
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if limit > 0 && len(due) > limit {
		remaining = append(remaining, due[limit:]...)
		due = due[:limit]
	}
	q.entries = remaining
	return due, nil
}

func (q *memoryDeliveryQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

var (
	_ EndpointStore  = (*memoryEndpointStore)(nil)
	_ DeliveryLedger = (*memoryDeliveryLedger)(nil)
	_ DeliveryQueue  = (*memoryDeliveryQueue)(nil)
)

// staticSecretGenerator makes secret-dependent assertions deterministic.
type staticSecretGenerator struct {
	secrets []string
	calls   int
}

func (g *staticSecretGenerator) Generate() (string, error) {
	if len(g.secrets) == 0 {
		return "whsec_static", nil
	}
	secret := g.secrets[g.calls%len(g.secrets)]
	g.calls++
	return secret, nil
}

// newTestService builds a fully wired service over the in-memory stores
// with deterministic ids and clock.
func newTestService(t interface{ Fatalf(string, ...any) }, opts ...Option) (*Service, *memoryEndpointStore, *memoryDeliveryLedger, *memoryDeliveryQueue) {
	endpoints := newMemoryEndpointStore()
	ledger := newMemoryDeliveryLedger()
	queue := newMemoryDeliveryQueue()

	base := []Option{
		WithEndpointStore(endpoints),
		WithDeliveryLedger(ledger),
		WithDeliveryQueue(queue),
	}
	service, err := NewService(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	counter := 0
	service.idGenerator = func() string {
		counter++
		return fmt.Sprintf("id_%d", counter)
	}
	service.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return service, endpoints, ledger, queue
}
