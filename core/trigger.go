package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TriggerEvent publishes a domain event. One pending delivery and one
// immediately-due queue entry are created per matching active endpoint;
// the returned ids let the caller poll ledger status. Zero matches is a
// normal outcome and returns an empty list. Delivery outcomes are never
// surfaced here; failures are recorded in the ledger only.
func (s *Service) TriggerEvent(ctx context.Context, event string, data map[string]any, userID string) (deliveryIDs []string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"event":   event,
		"user_id": userID,
	}
	defer func() {
		fields["matched"] = len(deliveryIDs)
		s.observeOperation(ctx, startedAt, "trigger_event", err, fields)
	}()

	if s == nil || s.endpointStore == nil || s.deliveryLedger == nil || s.deliveryQueue == nil {
		return nil, s.mapError(fmt.Errorf("core: trigger requires endpoint, ledger, and queue stores"))
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return nil, s.mapError(fmt.Errorf("core: event name is required"))
	}

	matched, err := s.endpointStore.ListForEvent(ctx, event)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}

	userID = strings.TrimSpace(userID)
	deliveryIDs = make([]string, 0, len(matched))
	for _, endpoint := range matched {
		if userID != "" && endpoint.UserID != userID {
			continue
		}
		deliveryID, queueErr := s.QueueDelivery(ctx, endpoint, event, data)
		if queueErr != nil {
			err = queueErr
			return nil, err
		}
		deliveryIDs = append(deliveryIDs, deliveryID)
	}
	return deliveryIDs, nil
}

// QueueDelivery creates one pending ledger row and one queue entry
// scheduled for now. It is the primitive behind TriggerEvent; the retry
// path re-enqueues through the queue directly and never calls this,
// because retries update the existing ledger row in place.
func (s *Service) QueueDelivery(ctx context.Context, endpoint Endpoint, event string, data map[string]any) (string, error) {
	if s == nil || s.deliveryLedger == nil || s.deliveryQueue == nil {
		return "", s.mapError(fmt.Errorf("core: delivery ledger and queue are required"))
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return "", s.mapError(fmt.Errorf("core: event name is required"))
	}
	if strings.TrimSpace(endpoint.ID) == "" {
		return "", s.mapError(fmt.Errorf("core: endpoint id is required"))
	}

	now := s.now()
	envelope := Envelope{
		Event:     event,
		Timestamp: now,
		WebhookID: endpoint.ID,
		Data:      copyAnyMap(data),
	}
	delivery := Delivery{
		ID:         s.idGenerator(),
		EndpointID: endpoint.ID,
		Event:      event,
		Payload:    envelope,
		Status:     DeliveryStatusPending,
		CreatedAt:  now,
	}
	if _, err := s.deliveryLedger.Create(ctx, delivery); err != nil {
		return "", s.mapError(err)
	}

	entry := QueueEntry{
		DeliveryID:  delivery.ID,
		EndpointID:  endpoint.ID,
		Event:       event,
		Attempt:     0,
		Payload:     envelope,
		ScheduledAt: now,
		CreatedAt:   now,
	}
	if err := s.deliveryQueue.Enqueue(ctx, entry); err != nil {
		return "", s.mapError(err)
	}

	if err := s.endpointStore.MarkTriggered(ctx, endpoint.ID, now); err != nil {
		s.logError(ctx, "mark endpoint triggered failed", map[string]any{
			"endpoint_id": endpoint.ID,
			"error":       err.Error(),
		})
	}
	return delivery.ID, nil
}
