package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-webhooks/core"
)

func newEndpointRecord(endpoint core.Endpoint) *endpointRecord {
	return &endpointRecord{
		ID:              endpoint.ID,
		UserID:          endpoint.UserID,
		URL:             endpoint.URL,
		Secret:          endpoint.Secret,
		Events:          append([]string(nil), endpoint.Events...),
		Status:          string(endpoint.Status),
		Description:     endpoint.Description,
		Headers:         copyStringMap(endpoint.Headers),
		MaxRetries:      endpoint.MaxRetries,
		SuccessCount:    endpoint.SuccessCount,
		FailureCount:    endpoint.FailureCount,
		LastTriggeredAt: copyTimePtr(endpoint.LastTriggeredAt),
		LastSuccessAt:   copyTimePtr(endpoint.LastSuccessAt),
		LastFailureAt:   copyTimePtr(endpoint.LastFailureAt),
		CreatedAt:       endpoint.CreatedAt,
		UpdatedAt:       endpoint.UpdatedAt,
	}
}

func (r *endpointRecord) toDomain() core.Endpoint {
	if r == nil {
		return core.Endpoint{}
	}
	return core.Endpoint{
		ID:              r.ID,
		UserID:          r.UserID,
		URL:             r.URL,
		Secret:          r.Secret,
		Events:          append([]string(nil), r.Events...),
		Status:          core.EndpointStatus(r.Status),
		Description:     r.Description,
		Headers:         copyStringMap(r.Headers),
		MaxRetries:      r.MaxRetries,
		SuccessCount:    r.SuccessCount,
		FailureCount:    r.FailureCount,
		LastTriggeredAt: copyTimePtr(r.LastTriggeredAt),
		LastSuccessAt:   copyTimePtr(r.LastSuccessAt),
		LastFailureAt:   copyTimePtr(r.LastFailureAt),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func newDeliveryRecord(delivery core.Delivery) (*deliveryRecord, error) {
	payload, err := marshalEnvelope(delivery.Payload)
	if err != nil {
		return nil, err
	}
	return &deliveryRecord{
		ID:             delivery.ID,
		EndpointID:     delivery.EndpointID,
		Event:          delivery.Event,
		Payload:        payload,
		Status:         string(delivery.Status),
		AttemptCount:   delivery.AttemptCount,
		NextRetryAt:    copyTimePtr(delivery.NextRetryAt),
		ResponseStatus: copyIntPtr(delivery.ResponseStatus),
		ResponseBody:   delivery.ResponseBody,
		Error:          delivery.Error,
		DurationMs:     delivery.DurationMs,
		CreatedAt:      delivery.CreatedAt,
		CompletedAt:    copyTimePtr(delivery.CompletedAt),
	}, nil
}

func (r *deliveryRecord) toDomain() (core.Delivery, error) {
	if r == nil {
		return core.Delivery{}, nil
	}
	envelope, err := unmarshalEnvelope(r.Payload)
	if err != nil {
		return core.Delivery{}, err
	}
	return core.Delivery{
		ID:             r.ID,
		EndpointID:     r.EndpointID,
		Event:          r.Event,
		Payload:        envelope,
		Status:         core.DeliveryStatus(r.Status),
		AttemptCount:   r.AttemptCount,
		NextRetryAt:    copyTimePtr(r.NextRetryAt),
		ResponseStatus: copyIntPtr(r.ResponseStatus),
		ResponseBody:   r.ResponseBody,
		Error:          r.Error,
		DurationMs:     r.DurationMs,
		CreatedAt:      r.CreatedAt,
		CompletedAt:    copyTimePtr(r.CompletedAt),
	}, nil
}

func newQueueRecord(entry core.QueueEntry) (*queueRecord, error) {
	payload, err := marshalEnvelope(entry.Payload)
	if err != nil {
		return nil, err
	}
	return &queueRecord{
		ID:          entry.ID,
		DeliveryID:  entry.DeliveryID,
		EndpointID:  entry.EndpointID,
		Event:       entry.Event,
		Attempt:     entry.Attempt,
		Payload:     payload,
		Priority:    entry.Priority,
		ScheduledAt: entry.ScheduledAt.UTC(),
		CreatedAt:   entry.CreatedAt,
	}, nil
}

func (r *queueRecord) toDomain() (core.QueueEntry, error) {
	if r == nil {
		return core.QueueEntry{}, nil
	}
	envelope, err := unmarshalEnvelope(r.Payload)
	if err != nil {
		return core.QueueEntry{}, err
	}
	return core.QueueEntry{
		ID:          r.ID,
		DeliveryID:  r.DeliveryID,
		EndpointID:  r.EndpointID,
		Event:       r.Event,
		Attempt:     r.Attempt,
		Payload:     envelope,
		Priority:    r.Priority,
		ScheduledAt: r.ScheduledAt,
		CreatedAt:   r.CreatedAt,
	}, nil
}

func marshalEnvelope(envelope core.Envelope) ([]byte, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: marshal delivery payload: %w", err)
	}
	return payload, nil
}

func unmarshalEnvelope(payload []byte) (core.Envelope, error) {
	if len(payload) == 0 {
		return core.Envelope{}, nil
	}
	var envelope core.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return core.Envelope{}, fmt.Errorf("sqlstore: unmarshal delivery payload: %w", err)
	}
	return envelope, nil
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}

func copyIntPtr(in *int) *int {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}
