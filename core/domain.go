package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidDeliveryStatusTransition = errors.New("core: invalid delivery status transition")
	ErrEndpointNotFound                = errors.New("core: endpoint not found")
	ErrDeliveryNotFound                = errors.New("core: delivery not found")
)

// SecretPlaceholder replaces the signing secret on default-visibility reads.
const SecretPlaceholder = "whsec_********"

type EndpointStatus string

const (
	EndpointStatusActive   EndpointStatus = "active"
	EndpointStatusDisabled EndpointStatus = "disabled"
)

// Endpoint is a registered destination URL subscribed to one or more
// event types. SuccessCount/FailureCount and the last* timestamps are
// written only by the delivery path, never by registry mutations.
type Endpoint struct {
	ID              string
	UserID          string
	URL             string
	Secret          string
	Events          []string
	Status          EndpointStatus
	Description     string
	Headers         map[string]string
	MaxRetries      int
	SuccessCount    int64
	FailureCount    int64
	LastTriggeredAt *time.Time
	LastSuccessAt   *time.Time
	LastFailureAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SubscribedTo reports exact membership of event in the endpoint's
// subscription set. "order.created" never matches "order.created.extra".
func (e Endpoint) SubscribedTo(event string) bool {
	event = strings.TrimSpace(event)
	for _, candidate := range e.Events {
		if strings.TrimSpace(candidate) == event {
			return true
		}
	}
	return false
}

// Redacted returns a copy safe for default-visibility reads.
func (e Endpoint) Redacted() Endpoint {
	out := e
	out.Secret = SecretPlaceholder
	return out
}

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusRetrying  DeliveryStatus = "retrying"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailed
}

// Envelope is the exact JSON body sent to an endpoint. Timestamp
// serializes as RFC 3339, matching the wire contract receivers parse.
type Envelope struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	WebhookID string         `json:"webhookId"`
	Data      map[string]any `json:"data"`
}

// Delivery is one logical attempt-lineage of sending a single triggered
// event to a single endpoint, spanning retries. Retries update the row
// in place; only terminal transitions set CompletedAt, exactly once.
type Delivery struct {
	ID             string
	EndpointID     string
	Event          string
	Payload        Envelope
	Status         DeliveryStatus
	AttemptCount   int
	NextRetryAt    *time.Time
	ResponseStatus *int
	ResponseBody   string
	Error          string
	DurationMs     int64
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// TransitionTo mutates the delivery status after validating the edge.
// Terminal states reject every outgoing transition.
func (d *Delivery) TransitionTo(status DeliveryStatus, now time.Time) error {
	if d == nil {
		return nil
	}
	if d.Status == status && !status.Terminal() {
		return nil
	}
	if !deliveryTransitionAllowed(d.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidDeliveryStatusTransition, d.Status, status)
	}
	d.Status = status
	if status.Terminal() {
		d.NextRetryAt = nil
		if d.CompletedAt == nil {
			completed := now.UTC()
			d.CompletedAt = &completed
		}
	}
	return nil
}

func deliveryTransitionAllowed(current, next DeliveryStatus) bool {
	allowed := map[DeliveryStatus]map[DeliveryStatus]struct{}{
		DeliveryStatusPending: {
			DeliveryStatusRetrying:  {},
			DeliveryStatusDelivered: {},
			DeliveryStatusFailed:    {},
		},
		DeliveryStatusRetrying: {
			DeliveryStatusRetrying:  {},
			DeliveryStatusDelivered: {},
			DeliveryStatusFailed:    {},
		},
	}
	targets, ok := allowed[current]
	if !ok {
		return false
	}
	_, ok = targets[next]
	return ok
}

// QueueEntry is an ephemeral, time-scheduled unit of work. The composite
// (DeliveryID, Attempt) key links a retry back to its delivery without
// colliding with entries from earlier attempts.
type QueueEntry struct {
	ID          string
	DeliveryID  string
	EndpointID  string
	Event       string
	Attempt     int
	Payload     Envelope
	Priority    int
	ScheduledAt time.Time
	CreatedAt   time.Time
}

// DeliveryStats aggregates ledger rows for one endpoint.
type DeliveryStats struct {
	EndpointID string
	Total      int64
	Pending    int64
	Retrying   int64
	Delivered  int64
	Failed     int64
}
