package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// CreateEndpointInput carries the caller-supplied fields for endpoint
// registration. Secret is optional; a random one is generated when empty.
type CreateEndpointInput struct {
	UserID      string
	URL         string
	Events      []string
	Secret      string
	Description string
	Headers     map[string]string
	MaxRetries  int
}

// UpdateEndpointInput merges only non-nil fields into an existing
// endpoint. Nil slices and maps mean "leave unchanged".
type UpdateEndpointInput struct {
	URL         *string
	Events      []string
	Status      *EndpointStatus
	Description *string
	Headers     map[string]string
	MaxRetries  *int
}

type EndpointStore interface {
	Create(ctx context.Context, endpoint Endpoint) (Endpoint, error)
	Get(ctx context.Context, id string) (Endpoint, bool, error)
	ListByUser(ctx context.Context, userID string) ([]Endpoint, error)
	// ListForEvent returns only active endpoints whose subscription set
	// contains event exactly.
	ListForEvent(ctx context.Context, event string) ([]Endpoint, error)
	Update(ctx context.Context, id string, in UpdateEndpointInput) (Endpoint, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	UpdateSecret(ctx context.Context, id string, secret string) (Endpoint, bool, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) error
	RecordSuccess(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, at time.Time) error
}

// AttemptOutcome captures the observable result of one HTTP attempt.
// StatusCode is nil when the attempt failed before a response arrived.
type AttemptOutcome struct {
	StatusCode *int
	Body       string
	Error      string
	Duration   time.Duration
}

type DeliveryLedger interface {
	Create(ctx context.Context, delivery Delivery) (Delivery, error)
	Get(ctx context.Context, id string) (Delivery, bool, error)
	ListByEndpoint(ctx context.Context, endpointID string, limit int) ([]Delivery, error)
	Stats(ctx context.Context, endpointID string) (DeliveryStats, error)
	MarkDelivered(ctx context.Context, id string, attempt int, outcome AttemptOutcome) (Delivery, error)
	MarkRetrying(ctx context.Context, id string, attempt int, outcome AttemptOutcome, nextRetryAt time.Time) (Delivery, error)
	MarkFailed(ctx context.Context, id string, attempt int, outcome AttemptOutcome) (Delivery, error)
	// PurgeTerminalBefore removes delivered/failed rows created before
	// cutoff and returns how many were removed.
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type DeliveryQueue interface {
	Enqueue(ctx context.Context, entry QueueEntry) error
	// ClaimDue atomically removes and returns up to limit entries with
	// scheduled_at <= now belonging to active endpoints, ordered by
	// priority desc then created_at asc. Removal happens before the
	// caller sees the entries, so an entry is picked up at most once.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]QueueEntry, error)
}

type StoreProvider interface {
	EndpointStore() EndpointStore
	DeliveryLedger() DeliveryLedger
	DeliveryQueue() DeliveryQueue
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// SecretGenerator mints endpoint signing secrets. The default uses
// crypto/rand; tests substitute deterministic generators.
type SecretGenerator interface {
	Generate() (string, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Notification is an explicit observer callback payload emitted on
// registry and delivery lifecycle edges.
type Notification struct {
	Name       string
	EndpointID string
	DeliveryID string
	Event      string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	NotificationEndpointCreated = "endpoint.created"
	NotificationSecretRotated   = "endpoint.secret_rotated"
	NotificationDelivered       = "delivery.delivered"
	NotificationDeliveryFailed  = "delivery.failed"
	NotificationRetentionPurged = "retention.purged"
)

type NotificationHook interface {
	OnNotification(ctx context.Context, note Notification) error
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
