package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type endpointRecord struct {
	bun.BaseModel `bun:"table:webhook_endpoints,alias:we"`

	ID              string            `bun:"id,pk"`
	UserID          string            `bun:"user_id,notnull"`
	URL             string            `bun:"url,notnull"`
	Secret          string            `bun:"secret,notnull"`
	Events          []string          `bun:"events,type:jsonb,notnull"`
	Status          string            `bun:"status,notnull"`
	Description     string            `bun:"description"`
	Headers         map[string]string `bun:"headers,type:jsonb"`
	MaxRetries      int               `bun:"max_retries,notnull"`
	SuccessCount    int64             `bun:"success_count,notnull,default:0"`
	FailureCount    int64             `bun:"failure_count,notnull,default:0"`
	LastTriggeredAt *time.Time        `bun:"last_triggered_at,nullzero"`
	LastSuccessAt   *time.Time        `bun:"last_success_at,nullzero"`
	LastFailureAt   *time.Time        `bun:"last_failure_at,nullzero"`
	CreatedAt       time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// endpointEventRecord is the normalized (endpoint_id, event) index used
// for exact-membership event matching.
type endpointEventRecord struct {
	bun.BaseModel `bun:"table:webhook_endpoint_events,alias:wee"`

	ID         string `bun:"id,pk"`
	EndpointID string `bun:"endpoint_id,notnull"`
	Event      string `bun:"event,notnull"`
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:webhook_deliveries,alias:wd"`

	ID             string     `bun:"id,pk"`
	EndpointID     string     `bun:"endpoint_id,notnull"`
	Event          string     `bun:"event,notnull"`
	Payload        []byte     `bun:"payload,type:jsonb,notnull"`
	Status         string     `bun:"status,notnull"`
	AttemptCount   int        `bun:"attempt_count,notnull,default:0"`
	NextRetryAt    *time.Time `bun:"next_retry_at,nullzero"`
	ResponseStatus *int       `bun:"response_status"`
	ResponseBody   string     `bun:"response_body"`
	Error          string     `bun:"error"`
	DurationMs     int64      `bun:"duration_ms,notnull,default:0"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	CompletedAt    *time.Time `bun:"completed_at,nullzero"`
}

// queueRecord rows are ephemeral: claimed rows are deleted before the
// dispatcher sees them. The (delivery_id, attempt) pair is unique so a
// retry never collides with the entry of an earlier attempt.
type queueRecord struct {
	bun.BaseModel `bun:"table:webhook_queue,alias:wq"`

	ID          string    `bun:"id,pk"`
	DeliveryID  string    `bun:"delivery_id,notnull"`
	EndpointID  string    `bun:"endpoint_id,notnull"`
	Event       string    `bun:"event,notnull"`
	Attempt     int       `bun:"attempt,notnull,default:0"`
	Payload     []byte    `bun:"payload,type:jsonb,notnull"`
	Priority    int       `bun:"priority,notnull,default:0"`
	ScheduledAt time.Time `bun:"scheduled_at,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
