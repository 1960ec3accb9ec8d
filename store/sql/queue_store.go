package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhooks/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type QueueStore struct {
	db   *bun.DB
	repo repository.Repository[*queueRecord]
}

func NewQueueStore(db *bun.DB) (*QueueStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*queueRecord](db, queueHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid queue repository wiring: %w", err)
		}
	}
	return &QueueStore{db: db, repo: repo}, nil
}

func (s *QueueStore) Enqueue(ctx context.Context, entry core.QueueEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: queue store is not configured")
	}
	if strings.TrimSpace(entry.DeliveryID) == "" {
		return fmt.Errorf("sqlstore: queue entry delivery id is required")
	}
	if strings.TrimSpace(entry.EndpointID) == "" {
		return fmt.Errorf("sqlstore: queue entry endpoint id is required")
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ScheduledAt.IsZero() {
		entry.ScheduledAt = time.Now().UTC()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	record, err := newQueueRecord(entry)
	if err != nil {
		return err
	}
	_, err = s.repo.Create(ctx, record)
	return err
}

// ClaimDue deletes up to limit due entries for active endpoints inside
// one transaction and returns the deleted rows. Because removal and
// read are one statement, an entry is handed to at most one caller even
// when ticks overlap.
func (s *QueueStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]core.QueueEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: queue store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	var records []queueRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH due AS (
	SELECT wq.id
	FROM webhook_queue wq
	JOIN webhook_endpoints we ON we.id = wq.endpoint_id
	WHERE wq.scheduled_at <= ?
	  AND we.status = ?
	ORDER BY wq.priority DESC, wq.created_at ASC
	LIMIT ?
)
DELETE FROM webhook_queue
WHERE id IN (SELECT id FROM due)
RETURNING
	id,
	delivery_id,
	endpoint_id,
	event,
	attempt,
	payload,
	priority,
	scheduled_at,
	created_at
`
		return tx.NewRaw(
			query,
			now.UTC(),
			string(core.EndpointStatusActive),
			limit,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	// RETURNING does not promise the CTE ordering, so restore it here.
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority > records[j].Priority
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	entries := make([]core.QueueEntry, 0, len(records))
	for i := range records {
		entry, err := records[i].toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var _ core.DeliveryQueue = (*QueueStore)(nil)
