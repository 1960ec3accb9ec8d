package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhooks/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type DeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
	now  func() time.Time
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{db: db, repo: repo, now: time.Now}, nil
}

func (s *DeliveryStore) Create(ctx context.Context, delivery core.Delivery) (core.Delivery, error) {
	if s == nil || s.repo == nil {
		return core.Delivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if strings.TrimSpace(delivery.ID) == "" {
		delivery.ID = uuid.NewString()
	}
	record, err := newDeliveryRecord(delivery)
	if err != nil {
		return core.Delivery{}, err
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Delivery{}, err
	}
	return created.toDomain()
}

func (s *DeliveryStore) Get(ctx context.Context, id string) (core.Delivery, bool, error) {
	if s == nil || s.repo == nil {
		return core.Delivery{}, false, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Delivery{}, false, nil
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Delivery{}, false, err
	}
	if len(records) == 0 {
		return core.Delivery{}, false, nil
	}
	delivery, err := records[0].toDomain()
	if err != nil {
		return core.Delivery{}, false, err
	}
	return delivery, true, nil
}

func (s *DeliveryStore) ListByEndpoint(ctx context.Context, endpointID string, limit int) ([]core.Delivery, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	endpointID = strings.TrimSpace(endpointID)
	if endpointID == "" {
		return nil, fmt.Errorf("sqlstore: endpoint id is required")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("endpoint_id", "=", endpointID),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	deliveries := make([]core.Delivery, 0, len(records))
	for _, record := range records {
		delivery, err := record.toDomain()
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries, nil
}

func (s *DeliveryStore) Stats(ctx context.Context, endpointID string) (core.DeliveryStats, error) {
	if s == nil || s.db == nil {
		return core.DeliveryStats{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	endpointID = strings.TrimSpace(endpointID)
	if endpointID == "" {
		return core.DeliveryStats{}, fmt.Errorf("sqlstore: endpoint id is required")
	}
	var rows []struct {
		Status string `bun:"status"`
		Count  int64  `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*deliveryRecord)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Where("?TableAlias.endpoint_id = ?", endpointID).
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return core.DeliveryStats{}, err
	}
	stats := core.DeliveryStats{EndpointID: endpointID}
	for _, row := range rows {
		stats.Total += row.Count
		switch core.DeliveryStatus(row.Status) {
		case core.DeliveryStatusPending:
			stats.Pending = row.Count
		case core.DeliveryStatusRetrying:
			stats.Retrying = row.Count
		case core.DeliveryStatusDelivered:
			stats.Delivered = row.Count
		case core.DeliveryStatusFailed:
			stats.Failed = row.Count
		}
	}
	return stats, nil
}

func (s *DeliveryStore) MarkDelivered(ctx context.Context, id string, attempt int, outcome core.AttemptOutcome) (core.Delivery, error) {
	return s.transition(ctx, id, core.DeliveryStatusDelivered, attempt, outcome, nil)
}

func (s *DeliveryStore) MarkRetrying(ctx context.Context, id string, attempt int, outcome core.AttemptOutcome, nextRetryAt time.Time) (core.Delivery, error) {
	return s.transition(ctx, id, core.DeliveryStatusRetrying, attempt, outcome, &nextRetryAt)
}

func (s *DeliveryStore) MarkFailed(ctx context.Context, id string, attempt int, outcome core.AttemptOutcome) (core.Delivery, error) {
	return s.transition(ctx, id, core.DeliveryStatusFailed, attempt, outcome, nil)
}

// transition validates the status edge against the current row inside a
// transaction, so a delivered row can never regress to retrying even
// under concurrent markers.
func (s *DeliveryStore) transition(ctx context.Context, id string, status core.DeliveryStatus, attempt int, outcome core.AttemptOutcome, nextRetryAt *time.Time) (core.Delivery, error) {
	if s == nil || s.db == nil {
		return core.Delivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Delivery{}, fmt.Errorf("sqlstore: delivery id is required")
	}

	var out core.Delivery
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &deliveryRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrDeliveryNotFound
			}
			return err
		}
		delivery, err := record.toDomain()
		if err != nil {
			return err
		}
		if err := delivery.TransitionTo(status, s.nowUTC()); err != nil {
			return err
		}
		delivery.AttemptCount = attempt
		delivery.ResponseStatus = copyIntPtr(outcome.StatusCode)
		delivery.ResponseBody = outcome.Body
		delivery.Error = outcome.Error
		delivery.DurationMs = outcome.Duration.Milliseconds()
		if status == core.DeliveryStatusRetrying && nextRetryAt != nil {
			at := nextRetryAt.UTC()
			delivery.NextRetryAt = &at
		}

		updated, err := newDeliveryRecord(delivery)
		if err != nil {
			return err
		}
		if _, err := tx.NewUpdate().Model(updated).WherePK().Exec(ctx); err != nil {
			return err
		}
		out = delivery
		return nil
	})
	if err != nil {
		return core.Delivery{}, err
	}
	return out, nil
}

func (s *DeliveryStore) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*deliveryRecord)(nil)).
		Where("status IN (?)", bun.In([]string{
			string(core.DeliveryStatusDelivered),
			string(core.DeliveryStatusFailed),
		})).
		Where("created_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *DeliveryStore) nowUTC() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

var _ core.DeliveryLedger = (*DeliveryStore)(nil)
