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

type EndpointStore struct {
	db        *bun.DB
	repo      repository.Repository[*endpointRecord]
	eventRepo repository.Repository[*endpointEventRecord]
}

func NewEndpointStore(db *bun.DB) (*EndpointStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*endpointRecord](db, endpointHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid endpoint repository wiring: %w", err)
		}
	}
	eventRepo := repository.NewRepository[*endpointEventRecord](db, endpointEventHandlers())
	if validator, ok := eventRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid endpoint event repository wiring: %w", err)
		}
	}
	return &EndpointStore{db: db, repo: repo, eventRepo: eventRepo}, nil
}

// Create persists the endpoint row plus its normalized event index rows
// in one transaction.
func (s *EndpointStore) Create(ctx context.Context, endpoint core.Endpoint) (core.Endpoint, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.Endpoint{}, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	if strings.TrimSpace(endpoint.ID) == "" {
		endpoint.ID = uuid.NewString()
	}
	record := newEndpointRecord(endpoint)
	var created *endpointRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		inserted, insertErr := s.repo.CreateTx(ctx, tx, record)
		if insertErr != nil {
			return insertErr
		}
		created = inserted
		return s.insertEventIndexTx(ctx, tx, inserted.ID, inserted.Events)
	})
	if err != nil {
		return core.Endpoint{}, err
	}
	return created.toDomain(), nil
}

func (s *EndpointStore) Get(ctx context.Context, id string) (core.Endpoint, bool, error) {
	if s == nil || s.repo == nil {
		return core.Endpoint{}, false, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Endpoint{}, false, nil
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Endpoint{}, false, err
	}
	if len(records) == 0 {
		return core.Endpoint{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *EndpointStore) ListByUser(ctx context.Context, userID string) ([]core.Endpoint, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	endpoints := make([]core.Endpoint, 0, len(records))
	for _, record := range records {
		endpoints = append(endpoints, record.toDomain())
	}
	return endpoints, nil
}

// ListForEvent matches through the normalized (endpoint_id, event)
// index, so membership is exact: "order.created" never matches an
// endpoint subscribed only to "order.created.extra".
func (s *EndpointStore) ListForEvent(ctx context.Context, event string) ([]core.Endpoint, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return nil, fmt.Errorf("sqlstore: event name is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", string(core.EndpointStatusActive)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Join("JOIN webhook_endpoint_events AS wee ON wee.endpoint_id = ?TableAlias.id").
				Where("wee.event = ?", event)
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	endpoints := make([]core.Endpoint, 0, len(records))
	for _, record := range records {
		endpoints = append(endpoints, record.toDomain())
	}
	return endpoints, nil
}

// Update merges the provided fields and rebuilds the event index when
// the subscription set changes. Returns found=false on missing ids.
func (s *EndpointStore) Update(ctx context.Context, id string, in core.UpdateEndpointInput) (core.Endpoint, bool, error) {
	if s == nil || s.db == nil {
		return core.Endpoint{}, false, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Endpoint{}, false, nil
	}

	var out core.Endpoint
	found := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &endpointRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		if in.URL != nil {
			record.URL = strings.TrimSpace(*in.URL)
		}
		if in.Status != nil {
			record.Status = string(*in.Status)
		}
		if in.Description != nil {
			record.Description = strings.TrimSpace(*in.Description)
		}
		if in.Headers != nil {
			record.Headers = copyStringMap(in.Headers)
		}
		if in.MaxRetries != nil {
			record.MaxRetries = *in.MaxRetries
		}
		eventsChanged := in.Events != nil
		if eventsChanged {
			record.Events = append([]string(nil), in.Events...)
		}
		record.UpdatedAt = time.Now().UTC()

		if _, err := tx.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
			return err
		}
		if eventsChanged {
			if _, err := tx.NewDelete().
				Model((*endpointEventRecord)(nil)).
				Where("endpoint_id = ?", id).
				Exec(ctx); err != nil {
				return err
			}
			if err := s.insertEventIndexTx(ctx, tx, id, record.Events); err != nil {
				return err
			}
		}
		out = record.toDomain()
		found = true
		return nil
	})
	if err != nil {
		return core.Endpoint{}, false, err
	}
	return out, found, nil
}

// Delete removes the endpoint, its event index rows, and any queue
// entries still pointing at it. Missing ids report false, not an error.
func (s *EndpointStore) Delete(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	removed := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewDelete().
			Model((*endpointRecord)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		removed = true
		if _, err := tx.NewDelete().
			Model((*endpointEventRecord)(nil)).
			Where("endpoint_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewDelete().
			Model((*queueRecord)(nil)).
			Where("endpoint_id = ?", id).
			Exec(ctx)
		return err
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (s *EndpointStore) UpdateSecret(ctx context.Context, id string, secret string) (core.Endpoint, bool, error) {
	if s == nil || s.db == nil {
		return core.Endpoint{}, false, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" || strings.TrimSpace(secret) == "" {
		return core.Endpoint{}, false, fmt.Errorf("sqlstore: endpoint id and secret are required")
	}
	result, err := s.db.NewUpdate().
		Model((*endpointRecord)(nil)).
		Set("secret = ?", secret).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return core.Endpoint{}, false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.Endpoint{}, false, err
	}
	if affected == 0 {
		return core.Endpoint{}, false, nil
	}
	return s.Get(ctx, id)
}

func (s *EndpointStore) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	return s.touchTimestamp(ctx, id, "last_triggered_at", "", at)
}

func (s *EndpointStore) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	return s.touchTimestamp(ctx, id, "last_success_at", "success_count", at)
}

func (s *EndpointStore) RecordFailure(ctx context.Context, id string, at time.Time) error {
	return s.touchTimestamp(ctx, id, "last_failure_at", "failure_count", at)
}

func (s *EndpointStore) touchTimestamp(ctx context.Context, id, tsColumn, counterColumn string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: endpoint id is required")
	}
	query := s.db.NewUpdate().
		Model((*endpointRecord)(nil)).
		Set("? = ?", bun.Ident(tsColumn), at.UTC()).
		Where("id = ?", id)
	if counterColumn != "" {
		query = query.Set("? = ? + 1", bun.Ident(counterColumn), bun.Ident(counterColumn))
	}
	_, err := query.Exec(ctx)
	return err
}

func (s *EndpointStore) insertEventIndexTx(ctx context.Context, tx bun.Tx, endpointID string, events []string) error {
	for _, event := range events {
		event = strings.TrimSpace(event)
		if event == "" {
			continue
		}
		row := &endpointEventRecord{
			ID:         uuid.NewString(),
			EndpointID: endpointID,
			Event:      event,
		}
		if _, err := s.eventRepo.CreateTx(ctx, tx, row); err != nil {
			return err
		}
	}
	return nil
}

var _ core.EndpointStore = (*EndpointStore)(nil)
