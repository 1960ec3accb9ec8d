package query

import (
	"context"

	"github.com/goliatone/go-webhooks/core"
)

// EndpointReader serves registry reads. Secrets are redacted unless the
// message asks for them explicitly.
type EndpointReader interface {
	GetEndpoint(ctx context.Context, id string, includeSecret bool) (core.Endpoint, bool, error)
	ListEndpointsByUser(ctx context.Context, userID string, includeSecret bool) ([]core.Endpoint, error)
}

// DeliveryReader serves ledger reads; this is the only channel that
// exposes delivery outcomes to callers.
type DeliveryReader interface {
	GetDelivery(ctx context.Context, id string) (core.Delivery, bool, error)
	ListDeliveries(ctx context.Context, endpointID string, limit int) ([]core.Delivery, error)
	GetDeliveryStats(ctx context.Context, endpointID string) (core.DeliveryStats, error)
}

// GetEndpointResult reports the endpoint and whether it exists, keeping
// lookup misses out of the error channel.
type GetEndpointResult struct {
	Endpoint core.Endpoint
	Found    bool
}

type GetDeliveryResult struct {
	Delivery core.Delivery
	Found    bool
}

type GetEndpointQuery struct {
	reader EndpointReader
}

func NewGetEndpointQuery(reader EndpointReader) *GetEndpointQuery {
	return &GetEndpointQuery{reader: reader}
}

func (q *GetEndpointQuery) Query(ctx context.Context, msg GetEndpointMessage) (GetEndpointResult, error) {
	if q == nil || q.reader == nil {
		return GetEndpointResult{}, queryDependencyError("query: endpoint reader is required")
	}
	endpoint, found, err := q.reader.GetEndpoint(ctx, msg.EndpointID, msg.IncludeSecret)
	if err != nil {
		return GetEndpointResult{}, err
	}
	return GetEndpointResult{Endpoint: endpoint, Found: found}, nil
}

type ListEndpointsByUserQuery struct {
	reader EndpointReader
}

func NewListEndpointsByUserQuery(reader EndpointReader) *ListEndpointsByUserQuery {
	return &ListEndpointsByUserQuery{reader: reader}
}

func (q *ListEndpointsByUserQuery) Query(ctx context.Context, msg ListEndpointsByUserMessage) ([]core.Endpoint, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: endpoint reader is required")
	}
	return q.reader.ListEndpointsByUser(ctx, msg.UserID, msg.IncludeSecret)
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (GetDeliveryResult, error) {
	if q == nil || q.reader == nil {
		return GetDeliveryResult{}, queryDependencyError("query: delivery reader is required")
	}
	delivery, found, err := q.reader.GetDelivery(ctx, msg.DeliveryID)
	if err != nil {
		return GetDeliveryResult{}, err
	}
	return GetDeliveryResult{Delivery: delivery, Found: found}, nil
}

type ListDeliveriesQuery struct {
	reader DeliveryReader
}

func NewListDeliveriesQuery(reader DeliveryReader) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{reader: reader}
}

func (q *ListDeliveriesQuery) Query(ctx context.Context, msg ListDeliveriesMessage) ([]core.Delivery, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.ListDeliveries(ctx, msg.EndpointID, msg.Limit)
}

type GetDeliveryStatsQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryStatsQuery(reader DeliveryReader) *GetDeliveryStatsQuery {
	return &GetDeliveryStatsQuery{reader: reader}
}

func (q *GetDeliveryStatsQuery) Query(ctx context.Context, msg GetDeliveryStatsMessage) (core.DeliveryStats, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryStats{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.GetDeliveryStats(ctx, msg.EndpointID)
}
