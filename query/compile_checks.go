package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhooks/core"
)

var (
	_ gocmd.Querier[GetEndpointMessage, GetEndpointResult]       = (*GetEndpointQuery)(nil)
	_ gocmd.Querier[ListEndpointsByUserMessage, []core.Endpoint] = (*ListEndpointsByUserQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, GetDeliveryResult]       = (*GetDeliveryQuery)(nil)
	_ gocmd.Querier[ListDeliveriesMessage, []core.Delivery]      = (*ListDeliveriesQuery)(nil)
	_ gocmd.Querier[GetDeliveryStatsMessage, core.DeliveryStats] = (*GetDeliveryStatsQuery)(nil)
)
