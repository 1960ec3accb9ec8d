package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetEndpoint         = "webhooks.query.endpoint.get"
	TypeListEndpointsByUser = "webhooks.query.endpoint.list_by_user"
	TypeGetDelivery         = "webhooks.query.delivery.get"
	TypeListDeliveries      = "webhooks.query.delivery.list"
	TypeGetDeliveryStats    = "webhooks.query.delivery.stats"
)

type GetEndpointMessage struct {
	EndpointID    string
	IncludeSecret bool
}

func (GetEndpointMessage) Type() string { return TypeGetEndpoint }

func (m GetEndpointMessage) Validate() error {
	if strings.TrimSpace(m.EndpointID) == "" {
		return fmt.Errorf("query: endpoint id is required")
	}
	return nil
}

type ListEndpointsByUserMessage struct {
	UserID        string
	IncludeSecret bool
}

func (ListEndpointsByUserMessage) Type() string { return TypeListEndpointsByUser }

func (m ListEndpointsByUserMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("query: user id is required")
	}
	return nil
}

type GetDeliveryMessage struct {
	DeliveryID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("query: delivery id is required")
	}
	return nil
}

type ListDeliveriesMessage struct {
	EndpointID string
	Limit      int
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	if strings.TrimSpace(m.EndpointID) == "" {
		return fmt.Errorf("query: endpoint id is required")
	}
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}

type GetDeliveryStatsMessage struct {
	EndpointID string
}

func (GetDeliveryStatsMessage) Type() string { return TypeGetDeliveryStats }

func (m GetDeliveryStatsMessage) Validate() error {
	if strings.TrimSpace(m.EndpointID) == "" {
		return fmt.Errorf("query: endpoint id is required")
	}
	return nil
}
