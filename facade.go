package webhooks

import (
	"fmt"

	webhookscommand "github.com/goliatone/go-webhooks/command"
	webhooksquery "github.com/goliatone/go-webhooks/query"
)

// CommandQueryService is the full inbound API surface: endpoint
// mutations and trigger on the command side, registry and ledger reads
// on the query side. *core.Service satisfies it.
type CommandQueryService interface {
	webhookscommand.MutatingService
	webhooksquery.EndpointReader
	webhooksquery.DeliveryReader
}

type Commands struct {
	CreateEndpoint *webhookscommand.CreateEndpointCommand
	UpdateEndpoint *webhookscommand.UpdateEndpointCommand
	DeleteEndpoint *webhookscommand.DeleteEndpointCommand
	RotateSecret   *webhookscommand.RotateSecretCommand
	TriggerEvent   *webhookscommand.TriggerEventCommand
}

type Queries struct {
	GetEndpoint         *webhooksquery.GetEndpointQuery
	ListEndpointsByUser *webhooksquery.ListEndpointsByUserQuery
	GetDelivery         *webhooksquery.GetDeliveryQuery
	ListDeliveries      *webhooksquery.ListDeliveriesQuery
	GetDeliveryStats    *webhooksquery.GetDeliveryStatsQuery
}

// Facade bundles command and query handlers over one service instance.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("webhooks: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateEndpoint: webhookscommand.NewCreateEndpointCommand(service),
		UpdateEndpoint: webhookscommand.NewUpdateEndpointCommand(service),
		DeleteEndpoint: webhookscommand.NewDeleteEndpointCommand(service),
		RotateSecret:   webhookscommand.NewRotateSecretCommand(service),
		TriggerEvent:   webhookscommand.NewTriggerEventCommand(service),
	}
	facade.queries = Queries{
		GetEndpoint:         webhooksquery.NewGetEndpointQuery(service),
		ListEndpointsByUser: webhooksquery.NewListEndpointsByUserQuery(service),
		GetDelivery:         webhooksquery.NewGetDeliveryQuery(service),
		ListDeliveries:      webhooksquery.NewListDeliveriesQuery(service),
		GetDeliveryStats:    webhooksquery.NewGetDeliveryStatsQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
