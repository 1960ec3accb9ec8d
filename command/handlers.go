package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhooks/core"
)

// MutatingService is the slice of the webhook service the command layer
// drives. Lookup misses come back as found=false, never as errors.
type MutatingService interface {
	CreateEndpoint(ctx context.Context, in core.CreateEndpointInput) (core.Endpoint, error)
	UpdateEndpoint(ctx context.Context, id string, in core.UpdateEndpointInput) (core.Endpoint, bool, error)
	DeleteEndpoint(ctx context.Context, id string) (bool, error)
	RotateSecret(ctx context.Context, id string) (string, bool, error)
	TriggerEvent(ctx context.Context, event string, data map[string]any, userID string) ([]string, error)
}

// UpdateEndpointResult reports the merged endpoint and whether it
// existed.
type UpdateEndpointResult struct {
	Endpoint core.Endpoint
	Found    bool
}

// RotateSecretResult carries the only exposure of a rotated secret.
type RotateSecretResult struct {
	Secret string
	Found  bool
}

type DeleteEndpointResult struct {
	Removed bool
}

// TriggerEventResult lists the delivery ids created for the trigger so
// callers can poll ledger status.
type TriggerEventResult struct {
	DeliveryIDs []string
}

type CreateEndpointCommand struct {
	service MutatingService
}

func NewCreateEndpointCommand(service MutatingService) *CreateEndpointCommand {
	return &CreateEndpointCommand{service: service}
}

func (c *CreateEndpointCommand) Execute(ctx context.Context, msg CreateEndpointMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: endpoint service is required")
	}
	out, err := c.service.CreateEndpoint(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateEndpointCommand struct {
	service MutatingService
}

func NewUpdateEndpointCommand(service MutatingService) *UpdateEndpointCommand {
	return &UpdateEndpointCommand{service: service}
}

func (c *UpdateEndpointCommand) Execute(ctx context.Context, msg UpdateEndpointMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: endpoint service is required")
	}
	endpoint, found, err := c.service.UpdateEndpoint(ctx, msg.EndpointID, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, UpdateEndpointResult{Endpoint: endpoint, Found: found})
	return nil
}

type DeleteEndpointCommand struct {
	service MutatingService
}

func NewDeleteEndpointCommand(service MutatingService) *DeleteEndpointCommand {
	return &DeleteEndpointCommand{service: service}
}

func (c *DeleteEndpointCommand) Execute(ctx context.Context, msg DeleteEndpointMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: endpoint service is required")
	}
	removed, err := c.service.DeleteEndpoint(ctx, msg.EndpointID)
	if err != nil {
		return err
	}
	storeResult(ctx, DeleteEndpointResult{Removed: removed})
	return nil
}

type RotateSecretCommand struct {
	service MutatingService
}

func NewRotateSecretCommand(service MutatingService) *RotateSecretCommand {
	return &RotateSecretCommand{service: service}
}

func (c *RotateSecretCommand) Execute(ctx context.Context, msg RotateSecretMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: endpoint service is required")
	}
	secret, found, err := c.service.RotateSecret(ctx, msg.EndpointID)
	if err != nil {
		return err
	}
	storeResult(ctx, RotateSecretResult{Secret: secret, Found: found})
	return nil
}

type TriggerEventCommand struct {
	service MutatingService
}

func NewTriggerEventCommand(service MutatingService) *TriggerEventCommand {
	return &TriggerEventCommand{service: service}
}

func (c *TriggerEventCommand) Execute(ctx context.Context, msg TriggerEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: trigger service is required")
	}
	ids, err := c.service.TriggerEvent(ctx, msg.Event, msg.Data, msg.UserID)
	if err != nil {
		return err
	}
	storeResult(ctx, TriggerEventResult{DeliveryIDs: ids})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
