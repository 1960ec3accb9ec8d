package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateEndpointMessage] = (*CreateEndpointCommand)(nil)
	_ gocmd.Commander[UpdateEndpointMessage] = (*UpdateEndpointCommand)(nil)
	_ gocmd.Commander[DeleteEndpointMessage] = (*DeleteEndpointCommand)(nil)
	_ gocmd.Commander[RotateSecretMessage]   = (*RotateSecretCommand)(nil)
	_ gocmd.Commander[TriggerEventMessage]   = (*TriggerEventCommand)(nil)
)
