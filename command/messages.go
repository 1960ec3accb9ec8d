package command

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-webhooks/core"
)

const (
	TypeCreateEndpoint = "webhooks.command.endpoint.create"
	TypeUpdateEndpoint = "webhooks.command.endpoint.update"
	TypeDeleteEndpoint = "webhooks.command.endpoint.delete"
	TypeRotateSecret   = "webhooks.command.endpoint.rotate_secret"
	TypeTriggerEvent   = "webhooks.command.event.trigger"
)

type CreateEndpointMessage struct {
	Input core.CreateEndpointInput
}

func (CreateEndpointMessage) Type() string { return TypeCreateEndpoint }

func (m CreateEndpointMessage) Validate() error {
	if strings.TrimSpace(m.Input.UserID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	if err := validateURL(m.Input.URL); err != nil {
		return err
	}
	if len(m.Input.Events) == 0 {
		return fmt.Errorf("command: at least one subscribed event is required")
	}
	if m.Input.MaxRetries < 0 {
		return fmt.Errorf("command: max retries must be at least 1")
	}
	return nil
}

type UpdateEndpointMessage struct {
	EndpointID string
	Input      core.UpdateEndpointInput
}

func (UpdateEndpointMessage) Type() string { return TypeUpdateEndpoint }

func (m UpdateEndpointMessage) Validate() error {
	if strings.TrimSpace(m.EndpointID) == "" {
		return fmt.Errorf("command: endpoint id is required")
	}
	if m.Input.URL != nil {
		if err := validateURL(*m.Input.URL); err != nil {
			return err
		}
	}
	if m.Input.Events != nil && len(m.Input.Events) == 0 {
		return fmt.Errorf("command: at least one subscribed event is required")
	}
	if m.Input.MaxRetries != nil && *m.Input.MaxRetries < 1 {
		return fmt.Errorf("command: max retries must be at least 1")
	}
	return nil
}

type DeleteEndpointMessage struct {
	EndpointID string
}

func (DeleteEndpointMessage) Type() string { return TypeDeleteEndpoint }

func (m DeleteEndpointMessage) Validate() error {
	if strings.TrimSpace(m.EndpointID) == "" {
		return fmt.Errorf("command: endpoint id is required")
	}
	return nil
}

type RotateSecretMessage struct {
	EndpointID string
}

func (RotateSecretMessage) Type() string { return TypeRotateSecret }

func (m RotateSecretMessage) Validate() error {
	if strings.TrimSpace(m.EndpointID) == "" {
		return fmt.Errorf("command: endpoint id is required")
	}
	return nil
}

type TriggerEventMessage struct {
	Event  string
	Data   map[string]any
	UserID string
}

func (TriggerEventMessage) Type() string { return TypeTriggerEvent }

func (m TriggerEventMessage) Validate() error {
	if strings.TrimSpace(m.Event) == "" {
		return fmt.Errorf("command: event name is required")
	}
	return nil
}

func validateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("command: endpoint url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("command: invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("command: endpoint url must use http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("command: endpoint url host is required")
	}
	return nil
}
