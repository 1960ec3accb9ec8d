// Package webhooks is the outbound webhook delivery subsystem: endpoint
// registration, event-to-endpoint matching, at-least-once delivery with
// signed payloads, exponential-backoff retries, a durable delivery
// ledger, and retention cleanup. The root package re-exports the core
// types and options so hosts can wire the service without importing
// internal packages directly.
package webhooks

import "github.com/goliatone/go-webhooks/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Endpoint = core.Endpoint
type EndpointStatus = core.EndpointStatus
type Delivery = core.Delivery
type DeliveryStatus = core.DeliveryStatus
type DeliveryStats = core.DeliveryStats
type QueueEntry = core.QueueEntry
type Envelope = core.Envelope

type CreateEndpointInput = core.CreateEndpointInput
type UpdateEndpointInput = core.UpdateEndpointInput

type EndpointStore = core.EndpointStore
type DeliveryLedger = core.DeliveryLedger
type DeliveryQueue = core.DeliveryQueue
type StoreProvider = core.StoreProvider

type Dispatcher = core.Dispatcher
type DispatcherConfig = core.DispatcherConfig
type DispatchStats = core.DispatchStats
type Executor = core.Executor
type EnvelopeSigner = core.EnvelopeSigner
type Retention = core.Retention
type Runner = core.Runner

type Notification = core.Notification
type NotificationHook = core.NotificationHook
type NotificationHookFunc = core.NotificationHookFunc
type NotificationHookCoordinator = core.NotificationHookCoordinator
type MetricsRecorder = core.MetricsRecorder

type ErrorMapper = core.ErrorMapper
type ConfigProvider = core.ConfigProvider
type OptionsResolver = core.OptionsResolver
type SecretGenerator = core.SecretGenerator
type AttemptOutcome = core.AttemptOutcome
type AttemptExecutor = core.AttemptExecutor
type RetryPolicy = core.RetryPolicy
type ExponentialRetryPolicy = core.ExponentialRetryPolicy

const (
	EndpointStatusActive   = core.EndpointStatusActive
	EndpointStatusDisabled = core.EndpointStatusDisabled

	DeliveryStatusPending   = core.DeliveryStatusPending
	DeliveryStatusRetrying  = core.DeliveryStatusRetrying
	DeliveryStatusDelivered = core.DeliveryStatusDelivered
	DeliveryStatusFailed    = core.DeliveryStatusFailed
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithEndpointStore     = core.WithEndpointStore
	WithDeliveryLedger    = core.WithDeliveryLedger
	WithDeliveryQueue     = core.WithDeliveryQueue
	WithSecretGenerator   = core.WithSecretGenerator
	WithHookCoordinator   = core.WithHookCoordinator
)

var (
	NewDispatcher                  = core.NewDispatcher
	NewExecutor                    = core.NewExecutor
	NewRetention                   = core.NewRetention
	NewRunner                      = core.NewRunner
	NewNotificationHookCoordinator = core.NewNotificationHookCoordinator
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
