package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Service is the inbound API of the webhook subsystem: endpoint
// registry, event triggering, and ledger reads. Delivery execution
// lives in the Dispatcher; the Service only writes pending rows and
// queue entries.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	endpointStore     EndpointStore
	deliveryLedger    DeliveryLedger
	deliveryQueue     DeliveryQueue
	secrets           SecretGenerator
	hooks             *NotificationHookCoordinator
	idGenerator       func() string
	now               func() time.Time
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	EndpointStore   EndpointStore
	DeliveryLedger  DeliveryLedger
	DeliveryQueue   DeliveryQueue
	SecretGenerator SecretGenerator
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("webhooks", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("webhooks"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.secretGenerator == nil {
		builder.secretGenerator = RandomSecretGenerator{}
	}
	if builder.hooks == nil {
		builder.hooks = NewNotificationHookCoordinator()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	missingStores := builder.endpointStore == nil ||
		builder.deliveryLedger == nil ||
		builder.deliveryQueue == nil
	if missingStores && builder.repositoryFactory != nil {
		var storeProvider StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			storeProvider = built
		} else if ready, ok := builder.repositoryFactory.(StoreProvider); ok {
			storeProvider = ready
		}
		if storeProvider != nil {
			if builder.endpointStore == nil {
				builder.endpointStore = storeProvider.EndpointStore()
			}
			if builder.deliveryLedger == nil {
				builder.deliveryLedger = storeProvider.DeliveryLedger()
			}
			if builder.deliveryQueue == nil {
				builder.deliveryQueue = storeProvider.DeliveryQueue()
			}
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		endpointStore:     builder.endpointStore,
		deliveryLedger:    builder.deliveryLedger,
		deliveryQueue:     builder.deliveryQueue,
		secrets:           builder.secretGenerator,
		hooks:             builder.hooks,
		idGenerator:       uuid.NewString,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		EndpointStore:   s.endpointStore,
		DeliveryLedger:  s.deliveryLedger,
		DeliveryQueue:   s.deliveryQueue,
		SecretGenerator: s.secrets,
	}
}

// RegisterHook adds an observer for registry and delivery notifications.
func (s *Service) RegisterHook(hook NotificationHook) {
	if s == nil || s.hooks == nil {
		return
	}
	s.hooks.Register(hook)
}

// Hooks exposes the coordinator so dispatch components share observers.
func (s *Service) Hooks() *NotificationHookCoordinator {
	if s == nil {
		return nil
	}
	return s.hooks
}

// CreateEndpoint registers a webhook endpoint. The returned endpoint
// carries the real secret; this and an explicit include-secret read are
// the only places the secret is exposed.
func (s *Service) CreateEndpoint(ctx context.Context, in CreateEndpointInput) (endpoint Endpoint, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id": in.UserID,
		"url":     in.URL,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "endpoint_create", err, fields)
	}()

	if s == nil || s.endpointStore == nil {
		return Endpoint{}, s.mapError(fmt.Errorf("core: endpoint store is required"))
	}
	if err = validateCreateEndpointInput(in); err != nil {
		err = s.mapError(err)
		return Endpoint{}, err
	}

	secret := strings.TrimSpace(in.Secret)
	if secret == "" {
		secret, err = s.secrets.Generate()
		if err != nil {
			err = s.mapError(err)
			return Endpoint{}, err
		}
	}
	maxRetries := in.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.config.Retry.MaxRetries
	}

	now := s.now()
	endpoint = Endpoint{
		ID:          s.idGenerator(),
		UserID:      strings.TrimSpace(in.UserID),
		URL:         strings.TrimSpace(in.URL),
		Secret:      secret,
		Events:      normalizeEvents(in.Events),
		Status:      EndpointStatusActive,
		Description: strings.TrimSpace(in.Description),
		Headers:     copyStringMap(in.Headers),
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	endpoint, err = s.endpointStore.Create(ctx, endpoint)
	if err != nil {
		err = s.mapError(err)
		return Endpoint{}, err
	}
	fields["endpoint_id"] = endpoint.ID

	s.emit(ctx, Notification{
		Name:       NotificationEndpointCreated,
		EndpointID: endpoint.ID,
		Metadata:   map[string]any{"events": endpoint.Events},
		OccurredAt: now,
	})
	return endpoint, nil
}

// GetEndpoint returns the endpoint and whether it exists. The secret is
// replaced with a placeholder unless includeSecret is set.
func (s *Service) GetEndpoint(ctx context.Context, id string, includeSecret bool) (Endpoint, bool, error) {
	if s == nil || s.endpointStore == nil {
		return Endpoint{}, false, s.mapError(fmt.Errorf("core: endpoint store is required"))
	}
	endpoint, found, err := s.endpointStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Endpoint{}, false, s.mapError(err)
	}
	if !found {
		return Endpoint{}, false, nil
	}
	if !includeSecret {
		endpoint = endpoint.Redacted()
	}
	return endpoint, true, nil
}

func (s *Service) ListEndpointsByUser(ctx context.Context, userID string, includeSecret bool) ([]Endpoint, error) {
	if s == nil || s.endpointStore == nil {
		return nil, s.mapError(fmt.Errorf("core: endpoint store is required"))
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, s.mapError(fmt.Errorf("core: user id is required"))
	}
	endpoints, err := s.endpointStore.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapError(err)
	}
	if !includeSecret {
		for i := range endpoints {
			endpoints[i] = endpoints[i].Redacted()
		}
	}
	return endpoints, nil
}

// ListEndpointsForEvent returns active endpoints whose subscription set
// contains event exactly. Secrets are always redacted here; the
// executor reads them from the store at attempt time.
func (s *Service) ListEndpointsForEvent(ctx context.Context, event string) ([]Endpoint, error) {
	if s == nil || s.endpointStore == nil {
		return nil, s.mapError(fmt.Errorf("core: endpoint store is required"))
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return nil, s.mapError(fmt.Errorf("core: event name is required"))
	}
	endpoints, err := s.endpointStore.ListForEvent(ctx, event)
	if err != nil {
		return nil, s.mapError(err)
	}
	for i := range endpoints {
		endpoints[i] = endpoints[i].Redacted()
	}
	return endpoints, nil
}

// UpdateEndpoint merges the provided fields and reports whether the
// endpoint existed. Counters and secret are not updatable here.
func (s *Service) UpdateEndpoint(ctx context.Context, id string, in UpdateEndpointInput) (endpoint Endpoint, found bool, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"endpoint_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "endpoint_update", err, fields)
	}()

	if s == nil || s.endpointStore == nil {
		return Endpoint{}, false, s.mapError(fmt.Errorf("core: endpoint store is required"))
	}
	if err = validateUpdateEndpointInput(in); err != nil {
		err = s.mapError(err)
		return Endpoint{}, false, err
	}
	if in.Events != nil {
		in.Events = normalizeEvents(in.Events)
	}
	endpoint, found, err = s.endpointStore.Update(ctx, strings.TrimSpace(id), in)
	if err != nil {
		err = s.mapError(err)
		return Endpoint{}, false, err
	}
	if !found {
		return Endpoint{}, false, nil
	}
	return endpoint.Redacted(), true, nil
}

// DeleteEndpoint hard-deletes the endpoint and reports whether a row
// was removed. Missing ids are a normal outcome, not an error.
func (s *Service) DeleteEndpoint(ctx context.Context, id string) (bool, error) {
	if s == nil || s.endpointStore == nil {
		return false, s.mapError(fmt.Errorf("core: endpoint store is required"))
	}
	removed, err := s.endpointStore.Delete(ctx, strings.TrimSpace(id))
	if err != nil {
		return false, s.mapError(err)
	}
	return removed, nil
}

// RotateSecret replaces the endpoint secret and returns the new value.
// The effect is forward-only: attempts already signed keep their old
// signature, and pending retries pick up the new secret because the
// executor loads the endpoint at attempt time.
func (s *Service) RotateSecret(ctx context.Context, id string) (secret string, found bool, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"endpoint_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "secret_rotate", err, fields)
	}()

	if s == nil || s.endpointStore == nil {
		return "", false, s.mapError(fmt.Errorf("core: endpoint store is required"))
	}
	secret, err = s.secrets.Generate()
	if err != nil {
		err = s.mapError(err)
		return "", false, err
	}
	_, found, err = s.endpointStore.UpdateSecret(ctx, strings.TrimSpace(id), secret)
	if err != nil {
		err = s.mapError(err)
		return "", false, err
	}
	if !found {
		return "", false, nil
	}
	s.emit(ctx, Notification{
		Name:       NotificationSecretRotated,
		EndpointID: strings.TrimSpace(id),
		OccurredAt: s.now(),
	})
	return secret, true, nil
}

// GetDelivery returns one ledger row and whether it exists.
func (s *Service) GetDelivery(ctx context.Context, id string) (Delivery, bool, error) {
	if s == nil || s.deliveryLedger == nil {
		return Delivery{}, false, s.mapError(fmt.Errorf("core: delivery ledger is required"))
	}
	delivery, found, err := s.deliveryLedger.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Delivery{}, false, s.mapError(err)
	}
	return delivery, found, nil
}

// ListDeliveries returns the most recent ledger rows for an endpoint.
func (s *Service) ListDeliveries(ctx context.Context, endpointID string, limit int) ([]Delivery, error) {
	if s == nil || s.deliveryLedger == nil {
		return nil, s.mapError(fmt.Errorf("core: delivery ledger is required"))
	}
	endpointID = strings.TrimSpace(endpointID)
	if endpointID == "" {
		return nil, s.mapError(fmt.Errorf("core: endpoint id is required"))
	}
	if limit <= 0 {
		limit = 50
	}
	deliveries, err := s.deliveryLedger.ListByEndpoint(ctx, endpointID, limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	return deliveries, nil
}

func (s *Service) GetDeliveryStats(ctx context.Context, endpointID string) (DeliveryStats, error) {
	if s == nil || s.deliveryLedger == nil {
		return DeliveryStats{}, s.mapError(fmt.Errorf("core: delivery ledger is required"))
	}
	endpointID = strings.TrimSpace(endpointID)
	if endpointID == "" {
		return DeliveryStats{}, s.mapError(fmt.Errorf("core: endpoint id is required"))
	}
	stats, err := s.deliveryLedger.Stats(ctx, endpointID)
	if err != nil {
		return DeliveryStats{}, s.mapError(err)
	}
	return stats, nil
}

func (s *Service) emit(ctx context.Context, note Notification) {
	if s == nil || s.hooks == nil {
		return
	}
	if err := s.hooks.Emit(ctx, note); err != nil {
		s.logError(ctx, "notification hooks failed", map[string]any{
			"notification": note.Name,
			"error":        err.Error(),
		})
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func validateCreateEndpointInput(in CreateEndpointInput) error {
	if strings.TrimSpace(in.UserID) == "" {
		return fmt.Errorf("core: user id is required")
	}
	if err := validateEndpointURL(in.URL); err != nil {
		return err
	}
	if len(normalizeEvents(in.Events)) == 0 {
		return fmt.Errorf("core: at least one subscribed event is required")
	}
	if in.MaxRetries < 0 {
		return fmt.Errorf("core: max retries must be at least 1")
	}
	return nil
}

func validateUpdateEndpointInput(in UpdateEndpointInput) error {
	if in.URL != nil {
		if err := validateEndpointURL(*in.URL); err != nil {
			return err
		}
	}
	if in.Events != nil && len(normalizeEvents(in.Events)) == 0 {
		return fmt.Errorf("core: at least one subscribed event is required")
	}
	if in.Status != nil && *in.Status != EndpointStatusActive && *in.Status != EndpointStatusDisabled {
		return fmt.Errorf("core: invalid endpoint status %q", *in.Status)
	}
	if in.MaxRetries != nil && *in.MaxRetries < 1 {
		return fmt.Errorf("core: max retries must be at least 1")
	}
	return nil
}

func validateEndpointURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("core: endpoint url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("core: invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("core: endpoint url must use http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("core: endpoint url host is required")
	}
	return nil
}

func normalizeEvents(events []string) []string {
	out := make([]string, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, event := range events {
		event = strings.TrimSpace(event)
		if event == "" {
			continue
		}
		if _, ok := seen[event]; ok {
			continue
		}
		seen[event] = struct{}{}
		out = append(out, event)
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

// RandomSecretGenerator mints whsec_-prefixed 256-bit hex secrets.
type RandomSecretGenerator struct{}

func (RandomSecretGenerator) Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("core: generate endpoint secret: %w", err)
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}

var _ SecretGenerator = RandomSecretGenerator{}
