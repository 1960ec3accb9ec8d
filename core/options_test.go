package core

import (
	"context"
	"testing"
	"time"
)

func TestGoOptionsResolver_RuntimeWinsOverLoadedOverDefaults(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{}
	loaded.Dispatch.BatchSize = 25
	loaded.Retry.MaxRetries = 8
	runtime := Config{}
	runtime.Retry.MaxRetries = 3

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Retry.MaxRetries != 3 {
		t.Fatalf("expected runtime layer to win, got %d", resolved.Retry.MaxRetries)
	}
	if resolved.Dispatch.BatchSize != 25 {
		t.Fatalf("expected loaded layer over defaults, got %d", resolved.Dispatch.BatchSize)
	}
	if resolved.ServiceName != defaults.ServiceName {
		t.Fatalf("expected default service name, got %q", resolved.ServiceName)
	}
	if resolved.Retention.Window != defaults.Retention.Window {
		t.Fatalf("expected default retention window, got %s", resolved.Retention.Window)
	}
}

func TestGoOptionsResolver_ZeroRuntimeKeepsDefaults(t *testing.T) {
	defaults := DefaultConfig()
	resolved, err := GoOptionsResolver{}.Resolve(defaults, Config{}, Config{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Dispatch.TickInterval != time.Second {
		t.Fatalf("expected default tick interval, got %s", resolved.Dispatch.TickInterval)
	}
	if resolved.Retry.BaseDelay != time.Second || resolved.Retry.MaxDelay != 5*time.Minute {
		t.Fatalf("expected default retry delays, got %#v", resolved.Retry)
	}
}

func TestCfgxConfigProvider_AppliesRawValuesOverDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{Values: map[string]any{
		"service_name": "webhooks-test",
		"retry": map[string]any{
			"max_retries": 7,
		},
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "webhooks-test" {
		t.Fatalf("expected loaded service name, got %q", cfg.ServiceName)
	}
	if cfg.Retry.MaxRetries != 7 {
		t.Fatalf("expected loaded max retries, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Dispatch.BatchSize != DefaultConfig().Dispatch.BatchSize {
		t.Fatalf("expected default batch size, got %d", cfg.Dispatch.BatchSize)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"blank service name", func(c *Config) { c.ServiceName = "  " }},
		{"negative tick interval", func(c *Config) { c.Dispatch.TickInterval = -time.Second }},
		{"negative batch size", func(c *Config) { c.Dispatch.BatchSize = -1 }},
		{"negative max retries", func(c *Config) { c.Retry.MaxRetries = -1 }},
		{"negative base delay", func(c *Config) { c.Retry.BaseDelay = -time.Second }},
		{"negative retention window", func(c *Config) { c.Retention.Window = -time.Hour }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestNewService_AppliesRuntimeConfig(t *testing.T) {
	runtime := Config{}
	runtime.Dispatch.BatchSize = 2
	runtime.Retry.MaxRetries = 9

	service, err := NewService(runtime,
		WithEndpointStore(newMemoryEndpointStore()),
		WithDeliveryLedger(newMemoryDeliveryLedger()),
		WithDeliveryQueue(newMemoryDeliveryQueue()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := service.Config()
	if cfg.Dispatch.BatchSize != 2 || cfg.Retry.MaxRetries != 9 {
		t.Fatalf("expected runtime overrides, got %#v", cfg)
	}
	if cfg.ServiceName != "webhooks" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
}

func TestNewService_BuildsStoresFromFactory(t *testing.T) {
	endpoints := newMemoryEndpointStore()
	ledger := newMemoryDeliveryLedger()
	queue := newMemoryDeliveryQueue()
	factory := stubStoreFactory{provider: stubStoreProvider{
		endpoints: endpoints,
		ledger:    ledger,
		queue:     queue,
	}}

	service, err := NewService(DefaultConfig(), WithRepositoryFactory(factory))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := service.Dependencies()
	if deps.EndpointStore == nil || deps.DeliveryLedger == nil || deps.DeliveryQueue == nil {
		t.Fatalf("expected stores built from factory")
	}
}

type stubStoreProvider struct {
	endpoints EndpointStore
	ledger    DeliveryLedger
	queue     DeliveryQueue
}

func (p stubStoreProvider) EndpointStore() EndpointStore   { return p.endpoints }
func (p stubStoreProvider) DeliveryLedger() DeliveryLedger { return p.ledger }
func (p stubStoreProvider) DeliveryQueue() DeliveryQueue   { return p.queue }

type stubStoreFactory struct {
	provider StoreProvider
}

func (f stubStoreFactory) BuildStores(any) (StoreProvider, error) {
	return f.provider, nil
}
