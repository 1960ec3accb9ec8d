package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RetryPolicy computes the delay before a given retry attempt.
type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialRetryPolicy doubles the initial delay per attempt and caps
// at Max: min(Initial * 2^(attempt-1), Max).
type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 5 * time.Minute
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// AttemptExecutor is the dispatcher's view of the HTTP executor.
type AttemptExecutor interface {
	Execute(ctx context.Context, endpoint Endpoint, envelope Envelope) (AttemptOutcome, error)
}

type DispatcherConfig struct {
	BatchSize   int
	RetryPolicy RetryPolicy
}

func DefaultDispatcherConfig() DispatcherConfig {
	defaults := DefaultConfig()
	return DispatcherConfig{
		BatchSize: defaults.Dispatch.BatchSize,
		RetryPolicy: ExponentialRetryPolicy{
			Initial: defaults.Retry.BaseDelay,
			Max:     defaults.Retry.MaxDelay,
		},
	}
}

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
}

// Dispatcher drains due queue entries into the executor and applies the
// retry policy to failures. Entries are claimed (removed) atomically
// before dispatch, so overlapping ticks never process the same entry.
type Dispatcher struct {
	endpoints EndpointStore
	ledger    DeliveryLedger
	queue     DeliveryQueue
	executor  AttemptExecutor
	hooks     *NotificationHookCoordinator
	logger    Logger
	config    DispatcherConfig
	now       func() time.Time
}

func NewDispatcher(
	endpoints EndpointStore,
	ledger DeliveryLedger,
	queue DeliveryQueue,
	executor AttemptExecutor,
	config DispatcherConfig,
) (*Dispatcher, error) {
	if endpoints == nil || ledger == nil || queue == nil {
		return nil, fmt.Errorf("core: dispatcher requires endpoint, ledger, and queue stores")
	}
	if executor == nil {
		return nil, fmt.Errorf("core: dispatcher requires an executor")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultDispatcherConfig().BatchSize
	}
	if config.RetryPolicy == nil {
		config.RetryPolicy = DefaultDispatcherConfig().RetryPolicy
	}
	return &Dispatcher{
		endpoints: endpoints,
		ledger:    ledger,
		queue:     queue,
		executor:  executor,
		config:    config,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// WithHooks registers the notification coordinator used for delivered
// and failed terminal transitions.
func (d *Dispatcher) WithHooks(hooks *NotificationHookCoordinator) *Dispatcher {
	if d != nil {
		d.hooks = hooks
	}
	return d
}

// WithLogger sets the per-item failure logger.
func (d *Dispatcher) WithLogger(logger Logger) *Dispatcher {
	if d != nil {
		d.logger = logger
	}
	return d
}

// DispatchDue runs one scheduler pass. Items execute sequentially to
// bound concurrent outbound connections; a failure handling one item
// never aborts the rest of the batch. Delivery failures feed the retry
// policy and are not errors; the returned error covers store faults
// that prevented the pass from making progress.
func (d *Dispatcher) DispatchDue(ctx context.Context, batchSize int) (DispatchStats, error) {
	if d == nil || d.queue == nil {
		return DispatchStats{}, fmt.Errorf("core: dispatcher is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = d.config.BatchSize
	}
	entries, err := d.queue.ClaimDue(ctx, d.now(), limit)
	if err != nil {
		return DispatchStats{}, err
	}

	stats := DispatchStats{Claimed: len(entries)}
	for _, entry := range entries {
		outcome, err := d.processEntry(ctx, entry)
		if err != nil {
			d.logItemFailure(ctx, entry, err)
			d.markFailedFallback(ctx, entry, err)
			stats.Failed++
			continue
		}
		switch outcome {
		case DeliveryStatusDelivered:
			stats.Delivered++
		case DeliveryStatusRetrying:
			stats.Retried++
		default:
			stats.Failed++
		}
	}
	return stats, nil
}

func (d *Dispatcher) processEntry(ctx context.Context, entry QueueEntry) (DeliveryStatus, error) {
	endpoint, found, err := d.endpoints.Get(ctx, entry.EndpointID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("core: endpoint not found for queued delivery %q", entry.DeliveryID)
	}

	outcome, err := d.executor.Execute(ctx, endpoint, entry.Payload)
	if err != nil {
		return "", err
	}

	attempt := entry.Attempt + 1
	now := d.now()
	if outcome.Succeeded() {
		if _, err := d.ledger.MarkDelivered(ctx, entry.DeliveryID, attempt, outcome); err != nil {
			return "", err
		}
		if err := d.endpoints.RecordSuccess(ctx, endpoint.ID, now); err != nil {
			return "", err
		}
		d.emit(ctx, NotificationDelivered, endpoint.ID, entry.DeliveryID, entry.Event, map[string]any{
			"attempt": attempt,
		})
		return DeliveryStatusDelivered, nil
	}

	// All non-2xx statuses and transport errors consume retry budget
	// uniformly; there is no fast-fail classification by status code.
	if attempt < endpoint.MaxRetries {
		nextRetryAt := now.Add(d.config.RetryPolicy.NextDelay(attempt))
		if _, err := d.ledger.MarkRetrying(ctx, entry.DeliveryID, attempt, outcome, nextRetryAt); err != nil {
			return "", err
		}
		retry := QueueEntry{
			DeliveryID:  entry.DeliveryID,
			EndpointID:  entry.EndpointID,
			Event:       entry.Event,
			Attempt:     attempt,
			Payload:     entry.Payload,
			Priority:    entry.Priority,
			ScheduledAt: nextRetryAt,
			CreatedAt:   now,
		}
		if err := d.queue.Enqueue(ctx, retry); err != nil {
			return "", err
		}
		return DeliveryStatusRetrying, nil
	}

	if _, err := d.ledger.MarkFailed(ctx, entry.DeliveryID, attempt, outcome); err != nil {
		return "", err
	}
	if err := d.endpoints.RecordFailure(ctx, endpoint.ID, now); err != nil {
		return "", err
	}
	d.emit(ctx, NotificationDeliveryFailed, endpoint.ID, entry.DeliveryID, entry.Event, map[string]any{
		"attempt": attempt,
		"error":   outcome.Error,
	})
	return DeliveryStatusFailed, nil
}

// markFailedFallback is the best-effort terminal write for entries that
// broke before the retry decision could run. If the write itself fails
// we log and move on.
func (d *Dispatcher) markFailedFallback(ctx context.Context, entry QueueEntry, cause error) {
	outcome := AttemptOutcome{Error: cause.Error()}
	if _, err := d.ledger.MarkFailed(ctx, entry.DeliveryID, entry.Attempt+1, outcome); err != nil {
		d.logItemFailure(ctx, entry, fmt.Errorf("core: mark failed fallback: %w", err))
	}
}

func (d *Dispatcher) logItemFailure(ctx context.Context, entry QueueEntry, err error) {
	if d == nil || d.logger == nil {
		return
	}
	logger := d.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error("delivery dispatch item failed",
		"delivery_id", entry.DeliveryID,
		"endpoint_id", entry.EndpointID,
		"event", entry.Event,
		"attempt", entry.Attempt,
		"error", err.Error(),
	)
}

func (d *Dispatcher) emit(ctx context.Context, name, endpointID, deliveryID, event string, metadata map[string]any) {
	if d == nil || d.hooks == nil {
		return
	}
	note := Notification{
		Name:       name,
		EndpointID: endpointID,
		DeliveryID: deliveryID,
		Event:      event,
		Metadata:   metadata,
		OccurredAt: d.now(),
	}
	if err := d.hooks.Emit(ctx, note); err != nil && d.logger != nil {
		d.logger.Error("notification hooks failed", "notification", name, "error", err.Error())
	}
}

// TickFunc is one unit of periodic work driven by a Runner.
type TickFunc func(ctx context.Context) error

// Runner drives a TickFunc on a fixed interval. A single runner per
// queue is assumed; Stop halts the ticker but does not abort an attempt
// already in flight, which preserves at-least-once semantics.
type Runner struct {
	name     string
	interval time.Duration
	tick     TickFunc
	logger   Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewRunner(name string, interval time.Duration, tick TickFunc, logger Logger) (*Runner, error) {
	if tick == nil {
		return nil, fmt.Errorf("core: runner tick function is required")
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Runner{
		name:     name,
		interval: interval,
		tick:     tick,
		logger:   logger,
	}, nil
}

// Start launches the ticking loop. Calling Start on a running runner is
// a no-op.
func (r *Runner) Start(ctx context.Context) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.started = true

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := r.tick(runCtx); err != nil && r.logger != nil {
					r.logger.Error("runner tick failed", "runner", r.name, "error", err.Error())
				}
			}
		}
	}()
}

// Stop halts the loop and waits for the current tick to finish.
func (r *Runner) Stop() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.started = false
	r.mu.Unlock()

	cancel()
	<-done
}
