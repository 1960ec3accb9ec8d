package core

import (
	"context"
	"fmt"
	"time"
)

// Retention purges terminal ledger rows older than the configured
// window. Pending and retrying rows are never touched.
type Retention struct {
	ledger DeliveryLedger
	hooks  *NotificationHookCoordinator
	logger Logger
	window time.Duration
	now    func() time.Time
}

func NewRetention(ledger DeliveryLedger, window time.Duration) (*Retention, error) {
	if ledger == nil {
		return nil, fmt.Errorf("core: retention requires a delivery ledger")
	}
	if window <= 0 {
		window = DefaultConfig().Retention.Window
	}
	return &Retention{
		ledger: ledger,
		window: window,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (r *Retention) WithHooks(hooks *NotificationHookCoordinator) *Retention {
	if r != nil {
		r.hooks = hooks
	}
	return r
}

func (r *Retention) WithLogger(logger Logger) *Retention {
	if r != nil {
		r.logger = logger
	}
	return r
}

// PurgeExpired removes delivered/failed rows created before now-window
// and reports the removed count for observability.
func (r *Retention) PurgeExpired(ctx context.Context) (int64, error) {
	if r == nil || r.ledger == nil {
		return 0, fmt.Errorf("core: retention is not configured")
	}
	cutoff := r.now().Add(-r.window)
	removed, err := r.ledger.PurgeTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if r.logger != nil {
		r.logger.Info("retention sweep completed", "removed", removed, "cutoff", cutoff)
	}
	if r.hooks != nil && removed > 0 {
		note := Notification{
			Name:       NotificationRetentionPurged,
			Metadata:   map[string]any{"removed": removed},
			OccurredAt: r.now(),
		}
		if err := r.hooks.Emit(ctx, note); err != nil && r.logger != nil {
			r.logger.Error("retention notification hooks failed", "error", err.Error())
		}
	}
	return removed, nil
}
