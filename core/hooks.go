package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// NamedNotificationHook lets observers identify themselves in aggregated
// failure reports.
type NamedNotificationHook interface {
	NotificationHook
	Name() string
}

// NotificationHookCoordinator fans lifecycle notifications out to
// registered observers. Hooks run synchronously in registration order;
// failures are aggregated and never abort the emitting operation.
type NotificationHookCoordinator struct {
	mu    sync.RWMutex
	hooks []NotificationHook
}

func NewNotificationHookCoordinator() *NotificationHookCoordinator {
	return &NotificationHookCoordinator{
		hooks: make([]NotificationHook, 0),
	}
}

func (c *NotificationHookCoordinator) Register(hook NotificationHook) {
	if c == nil || hook == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// Emit runs every registered hook and returns the joined failures for
// observability without implying rollback.
func (c *NotificationHookCoordinator) Emit(ctx context.Context, note Notification) error {
	var hookErr error
	for _, hook := range c.registered() {
		if hook == nil {
			continue
		}
		if err := hook.OnNotification(ctx, note); err != nil {
			hookErr = errors.Join(hookErr, fmt.Errorf("notification hook %q failed: %w", hookName(hook), err))
		}
	}
	return hookErr
}

func (c *NotificationHookCoordinator) registered() []NotificationHook {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]NotificationHook, len(c.hooks))
	copy(out, c.hooks)
	return out
}

func hookName(hook NotificationHook) string {
	named, ok := hook.(NamedNotificationHook)
	if !ok {
		return "unnamed"
	}
	return named.Name()
}

// NotificationHookFunc adapts a func to the NotificationHook contract.
type NotificationHookFunc func(ctx context.Context, note Notification) error

func (f NotificationHookFunc) OnNotification(ctx context.Context, note Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, note)
}
