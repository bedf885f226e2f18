package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Lifecycle hook names fired by the host platform.
const (
	HookRegistrationCompleted = "registration_completed"
	HookUserApproved          = "user_approved"
	HookUserDeclined          = "user_declined"
	HookWelcomeEmailSent      = "welcome_email_sent"
	HookDeclineEmailSent      = "decline_email_sent"
	HookProfileUpdated        = "profile_updated"
	HookOrderCompleted        = "order_completed"
)

// ErrUnknownHook is returned when publishing a hook name outside the lifecycle set.
var ErrUnknownHook = errors.New("unknown hook")

var lifecycle = []string{
	HookRegistrationCompleted,
	HookUserApproved,
	HookUserDeclined,
	HookWelcomeEmailSent,
	HookDeclineEmailSent,
	HookProfileUpdated,
	HookOrderCompleted,
}

// Lifecycle returns every hook name an adapter is expected to handle.
func Lifecycle() []string {
	return append([]string(nil), lifecycle...)
}

// Known reports whether name is a lifecycle hook.
func Known(name string) bool {
	for _, n := range lifecycle {
		if n == name {
			return true
		}
	}
	return false
}

// Hook is one lifecycle notification. Fields not relevant to a hook stay zero.
type Hook struct {
	Name       string         `json:"hook"`
	UserID     int64          `json:"user_id,omitempty"`
	OrderID    int64          `json:"order_id,omitempty"`
	AdminID    int64          `json:"admin_id,omitempty"`
	Email      string         `json:"email,omitempty"`
	Changes    map[string]any `json:"changes,omitempty"`
	ReceivedAt time.Time      `json:"-"`
}

// Handler reacts to a hook.
type Handler func(ctx context.Context, hook Hook) error

// Bus provides in-process pub/sub for lifecycle hooks.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewBus constructs an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]Handler),
		logger:      logger.With().Str("component", "hook_bus").Logger(),
	}
}

// Subscribe registers a handler for a hook name.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[name] = append(b.subscribers[name], handler)
}

// HasSubscribers reports whether anything listens to name.
func (b *Bus) HasSubscribers(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[name]) > 0
}

// Names returns the subscribed hook names, sorted.
func (b *Bus) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.subscribers))
	for name := range b.subscribers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Publish runs the handlers of hook.Name in subscription order, in the caller's goroutine.
// Every handler runs even if an earlier one failed; the failures are joined.
func (b *Bus) Publish(ctx context.Context, hook Hook) error {
	if !Known(hook.Name) {
		return fmt.Errorf("%w: %q", ErrUnknownHook, hook.Name)
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[hook.Name]...)
	b.mu.RUnlock()

	if hook.ReceivedAt.IsZero() {
		hook.ReceivedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, hook); err != nil {
			b.logger.Error().Err(err).Str("hook", hook.Name).Msg("hook handler failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
