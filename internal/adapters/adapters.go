// Package adapters translates platform lifecycle hooks into webhook emissions.
package adapters

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"playerhooks/internal/events"
	"playerhooks/internal/models"
	"playerhooks/internal/payload"
	"playerhooks/internal/topics"
)

// Emitter publishes an event to subscribed endpoints.
type Emitter interface {
	Emit(ctx context.Context, topic topics.Topic, data any)
}

// PayloadBuilder produces the normalized data objects.
type PayloadBuilder interface {
	User(ctx context.Context, userID, orderID int64) payload.UserObject
	Order(ctx context.Context, orderID int64) payload.OrderObject
	Profile(ctx context.Context, userID int64) map[string]any
}

// ApprovalTracker records review decisions and reports whether a decision changed the
// stored status.
type ApprovalTracker interface {
	TransitionApproval(ctx context.Context, userID int64, status models.ApprovalStatus) (bool, error)
}

// Event data shapes. Field order is the order of the keys on the wire.
type (
	RegistrationData struct {
		User    payload.UserObject  `json:"user"`
		Order   payload.OrderObject `json:"order"`
		Profile map[string]any      `json:"profile"`
	}

	DecisionData struct {
		User    payload.UserObject `json:"user"`
		AdminID int64              `json:"admin_id"`
		Profile map[string]any     `json:"profile"`
	}

	EmailData struct {
		User payload.UserObject `json:"user"`
		Type string             `json:"type"`
	}

	ProfileUpdateData struct {
		User    payload.UserObject `json:"user"`
		Changes map[string]any     `json:"changes"`
		Profile map[string]any     `json:"profile"`
	}

	// OrderData carries user and profile only for orders placed by an account.
	OrderData struct {
		Order   payload.OrderObject `json:"order"`
		User    *payload.UserObject `json:"user,omitempty"`
		Profile map[string]any      `json:"profile,omitempty"`
	}
)

// Adapters holds the hook handlers.
type Adapters struct {
	emitter   Emitter
	builder   PayloadBuilder
	approvals ApprovalTracker
	logger    zerolog.Logger
}

func New(emitter Emitter, builder PayloadBuilder, approvals ApprovalTracker, logger zerolog.Logger) *Adapters {
	return &Adapters{
		emitter:   emitter,
		builder:   builder,
		approvals: approvals,
		logger:    logger.With().Str("component", "adapters").Logger(),
	}
}

// Register subscribes every handler to its lifecycle hook.
func (a *Adapters) Register(bus *events.Bus) {
	bus.Subscribe(events.HookRegistrationCompleted, a.OnRegistrationCompleted)
	bus.Subscribe(events.HookUserApproved, a.OnUserApproved)
	bus.Subscribe(events.HookUserDeclined, a.OnUserDeclined)
	bus.Subscribe(events.HookWelcomeEmailSent, a.OnWelcomeEmailSent)
	bus.Subscribe(events.HookDeclineEmailSent, a.OnDeclineEmailSent)
	bus.Subscribe(events.HookProfileUpdated, a.OnProfileUpdated)
	bus.Subscribe(events.HookOrderCompleted, a.OnOrderCompleted)
}

func (a *Adapters) OnRegistrationCompleted(ctx context.Context, h events.Hook) error {
	a.emitter.Emit(ctx, topics.RegistrationCompleted, RegistrationData{
		User:    a.builder.User(ctx, h.UserID, 0),
		Order:   a.builder.Order(ctx, h.OrderID),
		Profile: a.builder.Profile(ctx, h.UserID),
	})
	return nil
}

func (a *Adapters) OnUserApproved(ctx context.Context, h events.Hook) error {
	return a.decision(ctx, h, models.ApprovalApproved, topics.UserApproved)
}

func (a *Adapters) OnUserDeclined(ctx context.Context, h events.Hook) error {
	return a.decision(ctx, h, models.ApprovalDeclined, topics.UserDeclined)
}

// decision emits only when the stored status actually changes, so repeating a decision
// does not notify twice.
func (a *Adapters) decision(ctx context.Context, h events.Hook, status models.ApprovalStatus, topic topics.Topic) error {
	changed, err := a.approvals.TransitionApproval(ctx, h.UserID, status)
	if err != nil {
		return fmt.Errorf("record %s for user %d: %w", status, h.UserID, err)
	}
	if !changed {
		a.logger.Debug().Int64("user_id", h.UserID).Str("status", string(status)).Msg("approval unchanged, not emitting")
		return nil
	}

	a.emitter.Emit(ctx, topic, DecisionData{
		User:    a.builder.User(ctx, h.UserID, 0),
		AdminID: h.AdminID,
		Profile: a.builder.Profile(ctx, h.UserID),
	})
	return nil
}

func (a *Adapters) OnWelcomeEmailSent(ctx context.Context, h events.Hook) error {
	a.emailSent(ctx, h, "welcome")
	return nil
}

func (a *Adapters) OnDeclineEmailSent(ctx context.Context, h events.Hook) error {
	a.emailSent(ctx, h, "decline")
	return nil
}

func (a *Adapters) emailSent(ctx context.Context, h events.Hook, kind string) {
	a.emitter.Emit(ctx, topics.EmailSent, EmailData{
		User: a.builder.User(ctx, h.UserID, 0),
		Type: kind,
	})
}

func (a *Adapters) OnProfileUpdated(ctx context.Context, h events.Hook) error {
	if len(h.Changes) == 0 {
		return nil
	}
	a.emitter.Emit(ctx, topics.ProfileUpdated, ProfileUpdateData{
		User:    a.builder.User(ctx, h.UserID, 0),
		Changes: h.Changes,
		Profile: a.builder.Profile(ctx, h.UserID),
	})
	return nil
}

// OnOrderCompleted adds the customer and their profile when the order belongs to an account.
func (a *Adapters) OnOrderCompleted(ctx context.Context, h events.Hook) error {
	order := a.builder.Order(ctx, h.OrderID)
	data := OrderData{Order: order}
	if order.CustomerID > 0 {
		user := a.builder.User(ctx, order.CustomerID, h.OrderID)
		data.User = &user
		data.Profile = a.builder.Profile(ctx, order.CustomerID)
	}
	a.emitter.Emit(ctx, topics.OrderCompleted, data)
	return nil
}
