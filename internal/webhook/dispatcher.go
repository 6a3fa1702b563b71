// Package webhook routes authenticated payment-provider events to
// per-event handlers through a dispatch table, so a failure in one
// event type is isolated and reported distinctly.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Provider event names.
const (
	EventOrderCreated          = "order_created"
	EventOrderRefunded         = "order_refunded"
	EventSubscriptionCreated   = "subscription_created"
	EventSubscriptionUpdated   = "subscription_updated"
	EventSubscriptionCancelled = "subscription_cancelled"
	EventSubscriptionExpired   = "subscription_expired"
)

// Event is one decoded provider notification.
type Event struct {
	Name string
	Data json.RawMessage
}

// HandlerFunc processes one event type.
type HandlerFunc func(ctx context.Context, event Event) error

// Dispatcher maps event names to handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher preloaded with the standard
// provider events, each handled by an audit-logging handler. Callers
// override individual events with Register as business handlers grow.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger.With(slog.String("component", "webhook_dispatcher")),
	}

	for _, name := range []string{
		EventOrderCreated,
		EventOrderRefunded,
		EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionCancelled,
		EventSubscriptionExpired,
	} {
		d.handlers[name] = d.logEvent
	}

	return d
}

// Register sets the handler for an event name, replacing any default.
func (d *Dispatcher) Register(name string, fn HandlerFunc) {
	d.handlers[name] = fn
}

// Dispatch routes one event. Unknown events are acknowledged and
// logged rather than failed, so the provider does not retry
// notifications this service never consumes.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	fn, ok := d.handlers[event.Name]
	if !ok {
		d.logger.InfoContext(ctx, "unhandled webhook event acknowledged",
			slog.String("event", event.Name),
		)
		return nil
	}

	if err := fn(ctx, event); err != nil {
		d.logger.ErrorContext(ctx, "webhook event handler failed",
			slog.String("event", event.Name),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("handler for %s: %w", event.Name, err)
	}

	return nil
}

// Known reports whether the event name has a registered handler.
func (d *Dispatcher) Known(name string) bool {
	_, ok := d.handlers[name]
	return ok
}

func (d *Dispatcher) logEvent(ctx context.Context, event Event) error {
	d.logger.InfoContext(ctx, "webhook event received",
		slog.String("event", event.Name),
		slog.Int("payload_bytes", len(event.Data)),
	)
	return nil
}
