// Package notify bridges Storefront lifecycle events to a customer
// notification backend.
//
// Like audit_hook, it defines a local Sender interface instead of
// importing a mail or push provider; callers inject the concrete
// transport at wiring time.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/storefront/order"
	"github.com/xraph/storefront/plugin"
	"github.com/xraph/storefront/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnPurchaseCommitted    = (*Extension)(nil)
	_ plugin.OnRenewalSucceeded     = (*Extension)(nil)
	_ plugin.OnRenewalFailed        = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled = (*Extension)(nil)
)

// Kind classifies a notification.
type Kind string

const (
	KindPurchaseReceipt  Kind = "purchase_receipt"
	KindRenewalReceipt   Kind = "renewal_receipt"
	KindRenewalPastDue   Kind = "renewal_past_due"
	KindSubscriptionOver Kind = "subscription_canceled"
)

// Notification is one message to a user.
type Notification struct {
	UserID string         `json:"user_id"`
	Kind   Kind           `json:"kind"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data,omitempty"`
}

// Sender delivers notifications. Implementations wrap mail, push, or
// in-app transports.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// SenderFunc is an adapter to use a plain function as a Sender.
type SenderFunc func(ctx context.Context, n *Notification) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, n *Notification) error {
	return f(ctx, n)
}

// Extension turns purchase and renewal events into user notifications.
type Extension struct {
	sender Sender
	logger *slog.Logger
}

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// New creates an Extension that delivers through the provided Sender.
func New(s Sender, opts ...Option) *Extension {
	e := &Extension{
		sender: s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "notify" }

// OnPurchaseCommitted implements plugin.OnPurchaseCommitted.
func (e *Extension) OnPurchaseCommitted(ctx context.Context, ord, _ interface{}) error {
	o, ok := ord.(*order.Order)
	if !ok {
		return nil
	}
	return e.send(ctx, &Notification{
		UserID: o.UserID,
		Kind:   KindPurchaseReceipt,
		Title:  "Purchase confirmed",
		Body:   fmt.Sprintf("Your order for %s was charged to your credit balance.", o.Total),
		Data: map[string]any{
			"order_id": o.ID.String(),
			"total":    o.Total.Amount,
			"currency": o.Currency,
		},
	})
}

// OnRenewalSucceeded implements plugin.OnRenewalSucceeded.
func (e *Extension) OnRenewalSucceeded(ctx context.Context, sub, ord interface{}) error {
	s, ok := sub.(*subscription.Subscription)
	if !ok {
		return nil
	}
	data := map[string]any{"subscription_id": s.ID.String()}
	body := "Your subscription was renewed."
	if o, ok := ord.(*order.Order); ok {
		data["order_id"] = o.ID.String()
		body = fmt.Sprintf("Your subscription was renewed for %s.", o.Total)
	}
	return e.send(ctx, &Notification{
		UserID: s.UserID,
		Kind:   KindRenewalReceipt,
		Title:  "Subscription renewed",
		Body:   body,
		Data:   data,
	})
}

// OnRenewalFailed implements plugin.OnRenewalFailed.
func (e *Extension) OnRenewalFailed(ctx context.Context, sub interface{}, reason string) error {
	s, ok := sub.(*subscription.Subscription)
	if !ok {
		return nil
	}
	return e.send(ctx, &Notification{
		UserID: s.UserID,
		Kind:   KindRenewalPastDue,
		Title:  "Renewal needs attention",
		Body:   "We could not renew your subscription. Top up your credits to keep your service.",
		Data: map[string]any{
			"subscription_id": s.ID.String(),
			"reason":          reason,
		},
	})
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, sub interface{}) error {
	s, ok := sub.(*subscription.Subscription)
	if !ok {
		return nil
	}
	return e.send(ctx, &Notification{
		UserID: s.UserID,
		Kind:   KindSubscriptionOver,
		Title:  "Subscription cancelled",
		Body:   "Your subscription has been cancelled.",
		Data:   map[string]any{"subscription_id": s.ID.String()},
	})
}

// send delivers best effort; a transport failure is logged, never
// propagated into the commerce path.
func (e *Extension) send(ctx context.Context, n *Notification) error {
	if err := e.sender.Send(ctx, n); err != nil {
		e.logger.Warn("notify: delivery failed",
			"kind", string(n.Kind),
			"user_id", n.UserID,
			"error", err,
		)
	}
	return nil
}
