// Package audithook bridges Storefront lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/storefront/catalog"
	"github.com/xraph/storefront/credit"
	"github.com/xraph/storefront/order"
	"github.com/xraph/storefront/plugin"
	"github.com/xraph/storefront/subscription"
	"github.com/xraph/storefront/task"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnProductActivated     = (*Extension)(nil)
	_ plugin.OnProductDeactivated   = (*Extension)(nil)
	_ plugin.OnPriceChanged         = (*Extension)(nil)
	_ plugin.OnHygieneTaskOpened    = (*Extension)(nil)
	_ plugin.OnPurchaseCommitted    = (*Extension)(nil)
	_ plugin.OnPurchaseRejected     = (*Extension)(nil)
	_ plugin.OnRenewalSucceeded     = (*Extension)(nil)
	_ plugin.OnRenewalFailed        = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled = (*Extension)(nil)
	_ plugin.OnCreditsDeposited     = (*Extension)(nil)
	_ plugin.OnCreditsRefunded      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly; callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Storefront lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Catalog lifecycle hooks
// ──────────────────────────────────────────────────

// OnProductActivated implements plugin.OnProductActivated.
func (e *Extension) OnProductActivated(ctx context.Context, product interface{}) error {
	id, name := productDetails(product)
	return e.record(ctx, ActionProductActivated, SeverityInfo, OutcomeSuccess,
		ResourceProduct, id, CategoryCatalog, nil,
		"product_name", name,
	)
}

// OnProductDeactivated implements plugin.OnProductDeactivated.
func (e *Extension) OnProductDeactivated(ctx context.Context, product interface{}) error {
	id, name := productDetails(product)
	return e.record(ctx, ActionProductDeactivated, SeverityWarning, OutcomeSuccess,
		ResourceProduct, id, CategoryCatalog, nil,
		"product_name", name,
	)
}

// OnPriceChanged implements plugin.OnPriceChanged.
func (e *Extension) OnPriceChanged(ctx context.Context, price interface{}) error {
	var resourceID string
	kv := []any{"event", "price_changed"}
	if p, ok := price.(*catalog.Price); ok {
		resourceID = p.ID.String()
		kv = append(kv,
			"variant_id", p.VariantID.String(),
			"currency", p.Currency,
			"amount", p.Amount,
		)
	}
	return e.record(ctx, ActionPriceChanged, SeverityInfo, OutcomeSuccess,
		ResourcePrice, resourceID, CategoryCatalog, nil, kv...)
}

// OnHygieneTaskOpened implements plugin.OnHygieneTaskOpened.
func (e *Extension) OnHygieneTaskOpened(ctx context.Context, tsk interface{}) error {
	var resourceID string
	kv := []any{"event", "hygiene_task_opened"}
	if t, ok := tsk.(*task.Task); ok {
		resourceID = t.ID.String()
		kv = append(kv,
			"task_category", string(t.Category),
			"dedupe_key", t.DedupeKey,
		)
	}
	return e.record(ctx, ActionHygieneTaskOpened, SeverityWarning, OutcomeSuccess,
		ResourceTask, resourceID, CategoryAdmin, nil, kv...)
}

// ──────────────────────────────────────────────────
// Purchase lifecycle hooks
// ──────────────────────────────────────────────────

// OnPurchaseCommitted implements plugin.OnPurchaseCommitted.
func (e *Extension) OnPurchaseCommitted(ctx context.Context, ord, sub interface{}) error {
	var resourceID string
	kv := []any{"event", "purchase_committed"}
	if o, ok := ord.(*order.Order); ok {
		resourceID = o.ID.String()
		kv = append(kv,
			"user_id", o.UserID,
			"currency", o.Currency,
			"total", o.Total.Amount,
		)
	}
	if s, ok := sub.(*subscription.Subscription); ok {
		kv = append(kv, "subscription_id", s.ID.String())
	}
	return e.record(ctx, ActionPurchaseCommitted, SeverityInfo, OutcomeSuccess,
		ResourceOrder, resourceID, CategoryCommerce, nil, kv...)
}

// OnPurchaseRejected implements plugin.OnPurchaseRejected.
func (e *Extension) OnPurchaseRejected(ctx context.Context, userID, reason string) error {
	return e.record(ctx, ActionPurchaseRejected, SeverityWarning, OutcomeFailure,
		ResourceOrder, "", CategoryCommerce, nil,
		"user_id", userID,
		"reject_reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Renewal lifecycle hooks
// ──────────────────────────────────────────────────

// OnRenewalSucceeded implements plugin.OnRenewalSucceeded.
func (e *Extension) OnRenewalSucceeded(ctx context.Context, sub, ord interface{}) error {
	var resourceID string
	kv := []any{"event", "renewal_succeeded"}
	if s, ok := sub.(*subscription.Subscription); ok {
		resourceID = s.ID.String()
		kv = append(kv, "user_id", s.UserID, "end_date", s.EndDate)
	}
	if o, ok := ord.(*order.Order); ok {
		kv = append(kv, "order_id", o.ID.String(), "total", o.Total.Amount)
	}
	return e.record(ctx, ActionRenewalSucceeded, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, resourceID, CategorySubscription, nil, kv...)
}

// OnRenewalFailed implements plugin.OnRenewalFailed.
func (e *Extension) OnRenewalFailed(ctx context.Context, sub interface{}, reason string) error {
	var resourceID string
	kv := []any{"fail_reason", reason}
	if s, ok := sub.(*subscription.Subscription); ok {
		resourceID = s.ID.String()
		kv = append(kv, "user_id", s.UserID)
	}
	return e.record(ctx, ActionRenewalFailed, SeverityWarning, OutcomeFailure,
		ResourceSubscription, resourceID, CategorySubscription, nil, kv...)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, sub interface{}) error {
	var resourceID string
	kv := []any{"event", "subscription_canceled"}
	if s, ok := sub.(*subscription.Subscription); ok {
		resourceID = s.ID.String()
		kv = append(kv, "user_id", s.UserID)
	}
	return e.record(ctx, ActionSubscriptionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, resourceID, CategorySubscription, nil, kv...)
}

// ──────────────────────────────────────────────────
// Credit lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditsDeposited implements plugin.OnCreditsDeposited.
func (e *Extension) OnCreditsDeposited(ctx context.Context, entry interface{}) error {
	resourceID, kv := entryDetails(entry, "credits_deposited")
	return e.record(ctx, ActionCreditsDeposited, SeverityInfo, OutcomeSuccess,
		ResourceCreditEntry, resourceID, CategoryPayment, nil, kv...)
}

// OnCreditsRefunded implements plugin.OnCreditsRefunded.
func (e *Extension) OnCreditsRefunded(ctx context.Context, entry interface{}) error {
	resourceID, kv := entryDetails(entry, "credits_refunded")
	return e.record(ctx, ActionCreditsRefunded, SeverityWarning, OutcomeSuccess,
		ResourceCreditEntry, resourceID, CategoryPayment, nil, kv...)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func productDetails(product interface{}) (resourceID, name string) {
	if p, ok := product.(*catalog.Product); ok {
		return p.ID.String(), p.Name
	}
	return "", ""
}

func entryDetails(entry interface{}, event string) (string, []any) {
	kv := []any{"event", event}
	if e, ok := entry.(*credit.Entry); ok {
		kv = append(kv,
			"user_id", e.UserID,
			"currency", e.Currency,
			"amount", e.Amount,
		)
		return e.ID.String(), kv
	}
	return "", kv
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
