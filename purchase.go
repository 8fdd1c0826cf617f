package storefront

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/storefront/credit"
	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/order"
	"github.com/xraph/storefront/pricing"
	"github.com/xraph/storefront/rules"
	"github.com/xraph/storefront/store"
	"github.com/xraph/storefront/subscription"
	"github.com/xraph/storefront/types"
)

// purchaseReader extends the catalog read surface with the checks a
// purchase admission needs. store.Store and store.Tx both satisfy it,
// so the advisory check and the in-transaction re-check share one code
// path.
type purchaseReader interface {
	catalogReader
	CountActiveSubscriptions(ctx context.Context, userID string, productID id.ProductID, category string) (int, error)
}

// PurchaseRequest describes one purchase attempt.
type PurchaseRequest struct {
	UserID     string       `json:"user_id"`
	VariantID  id.VariantID `json:"variant_id"`
	TermMonths int          `json:"term_months"`
	Currency   string       `json:"currency"`

	// IdempotencyKey makes retries safe: a second attempt with the same
	// (user, key) pair returns the already-committed order instead of
	// charging again.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// Metadata is customer-supplied subscription metadata, validated
	// against the product's rule configuration.
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (r *PurchaseRequest) validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if r.VariantID.IsNil() {
		return fmt.Errorf("%w: variant id is required", ErrInvalidInput)
	}
	if r.TermMonths <= 0 {
		return fmt.Errorf("%w: term months must be positive", ErrInvalidInput)
	}
	if r.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidInput)
	}
	return nil
}

// Decision is the advisory outcome of CanPurchase. A denial carries the
// machine-readable reason; an allowance carries the quote the purchase
// would commit at.
type Decision struct {
	Allowed    bool              `json:"allowed"`
	Reason     string            `json:"reason,omitempty"`
	Violations []rules.Violation `json:"violations,omitempty"`
	Resolution *Resolution       `json:"resolution,omitempty"`
	Snapshot   pricing.Snapshot  `json:"snapshot,omitempty"`
}

// PurchaseResult is the committed outcome of Purchase.
type PurchaseResult struct {
	Order        *order.Order               `json:"order"`
	Subscription *subscription.Subscription `json:"subscription"`

	// Replayed is true when the idempotency key matched an earlier
	// committed order and no new charge happened.
	Replayed bool `json:"replayed"`
}

// CanPurchase evaluates every purchase precondition without charging:
// availability, per-product subscription limits, rule admission, and the
// credit balance. The answer is advisory; Purchase re-runs the same
// checks under the ledger lock before committing.
func (e *Engine) CanPurchase(ctx context.Context, req PurchaseRequest) (*Decision, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	res, snap, err := e.checkPurchase(ctx, e.store, req, e.now())
	if err != nil {
		if d, ok := denialDecision(err); ok {
			d.Resolution = res
			d.Snapshot = snap
			return d, nil
		}
		return nil, err
	}

	balance, err := e.store.CreditBalance(ctx, req.UserID, req.Currency)
	if err != nil {
		return nil, err
	}
	if balance < snap.Total.Amount {
		return &Decision{
			Allowed:    false,
			Reason:     ErrInsufficientCredits.Error(),
			Resolution: res,
			Snapshot:   snap,
		}, nil
	}

	return &Decision{Allowed: true, Resolution: res, Snapshot: snap}, nil
}

// Purchase commits a purchase: one debit ledger entry, one paid order
// with its line item and payment record, and one active subscription,
// all in a single transaction under the user's exclusive ledger lock.
// Any failure rolls the whole attempt back.
func (e *Engine) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var result *PurchaseResult
	err := e.store.PurchaseTx(ctx, req.UserID, req.Currency, func(tx store.Tx) error {
		if req.IdempotencyKey != "" {
			prior, err := tx.GetOrderByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
			if err != nil && !IsNotFound(err) {
				return err
			}
			if prior != nil {
				sub, err := tx.GetSubscription(ctx, prior.SubscriptionID)
				if err != nil {
					return err
				}
				result = &PurchaseResult{Order: prior, Subscription: sub, Replayed: true}
				return nil
			}
		}

		res, snap, err := e.checkPurchase(ctx, tx, req, e.now())
		if err != nil {
			return err
		}

		balance, err := tx.Balance(ctx)
		if err != nil {
			return err
		}
		if balance < snap.Total.Amount {
			return fmt.Errorf("%w: have %d, need %d %s",
				ErrInsufficientCredits, balance, snap.Total.Amount, snap.Total.Currency)
		}

		committed, err := e.commitPurchase(ctx, tx, req, res, snap, order.KindPurchase, nil)
		if err != nil {
			return err
		}
		result = committed
		return nil
	})
	if err != nil {
		if IsDenied(err) {
			e.plugins.EmitPurchaseRejected(ctx, req.UserID, err.Error())
		}
		return nil, err
	}

	if result.Replayed {
		e.logger.Info("purchase replayed",
			"user_id", req.UserID,
			"order_id", result.Order.ID.String(),
			"idempotency_key", req.IdempotencyKey,
		)
		return result, nil
	}

	e.logger.Info("purchase committed",
		"user_id", req.UserID,
		"order_id", result.Order.ID.String(),
		"subscription_id", result.Subscription.ID.String(),
		"total", result.Order.Total.String(),
	)
	e.plugins.EmitPurchaseCommitted(ctx, result.Order, result.Subscription)

	return result, nil
}

// checkPurchase runs every admission check except the balance check,
// which differs between the advisory and locked paths.
func (e *Engine) checkPurchase(ctx context.Context, r purchaseReader, req PurchaseRequest, at time.Time) (*Resolution, pricing.Snapshot, error) {
	res, err := e.resolvePricing(ctx, r, req.VariantID, req.TermMonths, req.Currency, at)
	if err != nil {
		return nil, pricing.Snapshot{}, err
	}
	snap, err := res.Snapshot()
	if err != nil {
		return nil, pricing.Snapshot{}, err
	}

	// Denials past this point carry the resolved quote so callers can
	// show the price alongside the rejection.
	limit := res.Product.MaxPerCustomer
	if limit <= 0 {
		limit = 1
	}
	active, err := r.CountActiveSubscriptions(ctx, req.UserID, res.Product.ID, res.Product.Category)
	if err != nil {
		return nil, pricing.Snapshot{}, err
	}
	if active >= limit {
		return res, snap, fmt.Errorf("%w: %d of %d for product %s",
			ErrSubscriptionLimitExceeded, active, limit, res.Product.ID)
	}

	cfg := rules.Normalize(res.Product.Metadata)
	violations, err := e.rules.Admit(ctx, res.Product.Category, cfg, req.Metadata)
	if err != nil {
		return nil, pricing.Snapshot{}, err
	}
	if len(violations) > 0 {
		return res, snap, &SchemaViolationError{Violations: violations}
	}

	return res, snap, nil
}

// commitPurchase writes the debit, the order with its item and payment,
// and the subscription. Every row carries the same commit timestamp.
// An existing subscription (renewal) is extended instead of created.
func (e *Engine) commitPurchase(ctx context.Context, tx store.Tx, req PurchaseRequest, res *Resolution, snap pricing.Snapshot, kind order.Kind, existing *subscription.Subscription) (*PurchaseResult, error) {
	now := e.now()

	orderID := id.NewOrderID()
	sub := existing
	if sub == nil {
		sub = &subscription.Subscription{
			Entity:    types.NewEntityAt(now),
			ID:        id.NewSubscriptionID(),
			UserID:    req.UserID,
			ProductID: res.Product.ID,
			VariantID: res.Variant.ID,
			Category:  res.Product.Category,
			Snapshot:  snap,
			Status:    subscription.StatusActive,
			StartDate: now,
			EndDate:   now.AddDate(0, snap.TermMonths, 0),
			Metadata:  req.Metadata,
		}
	}

	ord := &order.Order{
		Entity:         types.NewEntityAt(now),
		ID:             orderID,
		UserID:         req.UserID,
		Kind:           kind,
		Status:         order.StatusPaid,
		Currency:       req.Currency,
		Total:          snap.Total,
		IdempotencyKey: req.IdempotencyKey,
		SubscriptionID: sub.ID,
		Items: []order.OrderItem{{
			ID:          id.NewOrderItemID(),
			OrderID:     orderID,
			VariantID:   res.Variant.ID,
			Description: fmt.Sprintf("%s / %s (%d mo)", res.Product.Name, res.Variant.Name, snap.TermMonths),
			Snapshot:    snap,
		}},
		Payment: &order.Payment{
			ID:         id.NewPaymentID(),
			OrderID:    orderID,
			Amount:     snap.Total,
			Status:     order.PaymentCaptured,
			Method:     order.MethodCredits,
			CapturedAt: now,
		},
	}

	entry := &credit.Entry{
		Entity:    types.NewEntityAt(now),
		ID:        id.NewCreditEntryID(),
		UserID:    req.UserID,
		Kind:      credit.KindDebit,
		Amount:    -snap.Total.Amount,
		Currency:  req.Currency,
		Reference: orderID,
		Note:      string(kind),
	}

	if err := tx.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.CreateOrder(ctx, ord); err != nil {
		return nil, err
	}
	if existing == nil {
		if err := tx.CreateSubscription(ctx, sub); err != nil {
			return nil, err
		}
	} else {
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return nil, err
		}
	}

	return &PurchaseResult{Order: ord, Subscription: sub}, nil
}

// denialDecision converts an expected denial error into an advisory
// Decision. Infrastructure errors are not denials and pass through.
func denialDecision(err error) (*Decision, bool) {
	var sve *SchemaViolationError
	if errors.As(err, &sve) {
		return &Decision{Allowed: false, Reason: "metadata schema violation", Violations: sve.Violations}, true
	}
	if IsDenied(err) || IsConfiguration(err) {
		return &Decision{Allowed: false, Reason: err.Error()}, true
	}
	return nil, false
}
