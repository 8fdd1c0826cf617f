package storefront

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/order"
	"github.com/xraph/storefront/pricing"
	"github.com/xraph/storefront/store"
	"github.com/xraph/storefront/subscription"
)

// Renew charges one more term for a subscription at its locked-in price.
// The stored snapshot is the sole price source: catalog price changes
// since the original purchase never affect a renewal. A subscription in
// past_due renews the same way; success returns it to active.
//
// Insufficient credits do not roll the attempt back silently. The
// subscription is moved to past_due (a committed state change), giving
// the user a grace window to top up, and ErrInsufficientCredits is
// returned.
func (e *Engine) Renew(ctx context.Context, subID id.SubscriptionID) (*PurchaseResult, error) {
	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Status != subscription.StatusActive && sub.Status != subscription.StatusPastDue {
		return nil, fmt.Errorf("%w: cannot renew %s subscription %s",
			ErrSubscriptionState, sub.Status, subID)
	}

	// Rebuild the total from the stored components. This re-runs the
	// same arithmetic as the original purchase, so a snapshot corrupted
	// in storage fails here instead of charging a wrong amount.
	snap, err := pricing.Build(sub.Snapshot.BasePrice, sub.Snapshot.TermMonths, sub.Snapshot.DiscountPercent)
	if err != nil {
		return nil, fmt.Errorf("%w: stored snapshot for %s: %v", ErrConfiguration, subID, err)
	}
	currency := snap.Total.Currency

	var (
		result       *PurchaseResult
		insufficient bool
	)
	err = e.store.PurchaseTx(ctx, sub.UserID, currency, func(tx store.Tx) error {
		cur, err := tx.GetSubscription(ctx, subID)
		if err != nil {
			return err
		}
		if cur.Status != subscription.StatusActive && cur.Status != subscription.StatusPastDue {
			return fmt.Errorf("%w: cannot renew %s subscription %s",
				ErrSubscriptionState, cur.Status, subID)
		}

		balance, err := tx.Balance(ctx)
		if err != nil {
			return err
		}
		if balance < snap.Total.Amount {
			// Commit the grace transition, not the charge.
			insufficient = true
			if cur.Status == subscription.StatusActive {
				if err := cur.Transition(subscription.StatusPastDue); err != nil {
					return err
				}
				return tx.UpdateSubscription(ctx, cur)
			}
			return nil
		}

		variant, err := tx.GetVariant(ctx, cur.VariantID)
		if err != nil {
			return err
		}
		product, err := tx.GetProduct(ctx, variant.ProductID)
		if err != nil {
			return err
		}

		extendSubscription(cur, snap.TermMonths, e.now())
		if cur.Status == subscription.StatusPastDue {
			if err := cur.Transition(subscription.StatusActive); err != nil {
				return err
			}
		}

		req := PurchaseRequest{UserID: cur.UserID, VariantID: cur.VariantID, Currency: currency}
		res := &Resolution{
			Product:         product,
			Variant:         variant,
			BasePrice:       snap.BasePrice,
			DiscountPercent: snap.DiscountPercent,
		}
		committed, err := e.commitPurchase(ctx, tx, req, res, snap, order.KindRenewal, cur)
		if err != nil {
			return err
		}
		result = committed
		return nil
	})
	if err != nil {
		if IsDenied(err) || errors.Is(err, ErrSubscriptionState) {
			e.plugins.EmitRenewalFailed(ctx, sub, err.Error())
		}
		return nil, err
	}
	if insufficient {
		e.logger.Warn("renewal deferred on insufficient credits",
			"subscription_id", subID.String(),
			"user_id", sub.UserID,
			"needed", snap.Total.Amount,
		)
		e.plugins.EmitRenewalFailed(ctx, sub, ErrInsufficientCredits.Error())
		return nil, fmt.Errorf("%w: renewal of %s", ErrInsufficientCredits, subID)
	}

	e.logger.Info("renewal committed",
		"subscription_id", subID.String(),
		"order_id", result.Order.ID.String(),
		"new_end_date", result.Subscription.EndDate,
	)
	e.plugins.EmitRenewalSucceeded(ctx, result.Subscription, result.Order)

	return result, nil
}

// extendSubscription pushes the end date out by one term. A lapsed end
// date restarts the clock from now instead of stacking unserved months.
func extendSubscription(s *subscription.Subscription, months int, now time.Time) {
	base := s.EndDate
	if base.Before(now) {
		base = now
	}
	s.EndDate = base.AddDate(0, months, 0)
	s.Touch()
}
