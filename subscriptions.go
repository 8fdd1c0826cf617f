package storefront

import (
	"context"
	"fmt"

	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/subscription"
)

// GetSubscription fetches one subscription.
func (e *Engine) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, subID)
}

// ListSubscriptions enumerates a user's subscriptions.
func (e *Engine) ListSubscriptions(ctx context.Context, userID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	return e.store.ListSubscriptions(ctx, userID, opts)
}

// CancelSubscription ends a subscription immediately. Cancellation is
// terminal and carries no automatic refund; use RefundOrder for an
// explicit compensation.
func (e *Engine) CancelSubscription(ctx context.Context, subID id.SubscriptionID) error {
	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	if err := sub.Transition(subscription.StatusCancelled); err != nil {
		return fmt.Errorf("%w: %v", ErrSubscriptionState, err)
	}
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	e.logger.Info("subscription cancelled",
		"subscription_id", subID.String(),
		"user_id", sub.UserID,
	)
	e.plugins.EmitSubscriptionCanceled(ctx, sub)
	return nil
}

// ExpireLapsed moves subscriptions whose end date has passed out of
// active or past_due into expired. Intended to run on a schedule.
func (e *Engine) ExpireLapsed(ctx context.Context, userID string) (int, error) {
	subs, err := e.store.ListSubscriptions(ctx, userID, subscription.ListOpts{})
	if err != nil {
		return 0, err
	}

	now := e.now()
	expired := 0
	for _, sub := range subs {
		if sub.Status != subscription.StatusActive && sub.Status != subscription.StatusPastDue {
			continue
		}
		if sub.EndDate.After(now) {
			continue
		}
		if err := sub.Transition(subscription.StatusExpired); err != nil {
			return expired, err
		}
		if err := e.store.UpdateSubscription(ctx, sub); err != nil {
			return expired, err
		}
		expired++
		e.logger.Info("subscription expired",
			"subscription_id", sub.ID.String(),
			"end_date", sub.EndDate,
		)
	}
	return expired, nil
}
