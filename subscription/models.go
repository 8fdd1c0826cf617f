// Package subscription defines customer subscriptions and their status
// lifecycle.
package subscription

import (
	"fmt"
	"time"

	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/pricing"
	"github.com/xraph/storefront/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the status ends the subscription's life.
// Terminal subscriptions do not count against per-product limits.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// validTransitions enumerates the allowed status moves. Nothing leaves
// cancelled, and a no-op transition is rejected.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCancelled},
	StatusActive:  {StatusPastDue, StatusCancelled, StatusExpired},
	StatusPastDue: {StatusActive, StatusCancelled, StatusExpired},
	StatusExpired: {StatusActive},
}

// ValidateTransition returns an error unless from -> to is an allowed
// status move.
func ValidateTransition(from, to Status) error {
	if from == to {
		return fmt.Errorf("subscription: transition %q -> %q is a no-op", from, to)
	}
	for _, allowed := range validTransitions[from] {
		if to == allowed {
			return nil
		}
	}
	return fmt.Errorf("subscription: invalid transition %q -> %q", from, to)
}

// Subscription is a customer's time-limited hold on a variant. It carries
// its own copy of the pricing snapshot: the renewal price is fixed at the
// moment of original purchase regardless of later catalog changes.
type Subscription struct {
	types.Entity
	ID        id.SubscriptionID `json:"id"`
	UserID    string            `json:"user_id"`
	ProductID id.ProductID      `json:"product_id"`
	VariantID id.VariantID      `json:"variant_id"`
	// Category enables limit matching for legacy subscriptions created
	// before per-product limits existed, which lack a product link.
	Category  string           `json:"category"`
	Snapshot  pricing.Snapshot `json:"snapshot"`
	Status    Status           `json:"status"`
	StartDate time.Time        `json:"start_date"`
	EndDate   time.Time        `json:"end_date"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
}

// Transition validates and applies a status change.
func (s *Subscription) Transition(to Status) error {
	if err := ValidateTransition(s.Status, to); err != nil {
		return err
	}
	s.Status = to
	s.Touch()
	return nil
}
