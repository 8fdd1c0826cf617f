package storefront

import (
	"context"
	"fmt"

	"github.com/xraph/storefront/credit"
	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/order"
	"github.com/xraph/storefront/store"
	"github.com/xraph/storefront/types"
)

// Balance returns a user's credit balance in one currency, always
// computed as the sum of their ledger entries.
func (e *Engine) Balance(ctx context.Context, userID, currency string) (types.Money, error) {
	if userID == "" || currency == "" {
		return types.Money{}, fmt.Errorf("%w: user id and currency are required", ErrInvalidInput)
	}
	amount, err := e.store.CreditBalance(ctx, userID, currency)
	if err != nil {
		return types.Money{}, err
	}
	return types.Minor(currency, amount), nil
}

// Deposit appends a verified top-up to the user's ledger. Payment
// verification happens upstream; this engine only records the outcome.
func (e *Engine) Deposit(ctx context.Context, userID, currency string, amount int64, note string) (*credit.Entry, error) {
	if userID == "" || currency == "" {
		return nil, fmt.Errorf("%w: user id and currency are required", ErrInvalidInput)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidInput)
	}

	entry := &credit.Entry{
		Entity:   types.NewEntity(),
		ID:       id.NewCreditEntryID(),
		UserID:   userID,
		Kind:     credit.KindDeposit,
		Amount:   amount,
		Currency: currency,
		Note:     note,
	}
	if err := e.store.AppendCreditEntry(ctx, entry); err != nil {
		return nil, err
	}

	e.logger.Info("credits deposited",
		"user_id", userID,
		"currency", currency,
		"amount", amount,
	)
	e.plugins.EmitCreditsDeposited(ctx, entry)
	return entry, nil
}

// Statement returns a user's ledger entries, newest first.
func (e *Engine) Statement(ctx context.Context, userID string, opts credit.ListOpts) ([]*credit.Entry, error) {
	return e.store.ListCreditEntries(ctx, userID, opts)
}

// GetOrder fetches one order with its items and payment.
func (e *Engine) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	return e.store.GetOrder(ctx, orderID)
}

// ListOrders enumerates a user's orders.
func (e *Engine) ListOrders(ctx context.Context, userID string, opts order.ListOpts) ([]*order.Order, error) {
	return e.store.ListOrders(ctx, userID, opts)
}

// RefundOrder compensates a paid order: one positive refund entry for
// the full total, and the order flipped to refunded, committed together
// under the user's ledger lock. Refunding twice is rejected. The
// subscription the order paid for is not touched here; cancel it
// separately when the refund should also end service.
func (e *Engine) RefundOrder(ctx context.Context, orderID id.OrderID, note string) (*credit.Entry, error) {
	ord, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.Status == order.StatusRefunded {
		return nil, fmt.Errorf("%w: %s", ErrOrderRefunded, orderID)
	}

	var entry *credit.Entry
	err = e.store.PurchaseTx(ctx, ord.UserID, ord.Currency, func(tx store.Tx) error {
		cur, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if cur.Status == order.StatusRefunded {
			return fmt.Errorf("%w: %s", ErrOrderRefunded, orderID)
		}

		entry = &credit.Entry{
			Entity:    types.NewEntityAt(e.now()),
			ID:        id.NewCreditEntryID(),
			UserID:    cur.UserID,
			Kind:      credit.KindRefund,
			Amount:    cur.Total.Amount,
			Currency:  cur.Currency,
			Reference: orderID,
			Note:      note,
		}
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		return tx.UpdateOrderStatus(ctx, orderID, order.StatusRefunded)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("order refunded",
		"order_id", orderID.String(),
		"user_id", ord.UserID,
		"amount", ord.Total.Amount,
	)
	e.plugins.EmitCreditsRefunded(ctx, entry)
	return entry, nil
}
