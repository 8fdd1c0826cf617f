// Package credit defines the append-only credit ledger.
//
// A user's balance is always the sum of their entry log; no stored
// balance field exists to drift from it. Entries are never updated or
// deleted; corrections append compensating entries.
package credit

import (
	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/types"
)

// Kind classifies a ledger entry.
type Kind string

const (
	// KindDeposit is a verified top-up delivered by the payment
	// gateway integration outside this engine.
	KindDeposit Kind = "deposit"
	// KindDebit spends credits on a purchase or renewal.
	KindDebit Kind = "debit"
	// KindRefund is an explicit post-commit compensation.
	KindRefund Kind = "refund"
)

// Entry is one append-only ledger transaction. Amount is signed: debits
// are negative, deposits and refunds positive.
type Entry struct {
	types.Entity
	ID       id.CreditEntryID `json:"id"`
	UserID   string           `json:"user_id"`
	Kind     Kind             `json:"kind"`
	Amount   int64            `json:"amount"` // minor units, signed
	Currency string           `json:"currency"`
	// Reference links the entry to the order it settles or compensates.
	Reference id.OrderID `json:"reference,omitempty"`
	Note      string     `json:"note,omitempty"`
}

// Money returns the entry amount as a Money value.
func (e *Entry) Money() types.Money {
	return types.Minor(e.Currency, e.Amount)
}
