package domain

import "time"

// ─── Star Ledger Types ──────────────────────────────────────────────────────
// Transactions are the unit of truth for a family's balance. They are never
// deleted, only revoked.

// TxType is the coarse accounting class shown in history views.
type TxType string

const (
	TxEarn    TxType = "EARN"
	TxSpend   TxType = "SPEND"
	TxPenalty TxType = "PENALTY"
)

// TxKind tags what produced a transaction. Older records carry no kind and
// are classified from their description instead.
type TxKind string

const (
	KindTask       TxKind = "task"
	KindPenalty    TxKind = "penalty"
	KindUndo       TxKind = "undo"
	KindRedeem     TxKind = "redeem"
	KindPurchase   TxKind = "purchase"
	KindDeposit    TxKind = "deposit"
	KindRefund     TxKind = "refund"
	KindMysteryBox TxKind = "mystery_box"
	KindBonus      TxKind = "bonus"
)

// Transaction is a single ledger record.
type Transaction struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Type        TxType    `json:"type"`
	Kind        TxKind    `json:"kind,omitempty"`
	TaskID      string    `json:"taskId,omitempty"`
	GoalID      string    `json:"goalId,omitempty"`
	DateKey     string    `json:"dateKey,omitempty"`
	IsRevoked   bool      `json:"isRevoked"`
	CreatedAt   int64     `json:"createdAt,omitempty"` // write sequence, unix ms
}

// Effective is the amount the record currently contributes to the balance.
func (t Transaction) Effective() int64 {
	if t.IsRevoked {
		return 0
	}
	return t.Amount
}
