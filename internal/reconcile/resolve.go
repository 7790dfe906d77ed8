package reconcile

import (
	"time"

	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/ledger"
	"github.com/star-achiever/star/internal/syncproto"
)

// ─── Server-Side Resolution ─────────────────────────────────────────────────
// The authoritative store applies the same single-record rule. The caller
// looks the existing record up inside its write transaction and applies the
// returned delta as a relative update.

// Outcome says what to write for one granular record change.
type Outcome struct {
	Record *domain.Transaction // nil: nothing to write
	Insert bool
	Delta  ledger.Adjustment
}

// ResolveInsert lands an incoming record. If the store already holds a
// record for the same logical action, that record is updated in place
// instead of inserting a second one.
func ResolveInsert(existing *domain.Transaction, incoming domain.Transaction, now time.Time) Outcome {
	if existing == nil {
		incoming.CreatedAt = now.UnixMilli()
		return Outcome{Record: &incoming, Insert: true, Delta: ledger.Delta(nil, &incoming)}
	}
	next := incoming
	next.ID = existing.ID
	next.CreatedAt = existing.CreatedAt
	return Outcome{Record: &next, Delta: ledger.Delta(existing, &next)}
}

// ResolveUpdate applies a revoke/restore instruction to an existing record.
// A missing record is ignored.
func ResolveUpdate(existing *domain.Transaction, upd syncproto.TxUpdate) Outcome {
	if existing == nil {
		return Outcome{}
	}
	next := *existing
	next.IsRevoked = upd.IsRevoked
	if !upd.Date.IsZero() {
		next.Date = upd.Date.UTC()
	}
	if upd.Amount != nil {
		next.Amount = *upd.Amount
	}
	if upd.Description != "" {
		next.Description = upd.Description
	}
	next.Type = ledger.Classify(next.Amount, next.Kind, next.Description)
	return Outcome{Record: &next, Delta: ledger.Delta(existing, &next)}
}
