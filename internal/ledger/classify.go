// Package ledger computes transaction records and derives balance, lifetime
// earnings and earned/spent/penalty summaries from them. It performs no I/O.
package ledger

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/star-achiever/star/internal/domain"
)

// ─── Description Markers ────────────────────────────────────────────────────
// Records written before kinds existed are classified by these substrings.
// Descriptions are NFC-normalised before matching so composed and
// decomposed input compare equal.

const (
	MarkerComplete = "完成"
	MarkerPenalty  = "扣分"
	MarkerUndo     = "撤销"
	MarkerRefund   = "退回"
	MarkerRedeem   = "兑换"
	MarkerPurchase = "购买"
	MarkerDeposit  = "存入"
	MarkerMystery  = "盲盒"
)

var (
	spendMarkers = []string{MarkerRedeem, MarkerPurchase, MarkerDeposit, MarkerMystery}
	shopMarkers  = []string{MarkerRedeem, MarkerPurchase}
	undoMarkers  = []string{MarkerUndo, MarkerRefund}
)

func containsAny(s string, markers []string) bool {
	s = norm.NFC.String(s)
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ClassifyDescription assigns a type from a free-text description: a spend
// marker means SPEND, otherwise the sign decides between EARN and PENALTY.
func ClassifyDescription(amount int64, description string) domain.TxType {
	if containsAny(description, spendMarkers) {
		return domain.TxSpend
	}
	if amount >= 0 {
		return domain.TxEarn
	}
	return domain.TxPenalty
}

// Classify assigns a type, preferring the structured kind.
func Classify(amount int64, kind domain.TxKind, description string) domain.TxType {
	switch kind {
	case "":
		return ClassifyDescription(amount, description)
	case domain.KindRedeem, domain.KindPurchase, domain.KindDeposit, domain.KindMysteryBox:
		return domain.TxSpend
	}
	if amount >= 0 {
		return domain.TxEarn
	}
	return domain.TxPenalty
}

// Flags are the semantic tags the summary table needs.
type Flags struct {
	Undo bool // reverses an earlier record (undo, refund)
	Shop bool // store spending or its reversal
}

// FlagsOf returns the flags for tx, from its kind when present.
func FlagsOf(tx domain.Transaction) Flags {
	switch tx.Kind {
	case "":
		return Flags{
			Undo: containsAny(tx.Description, undoMarkers),
			Shop: containsAny(tx.Description, shopMarkers),
		}
	case domain.KindUndo:
		return Flags{Undo: true}
	case domain.KindRefund:
		return Flags{Undo: true, Shop: true}
	case domain.KindRedeem, domain.KindPurchase, domain.KindDeposit, domain.KindMysteryBox:
		return Flags{Shop: true}
	}
	return Flags{}
}

// IsRedemption reports a live store redemption or avatar purchase.
func IsRedemption(tx domain.Transaction) bool {
	if tx.IsRevoked || tx.Amount >= 0 {
		return false
	}
	if tx.Kind != "" {
		return tx.Kind == domain.KindRedeem || tx.Kind == domain.KindPurchase
	}
	return containsAny(tx.Description, shopMarkers)
}

// IsMysteryBox reports a live mystery box record.
func IsMysteryBox(tx domain.Transaction) bool {
	if tx.IsRevoked {
		return false
	}
	if tx.Kind != "" {
		return tx.Kind == domain.KindMysteryBox
	}
	return containsAny(tx.Description, []string{MarkerMystery})
}

// CountsTowardLifetime reports whether a fresh record adds to lifetime
// earnings: positive, live, and not reversing anything.
func CountsTowardLifetime(tx domain.Transaction) bool {
	return tx.Amount > 0 && !tx.IsRevoked && !FlagsOf(tx).Undo
}
