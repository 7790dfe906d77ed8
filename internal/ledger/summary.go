package ledger

import (
	"time"

	"github.com/star-achiever/star/internal/domain"
)

// ─── Derivation Table ───────────────────────────────────────────────────────
// Every earned/spent/penalty figure (daily view, calendar, stats) comes from
// Summarize. Do not re-derive buckets elsewhere.

// Summary is the bucketed view of a set of transactions.
type Summary struct {
	Earned  int64 `json:"earned"`
	Spent   int64 `json:"spent"`
	Penalty int64 `json:"penalty"`
}

// Net is earned minus spent and penalties.
func (s Summary) Net() int64 { return s.Earned - s.Spent - s.Penalty }

// Summarize buckets every live transaction. Buckets are floored at zero.
//
//	amount > 0, not undo        earned  += amount
//	amount > 0, undo, shop      spent   -= amount
//	amount > 0, undo, not shop  penalty -= amount
//	amount < 0, undo            earned  -= |amount|
//	amount < 0, not undo, shop  spent   += |amount|
//	amount < 0, otherwise       penalty += |amount|
func Summarize(txs []domain.Transaction) Summary {
	var s Summary
	for _, tx := range txs {
		if tx.IsRevoked || tx.Amount == 0 {
			continue
		}
		f := FlagsOf(tx)
		abs := tx.Amount
		if abs < 0 {
			abs = -abs
		}
		switch {
		case tx.Amount > 0 && !f.Undo:
			s.Earned += abs
		case tx.Amount > 0 && f.Shop:
			s.Spent -= abs
		case tx.Amount > 0:
			s.Penalty -= abs
		case f.Undo:
			s.Earned -= abs
		case f.Shop:
			s.Spent += abs
		default:
			s.Penalty += abs
		}
	}
	s.Earned = max(s.Earned, 0)
	s.Spent = max(s.Spent, 0)
	s.Penalty = max(s.Penalty, 0)
	return s
}

// ─── Windows ────────────────────────────────────────────────────────────────

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// DayWindow is the calendar day containing t.
func DayWindow(t time.Time, loc *time.Location) Window {
	start := startOfDay(t, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// WeekWindow is the Monday-to-Sunday week containing t.
func WeekWindow(t time.Time, loc *time.Location) Window {
	start := startOfDay(t, loc)
	offset := (int(start.Weekday()) + 6) % 7
	start = start.AddDate(0, 0, -offset)
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

// MonthWindow is the calendar month containing t.
func MonthWindow(t time.Time, loc *time.Location) Window {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// CustomWindow spans whole days from the first through the last.
func CustomWindow(first, last time.Time, loc *time.Location) Window {
	if last.Before(first) {
		first, last = last, first
	}
	return Window{Start: startOfDay(first, loc), End: startOfDay(last, loc).AddDate(0, 0, 1)}
}

// SummarizeWindow applies Summarize to the transactions dated inside w.
func SummarizeWindow(txs []domain.Transaction, w Window) Summary {
	in := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if w.Contains(tx.Date) {
			in = append(in, tx)
		}
	}
	return Summarize(in)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
