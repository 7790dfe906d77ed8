// Package reconcile implements single-record-per-task-per-day toggling.
//
// For a given (task, day) at most one transaction exists. Completing a task
// inserts that record or restores it; undoing revokes it. The daily log
// entry follows the record, and every transition moves the balance by
// effective(new) - effective(old).
package reconcile

import (
	"fmt"
	"time"

	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/ledger"
	"github.com/star-achiever/star/internal/syncproto"
)

// Input is everything the planner reads. It is never mutated.
type Input struct {
	Task   domain.Task
	Day    time.Time
	Logs   domain.DailyLogs
	Ledger []domain.Transaction
}

// Plan is the outcome of one toggle.
type Plan struct {
	DateKey    string
	Completing bool

	// Previous is the record before the toggle, nil if none was held locally.
	Previous *domain.Transaction
	// Record is the record after the toggle. Nil when an undo had no local
	// record to flip; the server then locates it by (taskId, dateKey).
	Record *domain.Transaction
	// Index is Record's position in Input.Ledger, or -1 for a new record.
	Index int

	Delta   ledger.Adjustment
	Payload syncproto.RecordLog
}

// Description returns the ledger text for completing or undoing task.
func Description(task domain.Task, completing bool) string {
	switch {
	case !completing:
		return fmt.Sprintf("%s: %s", ledger.MarkerUndo, task.Title)
	case task.IsPenalty():
		return fmt.Sprintf("%s: %s", ledger.MarkerPenalty, task.Title)
	}
	return fmt.Sprintf("%s: %s", ledger.MarkerComplete, task.Title)
}

// Toggle plans a complete or undo of in.Task on in.Day.
func Toggle(b ledger.Builder, in Input) Plan {
	loc := b.Location
	if loc == nil {
		loc = time.Local
	}
	key := ledger.DateKey(in.Day, loc)
	completing := !in.Logs.Contains(key, in.Task.ID)

	plan := Plan{
		DateKey:    key,
		Completing: completing,
		Index:      -1,
		Payload: syncproto.RecordLog{
			DateKey: key,
			TaskID:  in.Task.ID,
			Action:  syncproto.ActionRemove,
		},
	}
	if completing {
		plan.Payload.Action = syncproto.ActionAdd
	}

	if i := Locate(in.Ledger, in.Task.ID, key, loc); i >= 0 {
		prev := in.Ledger[i]
		plan.Previous = &prev
		plan.Index = i
	}

	kind := domain.KindTask
	if in.Task.IsPenalty() {
		kind = domain.KindPenalty
	}

	switch {
	case completing && plan.Previous == nil:
		tx := b.Compute(in.Task.Stars, Description(in.Task, true),
			ledger.OnDay(in.Day), ledger.WithKind(kind), ledger.ForTask(in.Task.ID))
		plan.Record = &tx
		plan.Payload.Transaction = &tx

	case completing:
		next := *plan.Previous
		next.IsRevoked = false
		next.Amount = in.Task.Stars
		next.Kind = kind
		next.Description = Description(in.Task, true)
		next.Type = ledger.Classify(next.Amount, next.Kind, next.Description)
		next.Date = ledger.StampDate(in.Day, b.Now(), loc).UTC()
		next.DateKey = key
		plan.Record = &next
		plan.Payload.UpdateTransaction = &syncproto.TxUpdate{
			ID:          next.ID,
			IsRevoked:   false,
			Date:        next.Date,
			Amount:      &next.Amount,
			Description: next.Description,
		}

	case plan.Previous != nil:
		next := *plan.Previous
		next.IsRevoked = true
		plan.Record = &next
		plan.Payload.UpdateTransaction = &syncproto.TxUpdate{
			ID:        next.ID,
			IsRevoked: true,
			Date:      next.Date,
		}

	default:
		// Logged but the record is not held locally: assume it is live and
		// let the server's authoritative balance correct any drift.
		plan.Payload.UpdateTransaction = &syncproto.TxUpdate{IsRevoked: true}
		live := domain.Transaction{Amount: in.Task.Stars, Kind: kind}
		plan.Delta = ledger.Delta(&live, nil)
		return plan
	}

	plan.Delta = ledger.Delta(plan.Previous, plan.Record)
	return plan
}

// Locate finds the record for (taskID, dateKey), preferring the most
// recently written one. It returns -1 when there is none.
func Locate(txs []domain.Transaction, taskID, dateKey string, loc *time.Location) int {
	best := -1
	for i, tx := range txs {
		if tx.TaskID != taskID || ledger.TxDateKey(tx, loc) != dateKey {
			continue
		}
		if best < 0 || tx.CreatedAt > txs[best].CreatedAt {
			best = i
		}
	}
	return best
}

// Apply performs a plan on local state.
func Apply(st *domain.FamilyState, p Plan) {
	if st.Logs == nil {
		st.Logs = make(domain.DailyLogs)
	}
	if p.Completing {
		st.Logs.Add(p.DateKey, p.Payload.TaskID)
	} else {
		st.Logs.Remove(p.DateKey, p.Payload.TaskID)
	}

	switch {
	case p.Record == nil:
	case p.Index >= 0 && p.Index < len(st.Transactions) && st.Transactions[p.Index].ID == p.Record.ID:
		st.Transactions[p.Index] = *p.Record
	default:
		st.Transactions = append([]domain.Transaction{*p.Record}, st.Transactions...)
	}

	st.Balance += p.Delta.Balance
	st.LifetimeEarnings = ledger.ApplyLifetime(st.LifetimeEarnings, p.Delta.Lifetime)
}
