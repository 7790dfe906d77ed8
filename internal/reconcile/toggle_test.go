package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/ledger"
	"github.com/star-achiever/star/internal/syncproto"
	"github.com/star-achiever/star/internal/testutil"
)

var loc = time.FixedZone("CST", 8*3600)

func newBuilder(t *testing.T) (ledger.Builder, *testutil.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock(time.Date(2024, 5, 3, 19, 0, 0, 0, loc))
	n := 0
	return ledger.Builder{
		Clock:    clk,
		Location: loc,
		NewID: func() string {
			n++
			return fmt.Sprintf("tx%d", n)
		},
	}, clk
}

func toggle(b ledger.Builder, st *domain.FamilyState, task domain.Task, day time.Time) Plan {
	p := Toggle(b, Input{Task: task, Day: day, Logs: st.Logs, Ledger: st.Transactions})
	Apply(st, p)
	return p
}

func countFor(st domain.FamilyState, taskID, key string) int {
	n := 0
	for _, tx := range st.Transactions {
		if tx.TaskID == taskID && tx.DateKey == key {
			n++
		}
	}
	return n
}

func TestToggle_CompleteThenUndoBonus(t *testing.T) {
	b, _ := newBuilder(t)
	task := domain.Task{ID: "t15", Title: "主动做家务", Category: domain.CategoryBonus, Stars: 5}
	day := time.Date(2024, 5, 3, 0, 0, 0, 0, loc)
	st := domain.FamilyState{Balance: 10, LifetimeEarnings: 40, Logs: domain.DailyLogs{}}

	p := toggle(b, &st, task, day)
	if !p.Completing || p.Payload.Action != syncproto.ActionAdd || p.Payload.Transaction == nil {
		t.Fatalf("first toggle should insert: %+v", p)
	}
	if st.Balance != 15 || st.LifetimeEarnings != 45 {
		t.Errorf("after complete balance=%d lifetime=%d, want 15/45", st.Balance, st.LifetimeEarnings)
	}
	if !st.Logs.Contains("2024-05-03", "t15") {
		t.Error("log should contain t15")
	}

	p = toggle(b, &st, task, day)
	if p.Completing || p.Payload.Action != syncproto.ActionRemove {
		t.Fatalf("second toggle should undo: %+v", p)
	}
	if p.Payload.UpdateTransaction == nil || p.Payload.UpdateTransaction.ID != "tx1" || !p.Payload.UpdateTransaction.IsRevoked {
		t.Errorf("undo payload = %+v", p.Payload.UpdateTransaction)
	}
	if st.Balance != 10 || st.LifetimeEarnings != 40 {
		t.Errorf("after undo balance=%d lifetime=%d, want 10/40", st.Balance, st.LifetimeEarnings)
	}
	if st.Logs.Contains("2024-05-03", "t15") {
		t.Error("log should no longer contain t15")
	}
	if n := countFor(st, "t15", "2024-05-03"); n != 1 {
		t.Errorf("records for (t15, day) = %d, want 1", n)
	}
}

func TestToggle_SingleRecordAfterManyToggles(t *testing.T) {
	b, clk := newBuilder(t)
	task := domain.Task{ID: "t1", Title: "按时起床", Category: domain.CategoryLife, Stars: 2}
	day := time.Date(2024, 5, 3, 0, 0, 0, 0, loc)
	st := domain.FamilyState{Logs: domain.DailyLogs{}}

	for i := 1; i <= 7; i++ {
		clk.Advance(time.Minute)
		toggle(b, &st, task, day)

		if n := countFor(st, "t1", "2024-05-03"); n != 1 {
			t.Fatalf("after %d toggles records = %d, want 1", i, n)
		}
		completed := i%2 == 1
		if st.Transactions[0].IsRevoked == completed {
			t.Errorf("after %d toggles IsRevoked = %v", i, st.Transactions[0].IsRevoked)
		}
		if st.Logs.Contains("2024-05-03", "t1") != completed {
			t.Errorf("after %d toggles log state wrong", i)
		}
		if st.Balance != ledger.Balance(st.Transactions) {
			t.Errorf("balance %d does not match ledger %d", st.Balance, ledger.Balance(st.Transactions))
		}
	}
}

func TestToggle_RestoreRefreshesRecord(t *testing.T) {
	b, clk := newBuilder(t)
	task := domain.Task{ID: "t1", Title: "按时起床", Category: domain.CategoryLife, Stars: 2}
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, loc)
	st := domain.FamilyState{Logs: domain.DailyLogs{}}

	toggle(b, &st, task, day)
	toggle(b, &st, task, day)

	task.Stars = 3
	clk.Advance(time.Hour)
	p := toggle(b, &st, task, day)

	if p.Payload.UpdateTransaction == nil || p.Payload.Transaction != nil {
		t.Fatalf("restore should update, got %+v", p.Payload)
	}
	if got := *p.Payload.UpdateTransaction.Amount; got != 3 {
		t.Errorf("refreshed amount = %d, want 3", got)
	}
	rec := st.Transactions[0]
	if rec.IsRevoked || rec.Amount != 3 {
		t.Errorf("record = %+v", rec)
	}
	want := time.Date(2024, 5, 1, 20, 0, 0, 0, loc)
	if !rec.Date.Equal(want) {
		t.Errorf("Date = %v, want historical day at current time %v", rec.Date, want)
	}
	if st.Balance != 3 {
		t.Errorf("Balance = %d, want 3", st.Balance)
	}
}

func TestToggle_PenaltyDoesNotTouchLifetime(t *testing.T) {
	b, _ := newBuilder(t)
	task := domain.Task{ID: "t19", Title: "上学迟到", Category: domain.CategoryPenalty, Stars: -5}
	day := time.Date(2024, 5, 3, 0, 0, 0, 0, loc)
	st := domain.FamilyState{Balance: 20, LifetimeEarnings: 20, Logs: domain.DailyLogs{}}

	p := toggle(b, &st, task, day)
	if p.Record.Type != domain.TxPenalty || p.Record.Kind != domain.KindPenalty {
		t.Errorf("record = %+v", p.Record)
	}
	if p.Record.Description != "扣分: 上学迟到" {
		t.Errorf("Description = %q", p.Record.Description)
	}
	if st.Balance != 15 || st.LifetimeEarnings != 20 {
		t.Errorf("balance=%d lifetime=%d, want 15/20", st.Balance, st.LifetimeEarnings)
	}

	toggle(b, &st, task, day)
	if st.Balance != 20 || st.LifetimeEarnings != 20 {
		t.Errorf("after undo balance=%d lifetime=%d, want 20/20", st.Balance, st.LifetimeEarnings)
	}
}

func TestToggle_UndoWithoutLocalRecord(t *testing.T) {
	b, _ := newBuilder(t)
	task := domain.Task{ID: "t2", Title: "叠被子", Category: domain.CategoryLife, Stars: 2}
	day := time.Date(2024, 5, 3, 0, 0, 0, 0, loc)
	st := domain.FamilyState{Balance: 2, LifetimeEarnings: 1, Logs: domain.DailyLogs{"2024-05-03": {"t2"}}}

	p := toggle(b, &st, task, day)

	if p.Record != nil {
		t.Errorf("no local record to flip, got %+v", p.Record)
	}
	upd := p.Payload.UpdateTransaction
	if upd == nil || upd.ID != "" || !upd.IsRevoked {
		t.Errorf("payload should ask server to locate and revoke: %+v", upd)
	}
	if st.Balance != 0 || st.LifetimeEarnings != 0 {
		t.Errorf("balance=%d lifetime=%d, want 0/0 (floored)", st.Balance, st.LifetimeEarnings)
	}
}

func TestLocate_UsesStoredOrDerivedKey(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "legacy", TaskID: "t1", Date: time.Date(2024, 5, 2, 17, 0, 0, 0, time.UTC)}, // 01:00 on the 3rd in CST
		{ID: "other", TaskID: "t1", DateKey: "2024-05-02"},
	}
	if i := Locate(txs, "t1", "2024-05-03", loc); i != 0 {
		t.Errorf("Locate = %d, want 0", i)
	}
	if i := Locate(txs, "t9", "2024-05-03", loc); i != -1 {
		t.Errorf("Locate = %d, want -1", i)
	}
}

func TestDescription(t *testing.T) {
	task := domain.Task{Title: "按时起床", Category: domain.CategoryLife}
	if got := Description(task, false); got != "撤销: 按时起床" {
		t.Errorf("undo description = %q", got)
	}
	if got := Description(task, true); got != "完成: 按时起床" {
		t.Errorf("complete description = %q", got)
	}
}

// ─── Resolve ────────────────────────────────────────────────────────────────

func TestResolveInsert_LocatesExisting(t *testing.T) {
	now := time.UnixMilli(5000)
	existing := &domain.Transaction{ID: "server", Amount: 2, IsRevoked: true, CreatedAt: 1000}
	incoming := domain.Transaction{ID: "client", Amount: 2}

	out := ResolveInsert(existing, incoming, now)
	if out.Insert || out.Record.ID != "server" || out.Record.CreatedAt != 1000 {
		t.Errorf("should update existing in place: %+v", out.Record)
	}
	if out.Delta != (ledger.Adjustment{Balance: 2, Lifetime: 2}) {
		t.Errorf("Delta = %+v", out.Delta)
	}

	out = ResolveInsert(nil, incoming, now)
	if !out.Insert || out.Record.CreatedAt != 5000 {
		t.Errorf("fresh insert = %+v", out)
	}
}

func TestResolveUpdate(t *testing.T) {
	existing := &domain.Transaction{ID: "a", Amount: 5, Kind: domain.KindTask}

	out := ResolveUpdate(existing, syncproto.TxUpdate{ID: "a", IsRevoked: true})
	if out.Delta != (ledger.Adjustment{Balance: -5, Lifetime: -5}) {
		t.Errorf("revoke Delta = %+v", out.Delta)
	}

	// Revoking twice is a no-op.
	out = ResolveUpdate(out.Record, syncproto.TxUpdate{ID: "a", IsRevoked: true})
	if !out.Delta.IsZero() {
		t.Errorf("second revoke Delta = %+v", out.Delta)
	}

	if out := ResolveUpdate(nil, syncproto.TxUpdate{}); out.Record != nil {
		t.Error("missing record should be ignored")
	}
}
