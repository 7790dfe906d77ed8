package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/star-achiever/star/internal/catalog"
	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/syncproto"
	"github.com/star-achiever/star/internal/testutil"
)

var testStart = time.Date(2024, 5, 3, 11, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) (*DB, *testutil.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock(testStart)
	db, err := Open(t.TempDir(), WithClock(clk))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, clk
}

// ─── Open ───────────────────────────────────────────────────────────────────

func TestOpen_CreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("database file missing: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.CreateFamily(ctx, "fam", "Mia", catalog.Default()); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	ok, err := db.FamilyExists(ctx, "fam")
	if err != nil || !ok {
		t.Errorf("FamilyExists() = %v, %v after reopen", ok, err)
	}
}

// ─── Families ───────────────────────────────────────────────────────────────

func TestCreateFamily(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	cat := catalog.Default()

	if err := db.CreateFamily(ctx, "fam", "Mia", cat); err != nil {
		t.Fatalf("CreateFamily() error: %v", err)
	}
	err := db.CreateFamily(ctx, "fam", "Other", cat)
	if !errors.Is(err, domain.ErrFamilyExists) {
		t.Errorf("second CreateFamily() = %v, want ErrFamilyExists", err)
	}

	snap, err := db.Load(ctx, "fam", syncproto.LoadQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if *snap.UserName != "Mia" {
		t.Errorf("UserName = %q, want Mia", *snap.UserName)
	}
	if *snap.ThemeKey != DefaultTheme {
		t.Errorf("ThemeKey = %q, want %q", *snap.ThemeKey, DefaultTheme)
	}
	if len(snap.Tasks) != len(cat.Tasks) {
		t.Errorf("tasks = %d, want %d", len(snap.Tasks), len(cat.Tasks))
	}
	if len(snap.Rewards) != len(cat.Rewards) {
		t.Errorf("rewards = %d, want %d", len(snap.Rewards), len(cat.Rewards))
	}
	if *snap.Balance != 0 || *snap.LifetimeEarnings != 0 {
		t.Errorf("totals = %d/%d, want 0/0", *snap.Balance, *snap.LifetimeEarnings)
	}

	families, txs, err := db.Counts(ctx)
	if err != nil || families != 1 || txs != 0 {
		t.Errorf("Counts() = %d, %d, %v", families, txs, err)
	}
}

func TestLoad_NotFound(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := db.Load(context.Background(), "nobody", syncproto.LoadQuery{})
	if !errors.Is(err, domain.ErrFamilyNotFound) {
		t.Errorf("Load() = %v, want ErrFamilyNotFound", err)
	}
}

func TestLoad_MissingFamilyID(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := db.Load(context.Background(), "", syncproto.LoadQuery{})
	if !errors.Is(err, domain.ErrMissingFamilyID) {
		t.Errorf("Load() = %v, want ErrMissingFamilyID", err)
	}
}

// ─── Scopes ─────────────────────────────────────────────────────────────────

func TestLoad_ScopeSelectsParts(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	if err := db.CreateFamily(ctx, "fam", "Mia", catalog.Default()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		scope                                 syncproto.Scope
		tasks, rewards, wishlist, logs, ledger bool
	}{
		{syncproto.ScopeAll, true, true, true, true, true},
		{syncproto.ScopeTasks, true, false, false, false, false},
		{syncproto.ScopeDaily, true, false, false, true, true},
		{syncproto.ScopeStore, false, true, true, false, false},
		{syncproto.ScopeCalendar, false, false, false, false, true},
		{syncproto.ScopeWishlist, false, false, true, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			snap, err := db.Load(ctx, "fam", syncproto.LoadQuery{Scope: tt.scope})
			if err != nil {
				t.Fatal(err)
			}
			if (snap.Tasks != nil) != tt.tasks {
				t.Errorf("tasks present = %v, want %v", snap.Tasks != nil, tt.tasks)
			}
			if (snap.Rewards != nil) != tt.rewards {
				t.Errorf("rewards present = %v, want %v", snap.Rewards != nil, tt.rewards)
			}
			if (snap.Wishlist != nil) != tt.wishlist {
				t.Errorf("wishlist present = %v, want %v", snap.Wishlist != nil, tt.wishlist)
			}
			if (snap.Logs != nil) != tt.logs {
				t.Errorf("logs present = %v, want %v", snap.Logs != nil, tt.logs)
			}
			if (snap.Transactions != nil) != tt.ledger {
				t.Errorf("transactions present = %v, want %v", snap.Transactions != nil, tt.ledger)
			}
			if snap.Balance == nil || snap.UserName == nil {
				t.Error("scalars must always be present")
			}
		})
	}
}

func TestLoad_TransactionFilters(t *testing.T) {
	db, clk := newTestDB(t)
	ctx := context.Background()

	days := []struct{ id, key string }{
		{"a", "2024-04-30"},
		{"b", "2024-05-01"},
		{"c", "2024-05-03"},
	}
	for _, d := range days {
		day, _ := time.Parse(time.DateOnly, d.key)
		tx := domain.Transaction{
			ID: d.id, Date: day.Add(9 * time.Hour), DateKey: d.key,
			Description: "完成: 刷牙", Amount: 2, Kind: domain.KindTask,
		}
		if _, err := db.Save(ctx, "fam", syncproto.ScopeRecordTransaction, syncproto.RecordTransaction{Transaction: &tx}); err != nil {
			t.Fatal(err)
		}
		clk.Advance(time.Second)
	}

	tests := []struct {
		name string
		q    syncproto.LoadQuery
		want []string
	}{
		{"recent newest first", syncproto.LoadQuery{}, []string{"c", "b", "a"}},
		{"date", syncproto.LoadQuery{Date: "2024-05-01"}, []string{"b"}},
		{"month", syncproto.LoadQuery{Month: "2024-05"}, []string{"c", "b"}},
		{"range", syncproto.LoadQuery{
			StartDate: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2024, 5, 1, 23, 59, 59, 0, time.UTC),
		}, []string{"b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.q.Scope = syncproto.ScopeCalendar
			snap, err := db.Load(ctx, "fam", tt.q)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, tx := range snap.Transactions {
				got = append(got, tx.ID)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestLoad_LogsFilteredByDate(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	logs := domain.DailyLogs{"2024-05-02": {"t1"}, "2024-05-03": {"t1", "t2"}}
	if _, err := db.Save(ctx, "fam", syncproto.ScopeActivity, syncproto.ActivityData{Logs: logs}); err != nil {
		t.Fatal(err)
	}

	snap, err := db.Load(ctx, "fam", syncproto.LoadQuery{Scope: syncproto.ScopeDaily, Date: "2024-05-03"})
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Logs) != 1 || len(snap.Logs["2024-05-03"]) != 2 {
		t.Errorf("logs = %v, want only 2024-05-03 with two tasks", snap.Logs)
	}
}

func TestLoad_MalformedBlobsSkipped(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	if err := db.CreateFamily(ctx, "fam", "Mia", catalog.Default()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.db.Exec(`UPDATE settings SET avatar_data = '{oops', achievements_data = 'nope' WHERE family_id = 'fam'`); err != nil {
		t.Fatal(err)
	}

	snap, err := db.Load(ctx, "fam", syncproto.LoadQuery{})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if snap.Avatar != nil {
		t.Error("malformed avatar should be dropped")
	}
	if len(snap.UnlockedAchievements) != 0 {
		t.Errorf("achievements = %v, want empty", snap.UnlockedAchievements)
	}
}

func TestLoad_MalformedTransactionSkipped(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"good", "bad"} {
		tx := domain.Transaction{ID: id, Date: testStart, Description: "奖励", Amount: 3, Kind: domain.KindBonus}
		if _, err := db.Save(ctx, "fam", syncproto.ScopeRecordTransaction, syncproto.RecordTransaction{Transaction: &tx}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.db.Exec(`UPDATE transactions SET date = 'someday' WHERE id = 'bad'`); err != nil {
		t.Fatal(err)
	}

	snap, err := db.Load(ctx, "fam", syncproto.LoadQuery{Scope: syncproto.ScopeActivity})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(snap.Transactions) != 1 || snap.Transactions[0].ID != "good" {
		t.Errorf("transactions = %+v, want only the readable record", snap.Transactions)
	}
	if *snap.Balance != 6 {
		t.Errorf("balance = %d, want 6", *snap.Balance)
	}
}
