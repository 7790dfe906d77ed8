package syncproto

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star-achiever/star/internal/domain"
)

// ─── Scopes ─────────────────────────────────────────────────────────────────

func TestParseScope(t *testing.T) {
	_, err := ParseScope("")
	assert.ErrorIs(t, err, domain.ErrMissingScope)

	_, err = ParseScope("everything")
	assert.ErrorIs(t, err, domain.ErrUnknownScope)

	s, err := ParseScope("record_log")
	require.NoError(t, err)
	assert.True(t, s.Granular())
	assert.False(t, s.Readable())
}

func TestScope_Parts(t *testing.T) {
	tests := []struct {
		scope Scope
		part  Part
		want  bool
	}{
		{ScopeDaily, PartTasks, true},
		{ScopeDaily, PartLogs, true},
		{ScopeDaily, PartTransactions, true},
		{ScopeDaily, PartRewards, false},
		{ScopeStore, PartRewards, true},
		{ScopeStore, PartWishlist, true},
		{ScopeStore, PartTasks, false},
		{ScopeCalendar, PartTransactions, true},
		{ScopeCalendar, PartLogs, false},
		{ScopeWishlist, PartWishlist, true},
		{ScopeActivity, PartLogs, true},
		{ScopeAll, PartAvatar, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.scope.Includes(tt.part), "%s includes %d", tt.scope, tt.part)
	}
	assert.True(t, ScopeTasks.Bulk())
	assert.False(t, ScopeRecordTransaction.Bulk())
}

// ─── Queries ────────────────────────────────────────────────────────────────

func TestParseLoadQuery(t *testing.T) {
	v := url.Values{}
	_, _, err := ParseLoadQuery(v)
	assert.ErrorIs(t, err, domain.ErrMissingFamilyID)

	v.Set("familyId", "fam")
	id, q, err := ParseLoadQuery(v)
	require.NoError(t, err)
	assert.Equal(t, "fam", id)
	assert.Equal(t, ScopeAll, q.Scope)
	assert.Equal(t, FilterRecent, q.Filter())

	v.Set("scope", "calendar")
	v.Set("month", "2024-05")
	_, q, err = ParseLoadQuery(v)
	require.NoError(t, err)
	assert.Equal(t, FilterMonth, q.Filter())

	v.Set("date", "2024-05-02")
	_, q, err = ParseLoadQuery(v)
	require.NoError(t, err)
	assert.Equal(t, FilterDate, q.Filter())

	v.Set("startDate", "2024-05-01T00:00:00.000Z")
	_, q, err = ParseLoadQuery(v)
	require.NoError(t, err)
	assert.Equal(t, FilterDate, q.Filter(), "range needs both ends")

	v.Set("endDate", "2024-05-07T23:59:59.999Z")
	_, q, err = ParseLoadQuery(v)
	require.NoError(t, err)
	assert.Equal(t, FilterRange, q.Filter())

	v.Set("scope", "wishlist_delete")
	_, _, err = ParseLoadQuery(v)
	assert.ErrorIs(t, err, domain.ErrUnknownScope)

	bad := url.Values{"familyId": {"fam"}, "date": {"05/02/2024"}}
	_, _, err = ParseLoadQuery(bad)
	assert.ErrorIs(t, err, domain.ErrBadPayload)
}

func TestLoadQuery_ValuesRoundTrip(t *testing.T) {
	q := LoadQuery{
		Scope:     ScopeActivity,
		StartDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC),
	}
	id, got, err := ParseLoadQuery(q.Values("fam"))
	require.NoError(t, err)
	assert.Equal(t, "fam", id)
	assert.Equal(t, ScopeActivity, got.Scope)
	assert.True(t, got.StartDate.Equal(q.StartDate))
	assert.True(t, got.EndDate.Equal(q.EndDate))
}

// ─── Payloads ───────────────────────────────────────────────────────────────

func TestDecodePayload_RecordLog(t *testing.T) {
	raw := json.RawMessage(`{"dateKey":"2024-05-01","taskId":"t1","action":"remove","revokeTransactionId":"tx9"}`)
	v, err := DecodePayload(ScopeRecordLog, raw)
	require.NoError(t, err)

	p := v.(RecordLog)
	upd := p.Update()
	require.NotNil(t, upd)
	assert.Equal(t, "tx9", upd.ID)
	assert.True(t, upd.IsRevoked)

	_, err = DecodePayload(ScopeRecordLog, json.RawMessage(`{"dateKey":"2024-05-01","taskId":"t1","action":"flip"}`))
	assert.ErrorIs(t, err, domain.ErrBadPayload)

	_, err = DecodePayload(ScopeRecordLog, json.RawMessage(`{"dateKey":"yesterday","taskId":"t1","action":"add"}`))
	assert.ErrorIs(t, err, domain.ErrBadPayload)
}

func TestDecodePayload_Validation(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		raw   string
		want  error
	}{
		{"read-only scope", ScopeCalendar, `{}`, domain.ErrUnknownScope},
		{"null data", ScopeTasks, `null`, domain.ErrBadPayload},
		{"bad category", ScopeTasks, `[{"id":"x","category":"CHORE","stars":1}]`, domain.ErrBadPayload},
		{"transaction without id", ScopeRecordTransaction, `{"transaction":{"amount":5}}`, domain.ErrBadPayload},
		{"wishlist update without goal", ScopeWishlistUpdate, `{}`, domain.ErrBadPayload},
		{"wishlist delete without id", ScopeWishlistDelete, `{"transaction":null}`, domain.ErrBadPayload},
		{"not json", ScopeSettings, `{"userName":`, domain.ErrBadPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload(tt.scope, json.RawMessage(tt.raw))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodePayload_TasksNormalized(t *testing.T) {
	v, err := DecodePayload(ScopeTasks, json.RawMessage(`[{"id":"p","category":"PENALTY","stars":3}]`))
	require.NoError(t, err)
	assert.Equal(t, int64(-3), v.([]domain.Task)[0].Stars)
}

func TestDecodePayload_AvatarIgnoresBalance(t *testing.T) {
	v, err := DecodePayload(ScopeAvatar, json.RawMessage(`{"config":{"skinColor":"#fff"},"ownedItems":["h_flower"],"balance":9999}`))
	require.NoError(t, err)
	a := v.(AvatarData)
	assert.Equal(t, []string{"h_flower"}, a.OwnedItems)
	assert.Equal(t, "#fff", a.Config.SkinColor)
}

// ─── Merge ──────────────────────────────────────────────────────────────────

func TestMerge_PartialScopeDoesNotClobber(t *testing.T) {
	st := domain.FamilyState{
		Tasks:   []domain.Task{{ID: "t1"}},
		Rewards: []domain.Reward{{ID: "r1"}},
		Logs:    domain.DailyLogs{"2024-05-01": {"t1"}},
	}
	var in Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{
		"familyId": "fam",
		"balance": 12,
		"logs": {"2024-05-02": ["t2"]},
		"transactions": [{"id": "a", "amount": 2, "createdAt": 10}]
	}`), &in))

	Merge(&st, &in)

	assert.Equal(t, []domain.Task{{ID: "t1"}}, st.Tasks)
	assert.Equal(t, []domain.Reward{{ID: "r1"}}, st.Rewards)
	assert.True(t, st.Logs.Contains("2024-05-01", "t1"), "other days kept")
	assert.True(t, st.Logs.Contains("2024-05-02", "t2"))
	assert.Equal(t, int64(12), st.Balance)
	assert.Len(t, st.Transactions, 1)
}

func TestMerge_EmptyListReplaces(t *testing.T) {
	st := domain.FamilyState{Wishlist: []domain.WishlistGoal{{ID: "g1"}}}
	var in Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"wishlist": []}`), &in))
	Merge(&st, &in)
	assert.Empty(t, st.Wishlist)
}

func TestMerge_TransactionsDeduplicatedAndOrdered(t *testing.T) {
	st := domain.FamilyState{Transactions: []domain.Transaction{
		{ID: "a", Amount: 2, CreatedAt: 100},
		{ID: "b", Amount: 5, CreatedAt: 200, IsRevoked: false},
	}}
	in := &Snapshot{Transactions: []domain.Transaction{
		{ID: "b", Amount: 5, CreatedAt: 200, IsRevoked: true},
		{ID: "c", Amount: -30, CreatedAt: 150},
	}}

	Merge(&st, in)

	require.Len(t, st.Transactions, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{st.Transactions[0].ID, st.Transactions[1].ID, st.Transactions[2].ID})
	assert.True(t, st.Transactions[0].IsRevoked, "incoming copy wins")
}

func TestMerge_AchievementsMonotonic(t *testing.T) {
	st := domain.FamilyState{UnlockedAchievements: []string{"FIRST_STEP", "STREAK_3"}}
	Merge(&st, &Snapshot{UnlockedAchievements: []string{"STREAK_3", "RICH_KID"}})
	assert.Equal(t, []string{"FIRST_STEP", "STREAK_3", "RICH_KID"}, st.UnlockedAchievements)
}

func TestSortTransactions_FallsBackToDate(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		{ID: "old", Date: day},
		{ID: "new", Date: day.Add(time.Hour)},
	}
	SortTransactions(txs)
	assert.Equal(t, "new", txs[0].ID)
}
