package syncproto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/star-achiever/star/internal/domain"
)

// ─── Load Envelope ──────────────────────────────────────────────────────────

// Snapshot is a partial view of a family. Nil collections were not part of
// the requested scope and must not overwrite client state; scalar pointers
// are authoritative whenever present.
type Snapshot struct {
	FamilyID             string                `json:"familyId"`
	UserName             *string               `json:"userName,omitempty"`
	ThemeKey             *string               `json:"themeKey,omitempty"`
	Balance              *int64                `json:"balance,omitempty"`
	LifetimeEarnings     *int64                `json:"lifetimeEarnings,omitempty"`
	UnlockedAchievements []string              `json:"unlockedAchievements,omitempty"`
	Avatar               *domain.AvatarState   `json:"avatar,omitempty"`
	Tasks                []domain.Task         `json:"tasks"`
	Rewards              []domain.Reward       `json:"rewards"`
	Wishlist             []domain.WishlistGoal `json:"wishlist"`
	Logs                 domain.DailyLogs      `json:"logs"`
	Transactions         []domain.Transaction  `json:"transactions"`
}

// LoadResponse is the GET body. Data is null when the family does not exist.
type LoadResponse struct {
	Data *Snapshot `json:"data"`
}

// ─── Save Envelope ──────────────────────────────────────────────────────────

// SaveRequest is the POST body.
type SaveRequest struct {
	Scope Scope           `json:"scope"`
	Data  json.RawMessage `json:"data"`
}

// SaveResult carries the authoritative figures after a granular write.
type SaveResult struct {
	Balance          *int64 `json:"balance,omitempty"`
	LifetimeEarnings *int64 `json:"lifetimeEarnings,omitempty"`
}

// SaveResponse is the POST reply.
type SaveResponse struct {
	Success bool        `json:"success"`
	Data    *SaveResult `json:"data,omitempty"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// ─── Payloads ───────────────────────────────────────────────────────────────

// LogAction adds or removes a daily log entry.
type LogAction string

const (
	ActionAdd    LogAction = "add"
	ActionRemove LogAction = "remove"
)

// RecordLog toggles one task on one day.
type RecordLog struct {
	DateKey           string              `json:"dateKey"`
	TaskID            string              `json:"taskId"`
	Action            LogAction           `json:"action"`
	Transaction       *domain.Transaction `json:"transaction,omitempty"`
	UpdateTransaction *TxUpdate           `json:"updateTransaction,omitempty"`

	// RevokeTransactionID is the older way to revoke; ignored when
	// UpdateTransaction is set.
	RevokeTransactionID string `json:"revokeTransactionId,omitempty"`
}

// Update returns the effective update instruction, translating the legacy
// revoke field.
func (p RecordLog) Update() *TxUpdate {
	if p.UpdateTransaction != nil {
		return p.UpdateTransaction
	}
	if p.RevokeTransactionID != "" {
		return &TxUpdate{ID: p.RevokeTransactionID, IsRevoked: true}
	}
	return nil
}

// TxUpdate flips or refreshes an existing record. Without an ID the server
// locates the record by (taskId, dateKey).
type TxUpdate struct {
	ID          string    `json:"id,omitempty"`
	IsRevoked   bool      `json:"isRevoked"`
	Date        time.Time `json:"date,omitzero"`
	Amount      *int64    `json:"amount,omitempty"`
	Description string    `json:"description,omitempty"`
}

// RecordTransaction appends one record.
type RecordTransaction struct {
	Transaction *domain.Transaction `json:"transaction"`
}

// WishlistChange upserts or deletes a goal, optionally with a record.
type WishlistChange struct {
	Goal        *domain.WishlistGoal `json:"goal,omitempty"`
	GoalID      string               `json:"goalId,omitempty"`
	Transaction *domain.Transaction  `json:"transaction,omitempty"`
}

// SettingsData updates profile scalars.
type SettingsData struct {
	UserName *string `json:"userName,omitempty"`
	ThemeKey *string `json:"themeKey,omitempty"`
}

// ActivityData is the bulk activity save. Achievements are always written;
// every other field only when present.
type ActivityData struct {
	Logs                 domain.DailyLogs     `json:"logs,omitempty"`
	Balance              *int64               `json:"balance,omitempty"`
	Transactions         []domain.Transaction `json:"transactions,omitempty"`
	LifetimeEarnings     *int64               `json:"lifetimeEarnings,omitempty"`
	UnlockedAchievements []string             `json:"unlockedAchievements"`
}

// AvatarData is the avatar blob. Balance is a deprecated absolute value
// older clients still send; it is ignored.
type AvatarData struct {
	domain.AvatarState
	Balance *int64 `json:"balance,omitempty"`
}

// DecodePayload decodes and validates the data of a save for scope.
func DecodePayload(scope Scope, raw json.RawMessage) (any, error) {
	if !scope.Writable() {
		return nil, fmt.Errorf("%w: %s is read-only", domain.ErrUnknownScope, scope)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: missing data", domain.ErrBadPayload)
	}

	switch scope {
	case ScopeTasks:
		var tasks []domain.Task
		if err := decode(raw, &tasks); err != nil {
			return nil, err
		}
		for i, t := range tasks {
			if t.ID == "" || !t.Category.Valid() {
				return nil, fmt.Errorf("%w: task %d", domain.ErrBadPayload, i)
			}
			tasks[i] = t.Normalized()
		}
		return tasks, nil

	case ScopeRewards:
		var rewards []domain.Reward
		if err := decode(raw, &rewards); err != nil {
			return nil, err
		}
		return rewards, nil

	case ScopeWishlist:
		var goals []domain.WishlistGoal
		if err := decode(raw, &goals); err != nil {
			return nil, err
		}
		return goals, nil

	case ScopeSettings:
		var s SettingsData
		if err := decode(raw, &s); err != nil {
			return nil, err
		}
		return s, nil

	case ScopeActivity:
		var a ActivityData
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		return a, nil

	case ScopeAvatar:
		var a AvatarData
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		return a, nil

	case ScopeRecordLog:
		var p RecordLog
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		if p.TaskID == "" {
			return nil, fmt.Errorf("%w: record_log needs taskId", domain.ErrBadPayload)
		}
		if _, err := time.Parse(time.DateOnly, p.DateKey); err != nil {
			return nil, fmt.Errorf("%w: record_log dateKey %q", domain.ErrBadPayload, p.DateKey)
		}
		if p.Action != ActionAdd && p.Action != ActionRemove {
			return nil, fmt.Errorf("%w: record_log action %q", domain.ErrBadPayload, p.Action)
		}
		if p.Transaction != nil && p.Transaction.ID == "" {
			return nil, fmt.Errorf("%w: transaction needs id", domain.ErrBadPayload)
		}
		return p, nil

	case ScopeRecordTransaction:
		var p RecordTransaction
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		if p.Transaction == nil || p.Transaction.ID == "" {
			return nil, fmt.Errorf("%w: record_transaction needs a transaction with id", domain.ErrBadPayload)
		}
		return p, nil

	case ScopeWishlistUpdate:
		var p WishlistChange
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		if p.Goal == nil || p.Goal.ID == "" {
			return nil, fmt.Errorf("%w: wishlist_update needs a goal", domain.ErrBadPayload)
		}
		return p, nil

	case ScopeWishlistDelete:
		var p WishlistChange
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		if p.GoalID == "" {
			return nil, fmt.Errorf("%w: wishlist_delete needs goalId", domain.ErrBadPayload)
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownScope, scope)
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadPayload, err)
	}
	return nil
}
