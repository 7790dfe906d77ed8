package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/ledger"
	"github.com/star-achiever/star/internal/reconcile"
	"github.com/star-achiever/star/internal/syncproto"
)

// Save applies a decoded payload (see syncproto.DecodePayload) for scope.
// Granular scopes return the authoritative balance and lifetime earnings
// after their relative adjustment; bulk scopes return nil.
func (db *DB) Save(ctx context.Context, familyID string, scope syncproto.Scope, payload any) (*syncproto.SaveResult, error) {
	if familyID == "" {
		return nil, domain.ErrMissingFamilyID
	}
	now := db.clk.Now()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO settings (family_id, created_at, updated_at) VALUES (?, ?, ?)
	`, familyID, now.UnixMilli(), now.UnixMilli()); err != nil {
		return nil, fmt.Errorf("ensure family: %w", err)
	}

	var (
		adj ledger.Adjustment
		res *syncproto.SaveResult
	)
	switch p := payload.(type) {
	case []domain.Task:
		err = replaceTasks(ctx, tx, familyID, p)
	case []domain.Reward:
		err = replaceRewards(ctx, tx, familyID, p)
	case []domain.WishlistGoal:
		err = replaceWishlist(ctx, tx, familyID, p)
	case syncproto.SettingsData:
		err = saveSettings(ctx, tx, familyID, p)
	case syncproto.ActivityData:
		err = saveActivity(ctx, tx, familyID, p, now)
	case syncproto.AvatarData:
		err = saveAvatar(ctx, tx, familyID, p)
	case syncproto.RecordLog:
		adj, err = recordLog(ctx, tx, familyID, p, now)
	case syncproto.RecordTransaction:
		adj, err = landTransaction(ctx, tx, familyID, *p.Transaction, false, now)
	case syncproto.WishlistChange:
		adj, err = changeWishlist(ctx, tx, familyID, scope, p, now)
	default:
		err = fmt.Errorf("%w: unexpected %T for %s", domain.ErrBadPayload, payload, scope)
	}
	if err != nil {
		return nil, err
	}

	if scope.Granular() {
		if res, err = applyAdjustment(ctx, tx, familyID, adj, now); err != nil {
			return nil, err
		}
	} else if err := touch(ctx, tx, familyID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s: %w", scope, err)
	}
	db.log.Debug("saved", "family", familyID, "scope", scope, "balance_delta", adj.Balance)
	return res, nil
}

func touch(ctx context.Context, tx *sql.Tx, familyID string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE settings SET updated_at = ? WHERE family_id = ?`, now.UnixMilli(), familyID)
	return err
}

// applyAdjustment adds adj to the stored totals and reads them back.
// Lifetime earnings never drop below zero.
func applyAdjustment(ctx context.Context, tx *sql.Tx, familyID string, adj ledger.Adjustment, now time.Time) (*syncproto.SaveResult, error) {
	if _, err := tx.ExecContext(ctx, `
		UPDATE settings SET
			balance         = balance + ?,
			lifetime_earned = MAX(0, lifetime_earned + ?),
			updated_at      = ?
		WHERE family_id = ?
	`, adj.Balance, adj.Lifetime, now.UnixMilli(), familyID); err != nil {
		return nil, fmt.Errorf("adjust balance: %w", err)
	}
	var balance, lifetime int64
	if err := tx.QueryRowContext(ctx, `
		SELECT balance, lifetime_earned FROM settings WHERE family_id = ?
	`, familyID).Scan(&balance, &lifetime); err != nil {
		return nil, err
	}
	return &syncproto.SaveResult{Balance: &balance, LifetimeEarnings: &lifetime}, nil
}

// ─── Bulk Scopes ────────────────────────────────────────────────────────────

func replaceTasks(ctx context.Context, q queryer, familyID string, tasks []domain.Task) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM tasks WHERE family_id = ?`, familyID); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	for i, t := range tasks {
		t = t.Normalized()
		if _, err := q.ExecContext(ctx, `
			INSERT OR REPLACE INTO tasks (family_id, id, title, category, stars, icon, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, familyID, t.ID, t.Title, string(t.Category), t.Stars, t.Icon, i); err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}
	return nil
}

func replaceRewards(ctx context.Context, q queryer, familyID string, rewards []domain.Reward) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM rewards WHERE family_id = ?`, familyID); err != nil {
		return fmt.Errorf("clear rewards: %w", err)
	}
	for i, r := range rewards {
		if _, err := q.ExecContext(ctx, `
			INSERT OR REPLACE INTO rewards (family_id, id, title, cost, icon, position)
			VALUES (?, ?, ?, ?, ?, ?)
		`, familyID, r.ID, r.Title, r.Cost, r.Icon, i); err != nil {
			return fmt.Errorf("insert reward %s: %w", r.ID, err)
		}
	}
	return nil
}

func replaceWishlist(ctx context.Context, q queryer, familyID string, goals []domain.WishlistGoal) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM wishlist_goals WHERE family_id = ?`, familyID); err != nil {
		return fmt.Errorf("clear wishlist: %w", err)
	}
	for i, g := range goals {
		if _, err := q.ExecContext(ctx, `
			INSERT OR REPLACE INTO wishlist_goals (family_id, id, title, target_cost, current_saved, icon, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, familyID, g.ID, g.Title, g.TargetCost, g.CurrentSaved, g.Icon, i); err != nil {
			return fmt.Errorf("insert goal %s: %w", g.ID, err)
		}
	}
	return nil
}

// saveSettings writes only the fields present in p.
func saveSettings(ctx context.Context, tx *sql.Tx, familyID string, p syncproto.SettingsData) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE settings SET
			user_name = COALESCE(?, user_name),
			theme_key = COALESCE(?, theme_key)
		WHERE family_id = ?
	`, deref(p.UserName), deref(p.ThemeKey), familyID)
	return err
}

// saveActivity writes achievements when present, and replaces logs,
// transactions and the totals only when each is present.
func saveActivity(ctx context.Context, tx *sql.Tx, familyID string, p syncproto.ActivityData, now time.Time) error {
	if p.UnlockedAchievements != nil {
		blob, err := json.Marshal(p.UnlockedAchievements)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE settings SET achievements_data = ? WHERE family_id = ?
		`, string(blob), familyID); err != nil {
			return fmt.Errorf("save achievements: %w", err)
		}
	}

	if p.Logs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_logs WHERE family_id = ?`, familyID); err != nil {
			return fmt.Errorf("clear logs: %w", err)
		}
		for day, ids := range p.Logs {
			for _, id := range ids {
				if err := addLog(ctx, tx, familyID, day, id, now); err != nil {
					return err
				}
			}
		}
	}

	if p.Transactions != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE family_id = ?`, familyID); err != nil {
			return fmt.Errorf("clear transactions: %w", err)
		}
		// Newest first on the wire.
		for i, t := range p.Transactions {
			if t.CreatedAt == 0 {
				t.CreatedAt = now.UnixMilli() - int64(i)
			}
			t.Type = ledger.Classify(t.Amount, t.Kind, t.Description)
			if err := insertTx(ctx, tx, familyID, t); err != nil {
				return err
			}
		}
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE settings SET
			balance         = COALESCE(?, balance),
			lifetime_earned = COALESCE(?, lifetime_earned)
		WHERE family_id = ?
	`, deref(p.Balance), deref(p.LifetimeEarnings), familyID)
	return err
}

// saveAvatar stores the avatar blob. A balance sent alongside is ignored.
func saveAvatar(ctx context.Context, tx *sql.Tx, familyID string, p syncproto.AvatarData) error {
	blob, err := json.Marshal(p.AvatarState)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE settings SET avatar_data = ? WHERE family_id = ?`, string(blob), familyID)
	return err
}

// ─── Granular Scopes ────────────────────────────────────────────────────────

// recordLog lands one toggle: the new or flipped record and the log entry.
func recordLog(ctx context.Context, tx *sql.Tx, familyID string, p syncproto.RecordLog, now time.Time) (ledger.Adjustment, error) {
	var adj ledger.Adjustment

	if p.Transaction != nil {
		in := *p.Transaction
		if in.TaskID == "" {
			in.TaskID = p.TaskID
		}
		if in.DateKey == "" {
			in.DateKey = p.DateKey
		}
		d, err := landTransaction(ctx, tx, familyID, in, true, now)
		if err != nil {
			return adj, err
		}
		adj = adj.Add(d)
	}

	if upd := p.Update(); upd != nil {
		var (
			existing *domain.Transaction
			err      error
		)
		if upd.ID != "" {
			existing, err = findTx(ctx, tx, familyID, upd.ID)
		}
		// The client's ID is unknown here when its completion was folded
		// onto another device's record for the same day.
		if err == nil && existing == nil && p.TaskID != "" {
			existing, err = findTaskTx(ctx, tx, familyID, p.TaskID, p.DateKey)
		}
		if err != nil {
			return adj, err
		}
		out := reconcile.ResolveUpdate(existing, *upd)
		if err := writeOutcome(ctx, tx, familyID, out); err != nil {
			return adj, err
		}
		adj = adj.Add(out.Delta)
	}

	switch p.Action {
	case syncproto.ActionAdd:
		if err := addLog(ctx, tx, familyID, p.DateKey, p.TaskID, now); err != nil {
			return adj, err
		}
	case syncproto.ActionRemove:
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM task_logs WHERE family_id = ? AND date_key = ? AND task_id = ?
		`, familyID, p.DateKey, p.TaskID); err != nil {
			return adj, fmt.Errorf("remove log: %w", err)
		}
	}
	return adj, nil
}

// landTransaction inserts in, or updates the record it duplicates. With
// byTask set, a record for the same (taskId, dateKey) counts as a duplicate.
func landTransaction(ctx context.Context, tx *sql.Tx, familyID string, in domain.Transaction, byTask bool, now time.Time) (ledger.Adjustment, error) {
	in.Type = ledger.Classify(in.Amount, in.Kind, in.Description)

	existing, err := findTx(ctx, tx, familyID, in.ID)
	if err != nil {
		return ledger.Adjustment{}, err
	}
	if existing == nil && byTask && in.TaskID != "" {
		if existing, err = findTaskTx(ctx, tx, familyID, in.TaskID, in.DateKey); err != nil {
			return ledger.Adjustment{}, err
		}
	}
	out := reconcile.ResolveInsert(existing, in, now)
	if err := writeOutcome(ctx, tx, familyID, out); err != nil {
		return ledger.Adjustment{}, err
	}
	return out.Delta, nil
}

// changeWishlist upserts or deletes a goal with an optional record.
func changeWishlist(ctx context.Context, tx *sql.Tx, familyID string, scope syncproto.Scope, p syncproto.WishlistChange, now time.Time) (ledger.Adjustment, error) {
	var adj ledger.Adjustment
	if p.Transaction != nil {
		in := *p.Transaction
		if in.ID == "" {
			return adj, fmt.Errorf("%w: transaction needs id", domain.ErrBadPayload)
		}
		d, err := landTransaction(ctx, tx, familyID, in, false, now)
		if err != nil {
			return adj, err
		}
		adj = d
	}

	switch scope {
	case syncproto.ScopeWishlistUpdate:
		g := p.Goal
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wishlist_goals (family_id, id, title, target_cost, current_saved, icon, position)
			VALUES (?, ?, ?, ?, ?, ?,
				(SELECT COALESCE(MAX(position) + 1, 0) FROM wishlist_goals WHERE family_id = ?))
			ON CONFLICT(family_id, id) DO UPDATE SET
				title         = excluded.title,
				target_cost   = excluded.target_cost,
				current_saved = excluded.current_saved,
				icon          = excluded.icon
		`, familyID, g.ID, g.Title, g.TargetCost, g.CurrentSaved, g.Icon, familyID); err != nil {
			return adj, fmt.Errorf("upsert goal: %w", err)
		}
	case syncproto.ScopeWishlistDelete:
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM wishlist_goals WHERE family_id = ? AND id = ?
		`, familyID, p.GoalID); err != nil {
			return adj, fmt.Errorf("delete goal: %w", err)
		}
	default:
		return adj, fmt.Errorf("%w: wishlist change under %s", domain.ErrBadPayload, scope)
	}
	return adj, nil
}

// ─── Record Helpers ─────────────────────────────────────────────────────────

func findTx(ctx context.Context, tx *sql.Tx, familyID, id string) (*domain.Transaction, error) {
	if id == "" {
		return nil, nil
	}
	row := tx.QueryRowContext(ctx, `
		SELECT `+txColumns+` FROM transactions WHERE family_id = ? AND id = ?
	`, familyID, id)
	return scanOptional(row)
}

// findTaskTx returns the most recently written record for a task on a day.
func findTaskTx(ctx context.Context, tx *sql.Tx, familyID, taskID, dateKey string) (*domain.Transaction, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE family_id = ? AND task_id = ? AND date_key = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, familyID, taskID, dateKey)
	return scanOptional(row)
}

func scanOptional(row *sql.Row) (*domain.Transaction, error) {
	t, err := scanTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func writeOutcome(ctx context.Context, tx *sql.Tx, familyID string, out reconcile.Outcome) error {
	if out.Record == nil {
		return nil
	}
	if out.Insert {
		return insertTx(ctx, tx, familyID, *out.Record)
	}
	r := out.Record
	_, err := tx.ExecContext(ctx, `
		UPDATE transactions SET
			date = ?, date_key = ?, description = ?, amount = ?, type = ?,
			kind = ?, task_id = ?, goal_id = ?, is_revoked = ?
		WHERE family_id = ? AND id = ?
	`, formatDate(r.Date), r.DateKey, r.Description, r.Amount, string(r.Type),
		string(r.Kind), r.TaskID, r.GoalID, boolInt(r.IsRevoked), familyID, r.ID)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", r.ID, err)
	}
	return nil
}

func insertTx(ctx context.Context, q queryer, familyID string, t domain.Transaction) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO transactions (family_id, `+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, familyID, t.ID, formatDate(t.Date), t.DateKey, t.Description, t.Amount, string(t.Type),
		string(t.Kind), t.TaskID, t.GoalID, boolInt(t.IsRevoked), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", t.ID, err)
	}
	return nil
}

func addLog(ctx context.Context, q queryer, familyID, day, taskID string, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO task_logs (family_id, date_key, task_id, created_at) VALUES (?, ?, ?, ?)
	`, familyID, day, taskID, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("add log: %w", err)
	}
	return nil
}

// deref turns an absent field into SQL NULL.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
