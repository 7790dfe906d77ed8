package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star-achiever/star/internal/catalog"
	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/syncproto"
)

// DefaultTheme is reported for families that never chose one.
const DefaultTheme = "lemon"

// dateLayout is the stored form of Transaction.Date.
const dateLayout = "2006-01-02T15:04:05.000Z"

func formatDate(t time.Time) string { return t.UTC().Format(dateLayout) }

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ─── Families ───────────────────────────────────────────────────────────────

// FamilyExists reports whether a settings row exists for id.
func (db *DB) FamilyExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings WHERE family_id = ?`, id).Scan(&n)
	return n > 0, err
}

// CreateFamily registers id seeded with the catalog's starter tasks and
// rewards. It fails with ErrFamilyExists if id is taken.
func (db *DB) CreateFamily(ctx context.Context, id, userName string, cat *catalog.Catalog) error {
	if id == "" {
		return domain.ErrMissingFamilyID
	}
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := db.clk.Now().UnixMilli()
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO settings (family_id, user_name, theme_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, userName, DefaultTheme, now, now)
	if err != nil {
		return fmt.Errorf("create family: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrFamilyExists, id)
	}
	if err := replaceTasks(ctx, tx, id, cat.Tasks); err != nil {
		return err
	}
	if err := replaceRewards(ctx, tx, id, cat.Rewards); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	db.log.Info("family created", "family", id)
	return nil
}

// Counts returns the number of families and ledger records held.
func (db *DB) Counts(ctx context.Context) (families, transactions int64, err error) {
	err = db.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM settings), (SELECT COUNT(*) FROM transactions)
	`).Scan(&families, &transactions)
	return
}

// ─── Load ───────────────────────────────────────────────────────────────────

// Load returns the parts of a family the query's scope selects. Profile
// scalars are always included. A family without a settings row is
// ErrFamilyNotFound.
func (db *DB) Load(ctx context.Context, familyID string, q syncproto.LoadQuery) (*syncproto.Snapshot, error) {
	if familyID == "" {
		return nil, domain.ErrMissingFamilyID
	}
	scope := q.Scope
	if scope == "" {
		scope = syncproto.ScopeAll
	}

	var (
		userName, themeKey, achievements string
		balance, lifetime                int64
		avatar                           sql.NullString
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT user_name, theme_key, balance, lifetime_earned, achievements_data, avatar_data
		FROM settings WHERE family_id = ?
	`, familyID).Scan(&userName, &themeKey, &balance, &lifetime, &achievements, &avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrFamilyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if themeKey == "" {
		themeKey = DefaultTheme
	}

	snap := &syncproto.Snapshot{
		FamilyID:             familyID,
		UserName:             &userName,
		ThemeKey:             &themeKey,
		Balance:              &balance,
		LifetimeEarnings:     &lifetime,
		UnlockedAchievements: []string{},
	}
	if err := json.Unmarshal([]byte(achievements), &snap.UnlockedAchievements); err != nil {
		db.log.Warn("malformed achievements blob", "family", familyID, "error", err)
		snap.UnlockedAchievements = []string{}
	}

	if scope.Includes(syncproto.PartAvatar) && avatar.Valid && avatar.String != "" {
		var a domain.AvatarState
		if err := json.Unmarshal([]byte(avatar.String), &a); err != nil {
			db.log.Warn("malformed avatar blob", "family", familyID, "error", err)
		} else {
			snap.Avatar = &a
		}
	}
	if scope.Includes(syncproto.PartTasks) {
		if snap.Tasks, err = loadTasks(ctx, db.db, familyID); err != nil {
			return nil, err
		}
	}
	if scope.Includes(syncproto.PartRewards) {
		if snap.Rewards, err = loadRewards(ctx, db.db, familyID); err != nil {
			return nil, err
		}
	}
	if scope.Includes(syncproto.PartWishlist) {
		if snap.Wishlist, err = loadWishlist(ctx, db.db, familyID); err != nil {
			return nil, err
		}
	}
	if scope.Includes(syncproto.PartLogs) {
		if snap.Logs, err = loadLogs(ctx, db.db, familyID, q.Date); err != nil {
			return nil, err
		}
	}
	if scope.Includes(syncproto.PartTransactions) {
		if snap.Transactions, err = loadTransactions(ctx, db.db, db.log, familyID, q); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func loadTasks(ctx context.Context, q queryer, familyID string) ([]domain.Task, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, title, category, stars, icon FROM tasks
		WHERE family_id = ? ORDER BY position
	`, familyID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Category, &t.Stars, &t.Icon); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func loadRewards(ctx context.Context, q queryer, familyID string) ([]domain.Reward, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, title, cost, icon FROM rewards
		WHERE family_id = ? ORDER BY position
	`, familyID)
	if err != nil {
		return nil, fmt.Errorf("load rewards: %w", err)
	}
	defer rows.Close()

	out := []domain.Reward{}
	for rows.Next() {
		var r domain.Reward
		if err := rows.Scan(&r.ID, &r.Title, &r.Cost, &r.Icon); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func loadWishlist(ctx context.Context, q queryer, familyID string) ([]domain.WishlistGoal, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, title, target_cost, current_saved, icon FROM wishlist_goals
		WHERE family_id = ? ORDER BY position
	`, familyID)
	if err != nil {
		return nil, fmt.Errorf("load wishlist: %w", err)
	}
	defer rows.Close()

	out := []domain.WishlistGoal{}
	for rows.Next() {
		var g domain.WishlistGoal
		if err := rows.Scan(&g.ID, &g.Title, &g.TargetCost, &g.CurrentSaved, &g.Icon); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func loadLogs(ctx context.Context, q queryer, familyID, date string) (domain.DailyLogs, error) {
	query := `SELECT date_key, task_id FROM task_logs WHERE family_id = ?`
	args := []any{familyID}
	if date != "" {
		query += ` AND date_key = ?`
		args = append(args, date)
	}
	query += ` ORDER BY date_key, created_at, rowid`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}
	defer rows.Close()

	out := domain.DailyLogs{}
	for rows.Next() {
		var day, taskID string
		if err := rows.Scan(&day, &taskID); err != nil {
			return nil, err
		}
		out[day] = append(out[day], taskID)
	}
	return out, rows.Err()
}

const txColumns = `id, date, date_key, description, amount, type, kind, task_id, goal_id, is_revoked, created_at`

func loadTransactions(ctx context.Context, q queryer, log *slog.Logger, familyID string, lq syncproto.LoadQuery) ([]domain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE family_id = ?`
	args := []any{familyID}
	switch lq.Filter() {
	case syncproto.FilterRange:
		query += ` AND date >= ? AND date <= ?`
		args = append(args, formatDate(lq.StartDate), formatDate(lq.EndDate))
	case syncproto.FilterDate:
		query += ` AND date_key = ?`
		args = append(args, lq.Date)
	case syncproto.FilterMonth:
		query += ` AND date_key LIKE ?`
		args = append(args, lq.Month+"-%")
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if lq.Filter() == syncproto.FilterRecent {
		query += fmt.Sprintf(` LIMIT %d`, syncproto.RecentLimit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	defer rows.Close()

	out := []domain.Transaction{}
	for rows.Next() {
		tx, err := scanTx(rows)
		if errors.Is(err, errBadDate) {
			log.Warn("skipping malformed transaction", "family", familyID, "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// errBadDate marks a stored record whose date cannot be parsed.
var errBadDate = errors.New("bad transaction date")

type scanner interface{ Scan(dest ...any) error }

func scanTx(s scanner) (domain.Transaction, error) {
	var (
		tx      domain.Transaction
		date    string
		revoked int
	)
	if err := s.Scan(&tx.ID, &date, &tx.DateKey, &tx.Description, &tx.Amount, &tx.Type,
		&tx.Kind, &tx.TaskID, &tx.GoalID, &revoked, &tx.CreatedAt); err != nil {
		return tx, err
	}
	d, err := parseDate(date)
	if err != nil {
		return tx, fmt.Errorf("%w: %s %q: %v", errBadDate, tx.ID, date, err)
	}
	tx.Date = d
	tx.IsRevoked = revoked == 1
	return tx, nil
}
