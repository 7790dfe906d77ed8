package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/star-achiever/star/internal/achievement"
	"github.com/star-achiever/star/internal/catalog"
	"github.com/star-achiever/star/internal/clock"
	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/ledger"
	"github.com/star-achiever/star/internal/syncproto"
)

// ─── Sync Status ────────────────────────────────────────────────────────────
//
//	idle ──▶ syncing ──▶ saved ──(saved reset, non-silent)──▶ idle
//	                └──▶ error
//
// Silent background work never shows "syncing"; it only reports failure.

// Status is the visible sync status.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSaved   Status = "saved"
	StatusError   Status = "error"
)

// Config holds store timings and the family identity.
type Config struct {
	FamilyID      string
	Location      *time.Location
	SettleDelay   time.Duration // after a full reload, before auto-saves resume
	SavedReset    time.Duration // saved -> idle for user-initiated work
	BlockDuration time.Duration // input lock after completing a task
	RetryAttempts int           // manual save
	RetryBackoff  time.Duration // manual save, linear step
	Presenter     achievement.PresenterConfig
	Dispatcher    DispatcherConfig
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		Location:      time.Local,
		SettleDelay:   50 * time.Millisecond,
		SavedReset:    2 * time.Second,
		BlockDuration: 2 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  time.Second,
		Presenter:     achievement.DefaultPresenterConfig(),
		Dispatcher:    DefaultDispatcherConfig(),
	}
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option { return func(s *Store) { s.clk = c } }

// WithNotifier sets the presentation sink.
func WithNotifier(n domain.Notifier) Option { return func(s *Store) { s.notify = n } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }

// WithCatalog replaces the built-in catalog.
func WithCatalog(c *catalog.Catalog) Option { return func(s *Store) { s.cat = c } }

// WithIDs replaces the record ID generator.
func WithIDs(f func() string) Option { return func(s *Store) { s.newID = f } }

// Store is the local optimistic state container for one family.
type Store struct {
	mu     sync.Mutex
	cfg    Config
	remote Remote
	clk    clock.Clock
	notify domain.Notifier
	log    *slog.Logger
	cat    *catalog.Catalog
	newID  func() string

	builder   ledger.Builder
	engine    *achievement.Engine
	presenter *achievement.Presenter
	dispatch  *Dispatcher

	state     domain.FamilyState
	status    Status
	statusGen uint64
	ready     bool
	blocked   bool
	settle    clock.Timer
	unblock   clock.Timer
}

// NewStore creates a store. The state starts empty; call Load, JoinFamily
// or StartAdventure to fill it.
func NewStore(remote Remote, cfg Config, opts ...Option) *Store {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &Store{
		cfg:    cfg,
		remote: remote,
		clk:    clock.Real{},
		notify: domain.NopNotifier{},
		log:    slog.Default(),
		status: StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cat == nil {
		s.cat = catalog.Default()
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	s.log = s.log.With("component", "store")
	s.builder = ledger.Builder{Clock: s.clk, Location: cfg.Location, NewID: s.newID}
	s.engine = achievement.NewEngine(s.cat.Achievements)
	s.presenter = achievement.NewPresenter(s.clk, s.notify, cfg.Presenter)
	s.dispatch = NewDispatcher(cfg.Dispatcher, s.log)
	s.state = domain.FamilyState{
		FamilyID: cfg.FamilyID,
		Logs:     domain.DailyLogs{},
	}
	// Without a family there is nothing to load first.
	s.ready = cfg.FamilyID == ""
	return s
}

// ─── Accessors ──────────────────────────────────────────────────────────────

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() domain.FamilyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Status returns the visible sync status.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Ready reports whether auto-saves are allowed.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Blocked reports whether input is temporarily locked.
func (s *Store) Blocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked
}

// FamilyID returns the current family.
func (s *Store) FamilyID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FamilyID
}

// Presenter exposes the celebration queue.
func (s *Store) Presenter() *achievement.Presenter { return s.presenter }

// Engine exposes the achievement rule table.
func (s *Store) Engine() *achievement.Engine { return s.engine }

// Location is the time zone used for date keys.
func (s *Store) Location() *time.Location { return s.cfg.Location }

// Flush waits for all queued background saves.
func (s *Store) Flush() { s.dispatch.Wait() }

// Close drains pending saves and stops the background worker.
func (s *Store) Close() { s.dispatch.Close() }

// DispatcherStats reports background sync counters.
func (s *Store) DispatcherStats() DispatcherStats { return s.dispatch.Stats() }

// ─── Status Machine ─────────────────────────────────────────────────────────

// setStatusLocked moves the status and arms the saved->idle reset when
// asked to.
func (s *Store) setStatusLocked(st Status, reset bool) {
	s.status = st
	s.statusGen++
	if st != StatusSaved || !reset {
		return
	}
	gen := s.statusGen
	s.clk.AfterFunc(s.cfg.SavedReset, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.statusGen == gen && s.status == StatusSaved {
			s.status = StatusIdle
			s.statusGen++
		}
	})
}

// ─── Load ───────────────────────────────────────────────────────────────────

// Load fetches a scope and merges it. Loading everything closes the
// readiness gate until the merge has settled. A silent load reports
// failure only through the status.
func (s *Store) Load(ctx context.Context, q syncproto.LoadQuery, silent bool) error {
	if q.Scope == "" {
		q.Scope = syncproto.ScopeAll
	}
	full := q.Scope == syncproto.ScopeAll

	s.mu.Lock()
	familyID := s.state.FamilyID
	if familyID == "" {
		s.mu.Unlock()
		return domain.ErrMissingFamilyID
	}
	if !silent {
		s.setStatusLocked(StatusSyncing, false)
	}
	if full {
		s.ready = false
		if s.settle != nil {
			s.settle.Stop()
			s.settle = nil
		}
	}
	s.mu.Unlock()

	snap, err := s.remote.Load(ctx, familyID, q)

	s.mu.Lock()
	switch {
	case errors.Is(err, domain.ErrFamilyNotFound):
		s.ready = true
		s.setStatusLocked(StatusIdle, false)
		s.mu.Unlock()
		if !silent {
			s.notify.Toast(domain.ToastError, "未找到该家庭ID的数据")
		}
		return err
	case err != nil:
		if full {
			s.ready = true
		}
		s.setStatusLocked(StatusError, false)
		s.mu.Unlock()
		s.log.Warn("load failed", "family", familyID, "scope", q.Scope, "error", err)
		if !silent {
			s.notify.Toast(domain.ToastError, "同步失败，请检查网络")
		}
		return err
	}

	syncproto.Merge(&s.state, snap)
	s.setStatusLocked(StatusSaved, !silent)
	if full {
		s.settle = s.clk.AfterFunc(s.cfg.SettleDelay, func() {
			s.mu.Lock()
			s.ready = true
			s.settle = nil
			s.mu.Unlock()
		})
	}
	s.mu.Unlock()

	if !silent && full {
		s.notify.Toast(domain.ToastSuccess, "数据同步成功！")
	}
	return nil
}

// JoinFamily switches to an existing family and loads everything.
func (s *Store) JoinFamily(ctx context.Context, familyID string) error {
	if familyID == "" {
		return domain.ErrMissingFamilyID
	}
	s.mu.Lock()
	s.state = domain.FamilyState{FamilyID: familyID, Logs: domain.DailyLogs{}}
	s.ready = false
	s.mu.Unlock()
	return s.Load(ctx, syncproto.LoadQuery{Scope: syncproto.ScopeAll}, false)
}

// StartAdventure creates a new family seeded from the catalog and uploads
// it. It returns the new family ID.
func (s *Store) StartAdventure(ctx context.Context, userName string) (string, error) {
	familyID := uuid.NewString()
	tasks := slices.Clone(s.cat.Tasks)
	rewards := slices.Clone(s.cat.Rewards)

	s.mu.Lock()
	s.state = domain.FamilyState{
		FamilyID: familyID,
		UserName: userName,
		ThemeKey: DefaultTheme,
		Tasks:    tasks,
		Rewards:  rewards,
		Wishlist: []domain.WishlistGoal{},
		Logs:     domain.DailyLogs{},
	}
	s.ready = false
	s.mu.Unlock()

	saves := []struct {
		scope syncproto.Scope
		data  any
	}{
		{syncproto.ScopeSettings, syncproto.SettingsData{UserName: &userName, ThemeKey: syncproto.String(DefaultTheme)}},
		{syncproto.ScopeTasks, tasks},
		{syncproto.ScopeRewards, rewards},
		{syncproto.ScopeWishlist, []domain.WishlistGoal{}},
		{syncproto.ScopeActivity, syncproto.ActivityData{
			Logs:                 domain.DailyLogs{},
			Balance:              syncproto.Int64(0),
			Transactions:         []domain.Transaction{},
			LifetimeEarnings:     syncproto.Int64(0),
			UnlockedAchievements: []string{},
		}},
	}
	for _, sv := range saves {
		if _, err := s.remote.Save(ctx, familyID, sv.scope, sv.data); err != nil {
			s.mu.Lock()
			s.setStatusLocked(StatusError, false)
			s.mu.Unlock()
			s.notify.Toast(domain.ToastError, "初始化失败，请重试")
			return "", fmt.Errorf("start adventure: %w", err)
		}
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.notify.Toast(domain.ToastSuccess, fmt.Sprintf("欢迎你，%s！", userName))
	return familyID, nil
}

// DefaultTheme is the theme a new family starts with.
const DefaultTheme = "lemon"

// ─── Bulk Saves ─────────────────────────────────────────────────────────────
// Definitions edited in settings are stored locally at once and uploaded
// whole when the readiness gate is open.

// SaveTasks replaces the task definitions.
func (s *Store) SaveTasks(tasks []domain.Task) {
	norm := make([]domain.Task, len(tasks))
	for i, t := range tasks {
		norm[i] = t.Normalized()
	}
	s.mu.Lock()
	s.state.Tasks = norm
	s.mu.Unlock()
	s.autoSave(syncproto.ScopeTasks, slices.Clone(norm))
}

// SaveRewards replaces the store rewards.
func (s *Store) SaveRewards(rewards []domain.Reward) {
	rewards = slices.Clone(rewards)
	s.mu.Lock()
	s.state.Rewards = rewards
	s.mu.Unlock()
	s.autoSave(syncproto.ScopeRewards, slices.Clone(rewards))
}

// SaveSettings updates the profile name and theme.
func (s *Store) SaveSettings(userName, themeKey string) {
	s.mu.Lock()
	s.state.UserName = userName
	s.state.ThemeKey = themeKey
	s.mu.Unlock()
	s.autoSave(syncproto.ScopeSettings, syncproto.SettingsData{UserName: &userName, ThemeKey: &themeKey})
}

func (s *Store) autoSave(scope syncproto.Scope, data any) {
	s.mu.Lock()
	ok := s.ready && s.state.FamilyID != ""
	s.mu.Unlock()
	if ok {
		s.enqueue(scope, data)
	}
}

// ManualSave uploads settings, definitions, the wishlist and unlocked
// achievements, retrying each scope with linear backoff.
func (s *Store) ManualSave(ctx context.Context) error {
	s.mu.Lock()
	st := s.state.Clone()
	if st.FamilyID == "" {
		s.mu.Unlock()
		s.notify.Toast(domain.ToastError, "请先创建家庭ID")
		return domain.ErrMissingFamilyID
	}
	s.setStatusLocked(StatusSyncing, false)
	s.mu.Unlock()

	saves := []struct {
		scope syncproto.Scope
		data  any
	}{
		{syncproto.ScopeSettings, syncproto.SettingsData{UserName: &st.UserName, ThemeKey: &st.ThemeKey}},
		{syncproto.ScopeTasks, nonNil(st.Tasks)},
		{syncproto.ScopeRewards, nonNil(st.Rewards)},
		{syncproto.ScopeWishlist, nonNil(st.Wishlist)},
		{syncproto.ScopeActivity, syncproto.ActivityData{UnlockedAchievements: nonNil(st.UnlockedAchievements)}},
	}
	for _, sv := range saves {
		_, err := SaveWithRetry(ctx, s.remote, st.FamilyID, sv.scope, sv.data, s.cfg.RetryAttempts, s.cfg.RetryBackoff)
		if err != nil {
			s.mu.Lock()
			s.setStatusLocked(StatusError, false)
			s.mu.Unlock()
			s.log.Error("manual save failed", "family", st.FamilyID, "scope", sv.scope, "error", err)
			s.notify.Toast(domain.ToastError, "上传失败，请稍后再试")
			return fmt.Errorf("manual save %s: %w", sv.scope, err)
		}
	}

	s.mu.Lock()
	s.setStatusLocked(StatusSaved, true)
	s.mu.Unlock()
	s.notify.Toast(domain.ToastSuccess, "所有数据已上传云端")
	return nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// ─── Background Sync ────────────────────────────────────────────────────────

// enqueue sends a silent save in the background. Granular results carry
// the authoritative balance, which replaces the local figure.
func (s *Store) enqueue(scope syncproto.Scope, data any) {
	s.mu.Lock()
	familyID := s.state.FamilyID
	s.mu.Unlock()
	if familyID == "" {
		return
	}
	err := s.dispatch.Submit(string(scope), func(ctx context.Context) error {
		res, err := s.remote.Save(ctx, familyID, scope, data)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.setStatusLocked(StatusError, false)
			return err
		}
		if s.state.FamilyID != familyID {
			return nil
		}
		if res != nil {
			if res.Balance != nil {
				s.state.Balance = *res.Balance
			}
			if res.LifetimeEarnings != nil {
				s.state.LifetimeEarnings = *res.LifetimeEarnings
			}
		}
		s.setStatusLocked(StatusSaved, false)
		return nil
	})
	if err != nil {
		s.mu.Lock()
		s.setStatusLocked(StatusError, false)
		s.mu.Unlock()
		s.log.Warn("sync not queued", "scope", scope, "error", err)
	}
}
