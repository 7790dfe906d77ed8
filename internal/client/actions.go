package client

import (
	"fmt"
	"slices"
	"time"

	"github.com/star-achiever/star/internal/achievement"
	"github.com/star-achiever/star/internal/domain"
	"github.com/star-achiever/star/internal/ledger"
	"github.com/star-achiever/star/internal/reconcile"
	"github.com/star-achiever/star/internal/syncproto"
)

// ─── Effects ────────────────────────────────────────────────────────────────
// Actions mutate state under the lock and collect their side effects here;
// the effects run after the lock is released.

type pendingSave struct {
	scope syncproto.Scope
	data  any
}

type toast struct {
	level domain.ToastLevel
	msg   string
}

type effects struct {
	saves     []pendingSave
	celebrate *domain.Celebration
	unlocked  []domain.Achievement
	toasts    []toast
}

func (fx *effects) save(scope syncproto.Scope, data any) {
	fx.saves = append(fx.saves, pendingSave{scope: scope, data: data})
}

func (fx *effects) toast(level domain.ToastLevel, format string, args ...any) {
	fx.toasts = append(fx.toasts, toast{level: level, msg: fmt.Sprintf(format, args...)})
}

func (s *Store) emit(fx effects) {
	for _, sv := range fx.saves {
		s.enqueue(sv.scope, sv.data)
	}
	if fx.celebrate != nil {
		s.presenter.Celebrate(*fx.celebrate)
	}
	s.presenter.Unlock(fx.unlocked)
	for _, t := range fx.toasts {
		s.notify.Toast(t.level, t.msg)
	}
}

// recordLocked prepends a fresh record and applies its delta.
func (s *Store) recordLocked(tx domain.Transaction) {
	s.state.Transactions = append([]domain.Transaction{tx}, s.state.Transactions...)
	adj := ledger.Delta(nil, &tx)
	s.state.Balance += adj.Balance
	s.state.LifetimeEarnings = ledger.ApplyLifetime(s.state.LifetimeEarnings, adj.Lifetime)
}

// evaluateLocked unlocks newly satisfied achievements and queues their save.
func (s *Store) evaluateLocked(fx *effects) {
	agg := achievement.Collect(s.state, s.clk.Now(), s.cfg.Location)
	fresh := s.engine.Evaluate(agg, s.state.UnlockedAchievements)
	if len(fresh) == 0 {
		return
	}
	for _, a := range fresh {
		s.state.UnlockedAchievements = append(s.state.UnlockedAchievements, a.ID)
	}
	fx.unlocked = fresh
	fx.save(syncproto.ScopeActivity, syncproto.ActivityData{
		UnlockedAchievements: slices.Clone(s.state.UnlockedAchievements),
	})
}

func (s *Store) blockLocked() {
	if s.cfg.BlockDuration <= 0 {
		return
	}
	s.blocked = true
	if s.unblock != nil {
		s.unblock.Stop()
	}
	s.unblock = s.clk.AfterFunc(s.cfg.BlockDuration, func() {
		s.mu.Lock()
		s.blocked = false
		s.unblock = nil
		s.mu.Unlock()
	})
}

// insufficient rejects an action the balance cannot cover.
func (s *Store) insufficient(have, need int64) error {
	err := domain.CheckBalance(have, need)
	if err != nil {
		s.notify.Toast(domain.ToastError, err.Error())
	}
	return err
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

// ToggleTask completes or undoes a task on day, which may be in the past.
func (s *Store) ToggleTask(taskID string, day time.Time) (reconcile.Plan, error) {
	s.mu.Lock()
	if s.blocked {
		s.mu.Unlock()
		return reconcile.Plan{}, domain.ErrInteractionBlocked
	}
	task, ok := s.state.Task(taskID)
	if !ok {
		s.mu.Unlock()
		return reconcile.Plan{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}

	plan := reconcile.Toggle(s.builder, reconcile.Input{
		Task:   task,
		Day:    day,
		Logs:   s.state.Logs,
		Ledger: s.state.Transactions,
	})
	reconcile.Apply(&s.state, plan)

	var fx effects
	fx.save(syncproto.ScopeRecordLog, plan.Payload)
	if plan.Completing {
		kind := domain.CelebrationSuccess
		if task.IsPenalty() {
			kind = domain.CelebrationPenalty
		}
		fx.celebrate = &domain.Celebration{Kind: kind, Points: task.Stars, Title: task.Title}
		s.blockLocked()
	}
	s.evaluateLocked(&fx)
	s.mu.Unlock()

	s.emit(fx)
	return plan, nil
}

// ─── Store ──────────────────────────────────────────────────────────────────

// RedeemReward spends stars on a store reward.
func (s *Store) RedeemReward(rewardID string) (domain.Transaction, error) {
	s.mu.Lock()
	reward, ok := s.state.Reward(rewardID)
	if !ok {
		s.mu.Unlock()
		return domain.Transaction{}, fmt.Errorf("%w: %s", domain.ErrRewardNotFound, rewardID)
	}
	if err := domain.CheckBalance(s.state.Balance, reward.Cost); err != nil {
		have := s.state.Balance
		s.mu.Unlock()
		return domain.Transaction{}, s.insufficient(have, reward.Cost)
	}

	tx := s.builder.Compute(-reward.Cost, fmt.Sprintf("%s: %s", ledger.MarkerRedeem, reward.Title),
		ledger.WithKind(domain.KindRedeem))
	s.recordLocked(tx)

	var fx effects
	fx.save(syncproto.ScopeRecordTransaction, syncproto.RecordTransaction{Transaction: &tx})
	fx.toast(domain.ToastSuccess, "成功兑换：%s", reward.Title)
	s.evaluateLocked(&fx)
	s.mu.Unlock()

	s.emit(fx)
	return tx, nil
}

// OpenMysteryBox pays for a mystery box and draws a prize. roll returns a
// value in [0,1); nil uses a random source.
func (s *Store) OpenMysteryBox(roll func() float64) (domain.MysteryPrize, error) {
	box := s.cat.MysteryBox

	s.mu.Lock()
	if err := domain.CheckBalance(s.state.Balance, box.Cost); err != nil {
		have := s.state.Balance
		s.mu.Unlock()
		return domain.MysteryPrize{}, s.insufficient(have, box.Cost)
	}

	var fx effects
	cost := s.builder.Compute(-box.Cost, "开启神秘"+ledger.MarkerMystery, ledger.WithKind(domain.KindMysteryBox))
	s.recordLocked(cost)
	fx.save(syncproto.ScopeRecordTransaction, syncproto.RecordTransaction{Transaction: &cost})

	prize := box.Draw(roll)
	if prize.BonusStars > 0 {
		bonus := s.builder.Compute(prize.BonusStars, "神秘大奖: "+prize.Title, ledger.WithKind(domain.KindBonus))
		s.recordLocked(bonus)
		fx.save(syncproto.ScopeRecordTransaction, syncproto.RecordTransaction{Transaction: &bonus})
	}
	fx.toast(domain.ToastSuccess, "%s %s", prize.Icon, prize.Title)
	s.evaluateLocked(&fx)
	s.mu.Unlock()

	s.emit(fx)
	return prize, nil
}

// ─── Avatar ─────────────────────────────────────────────────────────────────

// BuyAvatarItem buys an item and equips it. An item already owned is
// toggled on or off instead; purchased reports which happened.
func (s *Store) BuyAvatarItem(itemID string) (purchased bool, err error) {
	item, ok := s.cat.AvatarItem(itemID)
	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}

	s.mu.Lock()
	if s.state.Avatar.Owns(item.ID) {
		s.mu.Unlock()
		return false, s.EquipAvatarItem(item.ID)
	}
	if err := domain.CheckBalance(s.state.Balance, item.Cost); err != nil {
		have := s.state.Balance
		s.mu.Unlock()
		return false, s.insufficient(have, item.Cost)
	}

	tx := s.builder.Compute(-item.Cost, fmt.Sprintf("%s装扮: %s", ledger.MarkerPurchase, item.Name),
		ledger.WithKind(domain.KindPurchase))
	s.recordLocked(tx)
	s.state.Avatar.OwnedItems = append(s.state.Avatar.OwnedItems, item.ID)
	s.state.Avatar.Equip(item)

	var fx effects
	fx.save(syncproto.ScopeRecordTransaction, syncproto.RecordTransaction{Transaction: &tx})
	fx.save(syncproto.ScopeAvatar, s.avatarDataLocked())
	fx.toast(domain.ToastSuccess, "购买成功！")
	s.evaluateLocked(&fx)
	s.mu.Unlock()

	s.emit(fx)
	return true, nil
}

// EquipAvatarItem puts an owned item on, or takes it off if it is already
// worn.
func (s *Store) EquipAvatarItem(itemID string) error {
	item, ok := s.cat.AvatarItem(itemID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}

	s.mu.Lock()
	if !s.state.Avatar.Owns(item.ID) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is not owned", domain.ErrItemNotFound, itemID)
	}
	if s.state.Avatar.Config.Equipped(item.Part) == item.ID {
		s.state.Avatar.Unequip(item.Part)
	} else {
		s.state.Avatar.Equip(item)
	}
	var fx effects
	fx.save(syncproto.ScopeAvatar, s.avatarDataLocked())
	s.mu.Unlock()

	s.emit(fx)
	return nil
}

func (s *Store) avatarDataLocked() syncproto.AvatarData {
	a := s.state.Avatar
	a.OwnedItems = nonNil(slices.Clone(a.OwnedItems))
	return syncproto.AvatarData{AvatarState: a}
}

// ─── Wishlist ───────────────────────────────────────────────────────────────

// AddWishlistGoal adds a savings goal. A new goal starts empty.
func (s *Store) AddWishlistGoal(goal domain.WishlistGoal) (domain.WishlistGoal, error) {
	if goal.Title == "" {
		return domain.WishlistGoal{}, fmt.Errorf("%w: goal needs a title", domain.ErrBadPayload)
	}
	if goal.TargetCost <= 0 {
		return domain.WishlistGoal{}, domain.ErrInvalidAmount
	}
	if goal.ID == "" {
		goal.ID = s.newID()
	}
	goal.CurrentSaved = 0

	s.mu.Lock()
	s.state.Wishlist = append(s.state.Wishlist, goal)
	var fx effects
	fx.save(syncproto.ScopeWishlistUpdate, syncproto.WishlistChange{Goal: &goal})
	s.mu.Unlock()

	s.emit(fx)
	return goal, nil
}

// DepositToWishlist moves stars from the balance into a goal. The saved
// amount may overshoot the target.
func (s *Store) DepositToWishlist(goalID string, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}

	s.mu.Lock()
	i := s.state.Goal(goalID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrGoalNotFound, goalID)
	}
	if err := domain.CheckBalance(s.state.Balance, amount); err != nil {
		have := s.state.Balance
		s.mu.Unlock()
		return s.insufficient(have, amount)
	}

	goal := s.state.Wishlist[i]
	tx := s.builder.Compute(-amount, fmt.Sprintf("%s心愿: %s", ledger.MarkerDeposit, goal.Title),
		ledger.WithKind(domain.KindDeposit), ledger.ForGoal(goal.ID))
	s.recordLocked(tx)

	reached := !goal.Completed()
	goal.CurrentSaved += amount
	reached = reached && goal.Completed()
	s.state.Wishlist[i] = goal

	var fx effects
	fx.save(syncproto.ScopeWishlistUpdate, syncproto.WishlistChange{Goal: &goal, Transaction: &tx})
	if reached {
		fx.toast(domain.ToastSuccess, "太棒了！心愿 %s 达成！", goal.Title)
	}
	fx.toast(domain.ToastSuccess, "成功存入 %d 颗星星", amount)
	s.evaluateLocked(&fx)
	s.mu.Unlock()

	s.emit(fx)
	return nil
}

// DeleteWishlistGoal removes a goal and refunds whatever was saved in it.
func (s *Store) DeleteWishlistGoal(goalID string) error {
	s.mu.Lock()
	i := s.state.Goal(goalID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrGoalNotFound, goalID)
	}
	goal := s.state.Wishlist[i]
	change := syncproto.WishlistChange{GoalID: goal.ID}

	var fx effects
	if goal.CurrentSaved > 0 {
		tx := s.builder.Compute(goal.CurrentSaved, fmt.Sprintf("%s心愿存款: %s", ledger.MarkerRefund, goal.Title),
			ledger.WithKind(domain.KindRefund), ledger.ForGoal(goal.ID))
		s.recordLocked(tx)
		change.Transaction = &tx
		fx.toast(domain.ToastInfo, "退回了 %d 颗星星", goal.CurrentSaved)
	}
	s.state.Wishlist = slices.Delete(s.state.Wishlist, i, i+1)
	fx.save(syncproto.ScopeWishlistDelete, change)
	s.mu.Unlock()

	s.emit(fx)
	return nil
}
