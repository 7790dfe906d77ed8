// Package domain holds the family economy types shared by every layer.
// Nothing in here touches storage, the network or the clock.
package domain

import "slices"

// ─── Tasks ──────────────────────────────────────────────────────────────────

// Category groups tasks for display and for category achievements.
type Category string

const (
	CategoryLife     Category = "LIFE"
	CategoryBehavior Category = "BEHAVIOR"
	CategoryBonus    Category = "BONUS"
	CategoryPenalty  Category = "PENALTY"
)

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryLife, CategoryBehavior, CategoryBonus, CategoryPenalty:
		return true
	}
	return false
}

// Star bounds for a single task definition.
const (
	MinTaskStars = 1
	MaxTaskStars = 500
)

// Task is a repeatable chore or behaviour worth a fixed number of stars.
type Task struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"title" yaml:"title"`
	Category Category `json:"category" yaml:"category"`
	Stars    int64    `json:"stars" yaml:"stars"`
	Icon     string   `json:"icon" yaml:"icon"`
}

// Normalized returns t with its star value signed by category and clamped
// to [1,500] (or [-500,-1] for penalties).
func (t Task) Normalized() Task {
	s := t.Stars
	if s < 0 {
		s = -s
	}
	s = min(max(s, MinTaskStars), MaxTaskStars)
	if t.Category == CategoryPenalty {
		s = -s
	}
	t.Stars = s
	return t
}

// IsPenalty reports whether completing the task costs stars.
func (t Task) IsPenalty() bool { return t.Category == CategoryPenalty }

// ─── Store ──────────────────────────────────────────────────────────────────

// Reward is an item in the family store bought with stars.
type Reward struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Cost  int64  `json:"cost" yaml:"cost"`
	Icon  string `json:"icon" yaml:"icon"`
}

// WishlistGoal is a savings target filled by deposits.
type WishlistGoal struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	TargetCost   int64  `json:"targetCost"`
	CurrentSaved int64  `json:"currentSaved"`
	Icon         string `json:"icon"`
}

// Completed reports whether the saved amount has reached the target.
func (g WishlistGoal) Completed() bool { return g.CurrentSaved >= g.TargetCost }

// MysteryPrize is one weighted entry in the mystery box draw.
type MysteryPrize struct {
	Title      string `json:"title" yaml:"title"`
	Icon       string `json:"icon" yaml:"icon"`
	Weight     int    `json:"weight" yaml:"weight"`
	BonusStars int64  `json:"bonusStars,omitempty" yaml:"bonus_stars"`
}

// ─── Avatar ─────────────────────────────────────────────────────────────────

// AvatarConfig is the set of equipped items per body slot.
type AvatarConfig struct {
	SkinColor string `json:"skinColor"`
	Head      string `json:"head,omitempty"`
	Face      string `json:"face,omitempty"`
	Body      string `json:"body,omitempty"`
	Back      string `json:"back,omitempty"`
	Hand      string `json:"hand,omitempty"`
}

// AvatarPart is the body slot an avatar item occupies.
type AvatarPart string

const (
	PartHead AvatarPart = "head"
	PartFace AvatarPart = "face"
	PartBody AvatarPart = "body"
	PartBack AvatarPart = "back"
	PartHand AvatarPart = "hand"
)

// AvatarItem is a cosmetic sold in the avatar shop.
type AvatarItem struct {
	ID   string     `json:"id" yaml:"id"`
	Part AvatarPart `json:"type" yaml:"part"`
	Name string     `json:"name" yaml:"name"`
	Cost int64      `json:"cost" yaml:"cost"`
	Icon string     `json:"icon" yaml:"icon"`
}

// AvatarState is stored as an opaque blob per family.
type AvatarState struct {
	Config     AvatarConfig `json:"config"`
	OwnedItems []string     `json:"ownedItems"`
}

// Owns reports whether the avatar already holds itemID.
func (a AvatarState) Owns(itemID string) bool { return slices.Contains(a.OwnedItems, itemID) }

// Equip puts item into its slot.
func (a *AvatarState) Equip(item AvatarItem) {
	if slot := a.Config.slot(item.Part); slot != nil {
		*slot = item.ID
	}
}

// Unequip empties slot p. The body slot is never left empty.
func (a *AvatarState) Unequip(p AvatarPart) {
	if slot := a.Config.slot(p); slot != nil && p != PartBody {
		*slot = ""
	}
}

// Equipped returns the item ID in slot p.
func (c AvatarConfig) Equipped(p AvatarPart) string {
	if slot := c.slot(p); slot != nil {
		return *slot
	}
	return ""
}

func (c *AvatarConfig) slot(p AvatarPart) *string {
	switch p {
	case PartHead:
		return &c.Head
	case PartFace:
		return &c.Face
	case PartBody:
		return &c.Body
	case PartBack:
		return &c.Back
	case PartHand:
		return &c.Hand
	}
	return nil
}

// ─── Achievements ───────────────────────────────────────────────────────────

// ConditionType selects the aggregate an achievement rule compares against.
type ConditionType string

const (
	ConditionLifetimeStars    ConditionType = "lifetime_stars"
	ConditionStreak           ConditionType = "streak"
	ConditionCategoryCount    ConditionType = "category_count"
	ConditionWishlistComplete ConditionType = "wishlist_complete"
	ConditionBalanceLevel     ConditionType = "balance_level"
	ConditionRedemptionCount  ConditionType = "redemption_count"
	ConditionMysteryBoxCount  ConditionType = "mystery_box_count"
	ConditionAvatarCount      ConditionType = "avatar_count"
)

// Achievement is a stateless unlock rule.
type Achievement struct {
	ID             string        `json:"id" yaml:"id"`
	Title          string        `json:"title" yaml:"title"`
	Description    string        `json:"description" yaml:"description"`
	Icon           string        `json:"icon" yaml:"icon"`
	ConditionType  ConditionType `json:"conditionType" yaml:"condition_type"`
	Threshold      int64         `json:"threshold" yaml:"threshold"`
	CategoryFilter Category      `json:"categoryFilter,omitempty" yaml:"category_filter"`
}

// ─── Family State ───────────────────────────────────────────────────────────

// FamilyState is the full client-side copy of one family's data.
type FamilyState struct {
	FamilyID             string
	UserName             string
	ThemeKey             string
	Balance              int64
	LifetimeEarnings     int64
	UnlockedAchievements []string
	Tasks                []Task
	Rewards              []Reward
	Wishlist             []WishlistGoal
	Logs                 DailyLogs
	Transactions         []Transaction
	Avatar               AvatarState
}

// Clone returns a deep copy so callers can read it without holding locks.
func (s FamilyState) Clone() FamilyState {
	out := s
	out.UnlockedAchievements = slices.Clone(s.UnlockedAchievements)
	out.Tasks = slices.Clone(s.Tasks)
	out.Rewards = slices.Clone(s.Rewards)
	out.Wishlist = slices.Clone(s.Wishlist)
	out.Logs = s.Logs.Clone()
	out.Transactions = slices.Clone(s.Transactions)
	out.Avatar.OwnedItems = slices.Clone(s.Avatar.OwnedItems)
	return out
}

// Task looks up a task definition by ID.
func (s FamilyState) Task(id string) (Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Reward looks up a store reward by ID.
func (s FamilyState) Reward(id string) (Reward, bool) {
	for _, r := range s.Rewards {
		if r.ID == id {
			return r, true
		}
	}
	return Reward{}, false
}

// Goal returns the index of a wishlist goal, or -1.
func (s FamilyState) Goal(id string) int {
	return slices.IndexFunc(s.Wishlist, func(g WishlistGoal) bool { return g.ID == id })
}

// HasUnlocked reports whether an achievement ID is already unlocked.
func (s FamilyState) HasUnlocked(id string) bool {
	return slices.Contains(s.UnlockedAchievements, id)
}

// DailyLogs maps a YYYY-MM-DD key to the task IDs completed that day.
type DailyLogs map[string][]string

// Contains reports whether taskID is logged on dateKey.
func (l DailyLogs) Contains(dateKey, taskID string) bool {
	return slices.Contains(l[dateKey], taskID)
}

// Add logs taskID on dateKey once.
func (l DailyLogs) Add(dateKey, taskID string) {
	if l.Contains(dateKey, taskID) {
		return
	}
	l[dateKey] = append(slices.Clone(l[dateKey]), taskID)
}

// Remove drops every occurrence of taskID from dateKey.
func (l DailyLogs) Remove(dateKey, taskID string) {
	day := slices.DeleteFunc(slices.Clone(l[dateKey]), func(id string) bool { return id == taskID })
	l[dateKey] = day
}

// Clone copies the map and every day slice.
func (l DailyLogs) Clone() DailyLogs {
	if l == nil {
		return nil
	}
	out := make(DailyLogs, len(l))
	for k, v := range l {
		out[k] = slices.Clone(v)
	}
	return out
}
