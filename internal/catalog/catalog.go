// Package catalog loads the built-in seed data: starter tasks and rewards,
// the achievement rule table, avatar items and the mystery box prize table.
package catalog

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/star-achiever/star/internal/domain"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Catalog is the parsed seed file.
type Catalog struct {
	Tasks        []domain.Task        `yaml:"tasks"`
	Rewards      []domain.Reward      `yaml:"rewards"`
	Achievements []domain.Achievement `yaml:"achievements"`
	AvatarItems  []domain.AvatarItem  `yaml:"avatar_items"`
	MysteryBox   MysteryBox           `yaml:"mystery_box"`
}

// MysteryBox is the price and weighted prize table of the mystery box.
type MysteryBox struct {
	Cost   int64                 `yaml:"cost"`
	Prizes []domain.MysteryPrize `yaml:"prizes"`
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded catalog. It panics if the embedded file is
// invalid, which can only happen at build time.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Parse(defaultsYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("catalog: embedded defaults: %v", defaultErr))
	}
	return defaultCat
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	for i := range c.Tasks {
		c.Tasks[i] = c.Tasks[i].Normalized()
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool)
	for _, t := range c.Tasks {
		if t.ID == "" || seen[t.ID] {
			return fmt.Errorf("task %q: missing or duplicate id", t.ID)
		}
		seen[t.ID] = true
		if !t.Category.Valid() {
			return fmt.Errorf("task %s: unknown category %q", t.ID, t.Category)
		}
	}
	for _, a := range c.Achievements {
		switch a.ConditionType {
		case domain.ConditionLifetimeStars, domain.ConditionStreak, domain.ConditionCategoryCount,
			domain.ConditionWishlistComplete, domain.ConditionBalanceLevel, domain.ConditionRedemptionCount,
			domain.ConditionMysteryBoxCount, domain.ConditionAvatarCount:
		default:
			return fmt.Errorf("achievement %s: unknown condition %q", a.ID, a.ConditionType)
		}
		if a.Threshold <= 0 {
			return fmt.Errorf("achievement %s: threshold must be positive", a.ID)
		}
	}
	if c.MysteryBox.Cost <= 0 {
		return fmt.Errorf("mystery box cost must be positive")
	}
	total := 0
	for _, p := range c.MysteryBox.Prizes {
		if p.Weight < 0 {
			return fmt.Errorf("prize %q: negative weight", p.Title)
		}
		total += p.Weight
	}
	if total == 0 {
		return fmt.Errorf("mystery box has no weighted prizes")
	}
	return nil
}

// Achievement looks up a rule by ID.
func (c *Catalog) Achievement(id string) (domain.Achievement, bool) {
	for _, a := range c.Achievements {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Achievement{}, false
}

// AvatarItem looks up an avatar item by ID.
func (c *Catalog) AvatarItem(id string) (domain.AvatarItem, bool) {
	for _, it := range c.AvatarItems {
		if it.ID == id {
			return it, true
		}
	}
	return domain.AvatarItem{}, false
}

// Draw picks a prize by weight. roll must return a value in [0,1).
func (b MysteryBox) Draw(roll func() float64) domain.MysteryPrize {
	if roll == nil {
		roll = rand.Float64
	}
	total := 0
	for _, p := range b.Prizes {
		total += p.Weight
	}
	r := roll() * float64(total)
	for _, p := range b.Prizes {
		if r < float64(p.Weight) {
			return p
		}
		r -= float64(p.Weight)
	}
	return b.Prizes[len(b.Prizes)-1]
}
