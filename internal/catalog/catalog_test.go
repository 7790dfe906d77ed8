package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star-achiever/star/internal/domain"
)

func TestDefault_Contents(t *testing.T) {
	c := Default()

	assert.Len(t, c.Tasks, 22)
	assert.Len(t, c.Rewards, 5)
	assert.Len(t, c.Achievements, 12)
	assert.Len(t, c.AvatarItems, 20)
	assert.Equal(t, int64(50), c.MysteryBox.Cost)
	assert.Len(t, c.MysteryBox.Prizes, 9)

	for _, task := range c.Tasks {
		if task.Category == domain.CategoryPenalty {
			assert.Negative(t, task.Stars, task.ID)
		} else {
			assert.Positive(t, task.Stars, task.ID)
		}
	}

	helper, ok := c.Achievement("HELPER_10")
	require.True(t, ok)
	assert.Equal(t, domain.ConditionCategoryCount, helper.ConditionType)
	assert.Equal(t, domain.CategoryBonus, helper.CategoryFilter)

	glasses, ok := c.AvatarItem("f_glasses")
	require.True(t, ok)
	assert.Equal(t, domain.PartFace, glasses.Part)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "unknown category",
			doc: `
tasks: [{id: a, category: CHORES, stars: 1}]
mystery_box: {cost: 1, prizes: [{title: x, weight: 1}]}`,
		},
		{
			name: "duplicate task id",
			doc: `
tasks: [{id: a, category: LIFE, stars: 1}, {id: a, category: LIFE, stars: 1}]
mystery_box: {cost: 1, prizes: [{title: x, weight: 1}]}`,
		},
		{
			name: "unknown condition",
			doc: `
achievements: [{id: X, condition_type: karma, threshold: 1}]
mystery_box: {cost: 1, prizes: [{title: x, weight: 1}]}`,
		},
		{
			name: "empty prize table",
			doc:  `mystery_box: {cost: 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_NormalizesStars(t *testing.T) {
	c, err := Parse([]byte(`
tasks:
  - {id: p, category: PENALTY, stars: 5}
  - {id: b, category: BONUS, stars: 9999}
mystery_box: {cost: 1, prizes: [{title: x, weight: 1}]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(-5), c.Tasks[0].Stars)
	assert.Equal(t, int64(500), c.Tasks[1].Stars)
}

func TestMysteryBox_Draw(t *testing.T) {
	box := MysteryBox{Cost: 50, Prizes: []domain.MysteryPrize{
		{Title: "a", Weight: 10},
		{Title: "b", Weight: 0},
		{Title: "c", Weight: 30, BonusStars: 100},
	}}

	tests := []struct {
		roll float64
		want string
	}{
		{0, "a"},
		{0.24, "a"},
		{0.25, "c"},
		{0.999, "c"},
	}
	for _, tt := range tests {
		got := box.Draw(func() float64 { return tt.roll })
		assert.Equal(t, tt.want, got.Title, "roll %v", tt.roll)
	}
}
