package domain

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// Presentation side effects (confetti, audio, toasts) live outside the core.
// They are fire-and-forget: nothing waits on them and nothing depends on
// them succeeding.

// CelebrationKind distinguishes a reward burst from a penalty animation.
type CelebrationKind string

const (
	CelebrationSuccess CelebrationKind = "success"
	CelebrationPenalty CelebrationKind = "penalty"
)

// Celebration is shown after a task is completed.
type Celebration struct {
	Kind   CelebrationKind `json:"kind"`
	Points int64           `json:"points"`
	Title  string          `json:"title"`
}

// ToastLevel is the severity of a transient user message.
type ToastLevel string

const (
	ToastSuccess ToastLevel = "success"
	ToastError   ToastLevel = "error"
	ToastInfo    ToastLevel = "info"
)

// Notifier receives presentation events.
type Notifier interface {
	Celebrate(c Celebration)
	AchievementUnlocked(a Achievement)
	Toast(level ToastLevel, msg string)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Celebrate(Celebration)          {}
func (NopNotifier) AchievementUnlocked(Achievement) {}
func (NopNotifier) Toast(ToastLevel, string)        {}
