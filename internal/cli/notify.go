package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/star-achiever/star/internal/domain"
)

// termNotifier prints store events as terminal lines. Each achievement is
// announced at most once.
type termNotifier struct {
	mu        sync.Mutex
	w         io.Writer
	announced map[string]bool
}

func newTermNotifier(w io.Writer) *termNotifier {
	return &termNotifier{w: w, announced: map[string]bool{}}
}

func (n *termNotifier) Celebrate(c domain.Celebration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	renderCelebration(n.w, c)
}

func (n *termNotifier) AchievementUnlocked(a domain.Achievement) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.announced[a.ID] {
		return
	}
	n.announced[a.ID] = true
	fmt.Fprintf(n.w, "🏆 Achievement unlocked: %s %s\n", a.Icon, a.Title)
	if a.Description != "" {
		fmt.Fprintf(n.w, "   %s\n", a.Description)
	}
}

func (n *termNotifier) Toast(level domain.ToastLevel, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	icon := "ℹ️ "
	switch level {
	case domain.ToastSuccess:
		icon = "✅"
	case domain.ToastError:
		icon = "⚠️ "
	}
	fmt.Fprintf(n.w, "%s %s\n", icon, msg)
}
