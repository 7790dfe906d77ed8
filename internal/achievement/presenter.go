package achievement

import (
	"sync"
	"time"

	"github.com/star-achiever/star/internal/clock"
	"github.com/star-achiever/star/internal/domain"
)

// ─── Presentation Queue ─────────────────────────────────────────────────────
// At most one celebratory event is visible at a time.
//
//	idle ──Celebrate──▶ celebrating ──(duration)──▶ idle
//	                         │
//	                 Unlock: hold in the single pending slot
//
// When a celebration ends, the pending unlock (if any) is shown after a
// short delay. A newer pending unlock replaces an older one.

// State is the presenter's state.
type State int

const (
	StateIdle State = iota
	StateCelebrating
)

func (s State) String() string {
	if s == StateCelebrating {
		return "celebrating"
	}
	return "idle"
}

// PresenterConfig holds presentation timings.
type PresenterConfig struct {
	Duration     time.Duration // how long a celebration stays on screen
	PendingDelay time.Duration // gap before a held unlock is shown
}

// DefaultPresenterConfig returns the standard timings.
func DefaultPresenterConfig() PresenterConfig {
	return PresenterConfig{
		Duration:     2 * time.Second,
		PendingDelay: 300 * time.Millisecond,
	}
}

// Presenter serialises celebrations and unlock announcements.
type Presenter struct {
	mu      sync.Mutex
	clk     clock.Clock
	notify  domain.Notifier
	cfg     PresenterConfig
	state   State
	gen     uint64
	pending *domain.Achievement
	ending  clock.Timer
	release clock.Timer
}

// NewPresenter creates an idle presenter.
func NewPresenter(clk clock.Clock, n domain.Notifier, cfg PresenterConfig) *Presenter {
	if n == nil {
		n = domain.NopNotifier{}
	}
	return &Presenter{clk: clk, notify: n, cfg: cfg}
}

// Celebrate shows c and (re)starts the celebration timer.
func (p *Presenter) Celebrate(c domain.Celebration) {
	p.mu.Lock()
	p.state = StateCelebrating
	p.gen++
	gen := p.gen
	if p.ending != nil {
		p.ending.Stop()
	}
	if p.release != nil {
		p.release.Stop()
		p.release = nil
	}
	p.ending = p.clk.AfterFunc(p.cfg.Duration, func() { p.finish(gen) })
	p.mu.Unlock()

	p.notify.Celebrate(c)
}

// Unlock announces the last of newly unlocked achievements, or holds it
// while a celebration is running.
func (p *Presenter) Unlock(unlocked []domain.Achievement) {
	if len(unlocked) == 0 {
		return
	}
	last := unlocked[len(unlocked)-1]

	p.mu.Lock()
	if p.state == StateCelebrating || p.release != nil {
		p.pending = &last
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.notify.AchievementUnlocked(last)
}

// State returns the current state.
func (p *Presenter) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Pending returns the held unlock, if any.
func (p *Presenter) Pending() (domain.Achievement, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return domain.Achievement{}, false
	}
	return *p.pending, true
}

func (p *Presenter) finish(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	p.state = StateIdle
	p.ending = nil
	if p.pending != nil {
		p.release = p.clk.AfterFunc(p.cfg.PendingDelay, func() { p.releasePending(gen) })
	}
}

func (p *Presenter) releasePending(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.state == StateCelebrating {
		p.mu.Unlock()
		return
	}
	a := p.pending
	p.pending = nil
	p.release = nil
	p.mu.Unlock()

	if a != nil {
		p.notify.AchievementUnlocked(*a)
	}
}
