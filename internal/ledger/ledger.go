package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/star-achiever/star/internal/clock"
	"github.com/star-achiever/star/internal/domain"
)

// ─── Transaction Construction ───────────────────────────────────────────────

// Builder creates transaction records.
type Builder struct {
	Clock    clock.Clock
	Location *time.Location
	NewID    func() string
}

// Option adjusts a transaction under construction.
type Option func(*domain.Transaction, *buildOptions)

type buildOptions struct {
	day *time.Time
}

// OnDay backdates the record to day's calendar date, keeping the current
// time of day so ordering stays sensible.
func OnDay(day time.Time) Option {
	return func(_ *domain.Transaction, o *buildOptions) { o.day = &day }
}

// WithKind tags the record with a structured kind.
func WithKind(k domain.TxKind) Option {
	return func(tx *domain.Transaction, _ *buildOptions) { tx.Kind = k }
}

// ForTask links the record to a task.
func ForTask(taskID string) Option {
	return func(tx *domain.Transaction, _ *buildOptions) { tx.TaskID = taskID }
}

// ForGoal links the record to a wishlist goal.
func ForGoal(goalID string) Option {
	return func(tx *domain.Transaction, _ *buildOptions) { tx.GoalID = goalID }
}

// Compute builds a new live transaction.
func (b Builder) Compute(amount int64, description string, opts ...Option) domain.Transaction {
	tx := domain.Transaction{
		Description: description,
		Amount:      amount,
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&tx, &o)
	}

	now := b.now()
	date := now
	if o.day != nil {
		date = StampDate(*o.day, now, b.loc())
	}
	tx.ID = b.newID()
	tx.Date = date.UTC()
	tx.DateKey = DateKey(date, b.loc())
	tx.Type = Classify(amount, tx.Kind, description)
	tx.CreatedAt = now.UnixMilli()
	return tx
}

// Now exposes the builder's clock.
func (b Builder) Now() time.Time { return b.now() }

func (b Builder) now() time.Time {
	if b.Clock == nil {
		return time.Now()
	}
	return b.Clock.Now()
}

func (b Builder) loc() *time.Location {
	if b.Location == nil {
		return time.Local
	}
	return b.Location
}

func (b Builder) newID() string {
	if b.NewID == nil {
		return uuid.NewString()
	}
	return b.NewID()
}

// ─── Dates ──────────────────────────────────────────────────────────────────

// DateKey formats t as YYYY-MM-DD in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

// ParseDateKey parses a YYYY-MM-DD key as midnight in loc.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, key, loc)
}

// TxDateKey returns the day a record belongs to.
func TxDateKey(tx domain.Transaction, loc *time.Location) string {
	if tx.DateKey != "" {
		return tx.DateKey
	}
	return DateKey(tx.Date, loc)
}

// StampDate merges day's calendar date with now's time of day.
func StampDate(day, now time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	n := now.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), n.Hour(), n.Minute(), n.Second(), n.Nanosecond(), loc)
}

// ─── Accounting ─────────────────────────────────────────────────────────────

// Adjustment is a relative change to balance and lifetime earnings.
type Adjustment struct {
	Balance  int64 `json:"balance"`
	Lifetime int64 `json:"lifetime"`
}

// Add combines two adjustments.
func (a Adjustment) Add(b Adjustment) Adjustment {
	return Adjustment{Balance: a.Balance + b.Balance, Lifetime: a.Lifetime + b.Lifetime}
}

// IsZero reports whether nothing changes.
func (a Adjustment) IsZero() bool { return a.Balance == 0 && a.Lifetime == 0 }

// Delta is the change caused by a record moving from old to next. Either may
// be nil for an insert or a removal. Lifetime follows the balance change
// only for positive records that do not reverse anything.
func Delta(old, next *domain.Transaction) Adjustment {
	var before, after int64
	if old != nil {
		before = old.Effective()
	}
	if next != nil {
		after = next.Effective()
	}
	adj := Adjustment{Balance: after - before}

	ref := next
	if ref == nil {
		ref = old
	}
	if ref != nil && ref.Amount > 0 && !FlagsOf(*ref).Undo {
		adj.Lifetime = adj.Balance
	}
	return adj
}

// ApplyLifetime adds delta and floors the result at zero.
func ApplyLifetime(current, delta int64) int64 {
	return max(0, current+delta)
}

// Balance reconstructs a balance from the ledger.
func Balance(txs []domain.Transaction) int64 {
	var sum int64
	for _, tx := range txs {
		sum += tx.Effective()
	}
	return sum
}
