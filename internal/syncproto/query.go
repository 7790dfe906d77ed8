package syncproto

import (
	"fmt"
	"net/url"
	"time"

	"github.com/star-achiever/star/internal/domain"
)

// RecentLimit caps an unfiltered transaction load.
const RecentLimit = 5000

// monthLayout is the YYYY-MM month filter.
const monthLayout = "2006-01"

// FilterMode selects how a load narrows the transaction list.
type FilterMode int

const (
	FilterRecent FilterMode = iota
	FilterRange
	FilterDate
	FilterMonth
)

// LoadQuery is the parsed GET query string.
type LoadQuery struct {
	Scope     Scope
	Date      string    // YYYY-MM-DD
	Month     string    // YYYY-MM
	StartDate time.Time // inclusive, with EndDate
	EndDate   time.Time // inclusive
}

// Filter reports the active transaction filter. A range needs both ends
// and wins over date, which wins over month.
func (q LoadQuery) Filter() FilterMode {
	switch {
	case !q.StartDate.IsZero() && !q.EndDate.IsZero():
		return FilterRange
	case q.Date != "":
		return FilterDate
	case q.Month != "":
		return FilterMonth
	}
	return FilterRecent
}

// Values encodes the query for familyID.
func (q LoadQuery) Values(familyID string) url.Values {
	v := url.Values{}
	v.Set("familyId", familyID)
	if q.Scope != "" {
		v.Set("scope", string(q.Scope))
	}
	if q.Date != "" {
		v.Set("date", q.Date)
	}
	if q.Month != "" {
		v.Set("month", q.Month)
	}
	if !q.StartDate.IsZero() && !q.EndDate.IsZero() {
		v.Set("startDate", q.StartDate.UTC().Format(time.RFC3339Nano))
		v.Set("endDate", q.EndDate.UTC().Format(time.RFC3339Nano))
	}
	return v
}

// ParseLoadQuery reads familyId and the load filters. A missing scope
// means "all".
func ParseLoadQuery(v url.Values) (string, LoadQuery, error) {
	familyID := v.Get("familyId")
	if familyID == "" {
		return "", LoadQuery{}, domain.ErrMissingFamilyID
	}

	raw := v.Get("scope")
	if raw == "" {
		raw = string(ScopeAll)
	}
	scope, err := ParseScope(raw)
	if err != nil {
		return "", LoadQuery{}, err
	}
	if !scope.Readable() {
		return "", LoadQuery{}, fmt.Errorf("%w: %s is write-only", domain.ErrUnknownScope, scope)
	}

	q := LoadQuery{Scope: scope}
	if d := v.Get("date"); d != "" {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return "", LoadQuery{}, fmt.Errorf("%w: date %q", domain.ErrBadPayload, d)
		}
		q.Date = d
	}
	if m := v.Get("month"); m != "" {
		if _, err := time.Parse(monthLayout, m); err != nil {
			return "", LoadQuery{}, fmt.Errorf("%w: month %q", domain.ErrBadPayload, m)
		}
		q.Month = m
	}
	start, end := v.Get("startDate"), v.Get("endDate")
	if start != "" && end != "" {
		if q.StartDate, err = time.Parse(time.RFC3339Nano, start); err != nil {
			return "", LoadQuery{}, fmt.Errorf("%w: startDate %q", domain.ErrBadPayload, start)
		}
		if q.EndDate, err = time.Parse(time.RFC3339Nano, end); err != nil {
			return "", LoadQuery{}, fmt.Errorf("%w: endDate %q", domain.ErrBadPayload, end)
		}
	}
	return familyID, q, nil
}
