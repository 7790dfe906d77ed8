// Package syncproto defines the scope-partitioned sync protocol shared by the
// client and the server: scope names, load query parameters, the GET and POST
// envelopes, granular write payloads and the merge rule applied to partial
// loads.
package syncproto

import (
	"fmt"

	"github.com/star-achiever/star/internal/domain"
)

// Scope names a partition of a family's data.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeTasks    Scope = "tasks"
	ScopeRewards  Scope = "rewards"
	ScopeWishlist Scope = "wishlist"
	ScopeSettings Scope = "settings"
	ScopeActivity Scope = "activity"
	ScopeDaily    Scope = "daily"
	ScopeStore    Scope = "store"
	ScopeCalendar Scope = "calendar"
	ScopeAvatar   Scope = "avatar"

	ScopeRecordLog         Scope = "record_log"
	ScopeRecordTransaction Scope = "record_transaction"
	ScopeWishlistUpdate    Scope = "wishlist_update"
	ScopeWishlistDelete    Scope = "wishlist_delete"
)

// Part is one collection a load can return.
type Part uint8

const (
	PartTasks Part = 1 << iota
	PartRewards
	PartWishlist
	PartLogs
	PartTransactions
	PartAvatar
)

type scopeInfo struct {
	parts    Part
	readable bool
	writable bool
	granular bool
}

var scopes = map[Scope]scopeInfo{
	ScopeAll:      {parts: PartTasks | PartRewards | PartWishlist | PartLogs | PartTransactions | PartAvatar, readable: true},
	ScopeTasks:    {parts: PartTasks, readable: true, writable: true},
	ScopeRewards:  {parts: PartRewards, readable: true, writable: true},
	ScopeWishlist: {parts: PartWishlist, readable: true, writable: true},
	ScopeSettings: {parts: PartTasks | PartRewards | PartLogs | PartTransactions | PartAvatar, readable: true, writable: true},
	ScopeActivity: {parts: PartLogs | PartTransactions, readable: true, writable: true},
	ScopeDaily:    {parts: PartTasks | PartLogs | PartTransactions, readable: true},
	ScopeStore:    {parts: PartRewards | PartWishlist | PartAvatar, readable: true},
	ScopeCalendar: {parts: PartTransactions, readable: true},
	ScopeAvatar:   {parts: PartAvatar, readable: true, writable: true},

	ScopeRecordLog:         {writable: true, granular: true},
	ScopeRecordTransaction: {writable: true, granular: true},
	ScopeWishlistUpdate:    {writable: true, granular: true},
	ScopeWishlistDelete:    {writable: true, granular: true},
}

// ParseScope validates a scope name. An empty name is ErrMissingScope.
func ParseScope(s string) (Scope, error) {
	if s == "" {
		return "", domain.ErrMissingScope
	}
	sc := Scope(s)
	if _, ok := scopes[sc]; !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownScope, s)
	}
	return sc, nil
}

// Includes reports whether a load of this scope returns p.
func (s Scope) Includes(p Part) bool { return scopes[s].parts&p != 0 }

// Readable reports whether the scope can be loaded.
func (s Scope) Readable() bool { return scopes[s].readable }

// Writable reports whether the scope can be saved.
func (s Scope) Writable() bool { return scopes[s].writable }

// Granular reports whether saves apply relative balance deltas server-side.
func (s Scope) Granular() bool { return scopes[s].granular }

// Bulk reports whether saves replace the whole collection.
func (s Scope) Bulk() bool {
	switch s {
	case ScopeTasks, ScopeRewards, ScopeWishlist, ScopeSettings:
		return true
	}
	return false
}

func (s Scope) String() string { return string(s) }
