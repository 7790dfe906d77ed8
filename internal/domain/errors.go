package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	// Family errors
	ErrFamilyNotFound  = errors.New("family not found")
	ErrFamilyExists    = errors.New("family already exists")
	ErrMissingFamilyID = errors.New("missing familyId")

	// Sync protocol errors
	ErrMissingScope = errors.New("missing scope")
	ErrUnknownScope = errors.New("unknown scope")
	ErrBadPayload   = errors.New("malformed payload")
	ErrSyncTimeout  = errors.New("sync request timed out")
	ErrRemote       = errors.New("remote store error")

	// Economy errors
	ErrInsufficientBalance = errors.New("insufficient stars")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrTaskNotFound        = errors.New("task not found")
	ErrRewardNotFound      = errors.New("reward not found")
	ErrGoalNotFound        = errors.New("wishlist goal not found")
	ErrItemNotFound        = errors.New("avatar item not found")

	// Client errors
	ErrInteractionBlocked = errors.New("interaction blocked, try again shortly")
	ErrDispatcherClosed   = errors.New("sync dispatcher closed")
)

// InsufficientStarsError reports how many more stars an action needs.
type InsufficientStarsError struct {
	Need int64
	Have int64
}

func (e *InsufficientStarsError) Error() string {
	return fmt.Sprintf("insufficient stars, need %d more", e.Need-e.Have)
}

func (e *InsufficientStarsError) Unwrap() error { return ErrInsufficientBalance }

// CheckBalance returns an InsufficientStarsError when have < need.
func CheckBalance(have, need int64) error {
	if have < need {
		return &InsufficientStarsError{Need: need, Have: have}
	}
	return nil
}
