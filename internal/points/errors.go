package points

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidAllocation  = errors.New("invalid allocation")
	ErrNoValidRecipients  = errors.New("no valid recipients")
	ErrTaskExpired        = errors.New("task expired")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrNameTaken          = errors.New("name already taken")
)

// AllocationError describes why a set of allocations was rejected.
type AllocationError struct {
	Reason string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("invalid allocation: %s", e.Reason)
}

func (e *AllocationError) Unwrap() error {
	return ErrInvalidAllocation
}

// InsufficientPointsError reports a debit larger than the member's balance.
type InsufficientPointsError struct {
	MemberID  int64
	Available int
	Requested int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: member %d has %d, needs %d",
		e.MemberID, e.Available, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}

// IsClientError reports whether err was caused by the request rather than
// by storage.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAllocation) ||
		errors.Is(err, ErrNoValidRecipients) ||
		errors.Is(err, ErrTaskExpired) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrNameTaken)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
