// Package expiry computes when a task with a completion window stops being
// completable. Nothing here is persisted; expiry is derived on every read.
package expiry

import (
	"errors"
	"fmt"
	"time"

	"github.com/TanguyBaudrin/familly-companion/internal/model"
)

var (
	ErrInvalidDurationUnit  = errors.New("invalid duration unit")
	ErrInvalidDurationValue = errors.New("invalid duration value")
)

const day = 24 * time.Hour

// Validate checks a duration before it is stored. A nil duration is valid
// and means the task never expires.
func Validate(d *model.TaskDuration) error {
	if d == nil {
		return nil
	}
	if _, err := length(*d); err != nil {
		return err
	}
	return nil
}

func length(d model.TaskDuration) (time.Duration, error) {
	if d.Value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDurationValue, d.Value)
	}
	n := time.Duration(d.Value)
	switch d.Unit {
	case model.UnitDays:
		return n * day, nil
	case model.UnitWeeks:
		return n * 7 * day, nil
	case model.UnitMonths:
		// Months are a fixed 30 days, not calendar months.
		return n * 30 * day, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDurationUnit, d.Unit)
}

// ExpiresAt returns the instant after which a task created at createdAt can
// no longer be completed, or nil when d is nil.
func ExpiresAt(createdAt time.Time, d *model.TaskDuration) (*time.Time, error) {
	if d == nil {
		return nil, nil
	}
	l, err := length(*d)
	if err != nil {
		return nil, err
	}
	at := createdAt.Add(l)
	return &at, nil
}

// IsExpired reports whether now is strictly past the task's expiry. Tasks
// without a duration never expire.
func IsExpired(task model.Task, now time.Time) (bool, error) {
	at, err := ExpiresAt(task.CreatedAt, task.Duration)
	if err != nil || at == nil {
		return false, err
	}
	return now.After(*at), nil
}
