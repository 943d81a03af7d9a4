package stats

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidPeriod = errors.New("invalid period")

type Period string

const (
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// ParsePeriod accepts "weekly" or "monthly". An empty string means weekly.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", Weekly:
		return Weekly, nil
	case Monthly:
		return Monthly, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// WindowStart returns the start of the period containing now, in UTC: the
// most recent Monday at midnight for weekly, the first of the month for
// monthly.
func WindowStart(p Period, now time.Time) (time.Time, error) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch p {
	case Weekly:
		// time.Weekday starts at Sunday; shift so Monday is 0.
		offset := (int(midnight.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset), nil
	case Monthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, p)
}
