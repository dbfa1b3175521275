package calendar

import (
	"errors"
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

var ErrInvalidDate = errors.New("invalid date")

// ParseDate parses a YYYY-MM-DD day in loc. A nil loc means UTC.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrInvalidDate, date)
	}
	return t, nil
}

// MonthString returns the YYYY-MM month a YYYY-MM-DD day belongs to.
func MonthString(date string) (string, error) {
	t, err := ParseDate(date, time.UTC)
	if err != nil {
		return "", err
	}
	return t.Format(MonthLayout), nil
}

// StartOfMonth returns midnight of the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, t.Location())
}

// EndOfMonth returns the last representable instant of t's month.
func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// EndOfDay returns the last representable instant of t's day.
func EndOfDay(t time.Time) time.Time {
	return dateOnly(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// SameMonth reports whether a and b fall in the same calendar month.
func SameMonth(a, b time.Time) bool {
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return ay == by && am == bm
}

// BookingDeadline returns the instant after which bookings for the month of
// slotDay are locked: the end of the previous month minus lockingPeriodDays.
func BookingDeadline(slotDay time.Time, lockingPeriodDays int) time.Time {
	previousMonth := StartOfMonth(slotDay).AddDate(0, -1, 0)
	return EndOfMonth(previousMonth).AddDate(0, 0, -lockingPeriodDays)
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
