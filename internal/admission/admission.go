// Package admission decides whether a booking request may be accepted. It
// never reads or writes state: every input comes with the request.
package admission

import (
	"time"

	"github.com/eisbuk/EisBuk-sub003/internal/calendar"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
)

// DefaultLockingPeriodDays is how many days before the end of the previous
// month bookings for a month close.
const DefaultLockingPeriodDays = 5

type Reason string

const (
	ReasonSlotNotFound     Reason = "SlotNotFound"
	ReasonIntervalNotFound Reason = "IntervalNotFound"
	ReasonCategoryMismatch Reason = "CategoryMismatch"
	ReasonDeadlinePassed   Reason = "DeadlinePassed"
	ReasonCapacityExceeded Reason = "CapacityExceeded"
	ReasonDateMismatch     Reason = "DateMismatch"
)

// Decision is Allowed, or denied with exactly one Reason.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func Allow() Decision { return Decision{Allowed: true} }

func Deny(r Reason) Decision { return Decision{Reason: r} }

type Policy struct {
	LockingPeriodDays int
	// Location is the organization's timezone; dates are calendar days there.
	Location *time.Location
}

func DefaultPolicy() Policy {
	return Policy{LockingPeriodDays: DefaultLockingPeriodDays, Location: time.UTC}
}

// Customer carries the booking-relevant part of a customer.
type Customer struct {
	Category model.Category
	// ExtendedDate, YYYY-MM-DD, extends the booking window of its month
	// until the end of that day.
	ExtendedDate string
}

type Request struct {
	Customer Customer
	// Slot is nil when the slot does not exist.
	Slot     *model.Slot
	Interval string
	// Date is optional; when set it must equal the slot's date.
	Date string
	// CurrentCount is the slot's booking count at the time of the request.
	CurrentCount int
	// AlreadyBooked is true when the customer already holds a booking for
	// this slot, so the request replaces it instead of taking a new place.
	AlreadyBooked bool
	Now           time.Time
	IsAdmin       bool
}

// Admit runs the checks in order and returns the first failure.
func Admit(policy Policy, req Request) Decision {
	slot := req.Slot
	if slot == nil || slot.Deleted {
		return Deny(ReasonSlotNotFound)
	}
	if !slot.HasInterval(req.Interval) {
		return Deny(ReasonIntervalNotFound)
	}
	if !CategoryAllowed(req.Customer.Category, slot.Categories) {
		return Deny(ReasonCategoryMismatch)
	}
	if !req.IsAdmin && !withinDeadline(policy, slot.Date, req.Customer.ExtendedDate, req.Now) {
		return Deny(ReasonDeadlinePassed)
	}
	if slot.Capacity != nil && !req.AlreadyBooked && req.CurrentCount >= *slot.Capacity {
		return Deny(ReasonCapacityExceeded)
	}
	if req.Date != "" && req.Date != slot.Date {
		return Deny(ReasonDateMismatch)
	}
	return Allow()
}

// CheckDeadline is the deadline rule alone, used when cancelling.
func CheckDeadline(policy Policy, slotDate, extendedDate string, now time.Time, isAdmin bool) Decision {
	if isAdmin || withinDeadline(policy, slotDate, extendedDate, now) {
		return Allow()
	}
	return Deny(ReasonDeadlinePassed)
}

func withinDeadline(policy Policy, slotDate, extendedDate string, now time.Time) bool {
	loc := policy.Location
	if loc == nil {
		loc = time.UTC
	}
	slotDay, err := calendar.ParseDate(slotDate, loc)
	if err != nil {
		// an undated slot cannot be placed in a booking window
		return false
	}
	now = now.In(loc)

	if now.Before(calendar.BookingDeadline(slotDay, policy.LockingPeriodDays)) {
		return true
	}

	if extendedDate == "" {
		return false
	}
	extended, err := calendar.ParseDate(extendedDate, loc)
	if err != nil {
		return false
	}
	return calendar.SameMonth(extended, slotDay) && !now.After(calendar.EndOfDay(extended))
}
