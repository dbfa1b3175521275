package model

// SlotsByDay is the month aggregate: day -> slot id -> slot snapshot.
type SlotsByDay map[string]map[string]Slot

// AttendanceEntry is one customer's row in a slot's attendance aggregate.
// A missing side reads as null.
type AttendanceEntry struct {
	Booked   *string `json:"booked"`
	Attended *string `json:"attended"`
}

// Attendance is the per-slot attendance aggregate.
type Attendance struct {
	Date        string                     `json:"date"`
	Attendances map[string]AttendanceEntry `json:"attendances"`
}

// BookingCounts is the month aggregate: slot id -> number of bookings.
type BookingCounts map[string]int

// Aggregate field names.
const (
	FieldAttendances = "attendances"
	FieldDate        = "date"
	FieldBooked      = "booked"
	FieldAttended    = "attended"
	FieldDeleted     = "deleted"
	FieldSecretKey   = "secretKey"
)
