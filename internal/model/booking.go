package model

// BookingIdentity is the capability-addressed projection of a customer,
// stored under the customer's secret key.
type BookingIdentity struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Surname      string   `json:"surname"`
	Category     Category `json:"category"`
	Deleted      bool     `json:"deleted"`
	ExtendedDate string   `json:"extendedDate,omitempty"`
}

// NewBookingIdentity projects c onto its booking identity.
func NewBookingIdentity(c *Customer) *BookingIdentity {
	return &BookingIdentity{
		ID:           c.ID,
		Name:         c.Name,
		Surname:      c.Surname,
		Category:     c.Category,
		Deleted:      c.Deleted,
		ExtendedDate: c.ExtendedDate,
	}
}

// BookedInterval is a customer's booking for one slot, keyed by slot id.
type BookedInterval struct {
	Date         string `json:"date"`
	Interval     string `json:"interval"`
	BookingNotes string `json:"bookingNotes,omitempty"`
}

// AttendedInterval records realized attendance; same shape as a booking.
type AttendedInterval = BookedInterval
