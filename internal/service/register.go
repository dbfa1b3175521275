package service

import (
	"log/slog"

	"github.com/eisbuk/EisBuk-sub003/internal/aggregate"
	"github.com/eisbuk/EisBuk-sub003/internal/identity"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/repository"
	"github.com/eisbuk/EisBuk-sub003/internal/trigger"
)

// Handlers bundles the aggregate handlers of the engine.
type Handlers struct {
	SlotDays      *SlotDaysHandler
	Identity      *IdentityBridge
	Attendance    *AttendanceHandler
	BookingCounts *BookingCountsHandler
}

func NewHandlers(store repository.DocumentStore, minter identity.TokenMinter, logger *slog.Logger) *Handlers {
	return &Handlers{
		SlotDays:      NewSlotDaysHandler(store, logger.With("handler", "slotsByDay")),
		Identity:      NewIdentityBridge(store, minter, logger.With("handler", "bookingIdentity")),
		Attendance:    NewAttendanceHandler(store, logger.With("handler", "attendance")),
		BookingCounts: NewBookingCountsHandler(aggregate.NewWriter(store), logger.With("handler", bookingCountsHandler)),
	}
}

// Register subscribes every handler to the primary collections it projects.
func (h *Handlers) Register(reg *trigger.Registry) {
	reg.OnChange(model.SlotPattern, "slotsByDay", h.SlotDays.Handle)
	reg.OnChange(model.CustomerPattern, "bookingIdentity", h.Identity.Handle)
	reg.OnChange(model.BookedSlotPattern, "attendance.booked", h.Attendance.HandleBooked)
	reg.OnChange(model.AttendedSlotPattern, "attendance.attended", h.Attendance.HandleAttended)
	reg.OnChange(model.BookedSlotPattern, bookingCountsHandler, h.BookingCounts.Handle)
}
