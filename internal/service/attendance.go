package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/eisbuk/EisBuk-sub003/internal/changefeed"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/repository"
	"github.com/eisbuk/EisBuk-sub003/internal/trigger"
)

// AttendanceHandler projects booked and attended intervals into
// attendance/{slotId}.attendances[customerId]. The booked handler only ever
// writes .booked and the attended handler .attended.
type AttendanceHandler struct {
	store  repository.DocumentStore
	logger *slog.Logger
}

func NewAttendanceHandler(store repository.DocumentStore, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{store: store, logger: logger}
}

func (h *AttendanceHandler) HandleBooked(ctx context.Context, ev changefeed.Event, params trigger.Params) error {
	return h.handle(ctx, params, model.FieldBooked, model.FieldAttended, model.BookedSlotPath)
}

func (h *AttendanceHandler) HandleAttended(ctx context.Context, ev changefeed.Event, params trigger.Params) error {
	return h.handle(ctx, params, model.FieldAttended, model.FieldBooked, model.AttendedSlotPath)
}

func (h *AttendanceHandler) handle(
	ctx context.Context,
	params trigger.Params,
	field, sibling string,
	primaryPath func(org, secretKey, slotID string) string,
) error {
	org := params[model.ParamOrganization]
	secretKey := params[model.ParamSecretKey]
	slotID := params[model.ParamSlotID]

	bi, err := resolveIdentity(ctx, h.store, org, secretKey)
	if err != nil {
		return err
	}
	customerID := bi.ID

	var interval model.BookedInterval
	exists, err := getDocument(ctx, h.store, primaryPath(org, secretKey, slotID), &interval)
	if err != nil {
		return err
	}

	path := model.AttendancePath(org, slotID)
	if exists {
		err = h.store.UpdateFields(ctx, path,
			repository.SetField(interval.Date, model.FieldDate),
			repository.SetField(interval.Interval, model.FieldAttendances, customerID, field),
		)
		if err != nil {
			return err
		}
		h.logger.Debug("attendance.written", "org", org, "slot_id", slotID, "customer_id", customerID, "field", field)
		return nil
	}

	// removal: drop the whole entry once the other side is empty too
	return h.store.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		doc, err := tx.Get(path)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var att model.Attendance
		if err := doc.Decode(&att); err != nil {
			return err
		}
		entry, ok := att.Attendances[customerID]
		if !ok {
			return nil
		}

		other := entry.Attended
		if sibling == model.FieldBooked {
			other = entry.Booked
		}
		if other == nil {
			h.logger.Debug("attendance.entry_removed", "org", org, "slot_id", slotID, "customer_id", customerID)
			return tx.Apply(repository.UpdateOp(path, repository.DeleteField(model.FieldAttendances, customerID)))
		}
		return tx.Apply(repository.UpdateOp(path, repository.SetField(nil, model.FieldAttendances, customerID, field)))
	})
}
