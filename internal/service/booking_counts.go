package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/eisbuk/EisBuk-sub003/internal/aggregate"
	"github.com/eisbuk/EisBuk-sub003/internal/changefeed"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/trigger"
)

const bookingCountsHandler = "bookingCounts"

// BookingCountsHandler maintains slotBookingsCounts/{month}[slotId] from
// booked interval events. Each event is applied at most once: the
// increments commit together with a receipt named after the event id.
type BookingCountsHandler struct {
	writer *aggregate.Writer
	logger *slog.Logger
}

func NewBookingCountsHandler(writer *aggregate.Writer, logger *slog.Logger) *BookingCountsHandler {
	return &BookingCountsHandler{writer: writer, logger: logger}
}

func (h *BookingCountsHandler) Handle(ctx context.Context, ev changefeed.Event, params trigger.Params) error {
	org, slotID := params[model.ParamOrganization], params[model.ParamSlotID]

	increments, err := countIncrements(org, slotID, ev)
	if err != nil {
		return err
	}
	if len(increments) == 0 {
		return nil
	}

	receipt := model.HandlerReceipt{Handler: bookingCountsHandler, EventID: ev.ID, CreatedAt: time.Now().UTC()}
	applied, err := h.writer.IncrementOnce(ctx, model.HandlerReceiptPath(org, bookingCountsHandler, ev.ID), receipt, increments...)
	if err != nil {
		return err
	}
	if !applied {
		h.logger.Info("booking_counts.duplicate_delivery", "org", org, "slot_id", slotID, "event_id", ev.ID)
	}
	return nil
}

// countIncrements: +1 on create, -1 on delete, and on update a move from
// the old month to the new one when the date changed month.
func countIncrements(org, slotID string, ev changefeed.Event) ([]aggregate.Increment, error) {
	var before, after string
	if ev.Before != nil {
		month, err := monthOf(snapshotDate(ev.Before))
		if err != nil {
			return nil, err
		}
		before = month
	}
	if ev.After != nil {
		month, err := monthOf(snapshotDate(ev.After))
		if err != nil {
			return nil, err
		}
		after = month
	}
	if before == after {
		return nil, nil
	}

	var out []aggregate.Increment
	if before != "" {
		out = append(out, aggregate.Increment{Path: model.BookingCountsPath(org, before), Field: slotID, Delta: -1})
	}
	if after != "" {
		out = append(out, aggregate.Increment{Path: model.BookingCountsPath(org, after), Field: slotID, Delta: 1})
	}
	return out, nil
}
