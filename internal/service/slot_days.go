package service

import (
	"context"
	"log/slog"

	"github.com/eisbuk/EisBuk-sub003/internal/aggregate"
	"github.com/eisbuk/EisBuk-sub003/internal/changefeed"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/repository"
	"github.com/eisbuk/EisBuk-sub003/internal/trigger"
)

// SlotDaysHandler keeps slotsByDay/{month} in step with slots: exactly one
// leaf [day][slotId] per live slot.
type SlotDaysHandler struct {
	store  repository.DocumentStore
	writer *aggregate.Writer
	logger *slog.Logger
}

func NewSlotDaysHandler(store repository.DocumentStore, logger *slog.Logger) *SlotDaysHandler {
	return &SlotDaysHandler{store: store, writer: aggregate.NewWriter(store), logger: logger}
}

// Handle projects the slot's current state. The days named by the event
// snapshots are only used to find leaves to remove, so a late or repeated
// event converges to the same result.
func (h *SlotDaysHandler) Handle(ctx context.Context, ev changefeed.Event, params trigger.Params) error {
	org, slotID := params[model.ParamOrganization], params[model.ParamSlotID]

	var slot model.Slot
	exists, err := getDocument(ctx, h.store, model.SlotPath(org, slotID), &slot)
	if err != nil {
		return err
	}
	live := exists && !slot.Deleted

	var ops []repository.Op
	seen := map[string]bool{}
	for _, day := range []string{snapshotDate(ev.Before), snapshotDate(ev.After), slot.Date} {
		if day == "" || seen[day] || (live && day == slot.Date) {
			continue
		}
		seen[day] = true
		month, err := monthOf(day)
		if err != nil {
			h.logger.Warn("slots_by_day.stale_date_skipped", "org", org, "slot_id", slotID, "date", day)
			continue
		}
		ops = append(ops, aggregate.LeafOp(model.SlotsByDayPath(org, month), day, slotID, aggregate.Delete))
	}

	if live {
		if month, err := monthOf(slot.Date); err != nil {
			// old-day leaves still go; the slot reappears once its date parses
			h.logger.Warn("slots_by_day.invalid_date_skipped", "org", org, "slot_id", slotID, "date", slot.Date)
		} else {
			slot.ID = slotID
			ops = append(ops, aggregate.LeafOp(model.SlotsByDayPath(org, month), slot.Date, slotID, slot))
		}
	}

	if err := h.writer.Apply(ctx, ops...); err != nil {
		return err
	}
	h.logger.Debug("slots_by_day.projected", "org", org, "slot_id", slotID, "live", live, "ops", len(ops))
	return nil
}
