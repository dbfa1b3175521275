package service

import (
	"testing"

	"github.com/eisbuk/EisBuk-sub003/internal/changefeed"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/repository"
	"github.com/eisbuk/EisBuk-sub003/internal/trigger"
)

func slotParams(slotID string) trigger.Params {
	return trigger.Params{model.ParamOrganization: org, model.ParamSlotID: slotID}
}

func TestSlotDays_ProjectsLifecycle(t *testing.T) {
	h := newHarness(t)
	monthPath := model.SlotsByDayPath(org, "2024-03")

	slot := testSlot("2024-03-05", intPtr(4))
	h.set(model.SlotPath(org, "s1"), slot)

	var days model.SlotsByDay
	h.decode(monthPath, &days)
	leaf, ok := days["2024-03-05"]["s1"]
	if !ok {
		t.Fatalf("expected leaf for s1, got %#v", days)
	}
	if leaf.ID != "s1" || leaf.Capacity == nil || *leaf.Capacity != 4 || len(leaf.Intervals) != 2 {
		t.Fatalf("unexpected snapshot: %+v", leaf)
	}

	slot.Notes = "bring skates"
	h.set(model.SlotPath(org, "s1"), slot)
	h.decode(monthPath, &days)
	if days["2024-03-05"]["s1"].Notes != "bring skates" {
		t.Fatalf("expected updated notes, got %+v", days["2024-03-05"]["s1"])
	}

	h.remove(model.SlotPath(org, "s1"))
	days = nil
	h.decode(monthPath, &days)
	if _, ok := days["2024-03-05"]["s1"]; ok {
		t.Fatalf("expected leaf removed, got %#v", days)
	}
	// the emptied day container stays until reconciliation
	if day, ok := days["2024-03-05"]; !ok || len(day) != 0 {
		t.Fatalf("expected empty day container, got %#v", days)
	}
}

func TestSlotDays_LeafIsolation(t *testing.T) {
	h := newHarness(t)

	h.set(model.SlotPath(org, "s1"), testSlot("2024-03-05", nil))
	h.set(model.SlotPath(org, "s2"), testSlot("2024-03-05", nil))
	h.set(model.SlotPath(org, "s3"), testSlot("2024-04-05", nil))
	before := h.data(model.SlotsByDayPath(org, "2024-04"))

	h.remove(model.SlotPath(org, "s1"))

	var march model.SlotsByDay
	h.decode(model.SlotsByDayPath(org, "2024-03"), &march)
	if _, ok := march["2024-03-05"]["s2"]; !ok {
		t.Fatalf("sibling leaf s2 must survive, got %#v", march)
	}
	if after := h.data(model.SlotsByDayPath(org, "2024-04")); !repository.Equal(before, after) {
		t.Fatalf("other month changed: %#v -> %#v", before, after)
	}
}

func TestSlotDays_DayMove(t *testing.T) {
	h := newHarness(t)
	monthPath := model.SlotsByDayPath(org, "2024-03")

	h.set(model.SlotPath(org, "s1"), testSlot("2024-03-05", nil))
	h.set(model.SlotPath(org, "s1"), testSlot("2024-03-07", nil))

	var days model.SlotsByDay
	h.decode(monthPath, &days)
	if _, ok := days["2024-03-05"]["s1"]; ok {
		t.Fatalf("expected no residual entry at old day, got %#v", days)
	}
	if days["2024-03-07"]["s1"].Date != "2024-03-07" {
		t.Fatalf("expected leaf at new day, got %#v", days)
	}

	// across months the old month loses the leaf, the new month gains it
	h.set(model.SlotPath(org, "s1"), testSlot("2024-04-01", nil))
	days = nil
	h.decode(monthPath, &days)
	if _, ok := days["2024-03-07"]["s1"]; ok {
		t.Fatalf("expected leaf removed from march, got %#v", days)
	}
	var april model.SlotsByDay
	h.decode(model.SlotsByDayPath(org, "2024-04"), &april)
	if _, ok := april["2024-04-01"]["s1"]; !ok {
		t.Fatalf("expected leaf in april, got %#v", april)
	}
}

func TestSlotDays_Idempotent(t *testing.T) {
	h := newHarness(t)
	slotPath := model.SlotPath(org, "s1")
	monthPath := model.SlotsByDayPath(org, "2024-03")

	h.set(slotPath, testSlot("2024-03-05", intPtr(2)))
	once := h.data(monthPath)

	ev := changefeed.NewEvent(slotPath, nil, h.data(slotPath))
	for i := 0; i < 2; i++ {
		if err := h.handlers.SlotDays.Handle(h.ctx, ev, slotParams("s1")); err != nil {
			t.Fatalf("redelivery %d: %v", i, err)
		}
	}
	if twice := h.data(monthPath); !repository.Equal(once, twice) {
		t.Fatalf("redelivery changed state: %#v -> %#v", once, twice)
	}
}

func TestSlotDays_StaleEventConverges(t *testing.T) {
	h := newHarness(t)
	slotPath := model.SlotPath(org, "s1")

	h.set(slotPath, testSlot("2024-03-05", nil))
	h.set(slotPath, testSlot("2024-03-09", nil))

	// the original create arrives again, late
	stale := changefeed.NewEvent(slotPath, nil, map[string]any{"date": "2024-03-05"})
	if err := h.handlers.SlotDays.Handle(h.ctx, stale, slotParams("s1")); err != nil {
		t.Fatalf("stale event: %v", err)
	}

	var days model.SlotsByDay
	h.decode(model.SlotsByDayPath(org, "2024-03"), &days)
	if _, ok := days["2024-03-05"]["s1"]; ok {
		t.Fatalf("stale event resurrected old leaf: %#v", days)
	}
	if _, ok := days["2024-03-09"]["s1"]; !ok {
		t.Fatalf("current leaf missing: %#v", days)
	}
}

func TestSlotDays_DeletedFlagRemovesLeaf(t *testing.T) {
	h := newHarness(t)
	slot := testSlot("2024-03-05", nil)
	h.set(model.SlotPath(org, "s1"), slot)

	slot.Deleted = true
	h.set(model.SlotPath(org, "s1"), slot)

	var days model.SlotsByDay
	h.decode(model.SlotsByDayPath(org, "2024-03"), &days)
	if _, ok := days["2024-03-05"]["s1"]; ok {
		t.Fatalf("soft-deleted slot still projected: %#v", days)
	}
}

func TestSlotDays_InvalidDateDropsOldLeaf(t *testing.T) {
	h := newHarness(t)
	monthPath := model.SlotsByDayPath(org, "2024-03")

	h.set(model.SlotPath(org, "s1"), testSlot("2024-03-05", nil))
	h.set(model.SlotPath(org, "s1"), testSlot("05/03/2024", nil))

	var days model.SlotsByDay
	h.decode(monthPath, &days)
	if _, ok := days["2024-03-05"]["s1"]; ok {
		t.Fatalf("expected old-day leaf removed, got %#v", days)
	}

	ev := changefeed.NewEvent(model.SlotPath(org, "s1"), nil, nil)
	if err := h.handlers.SlotDays.Handle(h.ctx, ev, slotParams("s1")); err != nil {
		t.Fatalf("invalid date should be skipped, got %v", err)
	}
}
