package service

import (
	"testing"

	"github.com/eisbuk/EisBuk-sub003/internal/changefeed"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/trigger"
)

func (h *harness) counts(month string) model.BookingCounts {
	h.t.Helper()
	var counts model.BookingCounts
	if !h.exists(model.BookingCountsPath(org, month)) {
		return counts
	}
	h.decode(model.BookingCountsPath(org, month), &counts)
	return counts
}

func TestBookingCounts_FollowBookings(t *testing.T) {
	h := newHarness(t)
	k1 := h.customer("c1", model.CategoryCourse)
	k2 := h.customer("c2", model.CategoryCourse)

	h.set(model.BookedSlotPath(org, k1, "s1"), model.BookedInterval{Date: "2024-03-05", Interval: "09:00-10:00"})
	h.set(model.BookedSlotPath(org, k2, "s1"), model.BookedInterval{Date: "2024-03-05", Interval: "10:00-11:00"})
	h.set(model.BookedSlotPath(org, k1, "s2"), model.BookedInterval{Date: "2024-03-09", Interval: "09:00-10:00"})

	counts := h.counts("2024-03")
	if counts["s1"] != 2 || counts["s2"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	// changing only the interval keeps the count
	h.set(model.BookedSlotPath(org, k2, "s1"), model.BookedInterval{Date: "2024-03-05", Interval: "09:00-10:00"})
	if got := h.counts("2024-03")["s1"]; got != 2 {
		t.Fatalf("interval change moved the count: %d", got)
	}

	h.remove(model.BookedSlotPath(org, k1, "s1"))
	counts = h.counts("2024-03")
	if counts["s1"] != 1 || counts["s2"] != 1 {
		t.Fatalf("after cancellation: %v", counts)
	}
}

func TestBookingCounts_RedeliveryAppliedOnce(t *testing.T) {
	h := newHarness(t)
	key := h.customer("c1", model.CategoryCourse)
	path := model.BookedSlotPath(org, key, "s1")

	ev := changefeed.NewEvent(path, nil, map[string]any{"date": "2024-03-05", "interval": "09:00-10:00"})
	params := trigger.Params{model.ParamOrganization: org, model.ParamSecretKey: key, model.ParamSlotID: "s1"}
	for i := 0; i < 3; i++ {
		if err := h.handlers.BookingCounts.Handle(h.ctx, ev, params); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if got := h.counts("2024-03")["s1"]; got != 1 {
		t.Fatalf("expected 1 after redelivery, got %d", got)
	}
	if !h.exists(model.HandlerReceiptPath(org, bookingCountsHandler, ev.ID)) {
		t.Fatalf("receipt missing")
	}
}

func TestBookingCounts_MonthMove(t *testing.T) {
	h := newHarness(t)
	key := h.customer("c1", model.CategoryCourse)
	path := model.BookedSlotPath(org, key, "s1")

	h.set(path, model.BookedInterval{Date: "2024-03-31", Interval: "09:00-10:00"})
	h.set(path, model.BookedInterval{Date: "2024-04-01", Interval: "09:00-10:00"})

	if got := h.counts("2024-03")["s1"]; got != 0 {
		t.Fatalf("march should be back to 0, got %d", got)
	}
	if got := h.counts("2024-04")["s1"]; got != 1 {
		t.Fatalf("april should be 1, got %d", got)
	}
}

func TestCountIncrements(t *testing.T) {
	march := map[string]any{"date": "2024-03-05"}
	marchLater := map[string]any{"date": "2024-03-20"}
	april := map[string]any{"date": "2024-04-02"}

	tests := []struct {
		name          string
		before, after map[string]any
		want          map[string]int64
		wantErr       bool
	}{
		{name: "create", after: march, want: map[string]int64{"2024-03": 1}},
		{name: "delete", before: march, want: map[string]int64{"2024-03": -1}},
		{name: "same month", before: march, after: marchLater, want: map[string]int64{}},
		{name: "month move", before: march, after: april, want: map[string]int64{"2024-03": -1, "2024-04": 1}},
		{name: "bad date", after: map[string]any{"date": "05/03/2024"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := countIncrements(org, "s1", changefeed.Event{Before: tt.before, After: tt.after})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d increments, got %+v", len(tt.want), got)
			}
			for _, inc := range got {
				if inc.Field != "s1" {
					t.Fatalf("unexpected field %q", inc.Field)
				}
				month := inc.Path[len(inc.Path)-len("2024-03"):]
				if inc.Delta != tt.want[month] {
					t.Fatalf("month %s: expected %d, got %d", month, tt.want[month], inc.Delta)
				}
			}
		})
	}
}
