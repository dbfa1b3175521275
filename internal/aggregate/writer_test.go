package aggregate

import (
	"context"
	"sync"
	"testing"

	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/repository"
	"github.com/eisbuk/EisBuk-sub003/internal/testkit"
)

func TestWriter_MergeLeafIsolatesSiblings(t *testing.T) {
	ctx := context.Background()
	store := testkit.NewSQLiteStore(t)
	w := NewWriter(store)
	path := model.SlotsByDayPath("o1", "2024-03")

	var wg sync.WaitGroup
	for _, id := range []string{"s1", "s2", "s3"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.MergeLeaf(ctx, path, "2024-03-05", id, map[string]any{"id": id}); err != nil {
				t.Errorf("merge %s: %v", id, err)
			}
		}()
	}
	wg.Wait()

	day, ok := testkit.Data(t, store, path)["2024-03-05"].(map[string]any)
	if !ok || len(day) != 3 {
		t.Fatalf("expected three leaves, got %#v", day)
	}
}

func TestWriter_MergeLeafIdempotent(t *testing.T) {
	ctx := context.Background()
	store := testkit.NewSQLiteStore(t)
	w := NewWriter(store)
	path := model.SlotsByDayPath("o1", "2024-03")
	leaf := map[string]any{"id": "s1", "date": "2024-03-05"}

	for i := 0; i < 3; i++ {
		if err := w.MergeLeaf(ctx, path, "2024-03-05", "s1", leaf); err != nil {
			t.Fatalf("merge #%d: %v", i, err)
		}
	}
	want := map[string]any{"2024-03-05": map[string]any{"s1": leaf}}
	if got := testkit.Data(t, store, path); !repository.Equal(got, want) {
		t.Fatalf("expected %#v, got %#v", want, got)
	}
}

func TestWriter_DeleteRemovesOnlyThatLeaf(t *testing.T) {
	ctx := context.Background()
	store := testkit.NewSQLiteStore(t)
	w := NewWriter(store)
	path := model.SlotsByDayPath("o1", "2024-03")

	if err := w.Apply(ctx,
		LeafOp(path, "2024-03-05", "s1", map[string]any{"id": "s1"}),
		LeafOp(path, "2024-03-05", "s2", map[string]any{"id": "s2"}),
	); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := w.MergeLeaf(ctx, path, "2024-03-05", "s1", Delete); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// deleting again is a no-op
	if err := w.MergeLeaf(ctx, path, "2024-03-05", "s1", Delete); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	want := map[string]any{"2024-03-05": map[string]any{"s2": map[string]any{"id": "s2"}}}
	if got := testkit.Data(t, store, path); !repository.Equal(got, want) {
		t.Fatalf("expected %#v, got %#v", want, got)
	}
}

func TestWriter_RejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	store := testkit.NewSQLiteStore(t)
	w := NewWriter(store)

	for _, keys := range [][2]string{{"", "s1"}, {"2024-03-05", ""}, {"2024.03", "s1"}} {
		if err := w.MergeLeaf(ctx, model.SlotsByDayPath("o1", "2024-03"), keys[0], keys[1], 1); err == nil {
			t.Fatalf("expected error for keys %v", keys)
		}
	}
}

func TestWriter_IncrementOnce(t *testing.T) {
	ctx := context.Background()
	store := testkit.NewSQLiteStore(t)
	w := NewWriter(store)
	counts := model.BookingCountsPath("o1", "2024-03")
	receipt := model.HandlerReceiptPath("o1", "bookingCounts", "ev-1")

	for i := 0; i < 3; i++ {
		applied, err := w.IncrementOnce(ctx, receipt, model.HandlerReceipt{Handler: "bookingCounts", EventID: "ev-1"},
			Increment{Path: counts, Field: "s1", Delta: 1},
			Increment{Path: counts, Field: "s2", Delta: -1},
		)
		if err != nil {
			t.Fatalf("delivery #%d: %v", i, err)
		}
		if applied != (i == 0) {
			t.Fatalf("delivery #%d: applied=%v", i, applied)
		}
	}

	got := testkit.Data(t, store, counts)
	if got["s1"] != int64(1) || got["s2"] != int64(-1) {
		t.Fatalf("expected each increment applied once, got %#v", got)
	}
}

func TestWriter_LeafWritesPublishNothing(t *testing.T) {
	ctx := context.Background()
	rec := &testkit.Recorder{}
	store := testkit.NewSQLiteStore(t, repository.WithPublisher(rec, nil))
	w := NewWriter(store)
	path := model.AttendancePath("o1", "s1")

	if err := w.SetFields(ctx, path,
		repository.SetField("2024-03-05", model.FieldDate),
		repository.SetField("09:00-10:00", model.FieldAttendances, "c1", model.FieldBooked),
	); err != nil {
		t.Fatalf("set fields: %v", err)
	}
	if err := w.MergeLeaf(ctx, path, model.FieldAttendances, "c2", map[string]any{"booked": "10:00-11:00"}); err != nil {
		t.Fatalf("merge leaf: %v", err)
	}
	if err := w.Increment(ctx, model.BookingCountsPath("o1", "2024-03"), "s1", 1); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got := rec.Events(); len(got) != 0 {
		t.Fatalf("aggregate writes must not publish, got %d events", len(got))
	}
	rec.Reset()

	receipt := model.HandlerReceiptPath("o1", "bookingCounts", "e1")
	if _, err := w.IncrementOnce(ctx, receipt, map[string]any{"eventId": "e1"},
		Increment{Path: model.BookingCountsPath("o1", "2024-03"), Field: "s1", Delta: 1}); err != nil {
		t.Fatalf("increment once: %v", err)
	}
	if ev := rec.Last(t, receipt); ev.Before != nil || ev.After["eventId"] != "e1" {
		t.Fatalf("unexpected receipt event %+v", ev)
	}
	if len(rec.Events()) != 1 {
		t.Fatalf("only the receipt creation should publish, got %d events", len(rec.Events()))
	}
}
