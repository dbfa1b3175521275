package calendar

import (
	"errors"
	"testing"
	"time"
)

func mustTime(t *testing.T, year int, month time.Month, day, hour, min, sec int) time.Time {
	t.Helper()
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC)
}

func TestMonthString(t *testing.T) {
	got, err := MonthString("2024-02-29")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "2024-02" {
		t.Fatalf("expected 2024-02, got %q", got)
	}

	if _, err := MonthString("2024-2-29"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestEndOfMonth_LeapYear(t *testing.T) {
	end := EndOfMonth(mustTime(t, 2024, 2, 10, 12, 0, 0))
	want := time.Date(2024, 2, 29, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
	if !end.Equal(want) {
		t.Fatalf("expected %v, got %v", want, end)
	}
}

func TestEndOfDay(t *testing.T) {
	end := EndOfDay(mustTime(t, 2024, 1, 31, 8, 30, 0))
	if end.Day() != 31 || end.Hour() != 23 || end.Minute() != 59 {
		t.Fatalf("unexpected end of day %v", end)
	}
	if !end.Add(time.Nanosecond).Equal(mustTime(t, 2024, 2, 1, 0, 0, 0)) {
		t.Fatalf("end of day must be one nanosecond before midnight, got %v", end)
	}
}

func TestBookingDeadline(t *testing.T) {
	slotDay := mustTime(t, 2024, 2, 15, 0, 0, 0)
	deadline := BookingDeadline(slotDay, 5)

	before := mustTime(t, 2024, 1, 25, 23, 59, 59)
	after := mustTime(t, 2024, 1, 27, 0, 0, 1)

	if !before.Before(deadline) {
		t.Fatalf("expected %v to be before deadline %v", before, deadline)
	}
	if after.Before(deadline) {
		t.Fatalf("expected %v to be after deadline %v", after, deadline)
	}
}

func TestBookingDeadline_January(t *testing.T) {
	deadline := BookingDeadline(mustTime(t, 2025, 1, 3, 0, 0, 0), 0)
	if deadline.Year() != 2024 || deadline.Month() != time.December || deadline.Day() != 31 {
		t.Fatalf("expected end of December 2024, got %v", deadline)
	}
}

func TestSameMonth(t *testing.T) {
	if !SameMonth(mustTime(t, 2024, 2, 1, 0, 0, 0), mustTime(t, 2024, 2, 29, 23, 0, 0)) {
		t.Fatalf("expected same month")
	}
	if SameMonth(mustTime(t, 2024, 2, 1, 0, 0, 0), mustTime(t, 2023, 2, 1, 0, 0, 0)) {
		t.Fatalf("expected different years to differ")
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	p := Paginate(items, 2, 2)
	if len(p.Items) != 2 || p.Items[0] != 3 || !p.HasNext || !p.HasPrev {
		t.Fatalf("unexpected page %+v", p)
	}

	last := Paginate(items, 3, 2)
	if len(last.Items) != 1 || last.HasNext {
		t.Fatalf("unexpected last page %+v", last)
	}
}

func TestChunks(t *testing.T) {
	chunks := Chunks([]string{"a", "b", "c", "d", "e"}, 2)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[2]) != 1 || chunks[2][0] != "e" {
		t.Fatalf("unexpected last chunk %v", chunks[2])
	}
	if got := Chunks([]string{}, 2); len(got) != 0 {
		t.Fatalf("expected no chunks for empty input, got %v", got)
	}
}
