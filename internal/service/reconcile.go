package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/eisbuk/EisBuk-sub003/internal/calendar"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/repository"
)

const reconcileChunkSize = 400

// Report summarizes one reconciliation run of an organization.
type Report struct {
	Organization     string
	LeavesWritten    int
	LeavesDeleted    int
	DocumentsDeleted int
	ReceiptsPruned   int
}

func (r Report) Changed() bool {
	return r.LeavesWritten+r.LeavesDeleted+r.DocumentsDeleted+r.ReceiptsPruned > 0
}

// Reconciler recomputes every aggregate of an organization from the primary
// documents and rewrites whatever differs. It repairs missed or failed
// handler runs and removes empty containers the handlers leave behind.
type Reconciler struct {
	store     repository.DocumentStore
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewReconciler(store repository.DocumentStore, receiptRetention time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, retention: receiptRetention, now: time.Now, logger: logger}
}

// expected aggregate state of one organization
type projection struct {
	slotsByDay map[string]map[string]map[string]any // month -> day -> slotId -> snapshot
	attendance map[string]*model.Attendance         // slotId -> attendance
	counts     map[string]map[string]int            // month -> slotId -> count
}

// PruneAndRebuildAll reconciles every organization. A failing organization
// does not stop the others.
func (r *Reconciler) PruneAndRebuildAll(ctx context.Context) ([]Report, error) {
	orgs, err := r.store.QueryCollection(ctx, model.OrganizationsCollection())
	if err != nil {
		return nil, err
	}

	var (
		reports []Report
		errs    []error
	)
	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := r.PruneAndRebuild(ctx, org.ID)
		if err != nil {
			r.logger.Error("reconcile.failed", "org", org.ID, "error", err)
			errs = append(errs, fmt.Errorf("organization %s: %w", org.ID, err))
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

// PruneAndRebuild recomputes one organization's aggregates from its primary
// documents. The read and the write are not one transaction: a handler
// write landing in between may be overwritten until the next event or run.
func (r *Reconciler) PruneAndRebuild(ctx context.Context, org string) (Report, error) {
	report := Report{Organization: org}

	want, err := r.project(ctx, org)
	if err != nil {
		return report, err
	}

	var ops []repository.Op
	for _, step := range []func(context.Context, string, *projection, *Report) ([]repository.Op, error){
		r.diffSlotsByDay,
		r.diffAttendance,
		r.diffCounts,
		r.pruneReceipts,
	} {
		stepOps, err := step(ctx, org, want, &report)
		if err != nil {
			return report, err
		}
		ops = append(ops, stepOps...)
	}

	for _, chunk := range calendar.Chunks(ops, reconcileChunkSize) {
		if err := r.store.RunBatch(ctx, chunk...); err != nil {
			return report, err
		}
	}

	r.logger.Info("reconcile.done",
		"org", org,
		"leaves_written", report.LeavesWritten,
		"leaves_deleted", report.LeavesDeleted,
		"documents_deleted", report.DocumentsDeleted,
		"receipts_pruned", report.ReceiptsPruned,
	)
	return report, nil
}

func (r *Reconciler) project(ctx context.Context, org string) (*projection, error) {
	p := &projection{
		slotsByDay: map[string]map[string]map[string]any{},
		attendance: map[string]*model.Attendance{},
		counts:     map[string]map[string]int{},
	}

	slots, err := r.store.QueryCollection(ctx, model.SlotsCollection(org))
	if err != nil {
		return nil, err
	}
	for _, doc := range slots {
		var slot model.Slot
		if err := doc.Decode(&slot); err != nil {
			r.logger.Warn("reconcile.slot_skipped", "org", org, "slot_id", doc.ID, "error", err)
			continue
		}
		if slot.Deleted {
			continue
		}
		month, err := calendar.MonthString(slot.Date)
		if err != nil {
			r.logger.Warn("reconcile.slot_skipped", "org", org, "slot_id", doc.ID, "date", slot.Date)
			continue
		}
		slot.ID = doc.ID
		snapshot, err := repository.Normalize(slot)
		if err != nil {
			return nil, err
		}
		days := p.slotsByDay[month]
		if days == nil {
			days = map[string]map[string]any{}
			p.slotsByDay[month] = days
		}
		if days[slot.Date] == nil {
			days[slot.Date] = map[string]any{}
		}
		days[slot.Date][doc.ID] = snapshot
	}

	identities, err := r.store.QueryCollection(ctx, model.BookingsCollection(org))
	if err != nil {
		return nil, err
	}
	for _, doc := range identities {
		var bi model.BookingIdentity
		if err := doc.Decode(&bi); err != nil || bi.ID == "" {
			r.logger.Warn("reconcile.identity_skipped", "org", org, "error", err)
			continue
		}
		secretKey := doc.ID

		booked, err := r.store.QueryCollection(ctx, model.BookedSlotsCollection(org, secretKey))
		if err != nil {
			return nil, err
		}
		for _, b := range booked {
			var interval model.BookedInterval
			if err := b.Decode(&interval); err != nil {
				r.logger.Warn("reconcile.booking_skipped", "org", org, "slot_id", b.ID, "error", err)
				continue
			}
			p.addAttendance(b.ID, bi.ID, interval, true)
			if month, err := calendar.MonthString(interval.Date); err == nil {
				if p.counts[month] == nil {
					p.counts[month] = map[string]int{}
				}
				p.counts[month][b.ID]++
			}
		}

		attended, err := r.store.QueryCollection(ctx, model.AttendedSlotsCollection(org, secretKey))
		if err != nil {
			return nil, err
		}
		for _, a := range attended {
			var interval model.AttendedInterval
			if err := a.Decode(&interval); err != nil {
				r.logger.Warn("reconcile.attendance_skipped", "org", org, "slot_id", a.ID, "error", err)
				continue
			}
			p.addAttendance(a.ID, bi.ID, interval, false)
		}
	}
	return p, nil
}

func (p *projection) addAttendance(slotID, customerID string, interval model.BookedInterval, booked bool) {
	att := p.attendance[slotID]
	if att == nil {
		att = &model.Attendance{Attendances: map[string]model.AttendanceEntry{}}
		p.attendance[slotID] = att
	}
	if booked || att.Date == "" {
		att.Date = interval.Date
	}
	value := interval.Interval
	entry := att.Attendances[customerID]
	if booked {
		entry.Booked = &value
	} else {
		entry.Attended = &value
	}
	att.Attendances[customerID] = entry
}

func (r *Reconciler) diffSlotsByDay(ctx context.Context, org string, want *projection, report *Report) ([]repository.Op, error) {
	docs, err := r.store.QueryCollection(ctx, model.SlotsByDayCollection(org))
	if err != nil {
		return nil, err
	}

	var ops []repository.Op
	existing := map[string]bool{}
	for _, doc := range docs {
		existing[doc.ID] = true
		days := want.slotsByDay[doc.ID]
		if len(days) == 0 {
			ops = append(ops, repository.DeleteOp(doc.Path))
			report.DocumentsDeleted++
			continue
		}

		var updates []repository.FieldUpdate
		for _, day := range unionKeys(doc.Data, days) {
			wantSlots := days[day]
			current, isMap := doc.Data[day].(map[string]any)
			_, present := doc.Data[day]

			switch {
			case len(wantSlots) == 0:
				updates = append(updates, repository.DeleteField(day))
				report.LeavesDeleted += max(len(current), 1)
			case !present || !isMap:
				updates = append(updates, repository.SetField(wantSlots, day))
				report.LeavesWritten += len(wantSlots)
			default:
				for _, slotID := range unionKeys(current, wantSlots) {
					snapshot, ok := wantSlots[slotID]
					if !ok {
						updates = append(updates, repository.DeleteField(day, slotID))
						report.LeavesDeleted++
						continue
					}
					if !repository.Equal(current[slotID], snapshot) {
						updates = append(updates, repository.SetField(snapshot, day, slotID))
						report.LeavesWritten++
					}
				}
			}
		}
		if len(updates) > 0 {
			ops = append(ops, repository.UpdateOp(doc.Path, updates...))
		}
	}

	for _, month := range sortedKeys(want.slotsByDay) {
		if existing[month] {
			continue
		}
		days := want.slotsByDay[month]
		var updates []repository.FieldUpdate
		for _, day := range sortedKeys(days) {
			updates = append(updates, repository.SetField(days[day], day))
			report.LeavesWritten += len(days[day])
		}
		ops = append(ops, repository.UpdateOp(model.SlotsByDayPath(org, month), updates...))
	}
	return ops, nil
}

func (r *Reconciler) diffAttendance(ctx context.Context, org string, want *projection, report *Report) ([]repository.Op, error) {
	docs, err := r.store.QueryCollection(ctx, model.AttendanceCollection(org))
	if err != nil {
		return nil, err
	}

	var ops []repository.Op
	existing := map[string]bool{}
	for _, doc := range docs {
		existing[doc.ID] = true
		wantAtt := want.attendance[doc.ID]
		if wantAtt == nil {
			ops = append(ops, repository.DeleteOp(doc.Path))
			report.DocumentsDeleted++
			continue
		}

		var current model.Attendance
		if err := doc.Decode(&current); err != nil {
			// unreadable aggregate: rewrite it whole
			ops = append(ops, repository.DeleteOp(doc.Path), attendanceOp(doc.Path, wantAtt))
			report.LeavesWritten += len(wantAtt.Attendances)
			continue
		}

		var updates []repository.FieldUpdate
		if current.Date != wantAtt.Date {
			updates = append(updates, repository.SetField(wantAtt.Date, model.FieldDate))
			report.LeavesWritten++
		}
		for _, customerID := range unionKeys(current.Attendances, wantAtt.Attendances) {
			wantEntry, ok := wantAtt.Attendances[customerID]
			if !ok {
				updates = append(updates, repository.DeleteField(model.FieldAttendances, customerID))
				report.LeavesDeleted++
				continue
			}
			if entry, ok := current.Attendances[customerID]; !ok || !sameEntry(entry, wantEntry) {
				updates = append(updates, repository.SetField(wantEntry, model.FieldAttendances, customerID))
				report.LeavesWritten++
			}
		}
		if len(updates) > 0 {
			ops = append(ops, repository.UpdateOp(doc.Path, updates...))
		}
	}

	for _, slotID := range sortedKeys(want.attendance) {
		if existing[slotID] {
			continue
		}
		att := want.attendance[slotID]
		ops = append(ops, attendanceOp(model.AttendancePath(org, slotID), att))
		report.LeavesWritten += len(att.Attendances)
	}
	return ops, nil
}

func attendanceOp(path string, att *model.Attendance) repository.Op {
	updates := []repository.FieldUpdate{repository.SetField(att.Date, model.FieldDate)}
	for _, customerID := range sortedKeys(att.Attendances) {
		updates = append(updates, repository.SetField(att.Attendances[customerID], model.FieldAttendances, customerID))
	}
	return repository.UpdateOp(path, updates...)
}

func sameEntry(a, b model.AttendanceEntry) bool {
	return equalPtr(a.Booked, b.Booked) && equalPtr(a.Attended, b.Attended)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (r *Reconciler) diffCounts(ctx context.Context, org string, want *projection, report *Report) ([]repository.Op, error) {
	docs, err := r.store.QueryCollection(ctx, model.BookingCountsCollection(org))
	if err != nil {
		return nil, err
	}

	var ops []repository.Op
	existing := map[string]bool{}
	for _, doc := range docs {
		existing[doc.ID] = true
		counts := want.counts[doc.ID]
		if len(counts) == 0 {
			ops = append(ops, repository.DeleteOp(doc.Path))
			report.DocumentsDeleted++
			continue
		}

		var updates []repository.FieldUpdate
		for _, slotID := range unionKeys(doc.Data, counts) {
			count, ok := counts[slotID]
			if !ok {
				updates = append(updates, repository.DeleteField(slotID))
				report.LeavesDeleted++
				continue
			}
			if current, ok := doc.Data[slotID].(int64); !ok || current != int64(count) {
				updates = append(updates, repository.SetField(count, slotID))
				report.LeavesWritten++
			}
		}
		if len(updates) > 0 {
			ops = append(ops, repository.UpdateOp(doc.Path, updates...))
		}
	}

	for _, month := range sortedKeys(want.counts) {
		if existing[month] {
			continue
		}
		counts := want.counts[month]
		var updates []repository.FieldUpdate
		for _, slotID := range sortedKeys(counts) {
			updates = append(updates, repository.SetField(counts[slotID], slotID))
			report.LeavesWritten++
		}
		ops = append(ops, repository.UpdateOp(model.BookingCountsPath(org, month), updates...))
	}
	return ops, nil
}

func (r *Reconciler) pruneReceipts(ctx context.Context, org string, _ *projection, report *Report) ([]repository.Op, error) {
	if r.retention <= 0 {
		return nil, nil
	}
	docs, err := r.store.QueryCollection(ctx, model.HandlerReceiptsCollection(org))
	if err != nil {
		return nil, err
	}

	cutoff := r.now().Add(-r.retention)
	var ops []repository.Op
	for _, doc := range docs {
		var receipt model.HandlerReceipt
		if err := doc.Decode(&receipt); err != nil || receipt.CreatedAt.Before(cutoff) {
			ops = append(ops, repository.DeleteOp(doc.Path))
			report.ReceiptsPruned++
		}
	}
	return ops, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unionKeys[A, B any](a map[string]A, b map[string]B) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	return sortedKeys(seen)
}
