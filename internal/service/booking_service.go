package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eisbuk/EisBuk-sub003/internal/admission"
	"github.com/eisbuk/EisBuk-sub003/internal/calendar"
	apperrors "github.com/eisbuk/EisBuk-sub003/internal/errors"
	"github.com/eisbuk/EisBuk-sub003/internal/identity"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/repository"
)

// BookingService is the server-side write path for customer bookings. It
// re-runs admission with the freshest state right before writing.
//
// The count is read and the booking written without a transaction, so two
// concurrent requests for the last place may both be admitted.
type BookingService struct {
	store  repository.DocumentStore
	admins identity.AdminChecker
	policy admission.Policy
	now    func() time.Time
	logger *slog.Logger
}

func NewBookingService(
	store repository.DocumentStore,
	admins identity.AdminChecker,
	policy admission.Policy,
	logger *slog.Logger,
) *BookingService {
	return &BookingService{
		store:  store,
		admins: admins,
		policy: policy,
		now:    time.Now,
		logger: logger,
	}
}

// Policy is the admission policy bookings are checked against.
func (s *BookingService) Policy() admission.Policy {
	return s.policy
}

type BookRequest struct {
	Organization string
	SecretKey    string
	SlotID       string
	Interval     string
	// Date is optional; when set it must match the slot.
	Date         string
	BookingNotes string
	// Principal is the authenticated caller, empty for customers using
	// their booking link.
	Principal string
}

// BookInterval admits and writes bookings/{secretKey}/bookedSlots/{slotId}.
// A denial is returned as a Decision, not an error.
func (s *BookingService) BookInterval(ctx context.Context, req BookRequest) (admission.Decision, error) {
	bi, err := s.activeIdentity(ctx, req.Organization, req.SecretKey)
	if err != nil {
		return admission.Decision{}, err
	}

	var slot model.Slot
	slotExists, err := getDocument(ctx, s.store, model.SlotPath(req.Organization, req.SlotID), &slot)
	if err != nil {
		return admission.Decision{}, err
	}
	var slotRef *model.Slot
	if slotExists {
		slot.ID = req.SlotID
		slotRef = &slot
	}

	count := 0
	if slotExists && !slot.Deleted {
		if count, err = s.currentCount(ctx, req.Organization, slot); err != nil {
			return admission.Decision{}, err
		}
	}

	var existing model.BookedInterval
	alreadyBooked, err := getDocument(ctx, s.store, model.BookedSlotPath(req.Organization, req.SecretKey, req.SlotID), &existing)
	if err != nil {
		return admission.Decision{}, err
	}

	isAdmin, err := s.isAdmin(ctx, req.Organization, req.Principal)
	if err != nil {
		return admission.Decision{}, err
	}

	decision := admission.Admit(s.policy, admission.Request{
		Customer:      admission.Customer{Category: bi.Category, ExtendedDate: bi.ExtendedDate},
		Slot:          slotRef,
		Interval:      req.Interval,
		Date:          req.Date,
		CurrentCount:  count,
		AlreadyBooked: alreadyBooked,
		Now:           s.now(),
		IsAdmin:       isAdmin,
	})
	if !decision.Allowed {
		s.logger.Info("booking.denied", "org", req.Organization, "slot_id", req.SlotID, "reason", string(decision.Reason))
		return decision, nil
	}

	booking := model.BookedInterval{Date: slot.Date, Interval: req.Interval, BookingNotes: req.BookingNotes}
	if err := s.store.SetDocument(ctx, model.BookedSlotPath(req.Organization, req.SecretKey, req.SlotID), booking, false); err != nil {
		return admission.Decision{}, err
	}
	s.logger.Info("booking.created", "org", req.Organization, "slot_id", req.SlotID, "interval", req.Interval)
	return decision, nil
}

// CancelBooking deletes a booking while the month is still open. Admins may
// cancel at any time. Cancelling a missing booking is allowed and a no-op.
func (s *BookingService) CancelBooking(ctx context.Context, org, secretKey, slotID, principal string) (admission.Decision, error) {
	bi, err := s.activeIdentity(ctx, org, secretKey)
	if err != nil {
		return admission.Decision{}, err
	}

	path := model.BookedSlotPath(org, secretKey, slotID)
	var booking model.BookedInterval
	exists, err := getDocument(ctx, s.store, path, &booking)
	if err != nil {
		return admission.Decision{}, err
	}
	if !exists {
		return admission.Allow(), nil
	}

	isAdmin, err := s.isAdmin(ctx, org, principal)
	if err != nil {
		return admission.Decision{}, err
	}
	decision := admission.CheckDeadline(s.policy, booking.Date, bi.ExtendedDate, s.now(), isAdmin)
	if !decision.Allowed {
		s.logger.Info("booking.cancel_denied", "org", org, "slot_id", slotID, "reason", string(decision.Reason))
		return decision, nil
	}

	if err := s.store.DeleteDocument(ctx, path); err != nil {
		return admission.Decision{}, err
	}
	s.logger.Info("booking.cancelled", "org", org, "slot_id", slotID)
	return decision, nil
}

func (s *BookingService) activeIdentity(ctx context.Context, org, secretKey string) (*model.BookingIdentity, error) {
	bi, err := resolveIdentity(ctx, s.store, org, secretKey)
	if err != nil {
		return nil, err
	}
	if bi.Deleted {
		return nil, apperrors.Referential(apperrors.CodeIdentityNotFound, "booking identity was deleted")
	}
	return bi, nil
}

func (s *BookingService) currentCount(ctx context.Context, org string, slot model.Slot) (int, error) {
	month, err := calendar.MonthString(slot.Date)
	if err != nil {
		// admission rejects undated slots on the deadline check
		return 0, nil
	}
	var counts model.BookingCounts
	if _, err := getDocument(ctx, s.store, model.BookingCountsPath(org, month), &counts); err != nil {
		return 0, err
	}
	return counts[slot.ID], nil
}

func (s *BookingService) isAdmin(ctx context.Context, org, principal string) (bool, error) {
	if principal == "" {
		return false, nil
	}
	ok, err := s.admins.IsAdmin(ctx, org, principal)
	if errors.Is(err, identity.ErrInvalidPrincipal) {
		return false, nil
	}
	return ok, err
}
