package service

import (
	"testing"

	"github.com/eisbuk/EisBuk-sub003/internal/changefeed"
	apperrors "github.com/eisbuk/EisBuk-sub003/internal/errors"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/trigger"
)

func customerParams(customerID string) trigger.Params {
	return trigger.Params{model.ParamOrganization: org, model.ParamCustomerID: customerID}
}

func TestIdentityBridge_AssignsKeyOnce(t *testing.T) {
	h := newHarness(t)

	key := h.customer("c1", model.CategoryCourse)
	if key != "key-1" {
		t.Fatalf("expected key-1, got %q", key)
	}

	var bi model.BookingIdentity
	h.decode(model.BookingIdentityPath(org, key), &bi)
	if bi.ID != "c1" || bi.Name != "Name c1" || bi.Category != model.CategoryCourse || bi.Deleted {
		t.Fatalf("unexpected identity: %+v", bi)
	}

	// redelivering the original create mints nothing new
	ev := changefeed.NewEvent(model.CustomerPath(org, "c1"), nil, map[string]any{"name": "Name c1"})
	if err := h.handlers.Identity.Handle(h.ctx, ev, customerParams("c1")); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if h.minted.count() != 1 {
		t.Fatalf("expected one mint, got %d", h.minted.count())
	}
}

func TestIdentityBridge_UpdateOverwritesOwnFieldsOnly(t *testing.T) {
	h := newHarness(t)
	key := h.customer("c1", model.CategoryCourse)

	h.set(model.BookedSlotPath(org, key, "s1"), model.BookedInterval{Date: "2024-03-05", Interval: "09:00-10:00"})

	var c model.Customer
	h.decode(model.CustomerPath(org, "c1"), &c)
	c.Surname = "Renamed"
	c.Category = model.CategoryCourseAdults
	c.ExtendedDate = "2024-03-02"
	h.set(model.CustomerPath(org, "c1"), c)

	var bi model.BookingIdentity
	h.decode(model.BookingIdentityPath(org, key), &bi)
	if bi.Surname != "Renamed" || bi.Category != model.CategoryCourseAdults || bi.ExtendedDate != "2024-03-02" {
		t.Fatalf("identity not refreshed: %+v", bi)
	}
	if !h.exists(model.BookedSlotPath(org, key, "s1")) {
		t.Fatalf("booked interval under the identity must survive")
	}
}

func TestIdentityBridge_Collision(t *testing.T) {
	h := newHarness(t)
	h.minted.fixed = "taken"

	// identity documents are not observed, so this write triggers nothing
	h.set(model.BookingIdentityPath(org, "taken"), model.BookingIdentity{ID: "someone-else", Name: "Zed"})
	h.set(model.CustomerPath(org, "c1"), model.Customer{Name: "Ana", Category: model.CategoryCourse})

	err := h.handlers.Identity.Handle(h.ctx,
		changefeed.NewEvent(model.CustomerPath(org, "c1"), nil, map[string]any{"name": "Ana"}),
		customerParams("c1"))
	if apperrors.KindOf(err) != apperrors.KindCollision {
		t.Fatalf("expected collision, got %v", err)
	}
	if !apperrors.IsPermanent(err) {
		t.Fatalf("collision must not be redelivered")
	}

	var bi model.BookingIdentity
	h.decode(model.BookingIdentityPath(org, "taken"), &bi)
	if bi.ID != "someone-else" || bi.Name != "Zed" {
		t.Fatalf("existing identity was overwritten: %+v", bi)
	}
	var c model.Customer
	h.decode(model.CustomerPath(org, "c1"), &c)
	if c.SecretKey != "" {
		t.Fatalf("customer must not receive a colliding key, got %q", c.SecretKey)
	}
}

func TestIdentityBridge_ForeignKeyOnCustomerIsCollision(t *testing.T) {
	h := newHarness(t)
	h.set(model.BookingIdentityPath(org, "k-other"), model.BookingIdentity{ID: "c9"})

	// an admin copies another customer's key; the bridge refuses to take it over
	h.set(model.CustomerPath(org, "c1"), model.Customer{Name: "Ana", SecretKey: "k-other"})
	err := h.handlers.Identity.Handle(h.ctx,
		changefeed.NewEvent(model.CustomerPath(org, "c1"), nil, map[string]any{"secretKey": "k-other"}),
		customerParams("c1"))
	if apperrors.KindOf(err) != apperrors.KindCollision {
		t.Fatalf("expected collision, got %v", err)
	}

	var bi model.BookingIdentity
	h.decode(model.BookingIdentityPath(org, "k-other"), &bi)
	if bi.ID != "c9" {
		t.Fatalf("identity taken over: %+v", bi)
	}
}

func TestIdentityBridge_DeletionTombstones(t *testing.T) {
	h := newHarness(t)
	key := h.customer("c1", model.CategoryCourse)

	h.remove(model.CustomerPath(org, "c1"))

	var bi model.BookingIdentity
	h.decode(model.BookingIdentityPath(org, key), &bi)
	if !bi.Deleted || bi.ID != "c1" {
		t.Fatalf("expected tombstone keeping the customer id, got %+v", bi)
	}
}

func TestIdentityBridge_SoftDeleteTombstones(t *testing.T) {
	h := newHarness(t)
	key := h.customer("c1", model.CategoryCourse)

	var c model.Customer
	h.decode(model.CustomerPath(org, "c1"), &c)
	c.Deleted = true
	h.set(model.CustomerPath(org, "c1"), c)

	var bi model.BookingIdentity
	h.decode(model.BookingIdentityPath(org, key), &bi)
	if !bi.Deleted || bi.ID != "c1" {
		t.Fatalf("expected tombstone, got %+v", bi)
	}
}

func TestIdentityBridge_KeyRotation(t *testing.T) {
	h := newHarness(t)
	oldKey := h.customer("c1", model.CategoryCourse)

	var c model.Customer
	h.decode(model.CustomerPath(org, "c1"), &c)
	c.SecretKey = "rotated"
	h.set(model.CustomerPath(org, "c1"), c)

	var old, fresh model.BookingIdentity
	h.decode(model.BookingIdentityPath(org, oldKey), &old)
	h.decode(model.BookingIdentityPath(org, "rotated"), &fresh)
	if !old.Deleted || old.ID != "c1" {
		t.Fatalf("old identity should be tombstoned, got %+v", old)
	}
	if fresh.Deleted || fresh.ID != "c1" {
		t.Fatalf("new identity should be live, got %+v", fresh)
	}
}

func TestIdentityBridge_ClearedKeyIsRetired(t *testing.T) {
	h := newHarness(t)
	oldKey := h.customer("c1", model.CategoryCourse)

	var c model.Customer
	h.decode(model.CustomerPath(org, "c1"), &c)
	c.SecretKey = ""
	h.set(model.CustomerPath(org, "c1"), c)

	h.decode(model.CustomerPath(org, "c1"), &c)
	if c.SecretKey == "" || c.SecretKey == oldKey {
		t.Fatalf("expected a fresh key, got %q", c.SecretKey)
	}

	var old, fresh model.BookingIdentity
	h.decode(model.BookingIdentityPath(org, oldKey), &old)
	h.decode(model.BookingIdentityPath(org, c.SecretKey), &fresh)
	if !old.Deleted || old.ID != "c1" {
		t.Fatalf("old identity should be tombstoned, got %+v", old)
	}
	if fresh.Deleted || fresh.ID != "c1" {
		t.Fatalf("new identity should be live, got %+v", fresh)
	}

	svc := newBookingService(h, beforeDeadline)
	h.set(model.SlotPath(org, "s1"), testSlot("2024-03-05", nil))
	_, err := svc.BookInterval(h.ctx, BookRequest{Organization: org, SecretKey: oldKey, SlotID: "s1", Interval: "09:00-10:00"})
	if !apperrors.IsCode(err, apperrors.CodeIdentityNotFound) {
		t.Fatalf("old key should no longer book, got %v", err)
	}
	if d := book(t, svc, BookRequest{Organization: org, SecretKey: c.SecretKey, SlotID: "s1", Interval: "09:00-10:00"}); !d.Allowed {
		t.Fatalf("new key should book, got %+v", d)
	}
}
