package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/eisbuk/EisBuk-sub003/internal/changefeed"
	"github.com/eisbuk/EisBuk-sub003/internal/identity"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/repository"
	"github.com/eisbuk/EisBuk-sub003/internal/testkit"
	"github.com/eisbuk/EisBuk-sub003/internal/trigger"
)

const org = "o1"

// harness wires store, memory feed and handlers the way the worker does;
// events are delivered synchronously after every committed write.
type harness struct {
	t        *testing.T
	ctx      context.Context
	store    *repository.GormDocumentStore
	handlers *Handlers
	minted   *sequenceMinter
}

type sequenceMinter struct {
	mu    sync.Mutex
	calls int
	fixed string
}

func (m *sequenceMinter) MintCapabilityToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fixed != "" {
		return m.fixed, nil
	}
	return fmt.Sprintf("key-%d", m.calls), nil
}

func (m *sequenceMinter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := testkit.Logger()
	feed := changefeed.NewMemory()
	reg := trigger.NewRegistry(logger)
	store := testkit.NewSQLiteStore(t, repository.WithPublisher(feed, reg.Matches), repository.WithGormLogger(logger))

	minter := &sequenceMinter{}
	handlers := NewHandlers(store, minter, logger)
	handlers.Register(reg)
	feed.Attach(reg.Dispatch)

	return &harness{t: t, ctx: context.Background(), store: store, handlers: handlers, minted: minter}
}

var _ identity.TokenMinter = (*sequenceMinter)(nil)

func (h *harness) set(path string, data any) {
	h.t.Helper()
	if err := h.store.SetDocument(h.ctx, path, data, false); err != nil {
		h.t.Fatalf("set %s: %v", path, err)
	}
}

func (h *harness) remove(path string) {
	h.t.Helper()
	if err := h.store.DeleteDocument(h.ctx, path); err != nil {
		h.t.Fatalf("delete %s: %v", path, err)
	}
}

func (h *harness) data(path string) map[string]any {
	h.t.Helper()
	return testkit.Data(h.t, h.store, path)
}

func (h *harness) exists(path string) bool {
	h.t.Helper()
	doc, err := h.store.GetDocument(h.ctx, path)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.t.Fatalf("get %s: %v", path, err)
	}
	return doc != nil
}

func (h *harness) decode(path string, out any) {
	h.t.Helper()
	if err := repository.Decode(h.data(path), out); err != nil {
		h.t.Fatalf("decode %s: %v", path, err)
	}
}

// customer creates a customer and returns the secret key the bridge gave it.
func (h *harness) customer(id string, category model.Category) string {
	h.t.Helper()
	h.set(model.CustomerPath(org, id), model.Customer{Name: "Name " + id, Surname: "Surname", Category: category})

	var c model.Customer
	h.decode(model.CustomerPath(org, id), &c)
	if c.SecretKey == "" {
		h.t.Fatalf("customer %s got no secret key", id)
	}
	return c.SecretKey
}

func intPtr(v int) *int { return &v }

func testSlot(date string, capacity *int) model.Slot {
	return model.Slot{
		Date:       date,
		Type:       "ice",
		Categories: []model.Category{model.CategoryCourse, model.CategoryCourseAdults},
		Intervals: map[string]model.Interval{
			"09:00-10:00": {StartTime: "09:00", EndTime: "10:00"},
			"10:00-11:00": {StartTime: "10:00", EndTime: "11:00"},
		},
		Capacity: capacity,
	}
}
