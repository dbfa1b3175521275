// Package testkit builds in-memory stores and feeds for package tests.
package testkit

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/eisbuk/EisBuk-sub003/internal/changefeed"
	"github.com/eisbuk/EisBuk-sub003/internal/db"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/repository"
)

// NewSQLiteStore opens a private in-memory sqlite database with the
// document tables migrated.
func NewSQLiteStore(t *testing.T, opts ...repository.GormOption) *repository.GormDocumentStore {
	t.Helper()

	gdb, err := db.NewSQLiteDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := model.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repository.NewGormDocumentStore(gdb, opts...)
}

// Recorder is a changefeed.Publisher keeping every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []changefeed.Event
}

func (r *Recorder) Publish(_ context.Context, ev changefeed.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns the recorded events in publish order.
func (r *Recorder) Events() []changefeed.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]changefeed.Event(nil), r.events...)
}

// Last returns the latest event for path.
func (r *Recorder) Last(t *testing.T, path string) changefeed.Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Path == path {
			return r.events[i]
		}
	}
	t.Fatalf("no event recorded for %s", path)
	return changefeed.Event{}
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Data fetches a document's data, failing the test when it is missing.
func Data(t *testing.T, store repository.DocumentStore, path string) map[string]any {
	t.Helper()
	doc, err := store.GetDocument(context.Background(), path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	return doc.Data
}
