// Package aggregate writes leaves of derived documents without reading
// them back. Every write is scoped to one field path, so handlers updating
// different leaves of the same aggregate never clobber each other.
package aggregate

import (
	"context"
	"errors"

	"github.com/eisbuk/EisBuk-sub003/internal/repository"
)

type deleteSentinel struct{}

// Delete passed as a leaf value removes the leaf.
var Delete any = deleteSentinel{}

// Increment is one counter change.
type Increment struct {
	Path  string
	Field string
	Delta int64
}

type Writer struct {
	store repository.DocumentStore
}

func NewWriter(store repository.DocumentStore) *Writer {
	return &Writer{store: store}
}

// LeafUpdate builds the field update for aggregate[outer][inner].
func LeafUpdate(outer, inner string, value any) repository.FieldUpdate {
	if value == Delete {
		return repository.DeleteField(outer, inner)
	}
	return repository.SetField(value, outer, inner)
}

// LeafOp is LeafUpdate addressed to a document, for batches.
func LeafOp(path, outer, inner string, value any) repository.Op {
	return repository.UpdateOp(path, LeafUpdate(outer, inner, value))
}

// MergeLeaf sets or deletes exactly aggregate[outer][inner]. Containers left
// empty by a delete stay until reconciliation.
func (w *Writer) MergeLeaf(ctx context.Context, path, outer, inner string, value any) error {
	return w.store.UpdateFields(ctx, path, LeafUpdate(outer, inner, value))
}

// SetFields writes several field paths of one document at once.
func (w *Writer) SetFields(ctx context.Context, path string, updates ...repository.FieldUpdate) error {
	return w.store.UpdateFields(ctx, path, updates...)
}

// Apply runs leaf ops on several documents as one atomic batch.
func (w *Writer) Apply(ctx context.Context, ops ...repository.Op) error {
	switch len(ops) {
	case 0:
		return nil
	case 1:
		if ops[0].Kind == repository.OpUpdate {
			return w.store.UpdateFields(ctx, ops[0].Path, ops[0].Updates...)
		}
	}
	return w.store.RunBatch(ctx, ops...)
}

func (w *Writer) Increment(ctx context.Context, path, field string, delta int64) error {
	return w.store.IncrementField(ctx, path, delta, field)
}

// IncrementOnce applies increments together with the creation of a receipt
// document. If the receipt already exists the increments were applied by an
// earlier delivery and nothing happens; applied reports which case it was.
func (w *Writer) IncrementOnce(ctx context.Context, receiptPath string, receipt any, increments ...Increment) (applied bool, err error) {
	err = w.store.RunTransaction(ctx, func(_ context.Context, tx repository.Tx) error {
		applied = false
		if _, err := tx.Get(receiptPath); err == nil {
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if err := tx.Apply(repository.CreateOp(receiptPath, receipt)); err != nil {
			return err
		}
		for _, inc := range increments {
			if inc.Delta == 0 {
				continue
			}
			if err := tx.Apply(repository.IncrementOp(inc.Path, inc.Delta, inc.Field)); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if errors.Is(err, repository.ErrAlreadyExists) {
		// a concurrent delivery won the race for the receipt
		return false, nil
	}
	return applied, err
}
