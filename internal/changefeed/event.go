// Package changefeed carries document change notifications from the primary
// store to the aggregate handlers. Delivery is at-least-once and unordered
// across documents.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event describes one committed document write. Before is nil when the
// document did not exist, After is nil when it was deleted.
type Event struct {
	ID         string         `json:"id"`
	Path       string         `json:"path"`
	Before     map[string]any `json:"before"`
	After      map[string]any `json:"after"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// NewEvent stamps a change with a fresh id.
func NewEvent(path string, before, after map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Path:       path,
		Before:     before,
		After:      after,
		OccurredAt: time.Now().UTC(),
	}
}

func (e Event) Kind() Kind {
	switch {
	case e.Before == nil:
		return KindCreate
	case e.After == nil:
		return KindDelete
	default:
		return KindUpdate
	}
}

// Handler consumes one event. A nil error acknowledges it.
type Handler func(ctx context.Context, ev Event) error

// Publisher hands committed changes to the transport.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber delivers events to h until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) error
}

func encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	return data, nil
}

func decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
