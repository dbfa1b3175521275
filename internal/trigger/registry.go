// Package trigger routes change events to the handlers subscribed to the
// changed document's path pattern.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eisbuk/EisBuk-sub003/internal/changefeed"
	apperrors "github.com/eisbuk/EisBuk-sub003/internal/errors"
)

// HandlerFunc reacts to one change of a document matching its pattern.
type HandlerFunc func(ctx context.Context, ev changefeed.Event, params Params) error

type route struct {
	name    string
	pattern pattern
	handler HandlerFunc
}

type Registry struct {
	mu     sync.RWMutex
	routes []route
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// OnChange subscribes h to create, update and delete events of documents
// matching pattern. It panics on a malformed pattern.
func (r *Registry) OnChange(rawPattern, name string, h HandlerFunc) {
	p, err := parsePattern(rawPattern)
	if err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{name: name, pattern: p, handler: h})
}

// Matches reports whether any handler listens to path.
func (r *Registry) Matches(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.routes {
		if _, ok := rt.pattern.match(path); ok {
			return true
		}
	}
	return false
}

// Dispatch runs every matching handler concurrently and waits for all of
// them. A failing handler does not cancel the others; all failures are
// returned joined. It satisfies changefeed.Handler.
func (r *Registry) Dispatch(ctx context.Context, ev changefeed.Event) error {
	r.mu.RLock()
	routes := append([]route(nil), r.routes...)
	r.mu.RUnlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, rt := range routes {
		params, ok := rt.pattern.match(ev.Path)
		if !ok {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			err := rt.handler(ctx, ev, params)
			if err == nil {
				r.logger.Debug("trigger.handled",
					"handler", rt.name, "event_id", ev.ID, "path", ev.Path,
					"kind", string(ev.Kind()), "took", time.Since(start))
				return nil
			}

			r.logger.Error("trigger.handler_failed",
				"handler", rt.name, "event_id", ev.ID, "path", ev.Path,
				"error_kind", apperrors.KindOf(err).String(), "error", err)
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", rt.name, err))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
