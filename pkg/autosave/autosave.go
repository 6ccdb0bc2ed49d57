// Package autosave persists open weaves some time after they change.
package autosave

import (
	"context"
	"log/slog"
	"time"

	"github.com/nstogner/tapestry/pkg/document"
	"github.com/nstogner/tapestry/pkg/ulid"
)

const minTick = 10 * time.Millisecond

// Controller subscribes to document events and saves a weave once it has
// had unsaved changes for at least the configured delay.
type Controller struct {
	manager *document.Manager
	delay   time.Duration
	now     func() time.Time
}

// New creates a new Controller.
func New(manager *document.Manager, delay time.Duration) *Controller {
	return &Controller{manager: manager, delay: delay, now: time.Now}
}

// Start runs the control loop until ctx is done or the manager stops.
// Pending weaves are saved before returning.
func (c *Controller) Start(ctx context.Context) error {
	sub, events := c.manager.Subscribe()
	defer c.manager.Unsubscribe(sub)

	tick := c.delay / 4
	if tick < minTick {
		tick = minTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	// First unsaved change per weave.
	pending := make(map[ulid.ID]time.Time)

	for {
		select {
		case <-ctx.Done():
			c.sweep(pending)
			c.flush(context.WithoutCancel(ctx), pending, time.Time{})
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				c.sweep(pending)
				c.flush(ctx, pending, time.Time{})
				return nil
			}
			switch ev.Kind {
			case document.EventChanged:
				if _, ok := pending[ev.Weave]; !ok {
					pending[ev.Weave] = c.now()
				}
			case document.EventSaved, document.EventClosed, document.EventDeleted:
				delete(pending, ev.Weave)
			}
		case <-ticker.C:
			c.sweep(pending)
			c.flush(ctx, pending, c.now().Add(-c.delay))
		}
	}
}

// sweep adds dirty open weaves that have no pending entry. Events are
// delivered best effort, so the flag on the document is authoritative.
func (c *Controller) sweep(pending map[ulid.ID]time.Time) {
	for _, doc := range c.manager.Documents() {
		if _, ok := pending[doc.ID()]; !ok && doc.Changed() {
			pending[doc.ID()] = c.now()
		}
	}
}

// flush saves pending weaves first changed at or before cutoff; a zero
// cutoff saves all of them. A failed save is retried after another delay.
func (c *Controller) flush(ctx context.Context, pending map[ulid.ID]time.Time, cutoff time.Time) {
	for id, since := range pending {
		if !cutoff.IsZero() && since.After(cutoff) {
			continue
		}
		if err := c.step(ctx, id); err != nil {
			slog.Error("Autosave failed", "id", id, "error", err)
			pending[id] = c.now()
			continue
		}
		delete(pending, id)
	}
}

// step saves one weave if it is still open and dirty.
func (c *Controller) step(ctx context.Context, id ulid.ID) error {
	doc, ok := c.manager.Get(id)
	if !ok || !doc.Changed() {
		return nil
	}
	rev, err := c.manager.Save(ctx, id)
	if err != nil {
		return err
	}
	slog.Debug("Autosaved weave", "id", id, "revision", rev.ID)
	return nil
}
