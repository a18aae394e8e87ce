package client

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultPollInterval matches the cadence a TV app uses on screen.
	DefaultPollInterval = 2500 * time.Millisecond

	// refreshMargin is how close to expiry the watcher stops polling a code
	// and requests a fresh one instead of riding it into the ground.
	refreshMargin = 10 * time.Second
)

// Watcher drives the display-device side of the pairing flow: it keeps a live
// code on screen (refreshing before expiry) and polls until someone consumes
// it. OnActivated fires exactly once, after which the watcher stops.
type Watcher struct {
	client   *Client
	interval time.Duration

	// OnCode is called with every code the watcher issues, including
	// replacements after expiry. Required.
	OnCode func(CodeInfo)

	// OnActivated is called once, with the final status. Required.
	OnActivated func(Status)
}

func NewWatcher(c *Client) *Watcher {
	return &Watcher{
		client:   c,
		interval: DefaultPollInterval,
	}
}

// SetInterval overrides the poll cadence, mainly for tests.
func (w *Watcher) SetInterval(d time.Duration) {
	w.interval = d
}

// Run blocks until the code is activated or ctx is cancelled. It returns nil
// after OnActivated has fired, or ctx.Err() on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := w.client.CreateCode(ctx)
	if err != nil {
		return err
	}
	w.OnCode(*info)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		// Self-healing refresh: a code about to expire is replaced before the
		// server starts answering 404, tracked against the local countdown.
		if time.Until(info.ExpiresAt) < refreshMargin {
			fresh, err := w.client.CreateCode(ctx)
			if err != nil {
				return err
			}
			info = fresh
			w.OnCode(*info)
			continue
		}

		status, err := w.client.Status(ctx, info.Code)
		if errors.Is(err, ErrNotFoundOrExpired) {
			// Server-side expiry beat the local countdown. Start over.
			fresh, err := w.client.CreateCode(ctx)
			if err != nil {
				return err
			}
			info = fresh
			w.OnCode(*info)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transient poll failures are retried on the next tick.
			continue
		}

		if status.IsActivated {
			w.OnActivated(*status)
			return nil
		}
	}
}
