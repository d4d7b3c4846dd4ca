// Package dispatch delivers pending approval requests to responders. The
// dispatcher sweeps the store for requests that have never been announced,
// notifies each one, and durably marks it notified so a restart never
// re-announces the whole backlog.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/groblegark/apgate/internal/events"
	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/store"
)

// Notifier delivers a single pending request to responders.
type Notifier interface {
	Notify(ctx context.Context, r *model.Request) error
}

// EventNotifier announces pending requests on the event bus.
type EventNotifier struct {
	publisher events.Publisher
}

// NewEventNotifier returns a Notifier that publishes each pending request to
// the approvals.request.pending topic.
func NewEventNotifier(p events.Publisher) *EventNotifier {
	return &EventNotifier{publisher: p}
}

func (n *EventNotifier) Notify(ctx context.Context, r *model.Request) error {
	return n.publisher.Publish(ctx, events.TopicRequestPending, events.RequestPending{Request: r})
}

// LogNotifier writes pending requests to the log. Used when no event bus is
// configured so operators still see what is waiting.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, r *model.Request) error {
	n.logger.Info("approval needed",
		"request_id", r.ID,
		"session_id", r.SessionID,
		"action", r.Action.Text(),
	)
	return nil
}

// Dispatcher periodically sweeps for unnotified pending requests.
type Dispatcher struct {
	store    store.Store
	notifier Notifier
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Dispatcher that sweeps at the given interval.
func New(s store.Store, n Notifier, interval time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    s,
		notifier: n,
		interval: interval,
		logger:   logger,
	}
}

// Start begins sweeping. The first sweep runs immediately so a backlog left
// by a previous process is delivered without waiting a full interval.
func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
}

// Stop cancels the dispatcher and waits for the current sweep to finish.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	d.sweep(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

// sweep notifies every unnotified pending request, marking each one after
// its notification succeeds. A failed notification leaves the request
// unmarked so the next sweep retries it.
func (d *Dispatcher) sweep(ctx context.Context) {
	requests, err := d.store.ListUnnotified(ctx)
	if err != nil {
		d.logger.Error("dispatch sweep failed", "err", err)
		return
	}

	for _, r := range requests {
		if err := d.notifier.Notify(ctx, r); err != nil {
			d.logger.Warn("notify failed", "request_id", r.ID, "err", err)
			continue
		}
		if err := d.store.MarkNotified(ctx, r.ID); err != nil {
			d.logger.Warn("mark notified failed", "request_id", r.ID, "err", err)
		}
	}
}
