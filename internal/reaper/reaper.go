// Package reaper times out stale pending approval requests so nothing waits
// forever. The max age must exceed the hook's client deadline: by the time a
// request is reaped, every waiter has already given up locally.
package reaper

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/groblegark/apgate/internal/events"
	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/store"
)

// Sweeper periodically transitions over-age pending requests to timed_out.
type Sweeper struct {
	store     store.Store
	publisher events.Publisher
	maxAge    time.Duration
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Sweeper that reaps requests older than maxAge, checking at
// the given interval.
func New(s store.Store, p events.Publisher, maxAge, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     s,
		publisher: p,
		maxAge:    maxAge,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins sweeping. The first sweep runs immediately so requests left
// over from a previous process are reaped without waiting a full interval.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the sweeper and waits for the current sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep times out every pending request older than maxAge. Each transition
// goes through the store's compare-and-set, so a human decision landing
// mid-sweep wins and the conflict is simply skipped.
func (s *Sweeper) sweep(ctx context.Context) {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		s.logger.Error("reap sweep failed", "err", err)
		return
	}

	now := time.Now().UTC()
	var reaped int
	for _, r := range pending {
		if r.Age(now) <= s.maxAge {
			continue
		}
		req, err := s.store.Transition(ctx, r.ID, model.StatusTimedOut, "", "")
		if errors.Is(err, store.ErrConflict) {
			// Decided while we were sweeping; the decision stands.
			continue
		}
		if err != nil {
			s.logger.Warn("reap transition failed", "request_id", r.ID, "err", err)
			continue
		}
		reaped++
		event := events.RequestResolved{Request: req}
		if payload, err := json.Marshal(event); err == nil {
			err = s.store.RecordEvent(ctx, &model.Event{
				Topic:     events.TopicRequestTimedOut,
				RequestID: req.ID,
				Payload:   payload,
			})
			if err != nil {
				s.logger.Warn("failed to record timeout event", "request_id", r.ID, "err", err)
			}
		}
		if err := s.publisher.Publish(ctx, events.TopicRequestTimedOut, event); err != nil {
			s.logger.Warn("failed to publish timeout event", "request_id", r.ID, "err", err)
		}
	}

	if reaped > 0 {
		s.logger.Info("reaped stale requests", "count", reaped, "max_age", s.maxAge)
	}
}
