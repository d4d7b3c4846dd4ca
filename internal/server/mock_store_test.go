package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/store"
)

// mockStore is an in-memory Store for server tests. A mutex guards every
// operation so the atomic-transition tests can race it from goroutines.
type mockStore struct {
	mu       sync.Mutex
	requests map[string]*model.Request
	events   []*model.Event

	// transitionErr, when non-nil, is returned by Transition.
	transitionErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		requests: make(map[string]*model.Request),
	}
}

func (m *mockStore) RecordEvent(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *e
	clone.ID = int64(len(m.events) + 1)
	clone.CreatedAt = time.Now().UTC()
	m.events = append(m.events, &clone)
	return nil
}

func (m *mockStore) GetEvents(_ context.Context, requestID string) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Event
	for _, e := range m.events {
		if e.RequestID == requestID {
			clone := *e
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (m *mockStore) CreateRequest(_ context.Context, r *model.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *r
	m.requests[r.ID] = &clone
	return nil
}

func (m *mockStore) GetRequest(_ context.Context, id string) (*model.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (m *mockStore) ListRequests(_ context.Context, filter model.Filter) ([]*model.Request, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Request
	for _, r := range m.requests {
		if len(filter.Status) > 0 {
			found := false
			for _, s := range filter.Status {
				if r.Status == s {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if filter.SessionID != "" && r.SessionID != filter.SessionID {
			continue
		}
		if filter.Tool != "" && r.Action.Tool != filter.Tool {
			continue
		}
		clone := *r
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	total := len(result)
	if filter.Offset > 0 && filter.Offset < len(result) {
		result = result[filter.Offset:]
	} else if filter.Offset >= len(result) {
		result = nil
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, total, nil
}

func (m *mockStore) ListPending(ctx context.Context) ([]*model.Request, error) {
	pending, _, err := m.ListRequests(ctx, model.Filter{Status: []model.Status{model.StatusPending}})
	return pending, err
}

func (m *mockStore) ListUnnotified(ctx context.Context) ([]*model.Request, error) {
	pending, err := m.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	var result []*model.Request
	for _, r := range pending {
		if r.NotifiedAt == nil {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockStore) Transition(_ context.Context, id string, target model.Status, respondedBy, reason string) (*model.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transitionErr != nil {
		return nil, m.transitionErr
	}
	r, ok := m.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if r.Status != model.StatusPending {
		return nil, fmt.Errorf("%w (status %s)", store.ErrConflict, r.Status)
	}
	now := time.Now().UTC()
	r.Status = target
	r.RespondedAt = &now
	r.RespondedBy = respondedBy
	r.Reason = reason
	clone := *r
	return &clone, nil
}

func (m *mockStore) MarkNotified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return store.ErrNotFound
	}
	if r.NotifiedAt == nil {
		now := time.Now().UTC()
		r.NotifiedAt = &now
	}
	return nil
}

func (m *mockStore) Stats(_ context.Context) (*model.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &model.Stats{
		ByStatus: make(map[model.Status]int),
		ByTool:   make(map[string]int),
	}
	cutoff := time.Now().UTC().Add(-time.Hour)
	for _, r := range m.requests {
		stats.ByStatus[r.Status]++
		stats.ByTool[r.Action.Tool]++
		stats.Total++
		if r.CreatedAt.After(cutoff) {
			stats.RecentHour++
		}
	}
	return stats, nil
}

func (m *mockStore) Cleanup(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int
	for id, r := range m.requests {
		if r.CreatedAt.Before(before) && r.Status != model.StatusPending {
			delete(m.requests, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockStore) Close() error { return nil }
