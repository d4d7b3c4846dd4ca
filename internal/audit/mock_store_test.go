package audit

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStore is a minimal in-memory Store for export tests.
type mockStore struct {
	requests []*model.Request
	listErr  error
}

func (m *mockStore) CreateRequest(_ context.Context, r *model.Request) error {
	m.requests = append(m.requests, r)
	return nil
}

func (m *mockStore) GetRequest(_ context.Context, id string) (*model.Request, error) {
	for _, r := range m.requests {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) ListRequests(_ context.Context, _ model.Filter) ([]*model.Request, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return append([]*model.Request(nil), m.requests...), len(m.requests), nil
}

func (m *mockStore) ListPending(_ context.Context) ([]*model.Request, error) { return nil, nil }

func (m *mockStore) ListUnnotified(_ context.Context) ([]*model.Request, error) { return nil, nil }

func (m *mockStore) Transition(_ context.Context, _ string, _ model.Status, _, _ string) (*model.Request, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) MarkNotified(_ context.Context, _ string) error { return nil }

func (m *mockStore) RecordEvent(_ context.Context, _ *model.Event) error { return nil }

func (m *mockStore) GetEvents(_ context.Context, _ string) ([]*model.Event, error) { return nil, nil }

func (m *mockStore) Stats(_ context.Context) (*model.Stats, error) { return &model.Stats{}, nil }

func (m *mockStore) Cleanup(_ context.Context, _ time.Time) (int, error) { return 0, nil }

func (m *mockStore) Close() error { return nil }
