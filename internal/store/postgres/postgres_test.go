package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// requestRowColumns is the column list for scanRequest results.
var requestRowColumns = []string{
	"id", "session_id", "tool", "tool_input", "status",
	"created_at", "responded_at", "responded_by", "reason", "notified_at",
}

// requestWithTotalColumns is the column list for queryListRequests results.
var requestWithTotalColumns = append([]string{"total_count"}, requestRowColumns...)

func pendingRow(id, sessionID, tool string, createdAt time.Time) []driverValue {
	return []driverValue{id, sessionID, tool, []byte(`{"command":"x"}`), "pending", createdAt, nil, nil, nil, nil}
}

type driverValue = driver.Value

func TestCreateRequest(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Now().UTC()
	req := &model.Request{
		ID:        "apr-abc",
		SessionID: "sess-1",
		Action:    model.Action{Tool: "Bash", Input: json.RawMessage(`{"command":"rm -rf /tmp/x"}`)},
		Status:    model.StatusPending,
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO requests").
		WithArgs(
			req.ID, req.SessionID, "Bash", []byte(`{"command":"rm -rf /tmp/x"}`), "pending",
			now, sql.NullTime{}, sql.NullString{}, sql.NullString{}, sql.NullTime{},
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryCreateRequest(context.Background(), db, req); err != nil {
		t.Fatalf("queryCreateRequest() error: %v", err)
	}
}

func TestGetRequest_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT .+ FROM requests WHERE id = \\$1").
		WithArgs("apr-missing").
		WillReturnRows(sqlmock.NewRows(requestRowColumns))

	_, err := queryGetRequest(context.Background(), db, "apr-missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("queryGetRequest() error = %v, want ErrNotFound", err)
	}
}

func TestGetRequest(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(requestRowColumns).
		AddRow(pendingRow("apr-abc", "sess-1", "Bash", now)...)

	mock.ExpectQuery("SELECT .+ FROM requests WHERE id = \\$1").
		WithArgs("apr-abc").
		WillReturnRows(rows)

	r, err := queryGetRequest(context.Background(), db, "apr-abc")
	if err != nil {
		t.Fatalf("queryGetRequest() error: %v", err)
	}
	if r.ID != "apr-abc" || r.Status != model.StatusPending {
		t.Errorf("got %+v", r)
	}
	if r.RespondedAt != nil || r.NotifiedAt != nil {
		t.Error("pending request must have nil responded_at and notified_at")
	}
}

func TestTransition_Winner(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Now().UTC()
	resolved := sqlmock.NewRows(requestRowColumns).
		AddRow("apr-abc", "sess-1", "Bash", []byte(`{"command":"x"}`), "denied",
			now, now, "alice", "too risky", nil)

	mock.ExpectQuery("UPDATE requests").
		WithArgs("apr-abc", "denied",
			sql.NullString{String: "alice", Valid: true},
			sql.NullString{String: "too risky", Valid: true}).
		WillReturnRows(resolved)

	r, err := queryTransition(context.Background(), db, "apr-abc", model.StatusDenied, "alice", "too risky")
	if err != nil {
		t.Fatalf("queryTransition() error: %v", err)
	}
	if r.Status != model.StatusDenied || r.RespondedBy != "alice" || r.Reason != "too risky" {
		t.Errorf("got %+v", r)
	}
	if r.RespondedAt == nil {
		t.Error("terminal request must carry responded_at")
	}
}

func TestTransition_Conflict(t *testing.T) {
	db, mock := newMockDB(t)

	// CAS misses (no pending row) ...
	mock.ExpectQuery("UPDATE requests").
		WithArgs("apr-abc", "timed_out", sql.NullString{}, sql.NullString{}).
		WillReturnRows(sqlmock.NewRows(requestRowColumns))
	// ... and the follow-up read finds a terminal row.
	mock.ExpectQuery("SELECT status FROM requests WHERE id = \\$1").
		WithArgs("apr-abc").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("denied"))

	_, err := queryTransition(context.Background(), db, "apr-abc", model.StatusTimedOut, "", "")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("queryTransition() error = %v, want ErrConflict", err)
	}
}

func TestTransition_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("UPDATE requests").
		WithArgs("apr-missing", "approved",
			sql.NullString{String: "bob", Valid: true}, sql.NullString{}).
		WillReturnRows(sqlmock.NewRows(requestRowColumns))
	mock.ExpectQuery("SELECT status FROM requests WHERE id = \\$1").
		WithArgs("apr-missing").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	_, err := queryTransition(context.Background(), db, "apr-missing", model.StatusApproved, "bob", "")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("queryTransition() error = %v, want ErrNotFound", err)
	}
}

func TestListPending_CreationOrder(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(requestRowColumns).
		AddRow(pendingRow("apr-first", "s", "Bash", now.Add(-2*time.Minute))...).
		AddRow(pendingRow("apr-second", "s", "Write", now.Add(-1*time.Minute))...)

	mock.ExpectQuery("SELECT .+ FROM requests WHERE status = 'pending' ORDER BY created_at ASC").
		WillReturnRows(rows)

	pending, err := queryListPending(context.Background(), db)
	if err != nil {
		t.Fatalf("queryListPending() error: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "apr-first" || pending[1].ID != "apr-second" {
		t.Errorf("got %d requests, order %v", len(pending), []string{pending[0].ID, pending[1].ID})
	}
}

func TestListUnnotified(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(requestRowColumns).
		AddRow(pendingRow("apr-new", "s", "Bash", now)...)

	mock.ExpectQuery("SELECT .+ FROM requests WHERE status = 'pending' AND notified_at IS NULL").
		WillReturnRows(rows)

	unnotified, err := queryListUnnotified(context.Background(), db)
	if err != nil {
		t.Fatalf("queryListUnnotified() error: %v", err)
	}
	if len(unnotified) != 1 || unnotified[0].ID != "apr-new" {
		t.Errorf("got %+v", unnotified)
	}
}

func TestMarkNotified(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("UPDATE requests").
		WithArgs("apr-abc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryMarkNotified(context.Background(), db, "apr-abc"); err != nil {
		t.Fatalf("queryMarkNotified() error: %v", err)
	}
}

func TestMarkNotified_AlreadyMarked(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("UPDATE requests").
		WithArgs("apr-abc").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("apr-abc").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	// Idempotent: a second mark is a no-op, not an error.
	if err := queryMarkNotified(context.Background(), db, "apr-abc"); err != nil {
		t.Fatalf("queryMarkNotified() error: %v", err)
	}
}

func TestMarkNotified_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("UPDATE requests").
		WithArgs("apr-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("apr-missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	if err := queryMarkNotified(context.Background(), db, "apr-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("queryMarkNotified() error = %v, want ErrNotFound", err)
	}
}

func TestRecordEvent(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO events").
		WithArgs("approvals.request.created", "apr-abc",
			sql.NullString{String: "sess-1", Valid: true}, []byte(`{"request":{}}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))

	e := &model.Event{
		Topic:     "approvals.request.created",
		RequestID: "apr-abc",
		Actor:     "sess-1",
		Payload:   json.RawMessage(`{"request":{}}`),
	}
	if err := queryRecordEvent(context.Background(), db, e); err != nil {
		t.Fatalf("queryRecordEvent() error = %v", err)
	}
	if e.ID != 7 {
		t.Errorf("ID = %d, want 7", e.ID)
	}
	if !e.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", e.CreatedAt, now)
	}
}

func TestGetEvents(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Now().UTC()
	cols := []string{"id", "topic", "request_id", "actor", "payload", "created_at"}
	mock.ExpectQuery("SELECT id, topic, request_id, actor, payload, created_at").
		WithArgs("apr-abc").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), "approvals.request.created", "apr-abc", nil, []byte(`{}`), now).
			AddRow(int64(2), "approvals.request.approved", "apr-abc", "alice", []byte(`{}`), now))

	evts, err := queryGetEvents(context.Background(), db, "apr-abc")
	if err != nil {
		t.Fatalf("queryGetEvents() error = %v", err)
	}
	if len(evts) != 2 {
		t.Fatalf("got %d events, want 2", len(evts))
	}
	if evts[0].Actor != "" {
		t.Errorf("first event actor = %q, want empty", evts[0].Actor)
	}
	if evts[1].Topic != "approvals.request.approved" || evts[1].Actor != "alice" {
		t.Errorf("unexpected second event: %+v", evts[1])
	}
}

func TestStats(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM requests GROUP BY status").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 2).
			AddRow("approved", 5).
			AddRow("denied", 1))
	mock.ExpectQuery("SELECT tool, COUNT\\(\\*\\) FROM requests GROUP BY tool").
		WillReturnRows(sqlmock.NewRows([]string{"tool", "count"}).
			AddRow("Bash", 6).
			AddRow("Write", 2))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM requests").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	stats, err := queryStats(context.Background(), db)
	if err != nil {
		t.Fatalf("queryStats() error: %v", err)
	}
	if stats.Total != 8 {
		t.Errorf("Total = %d, want 8", stats.Total)
	}
	if stats.ByStatus[model.StatusApproved] != 5 || stats.ByTool["Bash"] != 6 || stats.RecentHour != 3 {
		t.Errorf("got %+v", stats)
	}
}

func TestCleanup(t *testing.T) {
	db, mock := newMockDB(t)

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	mock.ExpectExec("DELETE FROM requests").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := queryCleanup(context.Background(), db, cutoff)
	if err != nil {
		t.Fatalf("queryCleanup() error: %v", err)
	}
	if n != 7 {
		t.Errorf("Cleanup() = %d, want 7", n)
	}
}

func TestScanHelpers(t *testing.T) {
	if nullTimePtr(nil).Valid {
		t.Error("nullTimePtr(nil) should be invalid")
	}
	now := time.Now()
	if nt := nullTimePtr(&now); !nt.Valid || !nt.Time.Equal(now) {
		t.Errorf("nullTimePtr(now) = %v", nt)
	}

	if nullString("").Valid {
		t.Error("nullString(\"\") should be invalid")
	}
	if ns := nullString("alice"); !ns.Valid || ns.String != "alice" {
		t.Errorf("nullString(\"alice\") = %v", ns)
	}

	if jsonbBytes(nil) != nil {
		t.Error("jsonbBytes(nil) should be nil")
	}
	input := json.RawMessage(`{"key":"value"}`)
	if string(jsonbBytes(input)) != `{"key":"value"}` {
		t.Errorf("jsonbBytes() = %s", jsonbBytes(input))
	}
}
