package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/groblegark/apgate/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanRequest scans a single row into a model.Request.
// The row must contain columns in the order defined by requestColumns.
func scanRequest(row scannable) (*model.Request, error) {
	var r model.Request
	var (
		toolInput   []byte
		respondedAt sql.NullTime
		respondedBy sql.NullString
		reason      sql.NullString
		notifiedAt  sql.NullTime
	)

	err := row.Scan(
		&r.ID,
		&r.SessionID,
		&r.Action.Tool,
		&toolInput,
		&r.Status,
		&r.CreatedAt,
		&respondedAt,
		&respondedBy,
		&reason,
		&notifiedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(toolInput) > 0 {
		r.Action.Input = json.RawMessage(toolInput)
	}
	r.RespondedBy = respondedBy.String
	r.Reason = reason.String
	if respondedAt.Valid {
		t := respondedAt.Time
		r.RespondedAt = &t
	}
	if notifiedAt.Valid {
		t := notifiedAt.Time
		r.NotifiedAt = &t
	}

	return &r, nil
}

// scanRequestWithTotal scans a row that has a leading total_count column
// followed by the standard request columns. Used by queryListRequests
// with COUNT(*) OVER().
func scanRequestWithTotal(row scannable) (*model.Request, int, error) {
	var total int
	var r model.Request
	var (
		toolInput   []byte
		respondedAt sql.NullTime
		respondedBy sql.NullString
		reason      sql.NullString
		notifiedAt  sql.NullTime
	)

	err := row.Scan(
		&total,
		&r.ID,
		&r.SessionID,
		&r.Action.Tool,
		&toolInput,
		&r.Status,
		&r.CreatedAt,
		&respondedAt,
		&respondedBy,
		&reason,
		&notifiedAt,
	)
	if err != nil {
		return nil, 0, err
	}

	if len(toolInput) > 0 {
		r.Action.Input = json.RawMessage(toolInput)
	}
	r.RespondedBy = respondedBy.String
	r.Reason = reason.String
	if respondedAt.Valid {
		t := respondedAt.Time
		r.RespondedAt = &t
	}
	if notifiedAt.Valid {
		t := notifiedAt.Time
		r.NotifiedAt = &t
	}

	return &r, total, nil
}

// scanRequests scans multiple rows into a slice of model.Request pointers.
func scanRequests(rows *sql.Rows) ([]*model.Request, error) {
	var requests []*model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

// scanEvent scans a single row into a model.Event.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var actor sql.NullString
	var payload []byte
	if err := row.Scan(&e.ID, &e.Topic, &e.RequestID, &actor, &payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Actor = actor.String
	e.Payload = json.RawMessage(payload)
	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// nullTimePtr converts a *time.Time to a sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
