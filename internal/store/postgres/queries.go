package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/store"
)

// requestColumns is the column list used for SELECT statements on the
// requests table.
const requestColumns = `id, session_id, tool, tool_input, status,
	created_at, responded_at, responded_by, reason, notified_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateRequest(ctx context.Context, db executor, r *model.Request) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO requests (
			id, session_id, tool, tool_input, status,
			created_at, responded_at, responded_by, reason, notified_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)`,
		r.ID,
		r.SessionID,
		r.Action.Tool,
		jsonbBytes(r.Action.Input),
		string(r.Status),
		r.CreatedAt,
		nullTimePtr(r.RespondedAt),
		nullString(r.RespondedBy),
		nullString(r.Reason),
		nullTimePtr(r.NotifiedAt),
	)
	return err
}

func queryGetRequest(ctx context.Context, db executor, id string) (*model.Request, error) {
	row := db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return r, err
}

func queryListRequests(ctx context.Context, db executor, filter model.Filter) ([]*model.Request, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = nextArg()
			args = append(args, string(s))
		}
		whereClauses = append(whereClauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.SessionID != "" {
		whereClauses = append(whereClauses, "session_id = "+nextArg())
		args = append(args, filter.SessionID)
	}

	if filter.Tool != "" {
		whereClauses = append(whereClauses, "tool = "+nextArg())
		args = append(args, filter.Tool)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + requestColumns +
		" FROM requests" + whereSQL + " ORDER BY created_at ASC"

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.Request
	var total int
	for rows.Next() {
		r, t, err := scanRequestWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan requests: %w", err)
		}
		total = t
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan requests: %w", err)
	}

	return requests, total, nil
}

func queryListPending(ctx context.Context, db executor) ([]*model.Request, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE status = 'pending'
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

func queryListUnnotified(ctx context.Context, db executor) ([]*model.Request, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE status = 'pending' AND notified_at IS NULL
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list unnotified: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

// queryTransition performs the atomic pending-to-terminal compare-and-set.
// The WHERE clause on status closes the race between a human response and
// a reaper timeout arriving concurrently: exactly one UPDATE matches.
func queryTransition(ctx context.Context, db executor, id string, target model.Status, respondedBy, reason string) (*model.Request, error) {
	row := db.QueryRowContext(ctx, `
		UPDATE requests
		SET status = $2, responded_at = NOW(), responded_by = $3, reason = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestColumns,
		id, string(target), nullString(respondedBy), nullString(reason),
	)

	r, err := scanRequest(row)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// No pending row matched: distinguish "already decided" from "unknown id".
	var status string
	err = db.QueryRowContext(ctx, `SELECT status FROM requests WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w (status %s)", store.ErrConflict, status)
}

func queryMarkNotified(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE requests
		SET notified_at = NOW()
		WHERE id = $1 AND notified_at IS NULL`,
		id,
	)
	if err != nil {
		return err
	}
	// Already marked is fine; only a missing row is an error.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists bool
		if err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
	}
	return nil
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO events (topic, request_id, actor, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Topic, e.RequestID, nullString(e.Actor), jsonbBytes(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryGetEvents(ctx context.Context, db executor, requestID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, request_id, actor, payload, created_at
		FROM events
		WHERE request_id = $1
		ORDER BY id ASC`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryStats(ctx context.Context, db executor) (*model.Stats, error) {
	stats := &model.Stats{
		ByStatus: make(map[model.Status]int),
		ByTool:   make(map[string]int),
	}

	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("stats by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("stats by status: %w", err)
		}
		stats.ByStatus[model.Status(status)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats by status: %w", err)
	}

	toolRows, err := db.QueryContext(ctx, `
		SELECT tool, COUNT(*) FROM requests GROUP BY tool`)
	if err != nil {
		return nil, fmt.Errorf("stats by tool: %w", err)
	}
	defer toolRows.Close()
	for toolRows.Next() {
		var tool string
		var count int
		if err := toolRows.Scan(&tool, &count); err != nil {
			return nil, fmt.Errorf("stats by tool: %w", err)
		}
		stats.ByTool[tool] = count
	}
	if err := toolRows.Err(); err != nil {
		return nil, fmt.Errorf("stats by tool: %w", err)
	}

	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM requests
		WHERE created_at > NOW() - INTERVAL '1 hour'`).Scan(&stats.RecentHour)
	if err != nil {
		return nil, fmt.Errorf("stats recent: %w", err)
	}

	return stats, nil
}

func queryCleanup(ctx context.Context, db executor, before time.Time) (int, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM requests
		WHERE created_at < $1 AND status != 'pending'`,
		before,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
