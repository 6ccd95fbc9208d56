// Package sqlite stores document handles in SQLite. Handle bodies are JSON;
// request records are rows of their own so that scheduled requests can be
// queried directly.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/ports"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const (
	listOpen    = "open"
	listHistory = "history"
)

// Store implements ports.ScheduledStore on SQLite.
// Uses WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

var _ ports.ScheduledStore = (*Store)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save writes the handle and replaces its request rows in one transaction.
func (s *Store) Save(ctx context.Context, h *domain.DocumentHandle) error {
	body := *h
	body.Requests, body.History = nil, nil
	raw, err := json.Marshal(&body)
	if err != nil {
		return fmt.Errorf("save handle: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save handle: %w", err)
	}
	defer tx.Rollback()

	var stored int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM handles WHERE id = ?`, h.ID).Scan(&stored)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("save handle: %w", err)
	}
	if stored != h.Version {
		return &domain.ConflictError{HandleID: h.ID, Reason: "stale version"}
	}

	next := h.Version + 1
	updated := formatTime(h.UpdatedAt)
	if exists {
		_, err = tx.ExecContext(ctx, `
			UPDATE handles SET workflow = ?, state = ?, version = ?, body = ?, updated_at = ?
			WHERE id = ? AND version = ?
		`, h.Workflow, h.State, next, string(raw), updated, h.ID, h.Version)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO handles (id, workflow, state, version, body, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, h.ID, h.Workflow, h.State, next, string(raw), updated)
	}
	if err != nil {
		return fmt.Errorf("save handle: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE handle_id = ?`, h.ID); err != nil {
		return fmt.Errorf("save requests: %w", err)
	}
	if err := insertRequests(ctx, tx, h.ID, listOpen, h.Requests); err != nil {
		return err
	}
	if err := insertRequests(ctx, tx, h.ID, listHistory, h.History); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save handle: %w", err)
	}
	h.Version = next
	return nil
}

func insertRequests(ctx context.Context, tx *sql.Tx, handleID, list string, reqs []*domain.Request) error {
	for i, r := range reqs {
		var scheduledDate, resolvedAt sql.NullString
		var scheduledAt sql.NullInt64
		if r.ScheduledDate != nil {
			scheduledDate = sql.NullString{String: formatTime(*r.ScheduledDate), Valid: true}
			scheduledAt = sql.NullInt64{Int64: r.ScheduledDate.UnixMilli(), Valid: true}
		}
		if r.ResolvedAt != nil {
			resolvedAt = sql.NullString{String: formatTime(*r.ResolvedAt), Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO requests
			(handle_id, list, position, id, type, status, requester, request_date,
			 scheduled_date, scheduled_at, reason, target, previous_type, resolved_at, resolved_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			handleID, list, i, r.ID, string(r.Type), string(r.Status), r.Requester,
			formatTime(r.RequestDate), scheduledDate, scheduledAt, r.Reason,
			string(r.Target), string(r.PreviousType), resolvedAt, r.ResolvedBy,
		)
		if err != nil {
			return fmt.Errorf("save request %s: %w", r.ID, err)
		}
	}
	return nil
}

// Load reads the handle body and its request rows.
func (s *Store) Load(ctx context.Context, id string) (*domain.DocumentHandle, error) {
	var raw string
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT body, version FROM handles WHERE id = ?`, id).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrHandleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load handle: %w", err)
	}

	var h domain.DocumentHandle
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("load handle: %w", err)
	}
	h.Version = version
	if h.Variables == nil {
		h.Variables = make(map[string]any)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT list, id, type, status, requester, request_date, scheduled_date,
		       reason, target, previous_type, resolved_at, resolved_by
		FROM requests WHERE handle_id = ?
		ORDER BY list, position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			list, typ, status, requestDate, target, previous string
			scheduledDate, resolvedAt                        sql.NullString
			r                                                domain.Request
		)
		if err := rows.Scan(&list, &r.ID, &typ, &status, &r.Requester, &requestDate, &scheduledDate,
			&r.Reason, &target, &previous, &resolvedAt, &r.ResolvedBy); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		r.Type = domain.RequestType(typ)
		r.Status = domain.RequestStatus(status)
		r.Target = domain.VariantState(target)
		r.PreviousType = domain.RequestType(previous)
		if r.RequestDate, err = parseTime(requestDate); err != nil {
			return nil, err
		}
		if r.ScheduledDate, err = parseNullTime(scheduledDate); err != nil {
			return nil, err
		}
		if r.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
			return nil, err
		}

		if list == listHistory {
			h.History = append(h.History, &r)
		} else {
			h.Requests = append(h.Requests, &r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}
	return &h, nil
}

// Delete removes the handle and its request rows.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete handle: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE handle_id = ?`, id); err != nil {
		return fmt.Errorf("delete requests: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM handles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete handle: %w", err)
	}
	return tx.Commit()
}

// List returns handle IDs in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM handles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list handles: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list handles: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DueRequests queries active scheduled requests due at now, oldest first.
func (s *Store) DueRequests(ctx context.Context, now time.Time) ([]ports.ScheduledRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT handle_id, id, type, scheduled_date
		FROM requests
		WHERE list = ? AND status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?
		ORDER BY scheduled_at, handle_id
	`, listOpen, string(domain.RequestActive), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query due requests: %w", err)
	}
	defer rows.Close()

	var due []ports.ScheduledRequest
	for rows.Next() {
		var ref ports.ScheduledRequest
		var typ, at string
		if err := rows.Scan(&ref.HandleID, &ref.RequestID, &typ, &at); err != nil {
			return nil, fmt.Errorf("scan due request: %w", err)
		}
		ref.Type = domain.RequestType(typ)
		if ref.At, err = parseTime(at); err != nil {
			return nil, err
		}
		due = append(due, ref)
	}
	return due, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
