// Package audit records every hub and port command with its
// acknowledgement in the command_log table, whichever surface (MQTT or the
// HTTP API) it arrived on.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/poweredup/internal/control"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded command.
type Entry struct {
	ID         string            `json:"id"`
	CommandID  string            `json:"command_id"`
	HubID      string            `json:"hub_id"`
	Port       *uint8            `json:"port,omitempty"`
	Command    string            `json:"command"`
	Source     string            `json:"source"`
	Status     control.AckStatus `json:"status"`
	ErrorCode  string            `json:"error_code,omitempty"`
	Message    string            `json:"message,omitempty"`
	Parameters map[string]any    `json:"parameters,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewEntry builds the log entry for a command and its acknowledgement.
func NewEntry(cmd control.Command, ack control.Ack) Entry {
	e := Entry{
		CommandID:  ack.CommandID,
		HubID:      ack.HubID,
		Port:       ack.Port,
		Command:    cmd.Command,
		Source:     cmd.Source,
		Status:     ack.Status,
		Parameters: cmd.Parameters,
		CreatedAt:  ack.Timestamp,
	}
	if ack.Error != nil {
		e.ErrorCode = ack.Error.Code
		e.Message = ack.Error.Message
	}
	return e
}

// Filter controls which entries List returns. Empty fields match anything.
type Filter struct {
	HubID   string
	Command string
	Status  control.AckStatus
	Source  string
	Limit   int // default 50, max 200
	Offset  int
}

// ListResult contains the paginated entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the command log operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores the command log in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository wraps a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordCommand stores a command and its acknowledgement.
func (r *SQLiteRepository) RecordCommand(ctx context.Context, cmd control.Command, ack control.Ack) error {
	e := NewEntry(cmd, ack)
	return r.Create(ctx, &e)
}

// Create inserts an entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "cmd-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var params *string
	if len(e.Parameters) > 0 {
		b, err := json.Marshal(e.Parameters)
		if err != nil {
			return fmt.Errorf("marshalling command parameters: %w", err)
		}
		s := string(b)
		params = &s
	}

	var port any
	if e.Port != nil {
		port = int(*e.Port)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log (id, command_id, hub_id, port, command, source, status, error_code, message, parameters, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CommandID, e.HubID, port, e.Command, e.Source, string(e.Status),
		nullableString(e.ErrorCode), nullableString(e.Message), params,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting command log entry: %w", err)
	}
	return nil
}

// nullableString maps "" to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit // dynamic query builder: WHERE clause assembly from filter fields
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		conditions []string
		args       []any
	)
	for _, c := range []struct {
		column string
		value  string
	}{
		{"hub_id", filter.HubID},
		{"command", filter.Command},
		{"status", string(filter.Status)},
		{"source", filter.Source},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM command_log " + where //nolint:gosec // WHERE built from fixed column names and ? placeholders
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command log: %w", err)
	}

	query := "SELECT id, command_id, hub_id, port, command, source, status, error_code, message, parameters, created_at " + //nolint:gosec // as above
		"FROM command_log " + where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                        Entry
			port                     sql.NullInt64
			status, createdAt        string
			errorCode, msg, paramsJS sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CommandID, &e.HubID, &port, &e.Command, &e.Source,
			&status, &errorCode, &msg, &paramsJS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command log entry: %w", err)
		}

		e.Status = control.AckStatus(status)
		if port.Valid {
			p := uint8(port.Int64) //nolint:gosec // stored from a uint8
			e.Port = &p
		}
		e.ErrorCode = errorCode.String
		e.Message = msg.String
		if paramsJS.Valid && paramsJS.String != "" {
			var params map[string]any
			if json.Unmarshal([]byte(paramsJS.String), &params) == nil {
				e.Parameters = params
			}
		}

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing command log timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
