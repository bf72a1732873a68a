// Package events provides access to the door_events table for
// recording and querying door activity history.
package events

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DoorEvent represents a single door activity entry.
type DoorEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	Actor      string    `json:"actor,omitempty"`
	State      string    `json:"state,omitempty"`
	Online     bool      `json:"online"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	LatencyMS  int64     `json:"latency_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter controls which door events to return.
type Filter struct {
	Type   string // optional: filter by event type (unlocked, locked, auto_locked, ...)
	Source string // optional: filter by origin (api, mqtt, auto, device, system)
	Limit  int    // default 50, max 200
	Offset int    // pagination offset
}

// ListResult contains the paginated door event results.
type ListResult struct {
	Events []DoorEvent `json:"events"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// Repository defines the interface for door event operations.
type Repository interface {
	Create(ctx context.Context, event *DoorEvent) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository reads and writes door events in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new door event repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new door event. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, event *DoorEvent) error {
	if event.ID == "" {
		event.ID = "evt-" + uuid.NewString()[:8]
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO door_events (id, type, source, actor, state, online, duration_ms, latency_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Type, event.Source,
		nullableString(event.Actor), nullableString(event.State),
		boolToInt(event.Online),
		nullableInt64(event.DurationMS), nullableInt64(event.LatencyMS),
		nullableString(event.Error),
		event.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting door event: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableInt64 returns nil for zero values, or the value otherwise.
// Used for nullable INTEGER columns in SQLite.
func nullableInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

// boolToInt converts a bool to SQLite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// List returns door events matching the filter, ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for event queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Get total count.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM door_events %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting door events: %w", err)
	}

	// Get paginated results.
	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, type, source, actor, state, online, duration_ms, latency_ms, error, created_at FROM door_events %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying door events: %w", err)
	}
	defer rows.Close()

	var list []DoorEvent
	for rows.Next() {
		var event DoorEvent
		var actor, state, errText sql.NullString
		var durationMS, latencyMS sql.NullInt64
		var online int
		var createdAt string

		if err := rows.Scan(&event.ID, &event.Type, &event.Source,
			&actor, &state, &online, &durationMS, &latencyMS, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning door event: %w", err)
		}

		if actor.Valid {
			event.Actor = actor.String
		}
		if state.Valid {
			event.State = state.String
		}
		if errText.Valid {
			event.Error = errText.String
		}
		if durationMS.Valid {
			event.DurationMS = durationMS.Int64
		}
		if latencyMS.Valid {
			event.LatencyMS = latencyMS.Int64
		}
		event.Online = online != 0

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			t, err = time.Parse("2006-01-02T15:04:05Z", createdAt)
			if err != nil {
				return nil, fmt.Errorf("parsing door event timestamp %q: %w", createdAt, err)
			}
		}
		event.CreatedAt = t

		list = append(list, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating door events: %w", err)
	}

	if list == nil {
		list = []DoorEvent{}
	}

	return &ListResult{
		Events: list,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
