// Package journal records structured bot events to slog and, optionally, to
// the sqlite events table.
package journal

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/stupiduntilnot/investbot/internal/db"
)

// Recorder records one event and returns its id. A zero parentID marks a root
// event. Implementations that do not assign ids return 0.
type Recorder interface {
	Record(ctx context.Context, parentID int64, eventType string, payload map[string]any) int64
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, int64, string, map[string]any) int64 { return 0 }

// SlogRecorder writes events as structured log lines.
type SlogRecorder struct {
	Logger *slog.Logger
	Level  slog.Level
}

func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogRecorder{Logger: logger, Level: slog.LevelInfo}
}

func (r *SlogRecorder) Record(ctx context.Context, parentID int64, eventType string, payload map[string]any) int64 {
	attrs := make([]slog.Attr, 0, len(payload)+2)
	attrs = append(attrs, slog.String("event", eventType))
	if parentID != 0 {
		attrs = append(attrs, slog.Int64("parent_id", parentID))
	}
	for k, v := range payload {
		attrs = append(attrs, slog.Any(k, v))
	}
	r.Logger.LogAttrs(ctx, r.Level, "event", attrs...)
	return 0
}

// SQLiteRecorder appends events to the events table.
type SQLiteRecorder struct {
	DB     *sql.DB
	Logger *slog.Logger

	// sqlite serialises writers anyway; the mutex keeps busy retries off the hot path.
	mu sync.Mutex
}

func NewSQLiteRecorder(database *sql.DB, logger *slog.Logger) *SQLiteRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteRecorder{DB: database, Logger: logger}
}

func (r *SQLiteRecorder) Record(ctx context.Context, parentID int64, eventType string, payload map[string]any) int64 {
	var parent *int64
	if parentID != 0 {
		parent = &parentID
	}
	r.mu.Lock()
	id, err := db.LogEvent(r.DB, parent, eventType, payload)
	r.mu.Unlock()
	if err != nil {
		r.Logger.WarnContext(ctx, "journal write failed", "event", eventType, "err", err)
		return 0
	}
	return id
}

// Multi fans an event out to every recorder and returns the first non-zero id.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, parentID int64, eventType string, payload map[string]any) int64 {
	var id int64
	for _, r := range m {
		if got := r.Record(ctx, parentID, eventType, payload); id == 0 {
			id = got
		}
	}
	return id
}
