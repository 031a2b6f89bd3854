// Package audit keeps the append-only log of state changes.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusportal/internal/collection"
	"campusportal/internal/metrics"
	"campusportal/internal/model"
	"campusportal/internal/queue"
	"campusportal/internal/store"
)

// CollectionName is where entries are stored.
const CollectionName = "audit_logs"

// ErrUnknownWindow is returned by Filter for an unrecognised window name.
var ErrUnknownWindow = errors.New("unknown audit window")

// TimestampLayout matches JavaScript's Date.toISOString output.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Logger appends audit entries. It writes through the collection's RawAppend
// so recording never audits itself.
type Logger struct {
	entries *collection.Collection[model.AuditLog]
	sink    queue.Queue
	now     func() time.Time
	newID   func() string
	log     *zap.Logger
}

// Option customises a Logger.
type Option func(*Logger)

// WithSink mirrors every recorded entry to q. Publish failures are logged only.
func WithSink(q queue.Queue) Option { return func(l *Logger) { l.sink = q } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(l *Logger) { l.now = now } }

// WithIDFunc replaces the identifier generator.
func WithIDFunc(f func() string) Option { return func(l *Logger) { l.newID = f } }

// WithLogger sets the zap logger.
func WithLogger(log *zap.Logger) Option { return func(l *Logger) { l.log = log } }

// NewLogger creates a logger over s.
func NewLogger(s *store.Store, opts ...Option) *Logger {
	l := &Logger{
		now:   time.Now,
		newID: uuid.NewString,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.entries = collection.New(s, collection.Config[model.AuditLog]{
		Name:    CollectionName,
		Label:   "Audit Logs",
		IDField: "id",
		ID:      func(a model.AuditLog) string { return a.ID },
		SetID:   func(a *model.AuditLog, id string) { a.ID = id },
	}, collection.WithLogger(l.log))
	return l
}

// Record implements collection.Auditor.
func (l *Logger) Record(ctx context.Context, action, details string) error {
	_, err := l.Append(ctx, action, details)
	return err
}

// Append records an entry and returns it.
func (l *Logger) Append(ctx context.Context, action, details string) (model.AuditLog, error) {
	entry := model.AuditLog{
		ID:        l.newID(),
		Action:    action,
		Details:   details,
		Timestamp: FormatTimestamp(l.now()),
	}
	if err := l.entries.RawAppend(ctx, entry); err != nil {
		return model.AuditLog{}, fmt.Errorf("append audit entry: %w", err)
	}
	metrics.AuditEntries.Inc()
	l.log.Debug("audit", zap.String("action", action), zap.String("details", details))
	l.publish(ctx, entry)
	return entry, nil
}

func (l *Logger) publish(ctx context.Context, entry model.AuditLog) {
	if l.sink == nil {
		return
	}
	body, err := json.Marshal(entry)
	if err == nil {
		err = l.sink.Publish(ctx, queue.Message{Type: "audit", Body: body})
	}
	if err != nil {
		l.log.Warn("audit sink publish failed", zap.String("id", entry.ID), zap.Error(err))
	}
}

// List returns every entry, oldest first.
func (l *Logger) List(ctx context.Context) ([]model.AuditLog, error) {
	return l.entries.GetAll(ctx)
}

// Seed replaces the log with entries, used by database bootstrap.
func (l *Logger) Seed(ctx context.Context, entries []model.AuditLog) error {
	return l.entries.Replace(ctx, entries)
}

// Clear drops every entry. Only a full reset does this.
func (l *Logger) Clear(ctx context.Context) error {
	return l.entries.Clear(ctx)
}

// Now returns the logger's clock reading formatted as an entry timestamp.
func (l *Logger) Now() string { return FormatTimestamp(l.now()) }

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Window selects entries by age relative to the logger's clock.
type Window string

const (
	WindowAll       Window = ""
	WindowToday     Window = "today"
	WindowYesterday Window = "yesterday"
	WindowThisWeek  Window = "this-week" // since Sunday
)

// Query narrows Filter results. Zero fields match everything.
type Query struct {
	Search string // case-insensitive substring of action or details
	Action string // exact action label
	Window Window
	Since  time.Time
	Until  time.Time
}

// Filter returns the entries matching q, oldest first. Entries whose
// timestamp cannot be parsed only match queries without a time bound.
func (l *Logger) Filter(ctx context.Context, q Query) ([]model.AuditLog, error) {
	since, until := q.Since, q.Until
	if q.Window != WindowAll {
		ws, wu, err := l.windowBounds(q.Window)
		if err != nil {
			return nil, err
		}
		if since.IsZero() || ws.After(since) {
			since = ws
		}
		if !wu.IsZero() && (until.IsZero() || wu.Before(until)) {
			until = wu
		}
	}
	search := strings.ToLower(q.Search)
	timed := !since.IsZero() || !until.IsZero()

	return l.entries.Find(ctx, func(e model.AuditLog) bool {
		if q.Action != "" && e.Action != q.Action {
			return false
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(e.Action), search) &&
			!strings.Contains(strings.ToLower(e.Details), search) {
			return false
		}
		if !timed {
			return true
		}
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			return false
		}
		if !since.IsZero() && ts.Before(since) {
			return false
		}
		if !until.IsZero() && !ts.Before(until) {
			return false
		}
		return true
	})
}

// windowBounds returns [since, until) for w in UTC days.
func (l *Logger) windowBounds(w Window) (time.Time, time.Time, error) {
	now := l.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch w {
	case WindowToday:
		return today, today.AddDate(0, 0, 1), nil
	case WindowYesterday:
		return today.AddDate(0, 0, -1), today, nil
	case WindowThisWeek:
		return today.AddDate(0, 0, -int(today.Weekday())), time.Time{}, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w %q", ErrUnknownWindow, w)
	}
}

// Drain consumes entries published by WithSink and hands each to handle until
// ctx ends. Messages of other types and undecodable bodies are skipped.
func Drain(ctx context.Context, q queue.Queue, handle func(model.AuditLog) error, log *zap.Logger) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume audit queue: %w", err)
	}
	for msg := range msgs {
		if msg.Type != "audit" {
			continue
		}
		var entry model.AuditLog
		if err := json.Unmarshal(msg.Body, &entry); err != nil {
			log.Warn("skipping undecodable audit message", zap.Error(err))
			continue
		}
		if err := handle(entry); err != nil {
			log.Error("audit handler failed", zap.String("id", entry.ID), zap.Error(err))
		}
	}
	return nil
}
