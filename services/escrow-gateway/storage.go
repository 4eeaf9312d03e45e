package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the gateway's local copy of the event journal, the
// resume cursor, and webhook subscriptions.
type SQLiteStore struct {
	db *sql.DB
}

// ErrSubscriptionNotFound is returned when a subscription id does not exist.
var ErrSubscriptionNotFound = errors.New("gateway: subscription not found")

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY,
            event_type TEXT NOT NULL,
            attributes TEXT NOT NULL,
            emitted_at INTEGER NOT NULL,
            received_at INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
            id TEXT PRIMARY KEY,
            url TEXT NOT NULL,
            secret TEXT NOT NULL,
            event_types TEXT NOT NULL,
            created_at INTEGER NOT NULL
        )`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("gateway: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// StoreEvent persists a journal entry. Replays of an already-stored sequence
// are ignored so the watcher can safely re-poll overlapping ranges.
func (s *SQLiteStore) StoreEvent(ctx context.Context, evt JournalEntry) error {
	attrs, err := json.Marshal(evt.Event.Attributes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (sequence, event_type, attributes, emitted_at, received_at)
         VALUES (?, ?, ?, ?, ?)`,
		evt.Sequence, evt.Event.Type, string(attrs), evt.Timestamp, time.Now().Unix())
	return err
}

// LastEventSequence returns the highest stored sequence, zero when the journal
// is empty.
func (s *SQLiteStore) LastEventSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM events`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// EventsAfter returns up to limit stored events past the cursor.
func (s *SQLiteStore) EventsAfter(ctx context.Context, after int64, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, event_type, attributes, emitted_at FROM events
         WHERE sequence > ? ORDER BY sequence ASC LIMIT ?`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]JournalEntry, 0, limit)
	for rows.Next() {
		var entry JournalEntry
		var attrs string
		entry.Event = &EventPayload{}
		if err := rows.Scan(&entry.Sequence, &entry.Event.Type, &attrs, &entry.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &entry.Event.Attributes); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// WebhookSubscription describes one registered observer endpoint.
type WebhookSubscription struct {
	ID         string   `json:"id"`
	URL        string   `json:"url"`
	Secret     string   `json:"-"`
	EventTypes []string `json:"eventTypes"`
	CreatedAt  int64    `json:"createdAt"`
}

// Matches reports whether the subscription wants the given event type. An
// empty filter subscribes to everything.
func (w *WebhookSubscription) Matches(eventType string) bool {
	if len(w.EventTypes) == 0 {
		return true
	}
	for _, t := range w.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

func (s *SQLiteStore) CreateSubscription(ctx context.Context, sub WebhookSubscription) error {
	types, err := json.Marshal(sub.EventTypes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, url, secret, event_types, created_at) VALUES (?, ?, ?, ?, ?)`,
		sub.ID, sub.URL, sub.Secret, string(types), sub.CreatedAt)
	return err
}

func (s *SQLiteStore) DeleteSubscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *SQLiteStore) ListSubscriptions(ctx context.Context) ([]WebhookSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, secret, event_types, created_at FROM subscriptions ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WebhookSubscription
	for rows.Next() {
		var sub WebhookSubscription
		var types string
		if err := rows.Scan(&sub.ID, &sub.URL, &sub.Secret, &types, &sub.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(types), &sub.EventTypes); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
