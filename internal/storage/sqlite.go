package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DB is the SQLite event database.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and runs migrations.
// ":memory:" opens a private in-memory database.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for concurrent readers while jobs write
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db: db, now: time.Now}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			ts INTEGER NOT NULL,
			subject TEXT NOT NULL,
			kind TEXT NOT NULL,
			camera_id TEXT,
			snapshot_key TEXT,
			snapshot_url TEXT,
			analysis_text TEXT,
			faces TEXT,
			prompt TEXT,
			detections TEXT,
			reviewed INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS faces (
			name TEXT PRIMARY KEY,
			category TEXT DEFAULT 'Uncategorized',
			last_seen INTEGER,
			sighting_count INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS unknown_persons (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			camera_id TEXT,
			image_key TEXT NOT NULL,
			ts INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			event_id TEXT,
			channel TEXT NOT NULL,
			recipient TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			ts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_subject_ts ON events(subject, ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_event ON notifications(event_id)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// AppendEvent stores a new event. Missing id and timestamp are filled in.
func (d *DB) AppendEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = d.now()
	}

	_, err := d.db.ExecContext(ctx, `INSERT INTO events
		(id, ts, subject, kind, camera_id, snapshot_key, snapshot_url, analysis_text, faces, prompt, detections, reviewed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, toUnix(e.Timestamp), e.Subject, e.Kind, e.CameraID, e.SnapshotKey, e.SnapshotURL,
		e.Text, strings.Join(e.Faces, ","), e.Prompt, e.Detections, e.Reviewed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

const eventColumns = `id, ts, subject, kind, camera_id, snapshot_key, snapshot_url, analysis_text, faces, prompt, detections, reviewed`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (Event, error) {
	var (
		e                               Event
		ts                              int64
		cameraID, key, url, text, faces sql.NullString
		prompt, detections              sql.NullString
		reviewed                        bool
	)
	if err := row.Scan(&e.ID, &ts, &e.Subject, &e.Kind, &cameraID, &key, &url, &text, &faces, &prompt, &detections, &reviewed); err != nil {
		return Event{}, err
	}
	e.Timestamp = fromUnix(ts)
	e.CameraID = cameraID.String
	e.SnapshotKey = key.String
	e.SnapshotURL = url.String
	e.Text = text.String
	if faces.String != "" {
		e.Faces = strings.Split(faces.String, ",")
	}
	e.Prompt = prompt.String
	e.Detections = detections.String
	e.Reviewed = reviewed
	return e, nil
}

// ListEvents returns events newest first.
func (d *DB) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE 1=1"
	var args []any
	if f.Subject != "" {
		query += " AND subject = ?"
		args = append(args, f.Subject)
	}
	if !f.Since.IsZero() {
		query += " AND ts >= ?"
		args = append(args, toUnix(f.Since))
	}
	query += " ORDER BY ts DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetEvent returns one event.
func (d *DB) GetEvent(ctx context.Context, id string) (Event, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// DeleteEvent removes an event and its queued unknown persons.
func (d *DB) DeleteEvent(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM unknown_persons WHERE event_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete unknown persons: %w", err)
	}
	return tx.Commit()
}

// MarkReviewed flags an event as reviewed.
func (d *DB) MarkReviewed(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, "UPDATE events SET reviewed = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordSighting bumps the sighting count of a known person.
func (d *DB) RecordSighting(ctx context.Context, name string, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO faces (name, last_seen, sighting_count) VALUES (?, ?, 1)
		ON CONFLICT(name) DO UPDATE SET
			last_seen = excluded.last_seen,
			sighting_count = faces.sighting_count + 1`,
		name, toUnix(at),
	)
	if err != nil {
		return fmt.Errorf("failed to record sighting: %w", err)
	}
	return nil
}

// UpsertFace creates a face record or updates its category.
func (d *DB) UpsertFace(ctx context.Context, name, category string) error {
	if category == "" {
		category = "Uncategorized"
	}
	_, err := d.db.ExecContext(ctx, `INSERT INTO faces (name, category) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET category = excluded.category`,
		name, category,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert face: %w", err)
	}
	return nil
}

// DeleteFace removes a face record.
func (d *DB) DeleteFace(ctx context.Context, name string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM faces WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete face: %w", err)
	}
	return nil
}

// ListFaces returns every face record ordered by name.
func (d *DB) ListFaces(ctx context.Context) ([]Face, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT name, category, last_seen, sighting_count FROM faces ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query faces: %w", err)
	}
	defer rows.Close()

	faces := make([]Face, 0)
	for rows.Next() {
		var (
			f        Face
			category sql.NullString
			lastSeen sql.NullInt64
			count    sql.NullInt64
		)
		if err := rows.Scan(&f.Name, &category, &lastSeen, &count); err != nil {
			return nil, fmt.Errorf("failed to scan face: %w", err)
		}
		f.Category = category.String
		f.LastSeen = fromUnix(lastSeen.Int64)
		f.SightingCount = int(count.Int64)
		faces = append(faces, f)
	}
	return faces, rows.Err()
}

// AddUnknownPerson queues a detection for labeling.
func (d *DB) AddUnknownPerson(ctx context.Context, p *UnknownPerson) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = d.now()
	}
	_, err := d.db.ExecContext(ctx, `INSERT INTO unknown_persons (id, event_id, camera_id, image_key, ts) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.EventID, p.CameraID, p.ImageKey, toUnix(p.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to queue unknown person: %w", err)
	}
	return nil
}

// ListUnknownPersons returns the labeling queue newest first.
func (d *DB) ListUnknownPersons(ctx context.Context, limit int) ([]UnknownPerson, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx, `SELECT id, event_id, camera_id, image_key, ts FROM unknown_persons ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unknown persons: %w", err)
	}
	defer rows.Close()

	persons := make([]UnknownPerson, 0)
	for rows.Next() {
		var (
			p        UnknownPerson
			cameraID sql.NullString
			ts       int64
		)
		if err := rows.Scan(&p.ID, &p.EventID, &cameraID, &p.ImageKey, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan unknown person: %w", err)
		}
		p.CameraID = cameraID.String
		p.Timestamp = fromUnix(ts)
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// GetUnknownPerson returns one queued detection.
func (d *DB) GetUnknownPerson(ctx context.Context, id string) (UnknownPerson, error) {
	var (
		p        UnknownPerson
		cameraID sql.NullString
		ts       int64
	)
	err := d.db.QueryRowContext(ctx, `SELECT id, event_id, camera_id, image_key, ts FROM unknown_persons WHERE id = ?`, id).
		Scan(&p.ID, &p.EventID, &cameraID, &p.ImageKey, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return UnknownPerson{}, ErrNotFound
	}
	if err != nil {
		return UnknownPerson{}, fmt.Errorf("failed to get unknown person: %w", err)
	}
	p.CameraID = cameraID.String
	p.Timestamp = fromUnix(ts)
	return p, nil
}

// DeleteUnknownPerson removes a queued detection.
func (d *DB) DeleteUnknownPerson(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, "DELETE FROM unknown_persons WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete unknown person: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddNotification records a delivery attempt.
func (d *DB) AddNotification(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = d.now()
	}
	_, err := d.db.ExecContext(ctx, `INSERT INTO notifications (id, event_id, channel, recipient, status, error, ts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.EventID, n.Channel, n.Recipient, n.Status, n.Error, toUnix(n.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

// ListNotifications returns delivery attempts, optionally for one recipient, newest first.
func (d *DB) ListNotifications(ctx context.Context, recipient string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, event_id, channel, recipient, status, error, ts FROM notifications`
	var args []any
	if recipient != "" {
		query += " WHERE recipient = ?"
		args = append(args, recipient)
	}
	query += " ORDER BY ts DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]Notification, 0)
	for rows.Next() {
		var (
			n               Notification
			eventID, errStr sql.NullString
			ts              int64
		)
		if err := rows.Scan(&n.ID, &eventID, &n.Channel, &n.Recipient, &n.Status, &errStr, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.EventID = eventID.String
		n.Error = errStr.String
		n.Timestamp = fromUnix(ts)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Stats returns summary counts and the latest event.
func (d *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&s.TotalEvents); err != nil {
		return s, fmt.Errorf("failed to count events: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM unknown_persons").Scan(&s.UnknownPersons); err != nil {
		return s, fmt.Errorf("failed to count unknown persons: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM faces").Scan(&s.KnownFaces); err != nil {
		return s, fmt.Errorf("failed to count faces: %w", err)
	}

	latest, err := d.ListEvents(ctx, EventFilter{Limit: 1})
	if err != nil {
		return s, err
	}
	if len(latest) > 0 {
		s.LatestEvent = &latest[0]
	}
	return s, nil
}
