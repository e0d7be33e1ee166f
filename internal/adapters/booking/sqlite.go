// Package booking provides the two implementations of the appointment store
// interfaces: an embedded SQLite store for single-node deployments and
// tests, and a JSON/HTTP client for a remote booking service.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	role         TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS appointments (
	id               TEXT PRIMARY KEY,
	client_id        TEXT NOT NULL,
	therapist_id     TEXT NOT NULL,
	room_id          TEXT NOT NULL,
	status           TEXT NOT NULL,
	payment_status   TEXT NOT NULL,
	started_at       TIMESTAMP,
	ended_at         TIMESTAMP,
	duration_minutes INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStore serves the authorization oracle, identity store and session
// status manager from a local appointments database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent lifecycle transitions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Lookup(ctx context.Context, id domain.AppointmentID) (domain.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, therapist_id, room_id, status, payment_status
		 FROM appointments WHERE id = ?`, string(id))
	var snap domain.Snapshot
	err := row.Scan(&snap.AppointmentID, &snap.ClientID, &snap.TherapistID,
		&snap.RoomID, &snap.Status, &snap.Payment)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, core.ErrAppointmentNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("lookup appointment %s: %w", id, err)
	}
	return snap, nil
}

func (s *SQLiteStore) FindUser(ctx context.Context, id domain.UserID) (domain.UserProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, role FROM users WHERE id = ?`, string(id))
	var p domain.UserProfile
	err := row.Scan(&p.ID, &p.DisplayName, &p.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserProfile{}, core.ErrUnknownUser
	}
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("find user %s: %w", id, err)
	}
	return p, nil
}

// StartCall marks the appointment in progress. Calling it again while
// already in progress returns the original start time, which keeps the
// room-side transition idempotent.
func (s *SQLiteStore) StartCall(ctx context.Context, id domain.AppointmentID, actor *domain.UserID) (core.CallRecord, error) {
	var status string
	var startedAt sql.NullTime
	row := s.db.QueryRowContext(ctx,
		`SELECT status, started_at FROM appointments WHERE id = ?`, string(id))
	if err := row.Scan(&status, &startedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.CallRecord{}, core.ErrAppointmentNotFound
		}
		return core.CallRecord{}, fmt.Errorf("start call %s: %w", id, err)
	}

	switch domain.AppointmentStatus(status) {
	case domain.AppointmentInProgress:
		return core.CallRecord{
			AppointmentID: id,
			Status:        domain.AppointmentInProgress,
			StartedAt:     startedAt.Time,
		}, nil
	case domain.AppointmentConfirmed:
		// proceed
	default:
		return core.CallRecord{}, core.ErrInvalidState
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(domain.AppointmentInProgress), now, string(id), string(domain.AppointmentConfirmed))
	if err != nil {
		return core.CallRecord{}, fmt.Errorf("start call %s: %w", id, err)
	}
	logActor(log.Info(), actor).Str("module", "booking.sqlite").Str("appointment", string(id)).Msg("call started")
	return core.CallRecord{
		AppointmentID: id,
		Status:        domain.AppointmentInProgress,
		StartedAt:     now,
	}, nil
}

// EndCall completes the appointment and computes the call duration in
// minutes, rounded up.
func (s *SQLiteStore) EndCall(ctx context.Context, id domain.AppointmentID, actor *domain.UserID) (core.CallRecord, error) {
	var status string
	var startedAt sql.NullTime
	row := s.db.QueryRowContext(ctx,
		`SELECT status, started_at FROM appointments WHERE id = ?`, string(id))
	if err := row.Scan(&status, &startedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.CallRecord{}, core.ErrAppointmentNotFound
		}
		return core.CallRecord{}, fmt.Errorf("end call %s: %w", id, err)
	}
	if domain.AppointmentStatus(status) != domain.AppointmentInProgress {
		return core.CallRecord{}, core.ErrInvalidState
	}

	now := s.now()
	duration := 0
	if startedAt.Valid {
		duration = int((now.Sub(startedAt.Time) + time.Minute - 1) / time.Minute)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET status = ?, ended_at = ?, duration_minutes = ? WHERE id = ?`,
		string(domain.AppointmentCompleted), now, duration, string(id))
	if err != nil {
		return core.CallRecord{}, fmt.Errorf("end call %s: %w", id, err)
	}
	logActor(log.Info(), actor).Str("module", "booking.sqlite").
		Str("appointment", string(id)).
		Int("duration_min", duration).
		Msg("call ended")
	return core.CallRecord{
		AppointmentID:   id,
		Status:          domain.AppointmentCompleted,
		StartedAt:       startedAt.Time,
		EndedAt:         &now,
		DurationMinutes: duration,
	}, nil
}

// UpsertUser and UpsertAppointment seed the embedded store. Dev tooling and
// tests only; the remote booking service owns these records in production.
func (s *SQLiteStore) UpsertUser(ctx context.Context, p domain.UserProfile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, display_name, role) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, role = excluded.role`,
		string(p.ID), p.DisplayName, string(p.Role))
	return err
}

func (s *SQLiteStore) UpsertAppointment(ctx context.Context, snap domain.Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO appointments (id, client_id, therapist_id, room_id, status, payment_status)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			therapist_id = excluded.therapist_id,
			room_id = excluded.room_id,
			status = excluded.status,
			payment_status = excluded.payment_status`,
		string(snap.AppointmentID), string(snap.ClientID), string(snap.TherapistID),
		string(snap.RoomID), string(snap.Status), string(snap.Payment))
	return err
}

func logActor(e *zerolog.Event, actor *domain.UserID) *zerolog.Event {
	if actor != nil {
		return e.Str("actor", string(*actor))
	}
	return e.Bool("auto", true)
}
