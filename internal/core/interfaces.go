package core

import (
	"context"
	"time"

	"github.com/calmbridge/televisit/internal/domain"
)

// Directory is the session authorization oracle. Lookup must hit the booking
// store on every call; callers rely on the snapshot being fresh.
type Directory interface {
	Lookup(ctx context.Context, id domain.AppointmentID) (domain.Snapshot, error)
}

// IdentityStore resolves an authenticated credential subject to a user record.
type IdentityStore interface {
	FindUser(ctx context.Context, id domain.UserID) (domain.UserProfile, error)
}

// CallRecord is the persisted view of a call transition as reported by the
// booking store.
type CallRecord struct {
	AppointmentID   domain.AppointmentID
	Status          domain.AppointmentStatus
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationMinutes int
}

// StatusManager persists call lifecycle transitions into the appointment
// record. A nil actor marks an automatic transition.
type StatusManager interface {
	StartCall(ctx context.Context, id domain.AppointmentID, actor *domain.UserID) (CallRecord, error)
	EndCall(ctx context.Context, id domain.AppointmentID, actor *domain.UserID) (CallRecord, error)
}

// IncidentKind classifies anomalous or adversarial actions.
type IncidentKind string

const (
	IncidentRoomMismatch    IncidentKind = "room_mismatch"
	IncidentForbiddenJoin   IncidentKind = "forbidden_join"
	IncidentInvalidTarget   IncidentKind = "invalid_signal_target"
	IncidentCrossRoomSignal IncidentKind = "cross_room_signal"
)

// EndCause records how a call came to its end for the metrics pipeline.
type EndCause string

const (
	EndExplicit   EndCause = "explicit"
	EndEvacuation EndCause = "evacuation"
	EndDrop       EndCause = "drop"
)

// EventSink receives structured facts for dashboards and breach detection.
// Implementations must be fire-and-forget: never block, never return errors
// into the call path.
type EventSink interface {
	ConnectionAttempt()
	ConnectionAccepted(user domain.UserID)
	ConnectionRejected(reason string)
	ParticipantJoined(room domain.RoomID, user domain.UserID, role domain.Role)
	PaymentValidation(appointment domain.AppointmentID, ok bool)
	CallStarted(room domain.RoomID, appointment domain.AppointmentID, auto bool)
	CallEnded(room domain.RoomID, appointment domain.AppointmentID, cause EndCause, durationMinutes int)
	CallDropped(room domain.RoomID, user domain.UserID)
	SecurityIncident(kind IncidentKind, room domain.RoomID, user domain.UserID, details string)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) ConnectionAttempt()                                                {}
func (NopSink) ConnectionAccepted(domain.UserID)                                  {}
func (NopSink) ConnectionRejected(string)                                         {}
func (NopSink) ParticipantJoined(domain.RoomID, domain.UserID, domain.Role)       {}
func (NopSink) PaymentValidation(domain.AppointmentID, bool)                      {}
func (NopSink) CallStarted(domain.RoomID, domain.AppointmentID, bool)             {}
func (NopSink) CallEnded(domain.RoomID, domain.AppointmentID, EndCause, int)      {}
func (NopSink) CallDropped(domain.RoomID, domain.UserID)                          {}
func (NopSink) SecurityIncident(IncidentKind, domain.RoomID, domain.UserID, string) {}

// DisconnectReason is supplied by the transport layer instead of free-text
// close reasons, so drop classification does not depend on string matching.
type DisconnectReason int

const (
	// DisconnectGraceful covers close codes that signal an intentional
	// teardown (normal closure, going away).
	DisconnectGraceful DisconnectReason = iota
	// DisconnectAbnormal is everything else and feeds the call-drop metric.
	DisconnectAbnormal
)
