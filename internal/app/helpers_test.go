package app

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &env)
		out = append(out, env.Type)
	}
	return out
}

type fakeDirectory struct {
	mu    sync.Mutex
	snaps map[domain.AppointmentID]domain.Snapshot
	calls int
}

func newFakeDirectory(snaps ...domain.Snapshot) *fakeDirectory {
	d := &fakeDirectory{snaps: make(map[domain.AppointmentID]domain.Snapshot)}
	for _, s := range snaps {
		d.snaps[s.AppointmentID] = s
	}
	return d
}

func (d *fakeDirectory) Lookup(_ context.Context, id domain.AppointmentID) (domain.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	snap, ok := d.snaps[id]
	if !ok {
		return domain.Snapshot{}, core.ErrAppointmentNotFound
	}
	return snap, nil
}

type fakeStatus struct {
	startCalls atomic.Int64
	endCalls   atomic.Int64
	startErr   error
	endErr     error
	duration   int
}

func (f *fakeStatus) StartCall(_ context.Context, id domain.AppointmentID, _ *domain.UserID) (core.CallRecord, error) {
	f.startCalls.Add(1)
	if f.startErr != nil {
		return core.CallRecord{}, f.startErr
	}
	return core.CallRecord{
		AppointmentID: id,
		Status:        domain.AppointmentInProgress,
		StartedAt:     time.Now(),
	}, nil
}

func (f *fakeStatus) EndCall(_ context.Context, id domain.AppointmentID, _ *domain.UserID) (core.CallRecord, error) {
	f.endCalls.Add(1)
	if f.endErr != nil {
		return core.CallRecord{}, f.endErr
	}
	now := time.Now()
	return core.CallRecord{
		AppointmentID:   id,
		Status:          domain.AppointmentCompleted,
		StartedAt:       now.Add(-50 * time.Minute),
		EndedAt:         &now,
		DurationMinutes: f.duration,
	}, nil
}

type captureSink struct {
	core.NopSink

	mu        sync.Mutex
	incidents []core.IncidentKind
	joins     int
	starts    int
	ends      []core.EndCause
	drops     int
	payments  []bool
}

func (s *captureSink) ParticipantJoined(domain.RoomID, domain.UserID, domain.Role) {
	s.mu.Lock()
	s.joins++
	s.mu.Unlock()
}

func (s *captureSink) PaymentValidation(_ domain.AppointmentID, ok bool) {
	s.mu.Lock()
	s.payments = append(s.payments, ok)
	s.mu.Unlock()
}

func (s *captureSink) CallStarted(domain.RoomID, domain.AppointmentID, bool) {
	s.mu.Lock()
	s.starts++
	s.mu.Unlock()
}

func (s *captureSink) CallEnded(_ domain.RoomID, _ domain.AppointmentID, cause core.EndCause, _ int) {
	s.mu.Lock()
	s.ends = append(s.ends, cause)
	s.mu.Unlock()
}

func (s *captureSink) CallDropped(domain.RoomID, domain.UserID) {
	s.mu.Lock()
	s.drops++
	s.mu.Unlock()
}

func (s *captureSink) SecurityIncident(kind core.IncidentKind, _ domain.RoomID, _ domain.UserID, _ string) {
	s.mu.Lock()
	s.incidents = append(s.incidents, kind)
	s.mu.Unlock()
}

func (s *captureSink) incidentKinds() []core.IncidentKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.IncidentKind(nil), s.incidents...)
}

var (
	apptID = domain.AppointmentID("appt-1")
	roomID = domain.RoomID("room-1")

	clientIdentity = domain.Identity{UserID: "user-client", DisplayName: "Avery", Role: domain.RoleClient}
	therapistIdent = domain.Identity{UserID: "user-therapist", DisplayName: "Dr. Reyes", Role: domain.RoleTherapist}
	strangerIdent  = domain.Identity{UserID: "user-stranger", DisplayName: "Mallory", Role: domain.RoleClient}
)

func confirmedSnapshot() domain.Snapshot {
	return domain.Snapshot{
		AppointmentID: apptID,
		ClientID:      clientIdentity.UserID,
		TherapistID:   therapistIdent.UserID,
		Status:        domain.AppointmentConfirmed,
		Payment:       domain.PaymentPaid,
		RoomID:        roomID,
	}
}
