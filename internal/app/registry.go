package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

// ErrConnectionClosed marks a join whose connection died while the
// authorization snapshot was in flight. The result is discarded.
var ErrConnectionClosed = errors.New("connection closed during join")

type member struct {
	p    domain.Participant
	conn core.SignalConnection
}

// room owns its own critical section. The registry mutex and a room mutex
// are never held together, so unrelated rooms proceed fully in parallel.
type room struct {
	mu      sync.Mutex
	meta    domain.Room
	members map[domain.UserID]*member

	// starting/ending latch in-flight lifecycle round-trips so racing
	// triggers observe exactly one.
	starting bool
	ending   bool
	deleted  bool
}

// Registry holds every currently-open room and arbitrates join/leave.
// A room exists here iff it has at least one participant.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*room

	directory core.Directory
	sink      core.EventSink
}

func NewRegistry(directory core.Directory, sink core.EventSink) *Registry {
	if sink == nil {
		sink = core.NopSink{}
	}
	return &Registry{
		rooms:     make(map[domain.RoomID]*room),
		directory: directory,
		sink:      sink,
	}
}

type JoinResult struct {
	RoomID           domain.RoomID
	AppointmentID    domain.AppointmentID
	Role             domain.Role
	ConnectionID     domain.ConnectionID
	ParticipantCount int
	Reconnect        bool
	Peers            []core.ParticipantDTO
	// ShouldStart is set when this join brought the distinct-participant
	// count to the start threshold while the call had not started.
	ShouldStart bool
}

// Join validates a join attempt against a fresh authorization snapshot and,
// on success, admits the participant. The snapshot round-trip happens before
// any room lock is taken; the mutation is applied atomically afterwards.
func (r *Registry) Join(
	ctx context.Context,
	roomID domain.RoomID,
	appointmentID domain.AppointmentID,
	id domain.Identity,
	connID domain.ConnectionID,
	conn core.SignalConnection,
) (JoinResult, error) {
	snap, err := r.directory.Lookup(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, core.ErrAppointmentNotFound) {
			return JoinResult{}, core.ErrAppointmentNotFound
		}
		return JoinResult{}, fmt.Errorf("%w: directory lookup: %v", core.ErrInternal, err)
	}

	if !snap.Authorizes(id) {
		r.sink.SecurityIncident(core.IncidentForbiddenJoin, roomID, id.UserID,
			"join attempt by a user who is not a party to the appointment")
		return JoinResult{}, core.ErrForbidden
	}
	if !snap.Status.Joinable() {
		return JoinResult{}, core.ErrInvalidState
	}
	paid := snap.Payment.Confirmed()
	r.sink.PaymentValidation(appointmentID, paid)
	if !paid {
		return JoinResult{}, core.ErrPaymentRequired
	}
	if snap.RoomID != roomID {
		// A room-id mismatch is the primary signature of a forged-room attack.
		r.sink.SecurityIncident(core.IncidentRoomMismatch, roomID, id.UserID,
			fmt.Sprintf("appointment %s is bound to room %s", appointmentID, snap.RoomID))
		return JoinResult{}, core.ErrRoomMismatch
	}

	for {
		rm := r.getOrCreate(roomID, appointmentID)
		rm.mu.Lock()
		if rm.deleted {
			// Lost a race with the last leave; the entry is being removed
			// from the map. Retry against a fresh room.
			rm.mu.Unlock()
			continue
		}
		if !conn.Alive() {
			rm.mu.Unlock()
			r.evictIfEmpty(rm)
			return JoinResult{}, ErrConnectionClosed
		}

		res := JoinResult{
			RoomID:        roomID,
			AppointmentID: appointmentID,
			Role:          id.Role,
			ConnectionID:  connID,
		}
		if m, ok := rm.members[id.UserID]; ok {
			// Reconnect: same userId replaces its connection in place and
			// stays invisible to the rest of the roster.
			m.p.ConnectionID = connID
			m.conn = conn
			res.Reconnect = true
		} else {
			rm.members[id.UserID] = &member{
				p:    domain.NewParticipant(id, connID, time.Now()),
				conn: conn,
			}
		}
		res.ParticipantCount = len(rm.members)
		for uid, m := range rm.members {
			if uid == id.UserID {
				continue
			}
			res.Peers = append(res.Peers, dto(m.p))
		}
		res.ShouldStart = !res.Reconnect &&
			res.ParticipantCount >= 2 &&
			rm.meta.State == domain.CallNotStarted &&
			!rm.starting
		rm.mu.Unlock()

		if !res.Reconnect {
			r.sink.ParticipantJoined(roomID, id.UserID, id.Role)
		}
		log.Info().Str("module", "app.registry").
			Str("room", string(roomID)).
			Str("user", string(id.UserID)).
			Bool("reconnect", res.Reconnect).
			Int("count", res.ParticipantCount).
			Msg("participant joined")
		return res, nil
	}
}

type LeaveResult struct {
	Participant   domain.Participant
	AppointmentID domain.AppointmentID
	RoomID        domain.RoomID
	Remaining     int
	Empty         bool
	WasInProgress bool
}

// Leave removes the participant owning connID from the room. The room is
// deleted from the registry the moment it becomes empty. A stale connID
// (already replaced by a reconnect) is a no-op.
func (r *Registry) Leave(roomID domain.RoomID, connID domain.ConnectionID) (LeaveResult, bool) {
	rm, ok := r.get(roomID)
	if !ok {
		return LeaveResult{}, false
	}

	rm.mu.Lock()
	var found *member
	for _, m := range rm.members {
		if m.p.ConnectionID == connID {
			found = m
			break
		}
	}
	if found == nil {
		rm.mu.Unlock()
		return LeaveResult{}, false
	}
	delete(rm.members, found.p.UserID)
	res := LeaveResult{
		Participant:   found.p,
		AppointmentID: rm.meta.AppointmentID,
		RoomID:        roomID,
		Remaining:     len(rm.members),
		Empty:         len(rm.members) == 0,
		WasInProgress: rm.meta.State == domain.CallInProgress,
	}
	if res.Empty {
		rm.deleted = true
	}
	rm.mu.Unlock()

	if res.Empty {
		r.remove(rm)
	}
	log.Info().Str("module", "app.registry").
		Str("room", string(roomID)).
		Str("user", string(res.Participant.UserID)).
		Int("remaining", res.Remaining).
		Msg("participant left")
	return res, true
}

// DisconnectCleanup leaves every room still holding the dropped connection.
func (r *Registry) DisconnectCleanup(connID domain.ConnectionID) []LeaveResult {
	r.mu.RLock()
	ids := make([]domain.RoomID, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var out []LeaveResult
	for _, id := range ids {
		if res, ok := r.Leave(id, connID); ok {
			out = append(out, res)
		}
	}
	return out
}

// ResolveTarget checks that both connections currently resolve to
// participants of the room and returns the target's connection.
func (r *Registry) ResolveTarget(
	roomID domain.RoomID,
	from, to domain.ConnectionID,
) (core.SignalConnection, error) {
	rm, ok := r.get(roomID)
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	var fromOK bool
	var target core.SignalConnection
	for _, m := range rm.members {
		if m.p.ConnectionID == from {
			fromOK = true
		}
		if m.p.ConnectionID == to {
			target = m.conn
		}
	}
	if !fromOK {
		return nil, core.ErrNotInRoom
	}
	if target == nil {
		return nil, core.ErrInvalidTarget
	}
	return target, nil
}

// IsMember reports whether the connection currently resolves to a
// participant of the room.
func (r *Registry) IsMember(roomID domain.RoomID, connID domain.ConnectionID) bool {
	rm, ok := r.get(roomID)
	if !ok {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, m := range rm.members {
		if m.p.ConnectionID == connID {
			return true
		}
	}
	return false
}

// Broadcast fans an encoded frame out to every participant except the given
// connection. Returns the number of successful sends.
func (r *Registry) Broadcast(roomID domain.RoomID, frame core.Frame, except domain.ConnectionID) int {
	rm, ok := r.get(roomID)
	if !ok {
		return 0
	}
	rm.mu.Lock()
	conns := make([]core.SignalConnection, 0, len(rm.members))
	for _, m := range rm.members {
		if m.p.ConnectionID == except {
			continue
		}
		conns = append(conns, m.conn)
	}
	rm.mu.Unlock()

	sent := 0
	for _, c := range conns {
		if err := c.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.registry").Str("room", string(roomID)).Msg("broadcast drop")
			continue
		}
		sent++
	}
	return sent
}

// beginStart latches the start transition. ok is false when the call is
// already in progress or a start is in flight (idempotent no-op for callers).
func (r *Registry) beginStart(roomID domain.RoomID) (domain.AppointmentID, bool, error) {
	rm, ok := r.get(roomID)
	if !ok {
		return "", false, core.ErrRoomNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.deleted {
		return "", false, core.ErrRoomNotFound
	}
	switch rm.meta.State {
	case domain.CallInProgress:
		return "", false, nil
	case domain.CallEnded:
		return "", false, core.ErrInvalidState
	}
	if rm.starting {
		return "", false, nil
	}
	rm.starting = true
	return rm.meta.AppointmentID, true, nil
}

// commitStart applies a successful start. Returns false when the room state
// advanced past the point that would make the pending transition stale.
func (r *Registry) commitStart(roomID domain.RoomID, startedAt time.Time) bool {
	rm, ok := r.get(roomID)
	if !ok {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.starting = false
	if rm.deleted || rm.meta.State != domain.CallNotStarted {
		return false
	}
	rm.meta.State = domain.CallInProgress
	rm.meta.StartedAt = &startedAt
	return true
}

func (r *Registry) abortStart(roomID domain.RoomID) {
	if rm, ok := r.get(roomID); ok {
		rm.mu.Lock()
		rm.starting = false
		rm.mu.Unlock()
	}
}

// beginEnd latches an explicit end transition.
func (r *Registry) beginEnd(roomID domain.RoomID) (domain.AppointmentID, bool, error) {
	rm, ok := r.get(roomID)
	if !ok {
		return "", false, core.ErrRoomNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.deleted {
		return "", false, core.ErrRoomNotFound
	}
	if rm.meta.State != domain.CallInProgress {
		return "", false, core.ErrInvalidState
	}
	if rm.ending {
		return "", false, nil
	}
	rm.ending = true
	return rm.meta.AppointmentID, true, nil
}

func (r *Registry) commitEnd(roomID domain.RoomID) bool {
	rm, ok := r.get(roomID)
	if !ok {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.ending = false
	if rm.deleted || rm.meta.State != domain.CallInProgress {
		return false
	}
	rm.meta.State = domain.CallEnded
	return true
}

func (r *Registry) abortEnd(roomID domain.RoomID) {
	if rm, ok := r.get(roomID); ok {
		rm.mu.Lock()
		rm.ending = false
		rm.mu.Unlock()
	}
}

type RoomInfo struct {
	ID            domain.RoomID        `json:"roomId"`
	AppointmentID domain.AppointmentID `json:"appointmentId"`
	State         string               `json:"callState"`
	MemberCount   int                  `json:"participantCount"`
}

func (r *Registry) List() []RoomInfo {
	r.mu.RLock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.RUnlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, rm := range rooms {
		rm.mu.Lock()
		out = append(out, RoomInfo{
			ID:            rm.meta.ID,
			AppointmentID: rm.meta.AppointmentID,
			State:         rm.meta.State.String(),
			MemberCount:   len(rm.members),
		})
		rm.mu.Unlock()
	}
	return out
}

// Snapshot returns room metadata and the full roster.
func (r *Registry) Snapshot(roomID domain.RoomID) (domain.Room, []core.ParticipantDTO, bool) {
	rm, ok := r.get(roomID)
	if !ok {
		return domain.Room{}, nil, false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	roster := make([]core.ParticipantDTO, 0, len(rm.members))
	for _, m := range rm.members {
		roster = append(roster, dto(m.p))
	}
	return rm.meta, roster, true
}

func (r *Registry) get(id domain.RoomID) (*room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[id]
	return rm, ok
}

func (r *Registry) getOrCreate(id domain.RoomID, appt domain.AppointmentID) *room {
	r.mu.RLock()
	rm, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return rm
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok = r.rooms[id]; ok {
		return rm
	}
	rm = &room{
		meta:    domain.Room{ID: id, AppointmentID: appt, State: domain.CallNotStarted},
		members: make(map[domain.UserID]*member),
	}
	r.rooms[id] = rm
	log.Info().Str("module", "app.registry").Str("room", string(id)).Str("appointment", string(appt)).Msg("room created")
	return rm
}

func (r *Registry) remove(rm *room) {
	r.mu.Lock()
	if cur, ok := r.rooms[rm.meta.ID]; ok && cur == rm {
		delete(r.rooms, rm.meta.ID)
		log.Info().Str("module", "app.registry").Str("room", string(rm.meta.ID)).Msg("room removed")
	}
	r.mu.Unlock()
}

func (r *Registry) evictIfEmpty(rm *room) {
	rm.mu.Lock()
	empty := !rm.deleted && len(rm.members) == 0
	if empty {
		rm.deleted = true
	}
	rm.mu.Unlock()
	if empty {
		r.remove(rm)
	}
}

func dto(p domain.Participant) core.ParticipantDTO {
	return core.ParticipantDTO{
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		Role:         p.Role,
		ConnectionID: p.ConnectionID,
	}
}
