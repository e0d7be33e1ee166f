package app

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

func TestJoinAdmitsAuthorizedParties(t *testing.T) {
	sink := &captureSink{}
	reg := NewRegistry(newFakeDirectory(confirmedSnapshot()), sink)

	res, err := reg.Join(context.Background(), roomID, apptID, clientIdentity, "conn-c", &fakeConn{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ParticipantCount)
	assert.False(t, res.Reconnect)
	assert.False(t, res.ShouldStart)
	assert.Empty(t, res.Peers)

	res, err = reg.Join(context.Background(), roomID, apptID, therapistIdent, "conn-t", &fakeConn{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ParticipantCount)
	assert.True(t, res.ShouldStart)
	require.Len(t, res.Peers, 1)
	assert.Equal(t, clientIdentity.UserID, res.Peers[0].UserID)
}

func TestJoinRefusals(t *testing.T) {
	cancelled := confirmedSnapshot()
	cancelled.AppointmentID = "appt-cancelled"
	cancelled.Status = domain.AppointmentCancelled

	unpaid := confirmedSnapshot()
	unpaid.AppointmentID = "appt-unpaid"
	unpaid.Payment = domain.PaymentPending

	tests := []struct {
		name     string
		room     domain.RoomID
		appt     domain.AppointmentID
		identity domain.Identity
		want     error
	}{
		{"unknown appointment", roomID, "appt-missing", clientIdentity, core.ErrAppointmentNotFound},
		{"not a party", roomID, apptID, strangerIdent, core.ErrForbidden},
		{"cancelled", roomID, "appt-cancelled", clientIdentity, core.ErrInvalidState},
		{"unpaid", roomID, "appt-unpaid", clientIdentity, core.ErrPaymentRequired},
		{"forged room", "room-forged", apptID, clientIdentity, core.ErrRoomMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &captureSink{}
			reg := NewRegistry(newFakeDirectory(confirmedSnapshot(), cancelled, unpaid), sink)
			_, err := reg.Join(context.Background(), tt.room, tt.appt, tt.identity, "conn-x", &fakeConn{})
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, reg.List(), "a refused join must not leave a room behind")
		})
	}
}

func TestJoinRefusalsRaiseIncidents(t *testing.T) {
	sink := &captureSink{}
	reg := NewRegistry(newFakeDirectory(confirmedSnapshot()), sink)

	_, err := reg.Join(context.Background(), roomID, apptID, strangerIdent, "conn-s", &fakeConn{})
	require.ErrorIs(t, err, core.ErrForbidden)

	_, err = reg.Join(context.Background(), "room-forged", apptID, clientIdentity, "conn-c", &fakeConn{})
	require.ErrorIs(t, err, core.ErrRoomMismatch)

	assert.Equal(t,
		[]core.IncidentKind{core.IncidentForbiddenJoin, core.IncidentRoomMismatch},
		sink.incidentKinds())
}

func TestSnapshotFetchedFreshPerJoin(t *testing.T) {
	dir := newFakeDirectory(confirmedSnapshot())
	reg := NewRegistry(dir, &captureSink{})

	for i := 0; i < 3; i++ {
		_, err := reg.Join(context.Background(), roomID, apptID, clientIdentity,
			domain.ConnectionID(fmt.Sprintf("conn-%d", i)), &fakeConn{})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, dir.calls)
}

func TestReconnectReplacesConnection(t *testing.T) {
	sink := &captureSink{}
	reg := NewRegistry(newFakeDirectory(confirmedSnapshot()), sink)

	_, err := reg.Join(context.Background(), roomID, apptID, clientIdentity, "conn-old", &fakeConn{})
	require.NoError(t, err)

	res, err := reg.Join(context.Background(), roomID, apptID, clientIdentity, "conn-new", &fakeConn{})
	require.NoError(t, err)
	assert.True(t, res.Reconnect)
	assert.Equal(t, 1, res.ParticipantCount, "reconnect must not grow the roster")
	assert.Equal(t, 1, sink.joins, "reconnect must not count as a join")

	// The old connection id no longer resolves; the new one does.
	assert.False(t, reg.IsMember(roomID, "conn-old"))
	assert.True(t, reg.IsMember(roomID, "conn-new"))

	// A stale leave from the replaced connection is a no-op.
	_, ok := reg.Leave(roomID, "conn-old")
	assert.False(t, ok)
	assert.True(t, reg.IsMember(roomID, "conn-new"))
}

func TestJoinDiscardedWhenConnectionDied(t *testing.T) {
	reg := NewRegistry(newFakeDirectory(confirmedSnapshot()), &captureSink{})

	dead := &fakeConn{}
	dead.Close()
	_, err := reg.Join(context.Background(), roomID, apptID, clientIdentity, "conn-dead", dead)
	require.ErrorIs(t, err, ErrConnectionClosed)
	assert.Empty(t, reg.List())
}

func TestLeaveRemovesRoomWhenEmpty(t *testing.T) {
	reg := NewRegistry(newFakeDirectory(confirmedSnapshot()), &captureSink{})

	_, err := reg.Join(context.Background(), roomID, apptID, clientIdentity, "conn-c", &fakeConn{})
	require.NoError(t, err)
	_, err = reg.Join(context.Background(), roomID, apptID, therapistIdent, "conn-t", &fakeConn{})
	require.NoError(t, err)

	res, ok := reg.Leave(roomID, "conn-c")
	require.True(t, ok)
	assert.False(t, res.Empty)
	assert.Equal(t, 1, res.Remaining)
	require.Len(t, reg.List(), 1)

	res, ok = reg.Leave(roomID, "conn-t")
	require.True(t, ok)
	assert.True(t, res.Empty)
	assert.Empty(t, reg.List(), "room must be removed the moment it becomes empty")

	// A fresh join recreates the room at not_started.
	join, err := reg.Join(context.Background(), roomID, apptID, clientIdentity, "conn-c2", &fakeConn{})
	require.NoError(t, err)
	assert.Equal(t, 1, join.ParticipantCount)
	rooms := reg.List()
	require.Len(t, rooms, 1)
	assert.Equal(t, domain.CallNotStarted.String(), rooms[0].State)
}

func TestDisconnectCleanupLeavesAllRooms(t *testing.T) {
	reg := NewRegistry(newFakeDirectory(confirmedSnapshot()), &captureSink{})

	_, err := reg.Join(context.Background(), roomID, apptID, clientIdentity, "conn-c", &fakeConn{})
	require.NoError(t, err)

	results := reg.DisconnectCleanup("conn-c")
	require.Len(t, results, 1)
	assert.True(t, results[0].Empty)
	assert.Empty(t, reg.List())

	assert.Empty(t, reg.DisconnectCleanup("conn-unknown"))
}

func TestUserIDUniqueUnderChurn(t *testing.T) {
	reg := NewRegistry(newFakeDirectory(confirmedSnapshot()), &captureSink{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := domain.ConnectionID(fmt.Sprintf("conn-%d", i))
			_, err := reg.Join(context.Background(), roomID, apptID, clientIdentity, connID, &fakeConn{})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	_, roster, ok := reg.Snapshot(roomID)
	require.True(t, ok)
	assert.Len(t, roster, 1, "same userId must never occupy two roster entries")
}

func TestResolveTarget(t *testing.T) {
	reg := NewRegistry(newFakeDirectory(confirmedSnapshot()), &captureSink{})

	_, err := reg.Join(context.Background(), roomID, apptID, clientIdentity, "conn-c", &fakeConn{})
	require.NoError(t, err)
	target := &fakeConn{}
	_, err = reg.Join(context.Background(), roomID, apptID, therapistIdent, "conn-t", target)
	require.NoError(t, err)

	conn, err := reg.ResolveTarget(roomID, "conn-c", "conn-t")
	require.NoError(t, err)
	assert.Same(t, target, conn.(*fakeConn))

	_, err = reg.ResolveTarget(roomID, "conn-outsider", "conn-t")
	assert.ErrorIs(t, err, core.ErrNotInRoom)

	_, err = reg.ResolveTarget(roomID, "conn-c", "conn-gone")
	assert.ErrorIs(t, err, core.ErrInvalidTarget)

	_, err = reg.ResolveTarget("room-other", "conn-c", "conn-t")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestBroadcastSkipsSender(t *testing.T) {
	reg := NewRegistry(newFakeDirectory(confirmedSnapshot()), &captureSink{})

	sender := &fakeConn{}
	peer := &fakeConn{}
	_, err := reg.Join(context.Background(), roomID, apptID, clientIdentity, "conn-c", sender)
	require.NoError(t, err)
	_, err = reg.Join(context.Background(), roomID, apptID, therapistIdent, "conn-t", peer)
	require.NoError(t, err)

	sent := reg.Broadcast(roomID, core.Frame(`{"type":"user-joined"}`), "conn-c")
	assert.Equal(t, 1, sent)
	assert.Empty(t, sender.frames)
	assert.Len(t, peer.frames, 1)
}
