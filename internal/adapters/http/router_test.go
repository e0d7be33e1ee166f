package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmbridge/televisit/internal/app"
	"github.com/calmbridge/televisit/internal/config"
	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

type stubDirectory struct {
	snap domain.Snapshot
}

func (d stubDirectory) Lookup(context.Context, domain.AppointmentID) (domain.Snapshot, error) {
	return d.snap, nil
}

type stubConn struct{}

func (stubConn) TrySend(core.Frame) error { return nil }
func (stubConn) Alive() bool              { return true }
func (stubConn) Close()                   {}

func newTestRouter(t *testing.T) (*app.Registry, http.Handler) {
	t.Helper()
	reg := app.NewRegistry(stubDirectory{snap: domain.Snapshot{
		AppointmentID: "appt-1",
		ClientID:      "user-client",
		TherapistID:   "user-therapist",
		Status:        domain.AppointmentConfirmed,
		Payment:       domain.PaymentPaid,
		RoomID:        "room-1",
	}}, nil)
	cfg := &config.Config{Mode: "release", Secret: "test"}
	r := SetupRouter(context.Background(), cfg, nil, reg, prometheus.NewRegistry())
	return reg, r
}

func TestHealthz(t *testing.T) {
	_, r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoomsAPI(t *testing.T) {
	reg, r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Rooms []app.RoomInfo `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Empty(t, listing.Rooms)

	id := domain.Identity{UserID: "user-client", DisplayName: "Avery", Role: domain.RoleClient}
	_, err := reg.Join(context.Background(), "room-1", "appt-1", id, "conn-c", stubConn{})
	require.NoError(t, err)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/room-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var snap struct {
		RoomID       string            `json:"roomId"`
		CallState    string            `json:"callState"`
		Participants []json.RawMessage `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "room-1", snap.RoomID)
	assert.Equal(t, domain.CallNotStarted.String(), snap.CallState)
	assert.Len(t, snap.Participants, 1)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/room-unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsExposed(t *testing.T) {
	_, r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
