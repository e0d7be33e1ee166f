package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinable(t *testing.T) {
	assert.True(t, AppointmentConfirmed.Joinable())
	assert.True(t, AppointmentInProgress.Joinable())
	assert.False(t, AppointmentCompleted.Joinable())
	assert.False(t, AppointmentCancelled.Joinable())
	assert.False(t, AppointmentDeclined.Joinable())
	assert.False(t, AppointmentStatus("").Joinable())
}

func TestPaymentConfirmed(t *testing.T) {
	assert.True(t, PaymentPaid.Confirmed())
	assert.True(t, PaymentComped.Confirmed())
	assert.True(t, PaymentWaived.Confirmed())
	assert.False(t, PaymentPending.Confirmed())
	assert.False(t, PaymentFailed.Confirmed())
}

func TestSnapshotAuthorizes(t *testing.T) {
	snap := Snapshot{ClientID: "user-client", TherapistID: "user-therapist"}

	assert.True(t, snap.Authorizes(Identity{UserID: "user-client", Role: RoleClient}))
	assert.True(t, snap.Authorizes(Identity{UserID: "user-therapist", Role: RoleTherapist}))
	assert.False(t, snap.Authorizes(Identity{UserID: "user-stranger", Role: RoleClient}))
	assert.True(t, snap.Authorizes(Identity{UserID: "user-ops", Role: RoleAdmin}),
		"admins may observe any session")
}

func TestNewIdentity(t *testing.T) {
	id, err := NewIdentity("user-1", "Avery", RoleClient)
	require.NoError(t, err)
	assert.Equal(t, UserID("user-1"), id.UserID)

	_, err = NewIdentity("", "Avery", RoleClient)
	assert.ErrorIs(t, err, ErrUserIDEmpty)

	_, err = NewIdentity(UserID(strings.Repeat("x", MaxUserIDLen+1)), "Avery", RoleClient)
	assert.ErrorIs(t, err, ErrUserIDTooLong)

	_, err = NewIdentity("user-1", "", RoleClient)
	assert.ErrorIs(t, err, ErrDisplayNameEmpty)

	_, err = NewIdentity("user-1", "Avery", Role("superuser"))
	assert.ErrorIs(t, err, ErrUnknownRole)

	long, err := NewIdentity("user-1", strings.Repeat("n", MaxDisplayNameLen+20), RoleClient)
	require.NoError(t, err)
	assert.Len(t, long.DisplayName, MaxDisplayNameLen)
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"client", "therapist", "admin"} {
		r, err := ParseRole(s)
		require.NoError(t, err)
		assert.Equal(t, Role(s), r)
	}
	_, err := ParseRole("guest")
	assert.ErrorIs(t, err, ErrUnknownRole)
}
