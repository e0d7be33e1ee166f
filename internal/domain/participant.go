package domain

import "time"

// Participant is a user's presence in a room. Keyed by UserID: a reconnect
// replaces ConnectionID in place instead of adding a second entry.
type Participant struct {
	UserID       UserID       `json:"userId"`
	ConnectionID ConnectionID `json:"connectionId"`
	DisplayName  string       `json:"displayName"`
	Role         Role         `json:"role"`
	JoinedAt     time.Time    `json:"joinedAt"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(id Identity, conn ConnectionID, now time.Time) Participant {
	return Participant{
		UserID:       id.UserID,
		ConnectionID: conn,
		DisplayName:  id.DisplayName,
		Role:         id.Role,
		JoinedAt:     now,
	}
}
