package domain

import "time"

type RoomID string

// CallState is the per-room lifecycle. It only ever advances forward and is
// never reset while the room object exists.
type CallState int

const (
	CallNotStarted CallState = iota
	CallInProgress
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallNotStarted:
		return "not_started"
	case CallInProgress:
		return "in_progress"
	case CallEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Room is the in-memory state for one live call, bound 1:1 to an appointment.
type Room struct {
	ID            RoomID        `json:"roomId"`
	AppointmentID AppointmentID `json:"appointmentId"`
	State         CallState     `json:"-"`
	StartedAt     *time.Time    `json:"startedAt,omitempty"`
}
