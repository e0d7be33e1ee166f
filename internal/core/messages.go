package core

import (
	"encoding/json"
	"time"

	"github.com/calmbridge/televisit/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Message types on the signaling socket. Commands arrive from clients,
// events are produced by the server. The set is closed: anything else is
// dropped at the dispatch switch.
const (
	// commands
	MsgJoinRoom     = "join-room"
	MsgLeaveRoom    = "leave-room"
	MsgStartCall    = "start-call"
	MsgEndCall      = "end-call"
	MsgOffer        = "offer"
	MsgAnswer       = "answer"
	MsgIceCandidate = "ice-candidate"
	MsgPing         = "ping"

	// events
	MsgJoinSuccess          = "join-success"
	MsgJoinError            = "join-error"
	MsgExistingParticipants = "existing-participants"
	MsgUserJoined           = "user-joined"
	MsgUserLeft             = "user-left"
	MsgCallStarted          = "call-started"
	MsgCallEnded            = "call-ended"
	MsgCallError            = "call-error"
	MsgSignalingError       = "signaling-error"
	MsgPong                 = "pong"
)

// SignalKind is the closed set of relayable negotiation messages.
type SignalKind string

const (
	SignalOffer        SignalKind = MsgOffer
	SignalAnswer       SignalKind = MsgAnswer
	SignalIceCandidate SignalKind = MsgIceCandidate
)

func (k SignalKind) Valid() bool {
	return k == SignalOffer || k == SignalAnswer || k == SignalIceCandidate
}

// SessionDescription is the offer/answer payload. Both fields are required;
// Type must parse as a known SDP type.
type SessionDescription struct {
	Type string `json:"type" validate:"required"`
	SDP  string `json:"sdp" validate:"required"`
}

// Validate performs the structural checks applied once at the boundary.
// The relay never inspects negotiation contents beyond this.
func (d SessionDescription) Validate() error {
	if d.Type == "" || d.SDP == "" {
		return ErrValidation
	}
	if webrtc.NewSDPType(d.Type) == webrtc.SDPTypeUnknown {
		return ErrValidation
	}
	return nil
}

// IceCandidate wraps pion's candidate init. A candidate payload must be
// present; an empty candidate string is the end-of-candidates marker and is
// relayed as-is.
type IceCandidate struct {
	webrtc.ICECandidateInit
}

// ParticipantDTO is a read-only roster view (no transport fields).
type ParticipantDTO struct {
	UserID       domain.UserID       `json:"userId"`
	DisplayName  string              `json:"displayName"`
	Role         domain.Role         `json:"role"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

type JoinSuccessEvent struct {
	Type             string               `json:"type"`
	RoomID           domain.RoomID        `json:"roomId"`
	AppointmentID    domain.AppointmentID `json:"appointmentId"`
	ParticipantCount int                  `json:"participantCount"`
	Role             domain.Role          `json:"role"`
}

type ExistingParticipantsEvent struct {
	Type         string           `json:"type"`
	RoomID       domain.RoomID    `json:"roomId"`
	Participants []ParticipantDTO `json:"participants"`
}

type UserJoinedEvent struct {
	Type         string              `json:"type"`
	UserID       domain.UserID       `json:"userId"`
	DisplayName  string              `json:"displayName"`
	Role         domain.Role         `json:"role"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

type UserLeftEvent struct {
	Type         string              `json:"type"`
	UserID       domain.UserID       `json:"userId"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

type CallStartedEvent struct {
	Type          string               `json:"type"`
	AppointmentID domain.AppointmentID `json:"appointmentId"`
	StartTime     time.Time            `json:"startTime"`
	Status        string               `json:"status"`
}

type CallEndedEvent struct {
	Type            string               `json:"type"`
	AppointmentID   domain.AppointmentID `json:"appointmentId"`
	EndTime         time.Time            `json:"endTime"`
	DurationMinutes int                  `json:"duration"`
	Status          string               `json:"status"`
}

// SignalEnvelope is a relayed negotiation message, forwarded verbatim and
// tagged with the sender's connection id and a timestamp.
type SignalEnvelope struct {
	Type      string              `json:"type"`
	Payload   json.RawMessage     `json:"payload"`
	From      domain.ConnectionID `json:"from"`
	RoomID    domain.RoomID       `json:"roomId"`
	Timestamp time.Time           `json:"timestamp"`
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Encode marshals an event for the wire. Marshal failures are programming
// errors on our own types; they are logged and yield a nil frame that
// TrySend implementations ignore.
func Encode(v any) (Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.messages").Msg("encode event")
		return nil, false
	}
	return b, true
}
