package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

// Relay forwards negotiation messages between two participants already
// verified to share a room. Payloads are validated structurally once at this
// boundary and forwarded verbatim, tagged with the sender's connection id
// and a timestamp. Media never flows through here.
type Relay struct {
	Registry *Registry
	Sink     core.EventSink
}

func NewRelay(reg *Registry, sink core.EventSink) *Relay {
	if sink == nil {
		sink = core.NopSink{}
	}
	return &Relay{Registry: reg, Sink: sink}
}

// Forward validates and delivers one signaling message. Co-membership of
// sender and target is re-checked per message; a failure raises a security
// incident because cross-room or stale-participant signaling is the
// signature of injection attacks.
func (rl *Relay) Forward(
	kind core.SignalKind,
	payload json.RawMessage,
	sender domain.UserID,
	from, to domain.ConnectionID,
	roomID domain.RoomID,
) error {
	if !kind.Valid() {
		return core.ErrValidation
	}
	if err := validatePayload(kind, payload); err != nil {
		return err
	}

	target, err := rl.Registry.ResolveTarget(roomID, from, to)
	if err != nil {
		rl.Sink.SecurityIncident(core.IncidentInvalidTarget, roomID, sender,
			fmt.Sprintf("%s from %s to unresolved target %s", kind, from, to))
		return fmt.Errorf("%w: %v", core.ErrInvalidTarget, err)
	}

	env := core.SignalEnvelope{
		Type:      string(kind),
		Payload:   payload,
		From:      from,
		RoomID:    roomID,
		Timestamp: time.Now(),
	}
	frame, ok := core.Encode(env)
	if !ok {
		return core.ErrInternal
	}
	if err := target.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").
			Str("room", string(roomID)).
			Str("kind", string(kind)).
			Msg("relay send dropped")
		return nil
	}
	log.Debug().Str("module", "app.relay").
		Str("room", string(roomID)).
		Str("kind", string(kind)).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("relayed")
	return nil
}

var jsonNull = []byte("null")

func validatePayload(kind core.SignalKind, payload json.RawMessage) error {
	if len(payload) == 0 || bytes.Equal(bytes.TrimSpace(payload), jsonNull) {
		return core.ErrValidation
	}
	switch kind {
	case core.SignalOffer, core.SignalAnswer:
		var desc core.SessionDescription
		if err := json.Unmarshal(payload, &desc); err != nil {
			return core.ErrValidation
		}
		return desc.Validate()
	case core.SignalIceCandidate:
		var cand core.IceCandidate
		if err := json.Unmarshal(payload, &cand); err != nil {
			return core.ErrValidation
		}
		return nil
	default:
		return core.ErrValidation
	}
}
