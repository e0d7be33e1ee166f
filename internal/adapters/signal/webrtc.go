package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

// handleSignalMessage relays one offer/answer/ice-candidate. The payload is
// forwarded verbatim; validation and co-membership checks live in the relay.
func (ctl *Controller) handleSignalMessage(cl *client, kind core.SignalKind, data []byte) {
	type signalPayload struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
		To      string          `json:"to" validate:"required"`
		RoomID  string          `json:"roomId" validate:"required"`
	}
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("kind", string(kind)).Msg("bad signal payload")
		ctl.sendError(cl.ws, core.MsgSignalingError, core.ErrValidation)
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(cl.ws, core.MsgSignalingError, core.ErrValidation)
		return
	}

	err := ctl.Relay.Forward(
		kind,
		p.Payload,
		cl.id.UserID,
		cl.connID,
		domain.ConnectionID(p.To),
		domain.RoomID(p.RoomID),
	)
	if err != nil {
		ctl.sendError(cl.ws, core.MsgSignalingError, err)
	}
}
