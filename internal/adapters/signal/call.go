package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

type callPayload struct {
	Type          string `json:"type"`
	RoomID        string `json:"roomId" validate:"required"`
	AppointmentID string `json:"appointmentId"`
}

func (ctl *Controller) parseCallPayload(cl *client, data []byte) (domain.RoomID, bool) {
	var p callPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(cl.ws, core.MsgCallError, core.ErrValidation)
		return "", false
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(cl.ws, core.MsgCallError, core.ErrValidation)
		return "", false
	}
	roomID := domain.RoomID(p.RoomID)
	// Lifecycle commands are only honored from current participants.
	if !ctl.Registry.IsMember(roomID, cl.connID) {
		ctl.sendError(cl.ws, core.MsgCallError, core.ErrNotInRoom)
		return "", false
	}
	return roomID, true
}

func (ctl *Controller) handleStartCall(cl *client, data []byte) {
	roomID, ok := ctl.parseCallPayload(cl, data)
	if !ok {
		return
	}
	actor := cl.id.UserID
	if err := ctl.Coordinator.Start(cl.ctx, roomID, &actor); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("start call refused")
		ctl.sendError(cl.ws, core.MsgCallError, err)
	}
}

func (ctl *Controller) handleEndCall(cl *client, data []byte) {
	roomID, ok := ctl.parseCallPayload(cl, data)
	if !ok {
		return
	}
	actor := cl.id.UserID
	if err := ctl.Coordinator.End(cl.ctx, roomID, &actor); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("end call refused")
		ctl.sendError(cl.ws, core.MsgCallError, err)
	}
}
