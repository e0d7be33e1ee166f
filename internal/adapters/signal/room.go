package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/calmbridge/televisit/internal/app"
	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

func (ctl *Controller) handleJoin(cl *client, data []byte) {
	type joinPayload struct {
		Type          string `json:"type"`
		RoomID        string `json:"roomId" validate:"required"`
		AppointmentID string `json:"appointmentId" validate:"required"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(cl.ws, core.MsgJoinError, core.ErrValidation)
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(cl.ws, core.MsgJoinError, core.ErrValidation)
		return
	}

	roomID := domain.RoomID(p.RoomID)
	appointmentID := domain.AppointmentID(p.AppointmentID)

	res, err := ctl.Registry.Join(cl.ctx, roomID, appointmentID, cl.id, cl.connID, cl.ws)
	if err != nil {
		if errors.Is(err, app.ErrConnectionClosed) {
			return
		}
		log.Warn().Err(err).Str("module", "signal").
			Str("conn", string(cl.connID)).
			Str("room", p.RoomID).
			Msg("join refused")
		ctl.sendError(cl.ws, core.MsgJoinError, err)
		return
	}

	ctl.sendJSON(cl.ws, core.JoinSuccessEvent{
		Type:             core.MsgJoinSuccess,
		RoomID:           res.RoomID,
		AppointmentID:    res.AppointmentID,
		ParticipantCount: res.ParticipantCount,
		Role:             res.Role,
	})
	ctl.sendJSON(cl.ws, core.ExistingParticipantsEvent{
		Type:         core.MsgExistingParticipants,
		RoomID:       res.RoomID,
		Participants: res.Peers,
	})

	if !res.Reconnect {
		if frame, ok := core.Encode(core.UserJoinedEvent{
			Type:         core.MsgUserJoined,
			UserID:       cl.id.UserID,
			DisplayName:  cl.id.DisplayName,
			Role:         cl.id.Role,
			ConnectionID: cl.connID,
		}); ok {
			ctl.Registry.Broadcast(res.RoomID, frame, cl.connID)
		}
	}

	if res.ShouldStart {
		if err := ctl.Coordinator.Start(cl.ctx, res.RoomID, nil); err != nil {
			log.Error().Err(err).Str("module", "signal").Str("room", p.RoomID).Msg("auto start failed")
			ctl.sendError(cl.ws, core.MsgCallError, err)
		}
	}
}

func (ctl *Controller) handleLeave(cl *client, data []byte) {
	type leavePayload struct {
		Type   string `json:"type"`
		RoomID string `json:"roomId" validate:"required"`
	}
	var p leavePayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(cl.ws, core.MsgSignalingError, core.ErrValidation)
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(cl.ws, core.MsgSignalingError, core.ErrValidation)
		return
	}

	res, ok := ctl.Registry.Leave(domain.RoomID(p.RoomID), cl.connID)
	if !ok {
		return
	}
	ctl.afterLeave(cl, res, core.DisconnectGraceful)
}

// handleDisconnect runs cleanup for a dropped transport: every room still
// holding the connection is left, and in-progress disconnects are classified
// for availability metrics.
func (ctl *Controller) handleDisconnect(cl *client, reason core.DisconnectReason) {
	for _, res := range ctl.Registry.DisconnectCleanup(cl.connID) {
		if res.WasInProgress && !res.Empty && reason == core.DisconnectAbnormal {
			ctl.Sink.CallDropped(res.RoomID, cl.id.UserID)
		}
		ctl.afterLeave(cl, res, reason)
	}
}

// afterLeave notifies remaining members and ends the call if the room was
// evacuated while in progress. A leave that merely reduces the count does
// not end the call.
func (ctl *Controller) afterLeave(cl *client, res app.LeaveResult, reason core.DisconnectReason) {
	if !res.Empty {
		if frame, ok := core.Encode(core.UserLeftEvent{
			Type:         core.MsgUserLeft,
			UserID:       res.Participant.UserID,
			ConnectionID: res.Participant.ConnectionID,
		}); ok {
			ctl.Registry.Broadcast(res.RoomID, frame, cl.connID)
		}
	}

	if res.Empty && res.WasInProgress {
		cause := core.EndEvacuation
		if reason == core.DisconnectAbnormal {
			cause = core.EndDrop
		}
		ctl.Coordinator.AutoEnd(cl.ctx, res.RoomID, res.AppointmentID, cause)
	}
}
