package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/calmbridge/televisit/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, cl *client) {
	reason := core.DisconnectAbnormal
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(cl.connID)).Msg("readPump closing")
		cl.ws.Close()
		cancel()
		ctl.handleDisconnect(cl, reason)
	}()

	for {
		select {
		case <-ctx.Done():
			reason = core.DisconnectGraceful
			return
		default:
			_, data, err := cl.ws.conn.ReadMessage()
			if err != nil {
				reason = classifyClose(err)
				return
			}
			ctl.dispatch(cl, data)
		}
	}
}

// classifyClose maps the transport close code to the disconnect enum.
// Normal closure and going-away are intentional teardowns; everything else
// counts as a drop for availability metrics.
func classifyClose(err error) core.DisconnectReason {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return core.DisconnectGraceful
	}
	return core.DisconnectAbnormal
}

func (ctl *Controller) dispatch(cl *client, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cl.connID)).Msg("bad json")
		ctl.sendError(cl.ws, core.MsgSignalingError, core.ErrValidation)
		return
	}

	switch env.Type {
	case core.MsgJoinRoom:
		ctl.handleJoin(cl, data)
	case core.MsgLeaveRoom:
		ctl.handleLeave(cl, data)
	case core.MsgStartCall:
		ctl.handleStartCall(cl, data)
	case core.MsgEndCall:
		ctl.handleEndCall(cl, data)
	case core.MsgOffer:
		ctl.handleSignalMessage(cl, core.SignalOffer, data)
	case core.MsgAnswer:
		ctl.handleSignalMessage(cl, core.SignalAnswer, data)
	case core.MsgIceCandidate:
		ctl.handleSignalMessage(cl, core.SignalIceCandidate, data)
	case core.MsgPing:
		ctl.handlePing(cl.ws)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}
