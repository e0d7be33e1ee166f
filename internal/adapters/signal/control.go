package signal

import "github.com/calmbridge/televisit/internal/core"

func (ctl *Controller) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
	}{Type: core.MsgPong})
}
