package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/calmbridge/televisit/internal/adapters/gate"
	"github.com/calmbridge/televisit/internal/app"
	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Options struct {
	ReadLimit  int64
	SendBuffer int
}

// Controller owns the signaling socket surface: one read/write pump pair per
// connection, typed command dispatch, and the error mapping back to clients.
type Controller struct {
	Gate        *gate.Gatekeeper
	Registry    *app.Registry
	Coordinator *app.Coordinator
	Relay       *app.Relay
	Sink        core.EventSink

	opts     Options
	validate *validator.Validate
}

func NewController(
	gk *gate.Gatekeeper,
	reg *app.Registry,
	coord *app.Coordinator,
	relay *app.Relay,
	sink core.EventSink,
	opts Options,
) *Controller {
	if sink == nil {
		sink = core.NopSink{}
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &Controller{
		Gate:        gk,
		Registry:    reg,
		Coordinator: coord,
		Relay:       relay,
		Sink:        sink,
		opts:        opts,
		validate:    validator.New(),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// client is the per-connection state: the immutable identity attached at
// authentication time plus the ephemeral connection id.
type client struct {
	ws     *WsSignalConn
	id     domain.Identity
	connID domain.ConnectionID
	ctx    context.Context
}

// Origin policy is enforced by the gatekeeper before the upgrade; the
// upgrader itself must not second-guess it.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal screens, authenticates and upgrades one connection, then
// starts its pumps. Refusals happen before the upgrade so no room logic can
// run on an unauthenticated channel.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ctl.Sink.ConnectionAttempt()

	if err := ctl.Gate.Admit(c.ClientIP()); err != nil {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": core.ErrorCode(err)})
		return
	}
	if err := ctl.Gate.Screen(c.Request); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": core.ErrorCode(err)})
		return
	}
	identity, err := ctl.Gate.Authenticate(c.Request.Context(), gate.CredentialFromRequest(c.Request))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": core.ErrorCode(err)})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	connCtx, cancel := context.WithCancel(ctx)
	cl := &client{
		ws: &WsSignalConn{
			conn: ws,
			send: make(chan core.Frame, ctl.opts.SendBuffer),
		},
		id:     identity,
		connID: domain.ConnectionID(uuid.NewString()),
		ctx:    connCtx,
	}
	log.Info().Str("module", "signal").
		Str("conn", string(cl.connID)).
		Str("user", string(identity.UserID)).
		Str("role", string(identity.Role)).
		Msg("connection authenticated")

	go ctl.writePump(connCtx, cl.ws)
	go ctl.readPump(connCtx, cancel, cl)
}

func (ctl *Controller) sendJSON(c *WsSignalConn, v any) {
	frame, ok := core.Encode(v)
	if !ok {
		return
	}
	_ = c.TrySend(frame)
}

func (ctl *Controller) sendError(c *WsSignalConn, msgType string, err error) {
	ctl.sendJSON(c, core.ErrorEvent{Type: msgType, Error: core.ErrorCode(err)})
}
