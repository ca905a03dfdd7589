package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"dm-service/internal/logging"
)

// Handler upgrades /ws requests and runs each connection's pumps.
type Handler struct {
	lifecycle   *Lifecycle
	upgrader    websocket.Upgrader
	authTimeout time.Duration
	sendBuffer  int
	log         logging.Logger
}

// NewHandler builds the upgrade handler. allowedOrigin "*" accepts any
// origin; requests without an Origin header are always accepted.
func NewHandler(lifecycle *Lifecycle, allowedOrigin string, authTimeout time.Duration, sendBuffer int, log logging.Logger) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
		authTimeout: authTimeout,
		sendBuffer:  sendBuffer,
		log:         log,
	}
}

func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("dm-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request.WithContext(ctx), nil)
	if err != nil {
		h.log.Warn(ctx, "websocket upgrade failed", "error", err)
		return
	}

	client := newClient(conn, newConnInfo(c.Request, span.SpanContext().TraceID().String()), h.sendBuffer)
	connCtx := context.WithoutCancel(ctx)

	h.lifecycle.Open(connCtx, client)
	go client.writePump()
	go h.readPump(connCtx, client)
}

func (h *Handler) readPump(ctx context.Context, c *Client) {
	var timer *time.Timer
	if h.authTimeout > 0 {
		timer = time.AfterFunc(h.authTimeout, func() {
			if !c.authenticated() {
				h.log.Info(ctx, "closing unauthenticated websocket", "conn_id", c.ID())
				c.closeWithReason(websocket.ClosePolicyViolation, "authentication timeout")
			}
		})
	}

	reason := ""
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		h.lifecycle.Disconnect(ctx, c, reason)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			reason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				userID, _ := c.UserID()
				h.lifecycle.publishWS(ctx, c, "ws_error", userID, reason)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.lifecycle.HandleFrame(ctx, c, data)
	}
}
