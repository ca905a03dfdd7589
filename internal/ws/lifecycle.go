package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"dm-service/internal/auth"
	"dm-service/internal/logging"
	"dm-service/internal/observability"
)

const storeTimeout = 5 * time.Second

var inboundEvents = map[string]bool{
	EventAuthenticate: true,
	EventSendMessage:  true,
	EventTyping:       true,
	EventStopTyping:   true,
}

// PresenceStore persists the durable copy of presence. Writes are best effort.
type PresenceStore interface {
	SetOnline(ctx context.Context, id string) error
	SetOffline(ctx context.Context, id string, lastSeen time.Time) error
}

// Lifecycle drives each connection through authenticate, events and close,
// and is the only writer of the Hub.
type Lifecycle struct {
	hub      *Hub
	verifier auth.Verifier
	store    PresenceStore
	log      logging.Logger
	now      func() time.Time

	// presence writes run off the connection goroutines, one at a time and
	// in the order the transitions happened.
	pmu      sync.Mutex
	pending  []presenceWrite
	draining bool
	wg       sync.WaitGroup
}

type presenceWrite struct {
	ctx    context.Context
	op     string
	userID string
	fn     func(ctx context.Context) error
}

func NewLifecycle(hub *Hub, verifier auth.Verifier, store PresenceStore, log logging.Logger) *Lifecycle {
	return &Lifecycle{
		hub:      hub,
		verifier: verifier,
		store:    store,
		log:      log,
		now:      time.Now,
	}
}

func (l *Lifecycle) Hub() *Hub {
	return l.hub
}

// Wait blocks until queued presence writes have finished.
func (l *Lifecycle) Wait() {
	l.wg.Wait()
}

// Open registers a fresh, unauthenticated connection.
func (l *Lifecycle) Open(ctx context.Context, c *Client) {
	l.hub.attach(c)
	observability.IncWSActive()
	l.publishWS(ctx, c, "ws_connect", "", "")
	l.log.Debug(ctx, "websocket connected", "conn_id", c.ID(), "ip", c.info.IP)
}

// HandleFrame dispatches one inbound text frame.
func (l *Lifecycle) HandleFrame(ctx context.Context, c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		l.log.Debug(ctx, "dropping malformed frame", "conn_id", c.ID())
		return
	}
	if inboundEvents[env.Event] {
		observability.IncWSEvent(env.Event)
	}

	switch env.Event {
	case EventAuthenticate:
		token, err := decodeCredential(env.Data)
		if err != nil {
			c.enqueue(encodeFrame(EventAuthError, ErrorPayload{Error: "Authentication failed"}))
			return
		}
		l.Authenticate(ctx, c, token)
	case EventSendMessage:
		l.relayMessage(ctx, c, env.Data)
	case EventTyping:
		l.relayTyping(c, env.Data, EventUserTyping)
	case EventStopTyping:
		l.relayTyping(c, env.Data, EventUserStopTyping)
	default:
		l.log.Debug(ctx, "unknown event", "conn_id", c.ID(), "event", env.Event)
	}
}

// Authenticate binds c to the identity behind token. An empty token falls
// back to the credential presented during the handshake. Failures leave the
// connection unauthenticated and open for a retry.
func (l *Lifecycle) Authenticate(ctx context.Context, c *Client, token string) {
	if token == "" {
		token = c.info.HandshakeToken
	}
	if token == "" {
		c.enqueue(encodeFrame(EventAuthError, ErrorPayload{Error: "No authentication token"}))
		return
	}

	if c.authenticated() {
		c.enqueue(encodeFrame(EventAuthError, ErrorPayload{Error: "Already authenticated"}))
		return
	}

	userID, err := l.verifier.Verify(ctx, token)
	if err != nil {
		l.log.Info(ctx, "websocket authentication failed", "conn_id", c.ID(), "error", err)
		c.enqueue(encodeFrame(EventAuthError, ErrorPayload{Error: "Invalid or expired token"}))
		return
	}

	if err := c.bind(userID); err != nil {
		if errors.Is(err, ErrAlreadyAuthenticated) {
			c.enqueue(encodeFrame(EventAuthError, ErrorPayload{Error: "Already authenticated"}))
		}
		return
	}

	cameOnline := l.hub.join(c, userID)
	c.enqueue(encodeFrame(EventAuthenticated, AuthenticatedPayload{Success: true, UserID: userID}))
	l.log.Info(ctx, "websocket authenticated", "conn_id", c.ID(), "user_id", userID, "connections", l.hub.Connections(userID))

	if cameOnline {
		l.persist(ctx, "set online", userID, func(ctx context.Context) error {
			return l.store.SetOnline(ctx, userID)
		})
		l.publishPresence(ctx, c, userID, "presence_online")
	}
}

// Disconnect closes c and, when it was its user's last connection, takes
// the user offline and stamps last seen.
func (l *Lifecycle) Disconnect(ctx context.Context, c *Client, reason string) {
	closedAt := l.now()
	c.close()
	userID := c.unbind()

	l.hub.detach(c)
	observability.DecWSActive()
	l.publishWS(ctx, c, "ws_disconnect", userID, reason)

	if userID == "" {
		return
	}
	if !l.hub.leave(c, userID) {
		return
	}
	l.log.Info(ctx, "user offline", "user_id", userID)
	l.persist(ctx, "set offline", userID, func(ctx context.Context) error {
		return l.store.SetOffline(ctx, userID, closedAt)
	})
	l.publishPresence(ctx, c, userID, "presence_offline")
}

// relayMessage forwards an already persisted message to the recipient's live
// connections and acknowledges the sender.
func (l *Lifecycle) relayMessage(ctx context.Context, c *Client, raw json.RawMessage) {
	senderID, err := c.UserID()
	if err != nil {
		c.enqueue(encodeFrame(EventMessageError, ErrorPayload{Error: "Not authenticated"}))
		return
	}

	var req SendMessagePayload
	if err := json.Unmarshal(raw, &req); err != nil || req.RecipientID.IsZero() {
		c.enqueue(encodeFrame(EventMessageError, ErrorPayload{Error: "Recipient ID is required"}))
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.enqueue(encodeFrame(EventMessageError, ErrorPayload{Error: "Content must be a non-empty string"}))
		return
	}

	delivered := l.hub.RouteToUser(req.RecipientID.ID(), encodeFrame(EventReceiveMessage, ReceiveMessagePayload{
		SenderID:  senderID,
		Content:   content,
		Timestamp: l.now().UTC(),
	}))
	observability.IncMessageSent("ws")
	c.enqueue(encodeFrame(EventMessageSent, MessageSentPayload{Success: true}))
	l.log.Debug(ctx, "message relayed", "sender_id", senderID, "recipient_id", req.RecipientID.ID(), "live", delivered)
}

// relayTyping forwards a typing indicator. Unauthenticated senders and
// offline recipients are ignored.
func (l *Lifecycle) relayTyping(c *Client, raw json.RawMessage, event string) {
	senderID, err := c.UserID()
	if err != nil {
		return
	}
	recipientID, err := decodeUserRef(raw)
	if err != nil || recipientID == "" {
		return
	}
	l.hub.RouteToUser(recipientID, encodeFrame(event, TypingPayload{UserID: senderID}))
}

// persist queues a durable presence write and returns immediately.
func (l *Lifecycle) persist(ctx context.Context, op, userID string, fn func(ctx context.Context) error) {
	l.pmu.Lock()
	l.pending = append(l.pending, presenceWrite{ctx: context.WithoutCancel(ctx), op: op, userID: userID, fn: fn})
	if l.draining {
		l.pmu.Unlock()
		return
	}
	l.draining = true
	l.wg.Add(1)
	l.pmu.Unlock()

	go l.drainPresence()
}

func (l *Lifecycle) drainPresence() {
	defer l.wg.Done()
	for {
		l.pmu.Lock()
		if len(l.pending) == 0 {
			l.draining = false
			l.pmu.Unlock()
			return
		}
		w := l.pending[0]
		l.pending = l.pending[1:]
		l.pmu.Unlock()

		l.writePresence(w)
	}
}

func (l *Lifecycle) writePresence(w presenceWrite) {
	ctx, cancel := context.WithTimeout(w.ctx, storeTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			l.log.Error(ctx, "presence persist panicked", "op", w.op, "user_id", w.userID, "panic", r)
		}
	}()
	if err := w.fn(ctx); err != nil {
		l.log.Warn(ctx, "presence persist failed", "op", w.op, "user_id", w.userID, "error", err)
	}
}

func (l *Lifecycle) publishWS(ctx context.Context, c *Client, event, userID, reason string) {
	observability.IncWSEvent(event)
	_ = observability.PublishEvent(ctx, observability.RoutingWSEvents, observability.NewEnvelope("ws_events", event, map[string]any{
		"ws": map[string]any{
			"event":       event,
			"conn_id":     c.ID(),
			"duration_ms": time.Since(c.info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_id":   userID,
			"device_id": c.info.DeviceID,
			"ip":        c.info.IP,
		},
	}), observability.BuildHeaders(c.info.RequestID, c.info.TraceID))
}

func (l *Lifecycle) publishPresence(ctx context.Context, c *Client, userID, event string) {
	_ = observability.PublishEvent(ctx, observability.RoutingPresenceEvents, observability.NewEnvelope("presence_events", event, map[string]any{
		"user_id":   userID,
		"is_online": event == "presence_online",
		"conn_id":   c.ID(),
	}), observability.BuildHeaders(c.info.RequestID, c.info.TraceID))
}
