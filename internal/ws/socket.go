package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// TokenValidator authenticates a bearer token and yields the user id.
type TokenValidator interface {
	Validate(token string) (int, error)
}

// SocketHandler upgrades realtime connections, maintains presence, and
// drives the room-based chat events.
type SocketHandler struct {
	relay         *Relay
	registry      *presence.Registry
	conversations repositories.ConversationRepository
	validator     TokenValidator
	audit         *telemetry.AuditEmitter
}

// NewSocketHandler constructs a SocketHandler.
func NewSocketHandler(relay *Relay, registry *presence.Registry, conversations repositories.ConversationRepository, validator TokenValidator, audit *telemetry.AuditEmitter) *SocketHandler {
	return &SocketHandler{
		relay:         relay,
		registry:      registry,
		conversations: conversations,
		validator:     validator,
		audit:         audit,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers the user's presence, and
// serves the frame loop until disconnect.
func (h *SocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := h.validator.Validate(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	h.relay.Register(info.ConnID, conn)
	h.registry.Register(userID, info.ConnID)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.audit.Emit(ctx, info.RequestID, &userID, telemetry.AuditPayload{Action: "ws_connect"})

	// net/http cancels the request context as soon as Handle returns,
	// hijacked or not; the read loop outlives the handler and still
	// queries the store on join_chat, so it gets a detached context that
	// keeps the span values without the cancellation.
	go h.readLoop(context.WithoutCancel(ctx), conn, info)
}

func (h *SocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, info ConnInfo) {
	defer func() {
		h.registry.Unregister(info.ConnID)
		h.relay.Unregister(info.ConnID)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.audit.Emit(ctx, info.RequestID, &info.UserID, telemetry.AuditPayload{
			Action: "ws_disconnect",
			Detail: time.Since(info.ConnectedAt).String(),
		})
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		h.handleFrame(ctx, frame, info)
	}
}

func (h *SocketHandler) handleFrame(ctx context.Context, frame models.ClientFrame, info ConnInfo) {
	switch frame.Type {
	case "join_chat":
		conv, err := h.conversations.Get(ctx, frame.ConversationID)
		if err != nil || !conv.HasParticipant(info.UserID) {
			return
		}
		h.relay.JoinRoom(info.ConnID, frame.ConversationID)
		observability.IncWSEvent("join_chat")
	case "send_message":
		// Room-relay path: fan the message out to whoever joined the
		// room. Durable sends go through the HTTP endpoint.
		h.relay.BroadcastToRoom(frame.ConversationID, "receive_message", frame.Message)
		observability.IncWSEvent("send_message")
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		if len(header) > 7 && header[:7] == "Bearer " {
			return header[7:]
		}
		return ""
	}
	return c.Query("token")
}
