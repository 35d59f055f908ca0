package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ripple/internal/events"
	"ripple/internal/redis"
	"ripple/internal/services"
	"ripple/internal/transport/httpdto"
	"ripple/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// clientEvent is the inbound frame shape. Events mirror the REST-free
// realtime contract: join_user / join_conversation / leave_conversation
// manage subscriptions, send_message is a pure broadcast trigger that never
// touches durable storage.
type clientEvent struct {
	Event          string          `json:"event"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

type Handler struct {
	auth      *services.AuthService
	hub       *Hub
	publisher *redis.Publisher
	log       *logger.Logger
}

func NewHandler(auth *services.AuthService, hub *Hub, publisher *redis.Publisher, log *logger.Logger) *Handler {
	return &Handler{auth: auth, hub: hub, publisher: publisher, log: log}
}

func (h *Handler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	claims, err := h.auth.ParseAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, userID)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	go client.WriteLoop(ctx)

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		h.handleEvent(ctx, client, data)
	}

	h.hub.Unregister(client)
}

func (h *Handler) handleEvent(ctx context.Context, client *Client, data []byte) {
	var ev clientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}

	switch ev.Event {
	case "join_user":
		// Always the authenticated identity, never a client-supplied id.
		h.hub.Subscribe(client, events.UserChannel(client.UserID))
	case "join_conversation":
		if id, err := uuid.Parse(ev.ConversationID); err == nil {
			h.hub.Subscribe(client, events.ConversationChannel(id))
		}
	case "leave_conversation":
		if id, err := uuid.Parse(ev.ConversationID); err == nil {
			h.hub.Unsubscribe(client, events.ConversationChannel(id))
		}
	case "send_message":
		h.broadcastTrigger(ctx, client, ev)
	}
}

// broadcastTrigger relays a client-sent payload to the conversation topic.
// It goes through the bus so every API instance fans it out, and is
// independent of the durable POST /messages path.
func (h *Handler) broadcastTrigger(ctx context.Context, client *Client, ev clientEvent) {
	id, err := uuid.Parse(ev.ConversationID)
	if err != nil || len(ev.Payload) == 0 {
		return
	}

	env := events.Envelope{
		Event:          events.EventNewMessage,
		ConversationID: id,
		OccurredAt:     time.Now(),
	}
	if err := json.Unmarshal(ev.Payload, &env.Payload); err != nil {
		return
	}
	env.Payload.SenderID = client.UserID
	env.Payload.ConversationID = id

	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if h.publisher == nil {
		// No bus configured: local fan-out only.
		h.hub.Broadcast(events.ConversationChannel(id), data)
		return
	}
	if err := h.publisher.Publish(ctx, events.ConversationChannel(id), data); err != nil && h.log != nil {
		h.log.Errorf("failed to relay client broadcast: %s", err)
	}
}
