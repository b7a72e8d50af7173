package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"dq-agent/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Push frame types of the channel protocol.
const (
	MsgTypeAgentResponse = "agent_response"
	MsgTypeNotification  = "notification"
	msgTypeAuthSuccess   = "auth_success"
)

type inboundMessage struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
}

type pushFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Hub upgrades HTTP requests to websocket channels and serves as the push
// side of the channel protocol. Clients open a channel, optionally send
// {"type":"auth","username":...} to bind it, and receive agent_response
// or notification frames.
type Hub struct {
	registry *ConnectionRegistry
	upgrader websocket.Upgrader
	log      *zerolog.Logger
}

func NewHub(registry *ConnectionRegistry, logger *zerolog.Logger) *Hub {
	compLog := logger.With().Str("component", "WSHub").Logger()
	return &Hub{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: &compLog,
	}
}

// HandleConnection is the GET /ws handler.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	channelID := r.URL.Query().Get("session_id")
	if channelID == "" {
		channelID = uuid.NewString()
	}
	ch := newSafeChannel(conn)
	if displaced := h.registry.Register(channelID, ch); displaced != nil {
		h.log.Warn().Str("channel_id", channelID).Msg("channel id reused, closing displaced connection")
		_ = displaced.Close()
	}
	h.log.Info().Str("channel_id", channelID).Msg("websocket connected")

	go h.readLoop(channelID, conn, ch)
}

func (h *Hub) readLoop(channelID string, conn *websocket.Conn, ch Channel) {
	defer func() {
		h.registry.Unregister(channelID, ch)
		_ = conn.Close()
		h.log.Info().Str("channel_id", channelID).Msg("websocket disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Warn().Str("channel_id", channelID).Msg("discarding malformed channel message")
			continue
		}
		if msg.Type == "auth" && msg.Username != "" {
			if h.registry.Bind(channelID, msg.Username) {
				h.log.Info().Str("channel_id", channelID).Str("username", msg.Username).Msg("channel authenticated")
				_ = ch.WriteJSON(pushFrame{
					Type:      msgTypeAuthSuccess,
					Message:   "Authenticated as " + msg.Username,
					Timestamp: time.Now().UTC().Format(time.RFC3339),
				})
			}
		}
	}
}

// Push writes one frame to the user's channel. A write failure is treated
// as a stale channel: the registration is cleaned up and
// domain.ErrChannelUnavailable is returned so the dispatcher can retry or
// give up.
func (h *Hub) Push(username, msgType, text string) error {
	channelID, ch, ok := h.registry.Lookup(username)
	if !ok {
		return domain.ErrChannelUnavailable
	}

	frame := pushFrame{Type: msgType, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if msgType == MsgTypeAgentResponse {
		frame.Content = text
	} else {
		frame.Message = text
	}

	if err := ch.WriteJSON(frame); err != nil {
		h.log.Warn().Err(err).Str("username", username).Str("channel_id", channelID).Msg("push failed, dropping stale channel")
		h.registry.Unregister(channelID, ch)
		_ = ch.Close()
		return domain.ErrChannelUnavailable
	}
	return nil
}
