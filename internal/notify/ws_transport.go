package notify

import (
	"context"

	"dq-agent/internal/infra/ws"
)

// WSTransport delivers through the in-process websocket hub. The hub
// returns domain.ErrChannelUnavailable when the user has no live channel,
// which the dispatcher treats as not worth retrying.
type WSTransport struct {
	hub     *ws.Hub
	msgType string
}

func NewWSTransport(hub *ws.Hub, msgType string) *WSTransport {
	return &WSTransport{hub: hub, msgType: msgType}
}

func (t *WSTransport) Deliver(_ context.Context, username, message, _ string) error {
	return t.hub.Push(username, t.msgType, message)
}
