package gateway

import (
	"github.com/google/uuid"

	"github.com/quizlive/quiz-live/internal/session"
	"github.com/quizlive/quiz-live/pkg/http/ws"
)

// Notifier adapts the hub to the session.Broadcaster interface. Event types
// double as wire message types, so the mapping is a straight wrap.
type Notifier struct {
	hub *ws.Hub
}

var _ session.Broadcaster = (*Notifier)(nil)

// NewNotifier creates a broadcaster over the hub.
func NewNotifier(hub *ws.Hub) *Notifier {
	return &Notifier{hub: hub}
}

func (n *Notifier) ToSession(sessionID uuid.UUID, e session.Event) {
	n.hub.BroadcastToSession(sessionID, ws.NewMessage(e.EventType(), e, ""))
}

func (n *Notifier) ToHost(sessionID uuid.UUID, e session.Event) {
	n.hub.SendToHost(sessionID, ws.NewMessage(e.EventType(), e, ""))
}

func (n *Notifier) ToConnection(connID uuid.UUID, e session.Event) {
	n.hub.SendToConnection(connID, ws.NewMessage(e.EventType(), e, ""))
}
