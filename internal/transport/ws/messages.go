package ws

import (
	"encoding/json"

	"github.com/cwrk-planet/meet-relay/internal/domain"
)

// Inbound event types.
const (
	TypeJoinRoom       = "join-room"
	TypeSignal         = "signal"
	TypeChatMessage    = "chat-message"
	TypeHostMuteAll    = "host-mute-all"
	TypeHostEndMeeting = "host-end-meeting"
)

// TypeWelcome is sent once after the upgrade and carries the connection id.
const TypeWelcome = "welcome"

// Message is the frame envelope in both directions.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type JoinRoomPayload struct {
	Room        string `json:"room"`
	DisplayName string `json:"displayName"`
}

type SignalPayload struct {
	TargetID string `json:"targetId"`
	Payload  string `json:"payload"`
}

type ChatPayload struct {
	Body        string `json:"body"`
	DisplayName string `json:"displayName"`
}

type HostActionPayload struct {
	Room string `json:"room"`
}

type WelcomePayload struct {
	ID string `json:"id"`
}

func (WelcomePayload) EventType() string { return TypeWelcome }

func encode(ev domain.Event) ([]byte, error) {
	return json.Marshal(Message{Type: ev.EventType(), Payload: ev})
}
