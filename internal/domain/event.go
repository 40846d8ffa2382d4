package domain

// Outbound event types.
const (
	EventMemberJoined = "member-joined"
	EventMemberLeft   = "member-left"
	EventChatMessage  = "chat-message"
	EventSignal       = "signal"
	EventForceMute    = "force-mute"
	EventMeetingEnded = "meeting-ended"
)

// Event is one outbound message. Every event type has a single fixed shape.
type Event interface {
	EventType() string
}

type MemberJoined struct {
	JoinerID    string   `json:"joinerId"`
	DisplayName string   `json:"displayName"`
	Members     []string `json:"members"`
}

type MemberLeft struct {
	LeaverID string `json:"leaverId"`
}

type ChatMessage struct {
	Body        string `json:"body"`
	DisplayName string `json:"displayName"`
	SenderID    string `json:"senderId"`
}

type Signal struct {
	SenderID string `json:"senderId"`
	Payload  string `json:"payload"`
}

type ForceMute struct{}

type MeetingEnded struct{}

func (MemberJoined) EventType() string { return EventMemberJoined }
func (MemberLeft) EventType() string   { return EventMemberLeft }
func (ChatMessage) EventType() string  { return EventChatMessage }
func (Signal) EventType() string       { return EventSignal }
func (ForceMute) EventType() string    { return EventForceMute }
func (MeetingEnded) EventType() string { return EventMeetingEnded }
