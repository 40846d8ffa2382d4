package domain

import "time"

// DefaultDisplayName is used when a client joins without a name.
const DefaultDisplayName = "User"

type Connection struct {
	ID          string
	DisplayName string
	JoinedAt    time.Time
	Room        string // empty while unjoined
}

func (c Connection) Joined() bool { return c.Room != "" }

// Sink is the outbound side of a live connection. Send must not block:
// an event that cannot be queued is reported as an error and dropped.
type Sink interface {
	Send(ev Event) error
}
