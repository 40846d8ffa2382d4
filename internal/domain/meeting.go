package domain

import "time"

type MeetingEventKind string

const (
	MeetingOpened MeetingEventKind = "opened"
	MeetingClosed MeetingEventKind = "closed"
)

type CloseReason string

const (
	CloseReasonEmpty CloseReason = "empty" // last member left
	CloseReasonEnded CloseReason = "ended" // host-end-meeting
)

// MeetingEvent is a room lifecycle record. It never carries chat content.
type MeetingEvent struct {
	ID      int64            `db:"id" json:"id"`
	RoomKey string           `db:"room_key" json:"room"`
	Kind    MeetingEventKind `db:"kind" json:"kind"`
	Reason  CloseReason      `db:"reason" json:"reason,omitempty"`
	Members int              `db:"members" json:"members"`
	At      time.Time        `db:"at" json:"at"`
}
