package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/meet-relay/internal/domain"
	"github.com/cwrk-planet/meet-relay/internal/memory"
)

type Options struct {
	// HistoryLimit caps the chat log kept per room. 0 keeps everything.
	HistoryLimit int
	Policy       HostPolicy
	Recorder     MeetingRecorder
	// CheckConsistency verifies the state invariants after every step and
	// panics on violation.
	CheckConsistency bool
	Now              func() time.Time
}

type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// Engine is the relay and fan-out core. Every inbound event runs as one step
// under a single lock. Delivery happens inside the step but only enqueues on
// the recipient's sink, so per-room event order follows step order and a slow
// peer never stalls the others.
type Engine struct {
	mu        sync.Mutex
	registry  *memory.Registry
	directory *memory.Directory
	history   *memory.History

	policy   HostPolicy
	recorder MeetingRecorder
	checks   bool
	now      func() time.Time
}

func NewEngine(opts Options) *Engine {
	reg := memory.NewRegistry()
	hist := memory.NewHistory(opts.HistoryLimit)

	e := &Engine{
		registry:  reg,
		directory: memory.NewDirectory(reg, hist),
		history:   hist,
		policy:    opts.Policy,
		recorder:  opts.Recorder,
		checks:    opts.CheckConsistency,
		now:       opts.Now,
	}
	if e.policy == nil {
		e.policy = AllowAll
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) step(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn()

	if e.checks {
		if err := memory.Verify(e.registry, e.directory); err != nil {
			panic(fmt.Sprintf("relay state corrupted: %v", err))
		}
	}
}

// Connect registers a freshly established transport connection.
func (e *Engine) Connect(id string, sink domain.Sink) {
	e.step(func() {
		e.registry.Register(id, sink)
	})
	slog.Debug("relay connect", "conn", id)
}

// JoinRoom puts the connection into room. A connection that is already
// joined leaves its current room first.
func (e *Engine) JoinRoom(id, room, displayName string) {
	if room == "" {
		slog.Debug("relay join dropped: empty room", "conn", id)
		return
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = domain.DefaultDisplayName
	}

	var (
		err     error
		members int
	)
	e.step(func() {
		c, ok := e.registry.Lookup(id)
		if !ok {
			err = domain.ErrConnNotFound
			return
		}
		if c.Joined() {
			e.leaveLocked(id, c.Room)
		}

		e.registry.SetDisplayNameAndRoom(id, displayName, room, e.now())
		if e.directory.AddMember(room, id) {
			e.record(room, domain.MeetingOpened, "", 1)
		}

		snapshot := e.directory.Members(room)
		members = len(snapshot)
		e.broadcast(snapshot, domain.MemberJoined{
			JoinerID:    id,
			DisplayName: displayName,
			Members:     snapshot,
		}, "")

		for _, m := range e.history.Drain(room) {
			e.deliver(id, domain.ChatMessage{
				Body:        m.Body,
				DisplayName: m.SenderDisplayName,
				SenderID:    m.SenderID,
			})
		}
	})
	if err != nil {
		slog.Debug("relay join dropped", "conn", id, "room", room, "err", err)
		return
	}
	slog.Info("relay join", "conn", id, "room", room, "members", members)
}

// Signal relays an opaque payload to target. Unknown targets are dropped.
func (e *Engine) Signal(from, target, payload string) {
	var err error
	e.step(func() {
		if _, ok := e.registry.Lookup(target); !ok {
			err = domain.ErrConnNotFound
			return
		}
		err = e.deliver(target, domain.Signal{SenderID: from, Payload: payload})
	})
	if err != nil {
		slog.Debug("relay signal dropped", "from", from, "to", target, "err", err)
	}
}

// Chat appends to the sender's room history and broadcasts to every member,
// the sender included.
func (e *Engine) Chat(from, body, displayName string) {
	var err error
	e.step(func() {
		room, ok := e.directory.FindRoomOf(from)
		if !ok {
			err = domain.ErrNotInRoom
			return
		}
		if displayName == "" {
			c, _ := e.registry.Lookup(from)
			displayName = c.DisplayName
		}

		e.history.Append(room, domain.ChatEntry{
			SenderDisplayName: displayName,
			SenderID:          from,
			Body:              body,
		})
		e.broadcast(e.directory.Members(room), domain.ChatMessage{
			Body:        body,
			DisplayName: displayName,
			SenderID:    from,
		}, "")
	})
	if err != nil {
		slog.Debug("relay chat dropped", "conn", from, "err", err)
	}
}

// MuteAll sends force-mute to every member of room except the issuer.
func (e *Engine) MuteAll(from, room string) {
	var (
		err     error
		members []string
	)
	e.step(func() {
		if members, err = e.authorize(from, ActionMuteAll, room); err != nil {
			return
		}
		e.broadcast(members, domain.ForceMute{}, from)
	})
	e.logHostAction(ActionMuteAll, from, room, len(members), err)
}

// EndMeeting notifies every member, then destroys the room and its history.
// Former members stay connected in the unjoined state.
func (e *Engine) EndMeeting(from, room string) {
	var (
		err     error
		members []string
	)
	e.step(func() {
		if members, err = e.authorize(from, ActionEndMeeting, room); err != nil {
			return
		}
		e.broadcast(members, domain.MeetingEnded{}, "")

		for _, id := range e.directory.Destroy(room) {
			e.registry.ClearRoom(id)
		}
		e.record(room, domain.MeetingClosed, domain.CloseReasonEnded, len(members))
	})
	e.logHostAction(ActionEndMeeting, from, room, len(members), err)
}

// Disconnect runs the leave cleanup and forgets the connection.
func (e *Engine) Disconnect(id string) {
	var room string
	e.step(func() {
		c, ok := e.registry.Lookup(id)
		if !ok {
			return
		}
		if c.Joined() {
			room = c.Room
			e.leaveLocked(id, c.Room)
		}
		e.registry.Remove(id)
	})
	slog.Debug("relay disconnect", "conn", id, "room", room)
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		Rooms:       e.directory.Len(),
		Connections: e.registry.Len(),
	}
}

// Check reports the first invariant violation in the current state, if any.
func (e *Engine) Check() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return memory.Verify(e.registry, e.directory)
}

func (e *Engine) leaveLocked(id, room string) {
	destroyed := e.directory.RemoveMember(room, id)
	e.registry.ClearRoom(id)

	if destroyed {
		e.record(room, domain.MeetingClosed, domain.CloseReasonEmpty, 0)
		return
	}
	e.broadcast(e.directory.Members(room), domain.MemberLeft{LeaverID: id}, "")
}

func (e *Engine) authorize(from string, action HostAction, room string) ([]string, error) {
	members := e.directory.Members(room)
	if len(members) == 0 {
		return nil, domain.ErrRoomNotFound
	}
	issuer, ok := e.registry.Lookup(from)
	if !ok {
		issuer = domain.Connection{ID: from}
	}
	if !e.policy.Allow(issuer, action, room, members) {
		return nil, domain.ErrForbidden
	}
	return members, nil
}

func (e *Engine) logHostAction(action HostAction, from, room string, members int, err error) {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		slog.Warn("relay host action denied", "action", action, "conn", from, "room", room, "err", err)
	case err != nil:
		slog.Debug("relay host action dropped", "action", action, "conn", from, "room", room, "err", err)
	default:
		slog.Info("relay host action", "action", action, "conn", from, "room", room, "members", members)
	}
}

func (e *Engine) broadcast(ids []string, ev domain.Event, except string) {
	for _, id := range ids {
		if id == except {
			continue
		}
		_ = e.deliver(id, ev) // best-effort
	}
}

// deliver enqueues on the recipient's sink; a failed enqueue is the sink's
// problem to act on, the step carries on.
func (e *Engine) deliver(id string, ev domain.Event) error {
	sink, ok := e.registry.Sink(id)
	if !ok {
		return domain.ErrConnNotFound
	}
	return sink.Send(ev)
}

func (e *Engine) record(room string, kind domain.MeetingEventKind, reason domain.CloseReason, members int) {
	if e.recorder == nil {
		return
	}
	e.recorder.Record(domain.MeetingEvent{
		RoomKey: room,
		Kind:    kind,
		Reason:  reason,
		Members: members,
		At:      e.now(),
	})
}
