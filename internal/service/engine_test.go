package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/meet-relay/internal/domain"
)

type recordingSink struct {
	mu      sync.Mutex
	events  []domain.Event
	sendErr error
}

func (s *recordingSink) Send(ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.events = append(s.events, ev)
	return nil
}

// take returns and clears what was received so far.
func (s *recordingSink) take() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []domain.MeetingEvent
}

func (r *fakeRecorder) Record(ev domain.MeetingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *fakeRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, fmt.Sprintf("%s:%s:%s", ev.RoomKey, ev.Kind, ev.Reason))
	}
	return out
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	opts.CheckConsistency = true
	return NewEngine(opts)
}

func connect(e *Engine, ids ...string) map[string]*recordingSink {
	sinks := make(map[string]*recordingSink, len(ids))
	for _, id := range ids {
		s := &recordingSink{}
		e.Connect(id, s)
		sinks[id] = s
	}
	return sinks
}

func chat(body, name, sender string) domain.ChatMessage {
	return domain.ChatMessage{Body: body, DisplayName: name, SenderID: sender}
}

func TestEngine_Scenario(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A", "B", "C")

	// 1: A creates R1
	e.JoinRoom("A", "R1", "Alice")
	assert.Equal(t, []domain.Event{
		domain.MemberJoined{JoinerID: "A", DisplayName: "Alice", Members: []string{"A"}},
	}, s["A"].take())
	assert.Equal(t, Stats{Rooms: 1, Connections: 3}, e.Stats())

	// 2: B joins, both see the same snapshot, no replay
	e.JoinRoom("B", "R1", "Bob")
	want := domain.MemberJoined{JoinerID: "B", DisplayName: "Bob", Members: []string{"A", "B"}}
	assert.Equal(t, []domain.Event{want}, s["A"].take())
	assert.Equal(t, []domain.Event{want}, s["B"].take())

	// 3: chat reaches everyone including the sender
	e.Chat("A", "hi", "Alice")
	assert.Equal(t, []domain.Event{chat("hi", "Alice", "A")}, s["A"].take())
	assert.Equal(t, []domain.Event{chat("hi", "Alice", "A")}, s["B"].take())

	// 4: C joins and alone gets the replay, after the join broadcast
	e.JoinRoom("C", "R1", "Carol")
	joined := domain.MemberJoined{JoinerID: "C", DisplayName: "Carol", Members: []string{"A", "B", "C"}}
	assert.Equal(t, []domain.Event{joined}, s["A"].take())
	assert.Equal(t, []domain.Event{joined}, s["B"].take())
	assert.Equal(t, []domain.Event{joined, chat("hi", "Alice", "A")}, s["C"].take())

	// 5: B drops
	e.Disconnect("B")
	assert.Equal(t, []domain.Event{domain.MemberLeft{LeaverID: "B"}}, s["A"].take())
	assert.Equal(t, []domain.Event{domain.MemberLeft{LeaverID: "B"}}, s["C"].take())
	assert.Empty(t, s["B"].take())
	_, ok := e.registry.Lookup("B")
	assert.False(t, ok)
	assert.Equal(t, []string{"A", "C"}, e.directory.Members("R1"))

	// 6: A ends the meeting
	e.EndMeeting("A", "R1")
	assert.Equal(t, []domain.Event{domain.MeetingEnded{}}, s["A"].take())
	assert.Equal(t, []domain.Event{domain.MeetingEnded{}}, s["C"].take())
	assert.False(t, e.directory.Exists("R1"))
	assert.Empty(t, e.history.Drain("R1"))

	s["D"] = &recordingSink{}
	e.Connect("D", s["D"])
	e.JoinRoom("D", "R1", "Dave")
	assert.Equal(t, []domain.Event{
		domain.MemberJoined{JoinerID: "D", DisplayName: "Dave", Members: []string{"D"}},
	}, s["D"].take())
	assert.Empty(t, s["A"].take(), "ended members are no longer in the room")

	require.NoError(t, e.Check())
}

func TestEngine_JoinDefaultsDisplayName(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A")

	e.JoinRoom("A", "R1", "  ")

	assert.Equal(t, []domain.Event{
		domain.MemberJoined{JoinerID: "A", DisplayName: domain.DefaultDisplayName, Members: []string{"A"}},
	}, s["A"].take())
}

func TestEngine_JoinIgnoresUnknownConnectionAndEmptyRoom(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A")

	e.JoinRoom("ghost", "R1", "G")
	e.JoinRoom("A", "", "Alice")

	assert.Equal(t, Stats{Rooms: 0, Connections: 1}, e.Stats())
	assert.Empty(t, s["A"].take())
}

func TestEngine_RejoinLeavesPreviousRoom(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A", "B")
	e.JoinRoom("A", "R1", "Alice")
	e.JoinRoom("B", "R1", "Bob")
	s["A"].take()
	s["B"].take()

	e.JoinRoom("B", "R2", "Bob")

	assert.Equal(t, []domain.Event{domain.MemberLeft{LeaverID: "B"}}, s["A"].take())
	assert.Equal(t, []domain.Event{
		domain.MemberJoined{JoinerID: "B", DisplayName: "Bob", Members: []string{"B"}},
	}, s["B"].take())
	assert.Equal(t, []string{"A"}, e.directory.Members("R1"))

	c, _ := e.registry.Lookup("B")
	assert.Equal(t, "R2", c.Room)
}

func TestEngine_RejoinSameRoomMovesToEnd(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A", "B")
	e.JoinRoom("A", "R1", "Alice")
	e.JoinRoom("B", "R1", "Bob")
	s["B"].take()

	e.JoinRoom("A", "R1", "Alice2")

	assert.Equal(t, []domain.Event{
		domain.MemberLeft{LeaverID: "A"},
		domain.MemberJoined{JoinerID: "A", DisplayName: "Alice2", Members: []string{"B", "A"}},
	}, s["B"].take())
}

func TestEngine_Signal(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A", "B")

	e.Signal("A", "B", `{"sdp":{"type":"offer"}}`)
	e.Signal("A", "nobody", "x")
	e.Signal("A", "A", "self")

	assert.Equal(t, []domain.Event{
		domain.Signal{SenderID: "A", Payload: `{"sdp":{"type":"offer"}}`},
	}, s["B"].take())
	assert.Equal(t, []domain.Event{
		domain.Signal{SenderID: "A", Payload: "self"},
	}, s["A"].take())
}

func TestEngine_SignalDoesNotNeedRoom(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A", "B")
	e.JoinRoom("A", "R1", "Alice")
	s["A"].take()

	e.Signal("B", "A", "p")

	assert.Equal(t, []domain.Event{domain.Signal{SenderID: "B", Payload: "p"}}, s["A"].take())
}

func TestEngine_ChatOutsideRoomIsDropped(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A", "B")
	e.JoinRoom("B", "R1", "Bob")
	s["B"].take()

	e.Chat("A", "hello?", "Alice")

	assert.Empty(t, s["A"].take())
	assert.Empty(t, s["B"].take())
	assert.Empty(t, e.history.Drain("R1"))
}

func TestEngine_ChatFallsBackToRegisteredName(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A")
	e.JoinRoom("A", "R1", "Alice")
	s["A"].take()

	e.Chat("A", "hi", "")

	assert.Equal(t, []domain.Event{chat("hi", "Alice", "A")}, s["A"].take())
}

func TestEngine_ReplayOrderLaw(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A", "B", "N")
	e.JoinRoom("A", "R1", "Alice")
	e.JoinRoom("B", "R1", "Bob")

	var want []domain.Event
	for i := 0; i < 5; i++ {
		sender, name := "A", "Alice"
		if i%2 == 1 {
			sender, name = "B", "Bob"
		}
		body := fmt.Sprintf("m%d", i)
		e.Chat(sender, body, name)
		want = append(want, chat(body, name, sender))
	}

	e.JoinRoom("N", "R1", "New")
	e.Chat("A", "after", "Alice")

	got := s["N"].take()
	require.Len(t, got, 1+len(want)+1)
	assert.IsType(t, domain.MemberJoined{}, got[0])
	assert.Equal(t, want, got[1:1+len(want)])
	assert.Equal(t, chat("after", "Alice", "A"), got[len(got)-1])
}

func TestEngine_HistoryLimit(t *testing.T) {
	e := newTestEngine(t, Options{HistoryLimit: 2})
	s := connect(e, "A", "N")
	e.JoinRoom("A", "R1", "Alice")
	e.Chat("A", "1", "Alice")
	e.Chat("A", "2", "Alice")
	e.Chat("A", "3", "Alice")

	e.JoinRoom("N", "R1", "New")

	got := s["N"].take()
	require.Len(t, got, 3)
	assert.Equal(t, []domain.Event{chat("2", "Alice", "A"), chat("3", "Alice", "A")}, got[1:])
}

func TestEngine_NoHistoryAcrossRoomGenerations(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A", "B")
	e.JoinRoom("A", "R1", "Alice")
	e.Chat("A", "old", "Alice")
	e.Disconnect("A")

	e.JoinRoom("B", "R1", "Bob")

	assert.Equal(t, []domain.Event{
		domain.MemberJoined{JoinerID: "B", DisplayName: "Bob", Members: []string{"B"}},
	}, s["B"].take())
}

func TestEngine_LastLeaveDestroysRoom(t *testing.T) {
	rec := &fakeRecorder{}
	e := newTestEngine(t, Options{Recorder: rec})
	connect(e, "A", "B")
	e.JoinRoom("A", "R1", "Alice")
	e.JoinRoom("B", "R1", "Bob")

	e.Disconnect("A")
	assert.True(t, e.directory.Exists("R1"))
	e.Disconnect("B")
	assert.False(t, e.directory.Exists("R1"))
	assert.Equal(t, Stats{}, e.Stats())

	assert.Equal(t, []string{"R1:opened:", "R1:closed:empty"}, rec.kinds())
}

func TestEngine_DisconnectUnjoinedAndTwice(t *testing.T) {
	e := newTestEngine(t, Options{})
	connect(e, "A")

	e.Disconnect("A")
	e.Disconnect("A")

	assert.Equal(t, Stats{}, e.Stats())
}

func TestEngine_MuteAllSkipsIssuer(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A", "B", "C", "X")
	for _, id := range []string{"A", "B", "C"} {
		e.JoinRoom(id, "R1", id)
	}
	for _, sink := range s {
		sink.take()
	}

	e.MuteAll("A", "R1")
	e.MuteAll("A", "missing")

	assert.Empty(t, s["A"].take())
	assert.Equal(t, []domain.Event{domain.ForceMute{}}, s["B"].take())
	assert.Equal(t, []domain.Event{domain.ForceMute{}}, s["C"].take())
	assert.Empty(t, s["X"].take())
}

func TestEngine_EndMeetingKeepsConnectionsRegistered(t *testing.T) {
	rec := &fakeRecorder{}
	e := newTestEngine(t, Options{Recorder: rec})
	s := connect(e, "A", "B")
	e.JoinRoom("A", "R1", "Alice")
	e.JoinRoom("B", "R1", "Bob")
	e.Chat("A", "hi", "Alice")

	e.EndMeeting("B", "R1")

	for _, id := range []string{"A", "B"} {
		c, ok := e.registry.Lookup(id)
		require.True(t, ok)
		assert.False(t, c.Joined())
	}
	assert.Equal(t, Stats{Rooms: 0, Connections: 2}, e.Stats())
	assert.Equal(t, []string{"R1:opened:", "R1:closed:ended"}, rec.kinds())

	// no member-left was sent on top of meeting-ended
	got := s["A"].take()
	assert.Equal(t, domain.MeetingEnded{}, got[len(got)-1])

	// chat after the end goes nowhere
	e.Chat("A", "anyone?", "Alice")
	assert.Empty(t, s["A"].take())

	// nonexistent room is a no-op
	s["B"].take()
	e.EndMeeting("A", "R1")
	assert.Empty(t, s["B"].take())
}

func TestEngine_EndMeetingThenJoinIsFresh(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A", "B")
	e.JoinRoom("A", "R1", "Alice")
	e.JoinRoom("B", "R1", "Bob")
	e.Chat("A", "hi", "Alice")
	e.EndMeeting("A", "R1")
	s["A"].take()

	e.JoinRoom("A", "R1", "Alice")

	assert.Equal(t, []domain.Event{
		domain.MemberJoined{JoinerID: "A", DisplayName: "Alice", Members: []string{"A"}},
	}, s["A"].take())
}

func TestEngine_HostPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  HostPolicy
		issuer  string
		wantHit bool
	}{
		{name: "any allows outsider", policy: AllowAll, issuer: "X", wantHit: true},
		{name: "members only denies outsider", policy: MembersOnly, issuer: "X", wantHit: false},
		{name: "members only allows member", policy: MembersOnly, issuer: "B", wantHit: true},
		{name: "first joiner denies second", policy: FirstJoiner, issuer: "B", wantHit: false},
		{name: "first joiner allows host", policy: FirstJoiner, issuer: "A", wantHit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, Options{Policy: tt.policy})
			s := connect(e, "A", "B", "C", "X")
			e.JoinRoom("A", "R1", "Alice")
			e.JoinRoom("B", "R1", "Bob")
			e.JoinRoom("C", "R1", "Carol")
			for _, sink := range s {
				sink.take()
			}

			e.MuteAll(tt.issuer, "R1")

			if tt.wantHit {
				assert.Equal(t, []domain.Event{domain.ForceMute{}}, s["C"].take())
			} else {
				assert.Empty(t, s["C"].take())
			}

			e.EndMeeting(tt.issuer, "R1")
			assert.Equal(t, !tt.wantHit, e.directory.Exists("R1"))
		})
	}
}

func TestEngine_FailingSinkDoesNotAffectOthers(t *testing.T) {
	e := newTestEngine(t, Options{})
	s := connect(e, "A", "B")
	s["A"].sendErr = domain.ErrSendBufferFull
	e.JoinRoom("A", "R1", "Alice")
	e.JoinRoom("B", "R1", "Bob")

	e.Chat("B", "hi", "Bob")

	assert.Len(t, s["B"].take(), 2)
	assert.Equal(t, []string{"A", "B"}, e.directory.Members("R1"))
}

func TestEngine_JoinedAtUsesClock(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e := newTestEngine(t, Options{Now: func() time.Time { return at }})
	connect(e, "A")

	e.JoinRoom("A", "R1", "Alice")

	c, _ := e.registry.Lookup("A")
	assert.Equal(t, at, c.JoinedAt)
}

// Random-ish interleavings from many goroutines must leave the state
// consistent; the engine panics on any violation because checks are on.
func TestEngine_ConcurrentSteps(t *testing.T) {
	e := newTestEngine(t, Options{})
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("c%d-%d", g, i)
				room := fmt.Sprintf("R%d", i%3)
				e.Connect(id, &recordingSink{})
				e.JoinRoom(id, room, id)
				e.Chat(id, "x", "")
				e.Signal(id, fmt.Sprintf("c%d-%d", (g+1)%8, i), "p")
				if i%7 == 0 {
					e.MuteAll(id, room)
				}
				if i%11 == 0 {
					e.EndMeeting(id, room)
				}
				e.Disconnect(id)
			}
		}(g)
	}
	wg.Wait()

	assert.NoError(t, e.Check())
	assert.Equal(t, Stats{}, e.Stats())
}
