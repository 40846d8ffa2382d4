package memory

import (
	"time"

	"github.com/cwrk-planet/meet-relay/internal/domain"
)

type registryEntry struct {
	conn domain.Connection
	sink domain.Sink
}

type Registry struct {
	conns map[string]*registryEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*registryEntry)}
}

// Register adds an unjoined connection. Ids are unique per transport, an
// existing entry is replaced.
func (r *Registry) Register(id string, sink domain.Sink) {
	r.conns[id] = &registryEntry{
		conn: domain.Connection{ID: id},
		sink: sink,
	}
}

// SetDisplayNameAndRoom is a no-op for unknown ids.
func (r *Registry) SetDisplayNameAndRoom(id, name, room string, joinedAt time.Time) {
	e, ok := r.conns[id]
	if !ok {
		return
	}
	e.conn.DisplayName = name
	e.conn.Room = room
	e.conn.JoinedAt = joinedAt
}

// ClearRoom moves a connection back to the unjoined state.
func (r *Registry) ClearRoom(id string) {
	if e, ok := r.conns[id]; ok {
		e.conn.Room = ""
	}
}

func (r *Registry) Lookup(id string) (domain.Connection, bool) {
	e, ok := r.conns[id]
	if !ok {
		return domain.Connection{}, false
	}
	return e.conn, true
}

func (r *Registry) Sink(id string) (domain.Sink, bool) {
	e, ok := r.conns[id]
	if !ok || e.sink == nil {
		return nil, false
	}
	return e.sink, true
}

// Remove deletes the entry. Callers remove the connection from its room first.
func (r *Registry) Remove(id string) {
	delete(r.conns, id)
}

func (r *Registry) Len() int { return len(r.conns) }

func (r *Registry) each(fn func(c domain.Connection)) {
	for _, e := range r.conns {
		fn(e.conn)
	}
}
