package memory

import "slices"

type room struct {
	members []string // join order
}

// Directory maps room keys to their ordered member lists. A room exists
// only while it has members, and its chat history is destroyed with it.
type Directory struct {
	rooms    map[string]*room
	registry *Registry
	history  *History
}

func NewDirectory(registry *Registry, history *History) *Directory {
	return &Directory{
		rooms:    make(map[string]*room),
		registry: registry,
		history:  history,
	}
}

// EnsureRoom returns whether the room was created by this call.
func (d *Directory) EnsureRoom(key string) (created bool) {
	if _, ok := d.rooms[key]; ok {
		return false
	}
	d.rooms[key] = &room{}
	// a fresh generation of the key never sees stale history
	d.history.Destroy(key)
	return true
}

// AddMember appends id if absent. It reports whether the room was created.
func (d *Directory) AddMember(key, id string) (created bool) {
	created = d.EnsureRoom(key)
	rm := d.rooms[key]
	if !slices.Contains(rm.members, id) {
		rm.members = append(rm.members, id)
	}
	return created
}

// RemoveMember drops id from the room. When the room becomes empty it is
// destroyed together with its history and destroyed is true.
func (d *Directory) RemoveMember(key, id string) (destroyed bool) {
	rm, ok := d.rooms[key]
	if !ok {
		return false
	}
	if i := slices.Index(rm.members, id); i >= 0 {
		rm.members = slices.Delete(rm.members, i, i+1)
	}
	if len(rm.members) == 0 {
		d.destroy(key)
		return true
	}
	return false
}

// Destroy removes the room and its history and returns the former members.
func (d *Directory) Destroy(key string) []string {
	rm, ok := d.rooms[key]
	if !ok {
		return nil
	}
	d.destroy(key)
	return rm.members
}

func (d *Directory) destroy(key string) {
	delete(d.rooms, key)
	d.history.Destroy(key)
}

// Members returns a copy of the member list, nil if the room is absent.
func (d *Directory) Members(key string) []string {
	rm, ok := d.rooms[key]
	if !ok {
		return nil
	}
	return slices.Clone(rm.members)
}

// FindRoomOf reads the registry, which is authoritative for membership.
func (d *Directory) FindRoomOf(id string) (string, bool) {
	c, ok := d.registry.Lookup(id)
	if !ok || !c.Joined() {
		return "", false
	}
	return c.Room, true
}

func (d *Directory) Exists(key string) bool {
	_, ok := d.rooms[key]
	return ok
}

func (d *Directory) Len() int { return len(d.rooms) }

func (d *Directory) Keys() []string {
	out := make([]string, 0, len(d.rooms))
	for k := range d.rooms {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
