package memory

import (
	"fmt"
	"slices"

	"github.com/cwrk-planet/meet-relay/internal/domain"
)

// Verify checks the cross-structure invariants: rooms are non-empty, member
// ids are unique and point back at the room through the registry, every
// joined connection is listed in its room, and no history outlives its room.
func Verify(reg *Registry, dir *Directory) error {
	for key, rm := range dir.rooms {
		if len(rm.members) == 0 {
			return fmt.Errorf("room %q exists with no members", key)
		}
		seen := make(map[string]struct{}, len(rm.members))
		for _, id := range rm.members {
			if _, dup := seen[id]; dup {
				return fmt.Errorf("room %q lists %q twice", key, id)
			}
			seen[id] = struct{}{}

			c, ok := reg.Lookup(id)
			if !ok {
				return fmt.Errorf("room %q member %q: %w", key, id, domain.ErrConnNotFound)
			}
			if c.Room != key {
				return fmt.Errorf("room %q member %q registered in %q", key, id, c.Room)
			}
		}
	}

	var err error
	reg.each(func(c domain.Connection) {
		if err != nil || !c.Joined() {
			return
		}
		rm, ok := dir.rooms[c.Room]
		if !ok {
			err = fmt.Errorf("connection %q in %q: %w", c.ID, c.Room, domain.ErrRoomNotFound)
			return
		}
		if !slices.Contains(rm.members, c.ID) {
			err = fmt.Errorf("connection %q missing from room %q", c.ID, c.Room)
		}
	})
	if err != nil {
		return err
	}

	for _, key := range dir.history.keys() {
		if _, ok := dir.rooms[key]; !ok {
			return fmt.Errorf("history for %q outlives its room", key)
		}
	}
	return nil
}
