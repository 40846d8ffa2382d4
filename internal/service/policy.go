package service

import (
	"fmt"
	"strings"

	"github.com/cwrk-planet/meet-relay/internal/domain"
)

type HostAction string

const (
	ActionMuteAll    HostAction = "host-mute-all"
	ActionEndMeeting HostAction = "host-end-meeting"
)

// HostPolicy decides whether issuer may run a host action against a room.
// members is the room's current member list in join order.
type HostPolicy interface {
	Allow(issuer domain.Connection, action HostAction, room string, members []string) bool
}

// HostPolicyFunc adapts a function to HostPolicy.
type HostPolicyFunc func(issuer domain.Connection, action HostAction, room string, members []string) bool

func (f HostPolicyFunc) Allow(issuer domain.Connection, action HostAction, room string, members []string) bool {
	return f(issuer, action, room, members)
}

// AllowAll honours host actions from any caller naming the room.
var AllowAll HostPolicy = HostPolicyFunc(func(domain.Connection, HostAction, string, []string) bool {
	return true
})

// MembersOnly requires the issuer to be joined to the room it targets.
var MembersOnly HostPolicy = HostPolicyFunc(func(issuer domain.Connection, _ HostAction, room string, _ []string) bool {
	return issuer.Room == room
})

// FirstJoiner treats the earliest remaining member as the host.
var FirstJoiner HostPolicy = HostPolicyFunc(func(issuer domain.Connection, _ HostAction, room string, members []string) bool {
	return issuer.Room == room && len(members) > 0 && members[0] == issuer.ID
})

// ParseHostPolicy maps a config value to a policy: any, member or first.
func ParseHostPolicy(name string) (HostPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "any":
		return AllowAll, nil
	case "member", "members":
		return MembersOnly, nil
	case "first", "first-joiner":
		return FirstJoiner, nil
	default:
		return nil, fmt.Errorf("unknown host policy %q", name)
	}
}
