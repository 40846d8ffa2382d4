// Package memory holds the process-lifetime state of the relay: the
// connection registry, the room directory and per-room chat history.
//
// None of the types here synchronise on their own. They are owned by the
// relay engine and must only be touched while holding its lock.
package memory
