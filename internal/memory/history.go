package memory

import "github.com/cwrk-planet/meet-relay/internal/domain"

// History keeps the chat log of every live room. A limit of 0 keeps
// everything; otherwise the oldest entries are evicted past the limit.
type History struct {
	limit int
	logs  map[string][]domain.ChatEntry
}

func NewHistory(limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{
		limit: limit,
		logs:  make(map[string][]domain.ChatEntry),
	}
}

func (h *History) Append(key string, entry domain.ChatEntry) {
	log := append(h.logs[key], entry)
	if h.limit > 0 && len(log) > h.limit {
		// copy so the evicted prefix can be collected
		trimmed := make([]domain.ChatEntry, h.limit)
		copy(trimmed, log[len(log)-h.limit:])
		log = trimmed
	}
	h.logs[key] = log
}

// Drain returns the room's log in append order without clearing it.
func (h *History) Drain(key string) []domain.ChatEntry {
	log := h.logs[key]
	if len(log) == 0 {
		return nil
	}
	out := make([]domain.ChatEntry, len(log))
	copy(out, log)
	return out
}

// Destroy is called by the Directory when the room goes away.
func (h *History) Destroy(key string) {
	delete(h.logs, key)
}

func (h *History) Len(key string) int { return len(h.logs[key]) }

func (h *History) keys() []string {
	out := make([]string, 0, len(h.logs))
	for k := range h.logs {
		out = append(out, k)
	}
	return out
}
