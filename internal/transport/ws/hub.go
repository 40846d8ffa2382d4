package ws

import (
	"context"
	"sync"
)

// Hub tracks the live sockets so shutdown can close them and wait for their
// handlers to run the disconnect cleanup.
type Hub struct {
	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	wg     sync.WaitGroup
	closed bool
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*wsConn]struct{})}
}

// Add returns false once CloseAll has run.
func (h *Hub) Add(c *wsConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) Remove(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		h.wg.Done()
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.conns)
}

// CloseAll closes every socket and waits until their handlers returned or
// ctx is done.
func (h *Hub) CloseAll(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
