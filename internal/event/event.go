// Package event provides a small multi-subscriber handler list that is safe
// to mutate while a dispatch is in progress. A handler removed mid-dispatch
// may see at most one call already in flight, but never a call started after
// the removal returned.
package event

import "sync"

// Hub is a list of handlers for one event kind. The zero value is usable.
type Hub[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[uint64]func(T)
}

// Subscribe registers a handler and returns its removal function. The
// removal function is idempotent.
func (h *Hub[T]) Subscribe(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	h.mu.Lock()
	if h.handlers == nil {
		h.handlers = make(map[uint64]func(T))
	}
	h.nextID++
	id := h.nextID
	h.handlers[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.handlers, id)
		h.mu.Unlock()
	}
}

// Emit calls every currently subscribed handler with v. The handler set is
// snapshotted under the lock; handlers themselves run outside it so they may
// subscribe or unsubscribe freely.
func (h *Hub[T]) Emit(v T) {
	h.mu.Lock()
	if len(h.handlers) == 0 {
		h.mu.Unlock()
		return
	}
	snapshot := make([]func(T), 0, len(h.handlers))
	for _, fn := range h.handlers {
		snapshot = append(snapshot, fn)
	}
	h.mu.Unlock()

	for _, fn := range snapshot {
		fn(v)
	}
}

// Len reports the number of subscribed handlers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers)
}
