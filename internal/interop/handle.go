// Package interop implements the ownership discipline shared by every
// wrapper around a native engine object: an exclusive-ownership handle that
// releases its native reference exactly once, and an arena of back-reference
// tokens that native callbacks use to find their Go wrapper without the
// garbage collector being allowed to move or reclaim it.
package interop

import (
	"errors"
	"sync"
)

// ErrInvalidHandle is returned when a native call is attempted through a
// handle that was never bound or has already been released.
var ErrInvalidHandle = errors.New("invalid native handle")

// Handle owns exactly one reference to a native object. Releasing it gives
// that reference back exactly once, no matter how many times Release is
// called or from how many goroutines. Callers that race Release pin the
// reference with Acquire; the free then waits for the last pin to drop.
type Handle struct {
	mu       sync.Mutex
	ptr      uintptr
	pins     int
	released bool
	free     func(uintptr)
}

// BindHandle wraps a native pointer returned by a creation call. A zero
// pointer produces an already-invalid handle rather than an error; callers
// must check Valid. free is invoked exactly once with the pointer when the
// handle is released and no pins remain.
func BindHandle(ptr uintptr, free func(uintptr)) *Handle {
	h := &Handle{ptr: ptr, free: free}
	if ptr == 0 {
		h.released = true
	}
	return h
}

// Valid reports whether the handle still owns a live native reference.
func (h *Handle) Valid() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.released
}

// Raw returns the native pointer, or ErrInvalidHandle if the handle was
// never bound or already released.
//
// The pointer is only guaranteed to stay alive while the caller also
// serializes Release for this handle's owner; callers that cannot, use
// Acquire instead.
func (h *Handle) Raw() (uintptr, error) {
	if h == nil {
		return 0, ErrInvalidHandle
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return 0, ErrInvalidHandle
	}
	return h.ptr, nil
}

// Acquire pins the native reference for the duration of one call and
// returns the pointer together with an unpin function. A Release issued
// while pins are outstanding marks the handle invalid immediately but defers
// the free until the last unpin, so the pointer stays alive for the call it
// was acquired for. The unpin function is idempotent.
func (h *Handle) Acquire() (uintptr, func(), error) {
	if h == nil {
		return 0, nil, ErrInvalidHandle
	}
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return 0, nil, ErrInvalidHandle
	}
	h.pins++
	ptr := h.ptr
	h.mu.Unlock()

	var once sync.Once
	unpin := func() {
		once.Do(func() {
			h.mu.Lock()
			h.pins--
			free := h.free
			run := h.released && h.pins == 0 && free != nil
			if run {
				h.free = nil
			}
			h.mu.Unlock()
			if run {
				free(ptr)
			}
		})
	}
	return ptr, unpin, nil
}

// Release gives the native reference back. It is idempotent and safe to call
// concurrently; the free function runs at most once, after the last
// outstanding pin drops. Releasing an invalid handle is a no-op.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	free := h.free
	run := h.pins == 0 && free != nil
	if run {
		h.free = nil
	}
	ptr := h.ptr
	h.mu.Unlock()
	if run {
		free(ptr)
	}
}
