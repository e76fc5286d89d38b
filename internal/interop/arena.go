package interop

import (
	"errors"
	"sync"
)

// ErrInvalidRef is returned when a back-reference token does not resolve.
// Under the documented teardown protocol this is only reachable during the
// short window where native teardown may still deliver one late callback per
// registration; trampolines treat it as "drop the event", never as a fault.
var ErrInvalidRef = errors.New("invalid back-reference")

// Ref is an opaque back-reference token. The native side stores it as the
// user-data word on its own object; trampolines resolve it back to the Go
// wrapper it was minted for. A Ref of zero is never minted.
type Ref uintptr

// arena is the process-wide token table. Holding an entry is what keeps a
// wrapper reachable while native code can still call back into it, so an
// entry is only removed after the matching native callbacks have been
// unregistered.
type arena struct {
	mu      sync.RWMutex
	next    Ref
	entries map[Ref]any
}

var refs = &arena{next: 1, entries: make(map[Ref]any)}

// MintRef stores a strong reference to v and returns the token the native
// side should carry as user data. The same wrapper may be minted more than
// once (one token per callback registration).
func MintRef(v any) Ref {
	if v == nil {
		panic("interop: mint of nil wrapper")
	}
	refs.mu.Lock()
	r := refs.next
	refs.next++
	refs.entries[r] = v
	refs.mu.Unlock()
	return r
}

// ResolveRef returns the wrapper a token was minted for. The second result
// is false if the token was already released (or never minted); callers on
// the callback path must treat that as a no-op event.
func ResolveRef(r Ref) (any, bool) {
	refs.mu.RLock()
	v, ok := refs.entries[r]
	refs.mu.RUnlock()
	return v, ok
}

// ReleaseRef drops the arena's reference for a token. Idempotent. Must only
// be called after the native callbacks registered with this token have been
// unregistered, per the teardown ordering in this package's contract.
func ReleaseRef(r Ref) {
	if r == 0 {
		return
	}
	refs.mu.Lock()
	delete(refs.entries, r)
	refs.mu.Unlock()
}

// LiveRefs reports the number of outstanding tokens. Test hook for leak
// detection.
func LiveRefs() int {
	refs.mu.RLock()
	n := len(refs.entries)
	refs.mu.RUnlock()
	return n
}
