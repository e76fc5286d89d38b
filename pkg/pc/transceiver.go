package pc

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/thesyncim/nativertc/internal/engine"
	"github.com/thesyncim/nativertc/internal/interop"
)

// Transceiver is one media slot on the connection: at most one sending
// local track and, after negotiation, a receive stream surfaced as a
// RemoteTrack.
type Transceiver struct {
	pc     *PeerConnection
	handle *interop.Handle
	kind   MediaKind
	name   string

	released atomic.Bool

	// Guarded by pc.mu together with LocalTrack.attached, so the two
	// sides can never disagree about who is attached to whom.
	localTrack *LocalTrack

	direction atomic.Int32
}

// AddTransceiver adds a media slot of the given kind. An empty name gets a
// generated one.
func (p *PeerConnection) AddTransceiver(kind MediaKind, dir Direction, name string) (*Transceiver, error) {
	h, unpin, err := p.acquireHandle()
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = fmt.Sprintf("%s-%s", kind, uuid.NewString())
	}

	raw, err := p.eng.AddTransceiver(h, engine.MediaKind(kind), engine.Direction(dir), name)
	unpin()
	if err != nil {
		return nil, mapEngineErr(err)
	}

	tr := &Transceiver{
		pc:     p,
		handle: interop.BindHandle(raw, p.eng.ReleaseTransceiver),
		kind:   kind,
		name:   name,
	}
	tr.direction.Store(int32(dir))

	p.mu.Lock()
	p.transceivers = append(p.transceivers, tr)
	p.mu.Unlock()
	return tr, nil
}

// Kind returns the transceiver's media kind.
func (t *Transceiver) Kind() MediaKind { return t.kind }

// Name returns the transceiver's name.
func (t *Transceiver) Name() string { return t.name }

// Direction returns the last requested direction.
func (t *Transceiver) Direction() Direction {
	return Direction(t.direction.Load())
}

// SetDirection changes the desired direction; the change takes effect at
// the next negotiation.
func (t *Transceiver) SetDirection(dir Direction) error {
	raw, unpin, err := t.handle.Acquire()
	if err != nil {
		return err
	}
	defer unpin()
	if err := mapEngineErr(t.pc.eng.SetTransceiverDirection(raw, engine.Direction(dir))); err != nil {
		return err
	}
	t.direction.Store(int32(dir))
	return nil
}

// LocalTrack returns the attached sending track, or nil.
func (t *Transceiver) LocalTrack() *LocalTrack {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.localTrack
}

// SetLocalTrack attaches a sending track, or detaches with nil. The track
// must be of the transceiver's kind and must belong to the same peer
// connection.
func (t *Transceiver) SetLocalTrack(lt *LocalTrack) error {
	p := t.pc
	traw, unpin, err := t.handle.Acquire()
	if err != nil {
		return err
	}
	defer unpin()

	var trackRaw uintptr
	if lt != nil {
		if lt.kind != t.kind {
			return fmt.Errorf("%w: %s track on %s transceiver", ErrInvalidArgument, lt.kind, t.kind)
		}
		if lt.pc != p {
			return ErrCrossConnectionTrackReuse
		}
		var trackUnpin func()
		trackRaw, trackUnpin, err = lt.handle.Acquire()
		if err != nil {
			return err
		}
		defer trackUnpin()
	}

	if err := mapEngineErr(p.eng.SetTransceiverTrack(traw, trackRaw)); err != nil {
		return err
	}

	// Both sides of the attachment flip under one lock.
	p.mu.Lock()
	if prev := t.localTrack; prev != nil {
		prev.attached = nil
	}
	t.localTrack = lt
	if lt != nil {
		lt.attached = t
	}
	p.mu.Unlock()
	return nil
}

func (t *Transceiver) teardown() {
	if !t.released.CompareAndSwap(false, true) {
		return
	}
	t.pc.mu.Lock()
	if t.localTrack != nil {
		t.localTrack.attached = nil
		t.localTrack = nil
	}
	t.pc.mu.Unlock()
	t.handle.Release()
}
