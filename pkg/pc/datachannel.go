package pc

import (
	"fmt"
	"sync/atomic"

	"github.com/thesyncim/nativertc/internal/engine"
	"github.com/thesyncim/nativertc/internal/event"
	"github.com/thesyncim/nativertc/internal/interop"
)

// Message is one inbound data channel payload.
type Message struct {
	Data   []byte
	Binary bool
}

// DataChannel is one SCTP data channel on a peer connection. Channels are
// created locally with AddDataChannel or arrive in-band through
// OnDataChannel.
type DataChannel struct {
	pc     *PeerConnection
	handle *interop.Handle
	id     int
	label  string

	ordered  bool
	reliable bool

	eventsRef interop.Ref
	closed    atomic.Bool
	state     atomic.Int32

	msgHub   event.Hub[Message]
	stateHub event.Hub[DataChannelState]
}

// AddDataChannel creates a new data channel on the connection. id may be -1
// to let the engine pick an in-band id, or 0..65535 for a negotiated id.
//
// Once negotiation has completed without any data channel, the connection
// has no SCTP session and this returns ErrSctpNotNegotiated; tearing the
// connection down and renegotiating is the only way to add one.
func (p *PeerConnection) AddDataChannel(id int, label string, ordered, reliable bool) (*DataChannel, error) {
	if id < -1 || id > 65535 {
		return nil, fmt.Errorf("%w: data channel id %d out of range", ErrInvalidArgument, id)
	}

	p.mu.Lock()
	h, unpin, err := p.acquireHandleLocked()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if !p.sctpNegotiated {
		p.mu.Unlock()
		unpin()
		return nil, ErrSctpNotNegotiated
	}
	p.mu.Unlock()

	raw, err := p.eng.AddDataChannel(h, id, label, ordered, reliable)
	unpin()
	if err != nil {
		return nil, mapEngineErr(err)
	}

	dc := newDataChannel(p, raw, id, label, ordered, reliable)
	p.mu.Lock()
	p.dataChannels[raw] = dc
	p.mu.Unlock()
	return dc, nil
}

func newDataChannel(p *PeerConnection, raw uintptr, id int, label string, ordered, reliable bool) *DataChannel {
	dc := &DataChannel{
		pc:       p,
		handle:   interop.BindHandle(raw, p.eng.ReleaseDataChannel),
		id:       id,
		label:    label,
		ordered:  ordered,
		reliable: reliable,
	}
	dc.eventsRef = interop.MintRef(&dataChannelEvents{dc: dc})
	p.eng.RegisterDataChannelCallbacks(raw, dc.eventsRef)
	return dc
}

// ID returns the channel id, or -1 for an engine-assigned in-band id.
func (dc *DataChannel) ID() int { return dc.id }

// Label returns the channel label.
func (dc *DataChannel) Label() string { return dc.label }

// State returns the last observed ready state.
func (dc *DataChannel) State() DataChannelState {
	return DataChannelState(dc.state.Load())
}

// Send queues a payload on the channel.
func (dc *DataChannel) Send(data []byte, binary bool) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty message", ErrInvalidArgument)
	}
	if dc.closed.Load() {
		return ErrClosed
	}
	raw, unpin, err := dc.handle.Acquire()
	if err != nil {
		return err
	}
	defer unpin()
	return mapEngineErr(dc.pc.eng.DataChannelSend(raw, data, binary))
}

// OnMessage subscribes to inbound payloads. The returned function
// unsubscribes.
func (dc *DataChannel) OnMessage(fn func(Message)) func() {
	return dc.msgHub.Subscribe(fn)
}

// OnStateChange subscribes to ready-state transitions.
func (dc *DataChannel) OnStateChange(fn func(DataChannelState)) func() {
	return dc.stateHub.Subscribe(fn)
}

// Close removes the channel from the connection and releases it. Idempotent.
func (dc *DataChannel) Close() error {
	p := dc.pc
	p.mu.Lock()
	if raw, err := dc.handle.Raw(); err == nil {
		delete(p.dataChannels, raw)
	}
	p.mu.Unlock()
	dc.teardown(true)
	return nil
}

// teardown unhooks callbacks, releases the token and gives the handle back.
// remove selects whether the engine is asked to detach the channel from the
// peer first; a connection-level close skips that since the engine tears
// down every channel itself.
func (dc *DataChannel) teardown(remove bool) {
	if !dc.closed.CompareAndSwap(false, true) {
		return
	}

	raw, err := dc.handle.Raw()
	if err == nil {
		dc.pc.eng.UnregisterDataChannelCallbacks(raw)
		if remove {
			if h, unpin, herr := dc.pc.acquireHandle(); herr == nil {
				_ = dc.pc.eng.RemoveDataChannel(h, raw)
				unpin()
			}
		}
	}
	interop.ReleaseRef(dc.eventsRef)
	dc.handle.Release()
	dc.state.Store(int32(DataChannelClosed))
}

// dataChannelEvents is the value behind the channel's callback token.
type dataChannelEvents struct {
	dc *DataChannel
}

var _ engine.DataChannelEvents = (*dataChannelEvents)(nil)

func (e *dataChannelEvents) OnMessage(data []byte, binary bool) {
	e.dc.msgHub.Emit(Message{Data: data, Binary: binary})
}

func (e *dataChannelEvents) OnStateChanged(state engine.DataChannelState) {
	e.dc.state.Store(int32(state))
	e.dc.stateHub.Emit(DataChannelState(state))
}
