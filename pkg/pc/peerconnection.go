// Package pc wraps the native engine's peer connection behind a managed
// lifecycle: explicit initialization, idempotent close, and callback
// delivery that stays safe when the engine fires events concurrently with
// teardown.
package pc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/thesyncim/nativertc/internal/engine"
	"github.com/thesyncim/nativertc/internal/engine/ffi"
	"github.com/thesyncim/nativertc/internal/event"
	"github.com/thesyncim/nativertc/internal/interop"
)

// Option configures a PeerConnection at construction.
type Option func(*PeerConnection)

// WithLogger routes connection diagnostics to the given logger. The default
// discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(p *PeerConnection) { p.log = l }
}

func withEngine(eng engine.API) Option {
	return func(p *PeerConnection) { p.eng = eng }
}

// PeerConnection is one native peer connection. A fresh PeerConnection is
// uninitialized; Initialize creates the native peer, and Close releases it
// exactly once. All methods are safe for concurrent use.
type PeerConnection struct {
	eng engine.API
	log zerolog.Logger

	mu           sync.Mutex
	state        State
	handle       *interop.Handle
	eventsRef    interop.Ref
	hasEventsRef bool
	initDone     chan struct{}
	initErr      error

	closed          atomic.Bool
	cancelRequested atomic.Bool
	connected       atomic.Bool

	// SCTP starts out assumed available and is cleared when negotiation
	// runs without any data channel. Adding a channel afterwards would
	// need renegotiation, so it is rejected instead.
	sctpNegotiated bool

	localDesc  *SessionDescription
	remoteDesc *SessionDescription

	dataChannels map[uintptr]*DataChannel
	remoteTracks map[uintptr]*RemoteTrack
	transceivers []*Transceiver
	localTracks  []*LocalTrack
	sources      []*TrackSource

	localDescHub    event.Hub[SessionDescription]
	iceCandidateHub event.Hub[IceCandidate]
	iceStateHub     event.Hub[IceConnectionState]
	iceGatherHub    event.Hub[IceGatheringState]
	connectedHub    event.Hub[struct{}]
	renegotiateHub  event.Hub[struct{}]
	trackAddedHub   event.Hub[*RemoteTrack]
	trackRemovedHub event.Hub[*RemoteTrack]
	dataChannelHub  event.Hub[*DataChannel]
}

// NewPeerConnection creates an uninitialized peer connection. The native
// peer does not exist until Initialize succeeds.
func NewPeerConnection(opts ...Option) *PeerConnection {
	p := &PeerConnection{
		log:            zerolog.Nop(),
		sctpNegotiated: true,
		dataChannels:   make(map[uintptr]*DataChannel),
		remoteTracks:   make(map[uintptr]*RemoteTrack),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current lifecycle state.
func (p *PeerConnection) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsConnected reports whether the engine has signaled a completed
// handshake. It turns false again on disconnect or close.
func (p *PeerConnection) IsConnected() bool {
	return p.connected.Load()
}

// Initialize creates the native peer connection. It is memoized: the first
// caller runs creation, concurrent and later callers share its outcome, and
// a second call after success is a no-op. Canceling the context abandons
// the wait and marks the in-flight attempt so its handle is discarded on
// arrival.
func (p *PeerConnection) Initialize(ctx context.Context, cfg Configuration) error {
	if p.closed.Load() {
		return ErrClosed
	}

	p.mu.Lock()
	switch p.state {
	case StateInitialized:
		p.mu.Unlock()
		return nil
	case StateClosing:
		p.mu.Unlock()
		return ErrClosed
	case StateInitializing:
		// Join the in-flight attempt.
	case StateUninitialized:
		if p.eng == nil {
			e, err := ffi.NewEngine()
			if err != nil {
				p.mu.Unlock()
				return err
			}
			p.eng = e
		}
		p.cancelRequested.Store(false)
		p.state = StateInitializing
		p.initDone = make(chan struct{})
		go p.runInitialize(cfg)
	}
	done := p.initDone
	p.mu.Unlock()

	select {
	case <-done:
		p.mu.Lock()
		err := p.initErr
		p.mu.Unlock()
		return err
	case <-ctx.Done():
		p.cancelRequested.Store(true)
		return ErrOperationCanceled
	}
}

// runInitialize performs the blocking native creation off the caller's
// goroutine. The engine call is made without holding the lock.
func (p *PeerConnection) runInitialize(cfg Configuration) {
	ecfg := cfg.toEngine()
	h, err := p.eng.CreatePeerConnection(&ecfg)

	p.mu.Lock()
	done := p.initDone

	if err != nil {
		p.state = StateUninitialized
		p.initErr = mapEngineErr(err)
		p.mu.Unlock()
		p.log.Error().Err(err).Msg("peer connection creation failed")
		close(done)
		return
	}

	if p.closed.Load() || p.cancelRequested.Load() {
		// Closed or canceled while the engine was creating the peer; the
		// fresh handle is given straight back.
		p.state = StateUninitialized
		p.initErr = ErrOperationCanceled
		p.mu.Unlock()
		p.eng.ReleasePeerConnection(h)
		close(done)
		return
	}

	p.handle = interop.BindHandle(h, p.eng.ReleasePeerConnection)
	p.eventsRef = interop.MintRef(&peerEvents{pc: p})
	p.hasEventsRef = true
	p.initErr = nil
	p.mu.Unlock()

	// Callbacks go live before the state does. Close waits on initDone while
	// the state is still Initializing, so its unregister can never overtake
	// this registration.
	p.eng.RegisterPeerConnectionCallbacks(h, p.eventsRef)

	p.mu.Lock()
	p.state = StateInitialized
	p.mu.Unlock()
	close(done)
}

// Close tears the connection down. It is idempotent and safe to call from
// any state, including concurrently with Initialize, in which case it waits
// for the in-flight creation to settle first.
//
// Teardown order matters: callbacks are unregistered before anything is
// released, owned objects are torn down next, the back-reference token goes
// after them, and the native handle is released last.
func (p *PeerConnection) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.mu.Lock()
	if p.state == StateInitializing {
		done := p.initDone
		p.mu.Unlock()
		<-done
		p.mu.Lock()
	}
	if p.state != StateInitialized {
		p.state = StateUninitialized
		p.mu.Unlock()
		return nil
	}
	p.state = StateClosing
	raw, rawErr := p.handle.Raw()
	ref := p.eventsRef
	hasRef := p.hasEventsRef
	p.hasEventsRef = false

	dcs := make([]*DataChannel, 0, len(p.dataChannels))
	for _, dc := range p.dataChannels {
		dcs = append(dcs, dc)
	}
	p.dataChannels = make(map[uintptr]*DataChannel)

	remotes := make([]*RemoteTrack, 0, len(p.remoteTracks))
	for _, rt := range p.remoteTracks {
		remotes = append(remotes, rt)
	}
	p.remoteTracks = make(map[uintptr]*RemoteTrack)

	trs := p.transceivers
	p.transceivers = nil
	locals := p.localTracks
	p.localTracks = nil
	srcs := p.sources
	p.sources = nil
	p.mu.Unlock()

	if rawErr == nil {
		p.eng.UnregisterPeerConnectionCallbacks(raw)
	}

	for _, dc := range dcs {
		dc.teardown(false)
	}
	for _, rt := range remotes {
		rt.teardown()
	}
	for _, tr := range trs {
		tr.teardown()
	}
	for _, lt := range locals {
		lt.Release()
	}
	for _, src := range srcs {
		src.Release()
	}

	if hasRef {
		interop.ReleaseRef(ref)
	}
	if rawErr == nil {
		p.eng.ClosePeerConnection(raw)
	}
	p.handle.Release()
	p.connected.Store(false)

	p.mu.Lock()
	p.state = StateUninitialized
	p.mu.Unlock()

	p.log.Debug().Msg("peer connection closed")
	return nil
}

// liveHandle returns the raw native handle, failing when the connection is
// closed, not yet initialized, or already released.
func (p *PeerConnection) liveHandle() (uintptr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveHandleLocked()
}

func (p *PeerConnection) liveHandleLocked() (uintptr, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	if p.state != StateInitialized || p.handle == nil {
		return 0, ErrNotInitialized
	}
	return p.handle.Raw()
}

// acquireHandle pins the native handle for the duration of one engine call.
// A Close racing the call invalidates the handle at once but the native
// reference stays alive until the returned unpin runs.
func (p *PeerConnection) acquireHandle() (uintptr, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireHandleLocked()
}

func (p *PeerConnection) acquireHandleLocked() (uintptr, func(), error) {
	if p.closed.Load() {
		return 0, nil, ErrClosed
	}
	if p.state != StateInitialized || p.handle == nil {
		return 0, nil, ErrNotInitialized
	}
	return p.handle.Acquire()
}

// CreateOffer asks the engine to produce a local offer. The result arrives
// through OnLocalDescription. If no data channel exists at this point, the
// offer carries no SCTP section and later AddDataChannel calls fail.
func (p *PeerConnection) CreateOffer() error {
	p.mu.Lock()
	h, unpin, err := p.acquireHandleLocked()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if len(p.dataChannels) == 0 {
		p.sctpNegotiated = false
	}
	p.mu.Unlock()
	defer unpin()

	return mapEngineErr(p.eng.CreateOffer(h))
}

// CreateAnswer asks the engine to answer the applied remote offer. The
// result arrives through OnLocalDescription.
func (p *PeerConnection) CreateAnswer() error {
	h, unpin, err := p.acquireHandle()
	if err != nil {
		return err
	}
	defer unpin()
	return mapEngineErr(p.eng.CreateAnswer(h))
}

// SetRemoteDescription applies the remote peer's description and waits for
// the engine to finish applying it.
func (p *PeerConnection) SetRemoteDescription(ctx context.Context, desc SessionDescription) error {
	if desc.Sdp == "" {
		return fmt.Errorf("%w: empty sdp", ErrInvalidArgument)
	}

	p.mu.Lock()
	h, unpin, err := p.acquireHandleLocked()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if len(p.dataChannels) == 0 {
		p.sctpNegotiated = false
	}
	p.mu.Unlock()

	ch := make(chan error, 1)
	ref := interop.MintRef(&remoteDescObserver{done: ch})

	err = p.eng.SetRemoteDescription(h, engine.SdpType(desc.Type), desc.Sdp, ref)
	unpin()
	if err != nil {
		interop.ReleaseRef(ref)
		return mapEngineErr(err)
	}

	select {
	case err := <-ch:
		if err != nil {
			return mapEngineErr(err)
		}
		p.mu.Lock()
		d := desc
		p.remoteDesc = &d
		p.mu.Unlock()
		return nil
	case <-ctx.Done():
		// The observer token stays minted; the engine's eventual one-shot
		// delivery releases it.
		return ErrOperationCanceled
	}
}

// AddIceCandidate feeds one trickled remote candidate to the engine.
func (p *PeerConnection) AddIceCandidate(c IceCandidate) error {
	if c.Candidate == "" {
		return fmt.Errorf("%w: empty candidate", ErrInvalidArgument)
	}
	h, unpin, err := p.acquireHandle()
	if err != nil {
		return err
	}
	defer unpin()
	return mapEngineErr(p.eng.AddIceCandidate(h, c.SdpMid, c.SdpMLineIndex, c.Candidate))
}

// LocalDescription returns the most recent local description, or nil.
func (p *PeerConnection) LocalDescription() *SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.localDesc == nil {
		return nil
	}
	d := *p.localDesc
	return &d
}

// RemoteDescription returns the applied remote description, or nil.
func (p *PeerConnection) RemoteDescription() *SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remoteDesc == nil {
		return nil
	}
	d := *p.remoteDesc
	return &d
}

// Event subscriptions. Each returns an unsubscribe function; handlers run
// on engine callback goroutines and must not block.

func (p *PeerConnection) OnLocalDescription(fn func(SessionDescription)) func() {
	return p.localDescHub.Subscribe(fn)
}

func (p *PeerConnection) OnIceCandidate(fn func(IceCandidate)) func() {
	return p.iceCandidateHub.Subscribe(fn)
}

func (p *PeerConnection) OnIceStateChange(fn func(IceConnectionState)) func() {
	return p.iceStateHub.Subscribe(fn)
}

func (p *PeerConnection) OnIceGatheringStateChange(fn func(IceGatheringState)) func() {
	return p.iceGatherHub.Subscribe(fn)
}

func (p *PeerConnection) OnConnected(fn func()) func() {
	return p.connectedHub.Subscribe(func(struct{}) { fn() })
}

func (p *PeerConnection) OnRenegotiationNeeded(fn func()) func() {
	return p.renegotiateHub.Subscribe(func(struct{}) { fn() })
}

func (p *PeerConnection) OnTrackAdded(fn func(*RemoteTrack)) func() {
	return p.trackAddedHub.Subscribe(fn)
}

func (p *PeerConnection) OnTrackRemoved(fn func(*RemoteTrack)) func() {
	return p.trackRemovedHub.Subscribe(fn)
}

// OnDataChannel fires for channels announced in-band by the remote peer.
func (p *PeerConnection) OnDataChannel(fn func(*DataChannel)) func() {
	return p.dataChannelHub.Subscribe(fn)
}

// peerEvents receives raw engine callbacks for one connection. It is the
// value behind the connection's back-reference token, so late callbacks
// after Close resolve to nothing and are dropped before reaching here.
type peerEvents struct {
	pc *PeerConnection
}

var _ engine.PeerConnectionEvents = (*peerEvents)(nil)

func (e *peerEvents) OnLocalDescriptionReady(t engine.SdpType, sdp string) {
	p := e.pc
	desc := SessionDescription{Type: SdpType(t), Sdp: sdp}
	p.mu.Lock()
	if p.closed.Load() {
		// Tolerated late delivery after teardown; leaves no trace.
		p.mu.Unlock()
		return
	}
	d := desc
	p.localDesc = &d
	p.mu.Unlock()
	p.localDescHub.Emit(desc)
}

func (e *peerEvents) OnIceCandidateReady(candidate, sdpMid string, sdpMLineIndex int) {
	e.pc.iceCandidateHub.Emit(IceCandidate{
		Candidate:     candidate,
		SdpMid:        sdpMid,
		SdpMLineIndex: sdpMLineIndex,
	})
}

func (e *peerEvents) OnIceStateChanged(state engine.IceState) {
	p := e.pc
	switch state {
	case engine.IceStateDisconnected, engine.IceStateFailed, engine.IceStateClosed:
		p.connected.Store(false)
	}
	p.iceStateHub.Emit(IceConnectionState(state))
}

func (e *peerEvents) OnIceGatheringStateChanged(state engine.IceGatheringState) {
	e.pc.iceGatherHub.Emit(IceGatheringState(state))
}

func (e *peerEvents) OnConnected() {
	p := e.pc
	p.connected.Store(true)
	p.connectedHub.Emit(struct{}{})
}

func (e *peerEvents) OnRenegotiationNeeded() {
	e.pc.renegotiateHub.Emit(struct{}{})
}

func (e *peerEvents) OnTrackAdded(track, transceiver uintptr, kind engine.MediaKind) {
	p := e.pc
	rt := newRemoteTrack(p, track, transceiver, MediaKind(kind))
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return
	}
	p.remoteTracks[track] = rt
	p.mu.Unlock()
	p.trackAddedHub.Emit(rt)
}

func (e *peerEvents) OnTrackRemoved(track, transceiver uintptr) {
	p := e.pc
	p.mu.Lock()
	rt, ok := p.remoteTracks[track]
	if ok {
		delete(p.remoteTracks, track)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	rt.teardown()
	p.trackRemovedHub.Emit(rt)
}

func (e *peerEvents) OnDataChannelAdded(dcHandle uintptr, id int, label string) {
	p := e.pc

	// An in-band channel from the remote peer proves an SCTP session was
	// negotiated after all.
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return
	}
	p.sctpNegotiated = true
	if _, exists := p.dataChannels[dcHandle]; exists {
		// Announcement for a channel this side created; already wrapped.
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	dc := newDataChannel(p, dcHandle, id, label, true, true)
	p.mu.Lock()
	p.dataChannels[dcHandle] = dc
	p.mu.Unlock()
	p.dataChannelHub.Emit(dc)
}

func (e *peerEvents) OnDataChannelRemoved(dcHandle uintptr) {
	p := e.pc
	p.mu.Lock()
	dc, ok := p.dataChannels[dcHandle]
	if ok {
		delete(p.dataChannels, dcHandle)
	}
	p.mu.Unlock()
	if ok {
		dc.teardown(false)
	}
}

// remoteDescObserver is the one-shot completion target for
// SetRemoteDescription.
type remoteDescObserver struct {
	done chan error
}

var _ engine.RemoteDescriptionObserver = (*remoteDescObserver)(nil)

func (o *remoteDescObserver) OnRemoteDescriptionApplied(err error) {
	select {
	case o.done <- err:
	default:
	}
}

func mapEngineErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrSctpNotNegotiated):
		return ErrSctpNotNegotiated
	case errors.Is(err, engine.ErrInvalidParam):
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	case errors.Is(err, engine.ErrPeerClosed):
		return ErrClosed
	default:
		return fmt.Errorf("%w: %v", ErrNativeOperationFailed, err)
	}
}
