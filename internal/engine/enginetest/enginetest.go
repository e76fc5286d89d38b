// Package enginetest provides an in-process engine.API double. It hands out
// fake handles, counts calls, and delivers callbacks through the same
// back-reference tokens the production binding uses, so the wrapper layer's
// lifetime and teardown behavior can be tested without a native library.
package enginetest

import (
	"fmt"
	"sync"
	"time"

	"github.com/thesyncim/nativertc/internal/engine"
	"github.com/thesyncim/nativertc/internal/interop"
)

type peerState struct {
	events    interop.Ref
	hasEvents bool
	localSet  bool
	remoteSet bool
	closed    bool
}

type channelState struct {
	peer      uintptr
	id        int
	label     string
	events    interop.Ref
	hasEvents bool
}

type sinkState struct {
	ref interop.Ref
}

// Engine is a fake engine.API. Events fire synchronously from the calling
// goroutine unless Latency is set, in which case creation calls sleep first
// to simulate a blocking native call.
type Engine struct {
	mu sync.Mutex

	// Latency is slept inside CreatePeerConnection before it returns.
	Latency time.Duration

	// CreateErr, when set, makes CreatePeerConnection fail.
	CreateErr error

	nextHandle uintptr
	calls      map[string]int
	released   map[uintptr]bool

	peers      map[uintptr]*peerState
	channels   map[uintptr]*channelState
	videoSinks map[uintptr]sinkState
	audioSinks map[uintptr]sinkState

	pushedVideo int
	pushedAudio int
	sent        [][]byte
}

var _ engine.API = (*Engine)(nil)

func New() *Engine {
	return &Engine{
		nextHandle: 0x1000,
		calls:      make(map[string]int),
		released:   make(map[uintptr]bool),
		peers:      make(map[uintptr]*peerState),
		channels:   make(map[uintptr]*channelState),
		videoSinks: make(map[uintptr]sinkState),
		audioSinks: make(map[uintptr]sinkState),
	}
}

func (e *Engine) count(name string) {
	e.mu.Lock()
	e.calls[name]++
	e.mu.Unlock()
}

// CallCount returns how many times the named API method was invoked.
func (e *Engine) CallCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[name]
}

// Released reports whether the handle was given back via a Release* call.
func (e *Engine) Released(h uintptr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released[h]
}

// LiveHandleCount returns the number of handed-out handles not yet released.
func (e *Engine) LiveHandleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for h := uintptr(0x1001); h <= e.nextHandle; h++ {
		if !e.released[h] {
			n++
		}
	}
	return n
}

// SentMessages returns copies of every payload passed to DataChannelSend.
func (e *Engine) SentMessages() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]byte, len(e.sent))
	copy(out, e.sent)
	return out
}

// PushedVideoFrames returns the number of frames pushed to any source.
func (e *Engine) PushedVideoFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pushedVideo
}

func (e *Engine) allocHandle() uintptr {
	e.mu.Lock()
	e.nextHandle++
	h := e.nextHandle
	e.mu.Unlock()
	return h
}

func (e *Engine) peerEvents(h uintptr) (engine.PeerConnectionEvents, bool) {
	e.mu.Lock()
	ps, ok := e.peers[h]
	if !ok || !ps.hasEvents || ps.closed {
		e.mu.Unlock()
		return nil, false
	}
	ref := ps.events
	e.mu.Unlock()

	v, ok := interop.ResolveRef(ref)
	if !ok {
		return nil, false
	}
	ev, ok := v.(engine.PeerConnectionEvents)
	return ev, ok
}

// fireConnectedIfReady delivers OnConnected once a peer holds both a local
// and a remote description, mirroring the point in the native handshake
// where the engine reports the transport up.
func (e *Engine) fireConnectedIfReady(h uintptr) {
	e.mu.Lock()
	ps, ok := e.peers[h]
	ready := ok && ps.localSet && ps.remoteSet && !ps.closed
	e.mu.Unlock()
	if !ready {
		return
	}
	if ev, ok := e.peerEvents(h); ok {
		ev.OnConnected()
	}
}

func (e *Engine) CreatePeerConnection(cfg *engine.PeerConnectionConfig) (uintptr, error) {
	e.count("CreatePeerConnection")
	if e.Latency > 0 {
		time.Sleep(e.Latency)
	}
	if e.CreateErr != nil {
		return 0, e.CreateErr
	}
	h := e.allocHandle()
	e.mu.Lock()
	e.peers[h] = &peerState{}
	e.mu.Unlock()
	return h, nil
}

func (e *Engine) RegisterPeerConnectionCallbacks(h uintptr, ref interop.Ref) {
	e.count("RegisterPeerConnectionCallbacks")
	e.mu.Lock()
	if ps, ok := e.peers[h]; ok {
		ps.events = ref
		ps.hasEvents = true
	}
	e.mu.Unlock()
}

func (e *Engine) UnregisterPeerConnectionCallbacks(h uintptr) {
	e.count("UnregisterPeerConnectionCallbacks")
	e.mu.Lock()
	if ps, ok := e.peers[h]; ok {
		ps.hasEvents = false
	}
	e.mu.Unlock()
}

func (e *Engine) ClosePeerConnection(h uintptr) {
	e.count("ClosePeerConnection")
	e.mu.Lock()
	if ps, ok := e.peers[h]; ok {
		ps.closed = true
	}
	e.mu.Unlock()
}

func (e *Engine) ReleasePeerConnection(h uintptr) {
	e.count("ReleasePeerConnection")
	e.mu.Lock()
	e.released[h] = true
	delete(e.peers, h)
	e.mu.Unlock()
}

func fakeSdp(t engine.SdpType, h uintptr) string {
	return fmt.Sprintf("v=0\r\no=- %d 1 IN IP4 127.0.0.1\r\ns=%s\r\n", h, t)
}

func (e *Engine) CreateOffer(h uintptr) error {
	e.count("CreateOffer")
	e.mu.Lock()
	ps, ok := e.peers[h]
	if !ok {
		e.mu.Unlock()
		return engine.ErrNotFound
	}
	ps.localSet = true
	e.mu.Unlock()

	if ev, ok := e.peerEvents(h); ok {
		ev.OnLocalDescriptionReady(engine.SdpTypeOffer, fakeSdp(engine.SdpTypeOffer, h))
	}
	e.fireConnectedIfReady(h)
	return nil
}

func (e *Engine) CreateAnswer(h uintptr) error {
	e.count("CreateAnswer")
	e.mu.Lock()
	ps, ok := e.peers[h]
	if !ok {
		e.mu.Unlock()
		return engine.ErrNotFound
	}
	if !ps.remoteSet {
		e.mu.Unlock()
		return engine.ErrInvalidOperation
	}
	ps.localSet = true
	e.mu.Unlock()

	if ev, ok := e.peerEvents(h); ok {
		ev.OnLocalDescriptionReady(engine.SdpTypeAnswer, fakeSdp(engine.SdpTypeAnswer, h))
	}
	e.fireConnectedIfReady(h)
	return nil
}

func (e *Engine) SetRemoteDescription(h uintptr, t engine.SdpType, sdp string, observer interop.Ref) error {
	e.count("SetRemoteDescription")
	e.mu.Lock()
	ps, ok := e.peers[h]
	if !ok {
		e.mu.Unlock()
		return engine.ErrNotFound
	}
	if sdp == "" {
		e.mu.Unlock()
		return engine.ErrInvalidParam
	}
	ps.remoteSet = true
	e.mu.Unlock()

	// One-shot completion; the token dies with the delivery.
	if v, ok := interop.ResolveRef(observer); ok {
		interop.ReleaseRef(observer)
		if obs, ok := v.(engine.RemoteDescriptionObserver); ok {
			obs.OnRemoteDescriptionApplied(nil)
		}
	}
	e.fireConnectedIfReady(h)
	return nil
}

func (e *Engine) AddIceCandidate(h uintptr, sdpMid string, sdpMLineIndex int, candidate string) error {
	e.count("AddIceCandidate")
	e.mu.Lock()
	_, ok := e.peers[h]
	e.mu.Unlock()
	if !ok {
		return engine.ErrNotFound
	}
	if candidate == "" {
		return engine.ErrInvalidParam
	}
	return nil
}

func (e *Engine) AddTransceiver(h uintptr, kind engine.MediaKind, dir engine.Direction, name string) (uintptr, error) {
	e.count("AddTransceiver")
	e.mu.Lock()
	_, ok := e.peers[h]
	e.mu.Unlock()
	if !ok {
		return 0, engine.ErrNotFound
	}
	return e.allocHandle(), nil
}

func (e *Engine) SetTransceiverDirection(tr uintptr, dir engine.Direction) error {
	e.count("SetTransceiverDirection")
	return nil
}

func (e *Engine) SetTransceiverTrack(tr uintptr, track uintptr) error {
	e.count("SetTransceiverTrack")
	return nil
}

func (e *Engine) ReleaseTransceiver(tr uintptr) {
	e.count("ReleaseTransceiver")
	e.mu.Lock()
	e.released[tr] = true
	e.mu.Unlock()
}

func (e *Engine) CreateTrackSource(kind engine.MediaKind) (uintptr, error) {
	e.count("CreateTrackSource")
	return e.allocHandle(), nil
}

func (e *Engine) PushVideoFrame(src uintptr, f *engine.VideoFrameView) error {
	e.count("PushVideoFrame")
	e.mu.Lock()
	e.pushedVideo++
	e.mu.Unlock()
	return nil
}

func (e *Engine) PushAudioFrame(src uintptr, f *engine.AudioFrameView) error {
	e.count("PushAudioFrame")
	e.mu.Lock()
	e.pushedAudio++
	e.mu.Unlock()
	return nil
}

func (e *Engine) ReleaseTrackSource(src uintptr) {
	e.count("ReleaseTrackSource")
	e.mu.Lock()
	e.released[src] = true
	e.mu.Unlock()
}

func (e *Engine) CreateLocalTrack(src uintptr, kind engine.MediaKind, name string) (uintptr, error) {
	e.count("CreateLocalTrack")
	return e.allocHandle(), nil
}

func (e *Engine) SetTrackEnabled(track uintptr, enabled bool) error {
	e.count("SetTrackEnabled")
	return nil
}

func (e *Engine) ReleaseTrack(track uintptr) {
	e.count("ReleaseTrack")
	e.mu.Lock()
	e.released[track] = true
	e.mu.Unlock()
}

func (e *Engine) RegisterVideoSink(track uintptr, ref interop.Ref) {
	e.count("RegisterVideoSink")
	e.mu.Lock()
	e.videoSinks[track] = sinkState{ref: ref}
	e.mu.Unlock()
}

func (e *Engine) UnregisterVideoSink(track uintptr) {
	e.count("UnregisterVideoSink")
	e.mu.Lock()
	delete(e.videoSinks, track)
	e.mu.Unlock()
}

func (e *Engine) RegisterAudioSink(track uintptr, ref interop.Ref) {
	e.count("RegisterAudioSink")
	e.mu.Lock()
	e.audioSinks[track] = sinkState{ref: ref}
	e.mu.Unlock()
}

func (e *Engine) UnregisterAudioSink(track uintptr) {
	e.count("UnregisterAudioSink")
	e.mu.Lock()
	delete(e.audioSinks, track)
	e.mu.Unlock()
}

func (e *Engine) AddDataChannel(h uintptr, id int, label string, ordered, reliable bool) (uintptr, error) {
	e.count("AddDataChannel")
	e.mu.Lock()
	_, ok := e.peers[h]
	e.mu.Unlock()
	if !ok {
		return 0, engine.ErrNotFound
	}
	dc := e.allocHandle()
	e.mu.Lock()
	e.channels[dc] = &channelState{peer: h, id: id, label: label}
	e.mu.Unlock()
	return dc, nil
}

func (e *Engine) RegisterDataChannelCallbacks(dc uintptr, ref interop.Ref) {
	e.count("RegisterDataChannelCallbacks")
	e.mu.Lock()
	if cs, ok := e.channels[dc]; ok {
		cs.events = ref
		cs.hasEvents = true
	}
	e.mu.Unlock()
}

func (e *Engine) UnregisterDataChannelCallbacks(dc uintptr) {
	e.count("UnregisterDataChannelCallbacks")
	e.mu.Lock()
	if cs, ok := e.channels[dc]; ok {
		cs.hasEvents = false
	}
	e.mu.Unlock()
}

func (e *Engine) DataChannelSend(dc uintptr, data []byte, binary bool) error {
	e.count("DataChannelSend")
	e.mu.Lock()
	_, ok := e.channels[dc]
	if ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		e.sent = append(e.sent, cp)
	}
	e.mu.Unlock()
	if !ok {
		return engine.ErrNotFound
	}
	return nil
}

func (e *Engine) RemoveDataChannel(h uintptr, dc uintptr) error {
	e.count("RemoveDataChannel")
	e.mu.Lock()
	delete(e.channels, dc)
	e.mu.Unlock()
	return nil
}

func (e *Engine) ReleaseDataChannel(dc uintptr) {
	e.count("ReleaseDataChannel")
	e.mu.Lock()
	e.released[dc] = true
	delete(e.channels, dc)
	e.mu.Unlock()
}

// Test drivers below inject engine-originated events into registered
// receivers, the way a native engine thread would.

// EmitIceCandidate delivers a fabricated ICE candidate to the peer's events.
func (e *Engine) EmitIceCandidate(h uintptr, candidate, sdpMid string, sdpMLineIndex int) bool {
	ev, ok := e.peerEvents(h)
	if !ok {
		return false
	}
	ev.OnIceCandidateReady(candidate, sdpMid, sdpMLineIndex)
	return true
}

// EmitIceState delivers an ICE state transition.
func (e *Engine) EmitIceState(h uintptr, state engine.IceState) bool {
	ev, ok := e.peerEvents(h)
	if !ok {
		return false
	}
	ev.OnIceStateChanged(state)
	return true
}

// EmitRemoteTrack announces an in-band remote track with fresh fake handles.
func (e *Engine) EmitRemoteTrack(h uintptr, kind engine.MediaKind) (track, transceiver uintptr, ok bool) {
	ev, ok := e.peerEvents(h)
	if !ok {
		return 0, 0, false
	}
	track = e.allocHandle()
	transceiver = e.allocHandle()
	ev.OnTrackAdded(track, transceiver, kind)
	return track, transceiver, true
}

// EmitRemoteDataChannel announces an in-band data channel opened by the
// remote peer.
func (e *Engine) EmitRemoteDataChannel(h uintptr, id int, label string) (uintptr, bool) {
	ev, ok := e.peerEvents(h)
	if !ok {
		return 0, false
	}
	dc := e.allocHandle()
	e.mu.Lock()
	e.channels[dc] = &channelState{peer: h, id: id, label: label}
	e.mu.Unlock()
	ev.OnDataChannelAdded(dc, id, label)
	return dc, true
}

// EmitDataChannelState delivers a channel ready-state transition.
func (e *Engine) EmitDataChannelState(dc uintptr, state engine.DataChannelState) bool {
	e.mu.Lock()
	cs, ok := e.channels[dc]
	if !ok || !cs.hasEvents {
		e.mu.Unlock()
		return false
	}
	ref := cs.events
	e.mu.Unlock()

	v, ok := interop.ResolveRef(ref)
	if !ok {
		return false
	}
	ev, ok := v.(engine.DataChannelEvents)
	if !ok {
		return false
	}
	ev.OnStateChanged(state)
	return true
}

// EmitDataChannelMessage delivers an inbound message on the channel.
func (e *Engine) EmitDataChannelMessage(dc uintptr, data []byte, binary bool) bool {
	e.mu.Lock()
	cs, ok := e.channels[dc]
	if !ok || !cs.hasEvents {
		e.mu.Unlock()
		return false
	}
	ref := cs.events
	e.mu.Unlock()

	v, ok := interop.ResolveRef(ref)
	if !ok {
		return false
	}
	ev, ok := v.(engine.DataChannelEvents)
	if !ok {
		return false
	}
	ev.OnMessage(data, binary)
	return true
}

// EmitVideoFrame delivers a frame to the sink registered on the track.
func (e *Engine) EmitVideoFrame(track uintptr, f engine.VideoFrameView) bool {
	e.mu.Lock()
	ss, ok := e.videoSinks[track]
	e.mu.Unlock()
	if !ok {
		return false
	}
	v, ok := interop.ResolveRef(ss.ref)
	if !ok {
		return false
	}
	sink, ok := v.(engine.VideoSink)
	if !ok {
		return false
	}
	sink.OnVideoFrame(f)
	return true
}

// HasVideoSink reports whether a sink is currently registered on the track.
func (e *Engine) HasVideoSink(track uintptr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.videoSinks[track]
	return ok
}
