package ffi

import (
	"runtime"

	"github.com/thesyncim/nativertc/internal/engine"
	"github.com/thesyncim/nativertc/internal/interop"
)

// Engine is the production engine.API backed by the loaded shared library.
// It is stateless; all state lives behind the engine's opaque handles.
type Engine struct{}

var _ engine.API = (*Engine)(nil)

// NewEngine loads the engine library if needed and returns the binding.
func NewEngine() (*Engine, error) {
	if err := LoadLibrary(); err != nil {
		return nil, err
	}
	return &Engine{}, nil
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (e *Engine) CreatePeerConnection(cfg *engine.PeerConnectionConfig) (uintptr, error) {
	if !libLoaded.Load() {
		return 0, ErrLibraryNotLoaded
	}

	var servers []byte
	c := peerConfigFFI{}
	if cfg != nil {
		if encoded := encodeIceServers(cfg.IceServers); encoded != "" {
			servers = CString(encoded)
			c.IceServers = &servers[0]
		}
		c.IceTransportPolicy = icePolicyCode(cfg.IceTransportPolicy)
		c.BundlePolicy = bundlePolicyCode(cfg.BundlePolicy)
		c.IceCandidatePoolSize = int32(cfg.IceCandidatePoolSize)
	}

	var out uintptr
	status := enginePeerConnectionCreate(c.Ptr(), UintptrPtr(&out))
	runtime.KeepAlive(servers)
	runtime.KeepAlive(&c)
	if err := engine.StatusError(status); err != nil {
		return 0, err
	}
	return out, nil
}

func (e *Engine) RegisterPeerConnectionCallbacks(h uintptr, ref interop.Ref) {
	if !libLoaded.Load() {
		return
	}
	ctx := uintptr(ref)
	enginePCSetLocalDescriptionCallback(h, pcLocalDescriptionCallbackPtr, ctx)
	enginePCSetIceCandidateCallback(h, pcIceCandidateCallbackPtr, ctx)
	enginePCSetIceStateCallback(h, pcIceStateCallbackPtr, ctx)
	enginePCSetIceGatheringStateCallback(h, pcIceGatheringCallbackPtr, ctx)
	enginePCSetConnectedCallback(h, pcConnectedCallbackPtr, ctx)
	enginePCSetRenegotiationCallback(h, pcRenegotiationCallbackPtr, ctx)
	enginePCSetTrackAddedCallback(h, pcTrackAddedCallbackPtr, ctx)
	enginePCSetTrackRemovedCallback(h, pcTrackRemovedCallbackPtr, ctx)
	enginePCSetDataChannelAddedCallback(h, pcDataChannelAddedCallbackPtr, ctx)
	enginePCSetDataChannelRemovedCallback(h, pcDataChannelRemovedCallbackPtr, ctx)
}

func (e *Engine) UnregisterPeerConnectionCallbacks(h uintptr) {
	if !libLoaded.Load() {
		return
	}
	enginePCSetLocalDescriptionCallback(h, 0, 0)
	enginePCSetIceCandidateCallback(h, 0, 0)
	enginePCSetIceStateCallback(h, 0, 0)
	enginePCSetIceGatheringStateCallback(h, 0, 0)
	enginePCSetConnectedCallback(h, 0, 0)
	enginePCSetRenegotiationCallback(h, 0, 0)
	enginePCSetTrackAddedCallback(h, 0, 0)
	enginePCSetTrackRemovedCallback(h, 0, 0)
	enginePCSetDataChannelAddedCallback(h, 0, 0)
	enginePCSetDataChannelRemovedCallback(h, 0, 0)
}

func (e *Engine) ClosePeerConnection(h uintptr) {
	if !libLoaded.Load() {
		return
	}
	enginePeerConnectionClose(h)
}

func (e *Engine) ReleasePeerConnection(h uintptr) {
	if !libLoaded.Load() {
		return
	}
	enginePeerConnectionDestroy(h)
}

func (e *Engine) CreateOffer(h uintptr) error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	return engine.StatusError(enginePeerConnectionCreateOffer(h))
}

func (e *Engine) CreateAnswer(h uintptr) error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	return engine.StatusError(enginePeerConnectionCreateAnswer(h))
}

func (e *Engine) SetRemoteDescription(h uintptr, t engine.SdpType, sdp string, observer interop.Ref) error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	sdpBytes := CString(sdp)
	status := enginePeerConnectionSetRemoteDescription(h, int32(t), ByteSlicePtr(sdpBytes), remoteDescriptionCallbackPtr, uintptr(observer))
	runtime.KeepAlive(sdpBytes)
	return engine.StatusError(status)
}

func (e *Engine) AddIceCandidate(h uintptr, sdpMid string, sdpMLineIndex int, candidate string) error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	midBytes := CString(sdpMid)
	candBytes := CString(candidate)
	status := enginePeerConnectionAddIceCandidate(h, ByteSlicePtr(midBytes), int32(sdpMLineIndex), ByteSlicePtr(candBytes))
	runtime.KeepAlive(midBytes)
	runtime.KeepAlive(candBytes)
	return engine.StatusError(status)
}

func (e *Engine) AddTransceiver(h uintptr, kind engine.MediaKind, dir engine.Direction, name string) (uintptr, error) {
	if !libLoaded.Load() {
		return 0, ErrLibraryNotLoaded
	}
	nameBytes := CString(name)
	var out uintptr
	status := enginePeerConnectionAddTransceiver(h, int32(kind), int32(dir), ByteSlicePtr(nameBytes), UintptrPtr(&out))
	runtime.KeepAlive(nameBytes)
	if err := engine.StatusError(status); err != nil {
		return 0, err
	}
	return out, nil
}

func (e *Engine) SetTransceiverDirection(tr uintptr, dir engine.Direction) error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	return engine.StatusError(engineTransceiverSetDirection(tr, int32(dir)))
}

func (e *Engine) SetTransceiverTrack(tr uintptr, track uintptr) error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	return engine.StatusError(engineTransceiverSetTrack(tr, track))
}

func (e *Engine) ReleaseTransceiver(tr uintptr) {
	if !libLoaded.Load() {
		return
	}
	engineTransceiverDestroy(tr)
}

func (e *Engine) CreateTrackSource(kind engine.MediaKind) (uintptr, error) {
	if !libLoaded.Load() {
		return 0, ErrLibraryNotLoaded
	}
	var out uintptr
	if err := engine.StatusError(engineTrackSourceCreate(int32(kind), UintptrPtr(&out))); err != nil {
		return 0, err
	}
	return out, nil
}

func (e *Engine) PushVideoFrame(src uintptr, f *engine.VideoFrameView) error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	ff := videoFrameFFI{
		Width:       f.Width,
		Height:      f.Height,
		YPlane:      ByteSlicePtr(f.YPlane),
		UPlane:      ByteSlicePtr(f.UPlane),
		VPlane:      ByteSlicePtr(f.VPlane),
		YStride:     f.YStride,
		UStride:     f.UStride,
		VStride:     f.VStride,
		TimestampUs: f.TimestampUs,
	}
	status := engineTrackSourcePushVideoFrame(src, ff.Ptr())
	runtime.KeepAlive(f.YPlane)
	runtime.KeepAlive(f.UPlane)
	runtime.KeepAlive(f.VPlane)
	runtime.KeepAlive(&ff)
	return engine.StatusError(status)
}

func (e *Engine) PushAudioFrame(src uintptr, f *engine.AudioFrameView) error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	ff := audioFrameFFI{
		Samples:     Int16SlicePtr(f.Samples),
		NumSamples:  int32(len(f.Samples)) / max32(f.Channels, 1),
		SampleRate:  f.SampleRate,
		Channels:    f.Channels,
		TimestampUs: f.TimestampUs,
	}
	status := engineTrackSourcePushAudioFrame(src, ff.Ptr())
	runtime.KeepAlive(f.Samples)
	runtime.KeepAlive(&ff)
	return engine.StatusError(status)
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func (e *Engine) ReleaseTrackSource(src uintptr) {
	if !libLoaded.Load() {
		return
	}
	engineTrackSourceDestroy(src)
}

func (e *Engine) CreateLocalTrack(src uintptr, kind engine.MediaKind, name string) (uintptr, error) {
	if !libLoaded.Load() {
		return 0, ErrLibraryNotLoaded
	}
	nameBytes := CString(name)
	var out uintptr
	status := engineLocalTrackCreate(src, int32(kind), ByteSlicePtr(nameBytes), UintptrPtr(&out))
	runtime.KeepAlive(nameBytes)
	if err := engine.StatusError(status); err != nil {
		return 0, err
	}
	return out, nil
}

func (e *Engine) SetTrackEnabled(track uintptr, enabled bool) error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	return engine.StatusError(engineTrackSetEnabled(track, boolToInt32(enabled)))
}

func (e *Engine) ReleaseTrack(track uintptr) {
	if !libLoaded.Load() {
		return
	}
	engineTrackDestroy(track)
}

func (e *Engine) RegisterVideoSink(track uintptr, ref interop.Ref) {
	if !libLoaded.Load() {
		return
	}
	engineTrackSetVideoSink(track, videoSinkCallbackPtr, uintptr(ref))
}

func (e *Engine) UnregisterVideoSink(track uintptr) {
	if !libLoaded.Load() {
		return
	}
	engineTrackSetVideoSink(track, 0, 0)
}

func (e *Engine) RegisterAudioSink(track uintptr, ref interop.Ref) {
	if !libLoaded.Load() {
		return
	}
	engineTrackSetAudioSink(track, audioSinkCallbackPtr, uintptr(ref))
}

func (e *Engine) UnregisterAudioSink(track uintptr) {
	if !libLoaded.Load() {
		return
	}
	engineTrackSetAudioSink(track, 0, 0)
}

func (e *Engine) AddDataChannel(h uintptr, id int, label string, ordered, reliable bool) (uintptr, error) {
	if !libLoaded.Load() {
		return 0, ErrLibraryNotLoaded
	}
	labelBytes := CString(label)
	var out uintptr
	status := engineDataChannelAdd(h, int32(id), ByteSlicePtr(labelBytes), boolToInt32(ordered), boolToInt32(reliable), UintptrPtr(&out))
	runtime.KeepAlive(labelBytes)
	if err := engine.StatusError(status); err != nil {
		return 0, err
	}
	return out, nil
}

func (e *Engine) RegisterDataChannelCallbacks(dc uintptr, ref interop.Ref) {
	if !libLoaded.Load() {
		return
	}
	engineDataChannelSetCallbacks(dc, dcMessageCallbackPtr, dcStateCallbackPtr, uintptr(ref))
}

func (e *Engine) UnregisterDataChannelCallbacks(dc uintptr) {
	if !libLoaded.Load() {
		return
	}
	engineDataChannelSetCallbacks(dc, 0, 0, 0)
}

func (e *Engine) DataChannelSend(dc uintptr, data []byte, binary bool) error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	status := engineDataChannelSend(dc, ByteSlicePtr(data), int32(len(data)), boolToInt32(binary))
	runtime.KeepAlive(data)
	return engine.StatusError(status)
}

func (e *Engine) RemoveDataChannel(h uintptr, dc uintptr) error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	return engine.StatusError(engineDataChannelRemove(h, dc))
}

func (e *Engine) ReleaseDataChannel(dc uintptr) {
	if !libLoaded.Load() {
		return
	}
	engineDataChannelDestroy(dc)
}
