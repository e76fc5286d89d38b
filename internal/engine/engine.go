// Package engine defines the boundary with the native real-time media
// engine. The engine is a black box: creation calls return an opaque handle
// or a status code, callback registrations carry a back-reference token, and
// events arrive later on engine-owned threads. Everything above this package
// talks to the engine exclusively through the API interface, which is what
// lets the lifetime machinery be exercised against an in-process mock.
package engine

import "github.com/thesyncim/nativertc/internal/interop"

// MediaKind tags a track, source or transceiver as audio or video.
type MediaKind int32

const (
	MediaKindAudio MediaKind = 0
	MediaKindVideo MediaKind = 1
)

func (k MediaKind) String() string {
	switch k {
	case MediaKindAudio:
		return "audio"
	case MediaKindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// SdpType is the type of a session description.
type SdpType int32

const (
	SdpTypeOffer  SdpType = 0
	SdpTypeAnswer SdpType = 1
)

func (t SdpType) String() string {
	switch t {
	case SdpTypeOffer:
		return "offer"
	case SdpTypeAnswer:
		return "answer"
	default:
		return "unknown"
	}
}

// Direction is a transceiver's desired direction.
type Direction int32

const (
	DirectionSendRecv Direction = 0
	DirectionSendOnly Direction = 1
	DirectionRecvOnly Direction = 2
	DirectionInactive Direction = 3
)

func (d Direction) String() string {
	switch d {
	case DirectionSendRecv:
		return "sendrecv"
	case DirectionSendOnly:
		return "sendonly"
	case DirectionRecvOnly:
		return "recvonly"
	case DirectionInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// IceState mirrors the engine's ICE connection state values.
type IceState int32

const (
	IceStateNew IceState = iota
	IceStateChecking
	IceStateConnected
	IceStateCompleted
	IceStateDisconnected
	IceStateFailed
	IceStateClosed
)

func (s IceState) String() string {
	switch s {
	case IceStateNew:
		return "new"
	case IceStateChecking:
		return "checking"
	case IceStateConnected:
		return "connected"
	case IceStateCompleted:
		return "completed"
	case IceStateDisconnected:
		return "disconnected"
	case IceStateFailed:
		return "failed"
	case IceStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IceGatheringState mirrors the engine's ICE gathering state values.
type IceGatheringState int32

const (
	IceGatheringStateNew IceGatheringState = iota
	IceGatheringStateGathering
	IceGatheringStateComplete
)

func (s IceGatheringState) String() string {
	switch s {
	case IceGatheringStateNew:
		return "new"
	case IceGatheringStateGathering:
		return "gathering"
	case IceGatheringStateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// DataChannelState mirrors the engine's data channel ready states.
type DataChannelState int32

const (
	DataChannelStateConnecting DataChannelState = iota
	DataChannelStateOpen
	DataChannelStateClosing
	DataChannelStateClosed
)

func (s DataChannelState) String() string {
	switch s {
	case DataChannelStateConnecting:
		return "connecting"
	case DataChannelStateOpen:
		return "open"
	case DataChannelStateClosing:
		return "closing"
	case DataChannelStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IceServer is one STUN/TURN server entry.
type IceServer struct {
	URLs       []string
	Username   string
	Credential string
}

// PeerConnectionConfig is the configuration handed to the engine when a peer
// connection is created.
type PeerConnectionConfig struct {
	IceServers           []IceServer
	IceTransportPolicy   string // "all" or "relay"
	BundlePolicy         string // "balanced", "max-compat", "max-bundle"
	IceCandidatePoolSize int
}

// VideoFrameView is one I420 frame as delivered by (or pushed to) the
// engine. Plane slices alias engine or caller memory and are only valid for
// the duration of the call that carries them.
type VideoFrameView struct {
	Width       int32
	Height      int32
	YPlane      []byte
	UPlane      []byte
	VPlane      []byte
	YStride     int32
	UStride     int32
	VStride     int32
	TimestampUs int64
}

// AudioFrameView is one block of interleaved PCM samples.
type AudioFrameView struct {
	Samples     []int16
	SampleRate  int32
	Channels    int32
	TimestampUs int64
}

// PeerConnectionEvents receives the engine's peer-connection callbacks.
// Implementations are registered through a back-reference token and must be
// safe to invoke from engine threads concurrently with application calls.
type PeerConnectionEvents interface {
	OnLocalDescriptionReady(t SdpType, sdp string)
	OnIceCandidateReady(candidate, sdpMid string, sdpMLineIndex int)
	OnIceStateChanged(state IceState)
	OnIceGatheringStateChanged(state IceGatheringState)
	OnConnected()
	OnRenegotiationNeeded()
	OnTrackAdded(track, transceiver uintptr, kind MediaKind)
	OnTrackRemoved(track, transceiver uintptr)
	OnDataChannelAdded(dc uintptr, id int, label string)
	OnDataChannelRemoved(dc uintptr)
}

// RemoteDescriptionObserver receives the one-shot completion of an
// asynchronous set-remote-description call. The token minted for it is
// released by the engine implementation after the single invocation.
type RemoteDescriptionObserver interface {
	OnRemoteDescriptionApplied(err error)
}

// DataChannelEvents receives per-channel callbacks.
type DataChannelEvents interface {
	OnMessage(data []byte, binary bool)
	OnStateChanged(state DataChannelState)
}

// VideoSink consumes decoded frames from a remote video track.
type VideoSink interface {
	OnVideoFrame(f VideoFrameView)
}

// AudioSink consumes decoded samples from a remote audio track.
type AudioSink interface {
	OnAudioFrame(f AudioFrameView)
}

// API is every native entry point the binding layer uses. Handles returned
// by Create*/Add* calls carry exactly one engine reference; the matching
// Release* call gives it back. Register/Unregister pairs control whether the
// engine may still invoke callbacks carrying the given token: after
// Unregister returns, at most one already-in-flight invocation per callback
// kind may still be delivered.
//
// All methods must be called with a valid handle; the wrapper layer enforces
// that before reaching this boundary.
type API interface {
	// Peer connection lifetime. CreatePeerConnection may block and must not
	// be called while holding wrapper locks.
	CreatePeerConnection(cfg *PeerConnectionConfig) (uintptr, error)
	RegisterPeerConnectionCallbacks(h uintptr, ref interop.Ref)
	UnregisterPeerConnectionCallbacks(h uintptr)
	ClosePeerConnection(h uintptr)
	ReleasePeerConnection(h uintptr)

	// Session negotiation. CreateOffer/CreateAnswer complete through
	// OnLocalDescriptionReady; SetRemoteDescription completes through the
	// observer token.
	CreateOffer(h uintptr) error
	CreateAnswer(h uintptr) error
	SetRemoteDescription(h uintptr, t SdpType, sdp string, observer interop.Ref) error
	AddIceCandidate(h uintptr, sdpMid string, sdpMLineIndex int, candidate string) error

	// Transceivers.
	AddTransceiver(h uintptr, kind MediaKind, dir Direction, name string) (uintptr, error)
	SetTransceiverDirection(tr uintptr, dir Direction) error
	SetTransceiverTrack(tr uintptr, track uintptr) error
	ReleaseTransceiver(tr uintptr)

	// Track sources and local tracks.
	CreateTrackSource(kind MediaKind) (uintptr, error)
	PushVideoFrame(src uintptr, f *VideoFrameView) error
	PushAudioFrame(src uintptr, f *AudioFrameView) error
	ReleaseTrackSource(src uintptr)
	CreateLocalTrack(src uintptr, kind MediaKind, name string) (uintptr, error)
	SetTrackEnabled(track uintptr, enabled bool) error
	ReleaseTrack(track uintptr)

	// Remote track sinks.
	RegisterVideoSink(track uintptr, ref interop.Ref)
	UnregisterVideoSink(track uintptr)
	RegisterAudioSink(track uintptr, ref interop.Ref)
	UnregisterAudioSink(track uintptr)

	// Data channels.
	AddDataChannel(h uintptr, id int, label string, ordered, reliable bool) (uintptr, error)
	RegisterDataChannelCallbacks(dc uintptr, ref interop.Ref)
	UnregisterDataChannelCallbacks(dc uintptr)
	DataChannelSend(dc uintptr, data []byte, binary bool) error
	RemoveDataChannel(h uintptr, dc uintptr) error
	ReleaseDataChannel(dc uintptr)
}
