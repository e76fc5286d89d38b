package pc

import "github.com/thesyncim/nativertc/internal/engine"

// State is the lifecycle state of a PeerConnection wrapper.
type State int

const (
	// StateUninitialized means no native peer connection exists.
	StateUninitialized State = iota

	// StateInitializing means native creation is in flight.
	StateInitializing

	// StateInitialized means the wrapper owns a live native handle.
	StateInitialized

	// StateClosing means teardown is running.
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// SdpType is the type of a session description.
type SdpType int

const (
	SdpTypeOffer  SdpType = SdpType(engine.SdpTypeOffer)
	SdpTypeAnswer SdpType = SdpType(engine.SdpTypeAnswer)
)

func (t SdpType) String() string { return engine.SdpType(t).String() }

// SessionDescription is an SDP blob together with its type.
type SessionDescription struct {
	Type SdpType
	Sdp  string
}

// IceCandidate is one trickled ICE candidate.
type IceCandidate struct {
	Candidate     string
	SdpMid        string
	SdpMLineIndex int
}

// IceConnectionState mirrors the engine's ICE connection states.
type IceConnectionState int

const (
	IceConnectionStateNew          = IceConnectionState(engine.IceStateNew)
	IceConnectionStateChecking     = IceConnectionState(engine.IceStateChecking)
	IceConnectionStateConnected    = IceConnectionState(engine.IceStateConnected)
	IceConnectionStateCompleted    = IceConnectionState(engine.IceStateCompleted)
	IceConnectionStateDisconnected = IceConnectionState(engine.IceStateDisconnected)
	IceConnectionStateFailed       = IceConnectionState(engine.IceStateFailed)
	IceConnectionStateClosed       = IceConnectionState(engine.IceStateClosed)
)

func (s IceConnectionState) String() string { return engine.IceState(s).String() }

// IceGatheringState mirrors the engine's ICE gathering states.
type IceGatheringState int

const (
	IceGatheringStateNew       = IceGatheringState(engine.IceGatheringStateNew)
	IceGatheringStateGathering = IceGatheringState(engine.IceGatheringStateGathering)
	IceGatheringStateComplete  = IceGatheringState(engine.IceGatheringStateComplete)
)

func (s IceGatheringState) String() string { return engine.IceGatheringState(s).String() }

// DataChannelState mirrors the engine's data channel ready states.
type DataChannelState int

const (
	DataChannelConnecting = DataChannelState(engine.DataChannelStateConnecting)
	DataChannelOpen       = DataChannelState(engine.DataChannelStateOpen)
	DataChannelClosing    = DataChannelState(engine.DataChannelStateClosing)
	DataChannelClosed     = DataChannelState(engine.DataChannelStateClosed)
)

func (s DataChannelState) String() string { return engine.DataChannelState(s).String() }

// MediaKind tags media objects as audio or video.
type MediaKind int

const (
	MediaKindAudio = MediaKind(engine.MediaKindAudio)
	MediaKindVideo = MediaKind(engine.MediaKindVideo)
)

func (k MediaKind) String() string { return engine.MediaKind(k).String() }

// Direction is a transceiver's desired media direction.
type Direction int

const (
	DirectionSendRecv = Direction(engine.DirectionSendRecv)
	DirectionSendOnly = Direction(engine.DirectionSendOnly)
	DirectionRecvOnly = Direction(engine.DirectionRecvOnly)
	DirectionInactive = Direction(engine.DirectionInactive)
)

func (d Direction) String() string { return engine.Direction(d).String() }
