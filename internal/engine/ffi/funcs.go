package ffi

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// Function variables bound to engine symbols by registerFunctions. Handles
// are opaque uintptrs; status returns follow the NrtcStatus codes mapped by
// engine.StatusError.
var (
	engineVersion    func() uintptr
	engineFreeBuffer func(ptr uintptr)

	// Peer connection lifetime.
	enginePeerConnectionCreate  func(cfg uintptr, out uintptr) int32
	enginePeerConnectionClose   func(h uintptr)
	enginePeerConnectionDestroy func(h uintptr)

	// Callback setters. Passing cb=0 ctx=0 unregisters.
	enginePCSetLocalDescriptionCallback   func(h, cb, ctx uintptr)
	enginePCSetIceCandidateCallback       func(h, cb, ctx uintptr)
	enginePCSetIceStateCallback           func(h, cb, ctx uintptr)
	enginePCSetIceGatheringStateCallback  func(h, cb, ctx uintptr)
	enginePCSetConnectedCallback          func(h, cb, ctx uintptr)
	enginePCSetRenegotiationCallback      func(h, cb, ctx uintptr)
	enginePCSetTrackAddedCallback         func(h, cb, ctx uintptr)
	enginePCSetTrackRemovedCallback       func(h, cb, ctx uintptr)
	enginePCSetDataChannelAddedCallback   func(h, cb, ctx uintptr)
	enginePCSetDataChannelRemovedCallback func(h, cb, ctx uintptr)

	// Negotiation.
	enginePeerConnectionCreateOffer          func(h uintptr) int32
	enginePeerConnectionCreateAnswer         func(h uintptr) int32
	enginePeerConnectionSetRemoteDescription func(h uintptr, sdpType int32, sdp uintptr, cb, ctx uintptr) int32
	enginePeerConnectionAddIceCandidate      func(h uintptr, sdpMid uintptr, sdpMLineIndex int32, candidate uintptr) int32

	// Transceivers.
	enginePeerConnectionAddTransceiver func(h uintptr, kind, dir int32, name uintptr, out uintptr) int32
	engineTransceiverSetDirection      func(tr uintptr, dir int32) int32
	engineTransceiverSetTrack          func(tr, track uintptr) int32
	engineTransceiverDestroy           func(tr uintptr)

	// Track sources and local tracks.
	engineTrackSourceCreate         func(kind int32, out uintptr) int32
	engineTrackSourcePushVideoFrame func(src uintptr, frame uintptr) int32
	engineTrackSourcePushAudioFrame func(src uintptr, frame uintptr) int32
	engineTrackSourceDestroy        func(src uintptr)
	engineLocalTrackCreate          func(src uintptr, kind int32, name uintptr, out uintptr) int32
	engineTrackSetEnabled           func(track uintptr, enabled int32) int32
	engineTrackDestroy              func(track uintptr)

	// Remote track sinks. Passing cb=0 ctx=0 unregisters.
	engineTrackSetVideoSink func(track, cb, ctx uintptr)
	engineTrackSetAudioSink func(track, cb, ctx uintptr)

	// Data channels.
	engineDataChannelAdd          func(h uintptr, id int32, label uintptr, ordered, reliable int32, out uintptr) int32
	engineDataChannelSetCallbacks func(dc, msgCb, stateCb, ctx uintptr)
	engineDataChannelSend         func(dc uintptr, data uintptr, size int32, binary int32) int32
	engineDataChannelRemove       func(h, dc uintptr) int32
	engineDataChannelDestroy      func(dc uintptr)
)

// registerFunctions resolves and binds every engine symbol. Called once by
// LoadLibrary with libMu held.
func registerFunctions() error {
	bindings := []struct {
		fn   any
		name string
	}{
		{&engineVersion, "nrtc_version"},
		{&engineFreeBuffer, "nrtc_free_buffer"},

		{&enginePeerConnectionCreate, "nrtc_peer_connection_create"},
		{&enginePeerConnectionClose, "nrtc_peer_connection_close"},
		{&enginePeerConnectionDestroy, "nrtc_peer_connection_destroy"},

		{&enginePCSetLocalDescriptionCallback, "nrtc_peer_connection_set_local_description_callback"},
		{&enginePCSetIceCandidateCallback, "nrtc_peer_connection_set_ice_candidate_callback"},
		{&enginePCSetIceStateCallback, "nrtc_peer_connection_set_ice_state_callback"},
		{&enginePCSetIceGatheringStateCallback, "nrtc_peer_connection_set_ice_gathering_state_callback"},
		{&enginePCSetConnectedCallback, "nrtc_peer_connection_set_connected_callback"},
		{&enginePCSetRenegotiationCallback, "nrtc_peer_connection_set_renegotiation_needed_callback"},
		{&enginePCSetTrackAddedCallback, "nrtc_peer_connection_set_track_added_callback"},
		{&enginePCSetTrackRemovedCallback, "nrtc_peer_connection_set_track_removed_callback"},
		{&enginePCSetDataChannelAddedCallback, "nrtc_peer_connection_set_data_channel_added_callback"},
		{&enginePCSetDataChannelRemovedCallback, "nrtc_peer_connection_set_data_channel_removed_callback"},

		{&enginePeerConnectionCreateOffer, "nrtc_peer_connection_create_offer"},
		{&enginePeerConnectionCreateAnswer, "nrtc_peer_connection_create_answer"},
		{&enginePeerConnectionSetRemoteDescription, "nrtc_peer_connection_set_remote_description"},
		{&enginePeerConnectionAddIceCandidate, "nrtc_peer_connection_add_ice_candidate"},

		{&enginePeerConnectionAddTransceiver, "nrtc_peer_connection_add_transceiver"},
		{&engineTransceiverSetDirection, "nrtc_transceiver_set_direction"},
		{&engineTransceiverSetTrack, "nrtc_transceiver_set_track"},
		{&engineTransceiverDestroy, "nrtc_transceiver_destroy"},

		{&engineTrackSourceCreate, "nrtc_track_source_create"},
		{&engineTrackSourcePushVideoFrame, "nrtc_track_source_push_video_frame"},
		{&engineTrackSourcePushAudioFrame, "nrtc_track_source_push_audio_frame"},
		{&engineTrackSourceDestroy, "nrtc_track_source_destroy"},
		{&engineLocalTrackCreate, "nrtc_local_track_create"},
		{&engineTrackSetEnabled, "nrtc_track_set_enabled"},
		{&engineTrackDestroy, "nrtc_track_destroy"},

		{&engineTrackSetVideoSink, "nrtc_track_set_video_sink"},
		{&engineTrackSetAudioSink, "nrtc_track_set_audio_sink"},

		{&engineDataChannelAdd, "nrtc_data_channel_add"},
		{&engineDataChannelSetCallbacks, "nrtc_data_channel_set_callbacks"},
		{&engineDataChannelSend, "nrtc_data_channel_send"},
		{&engineDataChannelRemove, "nrtc_data_channel_remove"},
		{&engineDataChannelDestroy, "nrtc_data_channel_destroy"},
	}

	for _, b := range bindings {
		sym, err := dlsymLibrary(libHandle, b.name)
		if err != nil {
			return fmt.Errorf("missing engine symbol %s: %w", b.name, err)
		}
		purego.RegisterFunc(b.fn, sym)
	}
	return nil
}
