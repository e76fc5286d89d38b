package pc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/nativertc/internal/engine/enginetest"
)

// connectPair drives a full offer/answer exchange between two connections
// on the same fake engine, relaying descriptions the way a signaling
// channel would.
func connectPair(t *testing.T, eng *enginetest.Engine) (*PeerConnection, *PeerConnection) {
	t.Helper()
	ctx := context.Background()

	a := initPC(t, eng)
	b := initPC(t, eng)

	unsubA := a.OnLocalDescription(func(d SessionDescription) {
		require.NoError(t, b.SetRemoteDescription(ctx, d))
		if d.Type == SdpTypeOffer {
			require.NoError(t, b.CreateAnswer())
		}
	})
	t.Cleanup(unsubA)

	unsubB := b.OnLocalDescription(func(d SessionDescription) {
		require.NoError(t, a.SetRemoteDescription(ctx, d))
	})
	t.Cleanup(unsubB)

	require.NoError(t, a.CreateOffer())
	return a, b
}

func TestHandshakeConnectsBothSides(t *testing.T) {
	eng := enginetest.New()

	var aConnected, bConnected bool
	a := initPC(t, eng)
	b := initPC(t, eng)
	a.OnConnected(func() { aConnected = true })
	b.OnConnected(func() { bConnected = true })

	ctx := context.Background()
	a.OnLocalDescription(func(d SessionDescription) {
		require.NoError(t, b.SetRemoteDescription(ctx, d))
		if d.Type == SdpTypeOffer {
			require.NoError(t, b.CreateAnswer())
		}
	})
	b.OnLocalDescription(func(d SessionDescription) {
		require.NoError(t, a.SetRemoteDescription(ctx, d))
	})

	require.NoError(t, a.CreateOffer())

	assert.True(t, a.IsConnected(), "offerer must be connected")
	assert.True(t, b.IsConnected(), "answerer must be connected")
	assert.True(t, aConnected)
	assert.True(t, bConnected)

	require.NotNil(t, a.RemoteDescription())
	assert.Equal(t, SdpTypeAnswer, a.RemoteDescription().Type)
	require.NotNil(t, b.RemoteDescription())
	assert.Equal(t, SdpTypeOffer, b.RemoteDescription().Type)
}

func TestIceCandidateRelay(t *testing.T) {
	eng := enginetest.New()
	a, b := connectPair(t, eng)

	// Relay candidates surfaced by a into b.
	relayed := 0
	a.OnIceCandidate(func(c IceCandidate) {
		require.NoError(t, b.AddIceCandidate(c))
		relayed++
	})

	h := handleOf(t, a)
	require.True(t, eng.EmitIceCandidate(h, "candidate:1 1 udp 2122260223 192.0.2.1 54321 typ host", "0", 0))
	require.True(t, eng.EmitIceCandidate(h, "candidate:2 1 udp 1686052607 198.51.100.1 54322 typ srflx", "0", 0))

	assert.Equal(t, 2, relayed)
	assert.Equal(t, 2, eng.CallCount("AddIceCandidate"))
}

// handleOf digs out the live native handle for use with the fake engine's
// event injectors.
func handleOf(t *testing.T, p *PeerConnection) uintptr {
	t.Helper()
	h, err := p.liveHandle()
	require.NoError(t, err)
	return h
}

func TestLateCallbacksAfterCloseAreDropped(t *testing.T) {
	eng := enginetest.New()
	p := initPC(t, eng)
	h := handleOf(t, p)

	fired := false
	p.OnIceStateChange(func(IceConnectionState) { fired = true })

	require.NoError(t, p.Close())

	// The fake engine still knows nothing was registered; a late event
	// must not reach the handler or panic.
	assert.False(t, eng.EmitIceState(h, 2))
	assert.False(t, fired)
}

func TestDataChannelAfterNegotiationWithoutChannels(t *testing.T) {
	eng := enginetest.New()
	p := initPC(t, eng)

	// Negotiation starts with no data channel, so no SCTP session will
	// exist on this connection.
	require.NoError(t, p.CreateOffer())

	_, err := p.AddDataChannel(-1, "late", true, true)
	require.ErrorIs(t, err, ErrSctpNotNegotiated)
	assert.Equal(t, 0, eng.CallCount("AddDataChannel"))
}

func TestDataChannelBeforeNegotiationSurvivesOffer(t *testing.T) {
	eng := enginetest.New()
	p := initPC(t, eng)

	dc, err := p.AddDataChannel(5, "chat", true, true)
	require.NoError(t, err)
	assert.Equal(t, 5, dc.ID())
	assert.Equal(t, "chat", dc.Label())

	// With a channel present, the offer negotiates SCTP and more channels
	// stay allowed.
	require.NoError(t, p.CreateOffer())
	_, err = p.AddDataChannel(6, "chat2", true, true)
	require.NoError(t, err)
}

func TestInBandRemoteChannelRestoresSctp(t *testing.T) {
	eng := enginetest.New()
	p := initPC(t, eng)

	require.NoError(t, p.CreateOffer())
	_, err := p.AddDataChannel(-1, "nope", true, true)
	require.ErrorIs(t, err, ErrSctpNotNegotiated)

	var announced *DataChannel
	p.OnDataChannel(func(dc *DataChannel) { announced = dc })

	_, ok := eng.EmitRemoteDataChannel(handleOf(t, p), 7, "remote-chat")
	require.True(t, ok)
	require.NotNil(t, announced)
	assert.Equal(t, 7, announced.ID())
	assert.Equal(t, "remote-chat", announced.Label())

	// The in-band channel proves SCTP is up after all.
	_, err = p.AddDataChannel(-1, "now-fine", true, true)
	require.NoError(t, err)
}

func TestDataChannelSendAndEvents(t *testing.T) {
	eng := enginetest.New()
	p := initPC(t, eng)

	dc, err := p.AddDataChannel(-1, "chat", true, true)
	require.NoError(t, err)

	var states []DataChannelState
	dc.OnStateChange(func(s DataChannelState) { states = append(states, s) })
	var msgs []Message
	dc.OnMessage(func(m Message) { msgs = append(msgs, m) })

	dcHandle := dcHandleOf(t, dc)
	require.True(t, eng.EmitDataChannelState(dcHandle, 1))
	assert.Equal(t, []DataChannelState{DataChannelOpen}, states)
	assert.Equal(t, DataChannelOpen, dc.State())

	require.True(t, eng.EmitDataChannelMessage(dcHandle, []byte("hello"), false))
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("hello"), msgs[0].Data)
	assert.False(t, msgs[0].Binary)

	require.NoError(t, dc.Send([]byte("pong"), true))
	sent := eng.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, []byte("pong"), sent[0])

	assert.ErrorIs(t, dc.Send(nil, true), ErrInvalidArgument)

	require.NoError(t, dc.Close())
	assert.ErrorIs(t, dc.Send([]byte("x"), true), ErrClosed)
	assert.Equal(t, DataChannelClosed, dc.State())
}

func dcHandleOf(t *testing.T, dc *DataChannel) uintptr {
	t.Helper()
	raw, err := dc.handle.Raw()
	require.NoError(t, err)
	return raw
}

func TestCloseTearsDownEverything(t *testing.T) {
	eng := enginetest.New()
	p := initPC(t, eng)

	src, err := p.NewVideoSource()
	require.NoError(t, err)
	lt, err := p.NewLocalTrack(src, "cam")
	require.NoError(t, err)
	tr, err := p.AddTransceiver(MediaKindVideo, DirectionSendOnly, "")
	require.NoError(t, err)
	require.NoError(t, tr.SetLocalTrack(lt))
	_, err = p.AddDataChannel(-1, "chat", true, true)
	require.NoError(t, err)

	require.NoError(t, p.Close())

	assert.Equal(t, 0, eng.LiveHandleCount(), "every engine handle must be released")
	assert.Equal(t, 1, eng.CallCount("UnregisterDataChannelCallbacks"))
	assert.Equal(t, 1, eng.CallCount("ReleaseTransceiver"))
	assert.Equal(t, 1, eng.CallCount("ReleaseTrack"))
	assert.Equal(t, 1, eng.CallCount("ReleaseTrackSource"))
	assert.False(t, p.IsConnected())
}
