package pc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/nativertc/internal/engine"
	"github.com/thesyncim/nativertc/internal/engine/enginetest"
	"github.com/thesyncim/nativertc/internal/interop"
)

func newTestPC(t *testing.T, eng *enginetest.Engine) *PeerConnection {
	t.Helper()
	p := NewPeerConnection(withEngine(eng))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func initPC(t *testing.T, eng *enginetest.Engine) *PeerConnection {
	t.Helper()
	p := newTestPC(t, eng)
	require.NoError(t, p.Initialize(context.Background(), DefaultConfiguration()))
	return p
}

func TestInitializeMemoized(t *testing.T) {
	eng := enginetest.New()
	eng.Latency = 20 * time.Millisecond
	p := newTestPC(t, eng)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.Initialize(context.Background(), Configuration{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, 1, eng.CallCount("CreatePeerConnection"), "creation must run once")
	assert.Equal(t, StateInitialized, p.State())

	// A later call is a no-op.
	require.NoError(t, p.Initialize(context.Background(), Configuration{}))
	assert.Equal(t, 1, eng.CallCount("CreatePeerConnection"))
}

func TestInitializeCanceled(t *testing.T) {
	eng := enginetest.New()
	eng.Latency = 50 * time.Millisecond
	p := newTestPC(t, eng)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Initialize(ctx, Configuration{})
	require.ErrorIs(t, err, ErrOperationCanceled)

	// The in-flight creation finishes later and the fresh handle goes
	// straight back to the engine.
	require.Eventually(t, func() bool {
		return eng.LiveHandleCount() == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateUninitialized, p.State())

	// A fresh attempt after the canceled one succeeds.
	require.NoError(t, p.Initialize(context.Background(), Configuration{}))
	assert.Equal(t, StateInitialized, p.State())
}

func TestInitializeFailure(t *testing.T) {
	eng := enginetest.New()
	eng.CreateErr = context.DeadlineExceeded
	p := newTestPC(t, eng)

	err := p.Initialize(context.Background(), Configuration{})
	require.ErrorIs(t, err, ErrNativeOperationFailed)
	assert.Equal(t, StateUninitialized, p.State())
}

func TestCloseIdempotent(t *testing.T) {
	eng := enginetest.New()
	p := initPC(t, eng)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.Equal(t, 1, eng.CallCount("UnregisterPeerConnectionCallbacks"))
	assert.Equal(t, 1, eng.CallCount("ClosePeerConnection"))
	assert.Equal(t, 1, eng.CallCount("ReleasePeerConnection"))
	assert.Equal(t, StateUninitialized, p.State())
	assert.Equal(t, 0, eng.LiveHandleCount())
}

func TestCloseWithoutInitialize(t *testing.T) {
	eng := enginetest.New()
	p := newTestPC(t, eng)

	require.NoError(t, p.Close())
	assert.Equal(t, 0, eng.CallCount("ClosePeerConnection"))
	assert.Equal(t, 0, eng.CallCount("ReleasePeerConnection"))
}

func TestCloseDuringInitialize(t *testing.T) {
	eng := enginetest.New()
	eng.Latency = 50 * time.Millisecond
	p := newTestPC(t, eng)

	var initErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		initErr = p.Initialize(context.Background(), Configuration{})
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, p.Close())
	wg.Wait()

	require.ErrorIs(t, initErr, ErrOperationCanceled)
	assert.Equal(t, StateUninitialized, p.State())
	assert.Eventually(t, func() bool { return eng.LiveHandleCount() == 0 },
		time.Second, 5*time.Millisecond)
}

// gatedEngine blocks inside selected calls until a gate opens and records
// the order of peer lifecycle calls.
type gatedEngine struct {
	*enginetest.Engine

	registerGate    chan struct{}
	registerEntered chan struct{}
	offerGate       chan struct{}
	offerEntered    chan struct{}

	mu    sync.Mutex
	order []string
}

func (e *gatedEngine) record(name string) {
	e.mu.Lock()
	e.order = append(e.order, name)
	e.mu.Unlock()
}

func (e *gatedEngine) lifecycleOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

func (e *gatedEngine) RegisterPeerConnectionCallbacks(h uintptr, ref interop.Ref) {
	if e.registerEntered != nil {
		close(e.registerEntered)
		<-e.registerGate
	}
	e.record("register")
	e.Engine.RegisterPeerConnectionCallbacks(h, ref)
}

func (e *gatedEngine) UnregisterPeerConnectionCallbacks(h uintptr) {
	e.record("unregister")
	e.Engine.UnregisterPeerConnectionCallbacks(h)
}

func (e *gatedEngine) CreateOffer(h uintptr) error {
	if e.offerEntered != nil {
		close(e.offerEntered)
		<-e.offerGate
	}
	e.record("createOffer")
	return e.Engine.CreateOffer(h)
}

func (e *gatedEngine) ReleasePeerConnection(h uintptr) {
	e.record("release")
	e.Engine.ReleasePeerConnection(h)
}

func TestCloseWaitsForCallbackRegistration(t *testing.T) {
	eng := &gatedEngine{
		Engine:          enginetest.New(),
		registerGate:    make(chan struct{}),
		registerEntered: make(chan struct{}),
	}
	p := NewPeerConnection(withEngine(eng))

	initDone := make(chan error, 1)
	go func() { initDone <- p.Initialize(context.Background(), Configuration{}) }()
	<-eng.registerEntered

	closeDone := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closeDone)
	}()

	// With registration parked, Close must not run its teardown yet.
	select {
	case <-closeDone:
		t.Fatal("Close finished while callback registration was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(eng.registerGate)
	<-closeDone
	require.NoError(t, <-initDone)

	assert.Equal(t, []string{"register", "unregister", "release"}, eng.lifecycleOrder())
	assert.Equal(t, 0, eng.LiveHandleCount())
}

func TestCloseDuringOfferDefersHandleRelease(t *testing.T) {
	eng := &gatedEngine{
		Engine:       enginetest.New(),
		offerGate:    make(chan struct{}),
		offerEntered: make(chan struct{}),
	}
	p := NewPeerConnection(withEngine(eng))
	require.NoError(t, p.Initialize(context.Background(), Configuration{}))

	offerDone := make(chan error, 1)
	go func() { offerDone <- p.CreateOffer() }()
	<-eng.offerEntered

	require.NoError(t, p.Close())

	// Close finished, but the native reference stays alive until the
	// in-flight call returns.
	assert.NotContains(t, eng.lifecycleOrder(), "release")

	close(eng.offerGate)
	<-offerDone
	assert.Equal(t, []string{"register", "unregister", "createOffer", "release"}, eng.lifecycleOrder())
	assert.Equal(t, 0, eng.LiveHandleCount())
}

func TestLateLocalDescriptionAfterCloseIsDropped(t *testing.T) {
	eng := enginetest.New()
	p := initPC(t, eng)

	calls := 0
	unsub := p.OnLocalDescription(func(SessionDescription) { calls++ })
	defer unsub()

	require.NoError(t, p.Close())

	// One in-flight delivery per callback kind may still land after
	// teardown; it must leave no trace on the wrapper.
	ev := &peerEvents{pc: p}
	ev.OnLocalDescriptionReady(engine.SdpTypeOffer, "v=0\r\n")

	assert.Zero(t, calls)
	assert.Nil(t, p.LocalDescription())
}

func TestInitializeAfterClose(t *testing.T) {
	eng := enginetest.New()
	p := newTestPC(t, eng)
	require.NoError(t, p.Close())

	err := p.Initialize(context.Background(), Configuration{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestOperationsBeforeInitialize(t *testing.T) {
	eng := enginetest.New()
	p := newTestPC(t, eng)

	assert.ErrorIs(t, p.CreateOffer(), ErrNotInitialized)
	assert.ErrorIs(t, p.CreateAnswer(), ErrNotInitialized)
	assert.ErrorIs(t, p.SetRemoteDescription(context.Background(),
		SessionDescription{Type: SdpTypeOffer, Sdp: "v=0"}), ErrNotInitialized)
	assert.ErrorIs(t, p.AddIceCandidate(IceCandidate{Candidate: "candidate:1"}), ErrNotInitialized)

	_, err := p.AddDataChannel(-1, "chat", true, true)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = p.AddTransceiver(MediaKindVideo, DirectionSendRecv, "")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = p.NewVideoSource()
	assert.ErrorIs(t, err, ErrNotInitialized)

	// Nothing may have reached the engine.
	assert.Equal(t, 0, eng.CallCount("CreateOffer"))
	assert.Equal(t, 0, eng.CallCount("SetRemoteDescription"))
	assert.Equal(t, 0, eng.CallCount("AddDataChannel"))
	assert.Equal(t, 0, eng.CallCount("AddTransceiver"))
}

func TestOperationsAfterClose(t *testing.T) {
	eng := enginetest.New()
	p := initPC(t, eng)
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.CreateOffer(), ErrClosed)
	_, err := p.AddDataChannel(-1, "chat", true, true)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestArgumentValidation(t *testing.T) {
	eng := enginetest.New()
	p := initPC(t, eng)

	assert.ErrorIs(t, p.AddIceCandidate(IceCandidate{}), ErrInvalidArgument)
	assert.ErrorIs(t, p.SetRemoteDescription(context.Background(), SessionDescription{}), ErrInvalidArgument)

	_, err := p.AddDataChannel(65536, "too-big", true, true)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = p.AddDataChannel(-2, "negative", true, true)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLocalDescriptionEvent(t *testing.T) {
	eng := enginetest.New()
	p := initPC(t, eng)

	var got SessionDescription
	unsub := p.OnLocalDescription(func(d SessionDescription) { got = d })
	defer unsub()

	require.NoError(t, p.CreateOffer())
	assert.Equal(t, SdpTypeOffer, got.Type)
	assert.NotEmpty(t, got.Sdp)

	ld := p.LocalDescription()
	require.NotNil(t, ld)
	assert.Equal(t, got, *ld)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	eng := enginetest.New()
	p := initPC(t, eng)

	calls := 0
	unsub := p.OnLocalDescription(func(SessionDescription) { calls++ })

	require.NoError(t, p.CreateOffer())
	assert.Equal(t, 1, calls)

	unsub()
	require.NoError(t, p.CreateOffer())
	assert.Equal(t, 1, calls)
}
