package pc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/thesyncim/nativertc/internal/engine"
	"github.com/thesyncim/nativertc/internal/interop"
	"github.com/thesyncim/nativertc/pkg/frame"
)

// RemoteTrack is a receiving track announced by the engine after
// negotiation. Video tracks deliver frames into an attached
// frame.VideoFrameQueue; audio tracks deliver through a callback.
type RemoteTrack struct {
	pc          *PeerConnection
	handle      *interop.Handle
	transceiver uintptr
	kind        MediaKind

	removed atomic.Bool

	mu      sync.Mutex
	sinkRef interop.Ref
	hasSink bool
}

func newRemoteTrack(p *PeerConnection, track, transceiver uintptr, kind MediaKind) *RemoteTrack {
	return &RemoteTrack{
		pc:          p,
		handle:      interop.BindHandle(track, p.eng.ReleaseTrack),
		transceiver: transceiver,
		kind:        kind,
	}
}

// Kind returns the track's media kind.
func (t *RemoteTrack) Kind() MediaKind { return t.kind }

// Removed reports whether the engine has withdrawn the track.
func (t *RemoteTrack) Removed() bool { return t.removed.Load() }

// AttachVideoQueue starts delivering decoded frames into the queue. The
// engine's delivery thread enqueues; the application dequeues at its own
// pace and overflow frames are dropped by the queue.
func (t *RemoteTrack) AttachVideoQueue(q *frame.VideoFrameQueue) error {
	if t.kind != MediaKindVideo {
		return fmt.Errorf("%w: video queue on %s track", ErrInvalidArgument, t.kind)
	}
	if q == nil {
		return fmt.Errorf("%w: nil queue", ErrInvalidArgument)
	}
	raw, unpin, err := t.handle.Acquire()
	if err != nil {
		return err
	}
	defer unpin()

	t.mu.Lock()
	if t.hasSink {
		t.mu.Unlock()
		return fmt.Errorf("%w: sink already attached", ErrInvalidArgument)
	}
	ref := interop.MintRef(&videoSinkAdapter{queue: q})
	t.sinkRef = ref
	t.hasSink = true
	t.mu.Unlock()

	t.pc.eng.RegisterVideoSink(raw, ref)
	return nil
}

// AttachAudioCallback starts delivering decoded samples to fn. The frame
// passed to fn is owned by the callee.
func (t *RemoteTrack) AttachAudioCallback(fn func(*frame.AudioFrame)) error {
	if t.kind != MediaKindAudio {
		return fmt.Errorf("%w: audio callback on %s track", ErrInvalidArgument, t.kind)
	}
	if fn == nil {
		return fmt.Errorf("%w: nil callback", ErrInvalidArgument)
	}
	raw, unpin, err := t.handle.Acquire()
	if err != nil {
		return err
	}
	defer unpin()

	t.mu.Lock()
	if t.hasSink {
		t.mu.Unlock()
		return fmt.Errorf("%w: sink already attached", ErrInvalidArgument)
	}
	ref := interop.MintRef(&audioSinkAdapter{fn: fn})
	t.sinkRef = ref
	t.hasSink = true
	t.mu.Unlock()

	t.pc.eng.RegisterAudioSink(raw, ref)
	return nil
}

// DetachSink stops delivery and releases the sink token. Idempotent.
func (t *RemoteTrack) DetachSink() {
	t.mu.Lock()
	if !t.hasSink {
		t.mu.Unlock()
		return
	}
	ref := t.sinkRef
	t.hasSink = false
	t.mu.Unlock()

	if raw, unpin, err := t.handle.Acquire(); err == nil {
		switch t.kind {
		case MediaKindVideo:
			t.pc.eng.UnregisterVideoSink(raw)
		case MediaKindAudio:
			t.pc.eng.UnregisterAudioSink(raw)
		}
		unpin()
	}
	interop.ReleaseRef(ref)
}

func (t *RemoteTrack) teardown() {
	if !t.removed.CompareAndSwap(false, true) {
		return
	}
	t.DetachSink()
	t.handle.Release()
}

// videoSinkAdapter copies engine frames into the queue before the delivery
// call returns, since the view's planes alias engine memory.
type videoSinkAdapter struct {
	queue *frame.VideoFrameQueue
}

var _ engine.VideoSink = (*videoSinkAdapter)(nil)

func (a *videoSinkAdapter) OnVideoFrame(v engine.VideoFrameView) {
	f := &frame.VideoFrame{
		Width:       int(v.Width),
		Height:      int(v.Height),
		Format:      frame.PixelFormatI420,
		Planes:      [][]byte{v.YPlane, v.UPlane, v.VPlane},
		Stride:      []int{int(v.YStride), int(v.UStride), int(v.VStride)},
		TimestampUs: v.TimestampUs,
	}
	// A false return is a deliberate drop; a validation error means the
	// engine delivered garbage, which is likewise dropped.
	_, _ = a.queue.Enqueue(f)
}

// audioSinkAdapter copies engine samples before handing them on.
type audioSinkAdapter struct {
	fn func(*frame.AudioFrame)
}

var _ engine.AudioSink = (*audioSinkAdapter)(nil)

func (a *audioSinkAdapter) OnAudioFrame(v engine.AudioFrameView) {
	if v.Channels <= 0 {
		return
	}
	f := &frame.AudioFrame{
		SampleRate:  int(v.SampleRate),
		Channels:    int(v.Channels),
		NumSamples:  len(v.Samples) / int(v.Channels),
		TimestampUs: v.TimestampUs,
		Samples:     make([]int16, len(v.Samples)),
	}
	copy(f.Samples, v.Samples)
	a.fn(f)
}
