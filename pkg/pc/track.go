package pc

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/thesyncim/nativertc/internal/engine"
	"github.com/thesyncim/nativertc/internal/interop"
	"github.com/thesyncim/nativertc/pkg/frame"
)

// TrackSource is an application-fed media source. Frames pushed into it
// reach every local track created from it.
type TrackSource struct {
	pc     *PeerConnection
	handle *interop.Handle
	kind   MediaKind

	// Guarded by pc.mu together with LocalTrack.source, so a track is in
	// this slice exactly while its source field points here.
	tracks []*LocalTrack
}

// NewVideoSource creates an external video source fed via PushVideoFrame.
func (p *PeerConnection) NewVideoSource() (*TrackSource, error) {
	return p.newSource(MediaKindVideo)
}

// NewAudioSource creates an external audio source fed via PushAudioFrame.
func (p *PeerConnection) NewAudioSource() (*TrackSource, error) {
	return p.newSource(MediaKindAudio)
}

func (p *PeerConnection) newSource(kind MediaKind) (*TrackSource, error) {
	p.mu.Lock()
	if _, err := p.liveHandleLocked(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	eng := p.eng
	p.mu.Unlock()

	raw, err := eng.CreateTrackSource(engine.MediaKind(kind))
	if err != nil {
		return nil, mapEngineErr(err)
	}

	src := &TrackSource{
		pc:     p,
		handle: interop.BindHandle(raw, eng.ReleaseTrackSource),
		kind:   kind,
	}
	p.mu.Lock()
	p.sources = append(p.sources, src)
	p.mu.Unlock()
	return src, nil
}

// Kind returns the source's media kind.
func (s *TrackSource) Kind() MediaKind { return s.kind }

// Tracks returns the local tracks currently fed by this source.
func (s *TrackSource) Tracks() []*LocalTrack {
	s.pc.mu.Lock()
	defer s.pc.mu.Unlock()
	out := make([]*LocalTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *TrackSource) dropTrackLocked(lt *LocalTrack) {
	for i, cur := range s.tracks {
		if cur == lt {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return
		}
	}
}

// PushVideoFrame hands one I420 frame to the engine. The frame's planes are
// only read for the duration of the call.
func (s *TrackSource) PushVideoFrame(f *frame.VideoFrame) error {
	if s.kind != MediaKindVideo {
		return fmt.Errorf("%w: video frame on %s source", ErrInvalidArgument, s.kind)
	}
	if f.Format != frame.PixelFormatI420 {
		return fmt.Errorf("%w: source expects I420, got %s", ErrInvalidArgument, f.Format)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	raw, unpin, err := s.handle.Acquire()
	if err != nil {
		return err
	}
	defer unpin()

	view := engine.VideoFrameView{
		Width:       int32(f.Width),
		Height:      int32(f.Height),
		YPlane:      f.Planes[0],
		UPlane:      f.Planes[1],
		VPlane:      f.Planes[2],
		YStride:     int32(f.Stride[0]),
		UStride:     int32(f.Stride[1]),
		VStride:     int32(f.Stride[2]),
		TimestampUs: f.TimestampUs,
	}
	return mapEngineErr(s.pc.eng.PushVideoFrame(raw, &view))
}

// PushAudioFrame hands one block of PCM samples to the engine.
func (s *TrackSource) PushAudioFrame(f *frame.AudioFrame) error {
	if s.kind != MediaKindAudio {
		return fmt.Errorf("%w: audio frame on %s source", ErrInvalidArgument, s.kind)
	}
	if f.SampleRate <= 0 || f.Channels <= 0 || len(f.Samples) == 0 {
		return fmt.Errorf("%w: empty audio frame", ErrInvalidArgument)
	}
	raw, unpin, err := s.handle.Acquire()
	if err != nil {
		return err
	}
	defer unpin()

	view := engine.AudioFrameView{
		Samples:     f.Samples,
		SampleRate:  int32(f.SampleRate),
		Channels:    int32(f.Channels),
		TimestampUs: f.TimestampUs,
	}
	return mapEngineErr(s.pc.eng.PushAudioFrame(raw, &view))
}

// Release detaches and releases every track fed by the source, then gives
// the source's engine reference back. Idempotent.
func (s *TrackSource) Release() {
	s.pc.mu.Lock()
	tracks := s.tracks
	s.tracks = nil
	for _, lt := range tracks {
		lt.source = nil
	}
	s.pc.mu.Unlock()

	for _, lt := range tracks {
		lt.Release()
	}
	s.handle.Release()
}

// LocalTrack is a sending track backed by a TrackSource. It belongs to the
// peer connection that created it and can only be attached to transceivers
// of that connection.
type LocalTrack struct {
	pc     *PeerConnection
	handle *interop.Handle
	kind   MediaKind
	name   string

	// Guarded by pc.mu, see Transceiver.SetLocalTrack and
	// TrackSource.tracks.
	attached *Transceiver
	source   *TrackSource

	enabled bool
}

// NewLocalTrack creates a sending track from the source. An empty name gets
// a generated one.
func (p *PeerConnection) NewLocalTrack(src *TrackSource, name string) (*LocalTrack, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrInvalidArgument)
	}
	srcRaw, unpin, err := src.handle.Acquire()
	if err != nil {
		return nil, err
	}
	defer unpin()
	if name == "" {
		name = fmt.Sprintf("%s-track-%s", src.kind, uuid.NewString())
	}

	raw, err := p.eng.CreateLocalTrack(srcRaw, engine.MediaKind(src.kind), name)
	if err != nil {
		return nil, mapEngineErr(err)
	}

	lt := &LocalTrack{
		pc:      p,
		source:  src,
		handle:  interop.BindHandle(raw, p.eng.ReleaseTrack),
		kind:    src.kind,
		name:    name,
		enabled: true,
	}
	p.mu.Lock()
	p.localTracks = append(p.localTracks, lt)
	src.tracks = append(src.tracks, lt)
	p.mu.Unlock()
	return lt, nil
}

// Kind returns the track's media kind.
func (t *LocalTrack) Kind() MediaKind { return t.kind }

// Name returns the track name.
func (t *LocalTrack) Name() string { return t.name }

// Transceiver returns the transceiver the track is attached to, or nil.
func (t *LocalTrack) Transceiver() *Transceiver {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.attached
}

// Source returns the source feeding the track, or nil after release.
func (t *LocalTrack) Source() *TrackSource {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.source
}

// Enabled reports whether the track is producing media.
func (t *LocalTrack) Enabled() bool {
	t.pc.mu.Lock()
	defer t.pc.mu.Unlock()
	return t.enabled
}

// SetEnabled mutes (false) or unmutes (true) the track.
func (t *LocalTrack) SetEnabled(enabled bool) error {
	raw, unpin, err := t.handle.Acquire()
	if err != nil {
		return err
	}
	defer unpin()
	if err := mapEngineErr(t.pc.eng.SetTrackEnabled(raw, enabled)); err != nil {
		return err
	}
	t.pc.mu.Lock()
	t.enabled = enabled
	t.pc.mu.Unlock()
	return nil
}

// Release detaches the track from its transceiver and source and gives its
// engine reference back. Idempotent.
func (t *LocalTrack) Release() {
	p := t.pc
	p.mu.Lock()
	tr := t.attached
	if tr != nil {
		tr.localTrack = nil
		t.attached = nil
	}
	if t.source != nil {
		t.source.dropTrackLocked(t)
		t.source = nil
	}
	p.mu.Unlock()

	if tr != nil {
		// The engine must stop sending from this track before its only
		// owned reference goes away.
		if traw, unpin, err := tr.handle.Acquire(); err == nil {
			_ = p.eng.SetTransceiverTrack(traw, 0)
			unpin()
		}
	}
	t.handle.Release()
}
