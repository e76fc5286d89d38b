package ffi

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/thesyncim/nativertc/internal/engine"
	"github.com/thesyncim/nativertc/internal/interop"
)

// safeCallback wraps a callback invocation with panic recovery. Panics in
// application callbacks must not unwind through engine stack frames.
func safeCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("panic recovered in engine callback")
		}
	}()
	fn()
}

// resolvePC maps a callback context back to the registered event receiver.
// A stale context is normal: the engine may deliver one in-flight callback
// per kind after unregistration, and those are dropped here.
func resolvePC(ctx uintptr) (engine.PeerConnectionEvents, bool) {
	v, ok := interop.ResolveRef(interop.Ref(ctx))
	if !ok {
		return nil, false
	}
	ev, ok := v.(engine.PeerConnectionEvents)
	return ev, ok
}

func resolveDC(ctx uintptr) (engine.DataChannelEvents, bool) {
	v, ok := interop.ResolveRef(interop.Ref(ctx))
	if !ok {
		return nil, false
	}
	ev, ok := v.(engine.DataChannelEvents)
	return ev, ok
}

// Trampoline pointers created once by initCallbacks and kept alive for the
// life of the process.
var (
	callbacksOnce sync.Once

	pcLocalDescriptionCallbackPtr   uintptr
	pcIceCandidateCallbackPtr       uintptr
	pcIceStateCallbackPtr           uintptr
	pcIceGatheringCallbackPtr       uintptr
	pcConnectedCallbackPtr          uintptr
	pcRenegotiationCallbackPtr      uintptr
	pcTrackAddedCallbackPtr         uintptr
	pcTrackRemovedCallbackPtr       uintptr
	pcDataChannelAddedCallbackPtr   uintptr
	pcDataChannelRemovedCallbackPtr uintptr

	remoteDescriptionCallbackPtr uintptr

	dcMessageCallbackPtr uintptr
	dcStateCallbackPtr   uintptr

	videoSinkCallbackPtr uintptr
	audioSinkCallbackPtr uintptr
)

//go:nocheckptr
func initCallbacks() {
	callbacksOnce.Do(func() {
		// Signature: void(ctx, sdp_type, sdp)
		pcLocalDescriptionCallbackPtr = purego.NewCallback(func(ctx uintptr, sdpType int32, sdp uintptr) {
			ev, ok := resolvePC(ctx)
			if !ok {
				return
			}
			s := goStringAt(sdp)
			safeCallback(func() { ev.OnLocalDescriptionReady(engine.SdpType(sdpType), s) })
		})

		// Signature: void(ctx, candidate, sdp_mid, sdp_mline_index)
		pcIceCandidateCallbackPtr = purego.NewCallback(func(ctx, candidate, sdpMid uintptr, sdpMLineIndex int32) {
			ev, ok := resolvePC(ctx)
			if !ok {
				return
			}
			cand := goStringAt(candidate)
			mid := goStringAt(sdpMid)
			safeCallback(func() { ev.OnIceCandidateReady(cand, mid, int(sdpMLineIndex)) })
		})

		pcIceStateCallbackPtr = purego.NewCallback(func(ctx uintptr, state int32) {
			ev, ok := resolvePC(ctx)
			if !ok {
				return
			}
			safeCallback(func() { ev.OnIceStateChanged(engine.IceState(state)) })
		})

		pcIceGatheringCallbackPtr = purego.NewCallback(func(ctx uintptr, state int32) {
			ev, ok := resolvePC(ctx)
			if !ok {
				return
			}
			safeCallback(func() { ev.OnIceGatheringStateChanged(engine.IceGatheringState(state)) })
		})

		pcConnectedCallbackPtr = purego.NewCallback(func(ctx uintptr) {
			ev, ok := resolvePC(ctx)
			if !ok {
				return
			}
			safeCallback(ev.OnConnected)
		})

		pcRenegotiationCallbackPtr = purego.NewCallback(func(ctx uintptr) {
			ev, ok := resolvePC(ctx)
			if !ok {
				return
			}
			safeCallback(ev.OnRenegotiationNeeded)
		})

		// Signature: void(ctx, track, transceiver, kind)
		pcTrackAddedCallbackPtr = purego.NewCallback(func(ctx, track, transceiver uintptr, kind int32) {
			ev, ok := resolvePC(ctx)
			if !ok {
				return
			}
			safeCallback(func() { ev.OnTrackAdded(track, transceiver, engine.MediaKind(kind)) })
		})

		pcTrackRemovedCallbackPtr = purego.NewCallback(func(ctx, track, transceiver uintptr) {
			ev, ok := resolvePC(ctx)
			if !ok {
				return
			}
			safeCallback(func() { ev.OnTrackRemoved(track, transceiver) })
		})

		// Signature: void(ctx, dc, id, label)
		pcDataChannelAddedCallbackPtr = purego.NewCallback(func(ctx, dc uintptr, id int32, label uintptr) {
			ev, ok := resolvePC(ctx)
			if !ok {
				return
			}
			l := goStringAt(label)
			safeCallback(func() { ev.OnDataChannelAdded(dc, int(id), l) })
		})

		pcDataChannelRemovedCallbackPtr = purego.NewCallback(func(ctx, dc uintptr) {
			ev, ok := resolvePC(ctx)
			if !ok {
				return
			}
			safeCallback(func() { ev.OnDataChannelRemoved(dc) })
		})

		// One-shot completion of set-remote-description. The token is
		// released here after the single delivery.
		remoteDescriptionCallbackPtr = purego.NewCallback(func(ctx uintptr, status int32) {
			v, ok := interop.ResolveRef(interop.Ref(ctx))
			if !ok {
				return
			}
			obs, ok := v.(engine.RemoteDescriptionObserver)
			if !ok {
				return
			}
			interop.ReleaseRef(interop.Ref(ctx))
			safeCallback(func() { obs.OnRemoteDescriptionApplied(engine.StatusError(status)) })
		})

		// Signature: void(ctx, data, size, binary)
		dcMessageCallbackPtr = purego.NewCallback(func(ctx, data uintptr, size int32, binary int32) {
			ev, ok := resolveDC(ctx)
			if !ok {
				return
			}
			if size < 0 {
				return
			}
			// Copy out of engine memory before the callback returns.
			var msg []byte
			if data != 0 && size > 0 {
				msg = make([]byte, size)
				copy(msg, unsafe.Slice((*byte)(unsafe.Pointer(data)), size))
			}
			safeCallback(func() { ev.OnMessage(msg, binary != 0) })
		})

		dcStateCallbackPtr = purego.NewCallback(func(ctx uintptr, state int32) {
			ev, ok := resolveDC(ctx)
			if !ok {
				return
			}
			safeCallback(func() { ev.OnStateChanged(engine.DataChannelState(state)) })
		})

		// Signature: void(ctx, width, height, y, u, v, y_stride, u_stride, v_stride, timestamp_us)
		// C uses int (32-bit) for dimensions and strides.
		videoSinkCallbackPtr = purego.NewCallback(func(ctx uintptr, width, height int32, yPlane, uPlane, vPlane uintptr, yStride, uStride, vStride int32, timestampUs int64) {
			v, ok := interop.ResolveRef(interop.Ref(ctx))
			if !ok {
				return
			}
			sink, ok := v.(engine.VideoSink)
			if !ok {
				return
			}

			// Reject geometry that cannot come from a sane engine.
			if width <= 0 || height <= 0 || width > 8192 || height > 8192 {
				return
			}
			if yStride < width || uStride <= 0 || vStride <= 0 {
				return
			}
			if yStride > 16384 || uStride > 16384 || vStride > 16384 {
				return
			}

			uvHeight := (int(height) + 1) / 2
			ySize := int(yStride) * int(height)
			uSize := int(uStride) * uvHeight
			vSize := int(vStride) * uvHeight

			f := engine.VideoFrameView{
				Width:       width,
				Height:      height,
				YStride:     yStride,
				UStride:     uStride,
				VStride:     vStride,
				TimestampUs: timestampUs,
			}
			if yPlane != 0 {
				f.YPlane = unsafe.Slice((*byte)(unsafe.Pointer(yPlane)), ySize)
			}
			if uPlane != 0 {
				f.UPlane = unsafe.Slice((*byte)(unsafe.Pointer(uPlane)), uSize)
			}
			if vPlane != 0 {
				f.VPlane = unsafe.Slice((*byte)(unsafe.Pointer(vPlane)), vSize)
			}

			// The view aliases engine memory; the sink must copy before
			// returning. The frame queue's enqueue copy satisfies that.
			safeCallback(func() { sink.OnVideoFrame(f) })
		})

		// Signature: void(ctx, samples, num_samples, sample_rate, channels, timestamp_us)
		audioSinkCallbackPtr = purego.NewCallback(func(ctx, samples uintptr, numSamples, sampleRate, channels int32, timestampUs int64) {
			v, ok := interop.ResolveRef(interop.Ref(ctx))
			if !ok {
				return
			}
			sink, ok := v.(engine.AudioSink)
			if !ok {
				return
			}

			if numSamples <= 0 || numSamples > 48000 || channels <= 0 || channels > 8 {
				return
			}
			total := int(numSamples) * int(channels)

			f := engine.AudioFrameView{
				SampleRate:  sampleRate,
				Channels:    channels,
				TimestampUs: timestampUs,
			}
			if samples != 0 {
				f.Samples = unsafe.Slice((*int16)(unsafe.Pointer(samples)), total)
			}

			safeCallback(func() { sink.OnAudioFrame(f) })
		})
	})
}
