// Package testutil provides shared test utilities for nativertc tests.
package testutil

import (
	"math"
	"testing"

	"github.com/thesyncim/nativertc/internal/engine/ffi"
	"github.com/thesyncim/nativertc/pkg/frame"
)

// RequireEngine fails the test if the native engine library is not
// available. Most tests run against the in-process fake instead; only
// end-to-end tests need this.
func RequireEngine(tb testing.TB) {
	tb.Helper()
	if err := ffi.LoadLibrary(); err != nil {
		tb.Skipf("native engine library not available: %v", err)
	}
}

// CreateTestVideoFrame creates an I420 video frame with a diagonal gradient
// on the Y plane. The pattern is recognizable when rendered and makes copy
// mistakes visible.
func CreateTestVideoFrame(width, height int) *frame.VideoFrame {
	f := frame.NewI420Frame(width, height)

	for i := range f.Planes[0] {
		y := i / width
		x := i % width
		f.Planes[0][i] = byte((x + y) % 256)
	}

	// Mid-gray chroma keeps the pattern colorless.
	for i := range f.Planes[1] {
		f.Planes[1][i] = 128
		f.Planes[2][i] = 128
	}

	return f
}

// CreateGrayVideoFrame creates a uniform mid-gray I420 frame.
func CreateGrayVideoFrame(width, height int) *frame.VideoFrame {
	f := frame.NewI420Frame(width, height)
	for p := range f.Planes {
		for i := range f.Planes[p] {
			f.Planes[p][i] = 128
		}
	}
	return f
}

// CreateTestAudioFrame creates an audio frame carrying a 440Hz sine wave.
func CreateTestAudioFrame(sampleRate, channels, samplesPerChannel int) *frame.AudioFrame {
	f := frame.NewAudioFrame(sampleRate, channels, samplesPerChannel)

	const frequency = 440.0
	const amplitude = 10000.0

	for i := range f.Samples {
		sampleIndex := i / channels
		t := float64(sampleIndex) / float64(sampleRate)
		f.Samples[i] = int16(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return f
}

// CreateSilentAudioFrame creates a zeroed audio frame.
func CreateSilentAudioFrame(sampleRate, channels, samplesPerChannel int) *frame.AudioFrame {
	return frame.NewAudioFrame(sampleRate, channels, samplesPerChannel)
}
