package frame

import "time"

// AudioFrame is a block of interleaved signed 16-bit PCM samples.
type AudioFrame struct {
	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// Channels is the number of audio channels.
	Channels int

	// Samples holds the interleaved samples; len == NumSamples*Channels.
	Samples []int16

	// NumSamples is the number of samples per channel.
	NumSamples int

	// TimestampUs is the capture timestamp in microseconds.
	TimestampUs int64
}

// NewAudioFrame allocates a zeroed frame of the given shape.
func NewAudioFrame(sampleRate, channels, numSamples int) *AudioFrame {
	return &AudioFrame{
		SampleRate: sampleRate,
		Channels:   channels,
		NumSamples: numSamples,
		Samples:    make([]int16, numSamples*channels),
	}
}

// Duration returns the play time covered by the frame.
func (f *AudioFrame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.NumSamples) * time.Second / time.Duration(f.SampleRate)
}

// Clone creates a deep copy of the frame.
func (f *AudioFrame) Clone() *AudioFrame {
	c := *f
	c.Samples = make([]int16, len(f.Samples))
	copy(c.Samples, f.Samples)
	return &c
}
