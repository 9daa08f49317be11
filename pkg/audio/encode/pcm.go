// ABOUTME: PCM audio encoder
// ABOUTME: Encodes float samples to 16-bit little-endian PCM wire frames
package encode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
)

// PCMEncoder encodes float audio to 16-bit PCM
type PCMEncoder struct {
	sampleRate int
	channels   int
}

// NewPCM creates a new PCM encoder for the given input format
func NewPCM(sampleRate, channels int) (*PCMEncoder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	return &PCMEncoder{
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Encode converts a sample buffer to a wire frame.
// The buffer must match the encoder's format.
func (e *PCMEncoder) Encode(samples audio.SampleBuffer) (audio.WireFrame, error) {
	if samples.SampleRate != e.sampleRate || samples.Channels != e.channels {
		return audio.WireFrame{}, fmt.Errorf("format mismatch: got %dHz/%dch, want %dHz/%dch",
			samples.SampleRate, samples.Channels, e.sampleRate, e.channels)
	}
	return PCM(samples)
}

// PCM converts each sample to a 16-bit signed integer with round(s*32767),
// clamped to the int16 range, packs it little-endian and tags the frame with
// audio/pcm;rate=<sample rate>. Nothing is written unless the whole buffer is valid.
func PCM(samples audio.SampleBuffer) (audio.WireFrame, error) {
	if samples.SampleRate <= 0 {
		return audio.WireFrame{}, fmt.Errorf("invalid sample rate: %d", samples.SampleRate)
	}
	if samples.Channels <= 0 || len(samples.Samples)%samples.Channels != 0 {
		return audio.WireFrame{}, fmt.Errorf("sample count %d is not a multiple of %d channels",
			len(samples.Samples), samples.Channels)
	}

	output := make([]byte, len(samples.Samples)*2)
	for i, s := range samples.Samples {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(FloatToInt16(s)))
	}

	return audio.WireFrame{
		Data:     output,
		MIMEType: audio.PCMMIMEType(samples.SampleRate),
	}, nil
}

// FloatToInt16 scales a float sample to the 16-bit range
func FloatToInt16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	v := math.Round(float64(s) * audio.MaxInt16)
	if v > audio.MaxInt16 {
		return audio.MaxInt16
	}
	if v < audio.MinInt16 {
		return audio.MinInt16
	}
	return int16(v)
}
