// ABOUTME: Audio type definitions
// ABOUTME: Defines capture buffers, wire frames, inbound payloads and playback buffers
package audio

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// Default rates used by the realtime voice service
	InputSampleRate  = 16000
	OutputSampleRate = 24000

	// 16-bit PCM range constants
	MaxInt16 = 32767
	MinInt16 = -32768

	// PCMMIMEPrefix is the MIME type prefix for raw 16-bit little-endian PCM
	PCMMIMEPrefix = "audio/pcm"
)

// SampleBuffer is interleaved float audio in [-1, 1] as produced by a capture device
type SampleBuffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames in the buffer
func (b SampleBuffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// WireFrame is a byte-encoded chunk of audio tagged with its MIME type
type WireFrame struct {
	Data     []byte
	MIMEType string
}

// Payload is inline audio as carried by a transport message.
// Exactly one of Base64 or Binary is normally set.
type Payload struct {
	MIMEType string
	Base64   string
	Binary   []byte
}

// Empty reports whether the payload carries no data at all
func (p Payload) Empty() bool {
	return p.Base64 == "" && len(p.Binary) == 0
}

// Buffer is planar decoded audio ready for playback
type Buffer struct {
	SampleRate int
	Data       [][]float32 // one slice per channel, equal lengths
}

// NewBuffer allocates a zeroed buffer
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	data := make([][]float32, channels)
	for ch := range data {
		data[ch] = make([]float32, frames)
	}
	return &Buffer{SampleRate: sampleRate, Data: data}
}

// NumChannels returns the channel count
func (b *Buffer) NumChannels() int {
	return len(b.Data)
}

// Frames returns the number of frames per channel
func (b *Buffer) Frames() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the buffer length in seconds
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// PCMMIMEType builds the MIME tag for 16-bit PCM at the given rate
func PCMMIMEType(sampleRate int) string {
	return fmt.Sprintf("%s;rate=%d", PCMMIMEPrefix, sampleRate)
}

// ParsePCMRate extracts the rate parameter from a PCM MIME type such as
// "audio/pcm;rate=24000". It returns false for other types or a missing rate.
func ParsePCMRate(mimeType string) (int, bool) {
	parts := strings.Split(mimeType, ";")
	if strings.TrimSpace(strings.ToLower(parts[0])) != PCMMIMEPrefix {
		return 0, false
	}
	for _, p := range parts[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || strings.ToLower(key) != "rate" {
			continue
		}
		rate, err := strconv.Atoi(value)
		if err != nil || rate <= 0 {
			return 0, false
		}
		return rate, true
	}
	return 0, false
}

// SampleToFloat converts a 16-bit sample to a float in [-1, 1)
func SampleToFloat(sample int16) float32 {
	return float32(sample) / 32768.0
}

// RMS returns the root-mean-square level of interleaved float samples
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
