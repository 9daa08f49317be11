// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for pull-based playback backends
package output

import (
	"fmt"
	"io"
	"time"
)

// DefaultLatency is the device buffer requested from backends
const DefaultLatency = 80 * time.Millisecond

// Output represents an audio output device that pulls 16-bit little-endian
// PCM from a source for as long as it is open
type Output interface {
	// Open initializes the device and starts pulling from src
	Open(sampleRate, channels int, src io.Reader) error

	// Close stops playback and releases output resources
	Close() error
}

// New creates an output backend by name
func New(name string) (Output, error) {
	switch name {
	case "", "oto":
		return NewOto(), nil
	case "malgo":
		return NewMalgo(), nil
	default:
		return nil, fmt.Errorf("unknown output backend: %s", name)
	}
}

// bufferBytes returns the byte size of d at the given format
func bufferBytes(sampleRate, channels int, d time.Duration) int {
	frames := int(int64(sampleRate) * int64(d) / int64(time.Second))
	return frames * channels * 2
}
