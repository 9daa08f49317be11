// ABOUTME: Capture stream interface and frame splitting
// ABOUTME: Defines the live input contract shared by capture backends
package input

import (
	"errors"
	"strings"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
)

// DefaultFrameSize is the number of sample frames per delivered buffer
const DefaultFrameSize = 256

// ErrPermissionDenied is returned when the OS refuses microphone access
var ErrPermissionDenied = errors.New("microphone permission denied")

// Config selects the capture format
type Config struct {
	SampleRate int
	Channels   int
	FrameSize  int
}

// Stream is an open live input. The handler runs on the capture thread and
// must not close the stream itself.
type Stream interface {
	// SetHandler installs the frame tap; nil detaches it
	SetHandler(fn func(audio.SampleBuffer))
	// SampleRate returns the delivered sample rate
	SampleRate() int
	// Close stops the device and releases it; safe to call more than once
	Close() error
}

// Opener acquires a capture stream
type Opener interface {
	Open() (Stream, error)
}

// Framer splits arbitrary capture periods into fixed-size frames
type Framer struct {
	frameSize  int
	sampleRate int
	channels   int
	pending    []float32
}

// NewFramer creates a framer emitting frameSize frames per buffer
func NewFramer(frameSize, sampleRate, channels int) *Framer {
	return &Framer{
		frameSize:  frameSize,
		sampleRate: sampleRate,
		channels:   channels,
		pending:    make([]float32, 0, frameSize*channels*2),
	}
}

// Push appends interleaved samples and emits every complete frame.
// Emitted buffers own their sample slices.
func (f *Framer) Push(samples []float32, emit func(audio.SampleBuffer)) {
	f.pending = append(f.pending, samples...)

	size := f.frameSize * f.channels
	consumed := 0
	for len(f.pending)-consumed >= size {
		frame := make([]float32, size)
		copy(frame, f.pending[consumed:consumed+size])
		consumed += size
		emit(audio.SampleBuffer{
			Samples:    frame,
			SampleRate: f.sampleRate,
			Channels:   f.channels,
		})
	}

	n := copy(f.pending, f.pending[consumed:])
	f.pending = f.pending[:n]
}

// isPermissionError recognizes OS and miniaudio access refusals
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission") ||
		strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "not authorized")
}
