// ABOUTME: Sample-accurate output timeline that mixes scheduled playback units
// ABOUTME: Implements the playback context as an io.Reader pulled by the audio device
package player

import (
	"encoding/binary"
	"io"
	"math"
	"sync"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/encode"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/resample"
)

// Context is the output clock plus a factory for playback units bound to it
type Context interface {
	// CurrentTime returns the output clock in seconds
	CurrentTime() float64
	// NewSource binds a decoded buffer to the output
	NewSource(buf *audio.Buffer) Source
}

// Source is one scheduled playback unit
type Source interface {
	// Start begins playback at the given output time in seconds. A time the
	// clock has already passed is clamped to now; the actual start is returned.
	Start(at float64) float64
	// Stop halts playback; stopping twice is a no-op
	Stop()
	// OnEnded registers a callback fired once when playback reaches the end
	OnEnded(fn func())
	// Duration returns the unit length in seconds
	Duration() float64
}

// Timeline renders 16-bit little-endian PCM for the output device. Its clock
// advances with every frame read, so it only moves while a device pulls.
type Timeline struct {
	sampleRate int
	channels   int
	gain       *Gain

	mu     sync.Mutex
	frame  int64 // frames rendered so far
	voices []*voice
	level  float64
	mix    []float32
}

// NewTimeline creates a timeline at the given output format
func NewTimeline(sampleRate, channels int, gain *Gain) *Timeline {
	if gain == nil {
		gain = NewGain()
	}
	return &Timeline{
		sampleRate: sampleRate,
		channels:   channels,
		gain:       gain,
	}
}

// SampleRate returns the output rate
func (t *Timeline) SampleRate() int {
	return t.sampleRate
}

// Channels returns the output channel count
func (t *Timeline) Channels() int {
	return t.channels
}

// CurrentTime returns seconds of audio rendered so far
func (t *Timeline) CurrentTime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.frame) / float64(t.sampleRate)
}

// Level returns the RMS of the most recent block after gain
func (t *Timeline) Level() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

// NewSource converts buf to the timeline format and wraps it as a unit
func (t *Timeline) NewSource(buf *audio.Buffer) Source {
	if buf.SampleRate != t.sampleRate {
		buf = resample.Buffer(buf, t.sampleRate)
	}
	if buf.NumChannels() != t.channels && t.channels == 1 {
		buf = resample.Mono(buf)
	}
	return &voice{timeline: t, buf: buf}
}

// Read renders the next block of frames. It always fills whole frames and
// never returns an error.
func (t *Timeline) Read(p []byte) (int, error) {
	frameBytes := 2 * t.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	ended := t.render(p, frames)
	for _, fn := range ended {
		fn()
	}

	return frames * frameBytes, nil
}

// render mixes frames into p and returns callbacks of units that finished
func (t *Timeline) render(p []byte, frames int) []func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := frames * t.channels
	if cap(t.mix) < n {
		t.mix = make([]float32, n)
	}
	t.mix = t.mix[:n]
	clear(t.mix)

	blockStart := t.frame
	blockEnd := t.frame + int64(frames)

	var ended []func()
	remaining := t.voices[:0]
	for _, v := range t.voices {
		v.mixInto(t.mix, blockStart, blockEnd, t.channels)
		if v.finished(blockEnd) {
			v.done = true
			if v.ended != nil {
				ended = append(ended, v.ended)
			}
			continue
		}
		remaining = append(remaining, v)
	}
	clear(t.voices[len(remaining):])
	t.voices = remaining

	applyVolume(t.mix, t.gain.Multiplier())
	t.level = audio.RMS(t.mix)
	t.frame = blockEnd

	for i, s := range t.mix {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(encode.FloatToInt16(s)))
	}

	return ended
}

// remove drops a voice without firing its ended callback
func (t *Timeline) remove(v *voice) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, other := range t.voices {
		if other == v {
			t.voices = append(t.voices[:i], t.voices[i+1:]...)
			return
		}
	}
}

// voice is a Source on a Timeline. All fields after buf are guarded by the
// timeline mutex.
type voice struct {
	timeline *Timeline
	buf      *audio.Buffer

	startFrame int64
	started    bool
	stopped    bool
	done       bool
	ended      func()
}

func (v *voice) Start(at float64) float64 {
	t := v.timeline
	t.mu.Lock()
	defer t.mu.Unlock()

	if v.started || v.stopped {
		return float64(v.startFrame) / float64(t.sampleRate)
	}
	v.started = true

	start := int64(math.Round(at * float64(t.sampleRate)))
	if start < t.frame {
		start = t.frame
	}
	v.startFrame = start
	t.voices = append(t.voices, v)
	return float64(start) / float64(t.sampleRate)
}

func (v *voice) Stop() {
	v.timeline.mu.Lock()
	if v.stopped || v.done {
		v.timeline.mu.Unlock()
		return
	}
	v.stopped = true
	v.timeline.mu.Unlock()

	v.timeline.remove(v)
}

func (v *voice) OnEnded(fn func()) {
	v.timeline.mu.Lock()
	v.ended = fn
	v.timeline.mu.Unlock()
}

func (v *voice) Duration() float64 {
	return v.buf.Duration()
}

// mixInto adds the part of the voice overlapping [from, to) into mix
func (v *voice) mixInto(mix []float32, from, to int64, channels int) {
	length := int64(v.buf.Frames())
	lo := max(from, v.startFrame)
	hi := min(to, v.startFrame+length)
	if lo >= hi {
		return
	}

	srcChannels := v.buf.NumChannels()
	for f := lo; f < hi; f++ {
		src := int(f - v.startFrame)
		dst := int(f-from) * channels
		for ch := 0; ch < channels; ch++ {
			mix[dst+ch] += v.buf.Data[ch%srcChannels][src]
		}
	}
}

func (v *voice) finished(blockEnd int64) bool {
	return blockEnd >= v.startFrame+int64(v.buf.Frames())
}

var _ io.Reader = (*Timeline)(nil)
