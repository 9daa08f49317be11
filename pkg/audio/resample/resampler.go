// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Converts float audio between rates using linear interpolation across chunk boundaries
package resample

import "github.com/Resonate-Protocol/ose-go/pkg/audio"

// Resampler performs linear interpolation to convert between sample rates.
// It keeps the last input frame so consecutive chunks join without clicks.
type Resampler struct {
	channels  int
	ratio     float64
	position  float64
	lastFrame []float32 // one sample per channel
	primed    bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		channels:  channels,
		ratio:     float64(inputRate) / float64(outputRate),
		lastFrame: make([]float32, channels),
	}
}

// Process converts interleaved input samples at inputRate to interleaved
// samples at outputRate. The final input frame is held back and used as the
// left neighbour of the next chunk.
func (r *Resampler) Process(input []float32) []float32 {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return nil
	}

	// Virtual frame sequence: lastFrame (if primed) followed by input
	n := inputFrames
	if r.primed {
		n++
	}
	at := func(frame, ch int) float32 {
		if r.primed {
			if frame == 0 {
				return r.lastFrame[ch]
			}
			frame--
		}
		return input[frame*r.channels+ch]
	}

	output := make([]float32, 0, (int(float64(n)/r.ratio)+1)*r.channels)
	for {
		idx := int(r.position)
		if idx+1 >= n {
			break
		}
		frac := float32(r.position - float64(idx))
		for ch := 0; ch < r.channels; ch++ {
			s1 := at(idx, ch)
			s2 := at(idx+1, ch)
			output = append(output, s1*(1-frac)+s2*frac)
		}
		r.position += r.ratio
	}

	// Rebase so the held frame becomes index 0 of the next call
	r.position -= float64(n - 1)
	for ch := 0; ch < r.channels; ch++ {
		r.lastFrame[ch] = at(n-1, ch)
	}
	r.primed = true

	return output
}

// Buffer resamples a planar buffer to the target rate in one pass.
// A buffer already at the target rate is returned unchanged.
func Buffer(buf *audio.Buffer, targetRate int) *audio.Buffer {
	if buf.SampleRate == targetRate || buf.Frames() == 0 {
		return buf
	}

	out := &audio.Buffer{
		SampleRate: targetRate,
		Data:       make([][]float32, buf.NumChannels()),
	}
	for ch, samples := range buf.Data {
		r := New(buf.SampleRate, targetRate, 1)
		converted := r.Process(samples)
		// Hold the tail sample so the clip ends where the source ends
		out.Data[ch] = append(converted, samples[len(samples)-1])
	}

	return out
}

// Mono averages all channels of a planar buffer into one
func Mono(buf *audio.Buffer) *audio.Buffer {
	if buf.NumChannels() <= 1 {
		return buf
	}

	frames := buf.Frames()
	mono := make([]float32, frames)
	scale := 1 / float32(buf.NumChannels())
	for _, samples := range buf.Data {
		for i := 0; i < frames; i++ {
			mono[i] += samples[i] * scale
		}
	}

	return &audio.Buffer{SampleRate: buf.SampleRate, Data: [][]float32{mono}}
}
