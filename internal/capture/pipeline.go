// ABOUTME: Capture pipeline from microphone frames to the live session
// ABOUTME: Encodes and forwards frames while recording with an open session
package capture

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/ose-go/internal/metrics"
	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/encode"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/input"
	"github.com/Resonate-Protocol/ose-go/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// ErrAlreadyRunning is returned by Start while a stream is attached
var ErrAlreadyRunning = errors.New("capture already running")

// Config wires the pipeline to its collaborators
type Config struct {
	// Encoder turns frames into wire frames and rejects other formats
	Encoder encode.Encoder
	// Session returns the current session or nil
	Session func() protocol.Session
	// OnError receives recoverable failures, wrapping protocol.ErrSendFailure
	OnError func(error)
}

// Stats tracks pipeline counters
type Stats struct {
	Sent      int64
	Dropped   int64
	BytesSent int64
}

// Pipeline taps a capture stream. Frame handling and Stop are serialized by
// mu, so nothing is sent once Stop returns.
type Pipeline struct {
	encoder encode.Encoder
	session func() protocol.Session
	onError func(error)

	mu        sync.Mutex
	stream    input.Stream
	recording bool
	stats     Stats

	level atomic.Uint64 // float64 bits of the last frame RMS
}

// New creates a capture pipeline
func New(config Config) *Pipeline {
	if config.Session == nil {
		config.Session = func() protocol.Session { return nil }
	}
	return &Pipeline{
		encoder: config.Encoder,
		session: config.Session,
		onError: config.OnError,
	}
}

// Start attaches the pipeline to a live input stream and begins recording
func (p *Pipeline) Start(stream input.Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return ErrAlreadyRunning
	}

	p.stream = stream
	p.recording = true
	stream.SetHandler(p.handleFrame)

	log.Info().Int("sample_rate", stream.SampleRate()).Msg("Capture started")
	return nil
}

// Stop detaches the tap and closes the stream. It is safe to call repeatedly
// or before Start, but never from inside the stream handler.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	stream := p.detach()
	p.mu.Unlock()

	if stream == nil {
		return
	}
	if err := stream.Close(); err != nil {
		log.Warn().Err(err).Msg("Capture stream close error")
	}
	log.Info().Msg("Capture stopped")
}

// detach clears recording state and returns the stream to close (must hold p.mu)
func (p *Pipeline) detach() input.Stream {
	p.recording = false
	stream := p.stream
	p.stream = nil
	if stream != nil {
		stream.SetHandler(nil)
	}
	p.level.Store(0)
	return stream
}

// Recording reports whether frames are being forwarded
func (p *Pipeline) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recording
}

// Level returns the RMS of the last captured frame
func (p *Pipeline) Level() float64 {
	return math.Float64frombits(p.level.Load())
}

// Stats returns pipeline counters
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// handleFrame runs on the capture thread
func (p *Pipeline) handleFrame(frame audio.SampleBuffer) {
	p.mu.Lock()

	if !p.recording {
		p.drop("not_recording")
		p.mu.Unlock()
		return
	}

	p.level.Store(math.Float64bits(audio.RMS(frame.Samples)))

	sess := p.session()
	if sess == nil || !sess.IsOpen() {
		p.drop("no_session")
		p.mu.Unlock()
		return
	}

	wire, err := p.encoder.Encode(frame)
	if err != nil {
		p.drop("encode")
		p.mu.Unlock()
		log.Warn().Err(err).Msg("Failed to encode capture frame")
		return
	}

	if err := sess.SendRealtimeInput(wire); err != nil {
		// The device cannot be stopped from its own callback
		stream := p.detach()
		p.mu.Unlock()

		if stream != nil {
			go func() {
				if cerr := stream.Close(); cerr != nil {
					log.Warn().Err(cerr).Msg("Capture stream close error")
				}
			}()
		}

		if !errors.Is(err, protocol.ErrSendFailure) {
			err = fmt.Errorf("%w: %w", protocol.ErrSendFailure, err)
		}
		log.Error().Err(err).Msg("Capture send failed, stopping")
		if p.onError != nil {
			p.onError(err)
		}
		return
	}

	p.stats.Sent++
	p.stats.BytesSent += int64(len(wire.Data))
	p.mu.Unlock()

	metrics.FramesSent.Inc()
	metrics.RecordAudioBytes("out", len(wire.Data))
}

// drop counts a discarded frame (must hold p.mu)
func (p *Pipeline) drop(reason string) {
	p.stats.Dropped++
	metrics.FramesDropped.WithLabelValues(reason).Inc()
}
