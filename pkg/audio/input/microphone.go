// ABOUTME: Malgo-based microphone capture
// ABOUTME: Opens the default capture device as 32-bit float and frames its output
package input

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

// Microphone opens capture streams on the system input device
type Microphone struct {
	config Config
}

// NewMicrophone creates a microphone with defaults filled in
func NewMicrophone(config Config) *Microphone {
	if config.SampleRate <= 0 {
		config.SampleRate = audio.InputSampleRate
	}
	if config.Channels <= 0 {
		config.Channels = 1
	}
	if config.FrameSize <= 0 {
		config.FrameSize = DefaultFrameSize
	}
	return &Microphone{config: config}
}

// deviceStream is a running malgo capture device
type deviceStream struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	framer   *Framer // only touched by the capture callback
	rate     int

	mu      sync.Mutex
	handler func(audio.SampleBuffer)

	closeOnce sync.Once
	closeErr  error
}

// Open acquires the capture device and starts it
func (m *Microphone) Open() (Stream, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Str("component", "malgo").Msg(message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	s := &deviceStream{
		malgoCtx: ctx,
		framer:   NewFramer(m.config.FrameSize, m.config.SampleRate, m.config.Channels),
		rate:     m.config.SampleRate,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(m.config.Channels)
	deviceConfig.SampleRate = uint32(m.config.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(m.config.FrameSize)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			s.dataCallback(pInputSamples)
		},
	})
	if err != nil {
		s.releaseContext()
		return nil, classify(err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		s.releaseContext()
		return nil, classify(err)
	}
	s.device = device

	log.Info().
		Int("sample_rate", m.config.SampleRate).
		Int("channels", m.config.Channels).
		Int("frame_size", m.config.FrameSize).
		Msg("Microphone opened")

	return s, nil
}

// classify maps device errors onto ErrPermissionDenied where they mean refusal
func classify(err error) error {
	if errors.Is(err, malgo.ErrAccessDenied) || isPermissionError(err) {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return fmt.Errorf("failed to open microphone: %w", err)
}

func (s *deviceStream) dataCallback(in []byte) {
	samples := make([]float32, len(in)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(in[i*4:]))
	}

	s.framer.Push(samples, func(frame audio.SampleBuffer) {
		s.mu.Lock()
		handler := s.handler
		s.mu.Unlock()

		if handler != nil {
			handler(frame)
		}
	})
}

func (s *deviceStream) SetHandler(fn func(audio.SampleBuffer)) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

func (s *deviceStream) SampleRate() int {
	return s.rate
}

// Close blocks until the device callback has returned, so it must not be
// called from a handler
func (s *deviceStream) Close() error {
	s.closeOnce.Do(func() {
		s.SetHandler(nil)
		if s.device != nil {
			if err := s.device.Stop(); err != nil {
				s.closeErr = fmt.Errorf("failed to stop capture device: %w", err)
			}
			s.device.Uninit()
		}
		s.releaseContext()
		log.Info().Msg("Microphone closed")
	})
	return s.closeErr
}

func (s *deviceStream) releaseContext() {
	if s.malgoCtx == nil {
		return
	}
	if err := s.malgoCtx.Uninit(); err != nil {
		log.Warn().Err(err).Msg("malgo context uninit error")
	}
	s.malgoCtx.Free()
	s.malgoCtx = nil
}
