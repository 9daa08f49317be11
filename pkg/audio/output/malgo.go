// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Uses miniaudio via malgo, pulling PCM from a reader in the device callback
package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	mu         sync.Mutex
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	src        io.Reader
	sampleRate int
	channels   int
}

// NewMalgo creates a new Malgo output
func NewMalgo() *Malgo {
	return &Malgo{}
}

// Open initializes the playback device and starts pulling from src
func (m *Malgo) Open(sampleRate, channels int, src io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid output format: %dHz %dch", sampleRate, channels)
	}

	if m.device != nil {
		m.closeDevice()
	}

	// Create malgo context if needed
	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(DefaultLatency.Milliseconds() / 2)
	deviceConfig.Alsa.NoMMap = 1

	m.src = src
	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			fill(m.src, pOutputSample)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.device = device
	m.sampleRate = sampleRate
	m.channels = channels

	log.Info().
		Int("sample_rate", sampleRate).
		Int("channels", channels).
		Msg("Audio output initialized (malgo/S16)")

	return nil
}

// fill reads exactly len(out) bytes from src, padding with silence on a short read
func fill(src io.Reader, out []byte) {
	n, err := io.ReadFull(src, out)
	if err != nil {
		clear(out[n:])
	}
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeDevice()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Warn().Err(err).Msg("malgo context uninit error")
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

// closeDevice stops and uninitializes the device (must hold m.mu)
func (m *Malgo) closeDevice() {
	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Warn().Err(err).Msg("device stop error")
		}
		m.device.Uninit()
		m.device = nil
	}
}
