// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams PCM from a reader through a persistent oto player
package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog/log"
)

// Oto output implementation using oto library
type Oto struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	sampleRate int
	channels   int
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	return &Oto{}
}

// Open initializes the output device
func (o *Oto) Open(sampleRate, channels int, src io.Reader) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid output format: %dHz %dch", sampleRate, channels)
	}

	// oto only allows one context per process, so a format change keeps the old one
	if o.otoCtx != nil && (o.sampleRate != sampleRate || o.channels != channels) {
		log.Warn().
			Int("sample_rate", o.sampleRate).
			Int("channels", o.channels).
			Msg("oto doesn't support reinitialization, continuing with existing context")
	}

	if o.otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   DefaultLatency,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return fmt.Errorf("failed to create oto context: %w", err)
		}
		<-readyChan

		o.otoCtx = ctx
		o.sampleRate = sampleRate
		o.channels = channels
	} else if err := o.otoCtx.Resume(); err != nil {
		return fmt.Errorf("failed to resume oto context: %w", err)
	}

	if o.player != nil {
		o.player.Close()
	}

	// Persistent player that pulls from the timeline
	o.player = o.otoCtx.NewPlayer(src)
	o.player.SetBufferSize(bufferBytes(o.sampleRate, o.channels, DefaultLatency))
	o.player.Play()

	log.Info().
		Int("sample_rate", o.sampleRate).
		Int("channels", o.channels).
		Msg("Audio output initialized (oto)")

	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		if err := o.player.Close(); err != nil {
			log.Warn().Err(err).Msg("oto player close error")
		}
		o.player = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend oto context: %w", err)
		}
	}
	return nil
}
