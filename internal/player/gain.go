// ABOUTME: Output gain stage with volume and mute
// ABOUTME: Applies software volume to float samples before they reach the device
package player

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Gain is the master output volume shared by all playback units
type Gain struct {
	mu     sync.RWMutex
	volume int
	muted  bool
}

// NewGain creates a gain stage at full volume
func NewGain() *Gain {
	return &Gain{volume: 100}
}

// SetVolume sets the volume (0-100)
func (g *Gain) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	g.mu.Lock()
	g.volume = volume
	g.mu.Unlock()

	log.Debug().Int("volume", volume).Msg("Volume set")
}

// SetMuted sets mute state
func (g *Gain) SetMuted(muted bool) {
	g.mu.Lock()
	g.muted = muted
	g.mu.Unlock()

	log.Debug().Bool("muted", muted).Msg("Mute changed")
}

// Volume returns current volume
func (g *Gain) Volume() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.volume
}

// Muted returns mute state
func (g *Gain) Muted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.muted
}

// Multiplier returns the current linear gain
func (g *Gain) Multiplier() float32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return getVolumeMultiplier(g.volume, g.muted)
}

// applyVolume scales samples in place
func applyVolume(samples []float32, multiplier float32) {
	if multiplier == 1 {
		return
	}
	for i := range samples {
		samples[i] *= multiplier
	}
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float32 {
	if muted {
		return 0.0
	}
	return float32(volume) / 100.0
}
