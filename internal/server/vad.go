// ABOUTME: Energy-based voice activity detection for the mock server
// ABOUTME: Marks speech start and end from per-frame RMS with a silence hangover
package server

import "github.com/Resonate-Protocol/ose-go/pkg/audio"

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS in [0, 1] above which a frame is speech
	SilenceFrames   int     // consecutive quiet frames that end an utterance
}

// DefaultVADConfig suits 256-sample frames at 16 kHz
func DefaultVADConfig() VADConfig {
	return VADConfig{
		EnergyThreshold: 0.02,
		SilenceFrames:   30, // ~480ms
	}
}

// VAD performs Voice Activity Detection
type VAD struct {
	config         VADConfig
	silenceCounter int
	speaking       bool
}

// NewVAD creates a detector, filling zero fields from the defaults
func NewVAD(config VADConfig) *VAD {
	def := DefaultVADConfig()
	if config.EnergyThreshold <= 0 {
		config.EnergyThreshold = def.EnergyThreshold
	}
	if config.SilenceFrames <= 0 {
		config.SilenceFrames = def.SilenceFrames
	}
	return &VAD{config: config}
}

// Process classifies one frame.
// Returns: (speaking, speechStarted, speechEnded)
func (v *VAD) Process(samples []float32) (bool, bool, bool) {
	var started, ended bool

	if audio.RMS(samples) > v.config.EnergyThreshold {
		v.silenceCounter = 0
		if !v.speaking {
			started = true
			v.speaking = true
		}
	} else {
		v.silenceCounter++
		if v.speaking && v.silenceCounter >= v.config.SilenceFrames {
			ended = true
			v.speaking = false
			v.silenceCounter = 0
		}
	}

	return v.speaking, started, ended
}

// Reset clears the detector state
func (v *VAD) Reset() {
	v.silenceCounter = 0
	v.speaking = false
}

// Speaking reports whether an utterance is in progress
func (v *VAD) Speaking() bool {
	return v.speaking
}
