// ABOUTME: Tests for the energy VAD
// ABOUTME: Checks thresholds, hangover and reset
package server

import "testing"

func level(v float32, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestVAD_StartAndEnd(t *testing.T) {
	vad := NewVAD(VADConfig{EnergyThreshold: 0.1, SilenceFrames: 3})

	steps := []struct {
		frame                    []float32
		speaking, started, ended bool
	}{
		{level(0.01, 256), false, false, false},
		{level(0.5, 256), true, true, false},
		{level(0.5, 256), true, false, false},
		{level(0, 256), true, false, false},
		{level(0, 256), true, false, false},
		{level(0, 256), false, false, true},
		{level(0, 256), false, false, false},
	}

	for i, step := range steps {
		speaking, started, ended := vad.Process(step.frame)
		if speaking != step.speaking || started != step.started || ended != step.ended {
			t.Errorf("step %d: expected (%v,%v,%v), got (%v,%v,%v)",
				i, step.speaking, step.started, step.ended, speaking, started, ended)
		}
	}
}

func TestVAD_SpeechResetsHangover(t *testing.T) {
	vad := NewVAD(VADConfig{EnergyThreshold: 0.1, SilenceFrames: 2})

	vad.Process(level(0.5, 16))
	vad.Process(level(0, 16))
	vad.Process(level(0.5, 16)) // resets silence count
	if _, _, ended := vad.Process(level(0, 16)); ended {
		t.Error("should not end after one quiet frame")
	}
	if _, _, ended := vad.Process(level(0, 16)); !ended {
		t.Error("should end after two quiet frames")
	}
}

func TestVAD_Threshold(t *testing.T) {
	tests := []struct {
		value float32
		want  bool
	}{
		{0, false},
		{0.019, false},
		{0.021, true},
		{-0.5, true},
	}
	for _, tt := range tests {
		vad := NewVAD(VADConfig{EnergyThreshold: 0.02, SilenceFrames: 1})
		if speaking, _, _ := vad.Process(level(tt.value, 64)); speaking != tt.want {
			t.Errorf("level %v: expected speaking=%v, got %v", tt.value, tt.want, speaking)
		}
	}
}

func TestVAD_DefaultsAndReset(t *testing.T) {
	vad := NewVAD(VADConfig{})
	if vad.config != DefaultVADConfig() {
		t.Errorf("expected defaults, got %+v", vad.config)
	}

	vad.Process(level(0.5, 16))
	vad.Reset()
	if vad.Speaking() {
		t.Error("expected silence after reset")
	}
}
