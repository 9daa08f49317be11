// ABOUTME: Unit tests for PCM encoder
// ABOUTME: Tests float to 16-bit scaling, clamping and MIME tagging
package encode

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
)

func TestNewPCM(t *testing.T) {
	tests := []struct {
		name        string
		sampleRate  int
		channels    int
		wantErr     bool
		errContains string
	}{
		{"valid mono 16k", 16000, 1, false, ""},
		{"valid stereo", 48000, 2, false, ""},
		{"zero rate", 0, 1, true, "invalid sample rate"},
		{"zero channels", 16000, 0, true, "invalid channel count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoder, err := NewPCM(tt.sampleRate, tt.channels)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewPCM() expected error, got nil")
				} else if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("NewPCM() error = %v, want error containing %v", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Errorf("NewPCM() unexpected error = %v", err)
			}
			if encoder == nil {
				t.Errorf("NewPCM() returned nil encoder")
			}
		})
	}
}

func TestFloatToInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected int16
	}{
		{"silence", 0, 0},
		{"full scale positive", 1, 32767},
		{"full scale negative", -1, -32767},
		{"half", 0.5, 16384}, // round(16383.5)
		{"negative half", -0.5, -16384},
		{"clamp high", 1.5, 32767},
		{"clamp low", -2, -32768},
		{"nan", float32(math.NaN()), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FloatToInt16(tt.input); got != tt.expected {
				t.Errorf("FloatToInt16(%v) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPCMEncoder_Encode(t *testing.T) {
	encoder, err := NewPCM(16000, 1)
	if err != nil {
		t.Fatalf("NewPCM() failed: %v", err)
	}

	samples := audio.SampleBuffer{
		Samples:    []float32{0, 1, -1, 0.25, -0.75},
		SampleRate: 16000,
		Channels:   1,
	}

	frame, err := encoder.Encode(samples)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	if frame.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("Encode() MIME type = %s, want audio/pcm;rate=16000", frame.MIMEType)
	}

	if len(frame.Data) != len(samples.Samples)*2 {
		t.Fatalf("Encode() output size = %d, want %d", len(frame.Data), len(samples.Samples)*2)
	}

	for i, s := range samples.Samples {
		expected := FloatToInt16(s)
		actual := int16(binary.LittleEndian.Uint16(frame.Data[i*2:]))
		if actual != expected {
			t.Errorf("Sample %d: expected %d, got %d", i, expected, actual)
		}
	}
}

func TestPCMEncoder_FormatMismatch(t *testing.T) {
	encoder, err := NewPCM(16000, 1)
	if err != nil {
		t.Fatalf("NewPCM() failed: %v", err)
	}

	_, err = encoder.Encode(audio.SampleBuffer{
		Samples:    make([]float32, 4),
		SampleRate: 48000,
		Channels:   1,
	})
	if err == nil || !strings.Contains(err.Error(), "format mismatch") {
		t.Errorf("Encode() error = %v, want format mismatch", err)
	}
}

func TestPCM_RejectsPartialFrames(t *testing.T) {
	frame, err := PCM(audio.SampleBuffer{
		Samples:    make([]float32, 3),
		SampleRate: 16000,
		Channels:   2,
	})
	if err == nil {
		t.Fatal("expected error for partial stereo frame")
	}
	if frame.Data != nil {
		t.Error("expected no output on failure")
	}
}

func TestPCM_Empty(t *testing.T) {
	frame, err := PCM(audio.SampleBuffer{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("PCM() failed on empty buffer: %v", err)
	}
	if len(frame.Data) != 0 {
		t.Errorf("expected empty frame, got %d bytes", len(frame.Data))
	}
}
