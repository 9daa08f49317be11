// ABOUTME: PCM payload decoding and buffer assembly
// ABOUTME: Turns inline base64/binary audio into planar float buffers for playback
package decode

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
)

var (
	// ErrMalformedPayload is returned when encoded audio data cannot be decoded
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrEmptyPayload is returned alongside a zero-frame buffer for zero-length input
	ErrEmptyPayload = errors.New("empty payload")
)

// Bytes returns the raw bytes carried by a payload. Base64 text must use the
// standard alphabet with padding and no line wraps.
func Bytes(p audio.Payload) ([]byte, error) {
	if p.Binary != nil || p.Base64 == "" {
		return p.Binary, nil
	}

	// The decoder skips CR and LF on its own
	if strings.ContainsAny(p.Base64, "\r\n") {
		return nil, fmt.Errorf("%w: line break in base64 data", ErrMalformedPayload)
	}

	data, err := base64.StdEncoding.Strict().DecodeString(p.Base64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return data, nil
}

// Assemble interprets raw as 16-bit signed little-endian PCM and distributes
// the samples round-robin across channels. The result has exactly
// len(raw)/2/channels frames; trailing bytes that do not fill a frame are ignored.
//
// Zero-length input yields a non-nil zero-frame buffer together with
// ErrEmptyPayload so callers can skip it without failing.
func Assemble(raw []byte, sampleRate, channels int) (*audio.Buffer, error) {
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	frames := len(raw) / 2 / channels
	buf := audio.NewBuffer(sampleRate, channels, frames)

	if len(raw) == 0 {
		return buf, ErrEmptyPayload
	}

	for i := 0; i < frames*channels; i++ {
		sample := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		buf.Data[i%channels][i/channels] = audio.SampleToFloat(sample)
	}

	return buf, nil
}

// Payload decodes and assembles an inline payload in one step
func Payload(p audio.Payload, sampleRate, channels int) (*audio.Buffer, error) {
	raw, err := Bytes(p)
	if err != nil {
		return nil, err
	}
	return Assemble(raw, sampleRate, channels)
}
