// ABOUTME: FLAC clip decoder
// ABOUTME: Decodes a FLAC stream frame by frame into a float buffer
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLAC decodes an entire FLAC stream at its native rate and channel count
func FLAC(r io.Reader) (*audio.Buffer, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	channels := int(stream.Info.NChannels)
	bitDepth := int(stream.Info.BitsPerSample)
	if channels < 1 || bitDepth < 1 {
		return nil, fmt.Errorf("invalid FLAC stream info: %d channels, %d bits", channels, bitDepth)
	}

	scale := float32(int64(1) << (bitDepth - 1))
	data := make([][]float32, channels)

	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("flac decode error: %w", err)
		}

		for ch := 0; ch < channels; ch++ {
			for _, sample := range frame.Subframes[ch].Samples {
				data[ch] = append(data[ch], float32(sample)/scale)
			}
		}
	}

	return &audio.Buffer{
		SampleRate: int(stream.Info.SampleRate),
		Data:       data,
	}, nil
}
