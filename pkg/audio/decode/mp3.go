// ABOUTME: MP3 clip decoder
// ABOUTME: Decodes an MP3 stream into a stereo float buffer
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3 decodes an entire MP3 stream. go-mp3 always produces 16-bit stereo.
func MP3(r io.Reader) (*audio.Buffer, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	left := make([]float32, 0, 4096)
	right := make([]float32, 0, 4096)
	buf := make([]byte, 8192)

	for {
		n, err := decoder.Read(buf)
		// Each stereo frame is 4 bytes
		for i := 0; i+4 <= n; i += 4 {
			left = append(left, audio.SampleToFloat(int16(binary.LittleEndian.Uint16(buf[i:]))))
			right = append(right, audio.SampleToFloat(int16(binary.LittleEndian.Uint16(buf[i+2:]))))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("mp3 decode error: %w", err)
		}
	}

	return &audio.Buffer{
		SampleRate: decoder.SampleRate(),
		Data:       [][]float32{left, right},
	}, nil
}
