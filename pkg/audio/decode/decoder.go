// ABOUTME: Clip decoder lookup
// ABOUTME: Maps audio file extensions to whole-clip decoders
package decode

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
)

// ClipDecoder decodes a complete compressed clip into a playback buffer
type ClipDecoder func(r io.Reader) (*audio.Buffer, error)

// ForFile returns the decoder matching a file's extension
func ForFile(path string) (ClipDecoder, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3":
		return MP3, nil
	case ".flac":
		return FLAC, nil
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", ext)
	}
}
