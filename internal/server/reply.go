// ABOUTME: Reply sources for the mock live server
// ABOUTME: Produces the model's answer as echo, test tone or a decoded MP3/FLAC clip
package server

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/resample"
	"github.com/rs/zerolog/log"
)

// Reply modes
const (
	ReplyEcho = "echo"
	ReplyTone = "tone"
	ReplyFile = "file"
)

// ReplySource answers a finished utterance with mono audio at the output rate
type ReplySource interface {
	// Reply builds the answer for an utterance
	Reply(utterance *audio.Buffer) (*audio.Buffer, error)
	// Describe is the transcription text sent with each reply
	Describe() string
}

// NewReplySource picks a source by mode. A non-empty path implies file mode.
func NewReplySource(mode, path string, outputRate int) (ReplySource, error) {
	if path != "" && mode == "" {
		mode = ReplyFile
	}

	switch mode {
	case "", ReplyEcho:
		return &EchoReply{OutputRate: outputRate}, nil
	case ReplyTone:
		return &ToneReply{Frequency: 440, Duration: time.Second, OutputRate: outputRate}, nil
	case ReplyFile:
		return NewClipReply(path, outputRate)
	default:
		return nil, fmt.Errorf("unknown reply mode: %s (supported: echo, tone, file)", mode)
	}
}

// EchoReply plays the user's speech back at the output rate
type EchoReply struct {
	OutputRate int
}

func (r *EchoReply) Reply(utterance *audio.Buffer) (*audio.Buffer, error) {
	if utterance == nil || utterance.Frames() == 0 {
		return nil, fmt.Errorf("empty utterance")
	}
	return resample.Buffer(resample.Mono(utterance), r.OutputRate), nil
}

func (r *EchoReply) Describe() string { return "(echo)" }

// ToneReply answers with a fixed sine tone
type ToneReply struct {
	Frequency  float64
	Duration   time.Duration
	OutputRate int
}

func (r *ToneReply) Reply(*audio.Buffer) (*audio.Buffer, error) {
	frames := int(r.Duration.Seconds() * float64(r.OutputRate))
	buf := audio.NewBuffer(r.OutputRate, 1, frames)
	for i := range buf.Data[0] {
		t := float64(i) / float64(r.OutputRate)
		buf.Data[0][i] = float32(0.5 * math.Sin(2*math.Pi*r.Frequency*t)) // 50% volume
	}
	return buf, nil
}

func (r *ToneReply) Describe() string { return fmt.Sprintf("(%.0f Hz tone)", r.Frequency) }

// ClipReply answers every utterance with the same decoded clip
type ClipReply struct {
	title string
	clip  *audio.Buffer
}

// NewClipReply decodes an MP3 or FLAC file once and converts it to the output format
func NewClipReply(path string, outputRate int) (*ClipReply, error) {
	if path == "" {
		return nil, fmt.Errorf("file reply mode needs an audio file")
	}

	dec, err := decode.ForFile(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	buf, err := dec(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	filename := filepath.Base(path)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	clip := resample.Buffer(resample.Mono(buf), outputRate)

	log.Info().
		Str("title", title).
		Int("source_rate", buf.SampleRate).
		Float64("seconds", clip.Duration()).
		Msg("Loaded reply clip")

	return &ClipReply{title: title, clip: clip}, nil
}

func (r *ClipReply) Reply(*audio.Buffer) (*audio.Buffer, error) {
	return r.clip, nil
}

func (r *ClipReply) Describe() string { return "(" + r.title + ")" }
