// ABOUTME: Session lifecycle controller for the voice client
// ABOUTME: Owns the single live session, capture pipeline and playback scheduling
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/ose-go/internal/capture"
	"github.com/Resonate-Protocol/ose-go/internal/config"
	"github.com/Resonate-Protocol/ose-go/internal/metrics"
	"github.com/Resonate-Protocol/ose-go/internal/player"
	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/encode"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/input"
	"github.com/Resonate-Protocol/ose-go/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// Config holds controller dependencies
type Config struct {
	Session    protocol.Config
	Dialer     protocol.Dialer
	Microphone input.Opener
	Scheduler  *player.Scheduler
	Messages   config.Messages

	// InputSampleRate is the microphone rate the capture encoder accepts
	InputSampleRate int
	// ReplySampleRate is assumed for audio whose MIME type names no rate
	ReplySampleRate int

	// OnStatus is called after every status change, outside any lock
	OnStatus func(Status)
	// OnTranscript receives transcription text; role is "user" or "model"
	OnTranscript func(role, text string)
}

// Controller coordinates the session, capture and playback.
// lifecycle serializes Connect, EnsureOpen, Reset and recording controls;
// mu guards session, generation and status.
type Controller struct {
	cfg      Config
	pipeline *capture.Pipeline

	lifecycle sync.Mutex

	mu         sync.Mutex
	session    protocol.Session
	generation uint64
	status     Status
}

// New creates a controller
func New(cfg Config) (*Controller, error) {
	if cfg.InputSampleRate <= 0 {
		cfg.InputSampleRate = audio.InputSampleRate
	}
	if cfg.ReplySampleRate <= 0 {
		cfg.ReplySampleRate = audio.OutputSampleRate
	}

	encoder, err := encode.NewPCM(cfg.InputSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture encoder: %w", err)
	}

	c := &Controller{cfg: cfg}
	c.pipeline = capture.New(capture.Config{
		Encoder: encoder,
		Session: c.currentSession,
		OnError: c.onCaptureError,
	})
	return c, nil
}

// Status returns the current status
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// InputLevel returns the RMS of the last captured frame
func (c *Controller) InputLevel() float64 {
	return c.pipeline.Level()
}

// CaptureStats returns capture counters
func (c *Controller) CaptureStats() capture.Stats {
	return c.pipeline.Stats()
}

// Connect establishes a fresh session, closing any existing one first
func (c *Controller) Connect(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.connectLocked(ctx)
}

// EnsureOpen reconnects when there is no session or it has closed
func (c *Controller) EnsureOpen(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.ensureOpenLocked(ctx)
}

// Reset stops capture and playback and drops the session. The next
// EnsureOpen connects again.
func (c *Controller) Reset() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.pipeline.Stop()
	c.closeSession()
	if n := c.cfg.Scheduler.Interrupt(); n > 0 {
		log.Debug().Int("stopped", n).Msg("Stopped playback on reset")
	}
	metrics.ActiveUnits.Set(0)

	c.update(func(s Status) Status {
		s.Recording = false
		return s.withStatus(c.cfg.Messages.Reset)
	})
	log.Info().Msg("Session reset")
}

// StartRecording opens the microphone and begins streaming. It is a no-op
// while already recording.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.pipeline.Recording() {
		return nil
	}

	if err := c.ensureOpenLocked(ctx); err != nil {
		return err
	}

	c.setStatus(c.cfg.Messages.Starting)

	stream, err := c.cfg.Microphone.Open()
	if err != nil {
		if errors.Is(err, input.ErrPermissionDenied) {
			metrics.RecordError("permission_denied")
			c.setError(c.cfg.Messages.PermissionDenied)
		} else {
			metrics.RecordError("microphone")
			c.setError(join(c.cfg.Messages.MicrophoneError, err.Error()))
		}
		log.Error().Err(err).Msg("Failed to open microphone")
		return err
	}

	if err := c.pipeline.Start(stream); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start capture: %w", err)
	}

	c.update(func(s Status) Status {
		s.Recording = true
		return s.withStatus(c.cfg.Messages.Recording)
	})
	return nil
}

// StopRecording halts capture; the session stays open
func (c *Controller) StopRecording() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if !c.pipeline.Recording() && !c.Status().Recording {
		return
	}

	c.pipeline.Stop()
	c.update(func(s Status) Status {
		s.Recording = false
		return s.withStatus(c.cfg.Messages.Stopped)
	})
}

// Close shuts everything down for exit
func (c *Controller) Close() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.pipeline.Stop()
	c.closeSession()
	c.cfg.Scheduler.Interrupt()
	c.update(func(s Status) Status {
		s.Recording = false
		return s
	})
}

func (c *Controller) ensureOpenLocked(ctx context.Context) error {
	if sess := c.currentSession(); sess != nil && sess.IsOpen() {
		return nil
	}

	c.setStatus(c.cfg.Messages.Reconnecting)
	if err := c.connectLocked(ctx); err != nil {
		c.setError(c.cfg.Messages.ReconnectFailed)
		return err
	}
	return nil
}

// connectLocked dials a new session (must hold lifecycle)
func (c *Controller) connectLocked(ctx context.Context) error {
	c.closeSession()

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.setState(StateConnecting)

	sess, err := c.cfg.Dialer.Dial(ctx, c.cfg.Session, c.callbacks(gen))
	if err != nil {
		if !errors.Is(err, protocol.ErrConnectionFailure) {
			err = fmt.Errorf("%w: %w", protocol.ErrConnectionFailure, err)
		}
		metrics.RecordSession(false)
		metrics.RecordError("connection")
		log.Error().Err(err).Msg("Failed to connect")

		c.update(func(s Status) Status {
			s.State = StateClosed
			return s.withError(join(c.cfg.Messages.ConnectFailed, err.Error()))
		})
		return err
	}

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	metrics.RecordSession(true)
	return nil
}

// closeSession halts capture, then drops the current session and closes it,
// tolerating errors. Callbacks from the old session are ignored from here on.
func (c *Controller) closeSession() {
	if c.currentSession() != nil {
		c.stopCapture()
	}

	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.generation++
	c.mu.Unlock()

	if sess == nil {
		return
	}

	c.setState(StateClosing)
	if err := sess.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing session")
	}
	c.setState(StateClosed)
}

// stopCapture detaches the microphone so no frame reaches a closing session
func (c *Controller) stopCapture() {
	c.pipeline.Stop()
	if c.Status().Recording {
		c.update(func(s Status) Status {
			s.Recording = false
			return s
		})
	}
}

func (c *Controller) currentSession() protocol.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// callbacks binds session events to a generation so stale sessions are ignored
func (c *Controller) callbacks(gen uint64) protocol.Callbacks {
	return protocol.Callbacks{
		OnOpen: func() {
			if !c.isCurrent(gen) {
				return
			}
			c.update(func(s Status) Status {
				s.State = StateOpen
				return s.withStatus(c.cfg.Messages.Listening)
			})
		},
		OnMessage: func(msg *protocol.Message) {
			if !c.isCurrent(gen) {
				return
			}
			c.handleMessage(msg)
		},
		OnError: func(err error) {
			if !c.isCurrent(gen) {
				return
			}
			metrics.RecordError("transport")
			log.Warn().Err(err).Msg("Session error")
			c.setError(join(c.cfg.Messages.TransportError, err.Error()))
		},
		OnClose: func(reason string) {
			if !c.isCurrent(gen) {
				return
			}
			c.update(func(s Status) Status {
				s.State = StateClosed
				return s.withStatus(join(c.cfg.Messages.Closed, reason))
			})
		},
	}
}

// handleMessage plays inline audio, then applies an interruption
func (c *Controller) handleMessage(msg *protocol.Message) {
	if msg.Audio != nil {
		c.playAudio(*msg.Audio)
	}

	if msg.Interrupted {
		stopped := c.cfg.Scheduler.Interrupt()
		metrics.Interruptions.Inc()
		log.Debug().Int("stopped", stopped).Msg("Service interrupted playback")
	}

	if c.cfg.OnTranscript != nil {
		if msg.InputTranscription != "" {
			c.cfg.OnTranscript("user", msg.InputTranscription)
		}
		if msg.OutputTranscription != "" {
			c.cfg.OnTranscript("model", msg.OutputTranscription)
		}
	}

	metrics.ActiveUnits.Set(float64(c.cfg.Scheduler.Active()))
}

func (c *Controller) playAudio(p audio.Payload) {
	rate := c.cfg.ReplySampleRate
	if r, ok := audio.ParsePCMRate(p.MIMEType); ok {
		rate = r
	}

	buf, err := decode.Payload(p, rate, 1)
	switch {
	case errors.Is(err, decode.ErrEmptyPayload):
		log.Debug().Msg("Skipping empty audio payload")
		return
	case err != nil:
		metrics.RecordError("malformed_payload")
		log.Warn().Err(err).Str("mime_type", p.MIMEType).Msg("Failed to decode audio")
		c.setError(join(c.cfg.Messages.PlaybackError, err.Error()))
		return
	}

	metrics.RecordAudioBytes("in", buf.Frames()*2)
	c.cfg.Scheduler.Schedule(buf)
	metrics.UnitsScheduled.Inc()
}

// onCaptureError runs on the capture thread after the pipeline stopped itself
func (c *Controller) onCaptureError(err error) {
	log.Error().Err(err).Msg("Capture stopped after send failure")
	metrics.RecordError("send_failure")
	c.update(func(s Status) Status {
		s.Recording = false
		return s.withError(c.cfg.Messages.SendFailed)
	})
}

func (c *Controller) setStatus(msg string) {
	c.update(func(s Status) Status { return s.withStatus(msg) })
}

func (c *Controller) setError(msg string) {
	c.update(func(s Status) Status { return s.withError(msg) })
}

func (c *Controller) setState(state SessionState) {
	c.update(func(s Status) Status {
		s.State = state
		return s
	})
}

// update applies fn to the status and notifies the observer outside the lock
func (c *Controller) update(fn func(Status) Status) {
	c.mu.Lock()
	c.status = fn(c.status)
	snapshot := c.status
	c.mu.Unlock()

	metrics.SessionState.Set(float64(snapshot.State))
	if snapshot.Error != "" {
		log.Debug().Str("error", snapshot.Error).Msg("Status error")
	} else {
		log.Debug().Str("status", snapshot.Status).Str("state", snapshot.State.String()).Msg("Status")
	}

	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(snapshot)
	}
}
