// ABOUTME: Live session transport backed by the genai SDK
// ABOUTME: Adapts genai.Session to the protocol.Session contract
package genailive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Resonate-Protocol/ose-go/internal/logging"
	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/Resonate-Protocol/ose-go/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// APIVersion is the Live API version the SDK connects to
const APIVersion = "v1beta"

// Dialer opens sessions through genai's Live client
type Dialer struct{}

// NewDialer creates a genai-backed dialer
func NewDialer() *Dialer {
	return &Dialer{}
}

// Session wraps a genai live session
type Session struct {
	sess   *genai.Session
	cb     protocol.Callbacks
	logger zerolog.Logger

	mu      sync.Mutex
	open    bool
	closing bool
	once    sync.Once
	done    chan struct{}
}

// Dial connects and blocks until the service acknowledges setup
func (d *Dialer) Dial(ctx context.Context, cfg protocol.Config, cb protocol.Callbacks) (protocol.Session, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = protocol.DefaultBaseURL
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create client: %w", protocol.ErrConnectionFailure, err)
	}

	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = protocol.DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s := &Session{
		cb:     cb,
		logger: logging.WithSession(""),
		done:   make(chan struct{}),
	}
	s.logger.Info().Str("model", cfg.Model).Msg("Connecting to live service via genai")

	sess, err := client.Live.Connect(ctx, cfg.Model, liveConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrConnectionFailure, err)
	}
	s.sess = sess

	if err := s.awaitSetup(ctx); err != nil {
		sess.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", protocol.ErrConnectionFailure, err)
	}

	s.mu.Lock()
	s.open = true
	s.mu.Unlock()

	cb.EmitOpen()
	go s.receiveLoop()

	return s, nil
}

// liveConfig maps a session configuration to genai's connect options
func liveConfig(cfg protocol.Config) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemPrompt != "" {
		lc.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemPrompt}},
		}
	}
	return lc
}

// awaitSetup reads until setupComplete. Receive has no context so the
// session is closed when ctx expires to unblock it.
func (s *Session) awaitSetup(ctx context.Context) error {
	result := make(chan error, 1)
	go func() {
		for {
			msg, err := s.sess.Receive()
			if err != nil {
				result <- err
				return
			}
			if msg.SetupComplete != nil {
				result <- nil
				return
			}
		}
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		s.sess.Close()
		<-result
		return ctx.Err()
	}
}

func (s *Session) receiveLoop() {
	reason := ""
	defer func() {
		s.mu.Lock()
		s.open = false
		s.mu.Unlock()
		s.sess.Close()
		s.logger.Info().Str("reason", reason).Msg("Session closed")
		s.cb.EmitClose(reason)
		close(s.done)
	}()

	for {
		msg, err := s.sess.Receive()
		if err != nil {
			if isMessageError(err) {
				// The connection survives a bad or error message
				s.cb.EmitError(err)
				continue
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				reason = ce.Text
			} else if !s.isClosing() {
				s.cb.EmitError(fmt.Errorf("receive failed: %w", err))
			}
			return
		}

		if msg.GoAway != nil {
			s.logger.Warn().Msg("Service announced disconnect")
		}
		if msg.ServerContent != nil {
			s.cb.EmitMessage(toMessage(msg.ServerContent))
		}
	}
}

// isMessageError reports errors the SDK raises for a single bad message.
// Anything else came from the connection itself.
func isMessageError(err error) bool {
	var ce *websocket.CloseError
	var ne net.Error
	if errors.As(err, &ce) || errors.As(err, &ne) || errors.Is(err, net.ErrClosed) {
		return false
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "received error in response") ||
		strings.HasPrefix(msg, "invalid message format")
}

// toMessage converts SDK server content to a transport-neutral message
func toMessage(sc *genai.LiveServerContent) *protocol.Message {
	msg := &protocol.Message{
		Interrupted:  sc.Interrupted,
		TurnComplete: sc.TurnComplete,
	}
	if sc.InputTranscription != nil {
		msg.InputTranscription = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		msg.OutputTranscription = sc.OutputTranscription.Text
	}
	if sc.ModelTurn == nil {
		return msg
	}
	for _, p := range sc.ModelTurn.Parts {
		if p == nil {
			continue
		}
		msg.Text += p.Text
		if p.InlineData != nil && msg.Audio == nil {
			msg.Audio = &audio.Payload{
				MIMEType: p.InlineData.MIMEType,
				Binary:   p.InlineData.Data,
			}
		}
	}
	return msg
}

// SendRealtimeInput forwards one encoded frame as a media blob
func (s *Session) SendRealtimeInput(frame audio.WireFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return fmt.Errorf("%w: %w", protocol.ErrSendFailure, protocol.ErrSessionClosed)
	}

	err := s.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: frame.Data, MIMEType: frame.MIMEType},
	})
	if err != nil {
		s.open = false
		return fmt.Errorf("%w: %w", protocol.ErrSendFailure, err)
	}
	return nil
}

// IsOpen reports whether frames can still be sent
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Close drops the connection. The SDK closes without a close frame.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.open = false
		s.closing = true
		s.mu.Unlock()

		if cerr := s.sess.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
		}
	})
	return err
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}
