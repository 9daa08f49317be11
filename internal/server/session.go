// ABOUTME: One mock live session: setup handshake, VAD-driven turns and barge-in
// ABOUTME: A single writer goroutine owns the connection; readers and replies enqueue
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/ose-go/internal/logging"
	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/encode"
	"github.com/Resonate-Protocol/ose-go/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	setupTimeout  = 10 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

var errClientGone = errors.New("client disconnected")

type session struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan any
	logger zerolog.Logger

	// owned by the read loop
	vad           *VAD
	utterance     []float32
	utteranceRate int

	replyMu     sync.Mutex
	replyCancel context.CancelFunc
	replyDone   chan struct{}

	closeOnce sync.Once
}

func newSession(server *Server, conn *websocket.Conn) *session {
	id := logging.NewSessionID()
	return &session{
		id:     id,
		server: server,
		conn:   conn,
		send:   make(chan any, 64),
		logger: logging.WithSession(id),
		vad:    NewVAD(server.config.VAD),
	}
}

// run performs the handshake then serves the session until the client leaves
func (s *session) run(ctx context.Context, key string) error {
	defer s.closeConn()

	if err := s.handshake(key); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.writeLoop(ctx)
	})
	g.Go(func() error {
		defer s.interruptReply()
		return s.readLoop(ctx)
	})
	g.Go(func() error {
		// unblocks the reader when the writer fails or the server stops
		<-ctx.Done()
		s.closeConn()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errClientGone) {
		return err
	}
	return nil
}

// handshake validates setup and acknowledges it. Writes here happen before
// the writer goroutine starts.
func (s *session) handshake(key string) error {
	s.conn.SetReadDeadline(time.Now().Add(setupTimeout))
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read setup: %w", err)
	}
	s.conn.SetReadDeadline(time.Time{})

	var msg protocol.SetupMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reject(400, "INVALID_ARGUMENT", "setup message is not valid JSON")
		return fmt.Errorf("failed to parse setup: %w", err)
	}

	if s.server.config.APIKey != "" && key != s.server.config.APIKey {
		s.reject(401, "UNAUTHENTICATED", "API key not valid")
		return errors.New("invalid API key")
	}
	if msg.Setup.Model == "" {
		s.reject(400, "INVALID_ARGUMENT", "setup.model is required")
		return errors.New("setup without model")
	}

	voice := ""
	if sc := msg.Setup.GenerationConfig.SpeechConfig; sc != nil {
		voice = sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName
	}
	s.logger.Info().Str("model", msg.Setup.Model).Str("voice", voice).Msg("Setup received")

	complete := json.RawMessage("{}")
	return s.write(protocol.ServerMessage{SetupComplete: &complete})
}

func (s *session) reject(code int, status, message string) {
	s.logger.Warn().Int("code", code).Str("message", message).Msg("Rejecting setup")
	s.write(protocol.ServerMessage{Error: &protocol.ServerError{Code: code, Status: status, Message: message}})
	closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message)
	s.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
}

func (s *session) write(msg any) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return s.conn.WriteJSON(msg)
}

// writeLoop is the only writer after the handshake
func (s *session) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-s.send:
			if err := s.write(msg); err != nil {
				return fmt.Errorf("write failed: %w", err)
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
		}
	}
}

// enqueue hands a message to the writer
func (s *session) enqueue(ctx context.Context, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.send <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) readLoop(ctx context.Context) error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return errClientGone
		}

		var msg protocol.RealtimeInputMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to parse client message")
			continue
		}

		for _, blob := range msg.RealtimeInput.Blobs() {
			if err := s.handleAudio(ctx, blob); err != nil {
				return err
			}
		}
	}
}

// handleAudio runs one inbound chunk through the VAD and drives turns
func (s *session) handleAudio(ctx context.Context, blob protocol.Blob) error {
	rate := s.server.config.InputSampleRate
	if r, ok := audio.ParsePCMRate(blob.MIMEType); ok {
		rate = r
	}

	buf, err := decode.Payload(audio.Payload{MIMEType: blob.MIMEType, Base64: blob.Data}, rate, 1)
	if err != nil {
		if !errors.Is(err, decode.ErrEmptyPayload) {
			s.logger.Warn().Err(err).Msg("Dropping undecodable input chunk")
		}
		return nil
	}
	samples := buf.Data[0]

	speaking, started, ended := s.vad.Process(samples)

	if started {
		s.utterance = s.utterance[:0]
		s.utteranceRate = rate
		if s.interruptReply() {
			s.logger.Info().Msg("Barge-in, interrupting reply")
			if err := s.enqueue(ctx, protocol.ServerMessage{
				ServerContent: &protocol.ServerContent{Interrupted: true},
			}); err != nil {
				return err
			}
		}
	}

	if speaking || ended {
		if len(s.utterance) < int(maxUtterance.Seconds())*rate {
			s.utterance = append(s.utterance, samples...)
		}
	}

	if ended {
		utterance := make([]float32, len(s.utterance))
		copy(utterance, s.utterance)
		s.utterance = s.utterance[:0]
		s.startReply(ctx, &audio.Buffer{SampleRate: s.utteranceRate, Data: [][]float32{utterance}})
	}
	return nil
}

// startReply renders the answer and streams it on its own goroutine
func (s *session) startReply(ctx context.Context, utterance *audio.Buffer) {
	s.logger.Info().Float64("seconds", utterance.Duration()).Msg("Utterance complete")

	out, err := s.server.reply.Reply(utterance)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to build reply")
		return
	}

	wire, err := encode.PCM(audio.SampleBuffer{Samples: out.Data[0], SampleRate: out.SampleRate, Channels: 1})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode reply")
		return
	}

	s.interruptReply()

	replyCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.replyMu.Lock()
	s.replyCancel = cancel
	s.replyDone = done
	s.replyMu.Unlock()

	go func() {
		defer close(done)
		defer s.finishReply(done)
		defer cancel()
		s.streamReply(replyCtx, wire, out.SampleRate)
	}()
}

// streamReply sends paced modelTurn chunks followed by turnComplete
func (s *session) streamReply(ctx context.Context, wire audio.WireFrame, rate int) {
	cfg := s.server.config
	chunkBytes := int(cfg.ChunkDuration.Seconds()*float64(rate)) * 2
	if chunkBytes < 2 {
		chunkBytes = 2
	}

	if err := s.enqueue(ctx, protocol.ServerMessage{ServerContent: &protocol.ServerContent{
		OutputTranscription: &protocol.Transcription{Text: s.server.reply.Describe()},
	}}); err != nil {
		return
	}

	var tick <-chan time.Time
	if cfg.ChunkInterval > 0 {
		ticker := time.NewTicker(cfg.ChunkInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	chunks := 0
	for off := 0; off < len(wire.Data); off += chunkBytes {
		end := min(off+chunkBytes, len(wire.Data))
		msg := protocol.ServerMessage{ServerContent: &protocol.ServerContent{
			ModelTurn: &protocol.Content{Parts: []protocol.Part{{
				InlineData: &protocol.Blob{
					MIMEType: wire.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(wire.Data[off:end]),
				},
			}}},
		}}
		if err := s.enqueue(ctx, msg); err != nil {
			s.logger.Debug().Int("chunks", chunks).Msg("Reply cancelled")
			return
		}
		chunks++

		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				s.logger.Debug().Int("chunks", chunks).Msg("Reply cancelled")
				return
			}
		}
	}

	if err := s.enqueue(ctx, protocol.ServerMessage{
		ServerContent: &protocol.ServerContent{TurnComplete: true},
	}); err == nil {
		s.logger.Info().Int("chunks", chunks).Msg("Reply complete")
	}
}

// interruptReply cancels a running reply and waits for it to stop enqueueing.
// It reports whether a reply was active.
func (s *session) interruptReply() bool {
	s.replyMu.Lock()
	cancel, done := s.replyCancel, s.replyDone
	s.replyCancel, s.replyDone = nil, nil
	s.replyMu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

func (s *session) finishReply(done chan struct{}) {
	s.replyMu.Lock()
	defer s.replyMu.Unlock()
	if s.replyDone == done {
		s.replyCancel, s.replyDone = nil, nil
	}
}

func (s *session) closeConn() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}
