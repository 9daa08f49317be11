// ABOUTME: Mock Live API server for local development and tests
// ABOUTME: Serves the bidirectional websocket endpoint, health check and mDNS advertisement
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/ose-go/internal/discovery"
	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/Resonate-Protocol/ose-go/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultChunkDuration is the audio carried by one modelTurn message
	DefaultChunkDuration = 40 * time.Millisecond

	// maxUtterance caps buffered user speech
	maxUtterance = 30 * time.Second
)

// Config holds server configuration
type Config struct {
	Addr       string // listen address, e.g. ":8765"
	Name       string // mDNS instance name
	EnableMDNS bool

	// APIKey, when set, must match the key query parameter or x-goog-api-key header
	APIKey string

	ReplyMode string // echo, tone or file
	ReplyFile string // MP3 or FLAC used in file mode

	InputSampleRate  int
	OutputSampleRate int

	// ChunkDuration is the audio per message; ChunkInterval the pause between
	// messages. A zero interval paces in real time, a negative one disables pacing.
	ChunkDuration time.Duration
	ChunkInterval time.Duration

	VAD VADConfig
}

// Server is the mock live service
type Server struct {
	config   Config
	reply    ReplySource
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
	listener net.Listener
}

// New creates a server, loading the reply source up front
func New(config Config) (*Server, error) {
	if config.InputSampleRate <= 0 {
		config.InputSampleRate = audio.InputSampleRate
	}
	if config.OutputSampleRate <= 0 {
		config.OutputSampleRate = audio.OutputSampleRate
	}
	if config.ChunkDuration <= 0 {
		config.ChunkDuration = DefaultChunkDuration
	}
	if config.ChunkInterval == 0 {
		config.ChunkInterval = config.ChunkDuration
	}
	if config.Name == "" {
		config.Name = "Ose Mock Live"
	}

	reply, err := NewReplySource(config.ReplyMode, config.ReplyFile, config.OutputSampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create reply source: %w", err)
	}

	return &Server{
		config: config,
		reply:  reply,
		upgrader: websocket.Upgrader{
			// Local development server; any origin may connect
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
	}, nil
}

// Handler returns the HTTP handler serving the live endpoint and /health
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(protocol.LivePath, s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok sessions=%d\n", s.Sessions())
	})
	return mux
}

// Sessions returns the number of connected sessions
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Addr returns the bound listen address once Run has started
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	httpServer := &http.Server{Handler: s.Handler()}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Str("reply", s.reply.Describe()).Msg("Mock live server listening")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	if s.config.EnableMDNS {
		mgr := discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        ln.Addr().(*net.TCPAddr).Port,
		})
		if err := mgr.Advertise(); err != nil {
			log.Warn().Err(err).Msg("Failed to start mDNS advertisement")
		} else {
			defer mgr.Stop()
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown
		s.closeSessions()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown error")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("Mock live server stopped")
	return err
}

// handleWebSocket upgrades and runs one live session
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		key = r.Header.Get("x-goog-api-key")
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	sess := newSession(s, conn)
	sess.logger.Info().Str("remote", r.RemoteAddr).Msg("New live connection")

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
	}()

	if err := sess.run(r.Context(), key); err != nil {
		sess.logger.Debug().Err(err).Msg("Session ended")
	}
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.closeConn()
	}
}
