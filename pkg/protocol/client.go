// ABOUTME: WebSocket client for the Live API wire protocol
// ABOUTME: Handles dialing, the setup handshake, frame sending and in-order message dispatch
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Resonate-Protocol/ose-go/internal/logging"
	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeTimeout = 5 * time.Second

// WireDialer speaks the Live API JSON protocol directly over gorilla/websocket
type WireDialer struct{}

// NewWireDialer creates a websocket dialer
func NewWireDialer() *WireDialer {
	return &WireDialer{}
}

// Client is one live websocket session
type Client struct {
	conn   *websocket.Conn
	cb     Callbacks
	logger zerolog.Logger

	mu        sync.Mutex // serializes writes and guards open
	open      bool
	closeOnce sync.Once
	closing   bool
	done      chan struct{}
}

// Endpoint builds the websocket URL for a configuration
func Endpoint(cfg Config) (string, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https", "":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base URL %q has no host", base)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + LivePath
	if cfg.APIKey != "" {
		q := u.Query()
		q.Set("key", cfg.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Dial connects, sends the setup message and waits for setupComplete
func (d *WireDialer) Dial(ctx context.Context, cfg Config, cb Callbacks) (Session, error) {
	endpoint, err := Endpoint(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailure, err)
	}

	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	c := &Client{
		cb:     cb,
		logger: logging.WithSession(""),
		done:   make(chan struct{}),
	}
	c.logger.Info().Str("model", cfg.Model).Msg("Connecting to live service")

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial failed: %w", ErrConnectionFailure, err)
	}
	c.conn = conn

	if err := c.handshake(ctx, cfg, deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrConnectionFailure, err)
	}

	c.mu.Lock()
	c.open = true
	c.mu.Unlock()

	c.logger.Info().Msg("Setup complete")
	cb.EmitOpen()

	go c.readMessages()

	return c, nil
}

// handshake sends setup and blocks until the service acknowledges it
func (c *Client) handshake(ctx context.Context, cfg Config, deadline time.Time) error {
	// Unblock the read below if the caller gives up
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(NewSetupMessage(cfg)); err != nil {
		return fmt.Errorf("failed to send setup: %w", err)
	}
	c.conn.SetWriteDeadline(time.Time{})

	c.conn.SetReadDeadline(deadline)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read setupComplete: %w", err)
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("failed to parse setup response: %w", err)
		}
		if msg.Error != nil {
			return fmt.Errorf("service rejected setup: %d %s", msg.Error.Code, msg.Error.Message)
		}
		if msg.SetupComplete != nil {
			break
		}
		c.logger.Debug().Msg("Ignoring message before setupComplete")
	}
	c.conn.SetReadDeadline(time.Time{}) // Clear deadline

	return nil
}

// readMessages dispatches inbound messages in order until the connection ends
func (c *Client) readMessages() {
	reason := ""
	defer func() {
		c.markClosed()
		c.conn.Close()
		c.logger.Info().Str("reason", reason).Msg("Session closed")
		c.cb.EmitClose(reason)
		close(c.done)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				reason = ce.Text
			} else if !c.isClosing() {
				c.cb.EmitError(fmt.Errorf("read failed: %w", err))
			}
			return
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to parse server message")
			continue
		}

		if msg.Error != nil {
			c.cb.EmitError(fmt.Errorf("service error %d: %s", msg.Error.Code, msg.Error.Message))
			continue
		}
		if msg.ServerContent != nil {
			c.cb.EmitMessage(msg.ServerContent.ToMessage())
		}
	}
}

// SendRealtimeInput sends one encoded audio frame
func (c *Client) SendRealtimeInput(frame audio.WireFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return fmt.Errorf("%w: %w", ErrSendFailure, ErrSessionClosed)
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(NewRealtimeInputMessage(frame)); err != nil {
		c.open = false
		return fmt.Errorf("%w: %w", ErrSendFailure, err)
	}
	return nil
}

// IsOpen reports whether the session can still send
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Close sends a normal closure and waits briefly for the reader to finish
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.open = false
		c.closing = true
		c.mu.Unlock()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); werr != nil &&
			!errors.Is(werr, websocket.ErrCloseSent) {
			err = fmt.Errorf("failed to send close: %w", werr)
		}

		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
			c.conn.Close()
		}
	})
	return err
}

func (c *Client) markClosed() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

func (c *Client) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}
