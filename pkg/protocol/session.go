// ABOUTME: Session abstraction over the realtime voice service
// ABOUTME: Defines the Session, Dialer and callback contracts shared by all transports
package protocol

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
)

const (
	// DefaultBaseURL is the public Live API websocket host
	DefaultBaseURL = "wss://generativelanguage.googleapis.com"

	// LivePath is the bidirectional streaming endpoint
	LivePath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultHandshakeTimeout bounds dial plus setup acknowledgement
	DefaultHandshakeTimeout = 10 * time.Second
)

var (
	// ErrConnectionFailure is returned when a session cannot be established
	ErrConnectionFailure = errors.New("connection failure")

	// ErrSendFailure is returned when a frame cannot be forwarded
	ErrSendFailure = errors.New("send failure")

	// ErrSessionClosed is wrapped into ErrSendFailure when the transport is gone
	ErrSessionClosed = errors.New("session closed")
)

// Config holds the connect-time configuration of a session
type Config struct {
	BaseURL          string
	APIKey           string
	Model            string
	Voice            string
	SystemPrompt     string
	HandshakeTimeout time.Duration
}

// Message is one inbound service event
type Message struct {
	Audio               *audio.Payload
	Text                string
	Interrupted         bool
	TurnComplete        bool
	InputTranscription  string
	OutputTranscription string
}

// Callbacks receive session events. Messages are delivered one at a time in
// transport order from a single goroutine.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(*Message)
	OnError   func(error)
	OnClose   func(reason string)
}

// Session is a live connection to the service
type Session interface {
	// SendRealtimeInput forwards one encoded audio frame
	SendRealtimeInput(frame audio.WireFrame) error
	// IsOpen reports whether the transport can still carry frames
	IsOpen() bool
	// Close tears the connection down; safe to call more than once
	Close() error
}

// Dialer establishes sessions
type Dialer interface {
	Dial(ctx context.Context, cfg Config, cb Callbacks) (Session, error)
}

// EmitOpen invokes OnOpen if set. The Emit helpers let transports fire
// optional callbacks without nil checks.
func (cb Callbacks) EmitOpen() {
	if cb.OnOpen != nil {
		cb.OnOpen()
	}
}

func (cb Callbacks) EmitMessage(msg *Message) {
	if cb.OnMessage != nil {
		cb.OnMessage(msg)
	}
}

func (cb Callbacks) EmitError(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

func (cb Callbacks) EmitClose(reason string) {
	if cb.OnClose != nil {
		cb.OnClose(reason)
	}
}

// modelName prefixes bare model ids with "models/"
func modelName(model string) string {
	if model == "" || strings.Contains(model, "/") {
		return model
	}
	return "models/" + model
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
