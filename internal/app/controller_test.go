// ABOUTME: Tests for the session lifecycle controller
// ABOUTME: Uses fake dialers, sessions and microphones with a real playback scheduler
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/ose-go/internal/config"
	"github.com/Resonate-Protocol/ose-go/internal/player"
	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/input"
	"github.com/Resonate-Protocol/ose-go/pkg/protocol"
)

var testMessages = config.Messages{
	Listening:        "listening",
	TransportError:   "transport error:",
	Closed:           "closed:",
	ConnectFailed:    "connect failed:",
	Reconnecting:     "reconnecting",
	ReconnectFailed:  "reconnect failed",
	Starting:         "starting",
	Recording:        "recording",
	SendFailed:       "send failed",
	PermissionDenied: "permission denied",
	MicrophoneError:  "microphone error:",
	Stopped:          "stopped",
	Reset:            "reset",
	PlaybackError:    "playback error:",
}

type fakeSession struct {
	mu      sync.Mutex
	open    bool
	sendErr error
	frames  int
	closes  int
	cb      protocol.Callbacks
}

func (s *fakeSession) SendRealtimeInput(frame audio.WireFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.frames++
	return nil
}

func (s *fakeSession) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	wasOpen := s.open
	s.open = false
	s.closes++
	s.mu.Unlock()
	if wasOpen {
		s.cb.EmitClose("client closed")
	}
	return nil
}

func (s *fakeSession) setOpen(open bool) {
	s.mu.Lock()
	s.open = open
	s.mu.Unlock()
}

func (s *fakeSession) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

type fakeDialer struct {
	mu       sync.Mutex
	err      error
	sessions []*fakeSession
}

func (d *fakeDialer) Dial(ctx context.Context, cfg protocol.Config, cb protocol.Callbacks) (protocol.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	sess := &fakeSession{open: true, cb: cb}
	d.sessions = append(d.sessions, sess)
	cb.EmitOpen()
	return sess, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *fakeDialer) last() *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[len(d.sessions)-1]
}

type fakeStream struct {
	mu      sync.Mutex
	handler func(audio.SampleBuffer)
	closed  chan struct{}
}

func (s *fakeStream) SetHandler(fn func(audio.SampleBuffer)) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

func (s *fakeStream) SampleRate() int { return audio.InputSampleRate }

func (s *fakeStream) Close() error {
	s.closed <- struct{}{}
	return nil
}

func (s *fakeStream) push() {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(audio.SampleBuffer{Samples: []float32{0.25, -0.25}, SampleRate: audio.InputSampleRate, Channels: 1})
	}
}

type fakeMicrophone struct {
	err     error
	opens   int
	streams []*fakeStream
}

func (m *fakeMicrophone) Open() (input.Stream, error) {
	m.opens++
	if m.err != nil {
		return nil, m.err
	}
	s := &fakeStream{closed: make(chan struct{}, 4)}
	m.streams = append(m.streams, s)
	return s, nil
}

type harness struct {
	ctrl      *Controller
	dialer    *fakeDialer
	mic       *fakeMicrophone
	scheduler *player.Scheduler

	mu          sync.Mutex
	transcripts []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dialer:    &fakeDialer{},
		mic:       &fakeMicrophone{},
		scheduler: player.NewScheduler(player.NewTimeline(audio.OutputSampleRate, 1, nil)),
	}
	ctrl, err := New(Config{
		Dialer:     h.dialer,
		Microphone: h.mic,
		Scheduler:  h.scheduler,
		Messages:   testMessages,
		OnTranscript: func(role, text string) {
			h.mu.Lock()
			h.transcripts = append(h.transcripts, role+":"+text)
			h.mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.ctrl = ctrl
	t.Cleanup(h.ctrl.Close)
	return h
}

func TestConnect_Success(t *testing.T) {
	h := newHarness(t)

	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	st := h.ctrl.Status()
	if st.State != StateOpen {
		t.Errorf("expected state open, got %s", st.State)
	}
	if st.Status != "listening" || st.Error != "" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestConnect_Failure(t *testing.T) {
	h := newHarness(t)
	h.dialer.err = errors.New("no route")

	err := h.ctrl.Connect(context.Background())
	if !errors.Is(err, protocol.ErrConnectionFailure) {
		t.Fatalf("expected ErrConnectionFailure, got %v", err)
	}

	st := h.ctrl.Status()
	if st.State != StateClosed {
		t.Errorf("expected state closed, got %s", st.State)
	}
	if !strings.HasPrefix(st.Error, "connect failed: ") || !strings.Contains(st.Error, "no route") {
		t.Errorf("unexpected error text %q", st.Error)
	}
	if st.Status != "" {
		t.Errorf("status should be cleared, got %q", st.Status)
	}
}

func TestConnect_ReplacesExistingSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Connect(ctx)
	first := h.dialer.last()
	h.ctrl.Connect(ctx)

	if first.IsOpen() {
		t.Error("first session should be closed")
	}
	// The first session's close callback must not clobber the new state
	if st := h.ctrl.Status(); st.Status != "listening" || st.State != StateOpen {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestConnect_StopsCaptureFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	first := h.dialer.last()
	stream := h.mic.streams[0]

	if err := h.ctrl.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-stream.closed:
	default:
		t.Error("expected microphone stream closed before the session")
	}
	if first.IsOpen() {
		t.Error("expected first session closed")
	}
	if st := h.ctrl.Status(); st.Recording {
		t.Errorf("expected recording cleared, got %+v", st)
	}

	// The old tap must not feed the new session
	stream.push()
	if got := h.dialer.last().sent(); got != 0 {
		t.Errorf("expected 0 frames on the new session, got %d", got)
	}
	if err := h.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if h.mic.opens != 2 {
		t.Errorf("expected microphone reopened, got %d opens", h.mic.opens)
	}
}

func TestStartRecording_ForwardsFrames(t *testing.T) {
	h := newHarness(t)

	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}

	st := h.ctrl.Status()
	if !st.Recording || st.Status != "recording" {
		t.Errorf("unexpected status %+v", st)
	}
	if h.dialer.dials() != 1 {
		t.Errorf("expected 1 dial, got %d", h.dialer.dials())
	}

	h.mic.streams[0].push()
	h.mic.streams[0].push()
	if got := h.dialer.last().sent(); got != 2 {
		t.Errorf("expected 2 frames sent, got %d", got)
	}
	if stats := h.ctrl.CaptureStats(); stats.Sent != 2 {
		t.Errorf("expected 2 in stats, got %d", stats.Sent)
	}
}

func TestStartRecording_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.StartRecording(ctx)
	h.ctrl.StartRecording(ctx)

	if h.mic.opens != 1 {
		t.Errorf("expected microphone opened once, got %d", h.mic.opens)
	}
	if h.dialer.dials() != 1 {
		t.Errorf("expected 1 dial, got %d", h.dialer.dials())
	}
}

func TestStartRecording_MicrophoneErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"permission", input.ErrPermissionDenied, "permission denied"},
		{"wrapped permission", errors.Join(errors.New("device"), input.ErrPermissionDenied), "permission denied"},
		{"other", errors.New("no device"), "microphone error: no device"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.mic.err = tt.err

			if err := h.ctrl.StartRecording(context.Background()); err == nil {
				t.Fatal("expected error")
			}

			st := h.ctrl.Status()
			if st.Error != tt.want {
				t.Errorf("expected error %q, got %q", tt.want, st.Error)
			}
			if st.Recording {
				t.Error("should not be recording")
			}
		})
	}
}

func TestStartRecording_ReconnectsClosedSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Connect(ctx)
	h.dialer.last().setOpen(false)

	if err := h.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if h.dialer.dials() != 2 {
		t.Errorf("expected a reconnect, got %d dials", h.dialer.dials())
	}
}

func TestStartRecording_ReconnectFailure(t *testing.T) {
	h := newHarness(t)
	h.dialer.err = errors.New("offline")

	err := h.ctrl.StartRecording(context.Background())
	if !errors.Is(err, protocol.ErrConnectionFailure) {
		t.Fatalf("expected ErrConnectionFailure, got %v", err)
	}
	if st := h.ctrl.Status(); st.Error != "reconnect failed" {
		t.Errorf("expected reconnect failure, got %+v", st)
	}
	if h.mic.opens != 0 {
		t.Error("microphone should not be opened without a session")
	}
}

func TestSendFailure_StopsRecording(t *testing.T) {
	h := newHarness(t)
	h.ctrl.StartRecording(context.Background())

	sess := h.dialer.last()
	sess.mu.Lock()
	sess.sendErr = errors.New("broken pipe")
	sess.mu.Unlock()

	stream := h.mic.streams[0]
	stream.push()

	select {
	case <-stream.closed:
	case <-time.After(time.Second):
		t.Fatal("stream was not closed")
	}

	st := h.ctrl.Status()
	if st.Recording {
		t.Error("should have stopped recording")
	}
	if st.Error != "send failed" {
		t.Errorf("expected send failure, got %q", st.Error)
	}

	// Stopping again is harmless and keeps the error visible
	h.ctrl.StopRecording()
	if got := h.ctrl.Status().Error; got != "send failed" {
		t.Errorf("error was cleared: %q", got)
	}
}

func TestStopRecording(t *testing.T) {
	h := newHarness(t)
	h.ctrl.StartRecording(context.Background())

	h.ctrl.StopRecording()

	select {
	case <-h.mic.streams[0].closed:
	case <-time.After(time.Second):
		t.Fatal("stream was not closed")
	}

	st := h.ctrl.Status()
	if st.Recording || st.Status != "stopped" {
		t.Errorf("unexpected status %+v", st)
	}
	if st.State != StateOpen {
		t.Errorf("session should stay open, got %s", st.State)
	}
}

func TestReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ctrl.StartRecording(ctx)
	h.ctrl.handleMessage(&protocol.Message{Audio: &audio.Payload{MIMEType: "audio/pcm;rate=24000", Base64: "AQACAA=="}})

	first := h.dialer.last()
	h.ctrl.Reset()

	if first.IsOpen() {
		t.Error("session should be closed")
	}
	st := h.ctrl.Status()
	if st.Recording || st.Status != "reset" || st.State != StateClosed {
		t.Errorf("unexpected status %+v", st)
	}
	if h.scheduler.Active() != 0 {
		t.Errorf("expected playback stopped, %d active", h.scheduler.Active())
	}

	h.ctrl.StartRecording(ctx)
	if h.dialer.dials() != 2 {
		t.Errorf("expected fresh session after reset, got %d dials", h.dialer.dials())
	}
}

func TestReset_WithoutSession(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Reset()
	if st := h.ctrl.Status(); st.Status != "reset" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestCallbacks_UpdateStatus(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Connect(context.Background())
	sess := h.dialer.last()

	sess.cb.EmitError(errors.New("quota"))
	if st := h.ctrl.Status(); st.Error != "transport error: quota" || st.Status != "" {
		t.Errorf("unexpected status after error %+v", st)
	}

	sess.cb.EmitClose("going away")
	st := h.ctrl.Status()
	if st.Status != "closed: going away" || st.Error != "" {
		t.Errorf("unexpected status after close %+v", st)
	}
	if st.State != StateClosed {
		t.Errorf("expected state closed, got %s", st.State)
	}
}

func TestCallbacks_StaleSessionIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ctrl.Connect(ctx)
	stale := h.dialer.last()
	h.ctrl.Connect(ctx)

	stale.cb.EmitError(errors.New("late"))
	stale.cb.EmitMessage(&protocol.Message{Audio: &audio.Payload{MIMEType: "audio/pcm", Base64: "AQACAA=="}})

	if st := h.ctrl.Status(); st.Error != "" {
		t.Errorf("stale error leaked: %q", st.Error)
	}
	if h.scheduler.Active() != 0 {
		t.Error("stale audio should not be scheduled")
	}
}

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name      string
		msg       *protocol.Message
		scheduled int64
		wantError string
	}{
		{
			name:      "pcm audio",
			msg:       &protocol.Message{Audio: &audio.Payload{MIMEType: "audio/pcm;rate=24000", Base64: "AQACAA=="}},
			scheduled: 1,
		},
		{
			name:      "binary audio without rate",
			msg:       &protocol.Message{Audio: &audio.Payload{MIMEType: "audio/pcm", Binary: []byte{1, 0, 2, 0}}},
			scheduled: 1,
		},
		{
			name: "empty payload skipped",
			msg:  &protocol.Message{Audio: &audio.Payload{MIMEType: "audio/pcm"}},
		},
		{
			name:      "malformed base64",
			msg:       &protocol.Message{Audio: &audio.Payload{MIMEType: "audio/pcm", Base64: "!!!"}},
			wantError: "playback error:",
		},
		{
			name: "text only",
			msg:  &protocol.Message{Text: "hello"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.ctrl.handleMessage(tt.msg)

			if got := h.scheduler.Stats().Scheduled; got != tt.scheduled {
				t.Errorf("expected %d scheduled, got %d", tt.scheduled, got)
			}
			st := h.ctrl.Status()
			if tt.wantError == "" && st.Error != "" {
				t.Errorf("unexpected error %q", st.Error)
			}
			if tt.wantError != "" && !strings.HasPrefix(st.Error, tt.wantError) {
				t.Errorf("expected error prefix %q, got %q", tt.wantError, st.Error)
			}
		})
	}
}

func TestHandleMessage_Interrupted(t *testing.T) {
	h := newHarness(t)
	chunk := &protocol.Message{Audio: &audio.Payload{MIMEType: "audio/pcm;rate=24000", Base64: "AQACAA=="}}

	h.ctrl.handleMessage(chunk)
	h.ctrl.handleMessage(chunk)
	if h.scheduler.Active() != 2 {
		t.Fatalf("expected 2 active units, got %d", h.scheduler.Active())
	}

	h.ctrl.handleMessage(&protocol.Message{Interrupted: true})
	if h.scheduler.Active() != 0 {
		t.Errorf("expected all units stopped, %d active", h.scheduler.Active())
	}
	if h.scheduler.Cursor() != 0 {
		t.Errorf("expected cursor reset, got %v", h.scheduler.Cursor())
	}
}

func TestHandleMessage_Transcripts(t *testing.T) {
	h := newHarness(t)
	h.ctrl.handleMessage(&protocol.Message{InputTranscription: "hi", OutputTranscription: "hello there"})

	h.mu.Lock()
	defer h.mu.Unlock()
	want := []string{"user:hi", "model:hello there"}
	if len(h.transcripts) != len(want) {
		t.Fatalf("expected %v, got %v", want, h.transcripts)
	}
	for i := range want {
		if h.transcripts[i] != want[i] {
			t.Errorf("transcript %d: expected %q, got %q", i, want[i], h.transcripts[i])
		}
	}
}

func TestSessionState_String(t *testing.T) {
	tests := map[SessionState]string{
		StateUninitialized: "uninitialized",
		StateConnecting:    "connecting",
		StateOpen:          "open",
		StateClosing:       "closing",
		StateClosed:        "closed",
		SessionState(42):   "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d: expected %q, got %q", state, want, got)
		}
	}
}
