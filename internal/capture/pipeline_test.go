// ABOUTME: Tests for the capture pipeline
// ABOUTME: Drives frames through fake streams and sessions
package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/encode"
	"github.com/Resonate-Protocol/ose-go/pkg/protocol"
)

type fakeStream struct {
	mu      sync.Mutex
	handler func(audio.SampleBuffer)
	closes  int
	closed  chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{closed: make(chan struct{}, 4)}
}

func (s *fakeStream) SetHandler(fn func(audio.SampleBuffer)) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

func (s *fakeStream) SampleRate() int { return audio.InputSampleRate }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.closed <- struct{}{}
	return nil
}

// push delivers a frame the way the device callback would
func (s *fakeStream) push(frame audio.SampleBuffer) bool {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h(frame)
	return true
}

func (s *fakeStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeSession struct {
	mu      sync.Mutex
	open    bool
	sendErr error
	frames  []audio.WireFrame
}

func (s *fakeSession) SendRealtimeInput(frame audio.WireFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSession) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func testEncoder(t *testing.T) encode.Encoder {
	t.Helper()
	enc, err := encode.NewPCM(audio.InputSampleRate, 1)
	if err != nil {
		t.Fatalf("NewPCM failed: %v", err)
	}
	return enc
}

func frame(value float32) audio.SampleBuffer {
	samples := make([]float32, 256)
	for i := range samples {
		samples[i] = value
	}
	return audio.SampleBuffer{Samples: samples, SampleRate: audio.InputSampleRate, Channels: 1}
}

func TestPipeline_ForwardsWhileRecording(t *testing.T) {
	sess := &fakeSession{open: true}
	p := New(Config{Encoder: testEncoder(t), Session: func() protocol.Session { return sess }})
	stream := newFakeStream()

	if err := p.Start(stream); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	stream.push(frame(0.5))
	stream.push(frame(0.25))

	if sess.sent() != 2 {
		t.Fatalf("expected 2 frames sent, got %d", sess.sent())
	}
	wf := sess.frames[0]
	if wf.MIMEType != "audio/pcm;rate=16000" || len(wf.Data) != 512 {
		t.Errorf("unexpected wire frame: %s, %d bytes", wf.MIMEType, len(wf.Data))
	}
	if lvl := p.Level(); lvl < 0.249 || lvl > 0.251 {
		t.Errorf("expected level 0.25, got %f", lvl)
	}
	if st := p.Stats(); st.Sent != 2 || st.BytesSent != 1024 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestPipeline_DropsWithoutOpenSession(t *testing.T) {
	tests := []struct {
		name    string
		session protocol.Session
	}{
		{"no session", nil},
		{"closed session", &fakeSession{open: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Config{Encoder: testEncoder(t), Session: func() protocol.Session { return tt.session }})
			stream := newFakeStream()
			p.Start(stream)

			stream.push(frame(0.1))
			stream.push(frame(0.1))

			if st := p.Stats(); st.Dropped != 2 || st.Sent != 0 {
				t.Errorf("unexpected stats %+v", st)
			}
			if !p.Recording() {
				t.Error("dropping frames should not stop recording")
			}
		})
	}
}

func TestPipeline_DropsMismatchedFormat(t *testing.T) {
	sess := &fakeSession{open: true}
	p := New(Config{Encoder: testEncoder(t), Session: func() protocol.Session { return sess }})
	stream := newFakeStream()
	p.Start(stream)

	wrong := frame(0.1)
	wrong.SampleRate = 48000
	stream.push(wrong)

	if sess.sent() != 0 {
		t.Errorf("expected 0 frames sent, got %d", sess.sent())
	}
	if st := p.Stats(); st.Dropped != 1 {
		t.Errorf("expected 1 dropped frame, got %d", st.Dropped)
	}
	if !p.Recording() {
		t.Error("expected a bad frame not to stop recording")
	}
}

func TestPipeline_StopIsIdempotent(t *testing.T) {
	sess := &fakeSession{open: true}
	p := New(Config{Encoder: testEncoder(t), Session: func() protocol.Session { return sess }})

	// Safe before Start
	p.Stop()

	stream := newFakeStream()
	p.Start(stream)
	p.Stop()
	p.Stop()

	if stream.closeCount() != 1 {
		t.Errorf("expected stream closed once, got %d", stream.closeCount())
	}
	if p.Recording() {
		t.Error("expected not recording after stop")
	}
	if stream.push(frame(0.5)) {
		t.Error("handler still attached after stop")
	}
	if sess.sent() != 0 {
		t.Errorf("frame forwarded after stop")
	}
}

func TestPipeline_StartTwice(t *testing.T) {
	p := New(Config{Encoder: testEncoder(t)})
	p.Start(newFakeStream())

	if err := p.Start(newFakeStream()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestPipeline_SendFailureStops(t *testing.T) {
	sess := &fakeSession{open: true, sendErr: errors.New("broken pipe")}

	var (
		mu   sync.Mutex
		errs []error
	)
	p := New(Config{
		Encoder: testEncoder(t),
		Session: func() protocol.Session { return sess },
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})
	stream := newFakeStream()
	p.Start(stream)

	stream.push(frame(0.5))

	select {
	case <-stream.closed:
	case <-time.After(time.Second):
		t.Fatal("stream was not closed after send failure")
	}

	if p.Recording() {
		t.Error("expected recording to stop after send failure")
	}
	if stream.push(frame(0.5)) {
		t.Error("handler still attached after send failure")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if !errors.Is(errs[0], protocol.ErrSendFailure) {
		t.Errorf("expected ErrSendFailure, got %v", errs[0])
	}

	// A later Stop does not close the stream again
	p.Stop()
	if stream.closeCount() != 1 {
		t.Errorf("expected stream closed once, got %d", stream.closeCount())
	}
}

func TestPipeline_RestartAfterStop(t *testing.T) {
	sess := &fakeSession{open: true}
	p := New(Config{Encoder: testEncoder(t), Session: func() protocol.Session { return sess }})

	first := newFakeStream()
	p.Start(first)
	p.Stop()

	second := newFakeStream()
	if err := p.Start(second); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	second.push(frame(0.1))

	if sess.sent() != 1 {
		t.Errorf("expected 1 frame after restart, got %d", sess.sent())
	}
}
