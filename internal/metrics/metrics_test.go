// ABOUTME: Tests for metrics recording and the HTTP endpoints
// ABOUTME: Uses prometheus testutil to read counter values
package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSession(t *testing.T) {
	before := testutil.ToFloat64(Sessions.WithLabelValues("error"))
	RecordSession(false)
	after := testutil.ToFloat64(Sessions.WithLabelValues("error"))

	if after-before != 1 {
		t.Errorf("expected error sessions to grow by 1, got %f", after-before)
	}
}

func TestRecordError(t *testing.T) {
	before := testutil.ToFloat64(Errors.WithLabelValues("send_failure"))
	RecordError("send_failure")
	RecordError("send_failure")
	after := testutil.ToFloat64(Errors.WithLabelValues("send_failure"))

	if after-before != 2 {
		t.Errorf("expected 2 new errors, got %f", after-before)
	}
}

func TestRecordAudioBytes(t *testing.T) {
	before := testutil.ToFloat64(AudioBytes.WithLabelValues("out"))
	RecordAudioBytes("out", 512)
	after := testutil.ToFloat64(AudioBytes.WithLabelValues("out"))

	if after-before != 512 {
		t.Errorf("expected 512 bytes, got %f", after-before)
	}
}

func TestHandler(t *testing.T) {
	FramesSent.Inc()
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("got status %q", status.Status)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read metrics: %v", err)
	}
	if !strings.Contains(string(body), "ose_capture_frames_sent_total") {
		t.Error("expected frames sent counter in exposition")
	}
}
