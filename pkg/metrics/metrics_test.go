package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/teslashibe/go-daltonize/pkg/deficiency"
	"github.com/teslashibe/go-daltonize/pkg/recolor"
	"github.com/teslashibe/go-daltonize/pkg/session"
)

var _ session.Observer = (*Metrics)(nil)

func TestFrameCounters(t *testing.T) {
	m := New()

	m.FrameProcessed(deficiency.Deutan, 20*time.Millisecond)
	m.FrameProcessed(deficiency.Deutan, 30*time.Millisecond)
	m.FrameFailed(recolor.KindInput)
	m.FrameDropped("superseded")
	m.FrameDropped("superseded")
	m.FrameDropped("throttled")

	if got := testutil.ToFloat64(m.framesTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok frames = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.framesTotal.WithLabelValues("input")); got != 1 {
		t.Errorf("input failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.framesDropped.WithLabelValues("superseded")); got != 2 {
		t.Errorf("superseded = %v, want 2", got)
	}
	if testutil.CollectAndCount(m.frameDuration) == 0 {
		t.Error("expected histogram observations")
	}
}

func TestSessionGauge(t *testing.T) {
	m := New()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed("idle")

	if got := testutil.ToFloat64(m.sessionsActive); got != 1 {
		t.Errorf("open sessions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sessionsClosed.WithLabelValues("idle")); got != 1 {
		t.Errorf("idle closes = %v, want 1", got)
	}
}

func TestStillRequest(t *testing.T) {
	m := New()
	m.StillRequest(deficiency.Protan, 10*time.Millisecond, nil)
	m.StillRequest(deficiency.Protan, 0, &recolor.InputError{Err: errors.New("bad")})
	m.StillRequest(deficiency.Protan, 0, &recolor.ResourceError{Err: errors.New("big")})

	for status, want := range map[string]float64{"ok": 1, "input": 1, "resource": 1} {
		if got := testutil.ToFloat64(m.stillRequests.WithLabelValues(status)); got != want {
			t.Errorf("%s = %v, want %v", status, got, want)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.FrameProcessed(deficiency.Tritan, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, name := range []string{"daltonize_frames_total", "daltonize_frame_duration_seconds", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
