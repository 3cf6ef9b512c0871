package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/omochice/toy-chat-client/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func TestCollector_NilIsNoop(t *testing.T) {
	var c *metrics.Collector

	// Should not panic
	c.FrameReceived("text")
	c.FrameDropped()
	c.LineDisplayed()
	c.MessageSent()
	c.SendDropped()
	c.StateChanged("connected")
}

func TestHandler_ExposesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg)

	c.FrameReceived("binary")
	c.FrameDropped()
	c.MessageSent()
	c.StateChanged("connected")

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	for _, want := range []string{
		`chat_client_frames_received_total{kind="binary"} 1`,
		`chat_client_frames_dropped_total 1`,
		`chat_client_messages_sent_total 1`,
		`chat_client_state_transitions_total{state="connected"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
