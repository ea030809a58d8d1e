package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"babybot/pkg/bus"
)

func TestObserveCountsOutcomes(t *testing.T) {
	m := New()

	m.Observe(bus.Event{Type: bus.EventHandled, Kind: "message"})
	m.Observe(bus.Event{Type: bus.EventHandled, Kind: "message"})
	m.Observe(bus.Event{Type: bus.EventIgnored, Kind: "message"})
	m.Observe(bus.Event{Type: bus.EventFailed, Kind: "beacon"})
	m.Observe(bus.Event{Type: bus.EventFailed})
	m.Observe(bus.Event{Type: bus.ReplySent})
	m.Observe(bus.Event{Type: bus.MediaStored, Bytes: 2048})
	m.Observe(bus.Event{Type: bus.RecordSaved, Category: "milk"})
	m.Observe(bus.Event{Type: bus.EventReceived, Kind: "message"})

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"message ok", testutil.ToFloat64(m.events.WithLabelValues("message", StatusOK)), 2},
		{"message ignored", testutil.ToFloat64(m.events.WithLabelValues("message", StatusIgnored)), 1},
		{"beacon error", testutil.ToFloat64(m.events.WithLabelValues("beacon", StatusError)), 1},
		{"unknown error", testutil.ToFloat64(m.events.WithLabelValues("unknown", StatusError)), 1},
		{"replies", testutil.ToFloat64(m.replies), 1},
		{"media bytes", testutil.ToFloat64(m.mediaBytes), 2048},
		{"milk records", testutil.ToFloat64(m.records.WithLabelValues("milk")), 1},
	}
	for _, check := range checks {
		if check.got != check.want {
			t.Fatalf("%s = %v, want %v", check.name, check.got, check.want)
		}
	}
}

func TestRunConsumesBus(t *testing.T) {
	m := New()
	b := bus.New()
	t.Cleanup(b.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := b.SubscribeEvents(ctx, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx, events)
	}()

	b.PublishEvent(ctx, bus.Event{Type: bus.ReplySent})
	deadline := time.Now().Add(time.Second)
	for testutil.ToFloat64(m.replies) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("replies counter was not updated")
		}
		time.Sleep(10 * time.Millisecond)
	}

	unsubscribe()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the subscription closed")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Observe(bus.Event{Type: bus.RecordSaved, Category: "sleep"})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `babybot_records_total{category="sleep"} 1`) {
		t.Fatalf("metrics output missing records counter:\n%s", body)
	}
}
