package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"envwatch/internal/anomaly"
)

func sampleNotification() Notification {
	start := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	return Notification{
		AnalysisID: "abc",
		StationID:  "Station-Kyiv-Center",
		Pollutant:  "NO2",
		P95:        41.2,
		Params:     anomaly.Config{WindowSize: 120, ThresholdMultiplier: 3, MinEventDuration: 10},
		Events: []anomaly.Event{
			{StartTime: start, EndTime: start.Add(3 * time.Hour), Duration: 12, MaxValue: 250.4, AvgValue: 180},
		},
		DetectedAt: start,
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("telegram notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "Station-Kyiv-Center") {
		t.Fatalf("text should mention the station: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification()); err == nil {
		t.Fatal("ok=false should be reported as an error")
	}
}

func TestRenderMessage(t *testing.T) {
	msg := renderMessage(sampleNotification())
	for _, want := range []string{
		"Pollutant: NO2",
		"Events: 1 (p95 41.20)",
		"k=3.00",
		"12 points, max 250.40, avg 180.00",
		"Analysis: abc",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestRenderMessageTruncatesEvents(t *testing.T) {
	note := sampleNotification()
	for len(note.Events) < maxListedEvents+3 {
		note.Events = append(note.Events, note.Events[0])
	}
	msg := renderMessage(note)
	if !strings.Contains(msg, "... and 3 more") {
		t.Fatalf("expected truncation marker:\n%s", msg)
	}
}

func TestEncodeNotification(t *testing.T) {
	body, err := encodeNotification(sampleNotification())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["analysisId"] != "abc" || decoded["pollutant"] != "NO2" {
		t.Fatalf("unexpected payload %v", decoded)
	}
	events, ok := decoded["detectedAnomalies"].([]any)
	if !ok || len(events) != 1 {
		t.Fatalf("expected one event in payload, got %v", decoded["detectedAnomalies"])
	}
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(ctx context.Context, note Notification) error {
	r.calls++
	return r.err
}

func TestFanoutContinuesAfterFailure(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("boom")}
	ok := &recordingNotifier{}
	fan := Fanout{{Name: "telegram", Notifier: failing}, {Name: "amqp", Notifier: ok}}

	err := fan.Notify(context.Background(), sampleNotification())
	if err == nil || !strings.Contains(err.Error(), "telegram: boom") {
		t.Fatalf("expected wrapped telegram failure, got %v", err)
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Fatalf("every channel should be called once, got %d/%d", failing.calls, ok.calls)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
