package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testNotification() Notification {
	return Notification{
		Bucket:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		PreviousRegime: "Mixed/Transitional",
		Regime:         "Altcoin Season",
		Confidence:     0.5,
		Signals:        []string{"Stable Growth", "Altcoin Season"},
		BTCDominance:   42.5,
		HHI:            1800,
		Channels:       []string{"telegram"},
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
	if err := notifier.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "Altcoin Season") {
		t.Fatalf("message should mention the new regime: %q", received["text"])
	}
	if !strings.Contains(received["text"], "Mixed/Transitional -> Altcoin Season") {
		t.Fatalf("message should show the transition: %q", received["text"])
	}
}

func TestTelegramNotifierOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("ok=false should return an error")
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("HTTP 502 should return an error")
	}
}

func TestRenderMessageWithoutTransition(t *testing.T) {
	note := testNotification()
	note.PreviousRegime = ""

	text := renderMessage(note)
	if strings.Contains(text, "->") {
		t.Fatalf("first-ever alert should not render a transition: %q", text)
	}
	if !strings.Contains(text, "[Market Regime Alert]") {
		t.Fatalf("missing header: %q", text)
	}
	if !strings.Contains(text, "Confidence: 50%") {
		t.Fatalf("missing confidence: %q", text)
	}
}
