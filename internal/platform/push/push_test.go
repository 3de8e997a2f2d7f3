package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestDisabledClientDropsSilently(t *testing.T) {
	c := NewClient(Config{}, zerolog.Nop())
	if c.Enabled() {
		t.Fatal("client with no endpoint reports enabled")
	}
	if err := c.SendToToken(context.Background(), "token", Notification{Title: "x"}); err != nil {
		t.Errorf("disabled send returned %v", err)
	}
	sent, failed := c.SendToMany(context.Background(), []string{"a", "b"}, Notification{})
	if sent != 2 || failed != 0 {
		t.Errorf("sent=%d failed=%d", sent, failed)
	}
}

func TestSendToTokenPayloadAndAuth(t *testing.T) {
	var got struct {
		To    string            `json:"to"`
		Title string            `json:"title"`
		Body  string            `json:"body"`
		Sound string            `json:"sound"`
		Data  map[string]string `json:"data"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "secret"}, zerolog.Nop())
	err := c.SendToToken(context.Background(), "device-1", Notification{
		Title: "Critical Patient",
		Body:  "Jane Roe triaged CRITICAL",
		Sound: "critical_alert",
		Data:  map[string]string{"type": "new_critical"},
	})
	if err != nil {
		t.Fatalf("SendToToken: %v", err)
	}
	if got.To != "device-1" || got.Title != "Critical Patient" || got.Data["type"] != "new_critical" {
		t.Errorf("payload = %+v", got)
	}
}

func TestSendToTokenNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL}, zerolog.Nop())
	if err := c.SendToToken(context.Background(), "device-1", Notification{}); err == nil {
		t.Error("expected error on 422 response")
	}
}

func TestSendToManyContinuesPastFailures(t *testing.T) {
	var mu sync.Mutex
	seen := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen++
		n := seen
		mu.Unlock()
		if n == 2 {
			http.Error(w, "flaky", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL}, zerolog.Nop())
	sent, failed := c.SendToMany(context.Background(), []string{"a", "b", "c"}, Notification{Title: "t"})
	if sent != 2 || failed != 1 {
		t.Errorf("sent=%d failed=%d, want 2/1", sent, failed)
	}
}
