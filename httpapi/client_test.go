package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDoGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name": "Ada", "count": 3}`))
	}))
	defer srv.Close()

	resp, err := New().Do(context.Background(), "GET", srv.URL, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("Do() returned error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	body, ok := resp.Body.(map[string]any)
	if !ok {
		t.Fatalf("Body = %T, want map", resp.Body)
	}
	if body["name"] != "Ada" {
		t.Errorf("name = %v, want Ada", body["name"])
	}
}

func TestDoPostEncodesBody(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	payload := map[string]any{"event": "greet"}
	resp, err := New().Do(context.Background(), "POST", srv.URL, payload, 5*time.Second)
	if err != nil {
		t.Fatalf("Do() returned error: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
	if received["event"] != "greet" {
		t.Errorf("server received %v", received)
	}
}

func TestDoNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := New().Do(context.Background(), "GET", srv.URL, nil, 5*time.Second); err == nil {
		t.Fatal("Do() should fail on a 500 response")
	}
}

func TestDoEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := New().Do(context.Background(), "GET", srv.URL, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("Do() returned error: %v", err)
	}
	body, ok := resp.Body.(map[string]any)
	if !ok || len(body) != 0 {
		t.Errorf("Body = %v, want empty map", resp.Body)
	}
}

func TestDoTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	if _, err := New().Do(context.Background(), "GET", srv.URL, nil, 20*time.Millisecond); err == nil {
		t.Fatal("Do() should fail when the timeout elapses")
	}
}
