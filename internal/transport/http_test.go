package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"
)

// TestHTTP_ConnectionReuse verifies that the HTTP transport reuses
// connections when making sequential requests to the same host.
func TestHTTP_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	h := NewHTTP(HTTPOptions{Timeout: 5 * time.Second})

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5

	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		if _, err := h.ReadAll(ctx, server.URL); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	// all requests after the first should reuse the connection
	expectedMinReuse := numRequests - 2 // allow some tolerance
	if reusedCount < expectedMinReuse {
		t.Errorf("expected at least %d reused connections, got %d out of %d requests",
			expectedMinReuse, reusedCount, numRequests)
	}
}

func TestHTTP_ReadAll_Body(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Method = %s, want GET", r.Method)
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	body, err := NewHTTP(HTTPOptions{}).ReadAll(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("ReadAll() = %q, want %q", body, "hello")
	}
}

func TestHTTP_ReadAll_Headers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("X-Token")))
	}))
	defer server.Close()

	h := NewHTTP(HTTPOptions{Headers: map[string]string{"X-Token": "secret"}})
	body, err := h.ReadAll(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(body) != "secret" {
		t.Errorf("header echo = %q, want %q", body, "secret")
	}
}

func TestHTTP_ReadAll_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := NewHTTP(HTTPOptions{}).ReadAll(context.Background(), server.URL+"/missing")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("ReadAll() error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", statusErr.StatusCode)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error %q should mention 404", err)
	}
}

func TestHTTP_ReadAll_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer server.Close()

	h := NewHTTP(HTTPOptions{MaxBodySize: 16})
	_, err := h.ReadAll(context.Background(), server.URL)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("ReadAll() error = %v, want ErrBodyTooLarge", err)
	}

	// exactly at the cap is fine
	h = NewHTTP(HTTPOptions{MaxBodySize: 64})
	if _, err := h.ReadAll(context.Background(), server.URL); err != nil {
		t.Errorf("ReadAll() at cap error = %v", err)
	}
}

func TestHTTP_ReadAll_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	h := NewHTTP(HTTPOptions{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := h.ReadAll(context.Background(), server.URL)
	if err == nil {
		t.Fatal("ReadAll() error = nil, want timeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReadAll() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("ReadAll() took %v, want prompt timeout", elapsed)
	}
}

func TestHTTP_ReadAll_InvalidURL(t *testing.T) {
	_, err := NewHTTP(HTTPOptions{}).ReadAll(context.Background(), "http://bad host/")
	if err == nil {
		t.Fatal("ReadAll() error = nil, want error for invalid URL")
	}
}

// TestHTTP_Close verifies that Close() is safe to call and idempotent.
func TestHTTP_Close(t *testing.T) {
	h := NewHTTP(HTTPOptions{})

	h.Close()
	h.Close()
}

// TestHTTP_Close_Nil verifies that Close() handles nil receiver safely.
func TestHTTP_Close_Nil(t *testing.T) {
	var h *HTTP
	h.Close()
}

// TestHTTP_Close_StillUsable verifies the transport keeps working after
// idle connections are closed.
func TestHTTP_Close_StillUsable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	h := NewHTTP(HTTPOptions{})
	for i := 0; i < 3; i++ {
		if _, err := h.ReadAll(context.Background(), server.URL); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	h.Close()

	if _, err := h.ReadAll(context.Background(), server.URL); err != nil {
		t.Errorf("request after Close failed: %v", err)
	}
}
