package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newClient(srv *httptest.Server, maxRetries int) *HTTPClient {
	return NewHTTPClient(Options{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		HTTPClient: srv.Client(),
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
	})
}

// TestInsert tests the happy path: POST to the rows endpoint with the API key
// header, returning the server body.
func TestInsert(t *testing.T) {
	var gotPath, gotKey, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		gotMethod = r.Method
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"srv-1","name":"Ada"}`))
	}))
	defer srv.Close()

	raw, err := newClient(srv, 0).Insert(context.Background(), "students", map[string]string{"name": "Ada"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("Expected POST, got %s", gotMethod)
	}
	if gotPath != "/tables/students/rows" {
		t.Errorf("Unexpected path: %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("Expected API key header, got %q", gotKey)
	}

	var record map[string]string
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if record["id"] != "srv-1" {
		t.Errorf("Expected server record, got %v", record)
	}
}

// TestSelectQuery tests filter and ordering parameters.
func TestSelectQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := newClient(srv, 0).Select(context.Background(), "classes",
		map[string]string{"school_id": "sch-1"}, "name")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if gotQuery != "order=name&school_id=sch-1" {
		t.Errorf("Unexpected query: %s", gotQuery)
	}
}

// TestRetryOnGatewayError tests that gateway-class statuses are retried up to
// the cap before success.
func TestRetryOnGatewayError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"id":"srv-1"}`))
	}))
	defer srv.Close()

	if _, err := newClient(srv, 2).Insert(context.Background(), "students", nil); err != nil {
		t.Fatalf("Expected retries to recover: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("Expected 3 requests, got %d", n)
	}
}

// TestNonRetryableStatusFailsFast tests that a client-error status fails
// immediately with a structured error.
func TestNonRetryableStatusFailsFast(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"name required"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv, 3).Insert(context.Background(), "students", nil)
	if err == nil {
		t.Fatal("Expected error")
	}
	var remoteErr *Error
	if !errors.As(err, &remoteErr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if remoteErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d", remoteErr.StatusCode)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Expected no retries on 422, got %d requests", n)
	}
}

// TestRetriesExhausted tests that a persistently failing backend surfaces the
// final error after the retry cap.
func TestRetriesExhausted(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(srv, 2).Insert(context.Background(), "students", nil)
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("Expected 3 requests, got %d", n)
	}
}

// TestDelete tests the delete path.
func TestDelete(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := newClient(srv, 0).Delete(context.Background(), "students", "srv-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("Expected DELETE, got %s", gotMethod)
	}
	if gotPath != "/tables/students/rows/srv-1" {
		t.Errorf("Unexpected path: %s", gotPath)
	}
}

// TestContextCancellation tests that a canceled context aborts retry waits.
func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewHTTPClient(Options{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		MaxRetries: 5,
		BaseDelay:  time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Insert(ctx, "students", nil)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Insert did not abort on cancellation")
	}
}
