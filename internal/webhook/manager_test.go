package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// memKV is an in-memory KV for tests.
type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string)}
}

func (kv *memKV) Get(key string) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	value, ok := kv.data[key]
	return value, ok, nil
}

func (kv *memKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = value
	return nil
}

func newOfflineManager(t *testing.T, kv KV) *Manager {
	t.Helper()
	m, err := NewManager(kv, Options{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Timeout:     time.Second,
		ReplayDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func newTestManager(t *testing.T, kv KV) *Manager {
	t.Helper()
	m := newOfflineManager(t, kv)
	m.SetOnline(true)
	return m
}

func addHook(t *testing.T, m *Manager, url string, events ...string) *Config {
	t.Helper()
	cfg := &Config{Name: "target", URL: url, Events: events}
	if err := m.AddWebhook(cfg); err != nil {
		t.Fatalf("AddWebhook failed: %v", err)
	}
	return cfg
}

// countingServer returns a test server and a counter of requests received.
func countingServer(t *testing.T, status int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// TestAddWebhookValidation tests configuration validation on registration.
func TestAddWebhookValidation(t *testing.T) {
	m := newTestManager(t, newMemKV())

	cases := []struct {
		name string
		cfg  *Config
	}{
		{"missing name", &Config{URL: "https://example.com/hook", Events: []string{"student_created"}}},
		{"missing url", &Config{Name: "x", Events: []string{"student_created"}}},
		{"malformed url", &Config{Name: "x", URL: "not-a-url", Events: []string{"student_created"}}},
		{"no events", &Config{Name: "x", URL: "https://example.com/hook", Events: []string{}}},
	}
	for _, tc := range cases {
		if err := m.AddWebhook(tc.cfg); err == nil {
			t.Errorf("Expected %s to be rejected", tc.name)
		}
	}

	cfg := &Config{Name: "x", URL: "https://example.com/hook", Events: []string{"student_created"}}
	if err := m.AddWebhook(cfg); err != nil {
		t.Fatalf("Expected valid config to be accepted: %v", err)
	}
	if cfg.ID == "" {
		t.Error("Expected id to be assigned")
	}
	if !cfg.IsActive {
		t.Error("Expected new webhook to be active")
	}
}

// TestConfigPersistence tests that configuration survives a manager restart.
func TestConfigPersistence(t *testing.T) {
	kv := newMemKV()
	m := newTestManager(t, kv)
	addHook(t, m, "https://example.com/hook", "student_created")

	reloaded := newTestManager(t, kv)
	hooks := reloaded.Webhooks()
	if len(hooks) != 1 {
		t.Fatalf("Expected 1 webhook after reload, got %d", len(hooks))
	}
	if hooks[0].URL != "https://example.com/hook" {
		t.Errorf("Unexpected url after reload: %s", hooks[0].URL)
	}
}

// TestRemoveWebhook tests target removal.
func TestRemoveWebhook(t *testing.T) {
	m := newTestManager(t, newMemKV())
	cfg := addHook(t, m, "https://example.com/hook", "student_created")

	if err := m.RemoveWebhook(cfg.ID); err != nil {
		t.Fatalf("RemoveWebhook failed: %v", err)
	}
	if hooks := m.WebhooksForEvent("student_created"); len(hooks) != 0 {
		t.Errorf("Expected no subscribers after removal, got %d", len(hooks))
	}
	if err := m.RemoveWebhook("nope"); err == nil {
		t.Error("Expected removing an unknown id to fail")
	}
}

// TestTriggerFanOutIndependence tests that one failing target does not affect
// delivery to another.
func TestTriggerFanOutIndependence(t *testing.T) {
	m := newTestManager(t, newMemKV())

	good, goodHits := countingServer(t, http.StatusOK)
	bad, badHits := countingServer(t, http.StatusInternalServerError)
	addHook(t, m, good.URL, "student_created")
	addHook(t, m, bad.URL, "student_created")

	result, err := m.Trigger(context.Background(), "student_created",
		map[string]string{"id": "srv-1"}, nil)
	if err != nil {
		t.Fatalf("Expected partial success to not error: %v", err)
	}
	if result.Successful != 1 || result.Failed != 1 {
		t.Errorf("Expected 1 successful and 1 failed, got %+v", result)
	}
	if n := atomic.LoadInt32(goodHits); n != 1 {
		t.Errorf("Expected 1 delivery to healthy target, got %d", n)
	}
	// The failing target is attempted maxAttempts times.
	if n := atomic.LoadInt32(badHits); n != 3 {
		t.Errorf("Expected 3 attempts against failing target, got %d", n)
	}
}

// TestTriggerAllTargetsFailed tests that exhausting every target surfaces an
// error alongside the counts.
func TestTriggerAllTargetsFailed(t *testing.T) {
	m := newTestManager(t, newMemKV())
	bad, _ := countingServer(t, http.StatusBadGateway)
	addHook(t, m, bad.URL, "student_created")

	result, err := m.Trigger(context.Background(), "student_created", nil, nil)
	if err == nil {
		t.Error("Expected error when every target fails")
	}
	if result.Failed != 1 {
		t.Errorf("Expected 1 failed, got %+v", result)
	}
}

// TestTriggerNoSubscribers tests that an event nobody subscribes to settles
// with zero deliveries.
func TestTriggerNoSubscribers(t *testing.T) {
	m := newTestManager(t, newMemKV())
	srv, hits := countingServer(t, http.StatusOK)
	addHook(t, m, srv.URL, "merit_awarded")

	result, err := m.Trigger(context.Background(), "attendance_recorded", nil, nil)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if result.Successful != 0 || result.Failed != 0 {
		t.Errorf("Expected zero counts, got %+v", result)
	}
	if n := atomic.LoadInt32(hits); n != 0 {
		t.Errorf("Expected no HTTP calls, got %d", n)
	}
}

// TestInactiveWebhookSkipped tests that disabled targets are not delivered to.
func TestInactiveWebhookSkipped(t *testing.T) {
	m := newTestManager(t, newMemKV())
	srv, hits := countingServer(t, http.StatusOK)
	cfg := addHook(t, m, srv.URL, "student_created")

	cfg.IsActive = false
	if err := m.RemoveWebhook(cfg.ID); err != nil {
		t.Fatalf("RemoveWebhook failed: %v", err)
	}
	if err := m.AddWebhook(cfg); err != nil {
		t.Fatalf("Re-add failed: %v", err)
	}

	result, err := m.Trigger(context.Background(), "student_created", nil, nil)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if result.Successful != 0 || result.Failed != 0 {
		t.Errorf("Expected inactive target to be skipped, got %+v", result)
	}
	if n := atomic.LoadInt32(hits); n != 0 {
		t.Errorf("Expected no HTTP calls, got %d", n)
	}
}

// TestRetryThenSucceed tests the linear backoff retry: two failures followed
// by a success within the attempt cap.
func TestRetryThenSucceed(t *testing.T) {
	m := newTestManager(t, newMemKV())

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	addHook(t, m, srv.URL, "student_created")

	result, err := m.Trigger(context.Background(), "student_created", nil, nil)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if result.Successful != 1 {
		t.Errorf("Expected delivery to succeed on third attempt, got %+v", result)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("Expected 3 attempts, got %d", n)
	}

	logs := m.Logs()
	if len(logs) != 1 {
		t.Fatalf("Expected a single log entry for the delivery, got %d", len(logs))
	}
	if logs[0].Status != StatusSent {
		t.Errorf("Expected sent status, got %s", logs[0].Status)
	}
}

// TestManagerStartsOffline tests that a fresh manager queues rather than
// delivers until connectivity is signalled.
func TestManagerStartsOffline(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK)
	m := newOfflineManager(t, newMemKV())
	addHook(t, m, srv.URL, "student_created")

	if m.IsOnline() {
		t.Error("Expected new manager to start offline")
	}

	result, err := m.Trigger(context.Background(), "student_created", nil, nil)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if result.Successful != 0 || result.Failed != 0 {
		t.Errorf("Expected no deliveries before going online, got %+v", result)
	}
	if n := atomic.LoadInt32(hits); n != 0 {
		t.Errorf("Expected no HTTP calls before going online, got %d", n)
	}
	if n := len(m.QueuedEvents()); n != 1 {
		t.Errorf("Expected 1 queued event, got %d", n)
	}
}

// TestMetadataReservedKeysWin tests that colliding caller metadata cannot
// override the delivery's source, webhook_id and attempt fields.
func TestMetadataReservedKeysWin(t *testing.T) {
	m := newTestManager(t, newMemKV())

	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body.Store(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	cfg := addHook(t, m, srv.URL, "student_created")

	_, err := m.Trigger(context.Background(), "student_created", nil, map[string]interface{}{
		"attempt": 99,
		"source":  "spoof",
		"table":   "students",
	})
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	raw, _ := body.Load().([]byte)
	var payload struct {
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if got := payload.Metadata["attempt"]; got != float64(1) {
		t.Errorf("Expected attempt 1 to win over caller value, got %v", got)
	}
	if got := payload.Metadata["source"]; got != payloadSource {
		t.Errorf("Expected source %q to win over caller value, got %v", payloadSource, got)
	}
	if got := payload.Metadata["webhook_id"]; got != cfg.ID {
		t.Errorf("Expected webhook_id %q, got %v", cfg.ID, got)
	}
	if got := payload.Metadata["table"]; got != "students" {
		t.Errorf("Expected non-reserved caller metadata to pass through, got %v", got)
	}
}

// TestSecretHeader tests that the shared secret is sent verbatim.
func TestSecretHeader(t *testing.T) {
	m := newTestManager(t, newMemKV())

	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("X-Webhook-Secret"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &Config{Name: "target", URL: srv.URL, SecretKey: "s3cret", Events: []string{"student_created"}}
	if err := m.AddWebhook(cfg); err != nil {
		t.Fatalf("AddWebhook failed: %v", err)
	}

	if _, err := m.Trigger(context.Background(), "student_created", nil, nil); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if got.Load() != "s3cret" {
		t.Errorf("Expected secret header, got %v", got.Load())
	}
}

// TestDeliveryLogBound tests that the delivery log keeps only the most recent
// entries, newest first.
func TestDeliveryLogBound(t *testing.T) {
	m := newTestManager(t, newMemKV())
	srv, _ := countingServer(t, http.StatusOK)
	addHook(t, m, srv.URL, "ping")

	total := maxLogEntries + 5
	for i := 0; i < total; i++ {
		if _, err := m.Trigger(context.Background(), "ping", map[string]int{"seq": i}, nil); err != nil {
			t.Fatalf("Trigger %d failed: %v", i, err)
		}
	}

	logs := m.Logs()
	if len(logs) != maxLogEntries {
		t.Fatalf("Expected log bounded at %d entries, got %d", maxLogEntries, len(logs))
	}
	newest := fmt.Sprintf(`"seq":%d`, total-1)
	if !strings.Contains(string(logs[0].Payload), newest) {
		t.Errorf("Expected newest entry first, payload %s", logs[0].Payload)
	}
	oldest := fmt.Sprintf(`"seq":%d`, total-maxLogEntries)
	if !strings.Contains(string(logs[maxLogEntries-1].Payload), oldest) {
		t.Errorf("Expected oldest surviving entry %s, payload %s", oldest, logs[maxLogEntries-1].Payload)
	}
}

// TestOfflineQueuing tests that events raised while offline are queued, not
// delivered, and replayed once after reconnect.
func TestOfflineQueuing(t *testing.T) {
	kv := newMemKV()
	m := newOfflineManager(t, kv)
	srv, hits := countingServer(t, http.StatusOK)
	addHook(t, m, srv.URL, "student_created")

	result, err := m.Trigger(context.Background(), "student_created",
		map[string]string{"id": "offline_1"}, nil)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if result.Successful != 0 || result.Failed != 0 {
		t.Errorf("Expected no deliveries while offline, got %+v", result)
	}
	if n := atomic.LoadInt32(hits); n != 0 {
		t.Errorf("Expected no HTTP calls while offline, got %d", n)
	}

	queued := m.QueuedEvents()
	if len(queued) != 1 {
		t.Fatalf("Expected 1 queued event, got %d", len(queued))
	}
	if queued[0].Status != StatusQueued {
		t.Errorf("Expected queued status, got %s", queued[0].Status)
	}

	// Queued events survive a restart.
	reloaded := newOfflineManager(t, kv)
	if len(reloaded.QueuedEvents()) != 1 {
		t.Errorf("Expected queue to persist across restart")
	}

	m.SetOnline(true)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(hits) == 1 && len(m.QueuedEvents()) == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Errorf("Expected exactly 1 replay delivery, got %d", n)
	}
	if n := len(m.QueuedEvents()); n != 0 {
		t.Errorf("Expected empty queue after replay, got %d", n)
	}
}

// TestDrainRequeuesOnTotalFailure tests that a replayed event whose every
// target fails goes back on the queue with an incremented retry count.
func TestDrainRequeuesOnTotalFailure(t *testing.T) {
	m := newOfflineManager(t, newMemKV())
	bad, _ := countingServer(t, http.StatusInternalServerError)
	addHook(t, m, bad.URL, "student_created")

	if _, err := m.Trigger(context.Background(), "student_created", nil, nil); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	m.SetOnline(true)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		queued := m.QueuedEvents()
		if len(queued) == 1 && queued[0].RetryCount == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	queued := m.QueuedEvents()
	if len(queued) != 1 {
		t.Fatalf("Expected failed event to be re-queued, got %d entries", len(queued))
	}
	if queued[0].RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", queued[0].RetryCount)
	}
}
