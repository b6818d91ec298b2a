package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/cubeclass/attendance-core/internal/errors"
	"github.com/cubeclass/attendance-core/internal/logging"
	"github.com/cubeclass/attendance-core/internal/uuid"
)

// Persisted state keys in the key-value store.
const (
	kvConfigs = "webhooks/configs"
	kvQueue   = "webhooks/queue"
	kvLog     = "webhooks/log"
)

// maxLogEntries bounds the delivery log; oldest entries are evicted first.
const maxLogEntries = 100

// payloadSource identifies this process in outgoing payload metadata.
const payloadSource = "attendance-core"

// KV is the string key-value persistence the manager stores its
// configuration, queue and log in.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Options configures a Manager.
type Options struct {
	MaxAttempts int           // per-target delivery attempts, default 3
	BaseDelay   time.Duration // backoff unit between attempts, default 1s
	Timeout     time.Duration // per-request timeout, default 10s
	ReplayDelay time.Duration // wait after reconnect before draining, default 2s
	HTTPClient  *http.Client
}

// Manager owns the webhook configuration set, the bounded delivery log and
// the offline event queue. It is safe for concurrent use.
type Manager struct {
	kv       KV
	client   *http.Client
	validate *validator.Validate

	maxAttempts int
	baseDelay   time.Duration
	replayDelay time.Duration

	mu     sync.RWMutex
	hooks  []*Config
	queue  []*QueuedEvent
	log    []*LogEntry // newest first
	online bool
}

// NewManager creates a Manager, loading persisted configuration, queue and
// log from the key-value store. The manager starts offline, matching the
// coordinator; the first SetOnline(true) begins delivering and drains any
// queue persisted by an earlier run.
func NewManager(kv KV, opts Options) (*Manager, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ReplayDelay <= 0 {
		opts.ReplayDelay = 2 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	m := &Manager{
		kv:          kv,
		client:      client,
		validate:    validator.New(),
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		replayDelay: opts.ReplayDelay,
	}

	if err := m.loadState(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) loadState() error {
	if err := loadJSON(m.kv, kvConfigs, &m.hooks); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to load webhook configs", err)
	}
	if err := loadJSON(m.kv, kvQueue, &m.queue); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to load webhook queue", err)
	}
	if err := loadJSON(m.kv, kvLog, &m.log); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to load webhook log", err)
	}
	return nil
}

func loadJSON(kv KV, key string, target interface{}) error {
	raw, ok, err := kv.Get(key)
	if err != nil {
		return err
	}
	if !ok || raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}

func persistJSON(kv KV, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return kv.Set(key, string(raw))
}

// SetOnline updates the connectivity flag. An offline-to-online transition
// schedules a queue drain after a short fixed delay.
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	m.mu.Unlock()

	if online && !wasOnline {
		go func() {
			time.Sleep(m.replayDelay)
			m.drainQueue(context.Background())
		}()
	}
}

// IsOnline reports the current connectivity flag.
func (m *Manager) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// AddWebhook validates and stores a new callback target configuration.
func (m *Manager) AddWebhook(cfg *Config) error {
	if err := m.validate.Struct(cfg); err != nil {
		return apperrors.Wrap(apperrors.ErrWebhookInvalid, "invalid webhook configuration", err)
	}

	now := time.Now().Unix()
	if cfg.ID == "" {
		cfg.ID = uuid.New()
	}
	if cfg.CreatedAt == 0 {
		cfg.IsActive = true
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, cfg)
	return persistJSON(m.kv, kvConfigs, m.hooks)
}

// RemoveWebhook deletes a target configuration by id.
func (m *Manager) RemoveWebhook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, h := range m.hooks {
		if h.ID == id {
			m.hooks = append(m.hooks[:i], m.hooks[i+1:]...)
			return persistJSON(m.kv, kvConfigs, m.hooks)
		}
	}
	return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("webhook %s not found", id))
}

// Webhooks returns a copy of all configured targets.
func (m *Manager) Webhooks() []*Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Config, len(m.hooks))
	for i, h := range m.hooks {
		c := *h
		out[i] = &c
	}
	return out
}

// WebhooksForEvent returns all active targets subscribed to an event type.
func (m *Manager) WebhooksForEvent(eventType string) []*Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Config
	for _, h := range m.hooks {
		if h.IsActive && h.SubscribedTo(eventType) {
			c := *h
			out = append(out, &c)
		}
	}
	return out
}

// Trigger fans an event out to every subscribed active target and waits for
// all deliveries to settle. Offline, the event is queued instead and no HTTP
// call is made. The returned error is non-nil only when every resolved
// target failed after exhausting its attempts.
func (m *Manager) Trigger(ctx context.Context, eventType string, data interface{}, metadata map[string]interface{}) (Result, error) {
	if !m.IsOnline() {
		if err := m.enqueueEvent(eventType, data, metadata); err != nil {
			return Result{}, err
		}
		logging.Debug("Webhook event queued while offline",
			map[string]interface{}{"event_type": eventType})
		return Result{}, nil
	}

	hooks := m.WebhooksForEvent(eventType)
	if len(hooks) == 0 {
		return Result{}, nil
	}

	var (
		wg      sync.WaitGroup
		countMu sync.Mutex
		result  Result
	)
	for _, hook := range hooks {
		wg.Add(1)
		go func(hook *Config) {
			defer wg.Done()
			err := m.send(ctx, hook, eventType, data, metadata, 1)
			countMu.Lock()
			if err != nil {
				result.Failed++
			} else {
				result.Successful++
			}
			countMu.Unlock()
		}(hook)
	}
	wg.Wait()

	logging.Info("Webhook event dispatched", map[string]interface{}{
		"event_type": eventType,
		"successful": result.Successful,
		"failed":     result.Failed,
	})

	if result.Successful == 0 && result.Failed > 0 {
		return result, apperrors.New(apperrors.ErrWebhookExhausted,
			fmt.Sprintf("all %d targets failed for event %s", result.Failed, eventType))
	}
	return result, nil
}

// send delivers one event to one target, recursing with an incremented
// attempt counter after a linear backoff until the attempt cap is reached.
func (m *Manager) send(ctx context.Context, hook *Config, eventType string, data interface{}, metadata map[string]interface{}, attempt int) error {
	meta := make(map[string]interface{}, len(metadata)+3)
	for k, v := range metadata {
		meta[k] = v
	}
	// Reserved keys describe the actual delivery; caller metadata never
	// overrides them.
	meta["source"] = payloadSource
	meta["webhook_id"] = hook.ID
	meta["attempt"] = attempt

	payload := Payload{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
		Metadata:  meta,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	statusCode, respBody, sendErr := m.post(ctx, hook, body)
	if sendErr == nil {
		m.appendLog(&LogEntry{
			WebhookID:    hook.ID,
			EventType:    eventType,
			Payload:      body,
			Status:       StatusSent,
			ResponseCode: statusCode,
			ResponseBody: respBody,
		})
		return nil
	}

	if attempt < m.maxAttempts {
		if err := sleepContext(ctx, time.Duration(attempt)*m.baseDelay); err != nil {
			return err
		}
		return m.send(ctx, hook, eventType, data, metadata, attempt+1)
	}

	m.appendLog(&LogEntry{
		WebhookID:    hook.ID,
		EventType:    eventType,
		Payload:      body,
		Status:       StatusFailed,
		ResponseCode: statusCode,
		ResponseBody: respBody,
	})
	logging.Error("Webhook delivery failed after all attempts", sendErr, map[string]interface{}{
		"webhook_id": hook.ID,
		"event_type": eventType,
		"attempts":   attempt,
	})
	return apperrors.Wrap(apperrors.ErrWebhookExhausted, "webhook delivery exhausted", sendErr)
}

// post performs one HTTP delivery attempt. A transport error or non-2xx
// status counts as failure.
func (m *Manager) post(ctx context.Context, hook *Config, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if hook.SecretKey != "" {
		// Shared secret sent verbatim, not an HMAC signature.
		req.Header.Set("X-Webhook-Secret", hook.SecretKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, string(respBody), fmt.Errorf("webhook target returned %d", resp.StatusCode)
	}
	return resp.StatusCode, string(respBody), nil
}

// appendLog prepends a delivery record and evicts beyond the bound.
func (m *Manager) appendLog(entry *LogEntry) {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().Unix()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.log = append([]*LogEntry{entry}, m.log...)
	if len(m.log) > maxLogEntries {
		m.log = m.log[:maxLogEntries]
	}
	if err := persistJSON(m.kv, kvLog, m.log); err != nil {
		logging.Error("Failed to persist webhook log", err, nil)
	}
}

// Logs returns a copy of the delivery log, newest first.
func (m *Manager) Logs() []*LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*LogEntry, len(m.log))
	for i, e := range m.log {
		c := *e
		out[i] = &c
	}
	return out
}

// QueuedEvents returns a copy of the offline event buffer.
func (m *Manager) QueuedEvents() []*QueuedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*QueuedEvent, len(m.queue))
	for i, e := range m.queue {
		c := *e
		out[i] = &c
	}
	return out
}

func (m *Manager) enqueueEvent(eventType string, data interface{}, metadata map[string]interface{}) error {
	event := &QueuedEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Data:      data,
		Metadata:  metadata,
		CreatedAt: time.Now().Unix(),
		Status:    StatusQueued,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, event)
	return persistJSON(m.kv, kvQueue, m.queue)
}

// drainQueue replays queued events through Trigger, once per entry. Events
// whose replay fails outright are re-queued with an incremented retry count
// rather than dropped.
func (m *Manager) drainQueue(ctx context.Context) {
	m.mu.Lock()
	pending := m.queue
	m.queue = nil
	if err := persistJSON(m.kv, kvQueue, m.queue); err != nil {
		logging.Error("Failed to persist webhook queue", err, nil)
	}
	m.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	logging.Info("Replaying queued webhook events",
		map[string]interface{}{"count": len(pending)})

	for _, event := range pending {
		if _, err := m.Trigger(ctx, event.EventType, event.Data, event.Metadata); err != nil {
			event.RetryCount++
			m.mu.Lock()
			m.queue = append(m.queue, event)
			if perr := persistJSON(m.kv, kvQueue, m.queue); perr != nil {
				logging.Error("Failed to persist webhook queue", perr, nil)
			}
			m.mu.Unlock()
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
