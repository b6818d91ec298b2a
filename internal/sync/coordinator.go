// Package sync arbitrates between writing immediately to the remote backend
// and buffering locally for later replay.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/cubeclass/attendance-core/internal/db"
	"github.com/cubeclass/attendance-core/internal/logging"
	"github.com/cubeclass/attendance-core/internal/remote"
	"github.com/cubeclass/attendance-core/internal/webhook"
)

// Lifecycle event types delivered to listeners.
const (
	EventOnline       = "online"
	EventOffline      = "offline"
	EventSyncStart    = "sync_start"
	EventSyncComplete = "sync_complete"
	EventSyncError    = "sync_error"
)

// Event is a coordinator lifecycle notification.
type Event struct {
	Type   string
	Synced int
	Failed int
	Err    error
}

// Listener receives lifecycle events. Notification is synchronous and
// best-effort; a panicking listener is a defect in the listener.
type Listener func(Event)

// EventSink raises domain events on successful creates. *webhook.Manager
// satisfies it.
type EventSink interface {
	Trigger(ctx context.Context, eventType string, data interface{}, metadata map[string]interface{}) (webhook.Result, error)
}

// Config holds coordinator configuration.
type Config struct {
	Interval time.Duration // periodic sync interval, default 5 minutes
}

// DefaultConfig returns default coordinator configuration.
func DefaultConfig() *Config {
	return &Config{Interval: 5 * time.Minute}
}

// Coordinator owns the online/offline state machine and the replay loop.
// A single instance lives for the whole process.
type Coordinator struct {
	store    *db.Store
	remote   remote.Client
	events   EventSink
	interval time.Duration

	mu         sync.RWMutex
	online     bool
	syncing    bool
	lastSync   time.Time
	listeners  []Listener
	stopCh     chan struct{}
	wg         sync.WaitGroup
	passStarts uint64
}

// NewCoordinator creates a Coordinator. It starts offline; a network-available
// signal via SetOnline begins synchronization. events may be nil.
func NewCoordinator(store *db.Store, remoteClient remote.Client, events EventSink, config *Config) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Coordinator{
		store:    store,
		remote:   remoteClient,
		events:   events,
		interval: config.Interval,
	}
}

// Subscribe registers a lifecycle listener.
func (c *Coordinator) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// notify delivers an event to all listeners synchronously.
func (c *Coordinator) notify(event Event) {
	c.mu.RLock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, l := range listeners {
		l(event)
	}
}

// SetOnline drives the connectivity state machine. Going online immediately
// attempts one pass and starts the periodic timer; going offline cancels the
// timer (an in-flight pass is allowed to finish).
func (c *Coordinator) SetOnline(online bool) {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online

	if online {
		stopCh := make(chan struct{})
		c.stopCh = stopCh
		c.wg.Add(1)
		go c.tickerLoop(stopCh)
		c.mu.Unlock()

		logging.Info("Network available, starting sync", nil)
		c.notify(Event{Type: EventOnline})
		go c.SyncNow(context.Background())
		return
	}

	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.mu.Unlock()

	logging.Info("Network unavailable, sync suspended", nil)
	c.notify(Event{Type: EventOffline})
}

// Stop cancels the periodic timer and waits for it to exit. Intended for
// process shutdown.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.online = false
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// tickerLoop attempts a pass at every interval while online.
func (c *Coordinator) tickerLoop(stopCh chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			go c.SyncNow(context.Background())
		}
	}
}

// IsOnline reports the connectivity flag.
func (c *Coordinator) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// Syncing reports whether a pass is currently running.
func (c *Coordinator) Syncing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.syncing
}

// PassStarts returns how many synchronization passes have started.
func (c *Coordinator) PassStarts() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.passStarts
}

// Status is a read-only snapshot of coordinator and storage state.
type Status struct {
	Online       bool                          `json:"online"`
	Syncing      bool                          `json:"syncing"`
	LastSync     *time.Time                    `json:"last_sync,omitempty"`
	PendingItems int                           `json:"pending_items"`
	Storage      map[string]db.CollectionStats `json:"storage"`
}

// GetStatus aggregates the online flag, in-progress flag, storage stats and
// pending-item count. No side effects.
func (c *Coordinator) GetStatus() (*Status, error) {
	c.mu.RLock()
	status := &Status{
		Online:  c.online,
		Syncing: c.syncing,
	}
	if !c.lastSync.IsZero() {
		t := c.lastSync
		status.LastSync = &t
	}
	c.mu.RUnlock()

	pending, err := c.store.PendingSyncItems()
	if err != nil {
		return nil, err
	}
	status.PendingItems = len(pending)

	stats, err := c.store.Stats()
	if err != nil {
		return nil, err
	}
	status.Storage = stats

	return status, nil
}
