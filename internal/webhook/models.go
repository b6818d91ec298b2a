// Package webhook provides event fan-out to operator-configured HTTP targets.
package webhook

import "encoding/json"

// Delivery status values for log entries and queued events.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
	StatusQueued = "queued"
)

// Config is an externally configured callback target.
type Config struct {
	ID        string   `json:"id"`
	Name      string   `json:"name" validate:"required"`
	URL       string   `json:"url" validate:"required,url"`
	SecretKey string   `json:"secret_key,omitempty"`
	Events    []string `json:"events" validate:"required,min=1"`
	IsActive  bool     `json:"is_active"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
}

// SubscribedTo reports whether the config subscribes to an event type.
func (c *Config) SubscribedTo(eventType string) bool {
	for _, e := range c.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// LogEntry records one delivery outcome. The log is a bounded ring of the
// most recent entries, not an audit trail.
type LogEntry struct {
	ID           string          `json:"id"`
	WebhookID    string          `json:"webhook_id"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	ResponseCode int             `json:"response_code,omitempty"`
	ResponseBody string          `json:"response_body,omitempty"`
	CreatedAt    int64           `json:"created_at"`
}

// QueuedEvent buffers an event raised while the device was offline.
type QueuedEvent struct {
	ID         string                 `json:"id"`
	EventType  string                 `json:"event_type"`
	Data       interface{}            `json:"data"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  int64                  `json:"created_at"`
	Status     string                 `json:"status"`
	RetryCount int                    `json:"retry_count,omitempty"`
}

// Payload is the JSON body POSTed to each target.
type Payload struct {
	EventType string                 `json:"event_type"`
	Timestamp string                 `json:"timestamp"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// Result aggregates a fan-out: one count per settled target delivery.
type Result struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}
