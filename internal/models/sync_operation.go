package models

import "encoding/json"

// Sync operation types.
const (
	OperationInsert = "INSERT"
)

// Sync operation status values.
const (
	SyncStatusPending   = "pending"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// SyncOperation represents a pending write buffered for replay against the
// remote backend. Data always embeds the offline_id of the local record it
// originated from so reconciliation can find that exact record afterwards.
type SyncOperation struct {
	ID            UUID            `db:"id" json:"id"`
	OperationType string          `db:"operation_type" json:"operation_type"`
	TableName     string          `db:"table_name" json:"table_name"`
	RecordID      string          `db:"record_id" json:"record_id"`
	Data          json.RawMessage `db:"data" json:"data"`
	Status        string          `db:"status" json:"status"`
	RetryCount    int             `db:"retry_count" json:"retry_count"`
	LastRetryAt   int64           `db:"last_retry_at" json:"last_retry_at,omitempty"`
	ErrorMessage  string          `db:"error_message" json:"error_message,omitempty"`
	CreatedAt     int64           `db:"created_at" json:"created_at"`
}

// OfflineID extracts the offline_id embedded in the operation data.
// Returns an empty string if the data carries none.
func (op *SyncOperation) OfflineID() string {
	var probe struct {
		OfflineID string `json:"offline_id"`
	}
	if err := json.Unmarshal(op.Data, &probe); err != nil {
		return ""
	}
	return probe.OfflineID
}
