package models

import (
	"encoding/json"
	"testing"
)

// TestUUIDScan tests scanning database values into the UUID wrapper.
func TestUUIDScan(t *testing.T) {
	var u UUID

	if err := u.Scan("srv-1"); err != nil {
		t.Fatalf("Scan string failed: %v", err)
	}
	if u != "srv-1" {
		t.Errorf("Expected srv-1, got %s", u)
	}

	if err := u.Scan([]byte("srv-2")); err != nil {
		t.Fatalf("Scan bytes failed: %v", err)
	}
	if u != "srv-2" {
		t.Errorf("Expected srv-2, got %s", u)
	}

	if err := u.Scan(nil); err != nil {
		t.Fatalf("Scan nil failed: %v", err)
	}
	if u != "" {
		t.Errorf("Expected empty UUID, got %s", u)
	}

	if err := u.Scan(42); err == nil {
		t.Error("Expected scanning an int to fail")
	}
}

// TestSyncOperationOfflineID tests extracting the offline correlation id from
// buffered operation data.
func TestSyncOperationOfflineID(t *testing.T) {
	data, _ := json.Marshal(Student{
		ID:        "offline_abc",
		Name:      "Ada",
		OfflineID: "offline_abc",
	})
	op := &SyncOperation{TableName: "students", Data: data}
	if got := op.OfflineID(); got != "offline_abc" {
		t.Errorf("Expected offline_abc, got %q", got)
	}

	op.Data = []byte(`{"name":"Ada"}`)
	if got := op.OfflineID(); got != "" {
		t.Errorf("Expected empty offline_id, got %q", got)
	}

	op.Data = []byte(`not json`)
	if got := op.OfflineID(); got != "" {
		t.Errorf("Expected empty offline_id for malformed data, got %q", got)
	}
}
