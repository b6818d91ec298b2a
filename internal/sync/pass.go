package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cubeclass/attendance-core/internal/logging"
	"github.com/cubeclass/attendance-core/internal/models"
	"github.com/cubeclass/attendance-core/internal/uuid"
)

// Webhook event types raised on successful creates, keyed by table.
const (
	EventStudentCreated     = "student_created"
	EventAttendanceRecorded = "attendance_recorded"
	EventMeritAwarded       = "merit_awarded"
	EventNoteCreated        = "note_created"
)

// eventForTable maps a tracked table to its create event type.
func eventForTable(table string) string {
	switch table {
	case "students":
		return EventStudentCreated
	case "attendance":
		return EventAttendanceRecorded
	case "merit_points":
		return EventMeritAwarded
	case "notes":
		return EventNoteCreated
	}
	return ""
}

// PassResult summarizes one synchronization pass.
type PassResult struct {
	Synced    int
	Failed    int
	Recovered int
	Duration  time.Duration
}

// SyncNow attempts one synchronization pass. At most one pass runs at a
// time; a call while offline or while a pass is in progress is a no-op and
// returns nil.
func (c *Coordinator) SyncNow(ctx context.Context) *PassResult {
	c.mu.Lock()
	if !c.online || c.syncing {
		c.mu.Unlock()
		return nil
	}
	c.syncing = true
	c.passStarts++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.syncing = false
		c.lastSync = time.Now()
		c.mu.Unlock()
	}()

	c.notify(Event{Type: EventSyncStart})
	start := time.Now()
	result := c.runPass(ctx)
	result.Duration = time.Since(start)

	logging.Info("Sync pass completed", map[string]interface{}{
		"synced":    result.Synced,
		"failed":    result.Failed,
		"recovered": result.Recovered,
	})
	c.notify(Event{Type: EventSyncComplete, Synced: result.Synced, Failed: result.Failed})

	return result
}

// runPass drains the pending queue sequentially, then sweeps for records
// that were saved locally but never enqueued.
func (c *Coordinator) runPass(ctx context.Context) *PassResult {
	result := &PassResult{}

	items, err := c.store.PendingSyncItems()
	if err != nil {
		logging.Error("Failed to read sync queue", err, nil)
		c.notify(Event{Type: EventSyncError, Err: err})
		return result
	}

	// Sequential replay keeps per-record ordering deterministic within a
	// table; one failing entry never aborts the batch.
	for _, op := range items {
		if err := c.replayOperation(ctx, op); err != nil {
			result.Failed++
			continue
		}
		result.Synced++
	}

	recovered, err := c.recoverUnqueued()
	if err != nil {
		logging.Error("Recovery sweep failed", err, nil)
		c.notify(Event{Type: EventSyncError, Err: err})
	}
	result.Recovered = recovered

	return result
}

// replayOperation replays one queue entry against the remote backend and
// reconciles the matching local record with the server response.
func (c *Coordinator) replayOperation(ctx context.Context, op *models.SyncOperation) error {
	offlineID := op.OfflineID()
	if offlineID == "" {
		err := fmt.Errorf("operation data carries no offline_id")
		c.failOperation(op, err)
		return err
	}

	raw, err := c.remote.Insert(ctx, op.TableName, op.Data)
	if err != nil {
		c.failOperation(op, err)
		return err
	}

	if err := c.reconcile(op.TableName, offlineID, raw); err != nil {
		c.failOperation(op, err)
		return err
	}

	if err := c.store.MarkSyncItemCompleted(string(op.ID)); err != nil {
		logging.Error("Failed to mark sync item completed", err,
			map[string]interface{}{"operation_id": op.ID})
		return err
	}

	c.raiseEvent(ctx, eventForTable(op.TableName), json.RawMessage(raw), op.TableName)
	return nil
}

// failOperation records a per-item failure and leaves the entry queued.
func (c *Coordinator) failOperation(op *models.SyncOperation, cause error) {
	logging.Warn("Sync operation replay failed", map[string]interface{}{
		"operation_id": op.ID,
		"table_name":   op.TableName,
		"retry_count":  op.RetryCount,
		"error":        cause.Error(),
	})
	if err := c.store.MarkSyncItemFailed(string(op.ID), cause.Error()); err != nil {
		logging.Error("Failed to mark sync item failed", err,
			map[string]interface{}{"operation_id": op.ID})
	}
}

// reconcile updates the local record matched by offline_id with the
// server-returned authoritative fields and marks it synced.
func (c *Coordinator) reconcile(table, offlineID string, raw json.RawMessage) error {
	switch table {
	case "students":
		var server models.Student
		if err := json.Unmarshal(raw, &server); err != nil {
			return fmt.Errorf("failed to decode server student: %w", err)
		}
		return c.store.MarkStudentSynced(offlineID, &server)
	case "attendance":
		var server models.AttendanceRecord
		if err := json.Unmarshal(raw, &server); err != nil {
			return fmt.Errorf("failed to decode server attendance: %w", err)
		}
		return c.store.MarkAttendanceSynced(offlineID, &server)
	case "merit_points":
		var server models.MeritAward
		if err := json.Unmarshal(raw, &server); err != nil {
			return fmt.Errorf("failed to decode server merit award: %w", err)
		}
		return c.store.MarkMeritAwardSynced(offlineID, &server)
	case "notes":
		var server models.Note
		if err := json.Unmarshal(raw, &server); err != nil {
			return fmt.Errorf("failed to decode server note: %w", err)
		}
		return c.store.MarkNoteSynced(offlineID, &server)
	}
	return fmt.Errorf("unknown table %q", table)
}

// raiseEvent fans a create event out to the webhook dispatcher.
func (c *Coordinator) raiseEvent(ctx context.Context, eventType string, data interface{}, table string) {
	if c.events == nil || eventType == "" {
		return
	}
	if _, err := c.events.Trigger(ctx, eventType, data, map[string]interface{}{"table": table}); err != nil {
		logging.Warn("Webhook event delivery failed", map[string]interface{}{
			"event_type": eventType,
			"error":      err.Error(),
		})
	}
}

// recoverUnqueued finds locally-unsynced records whose id is still a local
// placeholder and that have no pending queue entry, and enqueues them. This
// recovers records saved locally but never successfully queued, e.g. after a
// crash between local save and enqueue.
func (c *Coordinator) recoverUnqueued() (int, error) {
	recovered := 0

	students, err := c.store.UnsyncedStudents()
	if err != nil {
		return recovered, err
	}
	for _, st := range students {
		n, err := c.enqueueIfMissing("students", string(st.ID), st)
		if err != nil {
			return recovered, err
		}
		recovered += n
	}

	attendance, err := c.store.UnsyncedAttendance()
	if err != nil {
		return recovered, err
	}
	for _, rec := range attendance {
		n, err := c.enqueueIfMissing("attendance", string(rec.ID), rec)
		if err != nil {
			return recovered, err
		}
		recovered += n
	}

	awards, err := c.store.UnsyncedMeritAwards()
	if err != nil {
		return recovered, err
	}
	for _, aw := range awards {
		n, err := c.enqueueIfMissing("merit_points", string(aw.ID), aw)
		if err != nil {
			return recovered, err
		}
		recovered += n
	}

	notes, err := c.store.UnsyncedNotes()
	if err != nil {
		return recovered, err
	}
	for _, note := range notes {
		n, err := c.enqueueIfMissing("notes", string(note.ID), note)
		if err != nil {
			return recovered, err
		}
		recovered += n
	}

	if recovered > 0 {
		logging.Info("Recovered unqueued records", map[string]interface{}{"count": recovered})
	}
	return recovered, nil
}

// enqueueIfMissing enqueues a pending insert for a placeholder record that
// has no queue entry yet. Returns 1 if an entry was created.
func (c *Coordinator) enqueueIfMissing(table, recordID string, record interface{}) (int, error) {
	if !uuid.IsOffline(recordID) {
		return 0, nil
	}
	queued, err := c.store.HasPendingOperation(table, recordID)
	if err != nil {
		return 0, err
	}
	if queued {
		return 0, nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return 0, err
	}
	op := &models.SyncOperation{
		OperationType: models.OperationInsert,
		TableName:     table,
		RecordID:      recordID,
		Data:          data,
	}
	if err := c.store.AddToSyncQueue(op); err != nil {
		return 0, err
	}
	return 1, nil
}
