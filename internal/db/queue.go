package db

import (
	"database/sql"
	"time"

	"github.com/cubeclass/attendance-core/internal/models"
	"github.com/cubeclass/attendance-core/internal/uuid"
)

// AddToSyncQueue assigns an id, timestamps the operation and stores it as
// pending with a zero retry count.
func (s *Store) AddToSyncQueue(op *models.SyncOperation) error {
	op.ID = models.UUID(uuid.New())
	op.Status = models.SyncStatusPending
	op.RetryCount = 0
	op.CreatedAt = time.Now().Unix()
	if op.OperationType == "" {
		op.OperationType = models.OperationInsert
	}

	query := `
	INSERT INTO sync_queue (id, operation_type, table_name, record_id, data, status, retry_count, last_retry_at, error_message, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?)
	`
	_, err := s.db.Exec(query, op.ID, op.OperationType, op.TableName, op.RecordID,
		string(op.Data), op.Status, op.RetryCount, op.CreatedAt)
	return err
}

const syncOpColumns = `id, operation_type, table_name, record_id, data, status, retry_count, last_retry_at, error_message, created_at`

func scanSyncOperation(row interface{ Scan(...interface{}) error }) (*models.SyncOperation, error) {
	var op models.SyncOperation
	var data string
	var lastRetryAt sql.NullInt64
	var errorMessage sql.NullString
	err := row.Scan(&op.ID, &op.OperationType, &op.TableName, &op.RecordID, &data,
		&op.Status, &op.RetryCount, &lastRetryAt, &errorMessage, &op.CreatedAt)
	if err != nil {
		return nil, err
	}
	op.Data = []byte(data)
	op.LastRetryAt = lastRetryAt.Int64
	op.ErrorMessage = errorMessage.String
	return &op, nil
}

// PendingSyncItems returns every operation still awaiting a successful
// replay, oldest first. Failed entries stay eligible; there is no retry cap.
func (s *Store) PendingSyncItems() ([]*models.SyncOperation, error) {
	query := `SELECT ` + syncOpColumns + ` FROM sync_queue WHERE status != ? ORDER BY created_at`
	rows, err := s.db.Query(query, models.SyncStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []*models.SyncOperation
	for rows.Next() {
		op, err := scanSyncOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// GetSyncItem retrieves a queue entry by id.
func (s *Store) GetSyncItem(id string) (*models.SyncOperation, error) {
	stmt, err := s.PrepareStmt(`SELECT ` + syncOpColumns + ` FROM sync_queue WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	return scanSyncOperation(stmt.QueryRow(id))
}

// MarkSyncItemCompleted marks a queue entry as successfully replayed.
func (s *Store) MarkSyncItemCompleted(id string) error {
	result, err := s.db.Exec(`UPDATE sync_queue SET status = ?, error_message = NULL WHERE id = ?`,
		models.SyncStatusCompleted, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkSyncItemFailed increments the retry count, records the failure and
// leaves the entry in the queue for a future pass.
func (s *Store) MarkSyncItemFailed(id string, errMsg string) error {
	result, err := s.db.Exec(`
	UPDATE sync_queue
	SET status = ?, retry_count = retry_count + 1, last_retry_at = ?, error_message = ?
	WHERE id = ?`,
		models.SyncStatusFailed, time.Now().Unix(), errMsg, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HasPendingOperation reports whether a not-yet-completed queue entry exists
// for the given table and local record id.
func (s *Store) HasPendingOperation(tableName, recordID string) (bool, error) {
	stmt, err := s.PrepareStmt(`SELECT COUNT(*) FROM sync_queue WHERE table_name = ? AND record_id = ? AND status != ?`)
	if err != nil {
		return false, err
	}
	var count int
	if err := stmt.QueryRow(tableName, recordID, models.SyncStatusCompleted).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// RemoveCompletedSyncItems deletes completed queue entries and returns how
// many were removed.
func (s *Store) RemoveCompletedSyncItems() (int, error) {
	result, err := s.db.Exec(`DELETE FROM sync_queue WHERE status = ?`, models.SyncStatusCompleted)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}
