package sync

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cubeclass/attendance-core/internal/logging"
	"github.com/cubeclass/attendance-core/internal/models"
	"github.com/cubeclass/attendance-core/internal/uuid"
)

// SaveStudent writes a student to the remote backend if online, falling back
// to local buffering on any failure. The caller always gets a record back
// immediately: the server's authoritative record, or a local placeholder
// with is_synced=false that a later pass will replay. Connectivity failures
// never surface as errors; only local-store failures do.
func (c *Coordinator) SaveStudent(ctx context.Context, st *models.Student) (*models.Student, error) {
	if c.IsOnline() {
		raw, err := c.remote.Insert(ctx, "students", st)
		if err == nil {
			var server models.Student
			if err = json.Unmarshal(raw, &server); err == nil {
				server.OfflineID = st.OfflineID
				if err := c.store.SaveStudent(&server, true); err != nil {
					return nil, err
				}
				c.raiseEvent(ctx, EventStudentCreated, &server, "students")
				return &server, nil
			}
		}
		logging.Debug("Remote student write failed, buffering locally",
			map[string]interface{}{"error": err.Error()})
	}

	st.ID = models.UUID(uuid.NewOffline())
	if err := c.store.SaveStudent(st, false); err != nil {
		return nil, err
	}
	if err := c.enqueueInsert("students", string(st.ID), st); err != nil {
		return nil, err
	}
	return st, nil
}

// SaveAttendance writes an attendance record, online or buffered.
func (c *Coordinator) SaveAttendance(ctx context.Context, rec *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if c.IsOnline() {
		raw, err := c.remote.Insert(ctx, "attendance", rec)
		if err == nil {
			var server models.AttendanceRecord
			if err = json.Unmarshal(raw, &server); err == nil {
				server.OfflineID = rec.OfflineID
				if err := c.store.SaveAttendance(&server, true); err != nil {
					return nil, err
				}
				c.raiseEvent(ctx, EventAttendanceRecorded, &server, "attendance")
				return &server, nil
			}
		}
		logging.Debug("Remote attendance write failed, buffering locally",
			map[string]interface{}{"error": err.Error()})
	}

	rec.ID = models.UUID(uuid.NewOffline())
	if err := c.store.SaveAttendance(rec, false); err != nil {
		return nil, err
	}
	if err := c.enqueueInsert("attendance", string(rec.ID), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SaveMeritAward writes a merit award, online or buffered.
func (c *Coordinator) SaveMeritAward(ctx context.Context, aw *models.MeritAward) (*models.MeritAward, error) {
	if c.IsOnline() {
		raw, err := c.remote.Insert(ctx, "merit_points", aw)
		if err == nil {
			var server models.MeritAward
			if err = json.Unmarshal(raw, &server); err == nil {
				server.OfflineID = aw.OfflineID
				if err := c.store.SaveMeritAward(&server, true); err != nil {
					return nil, err
				}
				c.raiseEvent(ctx, EventMeritAwarded, &server, "merit_points")
				return &server, nil
			}
		}
		logging.Debug("Remote merit award write failed, buffering locally",
			map[string]interface{}{"error": err.Error()})
	}

	aw.ID = models.UUID(uuid.NewOffline())
	if err := c.store.SaveMeritAward(aw, false); err != nil {
		return nil, err
	}
	if err := c.enqueueInsert("merit_points", string(aw.ID), aw); err != nil {
		return nil, err
	}
	return aw, nil
}

// SaveNote writes a note, online or buffered.
func (c *Coordinator) SaveNote(ctx context.Context, n *models.Note) (*models.Note, error) {
	if c.IsOnline() {
		raw, err := c.remote.Insert(ctx, "notes", n)
		if err == nil {
			var server models.Note
			if err = json.Unmarshal(raw, &server); err == nil {
				server.OfflineID = n.OfflineID
				if err := c.store.SaveNote(&server, true); err != nil {
					return nil, err
				}
				c.raiseEvent(ctx, EventNoteCreated, &server, "notes")
				return &server, nil
			}
		}
		logging.Debug("Remote note write failed, buffering locally",
			map[string]interface{}{"error": err.Error()})
	}

	n.ID = models.UUID(uuid.NewOffline())
	if err := c.store.SaveNote(n, false); err != nil {
		return nil, err
	}
	if err := c.enqueueInsert("notes", string(n.ID), n); err != nil {
		return nil, err
	}
	return n, nil
}

// enqueueInsert records a pending insert for a locally buffered record. The
// record was already stamped by the store, so its JSON embeds the offline_id
// the replay needs for reconciliation.
func (c *Coordinator) enqueueInsert(table, recordID string, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.store.AddToSyncQueue(&models.SyncOperation{
		OperationType: models.OperationInsert,
		TableName:     table,
		RecordID:      recordID,
		Data:          data,
	})
}

// RefreshCache replaces the local reference caches with fresh snapshots from
// the remote backend. A no-op while offline. Classes and schools are fetched
// concurrently.
func (c *Coordinator) RefreshCache(ctx context.Context) error {
	if !c.IsOnline() {
		return nil
	}

	var wg sync.WaitGroup
	var classErr, schoolErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		raw, err := c.remote.Select(ctx, "classes", nil, "name")
		if err != nil {
			classErr = err
			return
		}
		var classes []*models.ClassInfo
		if err := json.Unmarshal(raw, &classes); err != nil {
			classErr = err
			return
		}
		classErr = c.store.CacheClasses(classes)
	}()
	go func() {
		defer wg.Done()
		raw, err := c.remote.Select(ctx, "schools", nil, "name")
		if err != nil {
			schoolErr = err
			return
		}
		var schools []*models.School
		if err := json.Unmarshal(raw, &schools); err != nil {
			schoolErr = err
			return
		}
		schoolErr = c.store.CacheSchools(schools)
	}()
	wg.Wait()

	if classErr != nil {
		return classErr
	}
	return schoolErr
}
