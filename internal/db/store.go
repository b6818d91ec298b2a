package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/cubeclass/attendance-core/internal/models"
	"github.com/cubeclass/attendance-core/internal/uuid"
)

// TrackedCollections are the collections whose records carry offline sync
// metadata and participate in the save-or-queue write path.
var TrackedCollections = []string{"students", "attendance", "merit_points", "notes"}

// CollectionStats holds per-collection record counts.
type CollectionStats struct {
	Total    int `json:"total"`
	Unsynced int `json:"unsynced"`
}

// Store provides CRUD operations for all local collections.
// Statements are prepared on first use and cached for reuse.
type Store struct {
	db *sql.DB

	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewStore creates a new Store instance.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (s *Store) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (s *Store) Close() error {
	var firstErr error
	s.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// stampOffline fills the shared sync attributes for a tracked record.
// is_synced reflects whether the device is currently online; offline_id is
// assigned once and stays stable for the record's local lifetime.
func stampOffline(offlineID *string, isSynced *bool, offlineCreatedAt *int64, online bool) {
	if *offlineID == "" {
		*offlineID = uuid.NewOffline()
	}
	*isSynced = online
	if *offlineCreatedAt == 0 {
		*offlineCreatedAt = time.Now().Unix()
	}
}

// =====================================================
// Student Operations
// =====================================================

// SaveStudent stores a student, stamping sync metadata. Existing rows with
// the same id are replaced (last write wins).
func (s *Store) SaveStudent(st *models.Student, online bool) error {
	stampOffline(&st.OfflineID, &st.IsSynced, &st.OfflineCreatedAt, online)
	now := time.Now().Unix()
	if st.CreatedAt == 0 {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	query := `
	INSERT OR REPLACE INTO students (id, name, school_id, class_id, offline_id, is_synced, offline_created_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, st.ID, st.Name, st.SchoolID, st.ClassID,
		st.OfflineID, st.IsSynced, st.OfflineCreatedAt, st.CreatedAt, st.UpdatedAt)
	return err
}

const studentColumns = `id, name, school_id, class_id, offline_id, is_synced, offline_created_at, created_at, updated_at`

func scanStudent(row interface{ Scan(...interface{}) error }) (*models.Student, error) {
	var st models.Student
	var schoolID, classID sql.NullString
	var offlineCreatedAt sql.NullInt64
	err := row.Scan(&st.ID, &st.Name, &schoolID, &classID, &st.OfflineID,
		&st.IsSynced, &offlineCreatedAt, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	st.SchoolID = schoolID.String
	st.ClassID = classID.String
	st.OfflineCreatedAt = offlineCreatedAt.Int64
	return &st, nil
}

// GetStudent retrieves a student by id.
func (s *Store) GetStudent(id string) (*models.Student, error) {
	stmt, err := s.PrepareStmt(`SELECT ` + studentColumns + ` FROM students WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	return scanStudent(stmt.QueryRow(id))
}

// GetStudentByOfflineID retrieves a student by its offline correlation id.
func (s *Store) GetStudentByOfflineID(offlineID string) (*models.Student, error) {
	stmt, err := s.PrepareStmt(`SELECT ` + studentColumns + ` FROM students WHERE offline_id = ?`)
	if err != nil {
		return nil, err
	}
	return scanStudent(stmt.QueryRow(offlineID))
}

// ListStudents returns all students.
func (s *Store) ListStudents() ([]*models.Student, error) {
	rows, err := s.db.Query(`SELECT ` + studentColumns + ` FROM students ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []*models.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// UnsyncedStudents returns all students not yet accepted by the server.
func (s *Store) UnsyncedStudents() ([]*models.Student, error) {
	rows, err := s.db.Query(`SELECT ` + studentColumns + ` FROM students WHERE is_synced = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []*models.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// MarkStudentSynced reconciles the local student matched by offline_id with
// the server-returned authoritative record.
func (s *Store) MarkStudentSynced(offlineID string, server *models.Student) error {
	query := `
	UPDATE students
	SET id = ?, name = ?, school_id = ?, class_id = ?, is_synced = 1, updated_at = ?
	WHERE offline_id = ?
	`
	result, err := s.db.Exec(query, server.ID, server.Name, server.SchoolID,
		server.ClassID, time.Now().Unix(), offlineID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// =====================================================
// Attendance Operations
// =====================================================

// SaveAttendance stores an attendance record, stamping sync metadata.
func (s *Store) SaveAttendance(rec *models.AttendanceRecord, online bool) error {
	stampOffline(&rec.OfflineID, &rec.IsSynced, &rec.OfflineCreatedAt, online)
	now := time.Now().Unix()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
	INSERT OR REPLACE INTO attendance (id, student_id, class_id, date, status, offline_id, is_synced, offline_created_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, rec.ID, rec.StudentID, rec.ClassID, rec.Date, rec.Status,
		rec.OfflineID, rec.IsSynced, rec.OfflineCreatedAt, rec.CreatedAt, rec.UpdatedAt)
	return err
}

const attendanceColumns = `id, student_id, class_id, date, status, offline_id, is_synced, offline_created_at, created_at, updated_at`

func scanAttendance(row interface{ Scan(...interface{}) error }) (*models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	var classID sql.NullString
	var offlineCreatedAt sql.NullInt64
	err := row.Scan(&rec.ID, &rec.StudentID, &classID, &rec.Date, &rec.Status,
		&rec.OfflineID, &rec.IsSynced, &offlineCreatedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.ClassID = classID.String
	rec.OfflineCreatedAt = offlineCreatedAt.Int64
	return &rec, nil
}

func (s *Store) queryAttendance(query string, args ...interface{}) ([]*models.AttendanceRecord, error) {
	stmt, err := s.PrepareStmt(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetAttendance retrieves an attendance record by id.
func (s *Store) GetAttendance(id string) (*models.AttendanceRecord, error) {
	stmt, err := s.PrepareStmt(`SELECT ` + attendanceColumns + ` FROM attendance WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	return scanAttendance(stmt.QueryRow(id))
}

// AttendanceByStudent returns attendance records for one student.
func (s *Store) AttendanceByStudent(studentID string) ([]*models.AttendanceRecord, error) {
	return s.queryAttendance(`SELECT `+attendanceColumns+` FROM attendance WHERE student_id = ? ORDER BY date DESC`, studentID)
}

// AttendanceByDate returns attendance records for one date.
func (s *Store) AttendanceByDate(date string) ([]*models.AttendanceRecord, error) {
	return s.queryAttendance(`SELECT `+attendanceColumns+` FROM attendance WHERE date = ?`, date)
}

// UnsyncedAttendance returns all attendance records not yet accepted by the server.
func (s *Store) UnsyncedAttendance() ([]*models.AttendanceRecord, error) {
	return s.queryAttendance(`SELECT ` + attendanceColumns + ` FROM attendance WHERE is_synced = 0`)
}

// MarkAttendanceSynced reconciles the local record matched by offline_id with
// the server-returned authoritative record.
func (s *Store) MarkAttendanceSynced(offlineID string, server *models.AttendanceRecord) error {
	query := `
	UPDATE attendance
	SET id = ?, student_id = ?, class_id = ?, date = ?, status = ?, is_synced = 1, updated_at = ?
	WHERE offline_id = ?
	`
	result, err := s.db.Exec(query, server.ID, server.StudentID, server.ClassID,
		server.Date, server.Status, time.Now().Unix(), offlineID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// =====================================================
// Merit Award Operations
// =====================================================

// SaveMeritAward stores a merit award, stamping sync metadata.
func (s *Store) SaveMeritAward(aw *models.MeritAward, online bool) error {
	stampOffline(&aw.OfflineID, &aw.IsSynced, &aw.OfflineCreatedAt, online)
	now := time.Now().Unix()
	if aw.CreatedAt == 0 {
		aw.CreatedAt = now
	}
	aw.UpdatedAt = now

	query := `
	INSERT OR REPLACE INTO merit_points (id, student_id, points, reason, awarded_by, offline_id, is_synced, offline_created_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, aw.ID, aw.StudentID, aw.Points, aw.Reason, aw.AwardedBy,
		aw.OfflineID, aw.IsSynced, aw.OfflineCreatedAt, aw.CreatedAt, aw.UpdatedAt)
	return err
}

const meritColumns = `id, student_id, points, reason, awarded_by, offline_id, is_synced, offline_created_at, created_at, updated_at`

func scanMeritAward(row interface{ Scan(...interface{}) error }) (*models.MeritAward, error) {
	var aw models.MeritAward
	var reason, awardedBy sql.NullString
	var offlineCreatedAt sql.NullInt64
	err := row.Scan(&aw.ID, &aw.StudentID, &aw.Points, &reason, &awardedBy,
		&aw.OfflineID, &aw.IsSynced, &offlineCreatedAt, &aw.CreatedAt, &aw.UpdatedAt)
	if err != nil {
		return nil, err
	}
	aw.Reason = reason.String
	aw.AwardedBy = awardedBy.String
	aw.OfflineCreatedAt = offlineCreatedAt.Int64
	return &aw, nil
}

func (s *Store) queryMeritAwards(query string, args ...interface{}) ([]*models.MeritAward, error) {
	stmt, err := s.PrepareStmt(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var awards []*models.MeritAward
	for rows.Next() {
		aw, err := scanMeritAward(rows)
		if err != nil {
			return nil, err
		}
		awards = append(awards, aw)
	}
	return awards, rows.Err()
}

// GetMeritAward retrieves a merit award by id.
func (s *Store) GetMeritAward(id string) (*models.MeritAward, error) {
	stmt, err := s.PrepareStmt(`SELECT ` + meritColumns + ` FROM merit_points WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	return scanMeritAward(stmt.QueryRow(id))
}

// MeritAwardsByStudent returns merit awards for one student.
func (s *Store) MeritAwardsByStudent(studentID string) ([]*models.MeritAward, error) {
	return s.queryMeritAwards(`SELECT `+meritColumns+` FROM merit_points WHERE student_id = ? ORDER BY created_at DESC`, studentID)
}

// UnsyncedMeritAwards returns all merit awards not yet accepted by the server.
func (s *Store) UnsyncedMeritAwards() ([]*models.MeritAward, error) {
	return s.queryMeritAwards(`SELECT ` + meritColumns + ` FROM merit_points WHERE is_synced = 0`)
}

// MarkMeritAwardSynced reconciles the local award matched by offline_id with
// the server-returned authoritative record.
func (s *Store) MarkMeritAwardSynced(offlineID string, server *models.MeritAward) error {
	query := `
	UPDATE merit_points
	SET id = ?, student_id = ?, points = ?, reason = ?, awarded_by = ?, is_synced = 1, updated_at = ?
	WHERE offline_id = ?
	`
	result, err := s.db.Exec(query, server.ID, server.StudentID, server.Points,
		server.Reason, server.AwardedBy, time.Now().Unix(), offlineID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// =====================================================
// Note Operations
// =====================================================

// SaveNote stores a note, stamping sync metadata.
func (s *Store) SaveNote(n *models.Note, online bool) error {
	stampOffline(&n.OfflineID, &n.IsSynced, &n.OfflineCreatedAt, online)
	now := time.Now().Unix()
	if n.CreatedAt == 0 {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	query := `
	INSERT OR REPLACE INTO notes (id, student_id, body, author, offline_id, is_synced, offline_created_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, n.ID, n.StudentID, n.Body, n.Author,
		n.OfflineID, n.IsSynced, n.OfflineCreatedAt, n.CreatedAt, n.UpdatedAt)
	return err
}

const noteColumns = `id, student_id, body, author, offline_id, is_synced, offline_created_at, created_at, updated_at`

func scanNote(row interface{ Scan(...interface{}) error }) (*models.Note, error) {
	var n models.Note
	var author sql.NullString
	var offlineCreatedAt sql.NullInt64
	err := row.Scan(&n.ID, &n.StudentID, &n.Body, &author,
		&n.OfflineID, &n.IsSynced, &offlineCreatedAt, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.Author = author.String
	n.OfflineCreatedAt = offlineCreatedAt.Int64
	return &n, nil
}

func (s *Store) queryNotes(query string, args ...interface{}) ([]*models.Note, error) {
	stmt, err := s.PrepareStmt(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// GetNote retrieves a note by id.
func (s *Store) GetNote(id string) (*models.Note, error) {
	stmt, err := s.PrepareStmt(`SELECT ` + noteColumns + ` FROM notes WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	return scanNote(stmt.QueryRow(id))
}

// NotesByStudent returns notes for one student.
func (s *Store) NotesByStudent(studentID string) ([]*models.Note, error) {
	return s.queryNotes(`SELECT `+noteColumns+` FROM notes WHERE student_id = ? ORDER BY created_at DESC`, studentID)
}

// UnsyncedNotes returns all notes not yet accepted by the server.
func (s *Store) UnsyncedNotes() ([]*models.Note, error) {
	return s.queryNotes(`SELECT ` + noteColumns + ` FROM notes WHERE is_synced = 0`)
}

// MarkNoteSynced reconciles the local note matched by offline_id with the
// server-returned authoritative record.
func (s *Store) MarkNoteSynced(offlineID string, server *models.Note) error {
	query := `
	UPDATE notes
	SET id = ?, student_id = ?, body = ?, author = ?, is_synced = 1, updated_at = ?
	WHERE offline_id = ?
	`
	result, err := s.db.Exec(query, server.ID, server.StudentID, server.Body,
		server.Author, time.Now().Unix(), offlineID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
