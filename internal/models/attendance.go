package models

// Attendance status values.
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceLate    = "late"
)

// AttendanceRecord represents a single class attendance entry.
type AttendanceRecord struct {
	ID               UUID   `db:"id" json:"id"`
	StudentID        string `db:"student_id" json:"student_id"`
	ClassID          string `db:"class_id" json:"class_id,omitempty"`
	Date             string `db:"date" json:"date"` // YYYY-MM-DD
	Status           string `db:"status" json:"status"`
	OfflineID        string `db:"offline_id" json:"offline_id,omitempty"`
	IsSynced         bool   `db:"is_synced" json:"is_synced"`
	OfflineCreatedAt int64  `db:"offline_created_at" json:"offline_created_at,omitempty"`
	CreatedAt        int64  `db:"created_at" json:"created_at"`
	UpdatedAt        int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for AttendanceRecord.
func (AttendanceRecord) TableName() string {
	return "attendance"
}
