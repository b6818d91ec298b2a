package models

// Note represents a free-form note attached to a student.
type Note struct {
	ID               UUID   `db:"id" json:"id"`
	StudentID        string `db:"student_id" json:"student_id"`
	Body             string `db:"body" json:"body"`
	Author           string `db:"author" json:"author,omitempty"`
	OfflineID        string `db:"offline_id" json:"offline_id,omitempty"`
	IsSynced         bool   `db:"is_synced" json:"is_synced"`
	OfflineCreatedAt int64  `db:"offline_created_at" json:"offline_created_at,omitempty"`
	CreatedAt        int64  `db:"created_at" json:"created_at"`
	UpdatedAt        int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Note.
func (Note) TableName() string {
	return "notes"
}
