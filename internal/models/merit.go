package models

// MeritAward represents merit points awarded to a student.
type MeritAward struct {
	ID               UUID   `db:"id" json:"id"`
	StudentID        string `db:"student_id" json:"student_id"`
	Points           int    `db:"points" json:"points"`
	Reason           string `db:"reason" json:"reason,omitempty"`
	AwardedBy        string `db:"awarded_by" json:"awarded_by,omitempty"`
	OfflineID        string `db:"offline_id" json:"offline_id,omitempty"`
	IsSynced         bool   `db:"is_synced" json:"is_synced"`
	OfflineCreatedAt int64  `db:"offline_created_at" json:"offline_created_at,omitempty"`
	CreatedAt        int64  `db:"created_at" json:"created_at"`
	UpdatedAt        int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for MeritAward.
func (MeritAward) TableName() string {
	return "merit_points"
}
