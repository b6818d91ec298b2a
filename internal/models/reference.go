package models

// ClassInfo is read-only reference data cached from the remote backend.
// Caches are replaced wholesale on refresh, never merged.
type ClassInfo struct {
	ID       UUID   `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	SchoolID string `db:"school_id" json:"school_id,omitempty"`
	CachedAt int64  `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for ClassInfo.
func (ClassInfo) TableName() string {
	return "classes"
}

// School is read-only reference data cached from the remote backend.
type School struct {
	ID       UUID   `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	City     string `db:"city" json:"city,omitempty"`
	CachedAt int64  `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for School.
func (School) TableName() string {
	return "schools"
}
