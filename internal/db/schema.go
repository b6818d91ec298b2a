package db

// schemaMigrations defines the full local schema. Tracked collections carry
// the offline sync attributes (offline_id, is_synced, offline_created_at)
// and secondary indexes for foreign-key and sync-status lookups.
var schemaMigrations = []migration{
	{
		version:     1,
		description: "core_collections",
		up: `
		CREATE TABLE students (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			school_id TEXT,
			class_id TEXT,
			offline_id TEXT NOT NULL,
			is_synced INTEGER NOT NULL DEFAULT 0,
			offline_created_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX idx_students_offline_id ON students(offline_id);
		CREATE INDEX idx_students_is_synced ON students(is_synced);
		CREATE INDEX idx_students_school_id ON students(school_id);

		CREATE TABLE attendance (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			class_id TEXT,
			date TEXT NOT NULL,
			status TEXT NOT NULL,
			offline_id TEXT NOT NULL,
			is_synced INTEGER NOT NULL DEFAULT 0,
			offline_created_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX idx_attendance_offline_id ON attendance(offline_id);
		CREATE INDEX idx_attendance_student_id ON attendance(student_id);
		CREATE INDEX idx_attendance_date ON attendance(date);
		CREATE INDEX idx_attendance_is_synced ON attendance(is_synced);

		CREATE TABLE merit_points (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			points INTEGER NOT NULL,
			reason TEXT,
			awarded_by TEXT,
			offline_id TEXT NOT NULL,
			is_synced INTEGER NOT NULL DEFAULT 0,
			offline_created_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX idx_merit_points_offline_id ON merit_points(offline_id);
		CREATE INDEX idx_merit_points_student_id ON merit_points(student_id);
		CREATE INDEX idx_merit_points_is_synced ON merit_points(is_synced);

		CREATE TABLE notes (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			body TEXT NOT NULL,
			author TEXT,
			offline_id TEXT NOT NULL,
			is_synced INTEGER NOT NULL DEFAULT 0,
			offline_created_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX idx_notes_offline_id ON notes(offline_id);
		CREATE INDEX idx_notes_student_id ON notes(student_id);
		CREATE INDEX idx_notes_is_synced ON notes(is_synced);

		CREATE TABLE sync_queue (
			id TEXT PRIMARY KEY,
			operation_type TEXT NOT NULL,
			table_name TEXT NOT NULL,
			record_id TEXT NOT NULL,
			data TEXT NOT NULL,
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_retry_at INTEGER,
			error_message TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX idx_sync_queue_status ON sync_queue(status);
		CREATE INDEX idx_sync_queue_table_name ON sync_queue(table_name);
		CREATE INDEX idx_sync_queue_created_at ON sync_queue(created_at);

		CREATE TABLE classes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			school_id TEXT,
			cached_at INTEGER NOT NULL
		);

		CREATE TABLE schools (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			city TEXT,
			cached_at INTEGER NOT NULL
		);
		`,
		down: `
		DROP TABLE IF EXISTS schools;
		DROP TABLE IF EXISTS classes;
		DROP TABLE IF EXISTS sync_queue;
		DROP TABLE IF EXISTS notes;
		DROP TABLE IF EXISTS merit_points;
		DROP TABLE IF EXISTS attendance;
		DROP TABLE IF EXISTS students;
		`,
	},
	{
		version:     2,
		description: "kv_store",
		up: `
		CREATE TABLE kv_store (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
		`,
		down: `
		DROP TABLE IF EXISTS kv_store;
		`,
	},
}
