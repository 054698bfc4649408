package sqlite

// schema creates the archive table and its indexes. Statements are
// idempotent so Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS backlog_jobs (
		id                 TEXT PRIMARY KEY,
		state              TEXT NOT NULL,
		priority           INTEGER NOT NULL DEFAULT 0,
		max_retries        INTEGER NOT NULL DEFAULT 0,
		retry_count        INTEGER NOT NULL DEFAULT 0,
		result_json        TEXT,
		error_kind         TEXT,
		error_message      TEXT,
		error_code         TEXT,
		error_stack        TEXT,
		processing_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at         TEXT NOT NULL,
		started_at         TEXT,
		completed_at       TEXT,
		failed_at          TEXT,
		archived_at        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backlog_jobs_state
		ON backlog_jobs (state)`,
	`CREATE INDEX IF NOT EXISTS idx_backlog_jobs_created
		ON backlog_jobs (created_at)`,
}
