// Package sqlite archives terminal jobs to a SQLite table so their
// history outlives the scheduler's result TTL.
//
// The Archive is an extension: register it with the scheduler and every
// completed or failed job is upserted into backlog_jobs. The archive is
// write-only from the scheduler's point of view; Status never reads it.
//
// Usage:
//
//	db, err := sql.Open("sqlite", "file:backlog.db?_pragma=journal_mode(WAL)")
//	a := sqlite.New(db)
//	if err := a.Migrate(ctx); err != nil { ... }
//	s, err := scheduler.New(cfg, scheduler.WithExtension(a))
package sqlite
