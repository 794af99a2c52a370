package memory

import (
	"database/sql"
	"time"
)

// DB exposes the internal *sql.DB for test helpers in memory_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetNow overrides the trigger engine clock for tests.
func (t *TriggerEngine) SetNow(fn func() time.Time) {
	t.now = fn
}
