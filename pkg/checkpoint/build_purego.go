//go:build !cgo_sqlite

package checkpoint

// Default build: pure Go SQLite, no C toolchain required.

import (
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver used by SQLiteStore.
const DriverName = "sqlite"
