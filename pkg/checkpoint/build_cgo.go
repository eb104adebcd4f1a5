//go:build cgo_sqlite

package checkpoint

// Built with -tags cgo_sqlite (CGO_ENABLED=1): the C SQLite library.

import (
	_ "github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver used by SQLiteStore.
const DriverName = "sqlite3"
