package checkpoint

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jiraharvest/pkg/logger"
)

const schema = `CREATE TABLE IF NOT EXISTS offsets (
	source      TEXT PRIMARY KEY,
	next_offset INTEGER NOT NULL,
	updated_at  TIMESTAMP NOT NULL
)`

const upsertOffset = `INSERT INTO offsets (source, next_offset, updated_at) VALUES (?, ?, ?)
ON CONFLICT(source) DO UPDATE SET next_offset = excluded.next_offset, updated_at = excluded.updated_at`

// SQLiteStore keeps offsets in a SQLite table, one row per source.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, log logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create offsets table: %w", err)
	}

	log.DebugWithFields("Checkpoint database opened", map[string]interface{}{
		"path":   path,
		"driver": DriverName,
	})

	return &SQLiteStore{db: db, path: path, logger: log}, nil
}

// Load reads every row.
func (s *SQLiteStore) Load(sources []string) (Offsets, error) {
	rows, err := s.db.Query("SELECT source, next_offset FROM offsets")
	if err != nil {
		return nil, fmt.Errorf("failed to query offsets: %w", err)
	}
	defer rows.Close()

	offsets := make(Offsets)
	for rows.Next() {
		var source string
		var offset int
		if err := rows.Scan(&source, &offset); err != nil {
			return nil, fmt.Errorf("failed to scan offset: %w", err)
		}
		if offset < 0 {
			s.logger.WarnWithFields("Negative checkpoint offset reset to zero", map[string]interface{}{
				"source": source,
				"offset": offset,
			})
			offset = 0
		}
		offsets[source] = offset
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read offsets: %w", err)
	}

	return fill(offsets, sources), nil
}

// Save upserts every entry in one transaction.
func (s *SQLiteStore) Save(offsets Offsets) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(upsertOffset)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, source := range offsets.Sources() {
		if _, err := stmt.Exec(source, offsets[source], now); err != nil {
			return fmt.Errorf("failed to save offset for %s: %w", source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit offsets: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
