package store

import (
	"database/sql"
	"fmt"

	"vergabeflow/internal/logging"
)

// Schema versions:
// v1: analyses table (ids, stage, inputs, questions/answers as JSON, timestamps)
// v2: exported_path, exported_at for the last PDF written from the history
const CurrentSchemaVersion = 2

// Migration adds a column missing from databases created by an older version.
type Migration struct {
	Version int
	Table   string
	Column  string
	Def     string
}

var pendingMigrations = []Migration{
	{2, "analyses", "exported_path", "TEXT NOT NULL DEFAULT ''"},
	{2, "analyses", "exported_at", "INTEGER NOT NULL DEFAULT 0"},
}

// RunMigrations brings db up to CurrentSchemaVersion.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()
	log := logging.Get(logging.CategoryStore)

	from := GetSchemaVersion(db)
	if from >= CurrentSchemaVersion {
		return nil
	}

	applied := 0
	for _, m := range pendingMigrations {
		if m.Version <= from {
			continue
		}
		if !tableExists(db, m.Table) {
			log.Debugw("table missing, skipping migration", "table", m.Table, "column", m.Column)
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %s.%s failed: %w", m.Table, m.Column, err)
		}
		applied++
	}

	if err := SetSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return err
	}
	log.Infow("schema migrated", "from", from, "to", CurrentSchemaVersion, "columns_added", applied)
	return nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &primaryKey); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
	return err == nil
}

// GetSchemaVersion returns the user_version recorded in db.
func GetSchemaVersion(db *sql.DB) int {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0
	}
	return v
}

// SetSchemaVersion records version in db.
func SetSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}
