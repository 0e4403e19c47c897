package ostore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// snapshotIndex writes a point-in-time copy of the sqlite database at src to
// dst. VACUUM INTO runs inside sqlite's own locking, so the copy is
// consistent even while another process writes to the index.
func snapshotIndex(src, dst string) error {
	db, err := sql.Open("sqlite3", "file:"+src+"?mode=ro&_busy_timeout=10000")
	if err != nil {
		return fmt.Errorf("could not open index database %s: %w", src, err)
	}
	defer db.Close()

	if _, err := db.Exec("VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("could not snapshot index database %s: %w", src, err)
	}
	return nil
}
