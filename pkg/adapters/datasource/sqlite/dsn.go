package sqlite

import (
	"strings"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
)

// dsnParams opens an existing file read-write (never creates one), enables
// foreign key enforcement and WAL, and waits on locks instead of failing fast.
const dsnParams = "mode=rw&_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

// ToDSN converts a sqlite:// URL or bare file path into a go-sqlite3 URI DSN.
func ToDSN(connString string) string {
	path := datasource.StripSQLitePrefix(connString)
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + dsnParams
}
