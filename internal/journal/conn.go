// Package journal reads the file-backed SQL store written by the
// external simulator: connection management, schema discovery against
// the Object_Info/Column_Info metadata tables, and cursor-driven range
// reads over the data tables.
package journal

import (
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Conn wraps the session's exclusive journal connection. The store is
// written by a separate process, so the reader opens in WAL mode with a
// busy timeout and keeps the pool at a single connection.
type Conn struct {
	db   *sqlx.DB
	path string
}

// Open opens the journal store at path. The caller owns the returned
// connection exclusively; pooling stays disabled so cursor reads and
// pragma statements share one underlying handle.
func Open(path string) (*Conn, error) {
	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %s", path)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping journal %s", path)
	}
	return &Conn{db: db, path: path}, nil
}

// DB exposes the underlying handle for queries.
func (c *Conn) DB() *sqlx.DB { return c.db }

// Path returns the journal file path.
func (c *Conn) Path() string { return c.path }

// Checkpoint asks SQLite for a passive WAL checkpoint. The external
// writer may hold the log; a refusal is not an error worth surfacing.
func (c *Conn) Checkpoint() {
	if _, err := c.db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		log.WithError(err).WithField("journal", c.path).Debug("passive WAL checkpoint refused")
	}
}

// Close checkpoints, closes the handle, and best-effort deletes the WAL
// sidecar files. Deletion fails while another process holds the store;
// that failure is ignored.
func (c *Conn) Close() error {
	c.Checkpoint()
	err := c.db.Close()

	for _, sidecar := range []string{c.path + "-wal", c.path + "-shm"} {
		if removeErr := os.Remove(sidecar); removeErr != nil && !os.IsNotExist(removeErr) {
			log.WithError(removeErr).WithField("file", sidecar).Debug("could not remove WAL sidecar")
		}
	}

	if err != nil {
		return errors.Wrapf(err, "close journal %s", c.path)
	}
	return nil
}
