package session

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"simstream/internal/config"
	"simstream/internal/repository"
)

const waitFor = 10 * time.Second
const tick = 10 * time.Millisecond

// journalFixture plays the external simulator: it owns the writer-side
// handle on a temp journal store.
type journalFixture struct {
	t    *testing.T
	path string
	db   *sql.DB
}

func newJournal(t *testing.T) *journalFixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &journalFixture{t: t, path: path, db: db}
}

func (f *journalFixture) exec(query string, args ...interface{}) {
	f.t.Helper()
	_, err := f.db.Exec(query, args...)
	require.NoError(f.t, err)
}

func (f *journalFixture) createMetadata() {
	f.exec(`CREATE TABLE IF NOT EXISTS Object_Info (object_name TEXT, table_name TEXT)`)
	f.exec(`CREATE TABLE IF NOT EXISTS Column_Info (table_name TEXT, column_name TEXT, attribute_name TEXT, data_type TEXT)`)
}

func (f *journalFixture) addObject(object, table string, columns ...[2]string) {
	f.t.Helper()
	f.createMetadata()
	f.exec(`INSERT INTO Object_Info (object_name, table_name) VALUES (?, ?)`, object, table)

	defs := []string{"s_time REAL"}
	for _, col := range columns {
		f.exec(`INSERT INTO Column_Info (table_name, column_name, attribute_name, data_type) VALUES (?, ?, ?, ?)`,
			table, col[0], col[1], "REAL")
		defs = append(defs, col[0]+" REAL")
	}
	f.exec(fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", ")))
}

func (f *journalFixture) insert(table string, sTime, val float64) {
	f.t.Helper()
	f.exec(fmt.Sprintf("INSERT INTO %s (s_time, val) VALUES (?, ?)", table), sTime, val)
}

func (f *journalFixture) insertSeries(table string, from, to, step float64) {
	f.t.Helper()
	for i := 0; from+float64(i)*step <= to+1e-9; i++ {
		v := from + float64(i)*step
		f.insert(table, v, v*10)
	}
}

func (f *journalFixture) config() *config.Config {
	cfg := config.DefaultConfig()
	cfg.DatabasePath = f.path
	cfg.SchemaProbeInterval = 20 * time.Millisecond
	cfg.SchemaRetryInterval = 20 * time.Millisecond
	return cfg
}

func waitDone(t *testing.T, s *DataSession) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatalf("session did not dispose in time, state %v", s.State())
	}
}

func TestWorker_LifecycleToDisposed(t *testing.T) {
	f := newJournal(t)
	f.addObject("Vehicle", "TableVehicle", [2]string{"val", "Val"})
	f.insertSeries("TableVehicle", 0.0, 2.0, 0.5)

	repo := repository.New(60)
	id := newSessionID(t, repo)
	sess := New(f.config(), repo, id)
	sess.Start()

	sess.Enqueue(1.0)
	sess.Enqueue(2.0)
	sess.MarkComplete(nil)
	waitDone(t, sess)

	require.Equal(t, Disposed, sess.State())
	require.NotZero(t, repo.Count())
	if _, ok := repo.Frame(2.0); !ok {
		t.Error("expected frame at 2.0 after drain")
	}
}

func TestWorker_CompletionCallbackRunsExactlyOnce(t *testing.T) {
	f := newJournal(t)
	f.addObject("Vehicle", "TableVehicle", [2]string{"val", "Val"})
	f.insertSeries("TableVehicle", 0.0, 1.0, 0.5)

	repo := repository.New(60)
	sess := New(f.config(), repo, newSessionID(t, repo))
	sess.Start()

	var calls atomic.Int32
	sess.Enqueue(1.0)
	sess.MarkComplete(func() { calls.Add(1) })
	waitDone(t, sess)

	// Give any erroneous second invocation a chance to show up.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
}

func TestWorker_EnqueueAfterCompleteIsDropped(t *testing.T) {
	f := newJournal(t)
	f.addObject("Vehicle", "TableVehicle", [2]string{"val", "Val"})

	repo := repository.New(60)
	sess := New(f.config(), repo, newSessionID(t, repo))
	sess.Start()

	sess.MarkComplete(nil)
	sess.Enqueue(99.0) // closed buffer: silently dropped
	waitDone(t, sess)

	if _, ok := repo.Frame(99.0); ok {
		t.Error("hint enqueued after completion must not produce frames")
	}
}

func TestWorker_StopWithoutStartedJournalWriter(t *testing.T) {
	// The journal file never appears: the worker parks in ConnectWait
	// and Stop is its only exit.
	cfg := config.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "never.db")

	repo := repository.New(60)
	sess := New(cfg, repo, newSessionID(t, repo))
	sess.Start()

	require.Eventually(t, func() bool { return sess.State() == ConnectWait }, waitFor, tick)
	sess.Stop()
	waitDone(t, sess)
	require.Equal(t, Disposed, sess.State())
}

func TestWorker_DoubleStopIsSafe(t *testing.T) {
	f := newJournal(t)
	repo := repository.New(60)
	sess := New(f.config(), repo, newSessionID(t, repo))
	sess.Start()

	sess.Stop()
	sess.Stop()
	waitDone(t, sess)
}

func newSessionID(t *testing.T, repo *repository.Repository) uuid.UUID {
	t.Helper()
	id := uuid.New()
	repo.StartNewSession(id)
	return id
}
