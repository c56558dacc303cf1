// Package session implements the data session worker: one goroutine
// per session that polls the journal store, merges per-table row
// streams into time-indexed frames, and publishes them to the shared
// repository under the session's identifier.
package session

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"simstream/internal/config"
	"simstream/internal/journal"
	"simstream/internal/repository"
	"simstream/pkg/types"
)

// State tracks the worker's position in its lifecycle.
type State int32

const (
	Starting State = iota
	ConnectWait
	SchemaWait
	Processing
	DrainTail
	Finalizing
	Disposed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case ConnectWait:
		return "connect-wait"
	case SchemaWait:
		return "schema-wait"
	case Processing:
		return "processing"
	case DrainTail:
		return "drain-tail"
	case Finalizing:
		return "finalizing"
	case Disposed:
		return "disposed"
	}
	return "unknown"
}

const (
	// queryMargin widens a fast-forward range so rows at exactly the
	// jumped-to time fall inside the half-open read window.
	queryMargin = 1e-6

	// yieldEvery and yieldPause give the external writer room to
	// checkpoint its log during dense hint streams.
	yieldEvery = 50
	yieldPause = 10 * time.Millisecond

	// connectRetryInterval paces reopen attempts while the store file
	// exists but cannot be opened yet.
	connectRetryInterval = 500 * time.Millisecond
)

// ChunkFunc observes each published chunk. Used by tests and view glue.
type ChunkFunc func(chunk types.Chunk)

// DataSession owns one journal connection, a bounded time-hint buffer,
// per-table read cursors, and the worker goroutine driving them. It is
// created by the data service and torn down either by draining
// (MarkComplete) or by force (Stop).
type DataSession struct {
	cfg  *config.Config
	repo *repository.Repository
	id   uuid.UUID

	hints  *hintBuffer
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32

	mu         sync.Mutex
	completion func()

	chunkMu sync.RWMutex
	onChunk []ChunkFunc

	// Polling cursors. Touched only by the worker goroutine.
	reader         *journal.Reader
	nextCheckpoint float64
	lastSeen       float64
}

// New creates a session bound to a validated config, the shared
// repository, and the identifier issued by the simulation context. The
// worker does not run until Start.
func New(cfg *config.Config, repo *repository.Repository, id uuid.UUID) *DataSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &DataSession{
		cfg:    cfg.Clone(),
		repo:   repo,
		id:     id,
		hints:  newHintBuffer(cfg.HintBufferSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (s *DataSession) Start() {
	go s.run()
}

// ID returns the session identifier stamped on every published chunk.
func (s *DataSession) ID() uuid.UUID { return s.id }

// State returns the worker's current lifecycle state.
func (s *DataSession) State() State { return State(s.state.Load()) }

func (s *DataSession) setState(st State) { s.state.Store(int32(st)) }

// Done closes when the worker has released all resources.
func (s *DataSession) Done() <-chan struct{} { return s.done }

// Enqueue offers a simulation-time hint. Never blocks; hints are
// silently dropped when the buffer is full or closed.
func (s *DataSession) Enqueue(t float64) {
	s.hints.Offer(t)
}

// MarkComplete installs an optional completion callback and closes the
// buffer for further input. The worker keeps draining what is already
// queued, sweeps the tail, and then runs the callback exactly once —
// unless a Stop intervenes first.
func (s *DataSession) MarkComplete(callback func()) {
	s.mu.Lock()
	s.completion = callback
	s.mu.Unlock()
	s.hints.CloseInput()
}

// Stop forces termination. The completion callback is cleared before
// cancellation fires so the worker's finalizer can never observe it;
// queued hints and the tail sweep are abandoned. Does not wait.
func (s *DataSession) Stop() {
	s.mu.Lock()
	s.completion = nil
	s.mu.Unlock()
	s.hints.CloseInput()
	s.cancel()
}

// OnChunkProcessed registers an observer fired after each successful
// publication.
func (s *DataSession) OnChunkProcessed(f ChunkFunc) {
	s.chunkMu.Lock()
	defer s.chunkMu.Unlock()
	s.onChunk = append(s.onChunk, f)
}

func (s *DataSession) emitChunk(chunk types.Chunk) {
	s.chunkMu.RLock()
	observers := make([]ChunkFunc, len(s.onChunk))
	copy(observers, s.onChunk)
	s.chunkMu.RUnlock()
	for _, f := range observers {
		f(chunk)
	}
}

// run is the worker body. Any failure unwinds to the finalizer so the
// connection, buffer and cancellation handle always release.
func (s *DataSession) run() {
	defer close(s.done)

	var conn *journal.Conn
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("session", s.id).Errorf("data session worker failed: %v", r)
			}
		}()

		s.setState(ConnectWait)
		conn = s.connect()
		if conn == nil {
			return
		}

		s.setState(SchemaWait)
		schema, err := journal.LoadSchema(s.ctx, conn, journal.SchemaOptions{
			ExpectedColumnCounts: s.cfg.ExpectedColumnCounts,
			ProbeInterval:        s.cfg.SchemaProbeInterval,
			RetryInterval:        s.cfg.SchemaRetryInterval,
		})
		if err != nil {
			return
		}
		s.repo.SetSchema(schema)
		s.reader = journal.NewReader(conn, schema)

		s.setState(Processing)
		if s.processLoop() {
			s.setState(DrainTail)
			s.sweepTail()
		}
	}()

	s.finalize(conn)
}

// connect waits for the journal file and opens it, retrying until the
// open succeeds or the session is cancelled.
func (s *DataSession) connect() *journal.Conn {
	if !journal.WaitForFile(s.ctx, s.cfg.DatabasePath) {
		return nil
	}
	for {
		conn, err := journal.Open(s.cfg.DatabasePath)
		if err == nil {
			return conn
		}
		log.WithError(err).WithField("session", s.id).Warn("journal open failed, retrying")

		timer := time.NewTimer(connectRetryInterval)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// processLoop consumes time hints in FIFO order and publishes a range
// whenever a hint reaches the next checkpoint. Reports true on a clean
// drain (buffer closed and empty) and false on cancellation.
func (s *DataSession) processLoop() bool {
	s.nextCheckpoint = round1(s.cfg.QueryInterval)
	iterations := 0

	for {
		if s.ctx.Err() != nil {
			return false
		}

		select {
		case <-s.ctx.Done():
			return false

		case t, ok := <-s.hints.C():
			if !ok {
				// Input closed and drained.
				return s.ctx.Err() == nil
			}
			if t > s.lastSeen {
				s.lastSeen = t
			}
			if t >= s.nextCheckpoint {
				s.advance(t)
			}

			iterations++
			if iterations%yieldEvery == 0 {
				// Let the external writer checkpoint its log.
				timer := time.NewTimer(yieldPause)
				select {
				case <-s.ctx.Done():
				case <-timer.C:
				}
				timer.Stop()
			}
		}
	}
}

// advance publishes the range ending at the current checkpoint, then
// moves the checkpoint past the hint. A hint more than one interval
// ahead fast-forwards: the missed checkpoints collapse into one extra
// range read ending just past the hint, with a frame forced at the hint
// itself so the time axis keeps a point there.
func (s *DataSession) advance(t float64) {
	s.processRange(s.nextCheckpoint, s.nextCheckpoint)

	gap := t - s.nextCheckpoint
	if gap > s.cfg.QueryInterval {
		s.processRange(t+queryMargin, t)
		steps := math.Floor(gap/s.cfg.QueryInterval) + 1
		s.nextCheckpoint = round1(s.nextCheckpoint + steps*s.cfg.QueryInterval)
	} else {
		s.nextCheckpoint = round1(s.nextCheckpoint + s.cfg.QueryInterval)
	}
}

// processRange polls all tables up to end, forcing a frame at forceAt,
// and publishes the result under the session tag.
func (s *DataSession) processRange(end, forceAt float64) {
	chunk := s.reader.ReadRange(s.ctx, end, forceAt)
	if len(chunk) == 0 {
		return
	}
	s.repo.StoreChunk(chunk, s.id)
	log.WithField("session", s.id).WithField("time", end).
		Debugf("published %d frame(s)", len(chunk))
	s.emitChunk(chunk)
}

// sweepTail performs the final polling pass up to the last observed
// time. The sweep belongs to graceful shutdown only, so it ignores the
// cancellation token and always runs to completion.
func (s *DataSession) sweepTail() {
	if s.reader == nil {
		return
	}
	chunk := s.reader.ReadRange(context.Background(), s.lastSeen, journal.NoForce)
	if len(chunk) == 0 {
		return
	}
	s.repo.StoreChunk(chunk, s.id)
	s.emitChunk(chunk)
}

// finalize runs the completion callback left in its slot (Stop clears
// the slot before cancelling, so a forced stop never reaches it),
// checkpoints and closes the connection, and releases the buffer and
// cancellation handle.
func (s *DataSession) finalize(conn *journal.Conn) {
	s.setState(Finalizing)

	s.mu.Lock()
	callback := s.completion
	s.completion = nil
	s.mu.Unlock()
	if callback != nil {
		callback()
	}

	if conn != nil {
		if err := conn.Close(); err != nil {
			log.WithError(err).WithField("session", s.id).Warn("journal close failed")
		}
	}

	s.hints.CloseInput()
	s.cancel()
	s.setState(Disposed)
	log.WithField("session", s.id).Info("data session disposed")
}

// round1 keeps checkpoint arithmetic at one-decimal precision to
// suppress floating drift across many advances.
func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
