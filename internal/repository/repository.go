// Package repository holds the process-wide store of published frames.
// Frames are tagged by session, indexed by simulation time, evicted by
// a sliding window, and fanned out to subscribers on every store.
package repository

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"simstream/pkg/types"
)

// DefaultWindowSize is the sliding window, in simulation seconds,
// applied when no explicit window is configured.
const DefaultWindowSize = 60.0

// Subscriber receives every stored chunk as a time-ascending frame list
// together with the session that produced it. Subscribers run
// synchronously on the storing goroutine after the write lock is
// released, so they must be short and must not block.
type Subscriber func(frames []*types.Frame, sessionID uuid.UUID)

// Repository is the shared frame store. All methods are safe for
// concurrent use.
type Repository struct {
	mu        sync.RWMutex
	frames    map[float64]*types.Frame
	times     []float64 // sorted ascending, one entry per frame
	sessionID uuid.UUID
	schema    *types.Schema
	window    float64

	subMu       sync.RWMutex
	subscribers map[int]Subscriber
	nextHandle  int
}

// New creates a repository with the given sliding window in simulation
// seconds; a non-positive window falls back to DefaultWindowSize.
func New(window float64) *Repository {
	if window <= 0 {
		window = DefaultWindowSize
	}
	return &Repository{
		frames:      make(map[float64]*types.Frame),
		window:      window,
		subscribers: make(map[int]Subscriber),
	}
}

// SessionID returns the current session tag; uuid.Nil when no session
// has ever started.
func (r *Repository) SessionID() uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessionID
}

// Schema returns the schema installed by the current session, or nil.
func (r *Repository) Schema() *types.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schema
}

// SetSchema installs the schema discovered by the current session.
func (r *Repository) SetSchema(schema *types.Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schema = schema
}

// StartNewSession atomically clears every stored frame and the schema,
// then installs the new session tag. Destructive even when the tag is
// unchanged.
func (r *Repository) StartNewSession(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = make(map[float64]*types.Frame)
	r.times = nil
	r.schema = nil
	r.sessionID = sessionID
}

// StoreChunk merges a published chunk into the store. Chunks stamped
// with a stale session tag are dropped whole; the tag is rechecked
// inside the lock because a new session may install itself while the
// writer waits. Subscribers are notified outside the lock with the
// chunk's frames in ascending time order.
func (r *Repository) StoreChunk(chunk types.Chunk, sessionID uuid.UUID) {
	if len(chunk) == 0 {
		return
	}
	if r.SessionID() != sessionID {
		log.WithField("session", sessionID).Debug("dropping chunk from stale session")
		return
	}

	r.mu.Lock()
	if r.sessionID != sessionID {
		r.mu.Unlock()
		log.WithField("session", sessionID).Debug("dropping chunk from stale session")
		return
	}

	for t, frame := range chunk {
		if existing, ok := r.frames[t]; ok {
			existing.MergeFrom(frame)
			continue
		}
		r.frames[t] = frame
		idx := sort.SearchFloat64s(r.times, t)
		r.times = append(r.times, 0)
		copy(r.times[idx+1:], r.times[idx:])
		r.times[idx] = t
	}
	r.evictLocked()
	r.mu.Unlock()

	r.dispatch(chunk.Frames(), sessionID)
}

// evictLocked drops frames older than the newest time minus the window.
// Caller holds the write lock.
func (r *Repository) evictLocked() {
	if len(r.times) == 0 {
		return
	}
	cutoff := r.times[len(r.times)-1] - r.window
	evicted := 0
	for evicted < len(r.times) && r.times[evicted] < cutoff {
		delete(r.frames, r.times[evicted])
		evicted++
	}
	if evicted > 0 {
		r.times = append(r.times[:0], r.times[evicted:]...)
	}
}

// Frame returns the frame stored at an exact simulation time.
func (r *Repository) Frame(t float64) (*types.Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	frame, ok := r.frames[t]
	return frame, ok
}

// Range returns the frames with time in [from, to], ascending.
func (r *Repository) Range(from, to float64) []*types.Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lo := sort.SearchFloat64s(r.times, from)
	out := make([]*types.Frame, 0)
	for _, t := range r.times[lo:] {
		if t > to {
			break
		}
		out = append(out, r.frames[t])
	}
	return out
}

// ColumnValues extracts one attribute of one logical object across the
// time range [from, to]. Frames missing the object or the attribute are
// skipped; times and values stay index-aligned.
func (r *Repository) ColumnValues(objectName, attribute string, from, to float64) ([]float64, []types.Value) {
	frames := r.Range(from, to)
	times := make([]float64, 0, len(frames))
	values := make([]types.Value, 0, len(frames))
	for _, frame := range frames {
		row, ok := frame.Table(objectName)
		if !ok {
			continue
		}
		v, ok := row.Get(attribute)
		if !ok {
			continue
		}
		times = append(times, frame.Time)
		values = append(values, v)
	}
	return times, values
}

// Latest returns the n newest frames, re-ordered ascending by time.
func (r *Repository) Latest(n int) []*types.Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > len(r.times) {
		n = len(r.times)
	}
	out := make([]*types.Frame, 0, n)
	for _, t := range r.times[len(r.times)-n:] {
		out = append(out, r.frames[t])
	}
	return out
}

// Times returns a copy of the sorted time index.
func (r *Repository) Times() []float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]float64, len(r.times))
	copy(out, r.times)
	return out
}

// Count returns the number of stored frames.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}

// Subscribe registers a frames-added subscriber and returns a handle
// for Unsubscribe.
func (r *Repository) Subscribe(sub Subscriber) int {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.nextHandle++
	handle := r.nextHandle
	r.subscribers[handle] = sub
	return handle
}

// Unsubscribe removes a subscriber. Unknown handles are ignored.
func (r *Repository) Unsubscribe(handle int) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	delete(r.subscribers, handle)
}

// dispatch invokes every subscriber with the stored frame list. The
// subscriber set is snapshotted first so a callback may unsubscribe
// itself without deadlocking.
func (r *Repository) dispatch(frames []*types.Frame, sessionID uuid.UUID) {
	r.subMu.RLock()
	subs := make([]Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		subs = append(subs, sub)
	}
	r.subMu.RUnlock()

	for _, sub := range subs {
		sub(frames, sessionID)
	}
}
