// Package simctx issues session identifiers and broadcasts session
// lifecycle signals. It is the single writer of the current session id;
// everyone else only reads it.
package simctx

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// StartedFunc is notified with the identifier of a freshly started
// session. Subscribers typically attach to the repository's
// frames-added signal here and filter payloads by the delivered id.
type StartedFunc func(sessionID uuid.UUID)

// StoppedFunc is notified when the running session stops.
type StoppedFunc func()

// Repository is the slice of the frame repository the context drives.
type Repository interface {
	StartNewSession(sessionID uuid.UUID)
}

// Context is the session lifecycle authority.
type Context struct {
	repo Repository

	mu      sync.RWMutex
	current uuid.UUID

	subMu      sync.RWMutex
	started    map[int]StartedFunc
	stopped    map[int]StoppedFunc
	nextHandle int
}

// New creates a context bound to a frame repository.
func New(repo Repository) *Context {
	return &Context{
		repo:    repo,
		started: make(map[int]StartedFunc),
		stopped: make(map[int]StoppedFunc),
	}
}

// Start issues a fresh session identifier, resets the repository under
// the new tag, and emits the started signal. Identifiers are never
// reused. Returns the new id.
func (c *Context) Start() uuid.UUID {
	id := uuid.New()

	c.mu.Lock()
	c.current = id
	c.mu.Unlock()

	c.repo.StartNewSession(id)
	log.WithField("session", id).Info("simulation session started")

	for _, sub := range c.startedSubs() {
		sub(id)
	}
	return id
}

// Stop emits the stopped signal and clears the current identifier to
// the none sentinel (uuid.Nil).
func (c *Context) Stop() {
	c.mu.Lock()
	id := c.current
	c.current = uuid.Nil
	c.mu.Unlock()

	log.WithField("session", id).Info("simulation session stopped")
	for _, sub := range c.stoppedSubs() {
		sub()
	}
}

// CurrentID returns the running session's identifier, or uuid.Nil when
// no session is active.
func (c *Context) CurrentID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// OnSessionStarted registers a started subscriber; returns a handle.
func (c *Context) OnSessionStarted(sub StartedFunc) int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextHandle++
	c.started[c.nextHandle] = sub
	return c.nextHandle
}

// OnSessionStopped registers a stopped subscriber; returns a handle.
func (c *Context) OnSessionStopped(sub StoppedFunc) int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextHandle++
	c.stopped[c.nextHandle] = sub
	return c.nextHandle
}

// Remove drops the subscriber registered under handle, whichever signal
// it listens to.
func (c *Context) Remove(handle int) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.started, handle)
	delete(c.stopped, handle)
}

func (c *Context) startedSubs() []StartedFunc {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]StartedFunc, 0, len(c.started))
	for _, sub := range c.started {
		out = append(out, sub)
	}
	return out
}

func (c *Context) stoppedSubs() []StoppedFunc {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]StoppedFunc, 0, len(c.stopped))
	for _, sub := range c.stopped {
		out = append(out, sub)
	}
	return out
}
