// Package service exposes the process-wide entry point of the
// ingestion core: at most one active data session, replaced on Start
// and detached on Stop without waiting for the outgoing worker.
package service

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"simstream/internal/config"
	"simstream/internal/repository"
	"simstream/internal/session"
	"simstream/internal/simctx"
)

// Service routes lifecycle and time-hint calls to the active session.
// All methods are safe for concurrent use.
type Service struct {
	repo   *repository.Repository
	simctx *simctx.Context

	mu     sync.Mutex
	active *session.DataSession
}

// New creates a service over the shared repository and the simulation
// context that issues session identifiers.
func New(repo *repository.Repository, ctx *simctx.Context) *Service {
	return &Service{repo: repo, simctx: ctx}
}

// Start launches a new data session against the configured journal.
// The simulation context must have an active session identifier; a nil
// or invalid config fails fast. Any prior session is stopped
// fire-and-forget — replacement never waits on the old worker.
func (s *Service) Start(cfg *config.Config) error {
	if cfg == nil {
		return ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}

	id := s.simctx.CurrentID()
	if id == uuid.Nil {
		return ErrNoActiveSession
	}

	next := session.New(cfg, s.repo, id)

	s.mu.Lock()
	prev := s.active
	s.active = next
	s.mu.Unlock()

	if prev != nil {
		log.WithField("session", prev.ID()).Info("replacing active data session")
		prev.Stop()
	}

	next.Start()
	log.WithField("session", id).WithField("journal", cfg.DatabasePath).Info("data session started")
	return nil
}

// EnqueueTime forwards a simulation-time hint to the active session.
// No-op when no session is active.
func (s *Service) EnqueueTime(t float64) {
	if sess := s.ActiveSession(); sess != nil {
		sess.Enqueue(t)
	}
}

// CompleteSession closes the active session's input and installs an
// optional completion callback that runs after the drain finishes.
// No-op when no session is active.
func (s *Service) CompleteSession(callback func()) {
	if sess := s.ActiveSession(); sess != nil {
		sess.MarkComplete(callback)
	}
}

// Stop detaches the active session and signals it to terminate. Does
// not wait for the worker to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	prev := s.active
	s.active = nil
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
}

// ActiveSession returns the currently routed session, or nil. Intended
// for tests.
func (s *Service) ActiveSession() *session.DataSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
