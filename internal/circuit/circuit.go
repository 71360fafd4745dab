// Package circuit holds the shared "paused until" instant that stops the
// transport from dispatching after repeated server failures or bad
// credentials.
package circuit

import (
	"sync/atomic"
	"time"

	"github.com/rzbill/bgq/pkg/log"
)

// Persister stores the pause end so it survives restarts. A zero time means
// not paused.
type Persister interface {
	LoadPause() (time.Time, error)
	SavePause(until time.Time) error
}

// Option configures a State.
type Option func(*State)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// WithPersister loads the pause end from p on construction and writes every
// change back to it.
func WithPersister(p Persister) Option {
	return func(s *State) { s.persister = p }
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(l log.Logger) Option {
	return func(s *State) { s.logger = l }
}

// State is safe for concurrent use. Concurrent writers race; the last one
// wins.
type State struct {
	until     atomic.Int64 // unix nanos; 0 when never paused
	now       func() time.Time
	persister Persister
	logger    log.Logger
}

// New returns a State that is not paused unless the persister says otherwise.
func New(opts ...Option) *State {
	s := &State{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewNopLogger()
	}
	s.logger = s.logger.WithComponent("circuit")
	if s.persister != nil {
		until, err := s.persister.LoadPause()
		if err != nil {
			s.logger.Warn("failed to load circuit pause", log.Err(err))
		} else if !until.IsZero() {
			s.until.Store(until.UnixNano())
		}
	}
	return s
}

// Pause stops dispatch for d from now and returns the pause end.
func (s *State) Pause(d time.Duration) time.Time {
	until := s.now().Add(d)
	s.until.Store(until.UnixNano())
	s.save(until)
	s.logger.Warn("circuit paused", log.Time("until", until))
	return until
}

// Paused reports whether now is before the pause end.
func (s *State) Paused() bool {
	u := s.until.Load()
	return u != 0 && s.now().UnixNano() < u
}

// PausedUntil returns the pause end, or the zero time when not paused.
func (s *State) PausedUntil() time.Time {
	u := s.until.Load()
	if u == 0 || s.now().UnixNano() >= u {
		return time.Time{}
	}
	return time.Unix(0, u)
}

// Resume clears any pause.
func (s *State) Resume() {
	s.until.Store(0)
	s.save(time.Time{})
}

func (s *State) save(until time.Time) {
	if s.persister == nil {
		return
	}
	if err := s.persister.SavePause(until); err != nil {
		s.logger.Warn("failed to persist circuit pause", log.Err(err))
	}
}
