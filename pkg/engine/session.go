package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/germanamz/relay/pkg/state"
	"github.com/germanamz/relay/pkg/workflow"
)

// ErrBusy is returned by Send while another Send of the same session runs.
var ErrBusy = errors.New("engine: session busy")

// Session is one conversation: consecutive messages run the workflow over
// the same store. Only one Send may be active at a time.
type Session struct {
	id    string
	eng   *Engine
	store *state.Store

	mu     sync.Mutex
	active bool
	turns  int
}

// newSession creates a session with the given ID over st.
func newSession(id string, eng *Engine, st *state.Store) *Session {
	return &Session{
		id:    id,
		eng:   eng,
		store: st,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's store.
func (s *Session) State() *state.Store { return s.store }

// Turns returns the number of completed Send calls.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.turns
}

// Send runs the workflow on text with the session's store. With state_db
// configured the store is saved under the session ID afterwards, also when
// the run failed, since tools may have changed it before the failure.
func (s *Session) Send(ctx context.Context, text string) (workflow.Result, error) {
	if err := s.acquire(); err != nil {
		return workflow.Result{}, err
	}
	defer s.release()

	res, runErr := s.eng.run(ctx, s.id, text, s.store)

	if db := s.eng.StateDB(); db != nil {
		if err := db.Save(context.WithoutCancel(ctx), s.id, s.store); err != nil {
			return res, errors.Join(runErr, fmt.Errorf("engine: session %s: %w", s.id, err))
		}
	}

	if runErr != nil {
		return res, runErr
	}

	s.mu.Lock()
	s.turns++
	s.mu.Unlock()

	return res, nil
}

func (s *Session) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return fmt.Errorf("%w: %s", ErrBusy, s.id)
	}
	s.active = true
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
}
