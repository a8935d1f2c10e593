// Package robot drives one controller session: command dispatch with status
// interpretation, the per-cycle state exchange, and the motion lifecycle.
//
// A Session is driven by a single caller. LastState, Motion, MotionState and
// Err may additionally be read from other goroutines.
package robot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/danmuck/armlink/internal/fault"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var ErrTransportRequired = errors.New("robot: transport required")

type Session struct {
	transport Transport
	opts      Options
	version   uint16

	generatorMode  MotionGeneratorMode
	controllerMode ControllerMode
	messageID      uint64
	seen           bool
	// periodic is set by Update and cleared by ReadOnce and StartMotion; the
	// missed-cycle check only runs between consecutive periodic reads.
	periodic bool

	gapWarn *rate.Limiter

	// mu guards writes to the fields below; the owning caller reads them
	// without it.
	mu     sync.RWMutex
	last   State
	motion *ActiveMotion
	// broken holds the first session-fatal fault.
	broken error
}

// New binds a session to an established transport and reads the initial state.
func New(ctx context.Context, t Transport, opts Options) (*Session, error) {
	if t == nil {
		return nil, ErrTransportRequired
	}
	s := &Session{
		transport: t,
		opts:      opts.withDefaults(),
		version:   t.Version(),
		gapWarn:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
	if _, err := s.ReadOnce(ctx); err != nil {
		return nil, err
	}
	log.Info().
		Uint16("version", s.version).
		Str("policy", s.opts.Realtime.Policy.String()).
		Uint64("max_missed_cycles", s.opts.Realtime.MaxMissedCycles).
		Uint64("message_id", s.messageID).
		Msg("robot.New")
	return s, nil
}

// LastState returns the most recently received state.
func (s *Session) LastState() (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.seen
}

// Err returns the fault that ended the session, or nil while it is usable.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broken
}

func (s *Session) motionGeneratorRunning() bool {
	return s.generatorMode != MotionGeneratorIdle
}

func (s *Session) controllerRunning() bool {
	return s.controllerMode == ControllerExternal
}

// healthy returns the fault that already ended the session, if any.
func (s *Session) healthy(op string) error {
	if s.broken != nil {
		return s.broken
	}
	if err := s.transport.Err(); err != nil {
		return s.fail(op, err)
	}
	return nil
}

// fail records session-fatal faults and drops any active motion with them.
func (s *Session) fail(op string, err error) error {
	err = fault.Wrap(fault.ClassNetwork, op, err)
	if !fault.IsFatal(err) {
		return err
	}
	if s.broken == nil {
		s.mu.Lock()
		s.broken = err
		s.mu.Unlock()
		log.Error().Err(err).Str("op", op).Msg("robot.Session fatal fault")
	}
	if s.motion != nil {
		s.endMotion("aborted")
	}
	return err
}
