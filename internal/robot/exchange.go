package robot

import (
	"context"
	"fmt"

	"github.com/danmuck/armlink/internal/fault"
	"github.com/danmuck/armlink/internal/observability"
	"github.com/danmuck/armlink/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Update sends the given command halves stamped with the last observed message
// id, then returns the next state. Either half may be nil.
func (s *Session) Update(ctx context.Context, motion *MotionCommand, control *ControlCommand) (State, error) {
	const op = "robot.Session.Update"
	if err := s.healthy(op); err != nil {
		return State{}, err
	}
	cmd, err := s.sendRobotCommand(ctx, op, motion, control)
	if err != nil {
		observability.RecordCycle("refused", 0)
		return State{}, err
	}
	return s.exchange(ctx, op, cmd, true)
}

// ReadOnce reads one state without sending and restarts the periodic baseline.
func (s *Session) ReadOnce(ctx context.Context) (State, error) {
	const op = "robot.Session.ReadOnce"
	if err := s.healthy(op); err != nil {
		return State{}, err
	}
	s.periodic = false
	return s.exchange(ctx, op, nil, false)
}

func (s *Session) exchange(ctx context.Context, op string, cmd *session.RobotCommand, periodic bool) (State, error) {
	raw, err := s.transport.ReceiveState(ctx)
	if err != nil {
		observability.RecordCycle("failed", 0)
		return State{}, s.fail(op, err)
	}
	missed, err := s.checkSequence(op, raw.MessageID, periodic && s.periodic && s.motion != nil)
	if err != nil {
		observability.RecordCycle("failed", missed)
		return State{}, s.fail(op, err)
	}
	if periodic {
		s.periodic = true
	}
	observability.RecordCycle("ok", missed)
	return s.commit(raw, cmd), nil
}

func (s *Session) sendRobotCommand(ctx context.Context, op string, motion *MotionCommand, control *ControlCommand) (*session.RobotCommand, error) {
	if motion == nil && control == nil {
		return nil, nil
	}
	cmd := session.RobotCommand{MessageID: s.messageID}
	if motion != nil {
		if !s.motionGeneratorRunning() {
			return nil, fault.Control(op, "trying to send motion command, but no motion generator running")
		}
		cmd.HasMotion = true
		cmd.Motion = *motion
	}
	if control != nil {
		if !s.controllerRunning() {
			return nil, fault.Control(op, "trying to send control command, but no external controller running")
		}
		cmd.HasControl = true
		cmd.Control = *control
	}
	if err := s.transport.SendRobotCommand(ctx, cmd); err != nil {
		return nil, s.fail(op, err)
	}
	return &cmd, nil
}

// checkSequence enforces strictly increasing message ids and, when gap is set,
// the missed-cycle budget of the realtime policy.
func (s *Session) checkSequence(op string, id uint64, gap bool) (uint64, error) {
	if s.seen && id <= s.messageID {
		return 0, fault.Protocol(op, fmt.Sprintf("message id %d does not follow %d", id, s.messageID))
	}
	if !gap || !s.seen {
		return 0, nil
	}
	missed := id - s.messageID - 1
	limit := s.opts.Realtime.MaxMissedCycles
	if missed > limit {
		return missed, fault.Protocol(op, fmt.Sprintf("missed %d cycles, limit %d under %s policy",
			missed, limit, s.opts.Realtime.Policy))
	}
	if missed > 0 && s.gapWarn.Allow() {
		log.Warn().
			Uint64("missed", missed).
			Uint64("message_id", id).
			Str("policy", s.opts.Realtime.Policy.String()).
			Msg("robot.Session.Update tolerated missed cycles")
	}
	return missed, nil
}

func (s *Session) commit(raw session.RobotState, cmd *session.RobotCommand) State {
	state := convertState(raw)
	s.generatorMode = state.MotionGeneratorMode
	s.controllerMode = state.ControllerMode
	s.messageID = state.MessageID
	s.mu.Lock()
	s.last = state
	s.seen = true
	s.mu.Unlock()
	s.opts.Logger.Log(state, cmd)
	return state
}
