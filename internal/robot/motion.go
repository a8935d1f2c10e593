package robot

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/armlink/internal/fault"
	"github.com/danmuck/armlink/internal/observability"
	"github.com/danmuck/armlink/internal/protocol/schema"
	"github.com/danmuck/armlink/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

type MotionState int

const (
	MotionIdle MotionState = iota
	MotionStarting
	MotionRunning
	MotionFinishing
	MotionCancelling
)

var motionStateNames = [...]string{"idle", "starting", "running", "finishing", "cancelling"}

func (m MotionState) String() string {
	if m >= 0 && int(m) < len(motionStateNames) {
		return motionStateNames[m]
	}
	return fmt.Sprintf("motion_state(%d)", int(m))
}

// ActiveMotion is the bookkeeping of the single in-flight motion. MotionID is
// the command id of its Move request.
type ActiveMotion struct {
	MotionID       uint32
	GeneratorMode  MotionGeneratorMode
	ControllerMode ControllerMode
	PathDeviation  Deviation
	GoalDeviation  Deviation
	State          MotionState
}

// Motion returns a copy of the active motion.
func (s *Session) Motion() (ActiveMotion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.motion == nil {
		return ActiveMotion{}, false
	}
	return *s.motion, true
}

func (s *Session) MotionState() MotionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.motion == nil {
		return MotionIdle
	}
	return s.motion.State
}

func (s *Session) setMotionState(state MotionState) {
	s.mu.Lock()
	s.motion.State = state
	s.mu.Unlock()
}

func (s *Session) endMotion(result string) {
	s.mu.Lock()
	m := s.motion
	s.motion = nil
	s.mu.Unlock()
	if m == nil {
		return
	}
	observability.RecordMotionEnd(result)
	log.Info().Uint32("motion_id", m.MotionID).Str("from", m.State.String()).Str("result", result).Msg("robot.Session motion ended")
}

func endResult(err error, ok string) string {
	switch {
	case err == nil:
		return ok
	case errors.Is(err, fault.ErrCommand):
		return "command_fault"
	default:
		return "aborted"
	}
}

// StartMotion sends Move and returns once the controller runs the requested
// modes. The returned id identifies the motion in later lifecycle calls.
func (s *Session) StartMotion(ctx context.Context, controller ControllerMode, generator MotionGeneratorMode, path, goal Deviation) (uint32, error) {
	const op = "robot.Session.StartMotion"
	if s.MotionState() != MotionIdle || s.motionGeneratorRunning() || s.controllerRunning() {
		return 0, fault.Control(op, "attempted to start multiple motions")
	}
	if generator == MotionGeneratorIdle || generator > MotionGeneratorNone {
		return 0, fault.Control(op, fmt.Sprintf("invalid motion generator mode %s", generator))
	}
	if controller > ControllerExternal {
		return 0, fault.Control(op, fmt.Sprintf("invalid controller mode %s", controller))
	}
	if err := s.healthy(op); err != nil {
		return 0, err
	}

	move := Move{ControllerMode: controller, MotionGeneratorMode: generator, PathDeviation: path, GoalDeviation: goal}
	id, err := s.transport.SendRequest(ctx, move.Kind(), move.Fields())
	if err != nil {
		return 0, s.fail(op, err)
	}
	s.mu.Lock()
	s.motion = &ActiveMotion{
		MotionID:       id,
		GeneratorMode:  generator,
		ControllerMode: controller,
		PathDeviation:  path,
		GoalDeviation:  goal,
		State:          MotionStarting,
	}
	s.mu.Unlock()
	observability.SetMotionActive()

	resp, err := s.transport.BlockingReceiveResponse(ctx, schema.MsgMove, id)
	if err != nil {
		return 0, s.fail(op, err)
	}
	if _, err := interpret(op, schema.MsgMove, resp.Status, MotionStarting); err != nil {
		s.endMotion(endResult(err, ""))
		return 0, s.fail(op, err)
	}
	s.setMotionState(MotionRunning)
	s.periodic = false

	for cycles := 0; s.generatorMode != generator || s.controllerMode != controller; cycles++ {
		if cycles >= s.opts.MaxWaitCycles {
			return 0, s.fail(op, fault.Protocol(op, fmt.Sprintf("controller did not report %s/%s within %d cycles",
				generator, controller, cycles)))
		}
		if resp, ok, err := s.transport.TryReceiveResponse(schema.MsgMove, id); err != nil {
			return 0, s.fail(op, err)
		} else if ok {
			err := s.moveEnded(op, resp.Status)
			s.endMotion(endResult(err, ""))
			return 0, s.fail(op, err)
		}
		if _, err := s.exchange(ctx, op, nil, false); err != nil {
			return 0, err
		}
	}
	log.Info().
		Uint32("motion_id", id).
		Str("generator", generator.String()).
		Str("controller", controller.String()).
		Msg(op)
	return id, nil
}

// CancelMotion stops the motion and waits until the controller is idle.
func (s *Session) CancelMotion(ctx context.Context, id uint32) error {
	const op = "robot.Session.CancelMotion"
	m, ok := s.Motion()
	if !ok || m.MotionID != id {
		return fault.Control(op, fmt.Sprintf("no active motion with id %d", id))
	}
	if m.State != MotionStarting && m.State != MotionRunning {
		return fault.Control(op, fmt.Sprintf("cannot cancel motion in state %s", m.State))
	}
	if err := s.healthy(op); err != nil {
		return err
	}
	s.setMotionState(MotionCancelling)
	err := s.cancel(ctx, op, id)
	s.endMotion(endResult(err, "cancelled"))
	return err
}

func (s *Session) cancel(ctx context.Context, op string, id uint32) error {
	if _, _, err := s.execute(ctx, op, StopMove{}); err != nil {
		return err
	}
	if err := s.waitIdle(ctx, op, nil); err != nil {
		return err
	}
	// The terminal Move response carries nothing the caller needs, and it may
	// still be in flight.
	s.transport.Discard(schema.MsgMove, id)
	return nil
}

// FinishMotion sends the final command halves flagged as finished each cycle
// until the controller is idle, then reads the Move outcome. The motion is
// cleared whatever the outcome.
func (s *Session) FinishMotion(ctx context.Context, id uint32, motion *MotionCommand, control *ControlCommand) error {
	const op = "robot.Session.FinishMotion"
	m, ok := s.Motion()
	if !ok || m.MotionID != id {
		return fault.Control(op, fmt.Sprintf("no active motion with id %d", id))
	}
	if m.State != MotionRunning {
		return fault.Control(op, fmt.Sprintf("cannot finish motion in state %s", m.State))
	}
	if motion == nil {
		return fault.Control(op, "no motion generator command given")
	}
	if err := s.healthy(op); err != nil {
		return err
	}
	s.setMotionState(MotionFinishing)
	err := s.finish(ctx, op, id, motion, control)
	s.endMotion(endResult(err, "finished"))
	return err
}

func (s *Session) finish(ctx context.Context, op string, id uint32, motion *MotionCommand, control *ControlCommand) error {
	final := session.RobotCommand{HasMotion: true, Motion: *motion}
	final.Motion.MotionGenerationFinished = true
	if control != nil {
		final.HasControl = true
		final.Control = *control
	}
	if err := s.waitIdle(ctx, op, func() (*session.RobotCommand, error) {
		cmd := final
		cmd.MessageID = s.messageID
		if err := s.transport.SendRobotCommand(ctx, cmd); err != nil {
			return nil, s.fail(op, err)
		}
		return &cmd, nil
	}); err != nil {
		return err
	}
	resp, err := s.transport.BlockingReceiveResponse(ctx, schema.MsgMove, id)
	if err != nil {
		return s.fail(op, err)
	}
	if resp.Status == schema.StatusReflexAborted {
		return fault.Command(op, "Move command aborted: motion finish commanded, but the robot is still moving")
	}
	if _, err := interpret(op, schema.MsgMove, resp.Status, MotionFinishing); err != nil {
		return s.fail(op, err)
	}
	return nil
}

// waitIdle reads states until neither a motion generator nor the external
// controller runs. send, when set, produces the command for each cycle.
func (s *Session) waitIdle(ctx context.Context, op string, send func() (*session.RobotCommand, error)) error {
	for cycles := 0; s.motionGeneratorRunning() || s.controllerRunning(); cycles++ {
		if cycles >= s.opts.MaxWaitCycles {
			return s.fail(op, fault.Protocol(op, fmt.Sprintf("controller still running %s/%s after %d cycles",
				s.generatorMode, s.controllerMode, cycles)))
		}
		var cmd *session.RobotCommand
		if send != nil {
			var err error
			if cmd, err = send(); err != nil {
				return err
			}
		}
		if _, err := s.exchange(ctx, op, cmd, false); err != nil {
			return err
		}
	}
	return nil
}

// ThrowOnMotionError ends the motion when the controller reported its end,
// either through a terminal Move response or through state: robot mode no
// longer move, modes diverged, or errors set. It returns nil while the
// motion is healthy.
func (s *Session) ThrowOnMotionError(ctx context.Context, state State, id uint32) error {
	const op = "robot.Session.ThrowOnMotionError"
	m, ok := s.Motion()
	if !ok || m.MotionID != id {
		return fault.Control(op, fmt.Sprintf("no active motion with id %d", id))
	}
	resp, ok, err := s.transport.TryReceiveResponse(schema.MsgMove, id)
	if err != nil {
		return s.fail(op, err)
	}
	ended := state.RobotMode != RobotModeMove ||
		state.MotionGeneratorMode != m.GeneratorMode ||
		state.ControllerMode != m.ControllerMode ||
		state.CurrentErrors.Any()
	if !ok && !ended {
		return nil
	}
	if !ok {
		if resp, err = s.transport.BlockingReceiveResponse(ctx, schema.MsgMove, id); err != nil {
			return s.fail(op, err)
		}
	}
	err = s.moveEnded(op, resp.Status)
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Class == fault.ClassCommand {
		if flags := state.CurrentErrors | state.LastMotionErrors; flags.Any() {
			fe.Reason += " " + flags.String()
		}
	}
	s.endMotion(endResult(err, ""))
	return s.fail(op, err)
}

// moveEnded interprets the terminal Move response of a running motion. A
// reply that is not a fault means client and controller disagree.
func (s *Session) moveEnded(op string, status uint8) error {
	if _, err := interpret(op, schema.MsgMove, status, MotionRunning); err != nil {
		return err
	}
	return fault.Protocol(op, "unexpected reply to a Move command")
}
