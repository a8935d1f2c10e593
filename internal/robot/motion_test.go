package robot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/armlink/internal/fault"
	"github.com/danmuck/armlink/internal/protocol/schema"
	"github.com/danmuck/armlink/internal/protocol/tlv"
	"github.com/danmuck/armlink/internal/testutil/testlog"
)

func TestJointPositionMotionLifecycle(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	arm.nextID = 6
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()

	id, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if id != 7 {
		t.Fatalf("motion id: got=%d want=7", id)
	}
	if s.MotionState() != MotionRunning {
		t.Fatalf("state after start: %s", s.MotionState())
	}
	m, ok := s.Motion()
	if !ok || m.MotionID != 7 || m.PathDeviation != devA || m.GoalDeviation != devB {
		t.Fatalf("active motion: %+v ok=%v", m, ok)
	}
	path := make([]float64, 3)
	if err := tlv.GetF64s(arm.requests[0].Fields, schema.FieldPathDeviation, path); err != nil || path[2] != devA.Elbow {
		t.Fatalf("path deviation on wire: %v %v", path, err)
	}

	cmd := &MotionCommand{QC: [7]float64{0, -0.5, 0, -2, 0, 1.5, 0.8}}
	for _, want := range []uint64{101, 102, 103} {
		st, err := s.Update(ctx, cmd, nil)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if st.MessageID != want {
			t.Fatalf("message id: got=%d want=%d", st.MessageID, want)
		}
		if err := s.ThrowOnMotionError(ctx, st, id); err != nil {
			t.Fatalf("healthy motion reported error: %v", err)
		}
		checkMotionInvariant(t, s)
	}

	if err := s.FinishMotion(ctx, id, cmd, &ControlCommand{}); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, ok := s.Motion(); ok || s.MotionState() != MotionIdle {
		t.Fatalf("motion not cleared after finish: %s", s.MotionState())
	}
	final := arm.commands[len(arm.commands)-1]
	if !final.Motion.MotionGenerationFinished || final.Motion.QC != cmd.QC {
		t.Fatalf("final command: %+v", final)
	}
}

func TestEmergencyStopWhileRunningClearsMotion(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	arm.nextID = 6
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	id, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st, err := s.Update(ctx, &MotionCommand{}, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	arm.respond(schema.MsgMove, 7, schema.StatusEmergencyAborted)

	err = s.ThrowOnMotionError(ctx, st, id)
	if !errors.Is(err, fault.ErrCommand) {
		t.Fatalf("expected command fault, got %v", err)
	}
	if !strings.Contains(err.Error(), "emergency stop") {
		t.Fatalf("fault does not name the emergency stop: %v", err)
	}
	if _, ok := s.Motion(); ok {
		t.Fatalf("motion survived emergency stop")
	}
	checkMotionInvariant(t, s)
}

func TestThrowOnMotionErrorReadsAbortFromState(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	id, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	arm.current.RobotMode = uint8(RobotModeReflex)
	arm.current.Errors = uint64(ErrJointReflex)
	st, err := s.Update(ctx, &MotionCommand{}, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	arm.respond(schema.MsgMove, id, schema.StatusReflexAborted)
	err = s.ThrowOnMotionError(ctx, st, id)
	if !errors.Is(err, fault.ErrCommand) || !strings.Contains(err.Error(), "joint_reflex") {
		t.Fatalf("expected reflex fault naming the error flag, got %v", err)
	}
	checkMotionInvariant(t, s)
}

func TestThrowOnMotionErrorNonFaultReplyIsProtocolFault(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	id, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	arm.current.RobotMode = uint8(RobotModeIdle)
	st, err := s.Update(ctx, &MotionCommand{}, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	arm.respond(schema.MsgMove, id, schema.StatusSuccess)
	if err := s.ThrowOnMotionError(ctx, st, id); !errors.Is(err, fault.ErrProtocol) {
		t.Fatalf("expected protocol fault, got %v", err)
	}
	checkMotionInvariant(t, s)
}

func TestThrowOnMotionErrorWrongID(t *testing.T) {
	testlog.Start(t)
	s := newTestSession(t, newFakeArm(), DefaultOptions())
	st, _ := s.LastState()
	if err := s.ThrowOnMotionError(context.Background(), st, 3); !errors.Is(err, fault.ErrControl) {
		t.Fatalf("expected control fault, got %v", err)
	}
}

func TestStartMotionWhileNotIdleSendsNothing(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	if _, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB); err != nil {
		t.Fatalf("start: %v", err)
	}
	sent := len(arm.requests)
	_, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointVelocity, devA, devB)
	if !errors.Is(err, fault.ErrControl) {
		t.Fatalf("expected control fault, got %v", err)
	}
	if len(arm.requests) != sent {
		t.Fatalf("second start sent a request")
	}
	if s.MotionState() != MotionRunning {
		t.Fatalf("first motion disturbed: %s", s.MotionState())
	}
}

func TestExecuteCommandCannotBypassLifecycle(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	id, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = s.ExecuteCommand(ctx, Move{ControllerMode: ControllerJointImpedance, MotionGeneratorMode: MotionGeneratorJointPosition})
	if !errors.Is(err, fault.ErrControl) {
		t.Fatalf("Move: expected control fault, got %v", err)
	}
	if n := arm.countRequests(schema.MsgMove); n != 1 {
		t.Fatalf("Move requests: got=%d want=1", n)
	}

	_, err = s.ExecuteCommand(ctx, StopMove{})
	if !errors.Is(err, fault.ErrControl) || !strings.Contains(err.Error(), "CancelMotion") {
		t.Fatalf("StopMove: expected control fault naming CancelMotion, got %v", err)
	}
	if n := arm.countRequests(schema.MsgStopMove); n != 0 {
		t.Fatalf("StopMove sent during a motion: %d", n)
	}

	if s.Err() != nil || s.MotionState() != MotionRunning {
		t.Fatalf("motion disturbed: err=%v state=%s", s.Err(), s.MotionState())
	}
	if err := s.CancelMotion(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func TestStartMotionWhileControllerMovesSendsNothing(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	arm.current.MotionGeneratorMode = uint8(MotionGeneratorJointVelocity)
	s := newTestSession(t, arm, DefaultOptions())
	if _, err := s.StartMotion(context.Background(), ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB); !errors.Is(err, fault.ErrControl) {
		t.Fatalf("expected control fault, got %v", err)
	}
	if len(arm.requests) != 0 {
		t.Fatalf("request sent")
	}
}

func TestStartMotionRejectsInvalidModes(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	if _, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorIdle, devA, devB); !errors.Is(err, fault.ErrControl) {
		t.Fatalf("idle generator: %v", err)
	}
	if _, err := s.StartMotion(ctx, ControllerOther, MotionGeneratorJointPosition, devA, devB); !errors.Is(err, fault.ErrControl) {
		t.Fatalf("other controller: %v", err)
	}
	if len(arm.requests) != 0 {
		t.Fatalf("request sent for invalid modes")
	}
}

func TestStartMotionRejectedByController(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	arm.statuses[schema.MsgMove] = schema.StatusStartAtSingularPoseRejected
	s := newTestSession(t, arm, DefaultOptions())
	_, err := s.StartMotion(context.Background(), ControllerCartesianImpedance, MotionGeneratorCartesianPosition, devA, devB)
	if !errors.Is(err, fault.ErrCommand) || !strings.Contains(err.Error(), "singular pose") {
		t.Fatalf("expected singular pose fault, got %v", err)
	}
	checkMotionInvariant(t, s)
	if s.MotionState() != MotionIdle {
		t.Fatalf("state after rejection: %s", s.MotionState())
	}
	if _, err := s.StartMotion(context.Background(), ControllerCartesianImpedance, MotionGeneratorCartesianPosition, devA, devB); !errors.Is(err, fault.ErrCommand) {
		t.Fatalf("retry after command fault should reach the controller: %v", err)
	}
}

func TestStartMotionSeesEarlyAbort(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	arm.moveEnd = schema.StatusReflexAborted
	arm.onMove = arm.stop
	s := newTestSession(t, arm, DefaultOptions())
	_, err := s.StartMotion(context.Background(), ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	if !errors.Is(err, fault.ErrCommand) || !strings.Contains(err.Error(), "reflex") {
		t.Fatalf("expected reflex fault, got %v", err)
	}
	checkMotionInvariant(t, s)
	if s.MotionState() != MotionIdle {
		t.Fatalf("state after early abort: %s", s.MotionState())
	}
}

func TestCancelMotionWrongIDSendsNothing(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	id, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.CancelMotion(ctx, id+1); !errors.Is(err, fault.ErrControl) {
		t.Fatalf("expected control fault, got %v", err)
	}
	if arm.countRequests(schema.MsgStopMove) != 0 {
		t.Fatalf("stop sent for the wrong motion")
	}
	if s.MotionState() != MotionRunning {
		t.Fatalf("motion disturbed: %s", s.MotionState())
	}
}

func TestCancelMotionReturnsToIdle(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	arm.moveEnd = schema.StatusPreempted
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	id, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.CancelMotion(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if arm.countRequests(schema.MsgStopMove) != 1 {
		t.Fatalf("stop requests: %d", arm.countRequests(schema.MsgStopMove))
	}
	if len(arm.pending[id]) != 0 {
		t.Fatalf("terminal Move response not consumed")
	}
	if s.MotionState() != MotionIdle {
		t.Fatalf("state after cancel: %s", s.MotionState())
	}
	checkMotionInvariant(t, s)
	if _, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB); err != nil {
		t.Fatalf("restart after cancel: %v", err)
	}
}

func TestCancelMotionDropsLateMoveResponse(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	arm.holdMoveEnd = true
	arm.moveEnd = schema.StatusPreempted
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	id, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.CancelMotion(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	arm.deliverMoveEnd()
	if len(arm.pending[id]) != 0 {
		t.Fatalf("late terminal Move response kept: %+v", arm.pending[id])
	}
	checkMotionInvariant(t, s)
}

func TestCancelMotionRejectedStillClears(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	id, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	arm.statuses[schema.MsgStopMove] = schema.StatusCommandNotPossibleRejected
	if err := s.CancelMotion(ctx, id); !errors.Is(err, fault.ErrCommand) {
		t.Fatalf("expected command fault, got %v", err)
	}
	checkMotionInvariant(t, s)
	if s.MotionState() != MotionIdle {
		t.Fatalf("state after rejected cancel: %s", s.MotionState())
	}
}

func TestFinishMotionReflexReportsStillMoving(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	arm.moveEnd = schema.StatusReflexAborted
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	id, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorCartesianVelocity, devA, devB)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	err = s.FinishMotion(ctx, id, &MotionCommand{}, nil)
	if !errors.Is(err, fault.ErrCommand) || !strings.Contains(err.Error(), "still moving") {
		t.Fatalf("expected still-moving fault, got %v", err)
	}
	if _, ok := s.Motion(); ok {
		t.Fatalf("motion survived finish")
	}
	if err := s.FinishMotion(ctx, id, &MotionCommand{}, nil); !errors.Is(err, fault.ErrControl) {
		t.Fatalf("second finish should find no motion: %v", err)
	}
}

func TestFinishMotionRequiresMotionCommand(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	id, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.FinishMotion(ctx, id, nil, nil); !errors.Is(err, fault.ErrControl) {
		t.Fatalf("expected control fault, got %v", err)
	}
	if len(arm.commands) != 0 {
		t.Fatalf("command sent without a motion command")
	}
	if s.MotionState() != MotionRunning {
		t.Fatalf("motion disturbed: %s", s.MotionState())
	}
}

func TestFinishMotionAfterControllerStoppedOnItsOwn(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	id, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	arm.stop()
	if _, err := s.Update(ctx, nil, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.FinishMotion(ctx, id, &MotionCommand{}, nil); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(arm.commands) != 0 {
		t.Fatalf("finish sent commands to an idle controller")
	}
	checkMotionInvariant(t, s)
}

func TestMotionInvariantAcrossOperations(t *testing.T) {
	testlog.Start(t)
	arm := newFakeArm()
	s := newTestSession(t, arm, DefaultOptions())
	ctx := context.Background()
	checkMotionInvariant(t, s)

	id, err := s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	checkMotionInvariant(t, s)
	_ = s.CancelMotion(ctx, id+5)
	checkMotionInvariant(t, s)
	_, _ = s.Update(ctx, nil, &ControlCommand{})
	checkMotionInvariant(t, s)
	_ = s.FinishMotion(ctx, id, nil, nil)
	checkMotionInvariant(t, s)
	if err := s.CancelMotion(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	checkMotionInvariant(t, s)

	arm.statuses[schema.MsgMove] = schema.StatusPreempted
	_, _ = s.StartMotion(ctx, ControllerJointImpedance, MotionGeneratorJointPosition, devA, devB)
	checkMotionInvariant(t, s)
}
