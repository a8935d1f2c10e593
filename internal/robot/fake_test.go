package robot

import (
	"context"
	"errors"

	"github.com/danmuck/armlink/internal/fault"
	"github.com/danmuck/armlink/internal/protocol/schema"
	"github.com/danmuck/armlink/internal/protocol/session"
	"github.com/danmuck/armlink/internal/protocol/tlv"
)

var errNoScript = errors.New("fake: nothing scripted")

// fakeArm is an in-memory transport with just enough controller behavior
// to drive the lifecycle: Move switches modes, StopMove and a finished
// motion command return to idle.
type fakeArm struct {
	version uint16
	nextID  uint32
	msgID   uint64

	current session.RobotState
	// queued states are served before generated ones.
	queued []session.RobotState

	requests  []session.Request
	commands  []session.RobotCommand
	pending   map[uint32][]session.Response
	discarded map[uint32]bool

	// statuses overrides the first response status per kind.
	statuses map[uint32]uint8
	// moveEnd is the terminal Move status queued when a motion stops.
	moveEnd uint8
	moveID  uint32
	// holdMoveEnd keeps the terminal Move response back until deliverMoveEnd.
	holdMoveEnd bool
	heldID      uint32
	// onMove runs after a Move request was answered.
	onMove func()
	fields map[uint32][]tlv.Field

	err     error
	sendErr error
}

func newFakeArm() *fakeArm {
	return &fakeArm{
		version: session.ProtocolVersion,
		msgID:   98,
		current: session.RobotState{
			RobotMode:           uint8(RobotModeIdle),
			MotionGeneratorMode: uint8(MotionGeneratorIdle),
			ControllerMode:      uint8(ControllerJointImpedance),
		},
		pending:   map[uint32][]session.Response{},
		discarded: map[uint32]bool{},
		statuses:  map[uint32]uint8{},
		fields:    map[uint32][]tlv.Field{},
		moveEnd:   schema.StatusSuccess,
	}
}

func (f *fakeArm) respond(kind, id uint32, status uint8, fields ...tlv.Field) {
	if f.discarded[id] {
		return
	}
	f.pending[id] = append(f.pending[id], session.Response{Kind: kind, CommandID: id, Status: status, Fields: fields})
}

func (f *fakeArm) stop() {
	f.current.MotionGeneratorMode = uint8(MotionGeneratorIdle)
	f.current.ControllerMode = uint8(ControllerJointImpedance)
	f.current.RobotMode = uint8(RobotModeIdle)
	switch {
	case f.moveID != 0 && f.holdMoveEnd:
		f.heldID = f.moveID
	case f.moveID != 0:
		f.respond(schema.MsgMove, f.moveID, f.moveEnd)
	}
	f.moveID = 0
}

// deliverMoveEnd sends the terminal Move response held back by holdMoveEnd.
func (f *fakeArm) deliverMoveEnd() {
	if f.heldID != 0 {
		f.respond(schema.MsgMove, f.heldID, f.moveEnd)
		f.heldID = 0
	}
}

func (f *fakeArm) Discard(_, id uint32) {
	delete(f.pending, id)
	f.discarded[id] = true
}

func (f *fakeArm) SendRequest(_ context.Context, kind uint32, fields []tlv.Field) (uint32, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	id := f.nextID
	f.requests = append(f.requests, session.Request{Kind: kind, CommandID: id, Fields: fields})
	status, scripted := f.statuses[kind]
	switch kind {
	case schema.MsgMove:
		if !scripted {
			status = schema.StatusMotionStarted
		}
		f.respond(kind, id, status)
		if status == schema.StatusMotionStarted || status == schema.StatusSuccess {
			ctrl, _ := tlv.GetU8(fields, schema.FieldControllerMode)
			gen, _ := tlv.GetU8(fields, schema.FieldMotionGeneratorMode)
			f.current.ControllerMode = ctrl
			f.current.MotionGeneratorMode = gen
			f.current.RobotMode = uint8(RobotModeMove)
			f.moveID = id
		}
		if f.onMove != nil {
			f.onMove()
		}
	case schema.MsgStopMove:
		f.respond(kind, id, status)
		if status == schema.StatusSuccess {
			f.stop()
		}
	default:
		f.respond(kind, id, status, f.fields[kind]...)
	}
	return id, nil
}

func (f *fakeArm) BlockingReceiveResponse(_ context.Context, kind, id uint32) (session.Response, error) {
	resp, ok, err := f.TryReceiveResponse(kind, id)
	if err != nil {
		return session.Response{}, err
	}
	if !ok {
		return session.Response{}, fault.Network("fake.BlockingReceiveResponse", errNoScript)
	}
	return resp, nil
}

func (f *fakeArm) TryReceiveResponse(kind, id uint32) (session.Response, bool, error) {
	queue := f.pending[id]
	if len(queue) == 0 {
		return session.Response{}, false, f.err
	}
	resp := queue[0]
	f.pending[id] = queue[1:]
	if resp.Kind != kind {
		return session.Response{}, false, fault.Protocol("fake.TryReceiveResponse", "kind mismatch")
	}
	return resp, true, nil
}

func (f *fakeArm) SendRobotCommand(_ context.Context, cmd session.RobotCommand) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.commands = append(f.commands, cmd)
	if cmd.HasMotion && cmd.Motion.MotionGenerationFinished {
		f.stop()
	}
	return nil
}

func (f *fakeArm) ReceiveState(context.Context) (session.RobotState, error) {
	if f.err != nil {
		return session.RobotState{}, f.err
	}
	if len(f.queued) > 0 {
		s := f.queued[0]
		f.queued = f.queued[1:]
		f.msgID = s.MessageID
		return s, nil
	}
	f.msgID++
	s := f.current
	s.MessageID = f.msgID
	return s, nil
}

// skip makes the next generated state jump n message ids ahead.
func (f *fakeArm) skip(n uint64) { f.msgID += n }

func (f *fakeArm) Version() uint16 { return f.version }
func (f *fakeArm) Err() error      { return f.err }

func (f *fakeArm) countRequests(kind uint32) int {
	n := 0
	for _, r := range f.requests {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

type recordedLog struct {
	states   []State
	commands []*session.RobotCommand
}

func (r *recordedLog) Log(state State, cmd *session.RobotCommand) {
	r.states = append(r.states, state)
	r.commands = append(r.commands, cmd)
}
