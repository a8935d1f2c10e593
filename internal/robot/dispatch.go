package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/armlink/internal/fault"
	"github.com/danmuck/armlink/internal/observability"
	"github.com/danmuck/armlink/internal/protocol/schema"
	"github.com/danmuck/armlink/internal/protocol/session"
	"github.com/danmuck/armlink/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// ExecuteCommand sends cmd, waits for its response and interprets the status.
// It returns the command id on success. Move belongs to StartMotion, and
// StopMove is refused while a motion is active; CancelMotion stops it.
func (s *Session) ExecuteCommand(ctx context.Context, cmd Command) (uint32, error) {
	const op = "robot.Session.ExecuteCommand"
	switch cmd.Kind() {
	case schema.MsgMove:
		return 0, fault.Control(op, "Move is only sent by StartMotion")
	case schema.MsgStopMove:
		if m, ok := s.Motion(); ok {
			return 0, fault.Control(op, fmt.Sprintf("motion %d is active, stop it with CancelMotion", m.MotionID))
		}
	}
	id, _, err := s.execute(ctx, op, cmd)
	return id, err
}

// GetCartesianLimit queries one virtual wall. The wall is only filled in when
// the controller reports success.
func (s *Session) GetCartesianLimit(ctx context.Context, limitID int32) (VirtualWall, uint32, error) {
	const op = "robot.Session.GetCartesianLimit"
	id, resp, err := s.execute(ctx, op, GetCartesianLimit{ID: limitID})
	if err != nil {
		return VirtualWall{}, id, err
	}
	wall := VirtualWall{ID: limitID}
	fields := resp.Fields
	if err := tlv.GetF64s(fields, schema.FieldObjectFrame, wall.Frame[:]); err != nil {
		return VirtualWall{}, id, s.fail(op, fault.Protocol(op, err.Error()))
	}
	if err := tlv.GetF64s(fields, schema.FieldObjectPMax, wall.PMax[:]); err != nil {
		return VirtualWall{}, id, s.fail(op, fault.Protocol(op, err.Error()))
	}
	if err := tlv.GetF64s(fields, schema.FieldObjectPMin, wall.PMin[:]); err != nil {
		return VirtualWall{}, id, s.fail(op, fault.Protocol(op, err.Error()))
	}
	if wall.Active, err = tlv.GetBool(fields, schema.FieldObjectActive); err != nil {
		return VirtualWall{}, id, s.fail(op, fault.Protocol(op, err.Error()))
	}
	return wall, id, nil
}

func (s *Session) execute(ctx context.Context, op string, cmd Command) (uint32, session.Response, error) {
	if err := s.healthy(op); err != nil {
		return 0, session.Response{}, err
	}
	kind := cmd.Kind()
	start := time.Now()
	id, err := s.transport.SendRequest(ctx, kind, cmd.Fields())
	if err != nil {
		return 0, session.Response{}, s.fail(op, err)
	}
	resp, err := s.transport.BlockingReceiveResponse(ctx, kind, id)
	if err != nil {
		observability.RecordCommand(schema.KindName(kind), "failed", time.Since(start))
		return id, session.Response{}, s.fail(op, err)
	}
	outcome, err := interpret(op, kind, resp.Status, s.MotionState())
	observability.RecordCommand(schema.KindName(kind), outcomeLabel(outcome, err), time.Since(start))
	log.Debug().
		Str("kind", schema.KindName(kind)).
		Uint32("command_id", id).
		Uint8("status", resp.Status).
		Err(err).
		Msg(op)
	if err != nil {
		return id, resp, s.fail(op, err)
	}
	return id, resp, nil
}

func outcomeLabel(outcome Outcome, err error) string {
	if err != nil {
		return fault.ClassOf(err).String() + "_fault"
	}
	return outcome.String()
}
