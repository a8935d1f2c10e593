package robot

import (
	"context"

	"github.com/danmuck/armlink/internal/protocol/session"
	"github.com/danmuck/armlink/internal/protocol/tlv"
)

// Transport is the controller channel a Session drives.
type Transport interface {
	SendRequest(ctx context.Context, kind uint32, fields []tlv.Field) (uint32, error)
	BlockingReceiveResponse(ctx context.Context, kind, id uint32) (session.Response, error)
	// TryReceiveResponse does not block; ok reports whether a response was taken.
	TryReceiveResponse(kind, id uint32) (resp session.Response, ok bool, err error)
	// Discard drops the responses to id, including ones not yet received.
	Discard(kind, id uint32)
	SendRobotCommand(ctx context.Context, cmd session.RobotCommand) error
	ReceiveState(ctx context.Context) (session.RobotState, error)
	Version() uint16
	// Err reports the fault that ended the transport, nil while healthy.
	Err() error
}

// StateLogger records every sent command and received state. It must not block.
type StateLogger interface {
	Log(state State, cmd *session.RobotCommand)
}

type nopLogger struct{}

func (nopLogger) Log(State, *session.RobotCommand) {}
