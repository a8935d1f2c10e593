// Package fault classifies failures raised by the control channel.
//
// Command faults are documented controller rejections and leave the session
// usable. Protocol and network faults mean the channel can no longer be
// trusted. Control faults are caller misuse caught before anything is sent.
package fault

import (
	"errors"
	"fmt"
)

type Class int

const (
	ClassCommand Class = iota + 1
	ClassProtocol
	ClassNetwork
	ClassControl
)

var (
	ErrCommand  = errors.New("command fault")
	ErrProtocol = errors.New("protocol fault")
	ErrNetwork  = errors.New("network fault")
	ErrControl  = errors.New("control fault")
)

func (c Class) String() string {
	switch c {
	case ClassCommand:
		return "command"
	case ClassProtocol:
		return "protocol"
	case ClassNetwork:
		return "network"
	case ClassControl:
		return "control"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

func (c Class) sentinel() error {
	switch c {
	case ClassCommand:
		return ErrCommand
	case ClassProtocol:
		return ErrProtocol
	case ClassNetwork:
		return ErrNetwork
	case ClassControl:
		return ErrControl
	default:
		return nil
	}
}

// Error is one classified failure. Op names the operation that raised it.
type Error struct {
	Class  Class
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Class.String() + " fault"
	if e.Op != "" {
		msg += " in " + e.Op
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the class sentinel so callers can use errors.Is(err, fault.ErrCommand).
func (e *Error) Is(target error) bool {
	s := e.Class.sentinel()
	return s != nil && target == s
}

func Command(op, reason string) error {
	return &Error{Class: ClassCommand, Op: op, Reason: reason}
}

func Protocol(op, reason string) error {
	return &Error{Class: ClassProtocol, Op: op, Reason: reason}
}

func Control(op, reason string) error {
	return &Error{Class: ClassControl, Op: op, Reason: reason}
}

// Network wraps a transport failure. A nil err still yields a network fault.
func Network(op string, err error) error {
	return &Error{Class: ClassNetwork, Op: op, Err: err}
}

// Wrap classifies err unless it already carries a class.
func Wrap(class Class, op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Class: class, Op: op, Err: err}
}

// ClassOf returns the class of err, or 0 when err is unclassified.
func ClassOf(err error) Class {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	return 0
}

// IsFatal reports whether err ends the session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrProtocol) || errors.Is(err, ErrNetwork)
}
