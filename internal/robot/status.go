package robot

import (
	"fmt"

	"github.com/danmuck/armlink/internal/fault"
	"github.com/danmuck/armlink/internal/protocol/schema"
)

// Outcome is a non-fault result of a command response.
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeMotionStarted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeMotionStarted:
		return "motion_started"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type rule struct {
	outcome Outcome
	// reason is set for statuses raising a command fault.
	reason string
}

type descriptor struct {
	name     string
	setter   bool
	statuses map[uint8]rule
}

const (
	reasonNotPossible = "command rejected: command not possible in the current mode"
	reasonInvalidArg  = "command rejected: invalid argument"
)

func setterStatuses() map[uint8]rule {
	return map[uint8]rule{
		schema.StatusSuccess:                    {outcome: OutcomeSuccess},
		schema.StatusCommandNotPossibleRejected: {reason: reasonNotPossible},
	}
}

func queryStatuses() map[uint8]rule {
	statuses := setterStatuses()
	statuses[schema.StatusInvalidArgumentRejected] = rule{reason: reasonInvalidArg}
	return statuses
}

func moveStatuses() map[uint8]rule {
	return map[uint8]rule{
		schema.StatusSuccess:                     {outcome: OutcomeSuccess},
		schema.StatusMotionStarted:               {outcome: OutcomeMotionStarted},
		schema.StatusEmergencyAborted:            {reason: "command aborted: emergency stop pressed"},
		schema.StatusReflexAborted:               {reason: "command aborted: motion aborted by reflex"},
		schema.StatusInputErrorAborted:           {reason: "command aborted: invalid input provided"},
		schema.StatusCommandNotPossibleRejected:  {reason: reasonNotPossible},
		schema.StatusStartAtSingularPoseRejected: {reason: "command rejected: cannot start at singular pose"},
		schema.StatusOutOfRangeRejected:          {reason: "command rejected: maximum path deviation out of range"},
		schema.StatusPreempted:                   {reason: "command preempted"},
	}
}

var registry = map[uint32]descriptor{}

func register(kind uint32, setter bool, statuses map[uint8]rule) {
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("robot: command kind %s registered twice", schema.KindName(kind)))
	}
	registry[kind] = descriptor{name: schema.KindName(kind), setter: setter, statuses: statuses}
}

func init() {
	for _, kind := range []uint32{
		schema.MsgSetCollisionBehavior,
		schema.MsgSetJointImpedance,
		schema.MsgSetCartesianImpedance,
		schema.MsgSetGuidingMode,
		schema.MsgSetEEToK,
		schema.MsgSetNEToEE,
		schema.MsgSetLoad,
	} {
		register(kind, true, setterStatuses())
	}
	for _, kind := range []uint32{
		schema.MsgGetCartesianLimit,
		schema.MsgStopMove,
		schema.MsgAutomaticErrorRecovery,
	} {
		register(kind, false, queryStatuses())
	}
	register(schema.MsgMove, false, moveStatuses())
}

// interpret maps a response status to an outcome or a classified fault.
// phase is the motion state when the response is handled; a motion-started
// report is only legal while the motion is still starting.
func interpret(op string, kind uint32, status uint8, phase MotionState) (Outcome, error) {
	d, ok := registry[kind]
	if !ok {
		return 0, fault.Protocol(op, fmt.Sprintf("unregistered command kind %s", schema.KindName(kind)))
	}
	r, ok := d.statuses[status]
	if !ok {
		return 0, fault.Protocol(op, fmt.Sprintf("unexpected response status %d while handling %s command", status, d.name))
	}
	if r.reason != "" {
		return 0, fault.Command(op, d.name+" "+r.reason)
	}
	if r.outcome == OutcomeMotionStarted && phase != MotionStarting {
		return 0, fault.Protocol(op, d.name+" received unexpected motion started message")
	}
	return r.outcome, nil
}
