package robot

import (
	"github.com/danmuck/armlink/internal/protocol/schema"
	"github.com/danmuck/armlink/internal/protocol/session"
	"github.com/danmuck/armlink/internal/protocol/tlv"
)

// Command is one typed command-channel request.
type Command interface {
	Kind() uint32
	Fields() []tlv.Field
}

// MotionCommand and ControlCommand are the per-cycle command halves.
type (
	MotionCommand  = session.MotionGeneratorCommand
	ControlCommand = session.ControllerCommand
)

// Deviation bounds the tracking error tolerated by a motion.
type Deviation struct {
	Translation float64
	Rotation    float64
	Elbow       float64
}

func (d Deviation) values() []float64 {
	return []float64{d.Translation, d.Rotation, d.Elbow}
}

// Move starts a motion. Its first response reports the start and a second
// response with the same command id reports the end.
type Move struct {
	ControllerMode      ControllerMode
	MotionGeneratorMode MotionGeneratorMode
	PathDeviation       Deviation
	GoalDeviation       Deviation
}

func (Move) Kind() uint32 { return schema.MsgMove }

func (m Move) Fields() []tlv.Field {
	return []tlv.Field{
		tlv.U8(schema.FieldControllerMode, uint8(m.ControllerMode)),
		tlv.U8(schema.FieldMotionGeneratorMode, uint8(m.MotionGeneratorMode)),
		tlv.F64s(schema.FieldPathDeviation, m.PathDeviation.values()),
		tlv.F64s(schema.FieldGoalDeviation, m.GoalDeviation.values()),
	}
}

type StopMove struct{}

func (StopMove) Kind() uint32        { return schema.MsgStopMove }
func (StopMove) Fields() []tlv.Field { return nil }

type AutomaticErrorRecovery struct{}

func (AutomaticErrorRecovery) Kind() uint32        { return schema.MsgAutomaticErrorRecovery }
func (AutomaticErrorRecovery) Fields() []tlv.Field { return nil }

type GetCartesianLimit struct {
	ID int32
}

func (GetCartesianLimit) Kind() uint32 { return schema.MsgGetCartesianLimit }

func (g GetCartesianLimit) Fields() []tlv.Field {
	return []tlv.Field{tlv.I32(schema.FieldLimitID, g.ID)}
}

// VirtualWall is one cuboid Cartesian limit configured on the controller.
type VirtualWall struct {
	ID     int32
	Frame  [16]float64
	PMax   [3]float64
	PMin   [3]float64
	Active bool
}

type SetCollisionBehavior struct {
	LowerTorqueAcceleration [7]float64
	UpperTorqueAcceleration [7]float64
	LowerTorqueNominal      [7]float64
	UpperTorqueNominal      [7]float64
	LowerForceAcceleration  [6]float64
	UpperForceAcceleration  [6]float64
	LowerForceNominal       [6]float64
	UpperForceNominal       [6]float64
}

func (SetCollisionBehavior) Kind() uint32 { return schema.MsgSetCollisionBehavior }

func (c SetCollisionBehavior) Fields() []tlv.Field {
	return []tlv.Field{
		tlv.F64s(schema.FieldLowerTorqueAcceleration, c.LowerTorqueAcceleration[:]),
		tlv.F64s(schema.FieldUpperTorqueAcceleration, c.UpperTorqueAcceleration[:]),
		tlv.F64s(schema.FieldLowerTorqueNominal, c.LowerTorqueNominal[:]),
		tlv.F64s(schema.FieldUpperTorqueNominal, c.UpperTorqueNominal[:]),
		tlv.F64s(schema.FieldLowerForceAcceleration, c.LowerForceAcceleration[:]),
		tlv.F64s(schema.FieldUpperForceAcceleration, c.UpperForceAcceleration[:]),
		tlv.F64s(schema.FieldLowerForceNominal, c.LowerForceNominal[:]),
		tlv.F64s(schema.FieldUpperForceNominal, c.UpperForceNominal[:]),
	}
}

type SetJointImpedance struct {
	Stiffness [7]float64
}

func (SetJointImpedance) Kind() uint32 { return schema.MsgSetJointImpedance }

func (c SetJointImpedance) Fields() []tlv.Field {
	return []tlv.Field{tlv.F64s(schema.FieldJointStiffness, c.Stiffness[:])}
}

type SetCartesianImpedance struct {
	Stiffness [6]float64
}

func (SetCartesianImpedance) Kind() uint32 { return schema.MsgSetCartesianImpedance }

func (c SetCartesianImpedance) Fields() []tlv.Field {
	return []tlv.Field{tlv.F64s(schema.FieldCartesianStiffness, c.Stiffness[:])}
}

// SetGuidingMode selects the axes left free in hand guiding, ordered
// x, y, z, roll, pitch, yaw.
type SetGuidingMode struct {
	Axes          [6]bool
	NullspaceFree bool
}

func (SetGuidingMode) Kind() uint32 { return schema.MsgSetGuidingMode }

func (c SetGuidingMode) Fields() []tlv.Field {
	var mask uint8
	for i, free := range c.Axes {
		if free {
			mask |= 1 << i
		}
	}
	return []tlv.Field{
		tlv.U8(schema.FieldGuidingAxes, mask),
		tlv.Bool(schema.FieldGuidingNullspace, c.NullspaceFree),
	}
}

type SetEEToK struct {
	Transform [16]float64
}

func (SetEEToK) Kind() uint32 { return schema.MsgSetEEToK }

func (c SetEEToK) Fields() []tlv.Field {
	return []tlv.Field{tlv.F64s(schema.FieldEEToK, c.Transform[:])}
}

type SetNEToEE struct {
	Transform [16]float64
}

func (SetNEToEE) Kind() uint32 { return schema.MsgSetNEToEE }

func (c SetNEToEE) Fields() []tlv.Field {
	return []tlv.Field{tlv.F64s(schema.FieldNEToEE, c.Transform[:])}
}

type SetLoad struct {
	Mass    float64
	Center  [3]float64
	Inertia [9]float64
}

func (SetLoad) Kind() uint32 { return schema.MsgSetLoad }

func (c SetLoad) Fields() []tlv.Field {
	return []tlv.Field{
		tlv.F64(schema.FieldLoadMass, c.Mass),
		tlv.F64s(schema.FieldLoadCenter, c.Center[:]),
		tlv.F64s(schema.FieldLoadInertia, c.Inertia[:]),
	}
}
