package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/armlink/internal/protocol/frame"
	"github.com/danmuck/armlink/internal/protocol/schema"
	"github.com/danmuck/armlink/internal/protocol/tlv"
)

var ErrUnexpectedDatagram = errors.New("session: unexpected datagram type")

// RobotState is the wire form of one controller state datagram.
type RobotState struct {
	MessageID uint64

	OTEE  [16]float64
	OTEEd [16]float64
	FTEE  [16]float64
	EETK  [16]float64

	MassEE   float64
	MassLoad float64

	Elbow  [2]float64
	ElbowD [2]float64

	TauJ  [7]float64
	TauJD [7]float64
	DTauJ [7]float64
	Q     [7]float64
	QD    [7]float64
	DQ    [7]float64
	DQD   [7]float64
	DDQD  [7]float64

	JointContact       [7]float64
	CartesianContact   [6]float64
	JointCollision     [7]float64
	CartesianCollision [6]float64
	TauExtHatFiltered  [7]float64
	OFExtHatK          [6]float64
	KFExtHatK          [6]float64
	ODPEEd             [6]float64
	Theta              [7]float64
	DTheta             [7]float64

	MotionGeneratorMode uint8
	ControllerMode      uint8
	RobotMode           uint8
	Errors              uint64
	ReflexReason        uint64

	ControlCommandSuccessRate float64
}

// MotionGeneratorCommand is the motion half of a cycle command.
type MotionGeneratorCommand struct {
	QC                       [7]float64
	DQC                      [7]float64
	OTEEc                    [16]float64
	ODPEEc                   [6]float64
	ElbowC                   [2]float64
	ValidElbow               bool
	MotionGenerationFinished bool
}

// ControllerCommand is the torque half of a cycle command.
type ControllerCommand struct {
	TauJD [7]float64
}

// RobotCommand is the wire form of one client command datagram.
type RobotCommand struct {
	MessageID  uint64
	HasMotion  bool
	Motion     MotionGeneratorCommand
	HasControl bool
	Control    ControllerCommand
}

type arrayField struct {
	id  uint16
	dst []float64
}

func (s *RobotState) arrays() []arrayField {
	return []arrayField{
		{schema.FieldOTEE, s.OTEE[:]},
		{schema.FieldOTEEd, s.OTEEd[:]},
		{schema.FieldFTEE, s.FTEE[:]},
		{schema.FieldEETK, s.EETK[:]},
		{schema.FieldElbow, s.Elbow[:]},
		{schema.FieldElbowD, s.ElbowD[:]},
		{schema.FieldTauJ, s.TauJ[:]},
		{schema.FieldTauJD, s.TauJD[:]},
		{schema.FieldDTauJ, s.DTauJ[:]},
		{schema.FieldQ, s.Q[:]},
		{schema.FieldQD, s.QD[:]},
		{schema.FieldDQ, s.DQ[:]},
		{schema.FieldDQD, s.DQD[:]},
		{schema.FieldDDQD, s.DDQD[:]},
		{schema.FieldJointContact, s.JointContact[:]},
		{schema.FieldCartesianContact, s.CartesianContact[:]},
		{schema.FieldJointCollision, s.JointCollision[:]},
		{schema.FieldCartesianCollision, s.CartesianCollision[:]},
		{schema.FieldTauExtHatFiltered, s.TauExtHatFiltered[:]},
		{schema.FieldOFExtHatK, s.OFExtHatK[:]},
		{schema.FieldKFExtHatK, s.KFExtHatK[:]},
		{schema.FieldODPEEd, s.ODPEEd[:]},
		{schema.FieldTheta, s.Theta[:]},
		{schema.FieldDTheta, s.DTheta[:]},
	}
}

func (m *MotionGeneratorCommand) arrays() []arrayField {
	return []arrayField{
		{schema.FieldQC, m.QC[:]},
		{schema.FieldDQC, m.DQC[:]},
		{schema.FieldOTEEc, m.OTEEc[:]},
		{schema.FieldODPEEc, m.ODPEEc[:]},
		{schema.FieldElbowC, m.ElbowC[:]},
	}
}

// Fields returns every state field in wire order.
func (s RobotState) Fields() []tlv.Field {
	arrays := s.arrays()
	fields := make([]tlv.Field, 0, len(arrays)+8)
	for _, a := range arrays {
		fields = append(fields, tlv.F64s(a.id, a.dst))
	}
	return append(fields,
		tlv.F64(schema.FieldMassEE, s.MassEE),
		tlv.F64(schema.FieldMassLoad, s.MassLoad),
		tlv.U8(schema.FieldStateMotionMode, s.MotionGeneratorMode),
		tlv.U8(schema.FieldStateControlMode, s.ControllerMode),
		tlv.U8(schema.FieldRobotMode, s.RobotMode),
		tlv.U64(schema.FieldErrors, s.Errors),
		tlv.U64(schema.FieldReflexReason, s.ReflexReason),
		tlv.F64(schema.FieldSuccessRate, s.ControlCommandSuccessRate),
	)
}

// Fields returns the datagram fields. Halves that are not set are omitted.
func (c RobotCommand) Fields() []tlv.Field {
	fields := []tlv.Field{
		tlv.Bool(schema.FieldHasMotionCommand, c.HasMotion),
		tlv.Bool(schema.FieldHasControlCommand, c.HasControl),
	}
	if c.HasMotion {
		for _, a := range c.Motion.arrays() {
			fields = append(fields, tlv.F64s(a.id, a.dst))
		}
		fields = append(fields,
			tlv.Bool(schema.FieldValidElbow, c.Motion.ValidElbow),
			tlv.Bool(schema.FieldMotionFinished, c.Motion.MotionGenerationFinished),
		)
	}
	if c.HasControl {
		fields = append(fields, tlv.F64s(schema.FieldTauJDCommand, c.Control.TauJD[:]))
	}
	return fields
}

// EncodeStateDatagram frames one state datagram.
func EncodeStateDatagram(s RobotState) ([]byte, error) {
	return encodeDatagram(schema.MsgRobotState, s.MessageID, s.Fields())
}

// EncodeCommandDatagram frames one command datagram.
func EncodeCommandDatagram(c RobotCommand) ([]byte, error) {
	return encodeDatagram(schema.MsgRobotCommand, c.MessageID, c.Fields())
}

func encodeDatagram(kind uint32, messageID uint64, fields []tlv.Field) ([]byte, error) {
	if err := schema.Validate(kind, fields); err != nil {
		return nil, err
	}
	return frame.AppendFrame(nil, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: kind,
		},
		Payload: tlv.EncodeFields(fields),
	}, frame.DefaultLimits())
}

// DecodeStateDatagram parses a state datagram. Optional fields absent from the
// payload stay zero.
func DecodeStateDatagram(b []byte) (RobotState, error) {
	fields, id, err := decodeDatagram(b, schema.MsgRobotState)
	if err != nil {
		return RobotState{}, err
	}
	s := RobotState{MessageID: id}
	for _, a := range s.arrays() {
		if err := optionalF64s(fields, a.id, a.dst); err != nil {
			return RobotState{}, err
		}
	}
	if s.MassEE, err = optionalF64(fields, schema.FieldMassEE); err != nil {
		return RobotState{}, err
	}
	if s.MassLoad, err = optionalF64(fields, schema.FieldMassLoad); err != nil {
		return RobotState{}, err
	}
	if s.ControlCommandSuccessRate, err = optionalF64(fields, schema.FieldSuccessRate); err != nil {
		return RobotState{}, err
	}
	if s.MotionGeneratorMode, err = tlv.GetU8(fields, schema.FieldStateMotionMode); err != nil {
		return RobotState{}, err
	}
	if s.ControllerMode, err = tlv.GetU8(fields, schema.FieldStateControlMode); err != nil {
		return RobotState{}, err
	}
	if s.RobotMode, err = tlv.GetU8(fields, schema.FieldRobotMode); err != nil {
		return RobotState{}, err
	}
	if s.Errors, err = tlv.GetU64(fields, schema.FieldErrors); err != nil {
		return RobotState{}, err
	}
	if s.ReflexReason, err = tlv.GetU64(fields, schema.FieldReflexReason); err != nil {
		return RobotState{}, err
	}
	return s, nil
}

// DecodeCommandDatagram parses a command datagram.
func DecodeCommandDatagram(b []byte) (RobotCommand, error) {
	fields, id, err := decodeDatagram(b, schema.MsgRobotCommand)
	if err != nil {
		return RobotCommand{}, err
	}
	c := RobotCommand{MessageID: id}
	if c.HasMotion, err = tlv.GetBool(fields, schema.FieldHasMotionCommand); err != nil {
		return RobotCommand{}, err
	}
	if c.HasControl, err = tlv.GetBool(fields, schema.FieldHasControlCommand); err != nil {
		return RobotCommand{}, err
	}
	if c.HasMotion {
		for _, a := range c.Motion.arrays() {
			if err := tlv.GetF64s(fields, a.id, a.dst); err != nil {
				return RobotCommand{}, err
			}
		}
		if c.Motion.ValidElbow, err = tlv.GetBool(fields, schema.FieldValidElbow); err != nil {
			return RobotCommand{}, err
		}
		if c.Motion.MotionGenerationFinished, err = tlv.GetBool(fields, schema.FieldMotionFinished); err != nil {
			return RobotCommand{}, err
		}
	}
	if c.HasControl {
		if err := tlv.GetF64s(fields, schema.FieldTauJDCommand, c.Control.TauJD[:]); err != nil {
			return RobotCommand{}, err
		}
	}
	return c, nil
}

func decodeDatagram(b []byte, want uint32) ([]tlv.Field, uint64, error) {
	f, err := frame.ParseDatagram(b, frame.DefaultLimits())
	if err != nil {
		return nil, 0, err
	}
	if f.Header.MessageType != want {
		return nil, 0, fmt.Errorf("%w: got %s want %s", ErrUnexpectedDatagram,
			schema.KindName(f.Header.MessageType), schema.KindName(want))
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, 0, err
	}
	if err := schema.Validate(want, fields); err != nil {
		return nil, 0, err
	}
	return fields, f.Header.MessageID, nil
}

func optionalF64s(fields []tlv.Field, id uint16, dst []float64) error {
	if _, ok := tlv.GetField(fields, id); !ok {
		return nil
	}
	return tlv.GetF64s(fields, id, dst)
}

func optionalF64(fields []tlv.Field, id uint16) (float64, error) {
	if _, ok := tlv.GetField(fields, id); !ok {
		return 0, nil
	}
	return tlv.GetF64(fields, id)
}
