package schema

import (
	"fmt"

	"github.com/danmuck/armlink/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs. Command-channel kinds double as the dispatcher's command kinds.
const (
	MsgConnect                uint32 = 1
	MsgMove                   uint32 = 2
	MsgStopMove               uint32 = 3
	MsgGetCartesianLimit      uint32 = 4
	MsgSetCollisionBehavior   uint32 = 5
	MsgSetJointImpedance      uint32 = 6
	MsgSetCartesianImpedance  uint32 = 7
	MsgSetGuidingMode         uint32 = 8
	MsgSetEEToK               uint32 = 9
	MsgSetNEToEE              uint32 = 10
	MsgSetLoad                uint32 = 11
	MsgAutomaticErrorRecovery uint32 = 12

	MsgRobotState   uint32 = 100
	MsgRobotCommand uint32 = 101
)

// Status codes carried by FieldStatus in every command response.
const (
	StatusSuccess                     uint8 = 0
	StatusCommandNotPossibleRejected  uint8 = 1
	StatusInvalidArgumentRejected     uint8 = 2
	StatusMotionStarted               uint8 = 3
	StatusEmergencyAborted            uint8 = 4
	StatusReflexAborted               uint8 = 5
	StatusInputErrorAborted           uint8 = 6
	StatusStartAtSingularPoseRejected uint8 = 7
	StatusOutOfRangeRejected          uint8 = 8
	StatusPreempted                   uint8 = 9
	StatusAborted                     uint8 = 10
	StatusIncompatibleVersion         uint8 = 11
)

// StatusCodes lists every status the wire contract defines, in code order.
var StatusCodes = []uint8{
	StatusSuccess,
	StatusCommandNotPossibleRejected,
	StatusInvalidArgumentRejected,
	StatusMotionStarted,
	StatusEmergencyAborted,
	StatusReflexAborted,
	StatusInputErrorAborted,
	StatusStartAtSingularPoseRejected,
	StatusOutOfRangeRejected,
	StatusPreempted,
	StatusAborted,
	StatusIncompatibleVersion,
}

// Field IDs from tlv contract.
const (
	FieldStatus  uint16 = 1
	FieldVersion uint16 = 2
	FieldUDPPort uint16 = 3

	FieldControllerMode      uint16 = 10
	FieldMotionGeneratorMode uint16 = 11
	FieldPathDeviation       uint16 = 12
	FieldGoalDeviation       uint16 = 13

	FieldLimitID      uint16 = 20
	FieldObjectFrame  uint16 = 21
	FieldObjectPMax   uint16 = 22
	FieldObjectPMin   uint16 = 23
	FieldObjectActive uint16 = 24

	FieldLowerTorqueAcceleration uint16 = 30
	FieldUpperTorqueAcceleration uint16 = 31
	FieldLowerTorqueNominal      uint16 = 32
	FieldUpperTorqueNominal      uint16 = 33
	FieldLowerForceAcceleration  uint16 = 34
	FieldUpperForceAcceleration  uint16 = 35
	FieldLowerForceNominal       uint16 = 36
	FieldUpperForceNominal       uint16 = 37

	FieldJointStiffness     uint16 = 40
	FieldCartesianStiffness uint16 = 41

	FieldGuidingAxes      uint16 = 50
	FieldGuidingNullspace uint16 = 51

	FieldEEToK  uint16 = 60
	FieldNEToEE uint16 = 61

	FieldLoadMass    uint16 = 70
	FieldLoadCenter  uint16 = 71
	FieldLoadInertia uint16 = 72

	FieldOTEE               uint16 = 100
	FieldOTEEd              uint16 = 101
	FieldFTEE               uint16 = 102
	FieldEETK               uint16 = 103
	FieldMassEE             uint16 = 104
	FieldMassLoad           uint16 = 105
	FieldElbow              uint16 = 106
	FieldElbowD             uint16 = 107
	FieldTauJ               uint16 = 108
	FieldTauJD              uint16 = 109
	FieldDTauJ              uint16 = 110
	FieldQ                  uint16 = 111
	FieldQD                 uint16 = 112
	FieldDQ                 uint16 = 113
	FieldDQD                uint16 = 114
	FieldDDQD               uint16 = 115
	FieldJointContact       uint16 = 116
	FieldCartesianContact   uint16 = 117
	FieldJointCollision     uint16 = 118
	FieldCartesianCollision uint16 = 119
	FieldTauExtHatFiltered  uint16 = 120
	FieldOFExtHatK          uint16 = 121
	FieldKFExtHatK          uint16 = 122
	FieldODPEEd             uint16 = 123
	FieldTheta              uint16 = 124
	FieldDTheta             uint16 = 125
	FieldStateMotionMode    uint16 = 126
	FieldStateControlMode   uint16 = 127
	FieldRobotMode          uint16 = 128
	FieldErrors             uint16 = 129
	FieldReflexReason       uint16 = 130
	FieldSuccessRate        uint16 = 131

	FieldQC                uint16 = 200
	FieldDQC               uint16 = 201
	FieldOTEEc             uint16 = 202
	FieldODPEEc            uint16 = 203
	FieldElbowC            uint16 = 204
	FieldValidElbow        uint16 = 205
	FieldMotionFinished    uint16 = 206
	FieldTauJDCommand      uint16 = 207
	FieldHasMotionCommand  uint16 = 208
	FieldHasControlCommand uint16 = 209
)

var kindNames = map[uint32]string{
	MsgConnect:                "Connect",
	MsgMove:                   "Move",
	MsgStopMove:               "StopMove",
	MsgGetCartesianLimit:      "GetCartesianLimit",
	MsgSetCollisionBehavior:   "SetCollisionBehavior",
	MsgSetJointImpedance:      "SetJointImpedance",
	MsgSetCartesianImpedance:  "SetCartesianImpedance",
	MsgSetGuidingMode:         "SetGuidingMode",
	MsgSetEEToK:               "SetEEToK",
	MsgSetNEToEE:              "SetNEToEE",
	MsgSetLoad:                "SetLoad",
	MsgAutomaticErrorRecovery: "AutomaticErrorRecovery",
	MsgRobotState:             "RobotState",
	MsgRobotCommand:           "RobotCommand",
}

// KindName returns the contract name of a message type.
func KindName(messageType uint32) string {
	if name, ok := kindNames[messageType]; ok {
		return name
	}
	return fmt.Sprintf("message_type(%d)", messageType)
}

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Response    bool
	Reason      string
}

func (e ValidationError) Error() string {
	side := "request"
	if e.Response {
		side = "response"
	}
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: %s message_type=%d: %s", side, e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: %s message_type=%d field=%d: %s", side, e.MessageType, e.FieldID, e.Reason)
}

var statusOnly = []Requirement{{FieldStatus, tlv.TypeU8}}

var requestRequirements = map[uint32][]Requirement{
	MsgConnect: {
		{FieldVersion, tlv.TypeU16},
		{FieldUDPPort, tlv.TypeU16},
	},
	MsgMove: {
		{FieldControllerMode, tlv.TypeU8},
		{FieldMotionGeneratorMode, tlv.TypeU8},
		{FieldPathDeviation, tlv.TypeF64Array},
		{FieldGoalDeviation, tlv.TypeF64Array},
	},
	MsgStopMove: {},
	MsgGetCartesianLimit: {
		{FieldLimitID, tlv.TypeI32},
	},
	MsgSetCollisionBehavior: {
		{FieldLowerTorqueAcceleration, tlv.TypeF64Array},
		{FieldUpperTorqueAcceleration, tlv.TypeF64Array},
		{FieldLowerTorqueNominal, tlv.TypeF64Array},
		{FieldUpperTorqueNominal, tlv.TypeF64Array},
		{FieldLowerForceAcceleration, tlv.TypeF64Array},
		{FieldUpperForceAcceleration, tlv.TypeF64Array},
		{FieldLowerForceNominal, tlv.TypeF64Array},
		{FieldUpperForceNominal, tlv.TypeF64Array},
	},
	MsgSetJointImpedance: {
		{FieldJointStiffness, tlv.TypeF64Array},
	},
	MsgSetCartesianImpedance: {
		{FieldCartesianStiffness, tlv.TypeF64Array},
	},
	MsgSetGuidingMode: {
		{FieldGuidingAxes, tlv.TypeU8},
		{FieldGuidingNullspace, tlv.TypeBool},
	},
	MsgSetEEToK: {
		{FieldEEToK, tlv.TypeF64Array},
	},
	MsgSetNEToEE: {
		{FieldNEToEE, tlv.TypeF64Array},
	},
	MsgSetLoad: {
		{FieldLoadMass, tlv.TypeF64},
		{FieldLoadCenter, tlv.TypeF64Array},
		{FieldLoadInertia, tlv.TypeF64Array},
	},
	MsgAutomaticErrorRecovery: {},
	MsgRobotState: {
		{FieldQ, tlv.TypeF64Array},
		{FieldDQ, tlv.TypeF64Array},
		{FieldTauJ, tlv.TypeF64Array},
		{FieldOTEE, tlv.TypeF64Array},
		{FieldStateMotionMode, tlv.TypeU8},
		{FieldStateControlMode, tlv.TypeU8},
		{FieldRobotMode, tlv.TypeU8},
		{FieldErrors, tlv.TypeU64},
		{FieldReflexReason, tlv.TypeU64},
	},
	MsgRobotCommand: {
		{FieldHasMotionCommand, tlv.TypeBool},
		{FieldHasControlCommand, tlv.TypeBool},
	},
}

var responseRequirements = map[uint32][]Requirement{
	MsgConnect: {
		{FieldStatus, tlv.TypeU8},
		{FieldVersion, tlv.TypeU16},
	},
	MsgMove:                   statusOnly,
	MsgStopMove:               statusOnly,
	MsgGetCartesianLimit:      statusOnly,
	MsgSetCollisionBehavior:   statusOnly,
	MsgSetJointImpedance:      statusOnly,
	MsgSetCartesianImpedance:  statusOnly,
	MsgSetGuidingMode:         statusOnly,
	MsgSetEEToK:               statusOnly,
	MsgSetNEToEE:              statusOnly,
	MsgSetLoad:                statusOnly,
	MsgAutomaticErrorRecovery: statusOnly,
}

// Validate enforces required fields and field types for a request or datagram.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	return validate(requestRequirements, false, messageType, fields)
}

// ValidateResponse enforces required fields and field types for a command response.
func ValidateResponse(messageType uint32, fields []tlv.Field) error {
	return validate(responseRequirements, true, messageType, fields)
}

func validate(table map[uint32][]Requirement, response bool, messageType uint32, fields []tlv.Field) error {
	log.Trace().Uint32("message_type", messageType).Bool("response", response).Int("fields", len(fields)).Msg("schema.Validate")
	reqs, ok := table[messageType]
	if !ok {
		log.Error().Uint32("message_type", messageType).Bool("response", response).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Response: response, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Error().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Bool("response", response).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Response: response, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Error().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Response: response, Reason: "type mismatch"}
		}
	}
	return nil
}
