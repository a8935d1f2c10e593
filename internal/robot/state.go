package robot

import (
	"fmt"
	"math/bits"
	"strings"
	"time"

	"github.com/danmuck/armlink/internal/protocol/session"
)

type MotionGeneratorMode uint8

const (
	MotionGeneratorIdle MotionGeneratorMode = iota
	MotionGeneratorJointPosition
	MotionGeneratorJointVelocity
	MotionGeneratorCartesianPosition
	MotionGeneratorCartesianVelocity
	MotionGeneratorNone
)

var motionGeneratorNames = [...]string{"idle", "joint_position", "joint_velocity", "cartesian_position", "cartesian_velocity", "none"}

func (m MotionGeneratorMode) String() string {
	if int(m) < len(motionGeneratorNames) {
		return motionGeneratorNames[m]
	}
	return fmt.Sprintf("motion_generator(%d)", uint8(m))
}

type ControllerMode uint8

const (
	ControllerJointImpedance ControllerMode = iota
	ControllerCartesianImpedance
	ControllerExternal
	ControllerOther
)

var controllerNames = [...]string{"joint_impedance", "cartesian_impedance", "external_controller", "other"}

func (m ControllerMode) String() string {
	if int(m) < len(controllerNames) {
		return controllerNames[m]
	}
	return fmt.Sprintf("controller(%d)", uint8(m))
}

type RobotMode uint8

const (
	RobotModeOther RobotMode = iota
	RobotModeIdle
	RobotModeMove
	RobotModeGuiding
	RobotModeReflex
	RobotModeUserStopped
	RobotModeAutomaticErrorRecovery
)

var robotModeNames = [...]string{"other", "idle", "move", "guiding", "reflex", "user_stopped", "automatic_error_recovery"}

func (m RobotMode) String() string {
	if int(m) < len(robotModeNames) {
		return robotModeNames[m]
	}
	return fmt.Sprintf("robot_mode(%d)", uint8(m))
}

// ErrorFlags is the controller's error bit set. Bit i is named by errorFlagNames[i].
type ErrorFlags uint64

var errorFlagNames = []string{
	"joint_position_limits_violation",
	"cartesian_position_limits_violation",
	"self_collision_avoidance_violation",
	"joint_velocity_violation",
	"cartesian_velocity_violation",
	"force_control_safety_violation",
	"joint_reflex",
	"cartesian_reflex",
	"max_goal_pose_deviation_violation",
	"max_path_pose_deviation_violation",
	"cartesian_velocity_profile_safety_violation",
	"joint_position_motion_generator_start_pose_invalid",
	"joint_motion_generator_position_limits_violation",
	"joint_motion_generator_velocity_limits_violation",
	"joint_motion_generator_velocity_discontinuity",
	"joint_motion_generator_acceleration_discontinuity",
	"cartesian_position_motion_generator_start_pose_invalid",
	"cartesian_motion_generator_elbow_limit_violation",
	"cartesian_motion_generator_velocity_limits_violation",
	"cartesian_motion_generator_velocity_discontinuity",
	"cartesian_motion_generator_acceleration_discontinuity",
	"cartesian_motion_generator_elbow_sign_inconsistent",
	"cartesian_motion_generator_start_elbow_invalid",
	"cartesian_motion_generator_joint_position_limits_violation",
	"cartesian_motion_generator_joint_velocity_limits_violation",
	"cartesian_motion_generator_joint_velocity_discontinuity",
	"cartesian_motion_generator_joint_acceleration_discontinuity",
	"cartesian_position_motion_generator_invalid_frame",
	"force_controller_desired_force_tolerance_violation",
	"controller_torque_discontinuity",
	"start_elbow_sign_inconsistent",
	"communication_constraints_violation",
	"power_limit_violation",
	"joint_p2p_insufficient_torque_for_planning",
	"tau_j_range_violation",
	"instability_detected",
	"joint_move_in_wrong_direction",
	"cartesian_spline_motion_generator_violation",
	"joint_via_motion_generator_planning_joint_limit_violation",
	"base_acceleration_initialization_timeout",
	"base_acceleration_invalid_reading",
}

const (
	ErrJointReflex              ErrorFlags = 1 << 6
	ErrCartesianReflex          ErrorFlags = 1 << 7
	ErrCommunicationConstraints ErrorFlags = 1 << 31
)

func (f ErrorFlags) Any() bool { return f != 0 }

func (f ErrorFlags) Has(flag ErrorFlags) bool { return f&flag == flag }

// Names lists the set flags in bit order. Unnamed bits render as bit_N.
func (f ErrorFlags) Names() []string {
	names := make([]string, 0, bits.OnesCount64(uint64(f)))
	for rest := uint64(f); rest != 0; rest &= rest - 1 {
		i := bits.TrailingZeros64(rest)
		if i < len(errorFlagNames) {
			names = append(names, errorFlagNames[i])
		} else {
			names = append(names, fmt.Sprintf("bit_%d", i))
		}
	}
	return names
}

func (f ErrorFlags) String() string {
	return "[" + strings.Join(f.Names(), ", ") + "]"
}

// State is one converted controller snapshot. Poses are column-major 4x4.
type State struct {
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

	MotionGeneratorMode MotionGeneratorMode
	ControllerMode      ControllerMode
	RobotMode           RobotMode

	CurrentErrors    ErrorFlags
	LastMotionErrors ErrorFlags

	ControlCommandSuccessRate float64

	// Time is the controller clock; one message id per millisecond.
	Time      time.Duration
	MessageID uint64
}

func convertState(s session.RobotState) State {
	return State{
		OTEE:                      s.OTEE,
		OTEEd:                     s.OTEEd,
		FTEE:                      s.FTEE,
		EETK:                      s.EETK,
		MassEE:                    s.MassEE,
		MassLoad:                  s.MassLoad,
		Elbow:                     s.Elbow,
		ElbowD:                    s.ElbowD,
		TauJ:                      s.TauJ,
		TauJD:                     s.TauJD,
		DTauJ:                     s.DTauJ,
		Q:                         s.Q,
		QD:                        s.QD,
		DQ:                        s.DQ,
		DQD:                       s.DQD,
		DDQD:                      s.DDQD,
		JointContact:              s.JointContact,
		CartesianContact:          s.CartesianContact,
		JointCollision:            s.JointCollision,
		CartesianCollision:        s.CartesianCollision,
		TauExtHatFiltered:         s.TauExtHatFiltered,
		OFExtHatK:                 s.OFExtHatK,
		KFExtHatK:                 s.KFExtHatK,
		ODPEEd:                    s.ODPEEd,
		Theta:                     s.Theta,
		DTheta:                    s.DTheta,
		MotionGeneratorMode:       MotionGeneratorMode(s.MotionGeneratorMode),
		ControllerMode:            ControllerMode(s.ControllerMode),
		RobotMode:                 RobotMode(s.RobotMode),
		CurrentErrors:             ErrorFlags(s.Errors),
		LastMotionErrors:          ErrorFlags(s.ReflexReason),
		ControlCommandSuccessRate: s.ControlCommandSuccessRate,
		Time:                      time.Duration(s.MessageID) * time.Millisecond,
		MessageID:                 s.MessageID,
	}
}
