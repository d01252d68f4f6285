// Package rrc holds the instruction vocabulary understood by the RRC driver running on an
// ABB controller, and a client that sends those instructions through a ROS connection.
package rrc

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// FeedbackLevel tells the controller whether to report back once an instruction finished.
type FeedbackLevel int

// Feedback levels.
const (
	FeedbackNone FeedbackLevel = 0
	FeedbackDone FeedbackLevel = 1
)

// ExecLevel selects which task on the controller executes an instruction.
type ExecLevel int

// Execution levels.
const (
	ExecRobot      ExecLevel = 0
	ExecController ExecLevel = 10
)

// Zone is the tolerance radius in mm at which a move counts as reached. ZoneFine stops
// exactly on the target.
type Zone float64

// Zones matching the predefined RAPID zonedata.
const (
	ZoneFine Zone = -1
	Z0       Zone = 0
	Z1       Zone = 1
	Z5       Zone = 5
	Z10      Zone = 10
	Z15      Zone = 15
	Z20      Zone = 20
	Z30      Zone = 30
	Z40      Zone = 40
	Z50      Zone = 50
	Z60      Zone = 60
	Z80      Zone = 80
	Z100     Zone = 100
	Z150     Zone = 150
	Z200     Zone = 200
)

// Motion is the interpolation used to reach a Cartesian target.
type Motion string

// Motion types.
const (
	MotionJoint  Motion = "J"
	MotionLinear Motion = "L"
)

// Command is a single instruction for the controller.
type Command interface {
	Message() RobotMessage
}

func message(instruction string, strs []string, floats []float64) RobotMessage {
	if strs == nil {
		strs = []string{}
	}
	if floats == nil {
		floats = []float64{}
	}
	return RobotMessage{
		Instruction:   instruction,
		FeedbackLevel: FeedbackNone,
		ExecLevel:     ExecRobot,
		StringValues:  strs,
		FloatValues:   floats,
	}
}

// MoveToFrame moves the TCP to a Cartesian pose.
type MoveToFrame struct {
	Point       r3.Vector
	Orientation quat.Number
	Speed       float64
	Zone        Zone
	Motion      Motion
}

// Message implements Command.
func (c MoveToFrame) Message() RobotMessage {
	motion := c.Motion
	if motion == "" {
		motion = MotionJoint
	}
	q := c.Orientation
	return message("r_RRC_MoveToFrame",
		[]string{"Frame" + string(motion)},
		[]float64{
			c.Point.X, c.Point.Y, c.Point.Z,
			q.Real, q.Imag, q.Jmag, q.Kmag,
			c.Speed, float64(c.Zone),
		})
}

// ExternalAxes are the positions of additional axes (tracks, positioners). The cells this
// module drives have none, but the instruction still carries the field.
type ExternalAxes []float64

// MoveToJoints moves the arm to a joint configuration given in degrees.
type MoveToJoints struct {
	Joints       []float64
	ExternalAxes ExternalAxes
	Speed        float64
	Zone         Zone
}

// Message implements Command.
func (c MoveToJoints) Message() RobotMessage {
	floats := make([]float64, 0, len(c.Joints)+len(c.ExternalAxes)+2)
	floats = append(floats, c.Joints...)
	floats = append(floats, c.ExternalAxes...)
	floats = append(floats, c.Speed, float64(c.Zone))
	return message("r_RRC_MoveToJoints", nil, floats)
}

// SetDigital sets a digital output signal.
type SetDigital struct {
	Name  string
	Value bool
}

// Message implements Command.
func (c SetDigital) Message() RobotMessage {
	v := 0.0
	if c.Value {
		v = 1
	}
	return message("r_RRC_SetDigital", []string{c.Name}, []float64{v})
}

// SetAcceleration sets the acceleration and ramp, both in percent.
type SetAcceleration struct {
	Acceleration float64
	Ramp         float64
}

// Message implements Command.
func (c SetAcceleration) Message() RobotMessage {
	return message("r_RRC_SetAcceleration", nil, []float64{c.Acceleration, c.Ramp})
}

// SetMaxSpeed sets the speed override (percent) and the TCP speed limit (mm/s).
type SetMaxSpeed struct {
	Override float64
	MaxTCP   float64
}

// Message implements Command.
func (c SetMaxSpeed) Message() RobotMessage {
	return message("r_RRC_SetMaxSpeed", nil, []float64{c.Override, c.MaxTCP})
}

// SetTool activates a tooldata declared on the controller.
type SetTool struct {
	Name string
}

// Message implements Command.
func (c SetTool) Message() RobotMessage {
	return message("r_RRC_SetTool", []string{c.Name}, nil)
}

// SetWorkObject activates a wobjdata declared on the controller.
type SetWorkObject struct {
	Name string
}

// Message implements Command.
func (c SetWorkObject) Message() RobotMessage {
	return message("r_RRC_SetWorkObject", []string{c.Name}, nil)
}

// PrintText writes a line on the FlexPendant.
type PrintText struct {
	Text string
}

// Message implements Command.
func (c PrintText) Message() RobotMessage {
	return message("r_RRC_PrintText", []string{c.Text}, nil)
}

// Stop halts program execution until the operator presses play on the pendant.
type Stop struct{}

// Message implements Command.
func (Stop) Message() RobotMessage {
	return message("r_RRC_Stop", nil, nil)
}

// Noop does nothing. Sent with feedback it works as a ping.
type Noop struct{}

// Message implements Command.
func (Noop) Message() RobotMessage {
	return message("r_RRC_Noop", nil, nil)
}
