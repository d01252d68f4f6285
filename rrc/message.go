package rrc

import "strings"

// MessageType is the ROS message type of both the command and the response topics.
const MessageType = "compas_rrc_driver/RobotMessage"

// Topic names relative to the robot namespace.
const (
	CommandTopic  = "robot_command"
	ResponseTopic = "robot_response"
)

// RobotMessage is the wire form of an instruction and of its feedback.
type RobotMessage struct {
	Instruction   string        `json:"instruction"`
	FeedbackLevel FeedbackLevel `json:"feedback_level"`
	ExecLevel     ExecLevel     `json:"exec_level"`
	SequenceID    int           `json:"sequence_id"`
	FeedbackID    int           `json:"feedback_id"`
	Feedback      string        `json:"feedback"`
	StringValues  []string      `json:"string_values"`
	FloatValues   []float64     `json:"float_values"`
}

// failed reports whether the controller answered with an error.
func (m RobotMessage) failed() bool {
	return strings.HasPrefix(strings.ToUpper(m.Feedback), "ERROR")
}

func topic(namespace, name string) string {
	ns := strings.TrimSuffix(namespace, "/")
	if ns != "" && !strings.HasPrefix(ns, "/") {
		ns = "/" + ns
	}
	return ns + "/" + name
}
