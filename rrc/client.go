package rrc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"mmec_fab/rosbridge"
)

var (
	// ErrTimeout is returned by SendAndWait when no feedback arrives in time.
	ErrTimeout = errors.New("timed out waiting for controller feedback")
	// ErrTerminated is returned for instructions still waiting when the client is terminated.
	ErrTerminated = errors.New("rrc client terminated")
	// ErrConnectionLost is returned for instructions still waiting when the ROS connection
	// stops delivering responses.
	ErrConnectionLost = errors.New("ros connection lost")
)

// Ros is the subset of a ROS connection the client needs. *rosbridge.Conn implements it.
type Ros interface {
	Advertise(ctx context.Context, topic, msgType string) error
	Publish(ctx context.Context, topic string, msg any) error
	Subscribe(ctx context.Context, topic, msgType string, h rosbridge.Handler) error
	Close() error
	Terminate() error
	// Done is closed once the connection stops reading; Err then reports why.
	Done() <-chan struct{}
	Err() error
}

// Client numbers instructions, publishes them on the command topic and matches feedback
// from the response topic back to the instruction that asked for it.
type Client struct {
	ros           Ros
	logger        logging.Logger
	commandTopic  string
	responseTopic string

	// sendMu keeps sequence ids in the same order as messages on the wire.
	sendMu sync.Mutex

	mu         sync.Mutex
	sequenceID int
	pending    map[int]chan RobotMessage

	terminated    chan struct{}
	terminateOnce sync.Once
}

// NewClient subscribes to the response topic and advertises the command topic under
// namespace (e.g. "/rob1").
func NewClient(ctx context.Context, ros Ros, namespace string, logger logging.Logger) (*Client, error) {
	c := &Client{
		ros:           ros,
		logger:        logger,
		commandTopic:  topic(namespace, CommandTopic),
		responseTopic: topic(namespace, ResponseTopic),
		pending:       make(map[int]chan RobotMessage),
		terminated:    make(chan struct{}),
	}

	if err := ros.Subscribe(ctx, c.responseTopic, MessageType, c.handleResponse); err != nil {
		return nil, errors.Wrapf(err, "subscribe to %s", c.responseTopic)
	}
	if err := ros.Advertise(ctx, c.commandTopic, MessageType); err != nil {
		return nil, errors.Wrapf(err, "advertise %s", c.commandTopic)
	}

	logger.Debugf("RRC client ready (command: %s, response: %s)", c.commandTopic, c.responseTopic)
	return c, nil
}

func (c *Client) handleResponse(raw json.RawMessage) {
	var msg RobotMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warnf("Discarding malformed robot response: %v", err)
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[msg.FeedbackID]
	delete(c.pending, msg.FeedbackID)
	c.mu.Unlock()

	if !ok {
		c.logger.Debugf("No instruction waiting for feedback id %d", msg.FeedbackID)
		return
	}
	ch <- msg
}

func (c *Client) publish(ctx context.Context, msg RobotMessage) (int, chan RobotMessage, error) {
	select {
	case <-c.terminated:
		return 0, nil, ErrTerminated
	default:
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	c.sequenceID++
	id := c.sequenceID
	var ch chan RobotMessage
	if msg.FeedbackLevel > FeedbackNone {
		ch = make(chan RobotMessage, 1)
		c.pending[id] = ch
	}
	c.mu.Unlock()

	msg.SequenceID = id
	if err := c.ros.Publish(ctx, c.commandTopic, msg); err != nil {
		c.forget(id)
		return 0, nil, errors.Wrapf(err, "publish %s", msg.Instruction)
	}
	return id, ch, nil
}

func (c *Client) forget(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Send publishes cmd without waiting for the controller.
func (c *Client) Send(ctx context.Context, cmd Command) error {
	_, _, err := c.publish(ctx, cmd.Message())
	return err
}

// SendAndWait publishes cmd with feedback requested and blocks until the controller
// reports it done. A timeout of zero or less waits until ctx ends.
func (c *Client) SendAndWait(ctx context.Context, cmd Command, timeout time.Duration) (RobotMessage, error) {
	msg := cmd.Message()
	if msg.FeedbackLevel == FeedbackNone {
		msg.FeedbackLevel = FeedbackDone
	}

	id, ch, err := c.publish(ctx, msg)
	if err != nil {
		return RobotMessage{}, err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case resp := <-ch:
		if resp.failed() {
			return resp, errors.Errorf("%s (sequence %d) failed on controller: %s", msg.Instruction, id, resp.Feedback)
		}
		return resp, nil
	case <-expired:
		c.forget(id)
		return RobotMessage{}, errors.Wrapf(ErrTimeout, "%s (sequence %d) after %s", msg.Instruction, id, timeout)
	case <-ctx.Done():
		c.forget(id)
		return RobotMessage{}, ctx.Err()
	case <-c.terminated:
		return RobotMessage{}, ErrTerminated
	case <-c.ros.Done():
		c.forget(id)
		return RobotMessage{}, c.connectionLost(msg.Instruction, id)
	}
}

func (c *Client) connectionLost(instruction string, id int) error {
	cause := c.ros.Err()
	if cause == nil {
		cause = rosbridge.ErrClosed
	}
	return fmt.Errorf("%s (sequence %d): %w: %w", instruction, id, ErrConnectionLost, cause)
}

// Close closes the underlying ROS connection gracefully.
func (c *Client) Close() error {
	return c.ros.Close()
}

// Terminate releases every waiting SendAndWait with ErrTerminated and drops the connection.
func (c *Client) Terminate() error {
	var err error
	c.terminateOnce.Do(func() {
		close(c.terminated)
		err = c.ros.Terminate()
	})
	return err
}
