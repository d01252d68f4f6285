package mmec_fab

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"

	"mmec_fab/rosbridge"
	"mmec_fab/rrc"
)

// RestartHint is attached to connectivity failures. The RRC driver runs in a docker
// container next to rosbridge and is the usual culprit.
const RestartHint = "restart docker container?"

// Transport carries instructions to the controller. *rrc.Client implements it.
type Transport interface {
	// Send queues cmd and returns without waiting for the controller.
	Send(ctx context.Context, cmd rrc.Command) error
	// SendAndWait blocks until the controller reports cmd done. A timeout of zero or less
	// waits until ctx ends.
	SendAndWait(ctx context.Context, cmd rrc.Command, timeout time.Duration) (rrc.RobotMessage, error)
	Close() error
	Terminate() error
}

// ConnectivityError is returned when the controller did not answer a blocking instruction,
// either because the timeout expired or because the connection went away while waiting.
// Timeout is zero for waits without a bound.
type ConnectivityError struct {
	Timeout time.Duration
	Hint    string
	Err     error
}

func (e *ConnectivityError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("no response from controller within %s, %s", e.Timeout, e.Hint)
	}
	return fmt.Sprintf("no response from controller (%v), %s", e.Err, e.Hint)
}

// connectivityFault turns transport failures that mean "the controller is unreachable"
// into a *ConnectivityError and returns any other error unchanged.
func connectivityFault(err error, timeout time.Duration) error {
	if errors.Is(err, rrc.ErrTimeout) || errors.Is(err, rrc.ErrConnectionLost) {
		return &ConnectivityError{Timeout: timeout, Hint: RestartHint, Err: err}
	}
	return err
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// RobotClient drives one ABB arm through pick and place choreographies. It owns its
// transport until Close.
type RobotClient struct {
	cfg       *Config
	logger    logging.Logger
	transport Transport
	gripper   gripper

	registry *ControllerRegistry
	key      string

	closeOnce sync.Once
	closeErr  error
}

// NewRobotClient connects to the rosbridge server in cfg and claims the controller.
func NewRobotClient(ctx context.Context, cfg *Config, logger logging.Logger) (*RobotClient, error) {
	if _, _, err := cfg.Validate(""); err != nil {
		return nil, err
	}

	key := cfg.controllerKey()
	owner := fmt.Sprintf("pid %d", os.Getpid())
	if err := controllers.Acquire(key, owner); err != nil {
		return nil, err
	}

	conn, err := rosbridge.Dial(ctx, cfg.URL, logger.Sublogger("rosbridge"))
	if err != nil {
		controllers.Release(key)
		return nil, fmt.Errorf("failed to connect to controller: %w", err)
	}

	transport, err := rrc.NewClient(ctx, conn, cfg.Namespace, logger.Sublogger("rrc"))
	if err != nil {
		controllers.Release(key)
		return nil, multierr.Combine(
			fmt.Errorf("failed to set up RRC topics: %w", err),
			conn.Terminate(),
		)
	}

	c := newRobotClient(transport, cfg, logger)
	c.registry = controllers
	c.key = key
	logger.Infof("Robot client ready on %s (namespace %s)", cfg.URL, cfg.Namespace)
	return c, nil
}

// NewRobotClientWithTransport wraps an existing transport. The client takes ownership and
// closes it in Close.
func NewRobotClientWithTransport(transport Transport, cfg *Config, logger logging.Logger) (*RobotClient, error) {
	if _, _, err := cfg.Validate(""); err != nil {
		return nil, err
	}
	return newRobotClient(transport, cfg, logger), nil
}

func newRobotClient(transport Transport, cfg *Config, logger logging.Logger) *RobotClient {
	return &RobotClient{
		cfg:       cfg,
		logger:    logger,
		transport: transport,
		gripper:   newGripper(cfg.GripperPin),
	}
}

// WithRobotClient opens a client, hands it to fn and closes it on every exit path.
func WithRobotClient(ctx context.Context, cfg *Config, logger logging.Logger, fn func(*RobotClient) error) (err error) {
	c, err := NewRobotClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, c.Close())
	}()
	return fn(c)
}

// Close closes and terminates the transport and frees the controller. Only the first call
// does anything.
func (c *RobotClient) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = multierr.Combine(c.transport.Close(), c.transport.Terminate())
		if c.registry != nil {
			c.registry.Release(c.key)
		}
		c.logger.Debug("Robot client closed")
	})
	return c.closeErr
}

func (c *RobotClient) send(ctx context.Context, step string, cmd rrc.Command) error {
	c.logger.Debugf("%s: %+v", step, cmd)
	if err := c.transport.Send(ctx, cmd); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

func (c *RobotClient) sendAndWait(ctx context.Context, step string, cmd rrc.Command, timeout time.Duration) error {
	c.logger.Debugf("%s (waiting): %+v", step, cmd)
	if _, err := c.transport.SendAndWait(ctx, cmd, timeout); err != nil {
		return fmt.Errorf("%s: %w", step, connectivityFault(err, timeout))
	}
	return nil
}

// CheckConnectionController pings the controller once and fails with a
// *ConnectivityError if it does not answer within timeout. A zero timeout uses the
// configured one.
func (c *RobotClient) CheckConnectionController(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.cfg.timeout()
	}
	_, err := c.transport.SendAndWait(ctx, rrc.Noop{}, timeout)
	if err == nil {
		c.logger.Debug("Controller answered ping")
		return nil
	}
	var connErr *ConnectivityError
	if errors.As(connectivityFault(err, timeout), &connErr) {
		return connErr
	}
	return errors.Wrap(err, "check connection to controller")
}

// Pre checks the connection, sets up gripper, speeds, tool and work object, waits for the
// operator to press play and moves to safeJoints (the configured home when nil).
func (c *RobotClient) Pre(ctx context.Context, safeJoints []float64) error {
	if err := c.CheckConnectionController(ctx, 0); err != nil {
		return err
	}

	steps := []struct {
		name string
		cmd  rrc.Command
	}{
		{"open gripper", c.gripper.Open()},
		{"set acceleration", rrc.SetAcceleration{Acceleration: c.cfg.Acceleration, Ramp: c.cfg.AccelerationRamp}},
		{"set max speed", rrc.SetMaxSpeed{Override: c.cfg.SpeedOverride, MaxTCP: c.cfg.TCPMaxSpeed}},
		{"set tool", rrc.SetTool{Name: c.cfg.Tool}},
		{"set work object", rrc.SetWorkObject{Name: c.cfg.WorkObject}},
	}
	for _, s := range steps {
		if err := c.send(ctx, s.name, s.cmd); err != nil {
			return err
		}
	}

	if err := c.ConfirmStart(ctx); err != nil {
		return err
	}

	return c.sendAndWait(ctx, "move to safe position", c.moveToSafe(safeJoints), 0)
}

// Post moves back to safeJoints (the configured home when nil) and waits until the arm
// is there.
func (c *RobotClient) Post(ctx context.Context, safeJoints []float64) error {
	return c.sendAndWait(ctx, "move to safe position", c.moveToSafe(safeJoints), 0)
}

func (c *RobotClient) moveToSafe(joints []float64) rrc.MoveToJoints {
	if len(joints) == 0 {
		joints = c.cfg.safeJoints()
	} else {
		joints = append([]float64(nil), joints...)
	}
	return rrc.MoveToJoints{
		Joints:       joints,
		ExternalAxes: rrc.ExternalAxes{},
		Speed:        c.cfg.SafeJointSpeed,
		Zone:         *c.cfg.SafeJointZone,
	}
}

// ConfirmStart stops the program on the controller until the operator presses play on
// the pendant.
func (c *RobotClient) ConfirmStart(ctx context.Context) error {
	if err := c.send(ctx, "prompt operator", rrc.PrintText{Text: "Press play when ready."}); err != nil {
		return err
	}
	if err := c.send(ctx, "stop", rrc.Stop{}); err != nil {
		return err
	}
	c.logger.Info("Press start on pendant when ready")
	return c.send(ctx, "announce resume", rrc.PrintText{Text: "Resuming execution."})
}
