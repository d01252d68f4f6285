package mmec_fab

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"

	"mmec_fab/rrc"
)

// sent is one instruction seen by recordingTransport.
type sent struct {
	cmd     rrc.Command
	waited  bool
	timeout time.Duration
}

// recordingTransport records instructions in order and answers every SendAndWait
// immediately unless waitErr is set.
type recordingTransport struct {
	mu      sync.Mutex
	sent    []sent
	waitErr error
	sendErr error

	closed     int
	terminated int
}

func (r *recordingTransport) Send(ctx context.Context, cmd rrc.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, sent{cmd: cmd})
	return nil
}

func (r *recordingTransport) SendAndWait(ctx context.Context, cmd rrc.Command, timeout time.Duration) (rrc.RobotMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{cmd: cmd, waited: true, timeout: timeout})
	if r.waitErr != nil {
		return rrc.RobotMessage{}, r.waitErr
	}
	msg := cmd.Message()
	msg.Feedback = "Done"
	return msg, nil
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *recordingTransport) Terminate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminated++
	return nil
}

func (r *recordingTransport) commands() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

func (r *recordingTransport) instructions() []string {
	var names []string
	for _, s := range r.commands() {
		names = append(names, s.cmd.Message().Instruction)
	}
	return names
}

func newTestClient(t *testing.T) (*RobotClient, *recordingTransport) {
	t.Helper()
	transport := &recordingTransport{}
	c, err := NewRobotClientWithTransport(transport, &Config{}, logging.NewTestLogger(t))
	require.NoError(t, err)
	return c, transport
}
