// Package rosbridge is a minimal client for the rosbridge v2 JSON protocol over a websocket.
package rosbridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// ErrClosed is returned by operations on a connection that was closed or terminated.
var ErrClosed = errors.New("rosbridge connection closed")

// Handler receives the raw "msg" payload of every message published on a subscribed topic.
// Handlers run on the connection's read goroutine and must not block.
type Handler func(msg json.RawMessage)

// op is the envelope shared by every rosbridge operation we send or receive.
type op struct {
	Op          string          `json:"op"`
	ID          string          `json:"id,omitempty"`
	Topic       string          `json:"topic,omitempty"`
	Type        string          `json:"type,omitempty"`
	Msg         json.RawMessage `json:"msg,omitempty"`
	QueueLength *int            `json:"queue_length,omitempty"`
}

// Conn is a single websocket connection to a rosbridge server.
type Conn struct {
	logger logging.Logger
	ws     *websocket.Conn

	writeMu sync.Mutex

	mu         sync.Mutex
	handlers   map[string]Handler
	advertised map[string]string // topic -> op id
	subscribed map[string]string // topic -> op id
	closed     bool

	cancel  context.CancelFunc
	done    chan struct{}
	readErr error
}

// Dial connects to the rosbridge server at url (e.g. ws://localhost:9090) and starts reading.
func Dial(ctx context.Context, url string, logger logging.Logger) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial rosbridge at %s", url)
	}
	// RRC responses are small, but latched topics from other nodes may not be.
	ws.SetReadLimit(1 << 22)

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		logger:     logger,
		ws:         ws,
		handlers:   make(map[string]Handler),
		advertised: make(map[string]string),
		subscribed: make(map[string]string),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go c.readLoop(readCtx)

	logger.Infof("Connected to rosbridge at %s", url)
	return c, nil
}

func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		var in op
		if err := wsjson.Read(ctx, c.ws, &in); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.readErr = err
			c.mu.Unlock()
			if !closed && ctx.Err() == nil {
				c.logger.Warnf("rosbridge read failed: %v", err)
			}
			return
		}

		switch in.Op {
		case "publish":
			c.mu.Lock()
			h := c.handlers[in.Topic]
			c.mu.Unlock()
			if h == nil {
				c.logger.Debugf("Dropping message on unsubscribed topic %s", in.Topic)
				continue
			}
			h(in.Msg)
		case "status":
			c.logger.Debugf("rosbridge status: %s", string(in.Msg))
		default:
			c.logger.Debugf("Ignoring rosbridge op %q", in.Op)
		}
	}
}

func (c *Conn) write(ctx context.Context, o op) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsjson.Write(ctx, c.ws, o); err != nil {
		return errors.Wrapf(err, "rosbridge %s %s", o.Op, o.Topic)
	}
	return nil
}

// Advertise announces that this client will publish msgType messages on topic.
func (c *Conn) Advertise(ctx context.Context, topic, msgType string) error {
	id := "advertise:" + topic + ":" + uuid.NewString()
	if err := c.write(ctx, op{Op: "advertise", ID: id, Topic: topic, Type: msgType}); err != nil {
		return err
	}
	c.mu.Lock()
	c.advertised[topic] = id
	c.mu.Unlock()
	return nil
}

// Unadvertise withdraws a previous Advertise.
func (c *Conn) Unadvertise(ctx context.Context, topic string) error {
	c.mu.Lock()
	id, ok := c.advertised[topic]
	delete(c.advertised, topic)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.write(ctx, op{Op: "unadvertise", ID: id, Topic: topic})
}

// Publish sends msg on topic. Calls are written to the socket in the order they are made.
func (c *Conn) Publish(ctx context.Context, topic string, msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, "encode message for %s", topic)
	}
	return c.write(ctx, op{Op: "publish", ID: "publish:" + topic + ":" + uuid.NewString(), Topic: topic, Msg: raw})
}

// Subscribe registers h for messages on topic. A topic has at most one handler; subscribing
// again replaces it.
func (c *Conn) Subscribe(ctx context.Context, topic, msgType string, h Handler) error {
	id := "subscribe:" + topic + ":" + uuid.NewString()
	c.mu.Lock()
	c.handlers[topic] = h
	c.mu.Unlock()

	queueLength := 0
	if err := c.write(ctx, op{Op: "subscribe", ID: id, Topic: topic, Type: msgType, QueueLength: &queueLength}); err != nil {
		c.mu.Lock()
		delete(c.handlers, topic)
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	c.subscribed[topic] = id
	c.mu.Unlock()
	return nil
}

// Unsubscribe removes the handler for topic and tells the server to stop forwarding it.
func (c *Conn) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	id, ok := c.subscribed[topic]
	delete(c.subscribed, topic)
	delete(c.handlers, topic)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.write(ctx, op{Op: "unsubscribe", ID: id, Topic: topic})
}

// Done is closed once the read goroutine has exited.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the read goroutine stopped. It is nil while Done is open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Close unsubscribes and unadvertises every topic, then performs a normal websocket close.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	topics := make([]string, 0, len(c.subscribed))
	for t := range c.subscribed {
		topics = append(topics, t)
	}
	advertised := make([]string, 0, len(c.advertised))
	for t := range c.advertised {
		advertised = append(advertised, t)
	}
	c.mu.Unlock()

	ctx := context.Background()
	var err error
	for _, t := range topics {
		err = multierr.Append(err, c.Unsubscribe(ctx, t))
	}
	for _, t := range advertised {
		err = multierr.Append(err, c.Unadvertise(ctx, t))
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if closeErr := c.ws.Close(websocket.StatusNormalClosure, ""); closeErr != nil {
		c.logger.Debugf("rosbridge close handshake: %v", closeErr)
	}
	c.cancel()
	<-c.done

	if err != nil {
		return errors.Wrap(err, "close rosbridge connection")
	}
	return nil
}

// Terminate drops the connection without a close handshake and discards all handlers.
// It is safe to call after Close.
func (c *Conn) Terminate() error {
	c.mu.Lock()
	c.closed = true
	c.handlers = make(map[string]Handler)
	c.advertised = make(map[string]string)
	c.subscribed = make(map[string]string)
	c.mu.Unlock()

	c.cancel()
	<-c.done
	return nil
}
