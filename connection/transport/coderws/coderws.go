/*
The coderws package is an alternative transport implementation over the
nhooyr.io websocket library. It carries the same state machine and delegate
contract as the gorilla-based websocket package; owners pick whichever
underlying library fits their build.
*/

package coderws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/beacondeck/realtime/connection/transport"
	"github.com/beacondeck/realtime/logger"
	"github.com/beacondeck/realtime/telemetry/throughputstats"
	"gopkg.in/tomb.v2"
	"nhooyr.io/websocket"
)

// DialHook may mutate or replace the dial options before any network
// activity, e.g. to attach an HTTP client with a cookie jar. It runs exactly
// once, at construction, and must return usable options.
type DialHook func(opts *websocket.DialOptions) *websocket.DialOptions

type Option func(*Client)

func WithDialOptions(hook DialHook) Option {
	return func(c *Client) {
		c.dialOpts = hook(c.dialOpts)
	}
}

func WithRequestHeader(headers http.Header) Option {
	return func(c *Client) {
		c.dialOpts.HTTPHeader = headers
	}
}

type Client struct {
	tmb    tomb.Tomb
	logger *logger.Logger

	endpoint *url.URL
	dialOpts *websocket.DialOptions

	mu       sync.Mutex
	state    transport.ReadyState
	delegate transport.Delegate
	conn     *websocket.Conn

	localClose transport.CloseCode

	stats *throughputstats.ThroughputStats
}

func New(logger *logger.Logger, rawUrl string, opts ...Option) (*Client, error) {
	endpoint, err := transport.NormalizeEndpoint(rawUrl)
	if err != nil {
		return nil, err
	}

	noStats := make(chan struct{})
	close(noStats)

	c := &Client{
		logger:   logger,
		endpoint: endpoint,
		dialOpts: &websocket.DialOptions{HTTPHeader: http.Header{}},
		state:    transport.Closed,
		stats:    throughputstats.New("bytes", noStats),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.dialOpts == nil {
		return nil, fmt.Errorf("dial hook did not return usable options")
	}

	return c, nil
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != transport.Closed {
		c.mu.Unlock()
		return transport.ErrAlreadyConnected
	}
	c.state = transport.Connecting
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.endpoint.String(), c.dialOpts)
	if err != nil {
		c.setState(transport.Closed)
		return fmt.Errorf("error dialing websocket %s: %w", c.endpoint, err)
	}

	c.tmb = tomb.Tomb{}

	c.mu.Lock()
	c.conn = conn
	c.stats = throughputstats.New("bytes", c.tmb.Dying())
	c.state = transport.Open
	delegate := c.delegate
	c.mu.Unlock()

	if delegate != nil {
		delegate.OnOpen()
	}

	c.tmb.Go(c.receive)

	return nil
}

func (c *Client) Disconnect(code transport.CloseCode, reason string) error {
	if !code.Valid() {
		return &transport.CloseCodeError{Code: code}
	}

	c.mu.Lock()
	if c.state != transport.Open {
		c.mu.Unlock()
		return transport.ErrNotOpen
	}
	c.state = transport.Closing
	c.localClose = code
	conn := c.conn
	c.mu.Unlock()

	c.logger.Infof("Websocket disconnecting with code %d: %s", code, reason)

	// Sends the close frame and drops the connection; the receive loop then
	// delivers the terminal OnClose with the code we sent
	if err := conn.Close(websocket.StatusCode(code), reason); err != nil {
		c.logger.Errorf("failed to close websocket cleanly: %s", err)
	}

	return nil
}

func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	if c.state != transport.Open {
		c.mu.Unlock()
		return transport.ErrNotOpen
	}
	conn := c.conn
	c.mu.Unlock()

	if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}

	c.stats.CountOutbound(len(data))
	return nil
}

func (c *Client) ReadyState() transport.ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) SetDelegate(delegate transport.Delegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = delegate
}

func (c *Client) Done() <-chan struct{} {
	return c.tmb.Dead()
}

func (c *Client) Err() error {
	return c.tmb.Err()
}

func (c *Client) Stats() throughputstats.Digest {
	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()
	return stats.Digest()
}

// receive keeps exactly one read outstanding, re-armed after every frame,
// until a read fails and the terminal callbacks are delivered.
func (c *Client) receive() error {
	defer c.logger.Infof("Websocket connection closed")
	c.logger.Infof("Websocket connection started")

	ctx := c.tmb.Context(context.Background())

	for {
		messageType, message, err := c.conn.Read(ctx)
		if err != nil {
			return c.windDown(err)
		}

		c.stats.CountInbound(len(message))

		switch messageType {
		case websocket.MessageText:
			if delegate := c.delegateRef(); delegate != nil {
				delegate.OnMessage(string(message))
			}
		default:
			// This transport only speaks text; binary frames are dropped
			// without notifying the delegate
			c.logger.Infof("Dropping unsupported binary frame of %d bytes", len(message))
		}
	}
}

// windDown classifies the read error that ended the receive loop and hands
// the terminal delegate notifications to a goroutine that waits for this
// attempt's tomb to finish its own bookkeeping first. Only then does the
// state become Closed, so a delegate that calls Connect from inside OnClose
// always finds the previous attempt fully dead and cannot corrupt the
// freshly initialized tomb.
func (c *Client) windDown(err error) error {
	c.mu.Lock()
	closing := c.state == transport.Closing
	localClose := c.localClose
	c.mu.Unlock()

	// A non-negative close status means the peer sent a proper close frame
	status := websocket.CloseStatus(err)
	peerClose := status >= 0

	switch {
	case closing:
	case peerClose:
		c.logger.Infof("Websocket closed by peer with code %d", status)
	default:
		c.logger.Error(err)
	}

	dead := c.tmb.Dead()
	go func() {
		<-dead

		c.mu.Lock()
		c.state = transport.Closed
		delegate := c.delegate
		c.mu.Unlock()

		if delegate == nil {
			return
		}

		switch {
		case closing:
			delegate.OnClose(localClose)
		case peerClose:
			delegate.OnClose(transport.CloseCode(status))
		default:
			delegate.OnError(err)
			delegate.OnClose(transport.CloseAbnormalClosure)
		}
	}()

	if closing || peerClose {
		return nil
	}
	return err
}

func (c *Client) setState(state transport.ReadyState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *Client) delegateRef() transport.Delegate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate
}
