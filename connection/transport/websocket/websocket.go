/*
The websocket package establishes and ferries raw text traffic across the
underlying gorilla websocket connection, translating its events into delegate
callbacks. In terms of the overall connection layer architecture, this package
is at the lowest layer: it knows nothing about what the frames mean, it only
keeps the state machine honest and the receive loop armed.
*/

package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/beacondeck/realtime/connection/transport"
	"github.com/beacondeck/realtime/logger"
	"github.com/beacondeck/realtime/telemetry/throughputstats"
	gorilla "github.com/gorilla/websocket"
	"gopkg.in/tomb.v2"
)

// How long we wait for the close frame to flush before dropping the
// connection anyway
const closeWriteTimeout = time.Second

// DialerHook may mutate or replace the dialer before any network activity,
// e.g. to attach a cookie jar or a proxy. It runs exactly once, at
// construction, and must return a usable dialer.
type DialerHook func(dialer *gorilla.Dialer) *gorilla.Dialer

type Option func(*Websocket)

func WithDialer(hook DialerHook) Option {
	return func(w *Websocket) {
		w.dialer = hook(w.dialer)
	}
}

// WithRequestHeader attaches extra headers to the handshake request.
func WithRequestHeader(headers http.Header) Option {
	return func(w *Websocket) {
		w.headers = headers
	}
}

type Websocket struct {
	tmb    tomb.Tomb
	logger *logger.Logger

	endpoint *url.URL
	dialer   *gorilla.Dialer
	headers  http.Header

	// All state below is guarded by mu; gorilla gives us no single-queue
	// delivery guarantee so the serialization has to be ours
	mu       sync.Mutex
	state    transport.ReadyState
	delegate transport.Delegate
	client   *gorilla.Conn

	// Close code requested by a local Disconnect, delivered via OnClose
	// once the receive loop drains
	localClose transport.CloseCode

	stats *throughputstats.ThroughputStats
}

// New builds a transport for the given endpoint. The endpoint scheme is
// normalized at construction (http becomes ws, https becomes wss); the
// transport starts out Closed and owns no connection until Connect.
func New(logger *logger.Logger, rawUrl string, opts ...Option) (*Websocket, error) {
	endpoint, err := transport.NormalizeEndpoint(rawUrl)
	if err != nil {
		return nil, err
	}

	dialer := *gorilla.DefaultDialer

	// Placeholder stats until the first connection attempt; its windowing
	// goroutine exits immediately
	noStats := make(chan struct{})
	close(noStats)

	w := &Websocket{
		logger:   logger,
		endpoint: endpoint,
		dialer:   &dialer,
		headers:  http.Header{},
		state:    transport.Closed,
		stats:    throughputstats.New("bytes", noStats),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.dialer == nil {
		return nil, fmt.Errorf("dialer hook did not return a usable dialer")
	}

	return w, nil
}

func (w *Websocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.state != transport.Closed {
		w.mu.Unlock()
		return transport.ErrAlreadyConnected
	}
	w.state = transport.Connecting
	w.mu.Unlock()

	client, _, err := w.dialer.DialContext(ctx, w.endpoint.String(), w.headers)
	if err != nil {
		w.setState(transport.Closed)
		return fmt.Errorf("error dialing websocket %s: %w", w.endpoint, err)
	}

	// Reinitialize our lifecycle in case this is post death
	w.tmb = tomb.Tomb{}

	w.mu.Lock()
	w.client = client
	w.stats = throughputstats.New("bytes", w.tmb.Dying())
	w.state = transport.Open
	delegate := w.delegate
	w.mu.Unlock()

	// OnOpen strictly precedes the first OnMessage because the receive loop
	// is only armed below
	if delegate != nil {
		delegate.OnOpen()
	}

	w.tmb.Go(w.receive)

	return nil
}

func (w *Websocket) Disconnect(code transport.CloseCode, reason string) error {
	if !code.Valid() {
		return &transport.CloseCodeError{Code: code}
	}

	w.mu.Lock()
	if w.state != transport.Open {
		w.mu.Unlock()
		return transport.ErrNotOpen
	}
	w.state = transport.Closing
	w.localClose = code
	client := w.client
	w.mu.Unlock()

	w.logger.Infof("Websocket disconnecting with code %d: %s", code, reason)

	// Best effort: the peer may already be gone
	message := gorilla.FormatCloseMessage(int(code), reason)
	if err := client.WriteControl(gorilla.CloseMessage, message, time.Now().Add(closeWriteTimeout)); err != nil {
		w.logger.Errorf("failed to write close frame: %s", err)
	}

	// Dropping the connection unblocks the receive loop, which delivers the
	// terminal OnClose with the code we just sent
	client.Close()

	return nil
}

func (w *Websocket) Send(data []byte) error {
	w.mu.Lock()
	if w.state != transport.Open {
		w.mu.Unlock()
		return transport.ErrNotOpen
	}
	client := w.client
	w.mu.Unlock()

	if err := client.WriteMessage(gorilla.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}

	w.stats.CountOutbound(len(data))
	return nil
}

func (w *Websocket) ReadyState() transport.ReadyState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Websocket) SetDelegate(delegate transport.Delegate) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.delegate = delegate
}

func (w *Websocket) Done() <-chan struct{} {
	return w.tmb.Dead()
}

func (w *Websocket) Err() error {
	return w.tmb.Err()
}

func (w *Websocket) Stats() throughputstats.Digest {
	w.mu.Lock()
	stats := w.stats
	w.mu.Unlock()
	return stats.Digest()
}

// receive is the continuous inbound loop: one outstanding read at a time,
// re-armed after every frame. It exits once a read fails, which is also how
// both local and peer-initiated closes surface.
func (w *Websocket) receive() error {
	defer w.logger.Infof("Websocket connection closed")
	w.logger.Infof("Websocket connection started")

	for {
		messageType, message, err := w.client.ReadMessage()
		if err != nil {
			return w.windDown(err)
		}

		w.stats.CountInbound(len(message))

		switch messageType {
		case gorilla.TextMessage:
			if delegate := w.delegateRef(); delegate != nil {
				delegate.OnMessage(string(message))
			}
		case gorilla.BinaryMessage:
			// This transport only speaks text; binary frames are dropped
			// without notifying the delegate
			w.logger.Infof("Dropping unsupported binary frame of %d bytes", len(message))
		default:
			w.logger.Infof("Dropping frame of unrecognized type %d", messageType)
		}
	}
}

// windDown classifies the read error that ended the receive loop and hands
// the terminal delegate notifications to a goroutine that waits for this
// attempt's tomb to finish its own bookkeeping first. Only then does the
// state become Closed, so a delegate that calls Connect from inside OnClose
// always finds the previous attempt fully dead and cannot corrupt the
// freshly initialized tomb. OnClose fires exactly once per attempt and
// nothing fires after it.
func (w *Websocket) windDown(err error) error {
	w.mu.Lock()
	closing := w.state == transport.Closing
	localClose := w.localClose
	w.mu.Unlock()

	var closeErr *gorilla.CloseError
	peerClose := errors.As(err, &closeErr)

	switch {
	case closing:
		// Local disconnect: the read error is just our own teardown
	case peerClose:
		w.logger.Infof("Websocket closed by peer with code %d: %s", closeErr.Code, closeErr.Text)
	default:
		w.logger.Error(err)
	}

	dead := w.tmb.Dead()
	go func() {
		<-dead

		w.mu.Lock()
		w.state = transport.Closed
		delegate := w.delegate
		w.mu.Unlock()

		if delegate == nil {
			return
		}

		switch {
		case closing:
			delegate.OnClose(localClose)
		case peerClose:
			delegate.OnClose(transport.CloseCode(closeErr.Code))
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

func (w *Websocket) setState(state transport.ReadyState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = state
}

func (w *Websocket) delegateRef() transport.Delegate {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.delegate
}
