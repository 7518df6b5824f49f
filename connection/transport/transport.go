/*
The transport package defines the capability surface between the realtime
client and the websocket connection it rides on. A Transport owns exactly one
underlying connection at a time and reports everything that happens on it to
a single, externally supplied Delegate. In terms of the overall connection
layer architecture this is the lowest layer; reconnection, heartbeating and
message framing all live in the owning client.
*/

package transport

import (
	"context"

	"github.com/beacondeck/realtime/telemetry/throughputstats"
)

// ReadyState is the lifecycle phase of a transport's underlying connection.
// Values mirror the readyState numbering of the web socket API.
type ReadyState int32

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Delegate receives lifecycle notifications from a Transport. The transport
// holds a non-owning reference to it and invokes it synchronously from the
// receive loop, so implementations must not block for long. Once OnClose has
// fired, no further callback fires for that connection attempt.
type Delegate interface {
	// OnOpen fires once per connection attempt, strictly before any other
	// callback for that attempt.
	OnOpen()

	// OnMessage fires once per inbound text frame, in receipt order.
	OnMessage(message string)

	// OnError fires on abnormal termination, immediately before the
	// terminal OnClose(CloseAbnormalClosure).
	OnError(err error)

	// OnClose is the terminal notification for a connection attempt. The
	// code is the peer's close code for a clean close, the locally requested
	// code for a local disconnect, or CloseAbnormalClosure otherwise.
	OnClose(code CloseCode)
}

// Transport owns one websocket connection and ferries its text traffic and
// lifecycle events between the wire and the delegate.
type Transport interface {
	// Connect establishes the underlying connection. It is a guarded
	// transition: calling it while the transport is not Closed returns
	// ErrAlreadyConnected and leaves the existing connection untouched.
	Connect(ctx context.Context) error

	// Disconnect requests closure with the given RFC 6455 close code and an
	// optional human-readable reason. A code outside the sendable range is
	// rejected with a CloseCodeError before any network activity.
	Disconnect(code CloseCode, reason string) error

	// Send transmits one text frame. There is no queuing: if the transport
	// is not Open, Send returns ErrNotOpen.
	Send(data []byte) error

	// ReadyState reports the most recently known connection state. Only the
	// transport itself ever mutates it.
	ReadyState() ReadyState

	// SetDelegate installs the delegate. Single slot, last write wins; a nil
	// delegate turns notifications into no-ops.
	SetDelegate(delegate Delegate)

	// Done is closed once the current connection attempt has fully wound
	// down.
	Done() <-chan struct{}

	// Err reports why the last connection attempt died, if it died badly.
	Err() error

	// Stats reports byte throughput for the current connection attempt.
	Stats() throughputstats.Digest
}
