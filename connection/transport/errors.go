package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyConnected is returned by Connect when the transport is not
	// in the Closed state. The existing connection is left untouched.
	ErrAlreadyConnected = errors.New("transport is already connected")

	// ErrNotOpen is returned by Send and Disconnect when there is no open
	// connection to act on.
	ErrNotOpen = errors.New("transport is not open")
)

// A CloseCodeError reports a close code outside the range RFC 6455 allows us
// to send. The offending call performs no network activity.
type CloseCodeError struct {
	Code CloseCode
}

func (e *CloseCodeError) Error() string {
	return fmt.Sprintf("close code %d is not valid for sending under RFC 6455", e.Code)
}

// An UnsupportedSchemeError reports an endpoint URL whose scheme cannot be
// rewritten into the websocket domain.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("unsupported endpoint scheme %q: expected http, https, ws or wss", e.Scheme)
}
