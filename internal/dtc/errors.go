package dtc

import (
	"errors"
	"fmt"
)

// Sentinel errors for connection-level failures. Callers distinguish them
// with errors.Is; server-provided text travels in the wrapping error.
var (
	// ErrConnectTimeout: TCP connect or handshake did not complete in bound.
	ErrConnectTimeout = errors.New("dtc: connect timeout")

	// ErrAuthFailed: server rejected the logon.
	ErrAuthFailed = errors.New("dtc: authentication failed")

	// ErrProtocolDesync: binary framing produced an implausible size field;
	// the byte stream cannot be safely resynchronized.
	ErrProtocolDesync = errors.New("dtc: protocol desync")

	// ErrNotReady: operation requires the connection to be in the Ready state.
	ErrNotReady = errors.New("dtc: connection not ready")

	// ErrClosed: the connection was closed or failed.
	ErrClosed = errors.New("dtc: connection closed")

	// ErrDuplicateSubscription: the symbol already has a live subscription.
	ErrDuplicateSubscription = errors.New("dtc: symbol already subscribed")

	// ErrBinaryMarketData: market data is not supported over binary encoding.
	ErrBinaryMarketData = errors.New("dtc: market data unsupported over binary encoding")
)

// MalformedMessageError reports a single inbound message that failed to
// decode. It is logged and dropped; the connection continues.
type MalformedMessageError struct {
	Encoding Encoding
	Err      error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("dtc: malformed %s message: %v", e.Encoding, e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

func malformed(enc Encoding, err error) error {
	return &MalformedMessageError{Encoding: enc, Err: err}
}
