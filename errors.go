// Package wireberry provides a secure game transport built on QUIC with
// encrypted, multiplexed delivery channels and peer identity pinning.
package wireberry

import (
	"errors"
	"fmt"

	"github.com/blockberries/wireberry/pkg/identity"
)

// ErrorCode identifies the type of error for programmatic handling.
type ErrorCode int

const (
	// ErrCodeUnknown indicates an unknown or unclassified error.
	ErrCodeUnknown ErrorCode = iota

	// ErrCodeConnectionFailed indicates a connection attempt failed.
	ErrCodeConnectionFailed

	// ErrCodeHandshakeTimeout indicates the handshake did not complete in time.
	ErrCodeHandshakeTimeout

	// ErrCodeUntrustedPeer indicates the peer presented an identity that
	// does not match the expected fingerprint.
	ErrCodeUntrustedPeer

	// ErrCodeVersionMismatch indicates incompatible protocol versions.
	ErrCodeVersionMismatch

	// ErrCodePeerBanned indicates the peer's address is denied by the ban list.
	ErrCodePeerBanned

	// ErrCodeDecodeFailed indicates an inbound frame could not be decoded.
	ErrCodeDecodeFailed

	// ErrCodeDecompressionLimit indicates a frame declared a decompressed
	// size above the configured limit.
	ErrCodeDecompressionLimit

	// ErrCodeReorderOverflow indicates an ordered channel's reorder buffer
	// exceeded its bound.
	ErrCodeReorderOverflow

	// ErrCodeChannelBackpressure indicates a send was blocked on channel
	// backpressure and the context expired.
	ErrCodeChannelBackpressure

	// ErrCodeUnknownChannel indicates a send or delivery referenced an
	// undefined channel tag.
	ErrCodeUnknownChannel

	// ErrCodePayloadTooLarge indicates a payload exceeded the maximum size.
	ErrCodePayloadTooLarge

	// ErrCodeConnectionClosed indicates the connection has been closed.
	ErrCodeConnectionClosed

	// ErrCodeBufferFull indicates a buffer (event or message) is full.
	ErrCodeBufferFull

	// ErrCodeInvalidConfig indicates the configuration is invalid.
	ErrCodeInvalidConfig

	// ErrCodeEndpointNotStarted indicates the endpoint has not been started.
	ErrCodeEndpointNotStarted

	// ErrCodeEndpointAlreadyStarted indicates the endpoint is already running.
	ErrCodeEndpointAlreadyStarted
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeUnknown:
		return "Unknown"
	case ErrCodeConnectionFailed:
		return "ConnectionFailed"
	case ErrCodeHandshakeTimeout:
		return "HandshakeTimeout"
	case ErrCodeUntrustedPeer:
		return "UntrustedPeer"
	case ErrCodeVersionMismatch:
		return "VersionMismatch"
	case ErrCodePeerBanned:
		return "PeerBanned"
	case ErrCodeDecodeFailed:
		return "DecodeFailed"
	case ErrCodeDecompressionLimit:
		return "DecompressionLimit"
	case ErrCodeReorderOverflow:
		return "ReorderOverflow"
	case ErrCodeChannelBackpressure:
		return "ChannelBackpressure"
	case ErrCodeUnknownChannel:
		return "UnknownChannel"
	case ErrCodePayloadTooLarge:
		return "PayloadTooLarge"
	case ErrCodeConnectionClosed:
		return "ConnectionClosed"
	case ErrCodeBufferFull:
		return "BufferFull"
	case ErrCodeInvalidConfig:
		return "InvalidConfig"
	case ErrCodeEndpointNotStarted:
		return "EndpointNotStarted"
	case ErrCodeEndpointAlreadyStarted:
		return "EndpointAlreadyStarted"
	default:
		return fmt.Sprintf("ErrorCode(%d)", c)
	}
}

// Error represents a Wireberry error with rich context.
// It provides structured information for programmatic error handling.
type Error struct {
	// Code identifies the type of error.
	Code ErrorCode

	// Message is a human-readable description of the error.
	Message string

	// Peer is the peer fingerprint associated with the error, if any.
	Peer identity.Fingerprint

	// Channel is the channel tag associated with the error, if any.
	// Only meaningful when HasChannel is true.
	Channel uint8

	// HasChannel indicates whether Channel carries a meaningful value.
	HasChannel bool

	// Cause is the underlying error, if any.
	Cause error

	// Retriable indicates whether the operation can be retried.
	Retriable bool
}

// Error returns a human-readable error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("wireberry: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("wireberry: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// Two Wireberry errors are considered equal if they have the same error code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsRetriable returns true if the error indicates a retriable operation.
// This checks if the error is a Wireberry Error with Retriable set to true.
func IsRetriable(err error) bool {
	var wErr *Error
	if errors.As(err, &wErr) {
		return wErr.Retriable
	}
	return false
}

// IsPermanent returns true if the error indicates a permanent failure.
// Permanent failures should not be retried.
func IsPermanent(err error) bool {
	var wErr *Error
	if errors.As(err, &wErr) {
		switch wErr.Code {
		case ErrCodeUntrustedPeer, ErrCodePeerBanned, ErrCodeVersionMismatch, ErrCodeInvalidConfig:
			return true
		}
	}
	return false
}

// NewError creates a new Wireberry Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Wireberry Error with the given code, message, and cause.
func NewErrorWithCause(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPeerError creates a new Wireberry Error associated with a specific peer.
func NewPeerError(code ErrorCode, message string, peer identity.Fingerprint) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Peer:    peer,
	}
}

// NewChannelError creates a new Wireberry Error associated with a specific channel.
func NewChannelError(code ErrorCode, message string, peer identity.Fingerprint, channel uint8) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Peer:       peer,
		Channel:    channel,
		HasChannel: true,
	}
}

// Sentinel errors for connection operations.
var (
	// ErrNotConnected indicates there is no active connection to the peer.
	ErrNotConnected = errors.New("not connected to peer")

	// ErrConnectionFailed indicates the connection attempt failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrHandshakeTimeout indicates the handshake did not complete in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrUntrustedPeer indicates the peer's certificate fingerprint did not
	// match the expected identity.
	ErrUntrustedPeer = errors.New("untrusted peer identity")

	// ErrPeerBanned indicates the peer's address is denied by the ban list.
	ErrPeerBanned = errors.New("peer address is banned")

	// ErrConnectionDraining indicates the connection is draining and no
	// longer accepts application sends.
	ErrConnectionDraining = errors.New("connection is draining")

	// ErrConnectionClosed indicates the connection has been closed.
	ErrConnectionClosed = errors.New("connection closed")
)

// Sentinel errors for channel operations.
var (
	// ErrUnknownChannel indicates the channel tag is not defined.
	ErrUnknownChannel = errors.New("unknown channel tag")

	// ErrPayloadTooLarge indicates the payload exceeds the maximum size.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	// ErrReorderOverflow indicates the reorder buffer bound was exceeded.
	ErrReorderOverflow = errors.New("reorder buffer overflow")

	// ErrDecompressionLimit indicates the declared decompressed size
	// exceeds the configured limit.
	ErrDecompressionLimit = errors.New("decompressed size exceeds limit")
)

// Sentinel errors for configuration.
var (
	// ErrInvalidConfig indicates the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingPrivateKey indicates no private key was provided.
	ErrMissingPrivateKey = errors.New("private key is required")

	// ErrMissingListenAddrs indicates no listen addresses were provided.
	ErrMissingListenAddrs = errors.New("at least one listen address is required")

	// ErrNoChannels indicates no delivery channels were defined.
	ErrNoChannels = errors.New("at least one channel definition is required")
)

// Sentinel errors for protocol versioning.
var (
	// ErrVersionMismatch indicates incompatible protocol versions.
	ErrVersionMismatch = errors.New("incompatible protocol version")
)

// Sentinel errors for endpoint operations.
var (
	// ErrEndpointNotStarted indicates the endpoint has not been started.
	ErrEndpointNotStarted = errors.New("endpoint not started")

	// ErrEndpointAlreadyStarted indicates the endpoint is already running.
	ErrEndpointAlreadyStarted = errors.New("endpoint already started")

	// ErrEndpointStopped indicates the endpoint has been stopped.
	ErrEndpointStopped = errors.New("endpoint stopped")
)
