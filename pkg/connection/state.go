// Package connection runs the per-peer lifecycle on top of the secure
// transport: the application handshake, channel I/O, keepalive, and
// the manager that owns every live connection of an endpoint.
package connection

import "fmt"

// State is the lifecycle state of a peer connection.
type State int

const (
	// StateHandshaking indicates the transport is up and the hello
	// exchange is in progress.
	StateHandshaking State = iota

	// StateEstablished indicates the hello exchange completed and
	// application traffic flows.
	StateEstablished

	// StateDraining indicates a graceful shutdown is in progress:
	// no new sends are accepted while queued reliable data flushes.
	StateDraining

	// StateClosed is the terminal state of an orderly shutdown.
	StateClosed

	// StateFailed is the terminal state of a fault; the fail reason
	// records why.
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "Handshaking"
	case StateEstablished:
		return "Established"
	case StateDraining:
		return "Draining"
	case StateClosed:
		return "Closed"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// IsTerminal returns true if no further transitions can occur.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

// CanTransitionTo checks if a transition from the current state to the
// target state is valid. Failed is reachable from any non-terminal
// state; Closed requires passing through an orderly path.
func (s State) CanTransitionTo(target State) bool {
	validTransitions := map[State][]State{
		StateHandshaking: {StateEstablished, StateClosed, StateFailed},
		StateEstablished: {StateDraining, StateClosed, StateFailed},
		StateDraining:    {StateClosed, StateFailed},
		StateClosed:      {},
		StateFailed:      {},
	}

	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error if the transition is invalid.
func (s State) ValidateTransition(target State) error {
	if !s.CanTransitionTo(target) {
		return fmt.Errorf("invalid state transition: %s -> %s", s, target)
	}
	return nil
}

// FailReason records why a connection entered StateFailed.
type FailReason int

const (
	// ReasonNone means the connection has not failed.
	ReasonNone FailReason = iota

	// ReasonUntrustedPeer: the peer's certificate fingerprint did not
	// match the expected one.
	ReasonUntrustedPeer

	// ReasonHandshakeTimeout: the hello exchange did not complete in
	// time.
	ReasonHandshakeTimeout

	// ReasonVersionMismatch: the peer speaks an incompatible protocol
	// major version.
	ReasonVersionMismatch

	// ReasonDecodeError: the peer sent a frame that cannot be parsed.
	ReasonDecodeError

	// ReasonDecompressionLimit: the peer sent a frame whose declared or
	// actual decompressed size exceeds the cap.
	ReasonDecompressionLimit

	// ReasonReorderOverflow: an ordered channel exceeded its reorder
	// bound and can no longer honor ordering.
	ReasonReorderOverflow

	// ReasonIdleTimeout: no traffic within the idle window.
	ReasonIdleTimeout

	// ReasonSuperseded: a newer connection from the same peer replaced
	// this one.
	ReasonSuperseded

	// ReasonMigrationRejected: the peer's address changed mid-connection
	// and policy forbids following it.
	ReasonMigrationRejected

	// ReasonTransport: the underlying transport reported an error
	// (path failure, peer reset, engine shutdown).
	ReasonTransport
)

// String returns a human-readable representation of the fail reason.
func (r FailReason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ReasonUntrustedPeer:
		return "UntrustedPeer"
	case ReasonHandshakeTimeout:
		return "HandshakeTimeout"
	case ReasonVersionMismatch:
		return "VersionMismatch"
	case ReasonDecodeError:
		return "DecodeError"
	case ReasonDecompressionLimit:
		return "DecompressionLimit"
	case ReasonReorderOverflow:
		return "ReorderOverflow"
	case ReasonIdleTimeout:
		return "IdleTimeout"
	case ReasonSuperseded:
		return "Superseded"
	case ReasonMigrationRejected:
		return "MigrationRejected"
	case ReasonTransport:
		return "Transport"
	default:
		return fmt.Sprintf("Unknown(%d)", r)
	}
}
