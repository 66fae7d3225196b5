package wireberry

import "github.com/blockberries/wireberry/pkg/connection"

// The connection lifecycle types are defined in pkg/connection and
// re-exported here so applications only import the root package.
type (
	// Event is a connection state change delivered on Events().
	Event = connection.Event

	// Message is one application payload received from a peer.
	Message = connection.Message

	// State is the lifecycle state of a peer connection.
	State = connection.State

	// FailReason records why a connection entered StateFailed.
	FailReason = connection.FailReason

	// Direction reports which side opened a connection.
	Direction = connection.Direction

	// MigrationPolicy decides what happens when a peer's address
	// changes mid-connection.
	MigrationPolicy = connection.MigrationPolicy
)

// Connection lifecycle states.
const (
	StateHandshaking = connection.StateHandshaking
	StateEstablished = connection.StateEstablished
	StateDraining    = connection.StateDraining
	StateClosed      = connection.StateClosed
	StateFailed      = connection.StateFailed
)

// Connection directions.
const (
	Inbound  = connection.Inbound
	Outbound = connection.Outbound
)

// Failure reasons.
const (
	ReasonNone               = connection.ReasonNone
	ReasonUntrustedPeer      = connection.ReasonUntrustedPeer
	ReasonHandshakeTimeout   = connection.ReasonHandshakeTimeout
	ReasonVersionMismatch    = connection.ReasonVersionMismatch
	ReasonDecodeError        = connection.ReasonDecodeError
	ReasonDecompressionLimit = connection.ReasonDecompressionLimit
	ReasonReorderOverflow    = connection.ReasonReorderOverflow
	ReasonIdleTimeout        = connection.ReasonIdleTimeout
	ReasonSuperseded         = connection.ReasonSuperseded
	ReasonMigrationRejected  = connection.ReasonMigrationRejected
	ReasonTransport          = connection.ReasonTransport
)

// Migration policies.
const (
	// MigrationReject fails the connection when the peer's address
	// changes. This is the default.
	MigrationReject = connection.MigrationReject

	// MigrationAllow follows the peer to its new address.
	MigrationAllow = connection.MigrationAllow
)
