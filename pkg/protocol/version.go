// Package protocol defines the wire protocol spoken on the reserved
// control channel: the version handshake and the keepalive exchange.
package protocol

import "fmt"

// Version identifies the control protocol. Peers with differing major
// versions cannot talk; minor revisions are additive and negotiate down
// implicitly.
type Version struct {
	Major uint32
	Minor uint32
}

// Current is the protocol version this build speaks.
var Current = Version{Major: 1, Minor: 0}

// String renders the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether a peer speaking other can interoperate
// with this version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}
