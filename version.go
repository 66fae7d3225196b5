package wireberry

import (
	"fmt"

	"github.com/blockberries/wireberry/pkg/protocol"
)

// Protocol version constants.
// These indicate the Wireberry wire protocol version exchanged in the
// control-channel hello.
const (
	// ProtocolVersionMajor is the major protocol version.
	// Breaking wire format changes increment this.
	ProtocolVersionMajor = 1

	// ProtocolVersionMinor is the minor protocol version.
	// New control messages or compression algorithms increment this.
	ProtocolVersionMinor = 0
)

// ProtocolVersion represents the Wireberry wire protocol version.
// Peers exchange versions in the hello message and either side closes
// the connection when the versions are incompatible.
type ProtocolVersion struct {
	// Major version - breaking changes require matching major versions.
	Major uint32

	// Minor version - additive features; backwards compatible within
	// the same major version.
	Minor uint32
}

// CurrentVersion returns the protocol version this build speaks.
func CurrentVersion() ProtocolVersion {
	return ProtocolVersion{
		Major: protocol.Current.Major,
		Minor: protocol.Current.Minor,
	}
}

// String returns the version as a "major.minor" string (e.g., "1.0").
func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if this version is compatible with another version.
// Compatibility requires matching major versions; minor revisions are
// additive and negotiate down implicitly.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// IsNewer returns true if this version is newer than the other.
func (v ProtocolVersion) IsNewer(other ProtocolVersion) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor > other.Minor
}

// Equal returns true if the versions are exactly equal.
func (v ProtocolVersion) Equal(other ProtocolVersion) bool {
	return v.Major == other.Major && v.Minor == other.Minor
}

// ParseVersion parses a version string in the format "major.minor".
// Returns an error if the format is invalid.
func ParseVersion(s string) (ProtocolVersion, error) {
	var v ProtocolVersion
	n, err := fmt.Sscanf(s, "%d.%d", &v.Major, &v.Minor)
	if err != nil {
		return v, fmt.Errorf("invalid version format %q: %w", s, err)
	}
	if n != 2 {
		return v, fmt.Errorf("invalid version format %q: expected major.minor", s)
	}
	return v, nil
}
