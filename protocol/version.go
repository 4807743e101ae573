package protocol

import (
	"errors"
	"fmt"
)

// ErrUnknownVersion is returned by ParseVersion for unrecognized names.
var ErrUnknownVersion = errors.New("unknown protocol version")

// Version identifies the blind-signature scheme and key format in use.
type Version int

const (
	// VersionUnknown is the zero value and is never valid on the wire.
	VersionUnknown Version = iota
	// VersionPrivateStateTokenV1VOPRF is the VOPRF (P-384, SHA-384) variant.
	VersionPrivateStateTokenV1VOPRF
	// VersionPrivateStateTokenV1PMB is the private-metadata-bit variant. It is
	// recognized on the wire but no backend in this module implements it.
	VersionPrivateStateTokenV1PMB
	// VersionPrivateStateTokenV1BlindRSA is the RSABSSA-SHA384-PSS-Randomized
	// variant (RFC 9474).
	VersionPrivateStateTokenV1BlindRSA
)

var versionNames = map[Version]string{
	VersionPrivateStateTokenV1VOPRF:    "PrivateStateTokenV1VOPRF",
	VersionPrivateStateTokenV1PMB:      "PrivateStateTokenV1PMB",
	VersionPrivateStateTokenV1BlindRSA: "PrivateStateTokenV1BlindRSA",
}

// PreferredVersions lists versions in the order a client prefers them when
// an issuer commits keys for several.
var PreferredVersions = []Version{
	VersionPrivateStateTokenV1VOPRF,
	VersionPrivateStateTokenV1BlindRSA,
	VersionPrivateStateTokenV1PMB,
}

// String returns the wire name of the version.
func (v Version) String() string {
	if name, ok := versionNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

// Valid reports whether v is a known, non-zero version.
func (v Version) Valid() bool {
	_, ok := versionNames[v]
	return ok
}

// ParseVersion converts a wire name into a Version.
func ParseVersion(name string) (Version, error) {
	for v, n := range versionNames {
		if n == name {
			return v, nil
		}
	}
	return VersionUnknown, fmt.Errorf("%w: %q", ErrUnknownVersion, name)
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, int(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
