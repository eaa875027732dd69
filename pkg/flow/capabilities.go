package flow

import (
	"strconv"
	"strings"
)

// Capabilities describes which request/response shapes the probed service
// major version supports. A snapshot is immutable once built; re-probing
// replaces it wholesale. Known=false means the probe failed and the most
// conservative shapes are in effect.
type Capabilities struct {
	// Version is the raw probed version string, empty when unknown.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	// MajorVersion is 0 while capabilities are unknown.
	MajorVersion int  `json:"majorVersion" yaml:"major_version"`
	Known        bool `json:"known"        yaml:"known"`

	// DisconnectedAck: deletes carry the disconnectedNodeAcknowledged query
	// parameter. Introduced with major version 2.
	DisconnectedAck bool `json:"disconnectedAck" yaml:"disconnected_ack"`
	// GroupSummary: the service exposes a single-call group roll-up endpoint.
	// Introduced with major version 2; older services get a client-side
	// roll-up flagged Degraded.
	GroupSummary bool `json:"groupSummary" yaml:"group_summary"`
}

// CapabilitiesForVersion builds the capability table for a probed version
// string such as "2.1.0" or "1.23.2". An unparsable version yields the
// unknown snapshot rather than a guess.
func CapabilitiesForVersion(version string) *Capabilities {
	parts := strings.Split(strings.TrimSpace(version), ".")

	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 1 {
		return UnknownCapabilities()
	}

	return &Capabilities{
		Version:         strings.TrimSpace(version),
		MajorVersion:    major,
		Known:           true,
		DisconnectedAck: major >= 2,
		GroupSummary:    major >= 2,
	}
}

// UnknownCapabilities returns the conservative snapshot used when a probe
// fails: every version-dependent shape falls back to its lowest form.
func UnknownCapabilities() *Capabilities {
	return &Capabilities{}
}
