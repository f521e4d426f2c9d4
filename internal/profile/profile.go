// Package profile maps the configured wire-format profile to the naming and
// encoding rules the translator and attribute renderer apply.
//
// Two profiles exist. Native emits under the host's own names with typed
// attribute values. Mirrored reproduces the schema of an external coding
// assistant so existing dashboards work unchanged: its prefix and scope names
// match that product, every numeric log attribute is sent as a string, and the
// session.created log event is not emitted (the session.count metric still is).
package profile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownProfile is returned by Parse for names other than native/mirrored.
var ErrUnknownProfile = errors.New("unknown telemetry profile")

// Name identifies a profile. The zero value is Native.
type Name int

const (
	Native Name = iota
	Mirrored
)

func (n Name) String() string {
	switch n {
	case Native:
		return "native"
	case Mirrored:
		return "mirrored"
	default:
		return fmt.Sprintf("profile(%d)", int(n))
	}
}

// Parse resolves a configuration string. Matching is case-insensitive and
// "claude-code" is accepted as an alias for mirrored.
func Parse(s string) (Name, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "native", "opencode":
		return Native, nil
	case "mirrored", "mirror", "claude-code", "claude_code":
		return Mirrored, nil
	default:
		return Native, fmt.Errorf("%w: %q", ErrUnknownProfile, s)
	}
}

// Profile is the immutable rule set for one wire format.
type Profile struct {
	Name        Name
	ServiceName string
	Prefix      string // prepended to metric names and log bodies, without trailing dot
	MeterScope  string
	LoggerScope string

	// StringifyNumbers renders numeric log attributes as decimal strings.
	// Metric data point attributes are never stringified.
	StringifyNumbers bool

	suppressed map[string]struct{}
}

var (
	native = Profile{
		Name:        Native,
		ServiceName: "opencode",
		Prefix:      "opencode",
		MeterScope:  "com.opencode.telemetry",
		LoggerScope: "com.opencode.telemetry.events",
	}
	mirrored = Profile{
		Name:             Mirrored,
		ServiceName:      "claude-code",
		Prefix:           "claude_code",
		MeterScope:       "com.anthropic.claude_code",
		LoggerScope:      "com.anthropic.claude_code.events",
		StringifyNumbers: true,
		suppressed:       map[string]struct{}{"session.created": {}},
	}
)

// For returns the profile for n. Unknown values fall back to Native.
func For(n Name) Profile {
	if n == Mirrored {
		return mirrored
	}
	return native
}

// Suppresses reports whether log events named event (unprefixed) are dropped
// entirely under this profile.
func (p Profile) Suppresses(event string) bool {
	_, ok := p.suppressed[event]
	return ok
}

// Qualify prefixes an unprefixed metric or event name.
func (p Profile) Qualify(name string) string {
	if p.Prefix == "" {
		return name
	}
	return p.Prefix + "." + name
}
