// Package version models the negotiated TraCI API level and decides which
// commands and variables may be used against it.
package version

import (
	"fmt"
	"regexp"
	"strconv"
)

// APIVersion is a TraCI API level. Values are ordered; zero means unset.
type APIVersion int

const (
	API18 APIVersion = 18 // SUMO 1.0
	API19 APIVersion = 19 // SUMO 1.1 - 1.4
	API20 APIVersion = 20 // SUMO 1.5 - 1.14
	API21 APIVersion = 21 // SUMO 1.15 - 1.19
	API22 APIVersion = 22 // SUMO 1.20 and later

	Lowest  = API18
	Highest = API22
)

func (v APIVersion) String() string {
	if v == 0 {
		return "unset"
	}
	return fmt.Sprintf("API_%d", int(v))
}

// Accepted simulator identifiers per backend. The socket backend checks the
// identifier returned by CMD_GETVERSION, the in-process backend the version
// string reported by the loaded library.
const (
	TraCIPattern   = `SUMO v?1\.(2[0-4])\.\d+`
	LibsumoPattern = `1\.(23)\.`
)

var (
	traciRe   = regexp.MustCompile(TraCIPattern)
	libsumoRe = regexp.MustCompile(LibsumoPattern)
	releaseRe = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)
)

// MatchesTraCI reports whether a CMD_GETVERSION identifier is accepted.
func MatchesTraCI(identifier string) bool {
	return traciRe.MatchString(identifier)
}

// MatchesLibsumo reports whether a libsumo version string is accepted.
func MatchesLibsumo(release string) bool {
	return libsumoRe.MatchString(release)
}

// Parse maps an API level reported by the simulator to a known version.
// Levels newer than Highest are clamped, older than Lowest rejected.
func Parse(level int) (APIVersion, error) {
	if level < int(Lowest) {
		return 0, fmt.Errorf("api level %d is older than lowest supported %s", level, Lowest)
	}
	if level > int(Highest) {
		return Highest, nil
	}
	return APIVersion(level), nil
}

// FromRelease derives the API level from a SUMO release string such as
// "1.23.1" or "SUMO v1.23.1".
func FromRelease(release string) (APIVersion, error) {
	m := releaseRe.FindStringSubmatch(release)
	if m == nil {
		return 0, fmt.Errorf("no release number in %q", release)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	if major != 1 {
		return 0, fmt.Errorf("unsupported major release %d in %q", major, release)
	}
	switch {
	case minor >= 20:
		return API22, nil
	case minor >= 15:
		return API21, nil
	case minor >= 5:
		return API20, nil
	case minor >= 1:
		return API19, nil
	default:
		return API18, nil
	}
}

// Descriptor describes a command or variable opcode and the API range in
// which it exists. Until is exclusive; zero means no upper bound.
type Descriptor struct {
	Command     byte
	Variable    byte
	HasVariable bool
	Since       APIVersion
	Until       APIVersion
}

// Command describes an opcode without variable available from Lowest on.
func Command(cmd byte) Descriptor {
	return Descriptor{Command: cmd, Since: Lowest}
}

// Variable describes a command/variable pair available from Lowest on.
func Variable(cmd, variable byte) Descriptor {
	return Descriptor{Command: cmd, Variable: variable, HasVariable: true, Since: Lowest}
}

// WithSince returns a copy available from since on.
func (d Descriptor) WithSince(since APIVersion) Descriptor {
	d.Since = since
	return d
}

// WithUntil returns a copy deprecated from until on.
func (d Descriptor) WithUntil(until APIVersion) Descriptor {
	d.Until = until
	return d
}

func (d Descriptor) String() string {
	if d.HasVariable {
		return fmt.Sprintf("0x%02x/0x%02x", d.Command, d.Variable)
	}
	return fmt.Sprintf("0x%02x", d.Command)
}

// IsAvailable reports whether d may be used at the current version.
func IsAvailable(d Descriptor, current APIVersion) bool {
	since := d.Since
	if since == 0 {
		since = Lowest
	}
	return current >= since && (d.Until == 0 || current < d.Until)
}

// Deprecated reports whether d existed once but no longer exists at current.
func Deprecated(d Descriptor, current APIVersion) bool {
	return d.Until != 0 && current >= d.Until
}
