package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Number is an immutable database version such as "3.11.4", "4.0-beta1" or "2022.1.3".
// The zero value is not usable; construct with Parse or MustParse.
type Number struct {
	v *semver.Version
}

// Parse parses a release version. Missing minor and patch components default to zero.
func Parse(s string) (Number, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Number{}, fmt.Errorf("empty version")
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return Number{}, fmt.Errorf("parse version %q: %w", s, err)
	}
	return Number{v: v}, nil
}

// MustParse is Parse for compile-time constants. It panics on malformed input.
func MustParse(s string) Number {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// ParseOptional returns nil for an empty string.
func ParseOptional(s string) (*Number, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	n, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (n Number) Major() int { return int(n.v.Major()) }
func (n Number) Minor() int { return int(n.v.Minor()) }
func (n Number) Patch() int { return int(n.v.Patch()) }

// PreRelease returns the qualifier after '-', e.g. "beta1" for "4.0-beta1".
func (n Number) PreRelease() string { return n.v.Prerelease() }

// String returns the version as originally written, which is also the form the
// cluster manager expects after -v.
func (n Number) String() string { return n.v.Original() }

// Compare returns -1, 0 or 1. Pre-releases sort before their release.
func (n Number) Compare(o Number) int { return n.v.Compare(o.v) }

func (n Number) Less(o Number) bool { return n.Compare(o) < 0 }
func (n Number) AtLeast(o Number) bool { return n.Compare(o) >= 0 }
func (n Number) Equal(o Number) bool { return n.Compare(o) == 0 }

// NextStable returns the release this version leads up to: the version itself for a
// release, or the same major.minor.patch without the qualifier for a pre-release.
func (n Number) NextStable() Number {
	if n.v.Prerelease() == "" {
		return n
	}
	stable, err := n.v.SetPrerelease("")
	if err != nil {
		return n
	}
	stable, err = stable.SetMetadata("")
	if err != nil {
		return n
	}
	return Number{v: &stable}
}
