package domain

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version wraps semver.Version for additional methods.
type Version struct {
	*semver.Version
}

// NewVersion creates a new Version from a string.
func NewVersion(s string) (*Version, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, err
	}
	return &Version{v}, nil
}

// NewSemVer builds a release version from its three numeric components.
func NewSemVer(major, minor, patch uint64) *Version {
	return &Version{semver.New(major, minor, patch, "", "")}
}

// InitialVersion is the version assigned to a classifier's first tag.
func InitialVersion() *Version {
	return NewSemVer(0, 1, 0)
}

// BumpMajor increments the major version.
func (v *Version) BumpMajor() *Version {
	newVer := v.IncMajor()
	return &Version{&newVer}
}

// BumpMinor increments the minor version.
func (v *Version) BumpMinor() *Version {
	newVer := v.IncMinor()
	return &Version{&newVer}
}

// BumpPatch increments the patch version.
func (v *Version) BumpPatch() *Version {
	newVer := v.IncPatch()
	return &Version{&newVer}
}

// Compare compares two versions.
func (v *Version) Compare(other *Version) int {
	return v.Version.Compare(other.Version)
}

// Equal reports whether both versions carry the same components.
func (v *Version) Equal(other *Version) bool {
	if v == nil || other == nil {
		return v == other
	}
	return v.Compare(other) == 0
}

// String returns the version string with v prefix.
func (v *Version) String() string {
	return "v" + v.Version.String()
}

// Plain returns the version without the v prefix, as used in image tags.
func (v *Version) Plain() string {
	return v.Version.String()
}

// BumpKind selects which component of a version is incremented.
type BumpKind string

const (
	BumpMajor BumpKind = "major"
	BumpMinor BumpKind = "minor"
	BumpPatch BumpKind = "patch"
)

// ParseBumpKind validates a bump kind given on the command line.
func ParseBumpKind(s string) (BumpKind, error) {
	switch BumpKind(s) {
	case BumpMajor, BumpMinor, BumpPatch:
		return BumpKind(s), nil
	default:
		return "", fmt.Errorf("invalid bump type %q: must be major, minor, or patch", s)
	}
}

// BumpResult is the outcome of a version bump.
type BumpResult struct {
	Version  *Version
	Previous *Version
	Kind     BumpKind
	// Initial is set when there was no previous version to bump.
	Initial bool
}

// Describe renders the bump for operator output.
func (r BumpResult) Describe() string {
	if r.Initial {
		return "(initial release)"
	}
	return fmt.Sprintf("(%s bump)", r.Kind)
}

// Bump computes the next version. Without a previous version the result is
// always 0.1.0, whatever kind was requested.
func Bump(kind BumpKind, previous *Version) (BumpResult, error) {
	if previous == nil {
		return BumpResult{Version: InitialVersion(), Kind: kind, Initial: true}, nil
	}
	var next *Version
	switch kind {
	case BumpMajor:
		next = previous.BumpMajor()
	case BumpMinor:
		next = previous.BumpMinor()
	case BumpPatch:
		next = previous.BumpPatch()
	default:
		return BumpResult{}, fmt.Errorf("invalid bump type %q", kind)
	}
	return BumpResult{Version: next, Previous: previous, Kind: kind}, nil
}
