package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// ToolMarker separates the classifier version from the serving tool commit.
	ToolMarker = "-mlserver-"
	// ShortCommitLength is the canonical length of commits stored in tags.
	ShortCommitLength = 7
	// PlaceholderCommit stands in for an unknown tool commit when the operator allows it.
	PlaceholderCommit = "0000000"
)

// HierarchicalTag is a release marker of the form
// <classifier>-v<major>.<minor>.<patch>-mlserver-<tool commit>.
type HierarchicalTag struct {
	Classifier string
	Version    *Version
	ToolCommit string
}

// NewHierarchicalTag validates the parts and builds a tag. The commit is
// truncated to its short form.
func NewHierarchicalTag(classifier string, version *Version, toolCommit string) (HierarchicalTag, error) {
	if err := ValidateClassifierName(classifier); err != nil {
		return HierarchicalTag{}, err
	}
	if version == nil {
		return HierarchicalTag{}, fmt.Errorf("version is required")
	}
	if !isLowerHex(toolCommit) {
		return HierarchicalTag{}, fmt.Errorf("tool commit %q must be lowercase hexadecimal", toolCommit)
	}
	return HierarchicalTag{
		Classifier: classifier,
		Version:    NewSemVer(version.Major(), version.Minor(), version.Patch()),
		ToolCommit: NormalizeCommit(toolCommit),
	}, nil
}

// String formats the tag. ParseTag(t.String()) yields t again.
func (t HierarchicalTag) String() string {
	return fmt.Sprintf("%s-v%d.%d.%d%s%s",
		t.Classifier, t.Version.Major(), t.Version.Minor(), t.Version.Patch(), ToolMarker, t.ToolCommit)
}

// Equal compares two tags field by field.
func (t HierarchicalTag) Equal(other HierarchicalTag) bool {
	return t.Classifier == other.Classifier &&
		t.ToolCommit == other.ToolCommit &&
		t.Version.Equal(other.Version)
}

// ParseTag parses a hierarchical tag. Any deviation from the grammar yields
// a *ParseError.
func ParseTag(s string) (HierarchicalTag, error) {
	idx := versionMarkerIndex(s)
	if idx < 0 {
		return HierarchicalTag{}, &ParseError{Tag: s, Reason: "missing -v<major>.<minor>.<patch> segment"}
	}
	if idx == 0 {
		return HierarchicalTag{}, &ParseError{Tag: s, Reason: "empty classifier name"}
	}
	rest := s[idx+2:]
	verText, commit, found := strings.Cut(rest, ToolMarker)
	if !found {
		return HierarchicalTag{}, &ParseError{Tag: s, Reason: "missing " + ToolMarker + " segment"}
	}
	version, err := parseReleaseVersion(verText)
	if err != nil {
		return HierarchicalTag{}, &ParseError{Tag: s, Reason: err.Error()}
	}
	if commit == "" {
		return HierarchicalTag{}, &ParseError{Tag: s, Reason: "empty mlserver commit"}
	}
	if !isLowerHex(commit) {
		return HierarchicalTag{}, &ParseError{Tag: s, Reason: "mlserver commit is not lowercase hexadecimal"}
	}
	return HierarchicalTag{Classifier: s[:idx], Version: version, ToolCommit: commit}, nil
}

// IsHierarchicalTag reports whether s parses as a hierarchical tag.
func IsHierarchicalTag(s string) bool {
	_, err := ParseTag(s)
	return err == nil
}

// ExtractClassifierName returns everything before the first -v<digit>
// marker, or s unchanged when there is none. It never fails, so it also
// works on malformed tags.
func ExtractClassifierName(s string) string {
	if idx := versionMarkerIndex(s); idx >= 0 {
		return s[:idx]
	}
	return s
}

// ValidateClassifierName rejects names that would not survive a round trip
// through the tag grammar.
func ValidateClassifierName(name string) error {
	if name == "" {
		return fmt.Errorf("classifier name is required")
	}
	if versionMarkerIndex(name) >= 0 {
		return fmt.Errorf("classifier name %q must not contain a -v<digit> sequence", name)
	}
	if strings.Contains(name, ToolMarker) {
		return fmt.Errorf("classifier name %q must not contain %q", name, ToolMarker)
	}
	return nil
}

// NormalizeCommit truncates a commit hash to ShortCommitLength characters.
func NormalizeCommit(commit string) string {
	commit = strings.ToLower(strings.TrimSpace(commit))
	if len(commit) > ShortCommitLength {
		return commit[:ShortCommitLength]
	}
	return commit
}

// CommitsEqual compares two commits after normalizing both to short form.
// Empty commits never match.
func CommitsEqual(a, b string) bool {
	na, nb := NormalizeCommit(a), NormalizeCommit(b)
	return na != "" && na == nb
}

func versionMarkerIndex(s string) int {
	for i := 0; i+2 < len(s); i++ {
		if s[i] == '-' && s[i+1] == 'v' && isDigit(s[i+2]) {
			return i
		}
	}
	return -1
}

func parseReleaseVersion(s string) (*Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("version %q must have three dot-separated components", s)
	}
	var nums [3]uint64
	for i, p := range parts {
		if p == "" || strings.IndexFunc(p, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			return nil, fmt.Errorf("version component %q is not a non-negative integer", p)
		}
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("version component %q: %w", p, err)
		}
		nums[i] = n
	}
	return NewSemVer(nums[0], nums[1], nums[2]), nil
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isLowerHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isDigit(c) && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// TagRef is a tag name together with its creation time, when known.
type TagRef struct {
	Name      string
	CreatedAt time.Time
}

// MatchesClassifier reports whether a tag name belongs to the classifier.
// Malformed tags with the classifier's prefix still match.
func MatchesClassifier(tagName, classifier string) bool {
	idx := versionMarkerIndex(tagName)
	return idx > 0 && tagName[:idx] == classifier
}

// SortTagRefs orders tags latest first: valid tags by descending version,
// ties by newer creation time and then descending name. Malformed tags go
// last in descending name order.
func SortTagRefs(refs []TagRef) []string {
	type entry struct {
		ref     TagRef
		version *Version
	}
	entries := make([]entry, len(refs))
	for i, ref := range refs {
		entries[i] = entry{ref: ref}
		if tag, err := ParseTag(ref.Name); err == nil {
			entries[i].version = tag.Version
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.version != nil && b.version == nil:
			return true
		case a.version == nil && b.version != nil:
			return false
		case a.version != nil:
			if c := a.version.Compare(b.version); c != 0 {
				return c > 0
			}
			if !a.ref.CreatedAt.Equal(b.ref.CreatedAt) {
				return a.ref.CreatedAt.After(b.ref.CreatedAt)
			}
		}
		return a.ref.Name > b.ref.Name
	})
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.ref.Name
	}
	return names
}

// SelectorKind tells whether a classifier argument named a classifier or a
// specific release.
type SelectorKind int

const (
	SelectorName SelectorKind = iota
	SelectorFullTag
)

// Selector is the classified form of a classifier argument. Tag is set only
// for SelectorFullTag.
type Selector struct {
	Kind SelectorKind
	Name string
	Tag  HierarchicalTag
}

// IsFullTag reports whether the selector names a specific release.
func (s Selector) IsFullTag() bool {
	return s.Kind == SelectorFullTag
}

// ParseSelector classifies a classifier argument once, so call sites never
// re-parse it.
func ParseSelector(input string) (Selector, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Selector{}, fmt.Errorf("classifier is required")
	}
	if tag, err := ParseTag(input); err == nil {
		return Selector{Kind: SelectorFullTag, Name: tag.Classifier, Tag: tag}, nil
	}
	name := ExtractClassifierName(input)
	if name == "" {
		return Selector{}, fmt.Errorf("cannot extract a classifier name from %q", input)
	}
	return Selector{Kind: SelectorName, Name: name}, nil
}
