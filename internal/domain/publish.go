package domain

import "fmt"

// VersionSource selects where a publish takes its version from.
type VersionSource string

const (
	VersionSourceGitTag VersionSource = "git-tag"
	VersionSourceConfig VersionSource = "config"
	VersionSourceAuto   VersionSource = "auto"
)

// ParseVersionSource validates a version source given on the command line.
func ParseVersionSource(s string) (VersionSource, error) {
	switch VersionSource(s) {
	case VersionSourceGitTag, VersionSourceConfig, VersionSourceAuto:
		return VersionSource(s), nil
	case "":
		return VersionSourceAuto, nil
	default:
		return "", fmt.Errorf("invalid version source %q: must be auto, git-tag, or config", s)
	}
}

// ProvenanceCheck compares the commits recorded in a full tag with the
// current classifier and tool commits. A side that is unknown never counts
// as a mismatch.
type ProvenanceCheck struct {
	Tag                     HierarchicalTag
	TagClassifierCommit     string
	CurrentClassifierCommit string
	TagToolCommit           string
	CurrentToolCommit       string
	ClassifierMismatch      bool
	ToolMismatch            bool
}

// RequiresConfirmation is true when building would change provenance.
func (p ProvenanceCheck) RequiresConfirmation() bool {
	return p.ClassifierMismatch || p.ToolMismatch
}

// PublishDecision is the outcome of the safe publish gate.
type PublishDecision struct {
	Classifier         string
	Allowed            bool
	VersionUsed        *Version
	VersionSource      VersionSource
	OnTaggedCommit     bool
	Tag                string
	ValidationErrors   []string
	ValidationWarnings []string
	Provenance         *ProvenanceCheck
}

// RequiresConfirmation exposes the provenance signal of a full-tag build.
func (d PublishDecision) RequiresConfirmation() bool {
	return d.Provenance != nil && d.Provenance.RequiresConfirmation()
}

// PushResult reports a multi-image push. PushedTags and FailedTags are
// disjoint and together cover every attempted image.
type PushResult struct {
	PushedTags []string          `json:"pushed_tags"`
	FailedTags []string          `json:"failed_tags"`
	Errors     map[string]string `json:"errors,omitempty"`
	Success    bool              `json:"success"`
}
