package domain

// TagStatus classifies how the working tree relates to a classifier's latest tag.
type TagStatus string

const (
	StatusUntagged TagStatus = "UNTAGGED"
	StatusCurrent  TagStatus = "CURRENT"
	StatusStale    TagStatus = "STALE"
)

// ClassifierTagStatus is the per-classifier summary derived on every query.
type ClassifierTagStatus struct {
	Classifier      string    `json:"classifier"`
	CurrentVersion  *Version  `json:"-"`
	LatestTag       string    `json:"latest_tag,omitempty"`
	OnTaggedCommit  bool      `json:"on_tagged_commit"`
	CommitsSinceTag *int      `json:"commits_since_tag,omitempty"`
	Status          TagStatus `json:"status"`
	Recommendation  string    `json:"recommendation,omitempty"`
	// ToolCommit is the mlserver commit recorded in the latest tag.
	ToolCommit string `json:"mlserver_commit,omitempty"`
	// ToolDrift is set when ToolCommit differs from the running tool.
	ToolDrift bool   `json:"mlserver_drift"`
	Error     string `json:"error,omitempty"`
}

// VersionString returns the current version or an empty string.
func (s ClassifierTagStatus) VersionString() string {
	if s.CurrentVersion == nil {
		return ""
	}
	return s.CurrentVersion.String()
}

// GitSnapshot is a point-in-time read of repository state. It is never
// cached across invocations.
type GitSnapshot struct {
	Commit          string `json:"commit"`
	Branch          string `json:"branch"`
	NearestTag      string `json:"nearest_tag,omitempty"`
	IsDirty         bool   `json:"is_dirty"`
	CommitsSinceTag *int   `json:"commits_since_tag,omitempty"`
}

// ShortCommit returns the snapshot commit in tag form.
func (s GitSnapshot) ShortCommit() string {
	return NormalizeCommit(s.Commit)
}
