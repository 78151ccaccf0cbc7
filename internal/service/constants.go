package service

import "time"

// Timeout constants for service operations
const (
	// DefaultBuildTimeout bounds a docker build.
	DefaultBuildTimeout = 30 * time.Minute
	// DefaultCommandTimeout bounds short docker commands such as tag and rmi.
	DefaultCommandTimeout = 2 * time.Minute
	// DefaultPushTimeout bounds a single image push.
	DefaultPushTimeout = 10 * time.Minute
)

// Image labels recording build provenance.
const (
	LabelClassifier      = "ai.mlserver.classifier"
	LabelToolCommit      = "ai.mlserver.commit"
	LabelVersion         = "org.opencontainers.image.version"
	LabelRevision        = "org.opencontainers.image.revision"
	LabelHierarchicalTag = "ai.mlserver.tag"
	LatestImageTag       = "latest"
)
