package orchestrator

import (
	"os"
	"strings"
	"time"
)

// Timeout constants for the release workflows
var (
	// PublishTimeout bounds validation plus the image pushes of one classifier
	PublishTimeout = getTimeoutOrDefault("MLSERVER_PUBLISH_TIMEOUT", 30*time.Minute, 5*time.Second)
	// ReleaseWorkflowTimeout is the extended timeout covering build and push
	ReleaseWorkflowTimeout = getTimeoutOrDefault("MLSERVER_RELEASE_TIMEOUT", 90*time.Minute, 10*time.Second)
	// RollbackTimeout is the timeout for rollback operations
	RollbackTimeout = getTimeoutOrDefault("MLSERVER_ROLLBACK_TIMEOUT", 5*time.Minute, 100*time.Millisecond)
)

// isTestEnvironment detects if we're running in a test binary
func isTestEnvironment() bool {
	for _, arg := range os.Args {
		if strings.HasSuffix(arg, ".test") || strings.Contains(arg, "-test.") {
			return true
		}
	}
	return os.Getenv("MLSERVER_TEST_MODE") == "true"
}

// getTimeoutOrDefault returns the env override, else the production or test default
func getTimeoutOrDefault(envVar string, prodDefault, testDefault time.Duration) time.Duration {
	if env := os.Getenv(envVar); env != "" {
		if duration, err := time.ParseDuration(env); err == nil {
			return duration
		}
	}
	if isTestEnvironment() {
		return testDefault
	}
	return prodDefault
}
