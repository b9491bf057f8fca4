// Package version holds build-time identifiers set via -ldflags.
package version

var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
	GoInfo        = "unknown"
)
