// Package version holds build metadata injected at link time.
package version

import "runtime"

// Populated via -ldflags "-X github.com/seforimlab/folio/version.GitRelease=..."
var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
	GoInfo        = runtime.Version()
)
