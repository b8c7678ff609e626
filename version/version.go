package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

// Build information. These variables are set at build time via ldflags.
var (
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "dev"

	// BuildTime is when the binary was built
	BuildTime = "unknown"

	// Version is the semantic version (if tagged)
	Version = "dev"
)

// RunnerConstraint is the version range of the external test runner that
// apiprobe is known to work with. Older runners predate the cucumber JSON
// formatter path syntax the command builder emits.
const RunnerConstraint = ">= 0.12.0"

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a human-readable version string
func (i Info) String() string {
	if i.Version != "dev" {
		return fmt.Sprintf("apiprobe %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
	}
	return fmt.Sprintf("apiprobe dev (commit %s, built %s)", i.CommitHash, i.BuildTime)
}

// Short returns a short version string with just the commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// CheckRunnerVersion reports whether the given runner version satisfies
// RunnerConstraint. The version string may carry a "v" prefix.
func CheckRunnerVersion(version string) error {
	runnerVer, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid runner version %s: %w", version, err)
	}

	constraint, err := semver.NewConstraint(RunnerConstraint)
	if err != nil {
		return fmt.Errorf("invalid version constraint %s: %w", RunnerConstraint, err)
	}

	if !constraint.Check(runnerVer) {
		return fmt.Errorf("runner version %s does not satisfy %s", version, RunnerConstraint)
	}

	return nil
}
