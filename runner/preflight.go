package runner

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/version"
)

var versionPattern = regexp.MustCompile(`v?\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?`)

// Version invokes `<binary> --version` and extracts the first semantic
// version token from its output.
func Version(ctx context.Context, binary string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, "--version").CombinedOutput()
	if err != nil {
		return "", errors.Wrapf(err, "failed to invoke %s --version", binary)
	}

	token := versionPattern.FindString(string(out))
	if token == "" {
		return "", errors.Newf("no version found in %s --version output: %q",
			binary, strings.TrimSpace(string(out)))
	}
	return token, nil
}

// CheckVersion verifies the configured runner binary reports a version
// inside the supported range. Called once at startup, not per execution.
func CheckVersion(ctx context.Context, binary string) error {
	v, err := Version(ctx, binary)
	if err != nil {
		return err
	}
	if err := version.CheckRunnerVersion(v); err != nil {
		return errors.Wrapf(err, "runner binary %s is unsupported", binary)
	}
	return nil
}

// Memory sizing for worker-count sanity checks. Each runner worker holds an
// HTTP client, scenario state, and response payloads in flight.
const (
	workerMemoryMB        = 256
	memoryBufferMB        = 512
	maxRecommendedWorkers = 16
)

// SafeWorkerCount recommends a worker count for the given available memory.
func SafeWorkerCount(availableMB uint64) int {
	if availableMB <= memoryBufferMB {
		return 1
	}
	recommended := int((availableMB - memoryBufferMB) / workerMemoryMB)
	if recommended < 1 {
		return 1
	}
	if recommended > maxRecommendedWorkers {
		return maxRecommendedWorkers
	}
	return recommended
}

// MemoryPressureWarning validates the requested worker count against
// available memory. Returns a warning message when the count looks too
// high, empty string when it is fine or memory stats are unavailable.
func MemoryPressureWarning(workers int) string {
	v, err := mem.VirtualMemory()
	if err != nil {
		return ""
	}

	availableMB := v.Available / 1024 / 1024
	recommended := SafeWorkerCount(availableMB)
	if workers <= recommended {
		return ""
	}

	return fmt.Sprintf(
		"Worker count (%d) exceeds recommended (%d) for available memory (%dMB). "+
			"Consider reducing workers to prevent memory pressure.",
		workers, recommended, availableMB)
}
