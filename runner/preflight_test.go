package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeRunnerBinary(t *testing.T, versionOutput string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake runner binaries require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-runner")
	script := "#!/bin/sh\necho '" + versionOutput + "'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestVersionExtractsSemver(t *testing.T) {
	binary := fakeRunnerBinary(t, "apiprobe-runner version 0.13.2 (linux/amd64)")

	v, err := Version(context.Background(), binary)
	require.NoError(t, err)
	assert.Equal(t, "0.13.2", v)
}

func TestVersionNoSemverInOutput(t *testing.T) {
	binary := fakeRunnerBinary(t, "development build")

	_, err := Version(context.Background(), binary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no version found")
}

func TestVersionMissingBinary(t *testing.T) {
	_, err := Version(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestCheckVersion(t *testing.T) {
	supported := fakeRunnerBinary(t, "apiprobe-runner version v0.13.2")
	assert.NoError(t, CheckVersion(context.Background(), supported))

	outdated := fakeRunnerBinary(t, "apiprobe-runner version 0.11.0")
	err := CheckVersion(context.Background(), outdated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestSafeWorkerCount(t *testing.T) {
	assert.Equal(t, 1, SafeWorkerCount(0))
	assert.Equal(t, 1, SafeWorkerCount(memoryBufferMB))
	assert.Equal(t, 1, SafeWorkerCount(memoryBufferMB+workerMemoryMB-1))
	assert.Equal(t, 2, SafeWorkerCount(memoryBufferMB+2*workerMemoryMB))
	assert.Equal(t, maxRecommendedWorkers, SafeWorkerCount(1024*1024))
}

func TestMemoryPressureWarning(t *testing.T) {
	// One worker is always within budget on any machine the tests run on.
	assert.Empty(t, MemoryPressureWarning(1))

	if warning := MemoryPressureWarning(10_000); warning != "" {
		assert.Contains(t, warning, "exceeds recommended")
	}
}
