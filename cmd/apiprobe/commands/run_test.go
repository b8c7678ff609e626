package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiprobe/apiprobe/logger"
)

func TestRunRequestFromFlags(t *testing.T) {
	t.Cleanup(resetRunFlags)

	runSuite = "checkout"
	runEntity = "user"
	runMethod = "POST"
	runTags = []string{"@smoke"}
	runScenarios = []string{"Create user", "Delete user"}
	runEnvironment = "production"
	runWorkers = 4
	runTimeout = 600
	runRetries = 2
	runParallel = true
	runKeepReports = true
	runKeepReportsSet = true

	req := runRequest("payments", logger.VerbosityDebug)

	assert.Equal(t, "payments", req.ProjectID)
	assert.Equal(t, "checkout", req.SuiteID)
	assert.Equal(t, "user", req.Entity)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, []string{"@smoke"}, req.Tags)
	assert.Equal(t, []string{"Create user", "Delete user"}, req.ScenarioNames)
	assert.Equal(t, "production", req.Environment)
	assert.Equal(t, 4, req.Workers)
	assert.Equal(t, 600, req.TimeoutSeconds)
	assert.Equal(t, 2, req.Retries)
	assert.True(t, req.Parallel)
	assert.True(t, req.Verbose)
	require.NotNil(t, req.KeepReports)
	assert.True(t, *req.KeepReports)
	assert.Equal(t, "cli", req.TriggeredBy)

	require.NoError(t, req.Validate())
}

func TestRunRequestKeepReportsUnsetStaysNil(t *testing.T) {
	t.Cleanup(resetRunFlags)

	req := runRequest("payments", 0)

	assert.Nil(t, req.KeepReports, "unset flag must leave the config default in charge")
	assert.False(t, req.Verbose)
}

func resetRunFlags() {
	runSuite = ""
	runTestCase = ""
	runEntity = ""
	runMethod = ""
	runTestType = ""
	runTags = nil
	runScenarios = nil
	runEnvironment = ""
	runWorkers = 0
	runTimeout = 0
	runRetries = 0
	runParallel = false
	runKeepReports = false
	runKeepReportsSet = false
}
