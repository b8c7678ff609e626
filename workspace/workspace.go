// Package workspace resolves and prepares the on-disk working directory for a
// project's generated test suite: feature files, per-execution report
// directories, optional remote source sync, and git revision lookup.
package workspace

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/apiprobe/apiprobe/errors"
)

const (
	// FeaturesDirName holds the generated .feature files inside a project dir
	FeaturesDirName = "features"

	// ReportsDirName holds per-execution report directories inside a project dir
	ReportsDirName = "test-results"

	// ReportFileName is the Cucumber JSON report the runner writes
	ReportFileName = "cucumber-report.json"

	// ManifestFileName optionally maps entities to feature files and tags
	ManifestFileName = "manifest.yaml"

	dirPermissions = 0750
)

// Manager resolves project directories under a single workspace root.
// Each project occupies <root>/<projectID>; report directories are isolated
// per execution so concurrent runs never clobber each other's reports.
type Manager struct {
	root    string
	sources map[string]string // project_id -> remote source URL (go-getter syntax)
	logger  *zap.SugaredLogger
}

// NewManager creates a workspace manager rooted at the given directory
func NewManager(root string, sources map[string]string, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		root:    root,
		sources: sources,
		logger:  logger,
	}
}

// Root returns the workspace root directory
func (m *Manager) Root() string {
	return m.root
}

// ProjectDir returns the working directory for a project
func (m *Manager) ProjectDir(projectID string) string {
	return filepath.Join(m.root, projectID)
}

// FeaturesDir returns the directory holding a project's feature files
func (m *Manager) FeaturesDir(projectID string) string {
	return filepath.Join(m.ProjectDir(projectID), FeaturesDirName)
}

// ReportDir returns the report directory for one execution.
// Isolated per execution: test-results/<executionID>/.
func (m *Manager) ReportDir(projectID, executionID string) string {
	return filepath.Join(m.ProjectDir(projectID), ReportsDirName, executionID)
}

// ReportPath returns the Cucumber JSON report path for one execution
func (m *Manager) ReportPath(projectID, executionID string) string {
	return filepath.Join(m.ReportDir(projectID, executionID), ReportFileName)
}

// EnsureProject creates the project directory structure if missing and
// returns the project dir
func (m *Manager) EnsureProject(projectID string) (string, error) {
	if projectID == "" {
		return "", errors.New("project id must not be empty")
	}

	projectDir := m.ProjectDir(projectID)
	if err := os.MkdirAll(filepath.Join(projectDir, FeaturesDirName), dirPermissions); err != nil {
		return "", errors.Wrapf(err, "failed to create project workspace %s", projectDir)
	}
	return projectDir, nil
}

// CleanupReports removes one execution's report directory.
// Called after parsing unless report retention is enabled.
func (m *Manager) CleanupReports(projectID, executionID string) error {
	if executionID == "" {
		return errors.New("execution id must not be empty")
	}

	reportDir := m.ReportDir(projectID, executionID)
	if err := os.RemoveAll(reportDir); err != nil {
		return errors.Wrapf(err, "failed to remove report dir %s", reportDir)
	}
	return nil
}
