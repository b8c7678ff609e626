package config

import "fmt"

// Config is the root apiprobe configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig configures the apiprobe HTTP/WebSocket server
type ServerConfig struct {
	Port           *int     `mapstructure:"port"` // nil = DefaultServerPort, 0 is invalid (omit for default)
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Server port constants
const (
	DefaultServerPort = 8611 // Above privileged range, unlikely to collide with app under test
)

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// WorkspaceConfig configures where generated test projects live on disk
type WorkspaceConfig struct {
	Root    string            `mapstructure:"root"`    // base directory holding one subdirectory per project
	Sources map[string]string `mapstructure:"sources"` // project_id = remote source URL (go-getter syntax)
}

// RunnerConfig configures the external test runner binary
type RunnerConfig struct {
	Binary              string `mapstructure:"binary"`               // runner executable (default: "apiprobe-runner")
	ExtraArgs           string `mapstructure:"extra_args"`           // operator-supplied args, shell-quoted string
	SupportsConcurrency bool   `mapstructure:"supports_concurrency"` // whether the binary accepts --concurrency
}

// ExecutionConfig holds per-execution defaults applied when a request omits them
type ExecutionConfig struct {
	Environment          string `mapstructure:"environment"`            // default target environment (default: "staging")
	Workers              int    `mapstructure:"workers"`                // parallel scenario workers (default: 1)
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`        // wall-clock kill, 0 = no timeout
	Retries              int    `mapstructure:"retries"`                // runner-level retry count for flaky scenarios
	KeepReports          bool   `mapstructure:"keep_reports"`           // keep report directories after parsing
	HistoryRetentionDays int    `mapstructure:"history_retention_days"` // executions older than this are pruned (0 = keep forever)
}

// LogConfig configures logger output
type LogConfig struct {
	JSON bool `mapstructure:"json"` // structured JSON output instead of console encoding
}

// Default file locations and permissions
const (
	DefaultDatabasePath  = "apiprobe.db"
	DefaultWorkspaceRoot = "workspace"
	DefaultRunnerBinary  = "apiprobe-runner"
	DefaultEnvironment   = "staging"

	DefaultDirPermissions  = 0750
	DefaultFilePermissions = 0644
)

// GetServerPort returns the configured port, falling back to DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil || *c.Server.Port == 0 {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1",
			"https://127.0.0.1",
		}
	}
	return c.Server.AllowedOrigins
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// GetWorkspaceRoot returns the configured workspace root directory
func (c *Config) GetWorkspaceRoot() string {
	if c.Workspace.Root == "" {
		return DefaultWorkspaceRoot
	}
	return c.Workspace.Root
}

// GetRunnerBinary returns the configured runner binary name or path
func (c *Config) GetRunnerBinary() string {
	if c.Runner.Binary == "" {
		return DefaultRunnerBinary
	}
	return c.Runner.Binary
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Workspace: %s, Runner: %s, Execution: {Workers: %d, Environment: %s}}",
		c.GetDatabasePath(), c.GetWorkspaceRoot(), c.GetRunnerBinary(),
		c.Execution.Workers, c.Execution.Environment)
}
