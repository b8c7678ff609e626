package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", DefaultDatabasePath)

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})

	// Workspace defaults
	v.SetDefault("workspace.root", DefaultWorkspaceRoot)

	// Runner defaults
	v.SetDefault("runner.binary", DefaultRunnerBinary)
	v.SetDefault("runner.supports_concurrency", true)

	// Execution defaults
	v.SetDefault("execution.environment", DefaultEnvironment)
	v.SetDefault("execution.workers", 1)
	v.SetDefault("execution.timeout_seconds", 0) // no wall-clock kill unless asked for
	v.SetDefault("execution.retries", 0)
	v.SetDefault("execution.keep_reports", false)
	v.SetDefault("execution.history_retention_days", 30)

	// Log defaults
	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars explicitly binds configuration that operators commonly
// override per-host without touching the config file
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "APIPROBE_DATABASE_PATH")
	v.BindEnv("workspace.root", "APIPROBE_WORKSPACE_ROOT")
	v.BindEnv("runner.binary", "APIPROBE_RUNNER_BINARY")
	v.BindEnv("execution.environment", "APIPROBE_EXECUTION_ENVIRONMENT")
}
