package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	// Create isolated viper instance without loading user/project config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.Database.Path != DefaultDatabasePath {
		t.Errorf("expected default database path %q, got %q", DefaultDatabasePath, cfg.Database.Path)
	}

	if cfg.GetServerPort() != DefaultServerPort {
		t.Errorf("expected default port %d, got %d", DefaultServerPort, cfg.GetServerPort())
	}

	if cfg.Workspace.Root != DefaultWorkspaceRoot {
		t.Errorf("expected default workspace root %q, got %q", DefaultWorkspaceRoot, cfg.Workspace.Root)
	}

	if cfg.Runner.Binary != DefaultRunnerBinary {
		t.Errorf("expected default runner binary %q, got %q", DefaultRunnerBinary, cfg.Runner.Binary)
	}

	if !cfg.Runner.SupportsConcurrency {
		t.Error("expected concurrency support enabled by default")
	}

	if cfg.Execution.Workers != 1 {
		t.Errorf("expected default workers 1, got %d", cfg.Execution.Workers)
	}

	if cfg.Execution.Environment != DefaultEnvironment {
		t.Errorf("expected default environment %q, got %q", DefaultEnvironment, cfg.Execution.Environment)
	}

	if cfg.Execution.HistoryRetentionDays != 30 {
		t.Errorf("expected default retention 30 days, got %d", cfg.Execution.HistoryRetentionDays)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("APIPROBE_EXECUTION_ENVIRONMENT", "production")
	t.Setenv("APIPROBE_DATABASE_PATH", "/tmp/override.db")
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Execution.Environment != "production" {
		t.Errorf("expected env override 'production', got %q", cfg.Execution.Environment)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("expected env override '/tmp/override.db', got %q", cfg.Database.Path)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[execution]
workers = 4
environment = "qa"

[runner]
binary = "/opt/runner/bin/runner"
supports_concurrency = false
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if cfg.Execution.Workers != 4 {
		t.Errorf("expected workers 4, got %d", cfg.Execution.Workers)
	}
	if cfg.Execution.Environment != "qa" {
		t.Errorf("expected environment 'qa', got %q", cfg.Execution.Environment)
	}
	if cfg.Runner.Binary != "/opt/runner/bin/runner" {
		t.Errorf("expected runner binary override, got %q", cfg.Runner.Binary)
	}
	if cfg.Runner.SupportsConcurrency {
		t.Error("expected concurrency support disabled")
	}

	// Values the file does not mention keep their defaults
	if cfg.Database.Path != DefaultDatabasePath {
		t.Errorf("expected default database path, got %q", cfg.Database.Path)
	}
}

func TestValidate(t *testing.T) {
	negative := -1
	zero := 0

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			config:  *Defaults(),
			wantErr: false,
		},
		{
			name: "zero port is invalid",
			config: Config{
				Server: ServerConfig{Port: &zero},
			},
			wantErr: true,
		},
		{
			name: "negative port is invalid",
			config: Config{
				Server: ServerConfig{Port: &negative},
			},
			wantErr: true,
		},
		{
			name:    "nil port is valid (default applies)",
			config:  Config{},
			wantErr: false,
		},
		{
			name: "negative workers is invalid",
			config: Config{
				Execution: ExecutionConfig{Workers: -1},
			},
			wantErr: true,
		},
		{
			name: "zero timeout is valid (no kill)",
			config: Config{
				Execution: ExecutionConfig{TimeoutSeconds: 0},
			},
			wantErr: false,
		},
		{
			name: "negative timeout is invalid",
			config: Config{
				Execution: ExecutionConfig{TimeoutSeconds: -5},
			},
			wantErr: true,
		},
		{
			name: "negative retention is invalid",
			config: Config{
				Execution: ExecutionConfig{HistoryRetentionDays: -1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSet_WritesUserConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	Reset()
	t.Cleanup(Reset)

	if err := Set("execution.workers", 8); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	// The file must contain the new value under the right table
	data, err := os.ReadFile(UserConfigPath())
	if err != nil {
		t.Fatalf("user config missing after Set: %v", err)
	}
	var settings map[string]interface{}
	if err := toml.Unmarshal(data, &settings); err != nil {
		t.Fatalf("user config is not valid TOML: %v", err)
	}
	execution, ok := settings["execution"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected [execution] table, got %#v", settings)
	}
	if workers, ok := execution["workers"].(int64); !ok || workers != 8 {
		t.Errorf("expected workers=8 in file, got %#v", execution["workers"])
	}

	// The cached snapshot observed the change
	if got := Current().Execution.Workers; got != 8 {
		t.Errorf("expected Current() to see workers=8, got %d", got)
	}
}

func TestSet_PreservesUnrelatedSettings(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	Reset()
	t.Cleanup(Reset)

	if err := Set("runner.binary", "/usr/local/bin/probe"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := Set("execution.environment", "qa"); err != nil {
		t.Fatalf("second Set() failed: %v", err)
	}

	cfg := Current()
	if cfg.Runner.Binary != "/usr/local/bin/probe" {
		t.Errorf("first setting lost, got %q", cfg.Runner.Binary)
	}
	if cfg.Execution.Environment != "qa" {
		t.Errorf("second setting missing, got %q", cfg.Execution.Environment)
	}
}

func TestSet_RotatesBackups(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	Reset()
	t.Cleanup(Reset)

	// Four writes: three backups exist, the first write's content sits on .back3
	for i, env := range []string{"a", "b", "c", "d"} {
		if err := Set("execution.environment", env); err != nil {
			t.Fatalf("Set() #%d failed: %v", i+1, err)
		}
	}

	configPath := UserConfigPath()
	for _, suffix := range []string{".back1", ".back2", ".back3"} {
		if _, err := os.Stat(configPath + suffix); err != nil {
			t.Errorf("expected backup %s to exist: %v", suffix, err)
		}
	}

	// .back1 holds the previous generation ("c")
	data, err := os.ReadFile(configPath + ".back1")
	if err != nil {
		t.Fatalf("failed to read .back1: %v", err)
	}
	var settings map[string]interface{}
	if err := toml.Unmarshal(data, &settings); err != nil {
		t.Fatalf(".back1 is not valid TOML: %v", err)
	}
	execution := settings["execution"].(map[string]interface{})
	if execution["environment"] != "c" {
		t.Errorf("expected .back1 to hold previous generation 'c', got %#v", execution["environment"])
	}
}

func TestIsBackupFile(t *testing.T) {
	if !isBackupFile("/home/u/.apiprobe/config.toml.back1") {
		t.Error("expected .back1 to be recognized as backup")
	}
	if !isBackupFile("config.toml.back3") {
		t.Error("expected .back3 to be recognized as backup")
	}
	if isBackupFile("/home/u/.apiprobe/config.toml") {
		t.Error("config.toml is not a backup")
	}
}

func TestSetNested_CreatesIntermediateTables(t *testing.T) {
	settings := map[string]interface{}{}
	setNested(settings, []string{"workspace", "sources", "checkout"}, "git::https://example.com/checkout.git")

	workspace, ok := settings["workspace"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected workspace table, got %#v", settings)
	}
	sources, ok := workspace["sources"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected sources table, got %#v", workspace)
	}
	if sources["checkout"] != "git::https://example.com/checkout.git" {
		t.Errorf("leaf value missing, got %#v", sources["checkout"])
	}
}
