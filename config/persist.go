package config

import (
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/logger"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old config backup",
			"path", back3,
			"error", err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// loadOrInitializeUserConfig loads ~/.apiprobe/config.toml, or starts an empty
// settings map if the file does not exist yet
func loadOrInitializeUserConfig() (map[string]interface{}, string, error) {
	configPath := UserConfigPath()
	if configPath == "" {
		return nil, "", errors.New("could not determine home directory")
	}

	var settings map[string]interface{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, &settings); err != nil {
			return nil, "", errors.Wrap(err, "failed to parse user config")
		}
	} else {
		settings = make(map[string]interface{})
	}

	return settings, configPath, nil
}

// saveUserConfig writes the settings map to the user config file with backup
func saveUserConfig(settings map[string]interface{}, configPath string) error {
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(settings)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// Mark this as our own write to prevent reload loops
	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to write user config")
	}

	return nil
}

// Set updates a single dotted key (e.g. "execution.workers") in the user
// config file, preserving unrelated settings. The cached snapshot is reloaded
// so subsequent Current() calls observe the change.
func Set(key string, value interface{}) error {
	if key == "" {
		return errors.New("config key must not be empty")
	}

	settings, configPath, err := loadOrInitializeUserConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load user config")
	}

	setNested(settings, strings.Split(key, "."), value)

	if err := saveUserConfig(settings, configPath); err != nil {
		return err
	}

	if _, err := Reload(); err != nil {
		return errors.Wrap(err, "config saved but reload failed")
	}
	return nil
}

// setNested walks the settings map along the key path, creating intermediate
// tables as needed, and sets the leaf value
func setNested(settings map[string]interface{}, path []string, value interface{}) {
	for i, part := range path {
		if i == len(path)-1 {
			settings[part] = value
			return
		}
		child, ok := settings[part].(map[string]interface{})
		if !ok {
			child = make(map[string]interface{})
			settings[part] = child
		}
		settings = child
	}
}
