package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	DataDir          string
	DBPath           string
	SettingsPath     string
	UserAgentDir     string
	ProjectAgentDir  string
	UserPresetDir    string
	ProjectPresetDir string
}

func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("RELAY_DATA_DIR", filepath.Join(homeDir, ".relay"))

	c := &Config{
		DataDir:          dataDir,
		DBPath:           filepath.Join(dataDir, "relay.db"),
		SettingsPath:     filepath.Join(dataDir, "settings.json"),
		UserAgentDir:     filepath.Join(dataDir, "agents"),
		ProjectAgentDir:  ".relay/agents",
		UserPresetDir:    filepath.Join(dataDir, "presets"),
		ProjectPresetDir: ".relay/presets",
	}

	return c, nil
}

func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(c.UserAgentDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(c.UserPresetDir, 0755); err != nil {
		return err
	}
	return nil
}

// ChainsDir is where per-run handoff directories are created.
func (c *Config) ChainsDir() string {
	return filepath.Join(c.DataDir, "chains")
}

// LogPath is the zap file sink. Kept out of the terminal so TUI output
// stays clean.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "relay.log")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
