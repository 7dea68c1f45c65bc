package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gmd"
	"gmd/internal/dump"
)

// Config holds the tool's defaults for re-encoding and dumping.
type Config struct {
	Platform        string `json:"platform"`
	Game            string `json:"game"`
	Version         string `json:"version"`
	BackupSuffix    string `json:"backup_suffix"`
	DumpFormat      string `json:"dump_format"`
	DumpCompression string `json:"dump_compression"`
	Verbose         bool   `json:"verbose"`
}

// DefaultConfig returns the parameters the tool always used before it was
// configurable. An empty Version keeps the version of the source file.
func DefaultConfig() *Config {
	return &Config{
		Platform:        gmd.PlatformMobile.String(),
		Game:            gmd.GameDD.String(),
		Version:         "",
		BackupSuffix:    ".bk",
		DumpFormat:      string(dump.FormatJSON),
		DumpCompression: string(dump.CompressionNone),
		Verbose:         false,
	}
}

// Target is a validated encoding target.
type Target struct {
	Platform gmd.Platform
	Game     gmd.Game
	// Version is zero when the source version should be kept.
	Version gmd.Version
}

// Resolve parses the string fields used for encoding.
func (c *Config) Resolve() (Target, error) {
	var t Target
	var err error
	if t.Platform, err = gmd.ParsePlatform(c.Platform); err != nil {
		return Target{}, err
	}
	if t.Game, err = gmd.ParseGame(c.Game); err != nil {
		return Target{}, err
	}
	if c.Version != "" {
		if t.Version, err = gmd.ParseVersion(c.Version); err != nil {
			return Target{}, err
		}
	}
	return t, nil
}

// DumpOptions parses the dump settings.
func (c *Config) DumpOptions() (dump.Options, error) {
	f, err := dump.ParseFormat(c.DumpFormat)
	if err != nil {
		return dump.Options{}, err
	}
	comp, err := dump.ParseCompression(c.DumpCompression)
	if err != nil {
		return dump.Options{}, err
	}
	return dump.Options{Format: f, Compression: comp}, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if _, err := c.Resolve(); err != nil {
		return err
	}
	if _, err := c.DumpOptions(); err != nil {
		return err
	}
	if c.BackupSuffix == "" {
		return fmt.Errorf("backup_suffix must not be empty")
	}
	return nil
}

// Manager handles configuration loading and saving
type Manager struct {
	config     *Config
	configPath string
}

func NewManager(configPath string) *Manager {
	return &Manager{
		config:     DefaultConfig(),
		configPath: configPath,
	}
}

// Load reads the configuration file, writing the defaults if it does not
// exist yet.
func (m *Manager) Load() error {
	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		log.Printf("Config file %s not found, using defaults", m.configPath)
		return m.Save()
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, m.config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := m.config.Validate(); err != nil {
		return fmt.Errorf("invalid config file %s: %w", m.configPath, err)
	}
	return nil
}

func (m *Manager) Save() error {
	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}
