package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for blustash.
type Config struct {
	DBPath  string        `toml:"db_path"`
	LogDir  string        `toml:"log_dir"`
	Scan    ScanConfig    `toml:"scan"`
	Staging StagingConfig `toml:"staging"`
	Burner  BurnerConfig  `toml:"burner"`
}

// ScanConfig holds the scan pipeline settings.
type ScanConfig struct {
	Root      string `toml:"root"`       // default subtree to index
	BatchSize int    `toml:"batch_size"` // files per committed batch
	Workers   int    `toml:"workers"`    // concurrent hash operations
}

// StagingConfig holds the manifest generation settings.
type StagingConfig struct {
	MappingFile string `toml:"mapping_file"`
	BackupDir   string `toml:"backup_dir"` // on-disc directory for index db + sidecar
	DataDir     string `toml:"data_dir"`   // on-disc directory for file data
}

// BurnerConfig holds the xorriso invocation settings.
type BurnerConfig struct {
	Device   string `toml:"device"`
	Finalize bool   `toml:"finalize"`
	Sudo     bool   `toml:"sudo"`
}

// NewConfig creates a Config with default values rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		DBPath: filepath.Join(baseDir, "fs_index.db"),
		LogDir: filepath.Join(baseDir, "log"),
		Scan: ScanConfig{
			BatchSize: 1000,
			Workers:   4,
		},
		Staging: StagingConfig{
			MappingFile: filepath.Join(baseDir, "mapping.txt"),
			BackupDir:   "Backup",
			DataDir:     "data",
		},
		Burner: BurnerConfig{
			Device: "/dev/sr0",
			Sudo:   true,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
