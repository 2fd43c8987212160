package config

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the file the loader looks for inside the data dir.
const ConfigFileName = "config.yaml"

// Loader reads the engine configuration for one project directory.
type Loader struct {
	projectDir string
}

// NewLoader creates a loader rooted at projectDir, defaulting to the
// working directory.
func NewLoader(projectDir string) *Loader {
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		projectDir = wd
	}
	return &Loader{projectDir: projectDir}
}

// Path returns where the config file lives for this project.
func (l *Loader) Path() string {
	return filepath.Join(l.projectDir, DataDirName, ConfigFileName)
}

// IsInitialized reports whether a config file exists.
func (l *Loader) IsInitialized() bool {
	_, err := os.Stat(l.Path())
	return err == nil
}

// Load reads and validates the configuration. A missing file yields the
// defaults: the engine always has a usable configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := Default(l.projectDir)

	data, err := os.ReadFile(l.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, eris.Wrap(err, "config: read file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, eris.Wrap(err, "config: parse yaml")
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = filepath.Join(l.projectDir, DataDirName)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration back to disk with restrictive permissions,
// since the email section can carry reader credentials.
func (l *Loader) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "config: marshal yaml")
	}
	path := l.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "config: create data dir")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return eris.Wrap(err, "config: write file")
	}
	return nil
}
