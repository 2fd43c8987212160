package config

import (
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ciciliostudio/loginpilot/internal/twofa"
)

// DataDirName is the per-project directory holding all engine state.
const DataDirName = ".loginpilot"

// Config is the complete engine configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Email   EmailConfig   `yaml:"email"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig configures the executor ingress and read-only API.
type ServerConfig struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig locates the persisted documents.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	HistoryCap int    `yaml:"history_cap"`
}

// EmailConfig selects and configures the email 2FA reader.
type EmailConfig struct {
	Provider string            `yaml:"provider"` // imap, gmail, or empty for none
	IMAP     twofa.IMAPConfig  `yaml:"imap"`
	Gmail    twofa.GmailConfig `yaml:"gmail"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Default returns the configuration used when no file exists yet.
func Default(projectDir string) *Config {
	return &Config{
		Server: ServerConfig{
			Listen:         "127.0.0.1:8377",
			AllowedOrigins: []string{"chrome-extension://*", "moz-extension://*"},
		},
		Storage: StorageConfig{
			DataDir:    filepath.Join(projectDir, DataDirName),
			HistoryCap: 500,
		},
		Email: EmailConfig{
			IMAP: twofa.IMAPConfig{
				Port:         993,
				Mailbox:      "INBOX",
				PollInterval: 5 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for unusable combinations.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return eris.New("config: server.listen is required")
	}
	if c.Storage.DataDir == "" {
		return eris.New("config: storage.data_dir is required")
	}
	if c.Storage.HistoryCap < 0 {
		return eris.New("config: storage.history_cap must not be negative")
	}
	switch c.Email.Provider {
	case "", "imap", "gmail":
	default:
		return eris.Errorf("config: unknown email provider %q", c.Email.Provider)
	}
	if c.Email.Provider == "imap" && c.Email.IMAP.Host == "" {
		return eris.New("config: email.imap.host is required for the imap provider")
	}
	if c.Email.Provider == "gmail" && c.Email.Gmail.RefreshToken == "" {
		return eris.New("config: email.gmail.refresh_token is required for the gmail provider")
	}
	return nil
}

// RulesPath returns the rule file location.
func (c *Config) RulesPath() string {
	return filepath.Join(c.Storage.DataDir, "rules.json")
}

// HistoryPath returns the attempt history file location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Storage.DataDir, "history.json")
}

// ArchivePath returns the evicted-attempt database location.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.Storage.DataDir, "archive.db")
}

// CommunityDir returns the community rule import drop directory.
func (c *Config) CommunityDir() string {
	return filepath.Join(c.Storage.DataDir, "community")
}
