package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Server settings
	Host string
	Port string

	// Database settings
	DBPath string

	// Mailbox settings
	Mailbox MailboxConfig

	// Ingest settings
	Ingest IngestConfig

	// Renewal reminder window in days
	ReminderDays int
}

// MailboxConfig selects and configures the mail source.
type MailboxConfig struct {
	// Source is "gmail" or "maildir"
	Source      string
	MaildirPath string
	Gmail       GmailConfig
}

// GmailConfig holds the linked Google account credentials.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// IngestConfig tunes the mailbox scan.
type IngestConfig struct {
	Query       string
	MaxMessages int
}

// Load reads configuration from file and env. Env var overrides use
// prefix NEEDIX_ (e.g. NEEDIX_MAILBOX_SOURCE=maildir).
func Load() (*Config, error) {
	v := viper.New()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	dataDir := filepath.Join(homeDir, ".needix")

	// default values
	v.SetDefault("host", "localhost")
	v.SetDefault("port", "8080")
	v.SetDefault("db_path", filepath.Join(dataDir, "needix.db"))
	v.SetDefault("mailbox.source", "maildir")
	v.SetDefault("mailbox.maildir_path", "./emails")
	v.SetDefault("mailbox.gmail.client_id", "")
	v.SetDefault("mailbox.gmail.client_secret", "")
	v.SetDefault("mailbox.gmail.refresh_token", "")
	v.SetDefault("ingest.query", "")
	v.SetDefault("ingest.max_messages", 50)
	v.SetDefault("reminder_days", 7)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("NEEDIX_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "needix"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("NEEDIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; anything else is a real error
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgPath != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Host:         v.GetString("host"),
		Port:         v.GetString("port"),
		DBPath:       v.GetString("db_path"),
		ReminderDays: v.GetInt("reminder_days"),
		Mailbox: MailboxConfig{
			Source:      v.GetString("mailbox.source"),
			MaildirPath: v.GetString("mailbox.maildir_path"),
			Gmail: GmailConfig{
				ClientID:     v.GetString("mailbox.gmail.client_id"),
				ClientSecret: v.GetString("mailbox.gmail.client_secret"),
				RefreshToken: v.GetString("mailbox.gmail.refresh_token"),
			},
		},
		Ingest: IngestConfig{
			Query:       v.GetString("ingest.query"),
			MaxMessages: v.GetInt("ingest.max_messages"),
		},
	}

	if cfg.Mailbox.Source != "gmail" && cfg.Mailbox.Source != "maildir" {
		return nil, fmt.Errorf("unknown mailbox source %q", cfg.Mailbox.Source)
	}

	return cfg, nil
}

// Default returns the built-in configuration without consulting files or
// env (handy for tests)
func Default() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	dataDir := filepath.Join(homeDir, ".needix")

	return &Config{
		Host:         "localhost",
		Port:         "8080",
		DBPath:       filepath.Join(dataDir, "needix.db"),
		ReminderDays: 7,
		Mailbox: MailboxConfig{
			Source:      "maildir",
			MaildirPath: "./emails",
		},
		Ingest: IngestConfig{
			MaxMessages: 50,
		},
	}
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}
