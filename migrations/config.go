package migrations

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Config holds all configuration for the migration runner.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string
	DatabaseURL string

	// MigrationTable is the name of the table to track migrations
	MigrationTable string
}

// LoadConfig loads configuration from environment variables with sensible defaults.
func LoadConfig() (*Config, error) {
	config := &Config{
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", ""),
		MigrationTable: getEnvOrDefault("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}

	if c.MigrationTable == "" {
		return fmt.Errorf("MIGRATION_TABLE cannot be empty")
	}

	return nil
}

// String returns a string representation of the configuration (safe for logging).
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}",
		MaskDatabaseURL(c.DatabaseURL), c.MigrationTable)
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// MaskDatabaseURL masks the password portion of a database URL for logging.
// The whole module logs connection strings through this one function.
func MaskDatabaseURL(databaseURL string) string {
	if databaseURL == "" {
		return ""
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		// Typically an unescaped password; never log it as-is.
		return maskRawAuthority(databaseURL)
	}

	if u.User == nil {
		return databaseURL
	}

	if _, has := u.User.Password(); !has {
		return databaseURL
	}

	u.User = url.UserPassword(u.User.Username(), "***")

	return u.String()
}

// maskRawAuthority masks URLs url.Parse rejects: everything between the first
// ":" of the userinfo and the last "@" of the authority is replaced, so a
// password containing "@" still masks fully.
func maskRawAuthority(raw string) string {
	start := strings.Index(raw, "://")
	if start < 0 {
		return raw
	}

	auth := raw[start+3:]
	if end := strings.IndexAny(auth, "/?#"); end >= 0 {
		auth = auth[:end]
	}

	at := strings.LastIndex(auth, "@")
	if at < 0 {
		return raw
	}

	colon := strings.Index(auth[:at], ":")
	if colon < 0 || colon+1 == at {
		return raw
	}

	base := start + 3

	return raw[:base+colon+1] + "***" + raw[base+at:]
}
