// Package storage provides the PostgreSQL-backed conference store, its
// in-memory twin used by tests and smoke runs, and the connection plumbing
// shared between them.
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/confplan-io/confplan/internal/config"
)

const (
	defaultHost            = "localhost"
	defaultPort            = 5432
	defaultSSLMode         = "disable"
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute

	// configFileEnv overrides the config file location; the default is
	// .confplan.yaml in the working directory, silently skipped when absent.
	configFileEnv     = "CONFPLAN_CONFIG"
	defaultConfigFile = ".confplan.yaml"
)

// Config validation errors.
var (
	// ErrDatabaseEmpty is returned when the database name is an empty string.
	ErrDatabaseEmpty = errors.New("database name cannot be empty")

	// ErrLoginEmpty is returned when the connection login is an empty string.
	ErrLoginEmpty = errors.New("database login cannot be empty")
)

// Config holds PostgreSQL connection configuration. The database name and
// credentials arrive with the open request; host, port and pool sizing come
// from the environment, optionally overridden by a YAML file for deployments
// that cannot set environment variables.
type Config struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// LoadConfig loads connection configuration from environment variables with
// fallback to defaults, then applies the optional YAML file on top.
func LoadConfig() *Config {
	cfg := &Config{
		Host:            config.GetEnvStr("DATABASE_HOST", defaultHost),
		Port:            config.GetEnvInt("DATABASE_PORT", defaultPort),
		SSLMode:         config.GetEnvStr("DATABASE_SSLMODE", defaultSSLMode),
		MaxOpenConns:    config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
	}

	if err := cfg.applyFile(); err != nil {
		// A broken config file must not take the service down; the defaults
		// and environment values still apply.
		fmt.Fprintf(os.Stderr, "ignoring config file: %v\n", err)
	}

	return cfg
}

// applyFile merges the optional YAML config file over the current values.
// A missing file is not an error.
func (c *Config) applyFile() error {
	path := config.GetEnvStr(configFileEnv, defaultConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}

// DSN builds the connection URL for the named database and credentials.
func (c *Config) DSN(database, login, password string) (string, error) {
	if strings.TrimSpace(database) == "" {
		return "", ErrDatabaseEmpty
	}

	if strings.TrimSpace(login) == "" {
		return "", ErrLoginEmpty
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(login, password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}

	return u.String(), nil
}
