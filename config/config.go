// Package config loads connection settings from a YAML file and the
// environment.
//
// Example file:
//
//	mode: embedded-replica        # optional: inferred from path/url
//	path: /var/lib/app/replica.db
//	url: https://primary.internal:8080
//	auth_token: ${from LIBSQL_AUTH_TOKEN}
//	sync_schedule: "@every 30s"
//	read:
//	  url: https://reader.internal:8080
//
// A read section naming the replica's own path reads through the replica.
//
// Environment variables override the file: LIBSQL_MODE, LIBSQL_PATH,
// LIBSQL_URL, LIBSQL_AUTH_TOKEN, LIBSQL_DRIVER, LIBSQL_SYNC_SCHEDULE,
// LIBSQL_READ_YOUR_WRITES, LIBSQL_LENIENT_WRITES.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/ineersa/libsqlshim/libsql"
)

// Config describes one database connection.
type Config struct {
	Mode         string `yaml:"mode"`
	Path         string `yaml:"path"`
	Driver       string `yaml:"driver"`
	URL          string `yaml:"url"`
	AuthToken    string `yaml:"auth_token"`
	SyncSchedule string `yaml:"sync_schedule"`
	// ReadYourWrites defaults to true when unset.
	ReadYourWrites *bool `yaml:"read_your_writes"`
	// LenientWrites makes Connection.Exec report success for statements that
	// affect no rows, which is what migration runners expect from DDL.
	LenientWrites bool `yaml:"lenient_writes"`

	// Read optionally configures a separate handle for read traffic.
	Read *Config `yaml:"read"`
}

// Load reads the YAML file at path (if path is non-empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %q: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML without consulting the environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"LIBSQL_MODE":          &c.Mode,
		"LIBSQL_PATH":          &c.Path,
		"LIBSQL_URL":           &c.URL,
		"LIBSQL_AUTH_TOKEN":    &c.AuthToken,
		"LIBSQL_DRIVER":        &c.Driver,
		"LIBSQL_SYNC_SCHEDULE": &c.SyncSchedule,
	}
	for key, field := range strs {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*field = v
		}
	}

	invalid := make([]string, 0, 2)
	if v := strings.TrimSpace(os.Getenv("LIBSQL_READ_YOUR_WRITES")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			invalid = append(invalid, "LIBSQL_READ_YOUR_WRITES")
		} else {
			c.ReadYourWrites = &b
		}
	}
	if v := strings.TrimSpace(os.Getenv("LIBSQL_LENIENT_WRITES")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			invalid = append(invalid, "LIBSQL_LENIENT_WRITES")
		} else {
			c.LenientWrites = b
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// ResolveMode returns the configured mode, inferring it when unset: a path
// alone is local, a URL alone is remote, both is an embedded replica.
func (c *Config) ResolveMode() (libsql.Mode, error) {
	if c.Mode != "" {
		return libsql.ParseMode(c.Mode)
	}
	switch {
	case c.Path != "" && c.URL != "":
		return libsql.ModeEmbeddedReplica, nil
	case c.URL != "":
		return libsql.ModeRemote, nil
	case c.Path != "":
		return libsql.ModeLocal, nil
	}
	return "", errors.New("either path or url is required")
}

// Validate checks that the settings needed by the resolved mode are present.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.Read != nil {
		if c.Read.Read != nil {
			return errors.New("read: nested read sections are not supported")
		}
		if err := c.Read.validate(); err != nil {
			return fmt.Errorf("read: %w", err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	mode, err := c.ResolveMode()
	if err != nil {
		return err
	}
	switch mode {
	case libsql.ModeLocal:
		if c.Path == "" {
			return errors.New("local mode requires path")
		}
	case libsql.ModeRemote:
		if c.URL == "" {
			return errors.New("remote mode requires url")
		}
	case libsql.ModeEmbeddedReplica:
		if c.Path == "" || c.URL == "" {
			return errors.New("embedded-replica mode requires path and url")
		}
	}
	if c.Driver != "" && c.Driver != libsql.DriverSQLite3 && c.Driver != libsql.DriverModernc {
		return fmt.Errorf("unknown driver %q (%s/%s)", c.Driver, libsql.DriverSQLite3, libsql.DriverModernc)
	}
	if c.SyncSchedule != "" {
		if mode != libsql.ModeEmbeddedReplica {
			return fmt.Errorf("sync_schedule is only valid in %s mode", libsql.ModeEmbeddedReplica)
		}
		if _, err := cron.ParseStandard(c.SyncSchedule); err != nil {
			return fmt.Errorf("invalid sync_schedule %q: %w", c.SyncSchedule, err)
		}
	}
	return nil
}

// Engine converts the settings into an engine configuration.
func (c *Config) Engine(logger *slog.Logger) (libsql.Config, error) {
	mode, err := c.ResolveMode()
	if err != nil {
		return libsql.Config{}, err
	}
	readYourWrites := true
	if c.ReadYourWrites != nil {
		readYourWrites = *c.ReadYourWrites
	}
	return libsql.Config{
		Mode:           mode,
		Path:           c.Path,
		Driver:         c.Driver,
		URL:            c.URL,
		AuthToken:      c.AuthToken,
		SyncSchedule:   c.SyncSchedule,
		ReadYourWrites: readYourWrites,
		Logger:         logger,
	}, nil
}
