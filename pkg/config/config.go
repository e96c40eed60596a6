// Package config loads the pebble-bridge.yaml configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/marshallshelly/pebble-bridge/pkg/bridge"
	"github.com/marshallshelly/pebble-bridge/pkg/logging"
	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
	"github.com/marshallshelly/pebble-bridge/pkg/model"
	"github.com/marshallshelly/pebble-bridge/pkg/runtime"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "pebble-bridge.yaml"

// Database is the connection of one alias.
type Database struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

// Config represents the configuration file.
type Config struct {
	Databases map[string]Database `yaml:"databases"`
	// DataTypes maps extra field type-names to column types such as
	// "char(36)".
	DataTypes map[string]string `yaml:"data_types"`
	Logging   logging.Config    `yaml:"logging"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	return &Config{
		Databases: map[string]Database{},
		DataTypes: map[string]string{},
		Logging:   logging.Config{Level: logging.LevelInfo, Format: "text"},
	}
}

// Load reads the file at path. A missing DefaultFile is not an error; a
// missing explicitly named file is. DATABASE_URL fills in the default alias
// when the file leaves it out.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if cfg, err = Parse(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if envURL := os.Getenv("DATABASE_URL"); envURL != "" {
		db := cfg.Databases[model.DefaultAlias]
		if db.URL == "" {
			db.URL = envURL
			cfg.Databases[model.DefaultAlias] = db
		}
	}
	return cfg, cfg.Validate()
}

// Parse decodes a configuration document and expands ${VAR} references in
// database URLs.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if cfg.Databases == nil {
		cfg.Databases = map[string]Database{}
	}
	for alias, db := range cfg.Databases {
		db.URL = expandEnvVars(db.URL)
		cfg.Databases[alias] = db
	}
	return cfg, nil
}

// expandEnvVars expands ${VAR} patterns in a string.
func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

// Validate checks drivers, URLs and data types.
func (c *Config) Validate() error {
	var errs []error
	for _, alias := range c.Aliases() {
		db := c.Databases[alias]
		switch db.Driver {
		case "", runtime.DriverPgx, runtime.DriverPostgres, runtime.DriverSQLite:
		default:
			errs = append(errs, fmt.Errorf("database %s: %w: %q", alias, runtime.ErrUnsupportedDriver, db.Driver))
		}
		if db.URL == "" {
			errs = append(errs, fmt.Errorf("database %s: url is required", alias))
		}
	}
	if _, err := c.TypeMap(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Aliases returns the configured aliases, sorted.
func (c *Config) Aliases() []string {
	out := make([]string, 0, len(c.Databases))
	for alias := range c.Databases {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// Engines returns the engine configuration of every alias.
func (c *Config) Engines() map[string]runtime.Config {
	out := make(map[string]runtime.Config, len(c.Databases))
	for alias, db := range c.Databases {
		out[alias] = runtime.Config{
			Driver:   db.Driver,
			URL:      db.URL,
			MaxConns: db.MaxConns,
			MinConns: db.MinConns,
		}
	}
	return out
}

// TypeMap returns the data_types entries as bridge type functions.
func (c *Config) TypeMap() (bridge.TypeMap, error) {
	types := make(bridge.TypeMap, len(c.DataTypes))
	for name, spec := range c.DataTypes {
		t, err := mapping.ParseType(spec)
		if err != nil {
			return nil, fmt.Errorf("data type %s: %w", name, err)
		}
		types[name] = bridge.Fixed(t)
	}
	return types, nil
}
