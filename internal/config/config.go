// Package config loads and validates the pseudomask configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/consentkeys/pseudomask/internal/profile"
	"github.com/consentkeys/pseudomask/internal/pseudonym"
)

// Config represents the full configuration file structure.
type Config struct {
	// SecretKey is the engine key. At least 32 characters; never generated
	// or persisted by this tool, only consumed.
	SecretKey string `yaml:"secret_key" json:"secret_key"`

	// ClientID is the derivation context used when masking database
	// exports. Different client IDs produce unlinkable outputs for the
	// same source values.
	ClientID string `yaml:"client_id,omitempty" json:"client_id,omitempty"`

	// EmailDomain overrides the default synthesized email domain.
	EmailDomain string `yaml:"email_domain,omitempty" json:"email_domain,omitempty"`

	// Pools optionally overrides individual lookup pools.
	Pools *PoolsConfig `yaml:"pools,omitempty" json:"pools,omitempty"`

	Connection Connection              `yaml:"connection,omitempty" json:"connection,omitempty"`
	Tables     map[string]*TableConfig `yaml:"tables,omitempty" json:"tables,omitempty"`
}

// Connection holds database connection parameters for the export mode.
type Connection struct {
	Type         string `yaml:"type" json:"type"`                                       // mysql, postgres, sqlite
	Host         string `yaml:"host,omitempty" json:"host,omitempty"`                   // Database host
	Port         int    `yaml:"port,omitempty" json:"port,omitempty"`                   // Database port
	Username     string `yaml:"username,omitempty" json:"username,omitempty"`           // Database username
	Password     string `yaml:"password,omitempty" json:"password,omitempty"`           // Database password
	DatabaseName string `yaml:"database_name,omitempty" json:"database_name,omitempty"` // Database name
	File         string `yaml:"file,omitempty" json:"file,omitempty"`                   // SQLite file path
}

// PoolsConfig carries optional lookup pool overrides. Any pool left empty
// falls back to the built-in default. Overriding a pool changes every
// synthesized output, so overrides should be versioned alongside the data
// they produce.
type PoolsConfig struct {
	FirstNames  []string `yaml:"first_names,omitempty" json:"first_names,omitempty"`
	LastNames   []string `yaml:"last_names,omitempty" json:"last_names,omitempty"`
	StreetNames []string `yaml:"street_names,omitempty" json:"street_names,omitempty"`
	Cities      []string `yaml:"cities,omitempty" json:"cities,omitempty"`
	States      []string `yaml:"states,omitempty" json:"states,omitempty"`
}

// TableConfig defines how a table should be processed during export.
type TableConfig struct {
	Truncate bool              `yaml:"truncate,omitempty" json:"truncate,omitempty"` // If true, export schema only
	Columns  map[string]string `yaml:"columns,omitempty" json:"columns,omitempty"`   // Column masking rules
}

// Load reads and parses a configuration file (YAML or JSON).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		// Try YAML first, then JSON
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config (tried YAML and JSON)")
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the key material. Connection parameters are validated
// separately because only the export and sync commands need them.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key: %w", pseudonym.ErrMissingField)
	}
	if len(c.SecretKey) < pseudonym.MinKeyLength {
		return fmt.Errorf("secret_key: %w", pseudonym.ErrInvalidKey)
	}
	return nil
}

// ValidateConnection checks that the connection block and the export
// derivation context are usable.
func (c *Config) ValidateConnection() error {
	validTypes := map[string]bool{"mysql": true, "postgres": true, "sqlite": true}
	if !validTypes[c.Connection.Type] {
		return fmt.Errorf("invalid connection type %q, must be mysql, postgres, or sqlite", c.Connection.Type)
	}

	if c.Connection.Type == "sqlite" {
		if c.Connection.File == "" {
			return fmt.Errorf("sqlite connection requires 'file' parameter")
		}
	} else {
		if c.Connection.Host == "" {
			return fmt.Errorf("connection requires 'host' parameter")
		}
		if c.Connection.DatabaseName == "" {
			return fmt.Errorf("connection requires 'database_name' parameter")
		}
	}

	if c.ClientID == "" {
		return fmt.Errorf("client_id: %w", pseudonym.ErrMissingField)
	}

	return nil
}

// BuildPools merges the configured overrides onto the default pools.
func (c *Config) BuildPools() profile.Pools {
	pools := profile.DefaultPools()
	if c.Pools == nil {
		return pools
	}
	if len(c.Pools.FirstNames) > 0 {
		pools.FirstNames = c.Pools.FirstNames
	}
	if len(c.Pools.LastNames) > 0 {
		pools.LastNames = c.Pools.LastNames
	}
	if len(c.Pools.StreetNames) > 0 {
		pools.StreetNames = c.Pools.StreetNames
	}
	if len(c.Pools.Cities) > 0 {
		pools.Cities = c.Pools.Cities
	}
	if len(c.Pools.States) > 0 {
		pools.States = c.Pools.States
	}
	return pools
}

// SynthesizerOptions returns the profile options implied by this config.
func (c *Config) SynthesizerOptions() []profile.Option {
	opts := []profile.Option{profile.WithPools(c.BuildPools())}
	if c.EmailDomain != "" {
		opts = append(opts, profile.WithEmailDomain(c.EmailDomain))
	}
	return opts
}

// GetTableConfig returns the configuration for a specific table.
// Returns nil if no specific config exists (full export, no masking).
func (c *Config) GetTableConfig(tableName string) *TableConfig {
	if c.Tables == nil {
		return nil
	}
	return c.Tables[tableName]
}

// DSN returns the connection string for the database.
func (c *Connection) DSN() string {
	switch c.Type {
	case "mysql":
		port := c.Port
		if port == 0 {
			port = 3306
		}
		// user:password@tcp(host:port)/database
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			c.Username, c.Password, c.Host, port, c.DatabaseName)
	case "postgres":
		port := c.Port
		if port == 0 {
			port = 5432
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, port, c.Username, c.Password, c.DatabaseName)
	case "sqlite":
		return c.File
	default:
		return ""
	}
}

// Save writes the configuration to a file in YAML or JSON format.
// The format is determined by the file extension.
func (c *Config) Save(path string) error {
	ext := strings.ToLower(filepath.Ext(path))

	var data []byte
	var err error

	switch ext {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	default:
		// Default to YAML
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// AddTable adds a new table to the configuration if it doesn't already exist.
// Returns true if the table was added, false if it already existed.
func (c *Config) AddTable(tableName string, tableConfig *TableConfig) bool {
	if c.Tables == nil {
		c.Tables = make(map[string]*TableConfig)
	}

	if _, exists := c.Tables[tableName]; exists {
		return false
	}

	c.Tables[tableName] = tableConfig
	return true
}

// HasTable checks if a table exists in the configuration.
func (c *Config) HasTable(tableName string) bool {
	if c.Tables == nil {
		return false
	}
	_, exists := c.Tables[tableName]
	return exists
}

// ListTables returns all table names in the configuration.
func (c *Config) ListTables() []string {
	if c.Tables == nil {
		return nil
	}

	tables := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		tables = append(tables, name)
	}
	return tables
}
