package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the migration engine
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Warehouse StoreConfig     `yaml:"warehouse"`
	Graph     GraphConfig     `yaml:"graph"`
	Migration MigrationConfig `yaml:"migration"`
}

// SourceConfig holds source database connection settings
type SourceConfig struct {
	Type            string `yaml:"type"` // "postgres" or "mssql" (default: postgres)
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Database        string `yaml:"database"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Schema          string `yaml:"schema"`
	SSLMode         string `yaml:"ssl_mode"`          // PostgreSQL: disable, require, verify-ca, verify-full
	Encrypt         string `yaml:"encrypt"`           // MSSQL: disable, false, true
	TrustServerCert bool   `yaml:"trust_server_cert"` // MSSQL: trust server certificate
	CSVDir          string `yaml:"csv_dir"`           // optional directory of tabular dumps for file-backed datasets
}

// StoreConfig holds a PostgreSQL destination's connection settings
type StoreConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema"`
	SSLMode  string `yaml:"ssl_mode"`
}

// GraphConfig holds the graph-capable store's connection settings.
// The store is PostgreSQL with the AGE extension; every new physical
// connection must load the extension and set the catalog search path.
type GraphConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Database   string `yaml:"database"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	SSLMode    string `yaml:"ssl_mode"`
	GraphName  string `yaml:"graph_name"`
	SearchPath string `yaml:"search_path"`
}

// MigrationConfig holds migration behavior settings
type MigrationConfig struct {
	ChunkSize               int    `yaml:"chunk_size"` // 0 = adaptive from row width
	BatchSize               int    `yaml:"batch_size"` // graph path page size
	MaxSourceConnections    int    `yaml:"max_source_connections"`
	MaxWarehouseConnections int    `yaml:"max_warehouse_connections"`
	MaxGraphConnections     int    `yaml:"max_graph_connections"`
	DataDir                 string `yaml:"data_dir"` // local run-history state
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes reads configuration from YAML bytes.
func LoadBytes(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Source.Type == "" {
		c.Source.Type = "postgres"
	}
	if c.Source.Port == 0 {
		if c.Source.Type == "mssql" {
			c.Source.Port = 1433
		} else {
			c.Source.Port = 5432
		}
	}
	if c.Source.Schema == "" {
		if c.Source.Type == "mssql" {
			c.Source.Schema = "dbo"
		} else {
			c.Source.Schema = "public"
		}
	}
	if c.Source.SSLMode == "" {
		c.Source.SSLMode = "require"
	}
	if c.Source.Encrypt == "" {
		c.Source.Encrypt = "true"
	}

	if c.Warehouse.Port == 0 {
		c.Warehouse.Port = 5432
	}
	if c.Warehouse.Schema == "" {
		c.Warehouse.Schema = "public"
	}
	if c.Warehouse.SSLMode == "" {
		c.Warehouse.SSLMode = "require"
	}

	if c.Graph.Port == 0 {
		c.Graph.Port = 5432
	}
	if c.Graph.SSLMode == "" {
		c.Graph.SSLMode = "require"
	}
	if c.Graph.GraphName == "" {
		c.Graph.GraphName = "fao_graph"
	}
	if c.Graph.SearchPath == "" {
		c.Graph.SearchPath = `ag_catalog, "$user", public`
	}

	if c.Migration.BatchSize == 0 {
		c.Migration.BatchSize = 5000
	}
	if c.Migration.MaxSourceConnections == 0 {
		c.Migration.MaxSourceConnections = 4
	}
	if c.Migration.MaxWarehouseConnections == 0 {
		c.Migration.MaxWarehouseConnections = 8
	}
	if c.Migration.MaxGraphConnections == 0 {
		c.Migration.MaxGraphConnections = 4
	}
	if c.Migration.DataDir == "" {
		home, _ := os.UserHomeDir()
		c.Migration.DataDir = filepath.Join(home, ".faomigrate")
	} else {
		c.Migration.DataDir = expandTilde(c.Migration.DataDir)
	}
}

func (c *Config) validate() error {
	if c.Source.Type != "postgres" && c.Source.Type != "mssql" {
		return fmt.Errorf("source.type must be 'postgres' or 'mssql', got '%s'", c.Source.Type)
	}
	if c.Source.Host == "" && c.Source.CSVDir == "" {
		return fmt.Errorf("source.host is required (or source.csv_dir for file-backed datasets)")
	}
	if c.Source.Host != "" && c.Source.Database == "" {
		return fmt.Errorf("source.database is required")
	}
	if c.Warehouse.Host == "" {
		return fmt.Errorf("warehouse.host is required")
	}
	if c.Warehouse.Database == "" {
		return fmt.Errorf("warehouse.database is required")
	}
	if c.Graph.Host == "" {
		return fmt.Errorf("graph.host is required")
	}
	if c.Graph.Database == "" {
		return fmt.Errorf("graph.database is required")
	}
	if c.Migration.ChunkSize < 0 {
		return fmt.Errorf("migration.chunk_size must be >= 0")
	}
	if c.Migration.BatchSize <= 0 {
		return fmt.Errorf("migration.batch_size must be > 0")
	}
	return nil
}

// SourceDSN returns the source database connection string
func (c *Config) SourceDSN() string {
	if c.Source.Type == "mssql" {
		trustCert := "false"
		if c.Source.TrustServerCert {
			trustCert = "true"
		}
		// URL-encode credentials to prevent DSN injection
		return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s&encrypt=%s&TrustServerCertificate=%s",
			url.QueryEscape(c.Source.User), url.QueryEscape(c.Source.Password),
			c.Source.Host, c.Source.Port, url.QueryEscape(c.Source.Database),
			c.Source.Encrypt, trustCert)
	}
	return postgresDSN(c.Source.Host, c.Source.Port, c.Source.Database,
		c.Source.User, c.Source.Password, c.Source.SSLMode)
}

// WarehouseDSN returns the warehouse connection string
func (c *Config) WarehouseDSN() string {
	return postgresDSN(c.Warehouse.Host, c.Warehouse.Port, c.Warehouse.Database,
		c.Warehouse.User, c.Warehouse.Password, c.Warehouse.SSLMode)
}

// GraphDSN returns the graph store connection string
func (c *Config) GraphDSN() string {
	return postgresDSN(c.Graph.Host, c.Graph.Port, c.Graph.Database,
		c.Graph.User, c.Graph.Password, c.Graph.SSLMode)
}

func postgresDSN(host string, port int, database, user, password, sslMode string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(user), url.QueryEscape(password), host, port, database, sslMode)
}

// Sanitized returns a copy of the config with sensitive fields redacted
func (c *Config) Sanitized() *Config {
	sanitized := *c
	sanitized.Source.Password = "[REDACTED]"
	sanitized.Warehouse.Password = "[REDACTED]"
	sanitized.Graph.Password = "[REDACTED]"
	return &sanitized
}

// expandTilde expands ~ or ~/ at the start of a path to the user's home directory
func expandTilde(path string) string {
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
