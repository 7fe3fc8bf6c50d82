package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "shelf.db")

	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	v.SetDefault("upload.max_bytes", DefaultUploadMax)
	v.SetDefault("upload.requests_per_minute", 30)
	v.SetDefault("upload.burst", 5)

	// Zero parser limits keep the unit's built-in defaults
	v.SetDefault("parser.max_depth", 0)
	v.SetDefault("parser.max_alias_length", 0)
	v.SetDefault("parser.max_nodes", 0)
	v.SetDefault("parser.max_document_bytes", 0)

	v.SetDefault("analyzer.max_candidates", 3)
	v.SetDefault("analyzer.fallback_category", "uncategorized")
	v.SetDefault("analyzer.fallback_group", "other")
	v.SetDefault("analyzer.min_score", 0.1)
	v.SetDefault("analyzer.use_path", true)
	v.SetDefault("analyzer.taxonomy_file", "")
	v.SetDefault("analyzer.watch_taxonomy", false)
}

// BindEnvVars binds the keys operators override most often to explicit
// environment variables.
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "SHELF_DATABASE_PATH", "SHELF_DB")
	v.BindEnv("server.port", "SHELF_SERVER_PORT", "PORT")
	v.BindEnv("analyzer.taxonomy_file", "SHELF_ANALYZER_TAXONOMY_FILE")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "shelf.db"
	}
	return c.Database.Path
}

// GetServerPort returns server.port, or DefaultServerPort when unset
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetServerAddress returns host:port for the HTTP listener
func (c *Config) GetServerAddress() string {
	host := c.Server.Host
	if host == "" {
		host = DefaultServerHost
	}
	return fmt.Sprintf("%s:%d", host, c.GetServerPort())
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{"http://localhost", "http://127.0.0.1"}
	}
	return c.Server.AllowedOrigins
}

// GetUploadMaxBytes returns upload.max_bytes (default 10 MiB)
func (c *Config) GetUploadMaxBytes() int64 {
	if c.Upload.MaxBytes <= 0 {
		return DefaultUploadMax
	}
	return c.Upload.MaxBytes
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Server: %s, Taxonomy: %q}",
		c.GetDatabasePath(), c.GetServerAddress(), c.Analyzer.TaxonomyFile)
}
