package am

import "github.com/teranos/shelf/unit"

// Config represents the shelf configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Parser   ParserConfig   `mapstructure:"parser"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host                  string   `mapstructure:"host"`
	Port                  *int     `mapstructure:"port"` // nil = default 8787, 0 is invalid
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds"` // 0 = no timeout
	ShutdownTimeoutSecs   int      `mapstructure:"shutdown_timeout_seconds"`
}

// UploadConfig bounds POST /bookmark/upload
type UploadConfig struct {
	MaxBytes          int64 `mapstructure:"max_bytes"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute"` // 0 = unlimited
	Burst             int   `mapstructure:"burst"`
}

// ParserConfig is applied to the parser unit at startup. Zero values keep
// the unit's own defaults.
type ParserConfig struct {
	MaxDepth         int      `mapstructure:"max_depth"`
	MaxAliasLength   int      `mapstructure:"max_alias_length"`
	MaxNodes         int      `mapstructure:"max_nodes"`
	MaxDocumentBytes int      `mapstructure:"max_document_bytes"`
	AllowedSchemes   []string `mapstructure:"allowed_schemes"`
}

// AnalyzerConfig is applied to the analyzer unit at startup.
type AnalyzerConfig struct {
	MaxCandidates    int     `mapstructure:"max_candidates"`
	FallbackCategory string  `mapstructure:"fallback_category"`
	FallbackGroup    string  `mapstructure:"fallback_group"`
	MinScore         float64 `mapstructure:"min_score"`
	UsePath          bool    `mapstructure:"use_path"`
	TaxonomyFile     string  `mapstructure:"taxonomy_file"`
	WatchTaxonomy    bool    `mapstructure:"watch_taxonomy"`
}

// Server defaults
const (
	DefaultServerHost = "127.0.0.1"
	DefaultServerPort = 8787
	DefaultUploadMax  = 10 << 20
)

// Options converts the parser section into unit options.
func (p ParserConfig) Options() unit.Options {
	opts := unit.Options{}
	setInt(opts, "max_depth", p.MaxDepth)
	setInt(opts, "max_alias_length", p.MaxAliasLength)
	setInt(opts, "max_nodes", p.MaxNodes)
	setInt(opts, "max_document_bytes", p.MaxDocumentBytes)
	if len(p.AllowedSchemes) > 0 {
		opts["allowed_schemes"] = p.AllowedSchemes
	}
	return opts
}

// Options converts the analyzer section into unit options. WatchTaxonomy is
// a service concern and is not passed to the unit.
func (a AnalyzerConfig) Options() unit.Options {
	opts := unit.Options{"use_path": a.UsePath}
	setInt(opts, "max_candidates", a.MaxCandidates)
	if a.FallbackCategory != "" {
		opts["fallback_category"] = a.FallbackCategory
	}
	if a.FallbackGroup != "" {
		opts["fallback_group"] = a.FallbackGroup
	}
	if a.MinScore > 0 {
		opts["min_score"] = a.MinScore
	}
	if a.TaxonomyFile != "" {
		opts["taxonomy_file"] = a.TaxonomyFile
	}
	return opts
}

func setInt(opts unit.Options, key string, v int) {
	if v != 0 {
		opts[key] = v
	}
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
