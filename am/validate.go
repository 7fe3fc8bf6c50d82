package am

import "github.com/teranos/shelf/errors"

// Validate checks that the configuration is valid. Unit option ranges are
// checked again by the units themselves when the options are applied.
func (c *Config) Validate() error {
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.NewInvalidConfigError("server.port cannot be 0 (omit for default port %d)", DefaultServerPort)
	}
	if c.Server.Port != nil && (*c.Server.Port < 0 || *c.Server.Port > 65535) {
		return errors.NewInvalidConfigError("server.port must be between 1 and 65535, got %d", *c.Server.Port)
	}
	if c.Server.RequestTimeoutSeconds < 0 {
		return errors.NewInvalidConfigError("server.request_timeout_seconds must be >= 0, got %d", c.Server.RequestTimeoutSeconds)
	}
	if c.Server.ShutdownTimeoutSecs < 0 {
		return errors.NewInvalidConfigError("server.shutdown_timeout_seconds must be >= 0, got %d", c.Server.ShutdownTimeoutSecs)
	}

	if c.Upload.MaxBytes < 0 {
		return errors.NewInvalidConfigError("upload.max_bytes must be >= 0, got %d", c.Upload.MaxBytes)
	}
	if c.Upload.RequestsPerMinute < 0 {
		return errors.NewInvalidConfigError("upload.requests_per_minute must be >= 0, got %d", c.Upload.RequestsPerMinute)
	}
	if c.Upload.RequestsPerMinute > 0 && c.Upload.Burst < 1 {
		return errors.NewInvalidConfigError("upload.burst must be >= 1 when rate limiting, got %d", c.Upload.Burst)
	}

	for key, v := range map[string]int{
		"parser.max_depth":          c.Parser.MaxDepth,
		"parser.max_alias_length":   c.Parser.MaxAliasLength,
		"parser.max_nodes":          c.Parser.MaxNodes,
		"parser.max_document_bytes": c.Parser.MaxDocumentBytes,
	} {
		if v < 0 {
			return errors.NewInvalidConfigError("%s must be >= 0, got %d", key, v)
		}
	}

	if c.Analyzer.MinScore < 0 || c.Analyzer.MinScore > 1 {
		return errors.NewInvalidConfigError("analyzer.min_score must be between 0 and 1, got %g", c.Analyzer.MinScore)
	}
	if c.Analyzer.WatchTaxonomy && c.Analyzer.TaxonomyFile == "" {
		return errors.NewInvalidConfigError("analyzer.watch_taxonomy requires analyzer.taxonomy_file")
	}
	return nil
}
