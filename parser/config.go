package parser

import (
	"strconv"
	"strings"

	"github.com/teranos/shelf/unit"
)

// Default limits. MaxDepth and MaxAliasLength follow the limits browsers
// themselves enforce on exported trees in practice.
const (
	DefaultMaxDepth         = 20
	DefaultMaxAliasLength   = 100
	DefaultMaxNodes         = 200000
	DefaultMaxDocumentBytes = 10 * 1024 * 1024
)

// DefaultAllowedSchemes are the url schemes a leaf may use.
var DefaultAllowedSchemes = []string{"http", "https", "ftp", "file", "chrome", "edge", "about"}

// Config holds the parser limits.
type Config struct {
	MaxDepth         int
	MaxAliasLength   int
	MaxNodes         int
	MaxDocumentBytes int64
	AllowedSchemes   []string
}

// DefaultConfig returns the configuration a fresh parser starts with.
func DefaultConfig() Config {
	return Config{
		MaxDepth:         DefaultMaxDepth,
		MaxAliasLength:   DefaultMaxAliasLength,
		MaxNodes:         DefaultMaxNodes,
		MaxDocumentBytes: DefaultMaxDocumentBytes,
		AllowedSchemes:   append([]string(nil), DefaultAllowedSchemes...),
	}
}

var configSchema = map[string]unit.ConfigField{
	"max_depth": {
		Type:         "integer",
		Description:  "Deepest folder nesting accepted before the batch is rejected",
		DefaultValue: strconv.Itoa(DefaultMaxDepth),
		MinValue:     "1",
		MaxValue:     "10000",
	},
	"max_alias_length": {
		Type:         "integer",
		Description:  "Maximum alias length in characters, including the disambiguation suffix",
		DefaultValue: strconv.Itoa(DefaultMaxAliasLength),
		MinValue:     "8",
		MaxValue:     "1000",
	},
	"max_nodes": {
		Type:         "integer",
		Description:  "Maximum number of tree nodes visited per parse",
		DefaultValue: strconv.Itoa(DefaultMaxNodes),
		MinValue:     "1",
	},
	"max_document_bytes": {
		Type:         "integer",
		Description:  "Maximum size of a raw JSON or HTML document",
		DefaultValue: strconv.Itoa(DefaultMaxDocumentBytes),
		MinValue:     "1024",
	},
	"allowed_schemes": {
		Type:         "array",
		Description:  "URL schemes accepted for bookmark leaves",
		DefaultValue: strings.Join(DefaultAllowedSchemes, ","),
	},
}

// withOptions validates opts on top of c and returns the resulting config.
// c is left untouched.
func (c Config) withOptions(opts unit.Options) (Config, error) {
	if err := opts.CheckKeys(configSchema); err != nil {
		return c, err
	}

	next := c
	next.AllowedSchemes = append([]string(nil), c.AllowedSchemes...)

	if v, ok, err := opts.Int("max_depth", 1, 10000); err != nil {
		return c, err
	} else if ok {
		next.MaxDepth = v
	}
	if v, ok, err := opts.Int("max_alias_length", 8, 1000); err != nil {
		return c, err
	} else if ok {
		next.MaxAliasLength = v
	}
	if v, ok, err := opts.Int("max_nodes", 1, int(^uint32(0)>>1)); err != nil {
		return c, err
	} else if ok {
		next.MaxNodes = v
	}
	if v, ok, err := opts.Int("max_document_bytes", 1024, int(^uint32(0)>>1)); err != nil {
		return c, err
	} else if ok {
		next.MaxDocumentBytes = int64(v)
	}
	if v, ok, err := opts.Strings("allowed_schemes"); err != nil {
		return c, err
	} else if ok {
		next.AllowedSchemes = next.AllowedSchemes[:0]
		for _, s := range v {
			next.AllowedSchemes = append(next.AllowedSchemes, strings.ToLower(strings.TrimSpace(s)))
		}
	}
	return next, nil
}

func (c Config) schemeAllowed(scheme string) bool {
	for _, s := range c.AllowedSchemes {
		if s == scheme {
			return true
		}
	}
	return false
}
