package analyzer

import (
	"strconv"
	"strings"

	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/unit"
)

// Defaults for a fresh analyzer.
const (
	DefaultMaxCandidates    = 3
	DefaultFallbackCategory = "uncategorized"
	DefaultFallbackGroup    = "other"
	DefaultMinScore         = 0.1
)

// Config holds the analyzer settings.
type Config struct {
	MaxCandidates    int
	FallbackCategory string
	FallbackGroup    string
	MinScore         float64
	UsePath          bool
	Taxonomy         Taxonomy
	// TaxonomyFile is the file Taxonomy was loaded from, if any.
	TaxonomyFile string
}

// DefaultConfig returns the configuration a fresh analyzer starts with.
func DefaultConfig() Config {
	return Config{
		MaxCandidates:    DefaultMaxCandidates,
		FallbackCategory: DefaultFallbackCategory,
		FallbackGroup:    DefaultFallbackGroup,
		MinScore:         DefaultMinScore,
		UsePath:          true,
		Taxonomy:         DefaultTaxonomy(),
	}
}

var configSchema = map[string]unit.ConfigField{
	"max_candidates": {
		Type:         "integer",
		Description:  "Alias candidates suggested per bookmark",
		DefaultValue: strconv.Itoa(DefaultMaxCandidates),
		MinValue:     "2",
		MaxValue:     "3",
	},
	"fallback_category": {
		Type:         "string",
		Description:  "Category assigned when no category scores above min_score",
		DefaultValue: DefaultFallbackCategory,
	},
	"fallback_group": {
		Type:         "string",
		Description:  "Group assigned together with the fallback category",
		DefaultValue: DefaultFallbackGroup,
	},
	"min_score": {
		Type:         "number",
		Description:  "Lowest policy score accepted for a category",
		DefaultValue: strconv.FormatFloat(DefaultMinScore, 'g', -1, 64),
		MinValue:     "0",
		MaxValue:     "1",
	},
	"use_path": {
		Type:         "boolean",
		Description:  "Let folder names take part in scoring",
		DefaultValue: "true",
	},
	"taxonomy": {
		Type:        "object",
		Description: "Inline taxonomy: a list of {name, keywords, groups}",
	},
	"taxonomy_file": {
		Type:        "string",
		Description: "Taxonomy file to load (.yaml, .yml, .toml or .json)",
	},
}

// withOptions validates opts on top of c and returns the resulting config.
func (c Config) withOptions(opts unit.Options) (Config, error) {
	if err := opts.CheckKeys(configSchema); err != nil {
		return c, err
	}
	next := c

	if v, ok, err := opts.Int("max_candidates", 2, 3); err != nil {
		return c, err
	} else if ok {
		next.MaxCandidates = v
	}
	if v, ok, err := opts.String("fallback_category"); err != nil {
		return c, err
	} else if ok {
		next.FallbackCategory = strings.TrimSpace(v)
	}
	if v, ok, err := opts.String("fallback_group"); err != nil {
		return c, err
	} else if ok {
		next.FallbackGroup = strings.TrimSpace(v)
	}
	if v, ok, err := opts.Float("min_score", 0, 1); err != nil {
		return c, err
	} else if ok {
		next.MinScore = v
	}
	if v, ok, err := opts.Bool("use_path"); err != nil {
		return c, err
	} else if ok {
		next.UsePath = v
	}

	raw, hasInline := opts["taxonomy"]
	file, hasFile, err := opts.String("taxonomy_file")
	if err != nil {
		return c, err
	}
	switch {
	case hasInline && hasFile:
		return c, errors.NewInvalidConfigError("taxonomy and taxonomy_file are mutually exclusive")
	case hasInline:
		t, err := taxonomyFromOption(raw)
		if err != nil {
			return c, err
		}
		next.Taxonomy = t
		next.TaxonomyFile = ""
	case hasFile:
		t, err := LoadTaxonomy(file)
		if err != nil {
			if !errors.Is(err, errors.ErrInvalidConfig) {
				err = errors.Wrapf(errors.ErrInvalidConfig, "%v", err)
			}
			return c, err
		}
		next.Taxonomy = t
		next.TaxonomyFile = file
	}
	return next, nil
}
