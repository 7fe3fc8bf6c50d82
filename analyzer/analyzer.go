// Package analyzer suggests alias candidates, a category and a group for
// each flattened bookmark.
//
// Classification goes through a Policy. The default KeywordPolicy matches
// taxonomy keywords with an Aho-Corasick automaton; any other Policy can be
// plugged in with WithPolicy. Every input record yields exactly one
// Suggestion, in input order, so results join 1:1 with records by url.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/logger"
	"github.com/teranos/shelf/parser"
	"github.com/teranos/shelf/unit"
)

// Name is the name the analyzer is registered under.
const Name = "analyzer"

// Version of the analyzer unit.
const Version = "1.0.0"

// FlagNoPath disables folder-path scoring for a single execution.
const FlagNoPath = "--no-path"

const ctxCheckInterval = 256

// Suggestion is the derived metadata for one record, joined to it by URL.
type Suggestion struct {
	URL             string   `json:"url"`
	AliasCandidates []string `json:"aliasCandidates"`
	Category        string   `json:"category"`
	Group           string   `json:"group"`
	Score           float64  `json:"score,omitempty"`
}

// Unit is the suggestion engine as a registry unit.
type Unit struct {
	configMu sync.Mutex // serializes Configure

	mu     sync.RWMutex
	cfg    Config
	policy Policy
	// fixed is true when the policy was supplied by the caller and must
	// survive taxonomy changes.
	fixed  bool
	logger *zap.SugaredLogger
}

var (
	_ unit.Unit         = (*Unit)(nil)
	_ unit.Configurable = (*Unit)(nil)
	_ unit.Reentrant    = (*Unit)(nil)
)

// Option customizes a Unit.
type Option func(*Unit)

// WithPolicy replaces the keyword policy.
func WithPolicy(p Policy) Option {
	return func(u *Unit) {
		if p != nil {
			u.policy = p
			u.fixed = true
		}
	}
}

// WithLogger sets the unit logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(u *Unit) { u.logger = logger.OrNop(log) }
}

// New creates an analyzer with the default configuration.
func New(opts ...Option) *Unit {
	cfg := DefaultConfig()
	u := &Unit{
		cfg:    cfg,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.policy == nil {
		u.policy = NewKeywordPolicy(cfg.Taxonomy, cfg.UsePath)
	}
	return u
}

// Describe returns the analyzer descriptor.
func (u *Unit) Describe() unit.Descriptor {
	return unit.Descriptor{
		Name:        Name,
		Version:     Version,
		Author:      "shelf",
		Description: "Suggests alias candidates, category and group for flattened bookmarks",
	}
}

// Reentrant reports that Execute may run concurrently.
func (u *Unit) Reentrant() bool { return true }

// ConfigSchema describes the accepted options.
func (u *Unit) ConfigSchema() map[string]unit.ConfigField {
	return configSchema
}

// Configure validates opts, rebuilding the keyword automaton when the
// taxonomy or path setting changed, and swaps both in only on success.
func (u *Unit) Configure(opts unit.Options) error {
	u.configMu.Lock()
	defer u.configMu.Unlock()

	u.mu.RLock()
	current := u.cfg
	u.mu.RUnlock()

	next, err := current.withOptions(opts)
	if err != nil {
		return err
	}

	var policy Policy
	_, taxonomyChanged := opts["taxonomy"]
	_, fileChanged := opts["taxonomy_file"]
	if taxonomyChanged || fileChanged || next.UsePath != current.UsePath {
		policy = NewKeywordPolicy(next.Taxonomy, next.UsePath)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.cfg = next
	if policy != nil && !u.fixed {
		u.policy = policy
	}
	u.logger.Infow("Analyzer configured",
		"categories", len(next.Taxonomy.Categories),
		logger.FieldFile, next.TaxonomyFile)
	return nil
}

// Config returns the active configuration.
func (u *Unit) Config() Config {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.cfg
}

// Execute analyzes args.Input and returns []Suggestion.
func (u *Unit) Execute(ctx context.Context, args unit.Args) (any, error) {
	records, err := decodeRecords(args.Input)
	if err != nil {
		return nil, unit.NewExecutionError(err, nil)
	}

	u.mu.RLock()
	cfg, policy := u.cfg, u.policy
	u.mu.RUnlock()
	if args.HasFlag(FlagNoPath) {
		cfg.UsePath = false
	}

	suggestions, err := Analyze(ctx, records, cfg, policy)
	if err != nil {
		return nil, unit.NewExecutionError(err, suggestions)
	}

	logger.FromContext(ctx, u.logger).Infow("Analyzed bookmarks",
		logger.FieldCount, len(records),
		logger.FieldSuggestions, len(suggestions))
	return suggestions, nil
}

// Analyze produces one Suggestion per record, in record order. On
// cancellation it returns the suggestions made so far with the context error.
func Analyze(ctx context.Context, records []parser.FlatRecord, cfg Config, policy Policy) ([]Suggestion, error) {
	out := make([]Suggestion, 0, len(records))
	for i, rec := range records {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return out, errors.Wrap(err, "analysis cancelled")
			}
		}
		out = append(out, suggest(rec, cfg, policy))
	}
	return out, nil
}

func suggest(rec parser.FlatRecord, cfg Config, policy Policy) Suggestion {
	s := Suggestion{
		URL:             rec.URL,
		AliasCandidates: Candidates(rec, cfg.MaxCandidates),
		Category:        cfg.FallbackCategory,
		Group:           cfg.FallbackGroup,
	}

	doc := Document{Title: rec.Title, URL: rec.URL}
	if cfg.UsePath {
		doc.Path = rec.Path
	}
	if policy == nil {
		return s
	}
	scores := policy.Score(doc)
	if len(scores) == 0 || scores[0].Score < cfg.MinScore {
		return s
	}

	best := scores[0]
	s.Category = best.Category
	s.Score = best.Score
	s.Group = best.Category
	for _, c := range cfg.Taxonomy.Categories {
		if c.Name == best.Category {
			s.Group = c.Group()
			break
		}
	}
	return s
}

// decodeRecords turns an execution input into the records to analyze.
func decodeRecords(input any) ([]parser.FlatRecord, error) {
	switch v := input.(type) {
	case nil:
		return nil, errors.NewInvalidRequestError("no records to analyze")
	case []parser.FlatRecord:
		return v, nil
	case *parser.Result:
		if v == nil {
			return nil, errors.NewInvalidRequestError("no records to analyze")
		}
		return v.Records, nil
	case parser.Result:
		return v.Records, nil
	case json.RawMessage:
		return decodeRecordJSON(v)
	case []byte:
		return decodeRecordJSON(v)
	case string:
		return decodeRecordJSON([]byte(v))
	case io.Reader:
		data, err := parser.ReadLimited(v, parser.DefaultMaxDocumentBytes)
		if err != nil {
			return nil, err
		}
		return decodeRecordJSON(data)
	default:
		return nil, errors.NewInvalidRequestError("unsupported input type %T", input)
	}
}

// decodeRecordJSON accepts a record array or a parse result object.
func decodeRecordJSON(data []byte) ([]parser.FlatRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var res parser.Result
		if err := json.Unmarshal(data, &res); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "decode records: %v", err)
		}
		return res.Records, nil
	}
	var records []parser.FlatRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "decode records: %v", err)
	}
	return records, nil
}
